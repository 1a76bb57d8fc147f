package pgfreight

import (
	"context"

	"github.com/BearBump/FreightBox/internal/models"
	"github.com/BearBump/FreightBox/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) GetTracking(ctx context.Context, routeID uuid.UUID) (*models.Tracking, error) {
	return getTracking(ctx, s.db, routeID)
}

// SaveTracking пишет трекинг, только если маршрут всё ещё в ожидаемом статусе.
// FOR SHARE не даёт CompleteRoute закрыть маршрут между проверкой и записью.
func (s *Storage) SaveTracking(ctx context.Context, t *models.Tracking, expected models.RouteStatus) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status models.RouteStatus
	err = tx.QueryRow(ctx, `SELECT status FROM routes WHERE id = $1 FOR SHARE`, t.RouteID).Scan(&status)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return storage.ErrNotFound
	case err != nil:
		return errors.Wrap(err, "lock route")
	}
	if status != expected {
		return storage.ErrStale
	}

	if err := upsertTracking(ctx, tx, t.RouteID, t); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

func getTracking(ctx context.Context, q execer, routeID uuid.UUID) (*models.Tracking, error) {
	var t models.Tracking
	err := q.QueryRow(ctx, `
SELECT route_id, current_location, current_lat, current_lng, progress_percent, last_update
FROM trackings
WHERE route_id = $1
`, routeID).Scan(&t.RouteID, &t.CurrentLocation, &t.CurrentLat, &t.CurrentLng, &t.ProgressPercent, &t.LastUpdate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrap(err, "select tracking")
	}
	return &t, nil
}

func insertTrackingIfAbsent(ctx context.Context, q execer, routeID uuid.UUID, t *models.Tracking) error {
	_, err := q.Exec(ctx, `
INSERT INTO trackings (route_id, current_location, current_lat, current_lng, progress_percent, last_update)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (route_id) DO NOTHING
`, routeID, t.CurrentLocation, t.CurrentLat, t.CurrentLng, t.ProgressPercent, t.LastUpdate.UTC())
	return errors.Wrap(err, "insert tracking")
}

func upsertTracking(ctx context.Context, q execer, routeID uuid.UUID, t *models.Tracking) error {
	_, err := q.Exec(ctx, `
INSERT INTO trackings (route_id, current_location, current_lat, current_lng, progress_percent, last_update)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (route_id) DO UPDATE SET
  current_location = EXCLUDED.current_location,
  current_lat = EXCLUDED.current_lat,
  current_lng = EXCLUDED.current_lng,
  progress_percent = EXCLUDED.progress_percent,
  last_update = EXCLUDED.last_update
`, routeID, t.CurrentLocation, t.CurrentLat, t.CurrentLng, t.ProgressPercent, t.LastUpdate.UTC())
	return errors.Wrap(err, "upsert tracking")
}
