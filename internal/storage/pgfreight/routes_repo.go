package pgfreight

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BearBump/FreightBox/internal/models"
	"github.com/BearBump/FreightBox/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

var routeColumns = []string{
	"id", "company_id", "carrier_id",
	"origin_city", "origin_country", "origin_lat", "origin_lng",
	"dest_city", "dest_country", "dest_lat", "dest_lng",
	"cargo_type", "weight", "volume", "price",
	"pickup_date", "delivery_date", "description",
	"status", "created_at", "updated_at",
}

func routeCols(alias string) string {
	if alias == "" {
		return strings.Join(routeColumns, ", ")
	}
	out := make([]string, len(routeColumns))
	for i, c := range routeColumns {
		out[i] = alias + "." + c
	}
	return strings.Join(out, ", ")
}

func routeDest(r *models.Route) []any {
	return []any{
		&r.ID, &r.CompanyID, &r.CarrierID,
		&r.Origin.City, &r.Origin.Country, &r.Origin.Lat, &r.Origin.Lng,
		&r.Destination.City, &r.Destination.Country, &r.Destination.Lat, &r.Destination.Lng,
		&r.CargoType, &r.Weight, &r.Volume, &r.Price,
		&r.PickupDate, &r.DeliveryDate, &r.Description,
		&r.Status, &r.CreatedAt, &r.UpdatedAt,
	}
}

func scanRoute(row pgx.Row) (*models.Route, error) {
	var r models.Route
	if err := row.Scan(routeDest(&r)...); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Storage) CreateRoute(ctx context.Context, r *models.Route, t *models.Tracking) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
INSERT INTO routes (`+routeCols("")+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
`,
		r.ID, r.CompanyID, r.CarrierID,
		r.Origin.City, r.Origin.Country, r.Origin.Lat, r.Origin.Lng,
		r.Destination.City, r.Destination.Country, r.Destination.Lat, r.Destination.Lng,
		r.CargoType, r.Weight, r.Volume, r.Price,
		r.PickupDate.UTC(), r.DeliveryDate.UTC(), r.Description,
		r.Status, r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return errors.Wrap(err, "insert route")
	}

	if t != nil {
		if err := insertTrackingIfAbsent(ctx, tx, r.ID, t); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

func (s *Storage) GetRoute(ctx context.Context, id uuid.UUID) (*models.Route, error) {
	r, err := scanRoute(s.db.QueryRow(ctx, `SELECT `+routeCols("")+` FROM routes WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrap(err, "select route")
	}
	return r, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *Storage) ListRoutes(ctx context.Context, f models.RouteFilter) ([]*models.Route, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.CompanyID != nil {
		where = append(where, "company_id = "+arg(*f.CompanyID))
	}
	if len(f.Statuses) > 0 {
		sts := make([]string, 0, len(f.Statuses))
		for _, st := range f.Statuses {
			sts = append(sts, string(st))
		}
		where = append(where, "status = ANY("+arg(sts)+")")
	}
	if city := strings.TrimSpace(f.City); city != "" {
		p := arg("%" + likeEscaper.Replace(city) + "%")
		where = append(where, "(origin_city ILIKE "+p+" OR dest_city ILIKE "+p+")")
	}

	q := `SELECT ` + routeCols("") + ` FROM routes`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		q += ` LIMIT ` + arg(f.Limit)
	}
	if f.Offset > 0 {
		q += ` OFFSET ` + arg(f.Offset)
	}

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select routes")
	}
	defer rows.Close()

	out := make([]*models.Route, 0)
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan route")
		}
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) CancelRoute(ctx context.Context, routeID, companyID uuid.UUID, now time.Time) (*models.Route, error) {
	r, err := scanRoute(s.db.QueryRow(ctx, `
UPDATE routes SET status = $3, updated_at = $4
WHERE id = $1 AND company_id = $2 AND status = $5
RETURNING `+routeCols(""),
		routeID, companyID, models.RouteStatusCancelled, now.UTC(), models.RouteStatusPending))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrap(err, "cancel route")
	}

	var one int
	err = s.db.QueryRow(ctx, `SELECT 1 FROM routes WHERE id = $1 AND company_id = $2`, routeID, companyID).Scan(&one)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, storage.ErrNotFound
	case err != nil:
		return nil, errors.Wrap(err, "select route")
	}
	return nil, storage.ErrStale
}

func (s *Storage) CompleteRoute(ctx context.Context, routeID uuid.UUID, snap *models.Tracking, now time.Time) (*models.Route, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	r, err := scanRoute(tx.QueryRow(ctx, `
UPDATE routes SET status = $2, updated_at = $3
WHERE id = $1 AND status = $4
RETURNING `+routeCols(""),
		routeID, models.RouteStatusDelivered, now.UTC(), models.RouteStatusInTransit))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrap(err, "complete route")
		}
		var one int
		err = tx.QueryRow(ctx, `SELECT 1 FROM routes WHERE id = $1`, routeID).Scan(&one)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, storage.ErrNotFound
		case err != nil:
			return nil, errors.Wrap(err, "select route")
		}
		return nil, storage.ErrStale
	}

	if snap != nil {
		if err := upsertTracking(ctx, tx, routeID, snap); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return r, nil
}

// ExpireOverdueRoutes переводит в expired пачку просроченных pending-маршрутов.
// SKIP LOCKED: параллельные sweep'ы (API и воркер) не берут одни и те же строки.
func (s *Storage) ExpireOverdueRoutes(ctx context.Context, now time.Time, limit int) ([]*models.Route, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}

	rows, err := s.db.Query(ctx, `
UPDATE routes SET status = $2, updated_at = $1
WHERE status = $3 AND id IN (
  SELECT id FROM routes
  WHERE status = $3
    AND carrier_id IS NULL
    AND pickup_date < $1
  ORDER BY pickup_date ASC
  LIMIT $4
  FOR UPDATE SKIP LOCKED
)
RETURNING `+routeCols(""),
		now.UTC(), models.RouteStatusExpired, models.RouteStatusPending, lim)
	if err != nil {
		return nil, errors.Wrap(err, "expire routes")
	}
	defer rows.Close()

	out := make([]*models.Route, 0)
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan expired route")
		}
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// ListUnnotifiedExpiredRoutes: expired-маршруты без route_expired у компании.
// Через него sweep дотягивает уведомления, которые не удалось записать в прошлый раз.
func (s *Storage) ListUnnotifiedExpiredRoutes(ctx context.Context, limit int) ([]*models.Route, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}

	rows, err := s.db.Query(ctx, `
SELECT `+routeCols("r")+`
FROM routes r
WHERE r.status = $1
  AND NOT EXISTS (
    SELECT 1 FROM notifications n
    WHERE n.user_id = r.company_id AND n.route_id = r.id AND n.type = $2
  )
ORDER BY r.pickup_date ASC
LIMIT $3
`, models.RouteStatusExpired, models.NotificationRouteExpired, lim)
	if err != nil {
		return nil, errors.Wrap(err, "select unnotified expired routes")
	}
	defer rows.Close()

	out := make([]*models.Route, 0)
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan expired route")
		}
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
