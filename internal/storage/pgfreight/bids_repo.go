package pgfreight

import (
	"context"
	"time"

	"github.com/BearBump/FreightBox/internal/models"
	"github.com/BearBump/FreightBox/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const bidCols = `id, route_id, carrier_id, proposed_price, estimated_delivery, message, is_accepted, created_at`

func bidDest(b *models.Bid) []any {
	return []any{&b.ID, &b.RouteID, &b.CarrierID, &b.ProposedPrice, &b.EstimatedDelivery, &b.Message, &b.IsAccepted, &b.CreatedAt}
}

// CreateBid вставляет ставку, только пока маршрут pending. Маршрут берётся FOR SHARE,
// так что ставка не проскочит мимо параллельного AcceptBid.
func (s *Storage) CreateBid(ctx context.Context, b *models.Bid) error {
	var id uuid.UUID
	err := s.db.QueryRow(ctx, `
INSERT INTO bids (`+bidCols+`)
SELECT $1, $2, $3, $4, $5, $6, FALSE, $7
FROM routes
WHERE id = $2 AND status = $8
FOR SHARE
ON CONFLICT (route_id, carrier_id) DO NOTHING
RETURNING id
`, b.ID, b.RouteID, b.CarrierID, b.ProposedPrice, b.EstimatedDelivery.UTC(), b.Message, b.CreatedAt.UTC(),
		models.RouteStatusPending).Scan(&id)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return storage.ErrConflict
	case !errors.Is(err, pgx.ErrNoRows):
		return errors.Wrap(err, "insert bid")
	}

	// Ничего не вставилось: либо маршрута нет, либо ставка уже есть, либо маршрут закрыт.
	var status models.RouteStatus
	err = s.db.QueryRow(ctx, `SELECT status FROM routes WHERE id = $1`, b.RouteID).Scan(&status)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return storage.ErrNotFound
	case err != nil:
		return errors.Wrap(err, "select route status")
	}
	has, err := s.HasBid(ctx, b.RouteID, b.CarrierID)
	if err != nil {
		return err
	}
	if has {
		return storage.ErrConflict
	}
	return storage.ErrStale
}

func (s *Storage) GetBidForCompany(ctx context.Context, bidID, companyID uuid.UUID) (*models.Bid, *models.Route, error) {
	var (
		b models.Bid
		r models.Route
	)
	dest := append(bidDest(&b), routeDest(&r)...)
	err := s.db.QueryRow(ctx, `
SELECT b.id, b.route_id, b.carrier_id, b.proposed_price, b.estimated_delivery, b.message, b.is_accepted, b.created_at,
       `+routeCols("r")+`
FROM bids b
JOIN routes r ON r.id = b.route_id
WHERE b.id = $1 AND r.company_id = $2
`, bidID, companyID).Scan(dest...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, storage.ErrNotFound
		}
		return nil, nil, errors.Wrap(err, "select bid")
	}
	return &b, &r, nil
}

func (s *Storage) ListBids(ctx context.Context, routeID uuid.UUID) ([]*models.Bid, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+bidCols+`
FROM bids
WHERE route_id = $1
ORDER BY created_at DESC, id
`, routeID)
	if err != nil {
		return nil, errors.Wrap(err, "select bids")
	}
	defer rows.Close()

	out := make([]*models.Bid, 0)
	for rows.Next() {
		var b models.Bid
		if err := rows.Scan(bidDest(&b)...); err != nil {
			return nil, errors.Wrap(err, "scan bid")
		}
		out = append(out, &b)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) HasBid(ctx context.Context, routeID, carrierID uuid.UUID) (bool, error) {
	var has bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bids WHERE route_id = $1 AND carrier_id = $2)`, routeID, carrierID).Scan(&has)
	return has, errors.Wrap(err, "select bid exists")
}

// AcceptBid — весь переход pending -> in_transit в одной транзакции: блокируем маршрут,
// CAS по статусу, помечаем ставку, создаём трекинг, если его ещё нет.
func (s *Storage) AcceptBid(ctx context.Context, bidID, companyID uuid.UUID, initial *models.Tracking, now time.Time) (*storage.AcceptResult, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		routeID uuid.UUID
		status  models.RouteStatus
	)
	err = tx.QueryRow(ctx, `
SELECT r.id, r.status
FROM bids b
JOIN routes r ON r.id = b.route_id
WHERE b.id = $1 AND r.company_id = $2
FOR UPDATE OF r
`, bidID, companyID).Scan(&routeID, &status)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, storage.ErrNotFound
	case err != nil:
		return nil, errors.Wrap(err, "lock route")
	}
	if status != models.RouteStatusPending {
		return nil, storage.ErrStale
	}

	r, err := scanRoute(tx.QueryRow(ctx, `
UPDATE routes r
SET status = $3, carrier_id = b.carrier_id, price = b.proposed_price, updated_at = $4
FROM bids b
WHERE b.id = $1 AND r.id = b.route_id AND r.id = $2 AND r.status = $5
RETURNING `+routeCols("r"),
		bidID, routeID, models.RouteStatusInTransit, now.UTC(), models.RouteStatusPending))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrStale
		}
		return nil, errors.Wrap(err, "assign route")
	}

	var b models.Bid
	err = tx.QueryRow(ctx, `UPDATE bids SET is_accepted = TRUE WHERE id = $1 RETURNING `+bidCols, bidID).Scan(bidDest(&b)...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, storage.ErrStale
		}
		return nil, errors.Wrap(err, "accept bid")
	}

	if initial != nil {
		if err := insertTrackingIfAbsent(ctx, tx, routeID, initial); err != nil {
			return nil, err
		}
	}
	t, err := getTracking(ctx, tx, routeID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return &storage.AcceptResult{Route: r, Bid: &b, Tracking: t}, nil
}
