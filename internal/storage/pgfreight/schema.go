package pgfreight

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS routes (
  id UUID PRIMARY KEY,
  company_id UUID NOT NULL,
  carrier_id UUID NULL,
  origin_city TEXT NOT NULL,
  origin_country TEXT NOT NULL DEFAULT '',
  origin_lat DOUBLE PRECISION NOT NULL CHECK (origin_lat BETWEEN -90 AND 90),
  origin_lng DOUBLE PRECISION NOT NULL CHECK (origin_lng BETWEEN -180 AND 180),
  dest_city TEXT NOT NULL,
  dest_country TEXT NOT NULL DEFAULT '',
  dest_lat DOUBLE PRECISION NOT NULL CHECK (dest_lat BETWEEN -90 AND 90),
  dest_lng DOUBLE PRECISION NOT NULL CHECK (dest_lng BETWEEN -180 AND 180),
  cargo_type TEXT NOT NULL,
  weight DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (weight >= 0),
  volume DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (volume >= 0),
  price NUMERIC(14,2) NOT NULL CHECK (price >= 0),
  pickup_date TIMESTAMPTZ NOT NULL,
  delivery_date TIMESTAMPTZ NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL CHECK (status IN ('pending','in_transit','delivered','cancelled','expired')),
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  CHECK (delivery_date >= pickup_date),
  CHECK (status = 'pending' OR status = 'expired' OR status = 'cancelled' OR carrier_id IS NOT NULL)
)`,
		`CREATE INDEX IF NOT EXISTS idx_routes_status_pickup ON routes(status, pickup_date)`,
		`CREATE INDEX IF NOT EXISTS idx_routes_company_created ON routes(company_id, created_at DESC)`,
		`
CREATE TABLE IF NOT EXISTS bids (
  id UUID PRIMARY KEY,
  route_id UUID NOT NULL REFERENCES routes(id) ON DELETE CASCADE,
  carrier_id UUID NOT NULL,
  proposed_price NUMERIC(14,2) NOT NULL CHECK (proposed_price >= 0),
  estimated_delivery TIMESTAMPTZ NOT NULL,
  message TEXT NOT NULL DEFAULT '',
  is_accepted BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL,
  UNIQUE (route_id, carrier_id)
)`,
		// Не больше одной принятой ставки на маршрут.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_bids_accepted ON bids(route_id) WHERE is_accepted`,
		`
CREATE TABLE IF NOT EXISTS trackings (
  route_id UUID PRIMARY KEY REFERENCES routes(id) ON DELETE CASCADE,
  current_location TEXT NOT NULL DEFAULT '',
  current_lat DOUBLE PRECISION NULL CHECK (current_lat BETWEEN -90 AND 90),
  current_lng DOUBLE PRECISION NULL CHECK (current_lng BETWEEN -180 AND 180),
  progress_percent INT NOT NULL DEFAULT 0 CHECK (progress_percent BETWEEN 0 AND 100),
  last_update TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS notifications (
  id UUID PRIMARY KEY,
  user_id UUID NOT NULL,
  type TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL,
  route_id UUID NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications(user_id, created_at DESC)`,
		// Гарантия "одно уведомление об истечении на маршрут" при параллельных sweep'ах.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_notifications_route_expired ON notifications(user_id, route_id, type) WHERE type = 'route_expired'`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
