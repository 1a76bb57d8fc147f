package pgfreight

import (
	"context"

	"github.com/BearBump/FreightBox/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) InsertNotification(ctx context.Context, n *models.Notification) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO notifications (id, user_id, type, title, message, route_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, n.ID, n.UserID, n.Type, n.Title, n.Message, n.RouteID, n.CreatedAt.UTC())
	return errors.Wrap(err, "insert notification")
}

// InsertNotificationOnce опирается на частичный уникальный индекс: повтор route_expired
// для того же маршрута молча пропускается.
func (s *Storage) InsertNotificationOnce(ctx context.Context, n *models.Notification) (bool, error) {
	var id uuid.UUID
	err := s.db.QueryRow(ctx, `
INSERT INTO notifications (id, user_id, type, title, message, route_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT DO NOTHING
RETURNING id
`, n.ID, n.UserID, n.Type, n.Title, n.Message, n.RouteID, n.CreatedAt.UTC()).Scan(&id)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	case err != nil:
		return false, errors.Wrap(err, "insert notification")
	}
	return true, nil
}
