package messages

import (
	"time"

	"github.com/google/uuid"
)

// NotificationCreated публикуется в freight.notifications после записи уведомления в БД.
type NotificationCreated struct {
	NotificationID uuid.UUID  `json:"notification_id"`
	UserID         uuid.UUID  `json:"user_id"`
	Type           string     `json:"type"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	RouteID        *uuid.UUID `json:"route_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
