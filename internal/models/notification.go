package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationNewBid          NotificationType = "new_bid"
	NotificationBidAccepted     NotificationType = "bid_accepted"
	NotificationBidRejected     NotificationType = "bid_rejected"
	NotificationRouteAssigned   NotificationType = "route_assigned"
	NotificationRouteCompleted  NotificationType = "route_completed"
	NotificationRouteExpired    NotificationType = "route_expired"
	NotificationTrackingUpdated NotificationType = "tracking_updated"
)

type Notification struct {
	ID        uuid.UUID        `json:"id"`
	UserID    uuid.UUID        `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	RouteID   *uuid.UUID       `json:"route_id,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
