package routes

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BearBump/FreightBox/internal/models"
	"github.com/google/uuid"
)

// notify вызывается после коммита. Ошибка доставки не откатывает операцию, только логируется.
func (s *Service) notify(ctx context.Context, userID uuid.UUID, typ models.NotificationType, r *models.Route, title, message string) {
	if s.notifier == nil {
		return
	}
	routeID := r.ID
	n := &models.Notification{
		UserID:  userID,
		Type:    typ,
		Title:   title,
		Message: message,
		RouteID: &routeID,
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		slog.Error("notify", "user_id", userID.String(), "type", string(typ), "route_id", r.ID.String(), "error", err.Error())
	}
}

func routeTitle(r *models.Route) string {
	return fmt.Sprintf("%s → %s", r.Origin.City, r.Destination.City)
}

func (s *Service) notifyNewBid(ctx context.Context, r *models.Route, b *models.Bid) {
	s.notify(ctx, r.CompanyID, models.NotificationNewBid, r,
		"New bid",
		fmt.Sprintf("New bid of %.2f on route %s.", b.ProposedPrice, routeTitle(r)))
}

func (s *Service) notifyAccepted(ctx context.Context, r *models.Route, b *models.Bid) {
	s.notify(ctx, b.CarrierID, models.NotificationBidAccepted, r,
		"Bid accepted",
		fmt.Sprintf("Your bid of %.2f on route %s was accepted.", b.ProposedPrice, routeTitle(r)))
	s.notify(ctx, b.CarrierID, models.NotificationRouteAssigned, r,
		"Route assigned",
		fmt.Sprintf("Route %s is assigned to you. Pickup on %s.", routeTitle(r), r.PickupDate.Format("2006-01-02")))
}

func (s *Service) notifyRejected(ctx context.Context, r *models.Route, b *models.Bid) {
	s.notify(ctx, b.CarrierID, models.NotificationBidRejected, r,
		"Bid rejected",
		fmt.Sprintf("Route %s was assigned to another carrier.", routeTitle(r)))
}

func (s *Service) notifyCompleted(ctx context.Context, r *models.Route) {
	msg := fmt.Sprintf("Route %s is delivered.", routeTitle(r))
	s.notify(ctx, r.CompanyID, models.NotificationRouteCompleted, r, "Route completed", msg)
	if r.CarrierID != nil {
		s.notify(ctx, *r.CarrierID, models.NotificationRouteCompleted, r, "Route completed", msg)
	}
}

func (s *Service) notifyTrackingUpdated(ctx context.Context, r *models.Route, t *models.Tracking) {
	s.notify(ctx, r.CompanyID, models.NotificationTrackingUpdated, r,
		"Tracking updated",
		fmt.Sprintf("Route %s: %d%%, %s.", routeTitle(r), t.ProgressPercent, t.CurrentLocation))
}
