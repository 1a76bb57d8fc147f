package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/BearBump/FreightBox/internal/broker/messages"
	"github.com/BearBump/FreightBox/internal/models"
	"github.com/BearBump/FreightBox/internal/services/progress"
	"github.com/BearBump/FreightBox/internal/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type TrackingUpdateResult struct {
	Tracking *models.Tracking    `json:"tracking"`
	View     models.TrackingView `json:"view"`

	// CompletionRecommended: дошли до 100%, но маршрут остаётся in_transit до явного CompleteRoute.
	CompletionRecommended bool `json:"completion_recommended"`
}

// ViewTracking: пассивный просмотр для участников маршрута. Трекинг здесь не создаётся;
// прогресс по времени применяется с гистерезисом и пишется, только если заметно сдвинулись координаты.
func (s *Service) ViewTracking(ctx context.Context, actor models.Actor, routeID uuid.UUID) (*models.TrackingView, error) {
	r, err := s.participantRoute(ctx, actor, routeID)
	if err != nil {
		return nil, err
	}
	if v, ok := s.cachedView(ctx, routeID); ok {
		return v, nil
	}

	now := s.now()
	exists := true
	t, err := s.repo.GetTracking(ctx, routeID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// нет записи — показываем начало маршрута, но не создаём её
		exists = false
		t = &models.Tracking{RouteID: routeID}
	case err != nil:
		return nil, err
	}

	if derived, ok := progress.DeriveTimeProgress(r, now); ok && progress.ShouldApplyDerived(t.ProgressPercent, derived) {
		updated, _ := progress.ApplyUpdate(r, *t, derived, "", now)
		if exists && progress.CoordsChanged(*t, progress.CurrentPoint(r, updated)) {
			err := s.repo.SaveTracking(ctx, &updated, models.RouteStatusInTransit)
			if err != nil && !errors.Is(err, storage.ErrStale) {
				slog.Warn("save derived tracking", "route_id", routeID.String(), "error", err.Error())
			}
		}
		t = &updated
	}

	v := progress.View(r, *t)
	s.putView(ctx, &v)
	return &v, nil
}

func (s *Service) UpdateTracking(ctx context.Context, actor models.Actor, routeID uuid.UUID, percent int, location string) (*TrackingUpdateResult, error) {
	if actor.Role() != models.RoleCarrier {
		return nil, ErrNoAccess
	}
	r, err := s.participantRoute(ctx, actor, routeID)
	if err != nil {
		return nil, err
	}
	if r.Status != models.RouteStatusInTransit {
		return nil, ErrRouteNotInTransit
	}

	now := s.now()
	// Трекинг создают только CreateRoute и AcceptBid, здесь его можно лишь обновить.
	current, err := s.repo.GetTracking(ctx, routeID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, err
	}

	updated, recommended := progress.ApplyUpdate(r, *current, percent, location, now)
	if err := s.repo.SaveTracking(ctx, &updated, models.RouteStatusInTransit); err != nil {
		if errors.Is(err, storage.ErrStale) {
			return nil, ErrRouteNotInTransit
		}
		return nil, err
	}

	s.notifyTrackingUpdated(ctx, r, &updated)
	v := progress.View(r, updated)
	s.putView(ctx, &v)

	return &TrackingUpdateResult{
		Tracking:              &updated,
		View:                  v,
		CompletionRecommended: recommended,
	}, nil
}

// ApplyProgressReport делает то же, что UpdateTracking, но для отчётов из Kafka.
func (s *Service) ApplyProgressReport(ctx context.Context, msg messages.ProgressReported) error {
	if msg.RouteID == uuid.Nil {
		return errors.Wrap(ErrInvalidInput, "route_id is required")
	}
	if msg.CarrierID == uuid.Nil {
		return errors.Wrap(ErrInvalidInput, "carrier_id is required")
	}
	_, err := s.UpdateTracking(ctx, models.Carrier{UserID: msg.CarrierID}, msg.RouteID, msg.ProgressPercent, msg.Location)
	return err
}

func (s *Service) cacheView(ctx context.Context, r *models.Route, t *models.Tracking) {
	if t == nil {
		return
	}
	v := progress.View(r, *t)
	s.putView(ctx, &v)
}

func (s *Service) cachedView(ctx context.Context, routeID uuid.UUID) (*models.TrackingView, bool) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return nil, false
	}
	b, ok, err := s.cache.Get(ctx, trackingKey(routeID))
	if err != nil || !ok {
		return nil, false
	}
	var v models.TrackingView
	if json.Unmarshal(b, &v) != nil {
		return nil, false
	}
	return &v, true
}

func (s *Service) putView(ctx context.Context, v *models.TrackingView) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	b, _ := json.Marshal(v)
	_ = s.cache.Set(ctx, trackingKey(v.RouteID), b, s.cacheTTL)
}

func trackingKey(routeID uuid.UUID) string {
	return fmt.Sprintf("route:%s:tracking", routeID.String())
}
