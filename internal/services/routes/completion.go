package routes

import (
	"context"

	"github.com/BearBump/FreightBox/internal/models"
	"github.com/BearBump/FreightBox/internal/services/progress"
	"github.com/BearBump/FreightBox/internal/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// CompleteRoute закрывает маршрут in_transit -> delivered и ставит трекинг в пункт назначения, 100%.
func (s *Service) CompleteRoute(ctx context.Context, actor models.Actor, routeID uuid.UUID) (*models.Route, error) {
	r, err := s.participantRoute(ctx, actor, routeID)
	if err != nil {
		return nil, err
	}
	if !actor.CanComplete(r) {
		return nil, ErrNoAccess
	}
	if r.Status != models.RouteStatusInTransit {
		return nil, ErrRouteNotInTransit
	}

	now := s.now()
	snap := progress.SnapToDestination(r, now)
	done, err := s.repo.CompleteRoute(ctx, routeID, &snap, now)
	switch {
	case errors.Is(err, storage.ErrStale):
		return nil, ErrRouteNotInTransit
	case errors.Is(err, storage.ErrNotFound):
		return nil, ErrNoAccess
	case err != nil:
		return nil, err
	}

	s.notifyCompleted(ctx, done)
	s.cacheView(ctx, done, &snap)
	return done, nil
}

// participantRoute отдаёт маршрут, только если actor его компания или назначенный перевозчик.
// Отсутствующий маршрут выглядит так же, как чужой.
func (s *Service) participantRoute(ctx context.Context, actor models.Actor, routeID uuid.UUID) (*models.Route, error) {
	r, err := s.repo.GetRoute(ctx, routeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoAccess
		}
		return nil, err
	}
	if !actor.IsParticipant(r) {
		return nil, ErrNoAccess
	}
	return r, nil
}
