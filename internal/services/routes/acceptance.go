package routes

import (
	"context"
	"log/slog"

	"github.com/BearBump/FreightBox/internal/models"
	"github.com/BearBump/FreightBox/internal/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// AcceptBid назначает перевозчика ставки на маршрут. Всё изменение идёт одной транзакцией
// с compare-and-swap по статусу: из параллельных принятий на одном маршруте проходит ровно одно.
func (s *Service) AcceptBid(ctx context.Context, actor models.Actor, bidID uuid.UUID) (*models.Route, error) {
	if !actor.CanAccept() {
		return nil, ErrNotCompany
	}

	// Чужая ставка и несуществующая неразличимы.
	_, r, err := s.repo.GetBidForCompany(ctx, bidID, actor.ID())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotOwner
		}
		return nil, err
	}
	if r.Status != models.RouteStatusPending {
		return nil, ErrRouteNotAvailable
	}

	now := s.now()
	res, err := s.repo.AcceptBid(ctx, bidID, actor.ID(), s.initialTracking(r, now), now)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, ErrNotOwner
	case errors.Is(err, storage.ErrStale):
		return nil, ErrRouteNotAvailable
	case err != nil:
		return nil, err
	}

	s.notifyAccepted(ctx, res.Route, res.Bid)
	s.cacheView(ctx, res.Route, res.Tracking)

	if s.rejectLosingBids {
		s.rejectOthers(ctx, res.Route, res.Bid)
	}
	return res.Route, nil
}

func (s *Service) rejectOthers(ctx context.Context, r *models.Route, winner *models.Bid) {
	bids, err := s.repo.ListBids(ctx, r.ID)
	if err != nil {
		slog.Error("list losing bids", "route_id", r.ID.String(), "error", err.Error())
		return
	}
	for _, b := range bids {
		if b.ID == winner.ID {
			continue
		}
		s.notifyRejected(ctx, r, b)
	}
}
