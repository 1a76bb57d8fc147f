package routes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/FreightBox/internal/models"
	"github.com/BearBump/FreightBox/internal/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const bidRateWindow = 70 * time.Second

func (s *Service) SubmitBid(ctx context.Context, actor models.Actor, routeID uuid.UUID, in models.BidCreateInput) (*models.Bid, error) {
	if !actor.CanBid() {
		return nil, ErrNotCarrier
	}
	if badAmount(in.ProposedPrice) {
		return nil, errors.Wrap(ErrInvalidInput, "proposed_price must be non-negative")
	}
	if in.EstimatedDelivery.IsZero() {
		return nil, errors.Wrap(ErrInvalidInput, "estimated_delivery is required")
	}

	r, err := s.repo.GetRoute(ctx, routeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRouteNotBiddable
		}
		return nil, err
	}
	if r.Status != models.RouteStatusPending {
		return nil, ErrRouteNotBiddable
	}

	// Лимит считаем только для ставок, которые реально дойдут до записи.
	now := s.now()
	if err := s.allowBid(ctx, actor.ID(), now); err != nil {
		return nil, err
	}

	b := &models.Bid{
		ID:                uuid.New(),
		RouteID:           routeID,
		CarrierID:         actor.ID(),
		ProposedPrice:     in.ProposedPrice,
		EstimatedDelivery: in.EstimatedDelivery.UTC(),
		Message:           strings.TrimSpace(in.Message),
		CreatedAt:         now,
	}
	// Уникальность (route, carrier) держит хранилище: проверка "есть ли уже ставка" здесь была бы гонкой.
	if err := s.repo.CreateBid(ctx, b); err != nil {
		switch {
		case errors.Is(err, storage.ErrConflict):
			return nil, ErrDuplicateBid
		case errors.Is(err, storage.ErrStale), errors.Is(err, storage.ErrNotFound):
			return nil, ErrRouteNotBiddable
		}
		return nil, err
	}

	s.notifyNewBid(ctx, r, b)
	return b, nil
}

func (s *Service) allowBid(ctx context.Context, carrierID uuid.UUID, now time.Time) error {
	if s.rl == nil || s.bidLimitPerMin <= 0 {
		return nil
	}
	key := fmt.Sprintf("rl:bids:%s:%s", carrierID.String(), now.Format("200601021504"))
	allowed, n, err := s.rl.Allow(ctx, key, s.bidLimitPerMin, bidRateWindow)
	if err != nil {
		// Redis недоступен: ставки не блокируем.
		slog.Warn("bid rate limiter unavailable", "carrier_id", carrierID.String(), "error", err.Error())
		return nil
	}
	if !allowed {
		slog.Warn("bid rate limit exceeded", "carrier_id", carrierID.String(), "count", n)
		return ErrRateLimited
	}
	return nil
}
