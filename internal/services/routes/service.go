package routes

import (
	"context"
	"time"

	"github.com/BearBump/FreightBox/internal/cache"
	"github.com/BearBump/FreightBox/internal/models"
	"github.com/BearBump/FreightBox/internal/services/progress"
	"github.com/BearBump/FreightBox/internal/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrNotCarrier        = errors.New("only carriers can bid")
	ErrNotCompany        = errors.New("only companies can do this")
	ErrRouteNotBiddable  = errors.New("route is not open for bids")
	ErrDuplicateBid      = errors.New("carrier already bid on this route")
	ErrNotOwner          = errors.New("bid or route not found among your routes")
	ErrRouteNotAvailable = errors.New("route is no longer available")
	ErrRouteNotInTransit = errors.New("route is not in transit")
	ErrNoAccess          = errors.New("no access to this route")
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrRateLimited       = errors.New("too many bids, try again later")
)

type Repository interface {
	CreateRoute(ctx context.Context, r *models.Route, t *models.Tracking) error
	GetRoute(ctx context.Context, id uuid.UUID) (*models.Route, error)
	ListRoutes(ctx context.Context, f models.RouteFilter) ([]*models.Route, error)
	CancelRoute(ctx context.Context, routeID, companyID uuid.UUID, now time.Time) (*models.Route, error)

	CreateBid(ctx context.Context, b *models.Bid) error
	GetBidForCompany(ctx context.Context, bidID, companyID uuid.UUID) (*models.Bid, *models.Route, error)
	ListBids(ctx context.Context, routeID uuid.UUID) ([]*models.Bid, error)
	HasBid(ctx context.Context, routeID, carrierID uuid.UUID) (bool, error)
	AcceptBid(ctx context.Context, bidID, companyID uuid.UUID, initial *models.Tracking, now time.Time) (*storage.AcceptResult, error)

	CompleteRoute(ctx context.Context, routeID uuid.UUID, snap *models.Tracking, now time.Time) (*models.Route, error)

	GetTracking(ctx context.Context, routeID uuid.UUID) (*models.Tracking, error)
	SaveTracking(ctx context.Context, t *models.Tracking, expected models.RouteStatus) error
}

type Notifier interface {
	Notify(ctx context.Context, n *models.Notification) error
}

// Expirer переводит просроченные маршруты в expired перед выдачей списков.
type Expirer interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

type Service struct {
	repo     Repository
	notifier Notifier

	cache    cache.BytesCache
	cacheTTL time.Duration

	rl               cache.RateLimiter
	bidLimitPerMin   int64
	expirer          Expirer
	rejectLosingBids bool

	now func() time.Time
}

func New(repo Repository, notifier Notifier) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithCache(c cache.BytesCache, ttl time.Duration) *Service {
	s.cache = c
	s.cacheTTL = ttl
	return s
}

func (s *Service) WithRateLimiter(rl cache.RateLimiter, bidsPerMinute int) *Service {
	s.rl = rl
	s.bidLimitPerMin = int64(bidsPerMinute)
	return s
}

func (s *Service) WithExpirer(e Expirer) *Service {
	s.expirer = e
	return s
}

// WithRejectLosingBids включает уведомление bid_rejected остальным перевозчикам после принятия ставки.
func (s *Service) WithRejectLosingBids(on bool) *Service {
	s.rejectLosingBids = on
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// initialTracking строит стартовый трекинг (пункт отправления, 0%). Вставляет его хранилище,
// и только если записи ещё нет.
func (s *Service) initialTracking(r *models.Route, now time.Time) *models.Tracking {
	t := progress.Initial(r, now)
	return &t
}
