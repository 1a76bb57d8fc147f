package routes

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"github.com/BearBump/FreightBox/internal/models"
	"github.com/BearBump/FreightBox/internal/services/progress"
	"github.com/BearBump/FreightBox/internal/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	DefaultBoardLimit = 10
	maxListLimit      = 200
)

type RouteDetail struct {
	Route  *models.Route `json:"route"`
	Bids   []*models.Bid `json:"bids"`
	CanBid bool          `json:"can_bid"`
}

func (s *Service) CreateRoute(ctx context.Context, actor models.Actor, in models.RouteCreateInput) (*models.Route, error) {
	if !actor.CanCreateRoute() {
		return nil, ErrNotCompany
	}
	if err := validateRouteInput(&in); err != nil {
		return nil, err
	}

	now := s.now()
	r := &models.Route{
		ID:           uuid.New(),
		CompanyID:    actor.ID(),
		Origin:       in.Origin,
		Destination:  in.Destination,
		CargoType:    in.CargoType,
		Weight:       in.Weight,
		Volume:       in.Volume,
		Price:        in.Price,
		PickupDate:   in.PickupDate.UTC(),
		DeliveryDate: in.DeliveryDate.UTC(),
		Description:  in.Description,
		Status:       models.RouteStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateRoute(ctx, r, s.initialTracking(r, now)); err != nil {
		return nil, err
	}
	return r, nil
}

func validateRouteInput(in *models.RouteCreateInput) error {
	in.Origin.City = strings.TrimSpace(in.Origin.City)
	in.Destination.City = strings.TrimSpace(in.Destination.City)
	in.CargoType = strings.TrimSpace(in.CargoType)

	switch {
	case in.Origin.City == "" || in.Destination.City == "":
		return errors.Wrap(ErrInvalidInput, "origin and destination cities are required")
	case in.CargoType == "":
		return errors.Wrap(ErrInvalidInput, "cargo_type is required")
	case !progress.ValidPoint(in.Origin.Point()):
		return errors.Wrap(ErrInvalidInput, "origin coordinates are out of range")
	case !progress.ValidPoint(in.Destination.Point()):
		return errors.Wrap(ErrInvalidInput, "destination coordinates are out of range")
	case badAmount(in.Weight) || badAmount(in.Volume) || badAmount(in.Price):
		return errors.Wrap(ErrInvalidInput, "weight, volume and price must be non-negative")
	case in.PickupDate.IsZero() || in.DeliveryDate.IsZero():
		return errors.Wrap(ErrInvalidInput, "pickup_date and delivery_date are required")
	case in.DeliveryDate.Before(in.PickupDate):
		return errors.Wrap(ErrInvalidInput, "delivery_date must not be before pickup_date")
	}
	return nil
}

func badAmount(v float64) bool {
	return v < 0 || math.IsNaN(v) || math.IsInf(v, 0)
}

// ListRoutes: компания видит свои маршруты, перевозчик открытые (pending).
func (s *Service) ListRoutes(ctx context.Context, actor models.Actor, f models.RouteFilter) ([]*models.Route, error) {
	s.sweep(ctx)

	switch actor.Role() {
	case models.RoleCompany:
		id := actor.ID()
		f.CompanyID = &id
	case models.RoleCarrier:
		f.CompanyID = nil
		f.Statuses = []models.RouteStatus{models.RouteStatusPending}
	default:
		return nil, ErrNoAccess
	}
	for _, st := range f.Statuses {
		if !st.Valid() {
			return nil, errors.Wrapf(ErrInvalidInput, "unknown status %q", st)
		}
	}
	if f.Limit <= 0 || f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.ListRoutes(ctx, f)
}

// Board: главная, открытые и едущие маршруты, самые свежие.
func (s *Service) Board(ctx context.Context, limit int) ([]*models.Route, error) {
	s.sweep(ctx)

	if limit <= 0 || limit > maxListLimit {
		limit = DefaultBoardLimit
	}
	return s.repo.ListRoutes(ctx, models.RouteFilter{
		Statuses: []models.RouteStatus{models.RouteStatusPending, models.RouteStatusInTransit},
		Limit:    limit,
	})
}

func (s *Service) GetRouteDetail(ctx context.Context, actor models.Actor, routeID uuid.UUID) (*RouteDetail, error) {
	r, err := s.repo.GetRoute(ctx, routeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	// Открытый маршрут видят все перевозчики, остальное — только участники.
	visible := actor.IsParticipant(r) || (actor.CanBid() && r.Status == models.RouteStatusPending)
	if !visible {
		return nil, ErrNoAccess
	}

	bids, err := s.repo.ListBids(ctx, routeID)
	if err != nil {
		return nil, err
	}
	if !r.IsOwner(actor.ID()) {
		own := make([]*models.Bid, 0, 1)
		for _, b := range bids {
			if b.CarrierID == actor.ID() {
				own = append(own, b)
			}
		}
		bids = own
	}

	canBid := false
	if actor.CanBid() && r.Status == models.RouteStatusPending {
		has, err := s.repo.HasBid(ctx, routeID, actor.ID())
		if err != nil {
			return nil, err
		}
		canBid = !has
	}

	return &RouteDetail{Route: r, Bids: bids, CanBid: canBid}, nil
}

func (s *Service) CancelRoute(ctx context.Context, actor models.Actor, routeID uuid.UUID) (*models.Route, error) {
	if !actor.CanAccept() {
		return nil, ErrNotCompany
	}
	r, err := s.repo.CancelRoute(ctx, routeID, actor.ID(), s.now())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, ErrNotOwner
	case errors.Is(err, storage.ErrStale):
		return nil, ErrRouteNotAvailable
	case err != nil:
		return nil, err
	}
	return r, nil
}

func (s *Service) sweep(ctx context.Context) {
	if s.expirer == nil {
		return
	}
	if _, err := s.expirer.Sweep(ctx, s.now()); err != nil {
		// Список всё равно отдаём; воркер дочистит по таймеру.
		slog.Warn("opportunistic sweep failed", "error", err.Error())
	}
}
