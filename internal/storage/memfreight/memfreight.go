package memfreight

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BearBump/FreightBox/internal/models"
	"github.com/BearBump/FreightBox/internal/storage"
	"github.com/google/uuid"
)

// Storage — хранилище в памяти с той же атомарностью, что и pgfreight:
// каждая операция целиком выполняется под одним мьютексом.
// Используется в тестах и в режиме без Postgres.
type Storage struct {
	mu sync.Mutex

	routes        map[uuid.UUID]*models.Route
	bids          []*models.Bid
	trackings     map[uuid.UUID]*models.Tracking
	notifications []*models.Notification
}

func New() *Storage {
	return &Storage{
		routes:    make(map[uuid.UUID]*models.Route),
		trackings: make(map[uuid.UUID]*models.Tracking),
	}
}

func (s *Storage) Close() {}

func (s *Storage) CreateRoute(ctx context.Context, r *models.Route, t *models.Tracking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.routes[r.ID]; ok {
		return storage.ErrConflict
	}
	s.routes[r.ID] = cloneRoute(r)
	if t != nil {
		if _, ok := s.trackings[r.ID]; !ok {
			s.trackings[r.ID] = cloneTracking(t)
		}
	}
	return nil
}

func (s *Storage) GetRoute(ctx context.Context, id uuid.UUID) (*models.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.routes[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneRoute(r), nil
}

func (s *Storage) ListRoutes(ctx context.Context, f models.RouteFilter) ([]*models.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	city := strings.ToLower(strings.TrimSpace(f.City))
	out := make([]*models.Route, 0)
	for _, r := range s.routes {
		if f.CompanyID != nil && r.CompanyID != *f.CompanyID {
			continue
		}
		if len(f.Statuses) > 0 && !hasStatus(f.Statuses, r.Status) {
			continue
		}
		if city != "" &&
			!strings.Contains(strings.ToLower(r.Origin.City), city) &&
			!strings.Contains(strings.ToLower(r.Destination.City), city) {
			continue
		}
		out = append(out, cloneRoute(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []*models.Route{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Storage) CancelRoute(ctx context.Context, routeID, companyID uuid.UUID, now time.Time) (*models.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.routes[routeID]
	if !ok || r.CompanyID != companyID {
		return nil, storage.ErrNotFound
	}
	if r.Status != models.RouteStatusPending {
		return nil, storage.ErrStale
	}
	r.Status = models.RouteStatusCancelled
	r.UpdatedAt = now
	return cloneRoute(r), nil
}

func (s *Storage) CreateBid(ctx context.Context, b *models.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.routes[b.RouteID]
	if !ok {
		return storage.ErrNotFound
	}
	for _, existing := range s.bids {
		if existing.RouteID == b.RouteID && existing.CarrierID == b.CarrierID {
			return storage.ErrConflict
		}
	}
	if r.Status != models.RouteStatusPending {
		return storage.ErrStale
	}
	s.bids = append(s.bids, cloneBid(b))
	return nil
}

func (s *Storage) GetBidForCompany(ctx context.Context, bidID, companyID uuid.UUID) (*models.Bid, *models.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.findBid(bidID)
	if b == nil {
		return nil, nil, storage.ErrNotFound
	}
	r, ok := s.routes[b.RouteID]
	if !ok || r.CompanyID != companyID {
		return nil, nil, storage.ErrNotFound
	}
	return cloneBid(b), cloneRoute(r), nil
}

// ListBids от новых к старым.
func (s *Storage) ListBids(ctx context.Context, routeID uuid.UUID) ([]*models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Bid, 0)
	for i := len(s.bids) - 1; i >= 0; i-- {
		if s.bids[i].RouteID == routeID {
			out = append(out, cloneBid(s.bids[i]))
		}
	}
	return out, nil
}

func (s *Storage) HasBid(ctx context.Context, routeID, carrierID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.bids {
		if b.RouteID == routeID && b.CarrierID == carrierID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Storage) AcceptBid(ctx context.Context, bidID, companyID uuid.UUID, initial *models.Tracking, now time.Time) (*storage.AcceptResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.findBid(bidID)
	if b == nil {
		return nil, storage.ErrNotFound
	}
	r, ok := s.routes[b.RouteID]
	if !ok || r.CompanyID != companyID {
		return nil, storage.ErrNotFound
	}
	if r.Status != models.RouteStatusPending {
		return nil, storage.ErrStale
	}

	carrierID := b.CarrierID
	r.Status = models.RouteStatusInTransit
	r.CarrierID = &carrierID
	r.Price = b.ProposedPrice
	r.UpdatedAt = now
	b.IsAccepted = true

	if _, ok := s.trackings[r.ID]; !ok && initial != nil {
		t := cloneTracking(initial)
		t.RouteID = r.ID
		s.trackings[r.ID] = t
	}

	res := &storage.AcceptResult{Route: cloneRoute(r), Bid: cloneBid(b)}
	if t, ok := s.trackings[r.ID]; ok {
		res.Tracking = cloneTracking(t)
	}
	return res, nil
}

func (s *Storage) CompleteRoute(ctx context.Context, routeID uuid.UUID, snap *models.Tracking, now time.Time) (*models.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.routes[routeID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if r.Status != models.RouteStatusInTransit {
		return nil, storage.ErrStale
	}
	r.Status = models.RouteStatusDelivered
	r.UpdatedAt = now
	if snap != nil {
		t := cloneTracking(snap)
		t.RouteID = routeID
		s.trackings[routeID] = t
	}
	return cloneRoute(r), nil
}

func (s *Storage) GetTracking(ctx context.Context, routeID uuid.UUID) (*models.Tracking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trackings[routeID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneTracking(t), nil
}

func (s *Storage) SaveTracking(ctx context.Context, t *models.Tracking, expected models.RouteStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.routes[t.RouteID]
	if !ok {
		return storage.ErrNotFound
	}
	if r.Status != expected {
		return storage.ErrStale
	}
	s.trackings[t.RouteID] = cloneTracking(t)
	return nil
}

func (s *Storage) ExpireOverdueRoutes(ctx context.Context, now time.Time, limit int) ([]*models.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Route, 0)
	for _, r := range s.routes {
		if limit > 0 && len(out) >= limit {
			break
		}
		if r.Status != models.RouteStatusPending || r.CarrierID != nil || !r.PickupDate.Before(now) {
			continue
		}
		r.Status = models.RouteStatusExpired
		r.UpdatedAt = now
		out = append(out, cloneRoute(r))
	}
	return out, nil
}

// ListUnnotifiedExpiredRoutes отдаёт expired-маршруты, по которым компания ещё не получила route_expired.
func (s *Storage) ListUnnotifiedExpiredRoutes(ctx context.Context, limit int) ([]*models.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Route, 0)
	for _, r := range s.routes {
		if r.Status != models.RouteStatusExpired || s.hasExpiredNotification(r) {
			continue
		}
		out = append(out, cloneRoute(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PickupDate.Before(out[j].PickupDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Storage) hasExpiredNotification(r *models.Route) bool {
	for _, n := range s.notifications {
		if n.UserID == r.CompanyID && n.Type == models.NotificationRouteExpired && n.RouteID != nil && *n.RouteID == r.ID {
			return true
		}
	}
	return false
}

func (s *Storage) InsertNotification(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *n
	s.notifications = append(s.notifications, &cp)
	return nil
}

// InsertNotificationOnce не создаёт второе уведомление того же типа для пары (пользователь, маршрут).
func (s *Storage) InsertNotificationOnce(ctx context.Context, n *models.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.notifications {
		if existing.UserID == n.UserID && existing.Type == n.Type && sameRoute(existing.RouteID, n.RouteID) {
			return false, nil
		}
	}
	cp := *n
	s.notifications = append(s.notifications, &cp)
	return true, nil
}

// Notifications возвращает уведомления пользователя в порядке создания.
func (s *Storage) Notifications(userID uuid.UUID) []*models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out
}

func (s *Storage) findBid(id uuid.UUID) *models.Bid {
	for _, b := range s.bids {
		if b.ID == id {
			return b
		}
	}
	return nil
}

func hasStatus(list []models.RouteStatus, st models.RouteStatus) bool {
	for _, x := range list {
		if x == st {
			return true
		}
	}
	return false
}

func sameRoute(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func cloneRoute(r *models.Route) *models.Route {
	cp := *r
	if r.CarrierID != nil {
		id := *r.CarrierID
		cp.CarrierID = &id
	}
	return &cp
}

func cloneBid(b *models.Bid) *models.Bid {
	cp := *b
	return &cp
}

func cloneTracking(t *models.Tracking) *models.Tracking {
	cp := *t
	if t.CurrentLat != nil {
		v := *t.CurrentLat
		cp.CurrentLat = &v
	}
	if t.CurrentLng != nil {
		v := *t.CurrentLng
		cp.CurrentLng = &v
	}
	return &cp
}
