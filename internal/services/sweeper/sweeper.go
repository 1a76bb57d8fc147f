package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/FreightBox/internal/models"
)

type Repository interface {
	// ExpireOverdueRoutes переводит в expired не более limit маршрутов (pending, без перевозчика,
	// pickup_date < now) и возвращает именно те, что перевёл этот вызов.
	ExpireOverdueRoutes(ctx context.Context, now time.Time, limit int) ([]*models.Route, error)
	ListUnnotifiedExpiredRoutes(ctx context.Context, limit int) ([]*models.Route, error)
}

type Notifier interface {
	NotifyOnce(ctx context.Context, n *models.Notification) (bool, error)
}

type Sweeper struct {
	repo     Repository
	notifier Notifier

	interval    time.Duration
	batchSize   int
	concurrency int

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalExpired        atomic.Int64
	totalNotified       atomic.Int64
	totalErrors         atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, notifier Notifier) *Sweeper {
	return &Sweeper{
		repo:              repo,
		notifier:          notifier,
		interval:          60 * time.Second,
		batchSize:         100,
		concurrency:       10,
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (s *Sweeper) WithSettings(interval time.Duration, batchSize, concurrency int) *Sweeper {
	if interval > 0 {
		s.interval = interval
	}
	if batchSize > 0 {
		s.batchSize = batchSize
	}
	if concurrency > 0 {
		s.concurrency = concurrency
	}
	return s
}

// Trigger forces an immediate sweep (best-effort, non-blocking).
func (s *Sweeper) Trigger() {
	s.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt     time.Time  `json:"startedAt"`
	LastCycleAt   *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt *time.Time `json:"lastTriggerAt,omitempty"`
	TotalExpired  int64      `json:"totalExpired"`
	TotalNotified int64      `json:"totalNotified"`
	TotalErrors   int64      `json:"totalErrors"`
	LastError     string     `json:"lastError,omitempty"`
}

func (s *Sweeper) Stats() Stats {
	st := Stats{
		StartedAt:     time.Unix(0, s.startedAtUnixNano).UTC(),
		TotalExpired:  s.totalExpired.Load(),
		TotalNotified: s.totalNotified.Load(),
		TotalErrors:   s.totalErrors.Load(),
	}
	if n := s.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := s.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	s.lastErrorMu.Lock()
	st.LastError = s.lastError
	s.lastErrorMu.Unlock()
	return st
}

func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.runOnce(ctx)
		case <-s.triggerCh:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	n, err := s.Sweep(ctx, time.Now().UTC())
	if err != nil {
		slog.Error("sweep expired routes", "error", err.Error())
		return
	}
	if n > 0 {
		slog.Info("routes expired", "count", n)
	}
}

// Sweep переводит просроченные маршруты в expired пачками по batchSize
// и уведомляет компании. Повторный вызов на тех же данных ничего не меняет.
// Сначала дотягиваются route_expired, которые не записались в прошлых циклах.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	s.lastCycleUnixNano.Store(time.Now().UTC().UnixNano())

	s.renotify(ctx)

	total := 0
	for {
		routes, err := s.repo.ExpireOverdueRoutes(ctx, now, s.batchSize)
		if err != nil {
			s.recordError(err)
			return total, err
		}
		s.totalExpired.Add(int64(len(routes)))
		total += len(routes)

		s.notifyAll(ctx, routes)

		if s.batchSize <= 0 || len(routes) < s.batchSize {
			return total, nil
		}
	}
}

func (s *Sweeper) renotify(ctx context.Context) {
	if s.notifier == nil {
		return
	}
	routes, err := s.repo.ListUnnotifiedExpiredRoutes(ctx, s.batchSize)
	if err != nil {
		s.recordError(err)
		slog.Error("list unnotified expired routes", "error", err.Error())
		return
	}
	if len(routes) > 0 {
		slog.Info("retrying route_expired notifications", "count", len(routes))
	}
	s.notifyAll(ctx, routes)
}

func (s *Sweeper) notifyAll(ctx context.Context, routes []*models.Route) {
	if s.notifier == nil || len(routes) == 0 {
		return
	}
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for _, r := range routes {
		sem <- struct{}{}
		wg.Add(1)
		go func(r *models.Route) {
			defer func() {
				<-sem
				wg.Done()
			}()
			created, err := s.notifier.NotifyOnce(ctx, ExpiredNotification(r))
			if err != nil {
				// Статус уже expired; renotify в следующем цикле повторит.
				s.recordError(err)
				slog.Error("notify route expired", "route_id", r.ID.String(), "error", err.Error())
				return
			}
			if created {
				s.totalNotified.Add(1)
			}
		}(r)
	}
	wg.Wait()
}

func (s *Sweeper) recordError(err error) {
	s.totalErrors.Add(1)
	s.lastErrorMu.Lock()
	s.lastError = err.Error()
	s.lastErrorMu.Unlock()
}

func ExpiredNotification(r *models.Route) *models.Notification {
	routeID := r.ID
	return &models.Notification{
		UserID:  r.CompanyID,
		Type:    models.NotificationRouteExpired,
		Title:   "Route expired",
		Message: fmt.Sprintf("Route %s → %s expired: no carrier was assigned before pickup date %s.", r.Origin.City, r.Destination.City, r.PickupDate.Format("2006-01-02")),
		RouteID: &routeID,
	}
}
