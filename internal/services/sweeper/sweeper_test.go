package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BearBump/FreightBox/internal/models"
	"github.com/BearBump/FreightBox/internal/notify"
	"github.com/BearBump/FreightBox/internal/storage/memfreight"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func seedRoute(t *testing.T, st *memfreight.Storage, company uuid.UUID, status models.RouteStatus, pickup time.Time) *models.Route {
	t.Helper()
	r := &models.Route{
		ID:           uuid.New(),
		CompanyID:    company,
		Origin:       models.Place{City: "Kyiv", Country: "UA", Lat: 50.4501, Lng: 30.5234},
		Destination:  models.Place{City: "Lviv", Country: "UA", Lat: 49.8397, Lng: 24.0297},
		CargoType:    "pallets",
		Price:        5000,
		PickupDate:   pickup,
		DeliveryDate: pickup.Add(48 * time.Hour),
		Status:       status,
		CreatedAt:    pickup.Add(-72 * time.Hour),
	}
	if status == models.RouteStatusInTransit {
		c := uuid.New()
		r.CarrierID = &c
	}
	require.NoError(t, st.CreateRoute(context.Background(), r, nil))
	return r
}

func TestSweep_ExpiresOverduePendingOnce(t *testing.T) {
	ctx := context.Background()
	st := memfreight.New()
	sw := New(st, notify.New(st, nil, ""))

	now := time.Now().UTC()
	company := uuid.New()
	overdue := seedRoute(t, st, company, models.RouteStatusPending, now.Add(-24*time.Hour))
	future := seedRoute(t, st, company, models.RouteStatusPending, now.Add(24*time.Hour))
	moving := seedRoute(t, st, company, models.RouteStatusInTransit, now.Add(-24*time.Hour))

	n, err := sw.Sweep(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, _ := st.GetRoute(ctx, overdue.ID)
	require.Equal(t, models.RouteStatusExpired, got.Status)
	got, _ = st.GetRoute(ctx, future.ID)
	require.Equal(t, models.RouteStatusPending, got.Status)
	got, _ = st.GetRoute(ctx, moving.ID)
	require.Equal(t, models.RouteStatusInTransit, got.Status)

	notes := st.Notifications(company)
	require.Len(t, notes, 1)
	require.Equal(t, models.NotificationRouteExpired, notes[0].Type)
	require.Equal(t, overdue.ID, *notes[0].RouteID)

	// второй прогон: статусы те же, новых уведомлений нет
	n, err = sw.Sweep(ctx, now)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Len(t, st.Notifications(company), 1)

	stats := sw.Stats()
	require.Equal(t, int64(1), stats.TotalExpired)
	require.Equal(t, int64(1), stats.TotalNotified)
	require.NotNil(t, stats.LastCycleAt)
}

func TestSweep_Batches(t *testing.T) {
	ctx := context.Background()
	st := memfreight.New()
	sw := New(st, notify.New(st, nil, "")).WithSettings(0, 2, 2)

	now := time.Now().UTC()
	company := uuid.New()
	for i := 0; i < 5; i++ {
		seedRoute(t, st, company, models.RouteStatusPending, now.Add(-time.Hour))
	}

	n, err := sw.Sweep(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Len(t, st.Notifications(company), 5)
}

func TestSweep_PickupExactlyNowIsNotOverdue(t *testing.T) {
	st := memfreight.New()
	sw := New(st, nil)
	now := time.Now().UTC()
	seedRoute(t, st, uuid.New(), models.RouteStatusPending, now)

	n, err := sw.Sweep(context.Background(), now)
	require.NoError(t, err)
	require.Zero(t, n)
}

type errRepo struct{}

func (errRepo) ExpireOverdueRoutes(ctx context.Context, now time.Time, limit int) ([]*models.Route, error) {
	return nil, errors.New("db down")
}

func (errRepo) ListUnnotifiedExpiredRoutes(ctx context.Context, limit int) ([]*models.Route, error) {
	return nil, errors.New("db down")
}

func TestSweep_RepoError(t *testing.T) {
	sw := New(errRepo{}, nil)
	_, err := sw.Sweep(context.Background(), time.Now())
	require.Error(t, err)
	require.Equal(t, int64(1), sw.Stats().TotalErrors)
	require.Equal(t, "db down", sw.Stats().LastError)
}

// flakyStore роняет первые fails вставок уведомлений, дальше работает как memfreight.
type flakyStore struct {
	*memfreight.Storage
	fails atomic.Int32
}

func (s *flakyStore) InsertNotificationOnce(ctx context.Context, n *models.Notification) (bool, error) {
	if s.fails.Add(-1) >= 0 {
		return false, errors.New("notifications table locked")
	}
	return s.Storage.InsertNotificationOnce(ctx, n)
}

func TestSweep_NotifyErrorIsRetriedNextCycle(t *testing.T) {
	ctx := context.Background()
	st := &flakyStore{Storage: memfreight.New()}
	st.fails.Store(1)
	sw := New(st, notify.New(st, nil, ""))

	now := time.Now().UTC()
	company := uuid.New()
	r := seedRoute(t, st.Storage, company, models.RouteStatusPending, now.Add(-time.Hour))

	n, err := sw.Sweep(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	got, _ := st.GetRoute(ctx, r.ID)
	require.Equal(t, models.RouteStatusExpired, got.Status)
	require.Empty(t, st.Notifications(company))
	require.Equal(t, int64(1), sw.Stats().TotalErrors)

	// хранилище ожило: новых expired нет, но уведомление дотягивается
	n, err = sw.Sweep(ctx, now)
	require.NoError(t, err)
	require.Zero(t, n)
	notes := st.Notifications(company)
	require.Len(t, notes, 1)
	require.Equal(t, models.NotificationRouteExpired, notes[0].Type)
	require.Equal(t, r.ID, *notes[0].RouteID)
	require.Equal(t, int64(1), sw.Stats().TotalNotified)

	_, err = sw.Sweep(ctx, now)
	require.NoError(t, err)
	require.Len(t, st.Notifications(company), 1)
}

func TestSweep_RenotifyListErrorDoesNotBlockExpire(t *testing.T) {
	st := memfreight.New()
	now := time.Now().UTC()
	r := seedRoute(t, st, uuid.New(), models.RouteStatusPending, now.Add(-time.Hour))

	sw := New(listFailRepo{st}, notify.New(st, nil, ""))
	n, err := sw.Sweep(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, st.Notifications(r.CompanyID), 1)
	require.Equal(t, int64(1), sw.Stats().TotalErrors)
}

type listFailRepo struct {
	*memfreight.Storage
}

func (listFailRepo) ListUnnotifiedExpiredRoutes(ctx context.Context, limit int) ([]*models.Route, error) {
	return nil, errors.New("replica lag")
}

type countingRepo struct {
	calls chan struct{}
}

func (r *countingRepo) ExpireOverdueRoutes(ctx context.Context, now time.Time, limit int) ([]*models.Route, error) {
	select {
	case r.calls <- struct{}{}:
	default:
	}
	return nil, nil
}

func (r *countingRepo) ListUnnotifiedExpiredRoutes(ctx context.Context, limit int) ([]*models.Route, error) {
	return nil, nil
}

func TestSweeper_Run_TriggerAndStop(t *testing.T) {
	repo := &countingRepo{calls: make(chan struct{}, 1)}
	sw := New(repo, nil).WithSettings(time.Hour, 10, 1)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- sw.Run(ctx) }()

	sw.Trigger()
	select {
	case <-repo.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("trigger did not run a sweep")
	}
	require.NotNil(t, sw.Stats().LastTriggerAt)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}

func TestExpiredNotification(t *testing.T) {
	r := &models.Route{
		ID:          uuid.New(),
		CompanyID:   uuid.New(),
		Origin:      models.Place{City: "Kyiv"},
		Destination: models.Place{City: "Lviv"},
		PickupDate:  time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	n := ExpiredNotification(r)
	require.Equal(t, r.CompanyID, n.UserID)
	require.Equal(t, models.NotificationRouteExpired, n.Type)
	require.Contains(t, n.Message, "Kyiv → Lviv")
	require.Contains(t, n.Message, "2026-05-01")
}
