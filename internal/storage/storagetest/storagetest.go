// Package storagetest содержит общий набор проверок для реализаций хранилища маршрутов.
// Его гоняют и in-memory стор, и Postgres в testcontainers.
package storagetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/FreightBox/internal/models"
	"github.com/BearBump/FreightBox/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
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
	ExpireOverdueRoutes(ctx context.Context, now time.Time, limit int) ([]*models.Route, error)
	ListUnnotifiedExpiredRoutes(ctx context.Context, limit int) ([]*models.Route, error)
	InsertNotification(ctx context.Context, n *models.Notification) error
	InsertNotificationOnce(ctx context.Context, n *models.Notification) (bool, error)
}

// Now: фиксированное время с точностью до микросекунд (Postgres timestamptz).
var Now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func Route(companyID uuid.UUID, pickup time.Time) *models.Route {
	return &models.Route{
		ID:           uuid.New(),
		CompanyID:    companyID,
		Origin:       models.Place{City: "Kyiv", Country: "UA", Lat: 50.45, Lng: 30.52},
		Destination:  models.Place{City: "Lviv", Country: "UA", Lat: 49.84, Lng: 24.03},
		CargoType:    "pallets",
		Weight:       1200,
		Volume:       14,
		Price:        5000,
		PickupDate:   pickup,
		DeliveryDate: pickup.Add(10 * time.Hour),
		Status:       models.RouteStatusPending,
		CreatedAt:    Now,
		UpdatedAt:    Now,
	}
}

func Tracking(r *models.Route, pct int) *models.Tracking {
	t := &models.Tracking{RouteID: r.ID, ProgressPercent: pct, CurrentLocation: r.Origin.City, LastUpdate: Now}
	t.SetCoords(r.Origin.Point())
	return t
}

func Bid(routeID, carrierID uuid.UUID, price float64) *models.Bid {
	return &models.Bid{
		ID:                uuid.New(),
		RouteID:           routeID,
		CarrierID:         carrierID,
		ProposedPrice:     price,
		EstimatedDelivery: Now.Add(48 * time.Hour),
		CreatedAt:         Now,
	}
}

// Run прогоняет контракт на свежем хранилище для каждого подтеста.
func Run(t *testing.T, newRepo func(t *testing.T) Repository) {
	tests := map[string]func(t *testing.T, repo Repository){
		"RouteRoundTrip":          testRouteRoundTrip,
		"ListRoutesFilters":       testListRoutesFilters,
		"CancelRoute":             testCancelRoute,
		"CreateBidRules":          testCreateBidRules,
		"ConcurrentDuplicateBids": testConcurrentDuplicateBids,
		"AcceptBid":               testAcceptBid,
		"ConcurrentAccepts":       testConcurrentAccepts,
		"CompleteRoute":           testCompleteRoute,
		"SaveTracking":            testSaveTracking,
		"ExpireOverdueRoutes":     testExpireOverdueRoutes,
		"UnnotifiedExpired":       testUnnotifiedExpired,
		"NilTrackingArgs":         testNilTrackingArgs,
		"NotificationOnce":        testNotificationOnce,
	}
	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			fn(t, newRepo(t))
		})
	}
}

func testRouteRoundTrip(t *testing.T, repo Repository) {
	ctx := context.Background()
	r := Route(uuid.New(), Now.Add(time.Hour))
	r.Description = "fragile"
	require.NoError(t, repo.CreateRoute(ctx, r, Tracking(r, 0)))

	got, err := repo.GetRoute(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, r.CompanyID, got.CompanyID)
	require.Equal(t, "Kyiv", got.Origin.City)
	require.InDelta(t, 49.84, got.Destination.Lat, 1e-6)
	require.Equal(t, "fragile", got.Description)
	require.Equal(t, models.RouteStatusPending, got.Status)
	require.Nil(t, got.CarrierID)
	require.True(t, r.PickupDate.Equal(got.PickupDate))

	tr, err := repo.GetTracking(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, 0, tr.ProgressPercent)
	require.True(t, tr.HasCoords())

	_, err = repo.GetRoute(ctx, uuid.New())
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = repo.GetTracking(ctx, uuid.New())
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func testListRoutesFilters(t *testing.T, repo Repository) {
	ctx := context.Background()
	companyA, companyB := uuid.New(), uuid.New()

	older := Route(companyA, Now.Add(time.Hour))
	newer := Route(companyA, Now.Add(time.Hour))
	newer.CreatedAt = Now.Add(time.Minute)
	foreign := Route(companyB, Now.Add(time.Hour))
	foreign.Destination.City = "Kharkiv"
	foreign.CreatedAt = Now.Add(2 * time.Minute)
	for _, r := range []*models.Route{older, newer, foreign} {
		require.NoError(t, repo.CreateRoute(ctx, r, Tracking(r, 0)))
	}
	_, err := repo.CancelRoute(ctx, older.ID, companyA, Now)
	require.NoError(t, err)

	out, err := repo.ListRoutes(ctx, models.RouteFilter{CompanyID: &companyA})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, newer.ID, out[0].ID)

	out, err = repo.ListRoutes(ctx, models.RouteFilter{Statuses: []models.RouteStatus{models.RouteStatusPending}})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, foreign.ID, out[0].ID)

	out, err = repo.ListRoutes(ctx, models.RouteFilter{City: "KHAR"})
	require.NoError(t, err)
	require.Len(t, out, 1)

	out, err = repo.ListRoutes(ctx, models.RouteFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, newer.ID, out[0].ID)
}

func testCancelRoute(t *testing.T, repo Repository) {
	ctx := context.Background()
	company := uuid.New()
	r := Route(company, Now.Add(time.Hour))
	require.NoError(t, repo.CreateRoute(ctx, r, Tracking(r, 0)))

	_, err := repo.CancelRoute(ctx, r.ID, uuid.New(), Now)
	require.ErrorIs(t, err, storage.ErrNotFound)

	got, err := repo.CancelRoute(ctx, r.ID, company, Now)
	require.NoError(t, err)
	require.Equal(t, models.RouteStatusCancelled, got.Status)

	_, err = repo.CancelRoute(ctx, r.ID, company, Now)
	require.ErrorIs(t, err, storage.ErrStale)
}

func testCreateBidRules(t *testing.T, repo Repository) {
	ctx := context.Background()
	company, carrier := uuid.New(), uuid.New()
	r := Route(company, Now.Add(time.Hour))
	require.NoError(t, repo.CreateRoute(ctx, r, Tracking(r, 0)))

	require.ErrorIs(t, repo.CreateBid(ctx, Bid(uuid.New(), carrier, 1)), storage.ErrNotFound)

	first := Bid(r.ID, carrier, 4500)
	first.Message = "ready"
	require.NoError(t, repo.CreateBid(ctx, first))
	require.ErrorIs(t, repo.CreateBid(ctx, Bid(r.ID, carrier, 4400)), storage.ErrConflict)

	has, err := repo.HasBid(ctx, r.ID, carrier)
	require.NoError(t, err)
	require.True(t, has)
	has, err = repo.HasBid(ctx, r.ID, uuid.New())
	require.NoError(t, err)
	require.False(t, has)

	second := Bid(r.ID, uuid.New(), 4600)
	second.CreatedAt = Now.Add(time.Second)
	require.NoError(t, repo.CreateBid(ctx, second))

	bids, err := repo.ListBids(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	require.Equal(t, second.ID, bids[0].ID)
	require.Equal(t, "ready", bids[1].Message)

	b, gotRoute, err := repo.GetBidForCompany(ctx, first.ID, company)
	require.NoError(t, err)
	require.Equal(t, first.ID, b.ID)
	require.Equal(t, r.ID, gotRoute.ID)
	_, _, err = repo.GetBidForCompany(ctx, first.ID, uuid.New())
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = repo.CancelRoute(ctx, r.ID, company, Now)
	require.NoError(t, err)
	require.ErrorIs(t, repo.CreateBid(ctx, Bid(r.ID, uuid.New(), 1)), storage.ErrStale)
}

func testConcurrentDuplicateBids(t *testing.T, repo Repository) {
	ctx := context.Background()
	carrier := uuid.New()
	r := Route(uuid.New(), Now.Add(time.Hour))
	require.NoError(t, repo.CreateRoute(ctx, r, Tracking(r, 0)))

	const n = 10
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.CreateBid(ctx, Bid(r.ID, carrier, float64(100+i)))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, storage.ErrConflict)
	}
	require.Equal(t, 1, ok)
}

func testAcceptBid(t *testing.T, repo Repository) {
	ctx := context.Background()
	company, carrier := uuid.New(), uuid.New()
	r := Route(company, Now.Add(time.Hour))
	require.NoError(t, repo.CreateRoute(ctx, r, Tracking(r, 0)))
	b := Bid(r.ID, carrier, 4321.5)
	require.NoError(t, repo.CreateBid(ctx, b))

	_, err := repo.AcceptBid(ctx, b.ID, uuid.New(), Tracking(r, 0), Now)
	require.ErrorIs(t, err, storage.ErrNotFound)

	res, err := repo.AcceptBid(ctx, b.ID, company, Tracking(r, 77), Now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, models.RouteStatusInTransit, res.Route.Status)
	require.Equal(t, carrier, *res.Route.CarrierID)
	require.InDelta(t, 4321.5, res.Route.Price, 1e-6)
	require.True(t, res.Bid.IsAccepted)
	// трекинг уже был, initial не перетирает его
	require.Equal(t, 0, res.Tracking.ProgressPercent)

	_, err = repo.AcceptBid(ctx, b.ID, company, Tracking(r, 0), Now)
	require.ErrorIs(t, err, storage.ErrStale)
}

func testConcurrentAccepts(t *testing.T, repo Repository) {
	ctx := context.Background()
	company := uuid.New()
	r := Route(company, Now.Add(time.Hour))
	require.NoError(t, repo.CreateRoute(ctx, r, Tracking(r, 0)))

	const n = 8
	ids := make([]uuid.UUID, n)
	for i := range ids {
		b := Bid(r.ID, uuid.New(), float64(1000+i))
		require.NoError(t, repo.CreateBid(ctx, b))
		ids[i] = b.ID
	}

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.AcceptBid(ctx, ids[i], company, Tracking(r, 0), Now)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, storage.ErrStale)
	}
	require.Equal(t, 1, ok)

	bids, err := repo.ListBids(ctx, r.ID)
	require.NoError(t, err)
	accepted := 0
	for _, b := range bids {
		if b.IsAccepted {
			accepted++
		}
	}
	require.Equal(t, 1, accepted)
}

func testCompleteRoute(t *testing.T, repo Repository) {
	ctx := context.Background()
	company := uuid.New()
	r := Route(company, Now.Add(time.Hour))
	require.NoError(t, repo.CreateRoute(ctx, r, Tracking(r, 0)))

	snap := &models.Tracking{RouteID: r.ID, ProgressPercent: 100, CurrentLocation: "Lviv", LastUpdate: Now}
	snap.SetCoords(r.Destination.Point())

	_, err := repo.CompleteRoute(ctx, r.ID, snap, Now)
	require.ErrorIs(t, err, storage.ErrStale)
	_, err = repo.CompleteRoute(ctx, uuid.New(), snap, Now)
	require.ErrorIs(t, err, storage.ErrNotFound)

	b := Bid(r.ID, uuid.New(), 1)
	require.NoError(t, repo.CreateBid(ctx, b))
	_, err = repo.AcceptBid(ctx, b.ID, company, Tracking(r, 0), Now)
	require.NoError(t, err)

	done, err := repo.CompleteRoute(ctx, r.ID, snap, Now)
	require.NoError(t, err)
	require.Equal(t, models.RouteStatusDelivered, done.Status)

	tr, err := repo.GetTracking(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, 100, tr.ProgressPercent)
	require.Equal(t, "Lviv", tr.CurrentLocation)
	require.InDelta(t, 49.84, *tr.CurrentLat, 1e-6)

	_, err = repo.CompleteRoute(ctx, r.ID, snap, Now)
	require.ErrorIs(t, err, storage.ErrStale)
}

func testSaveTracking(t *testing.T, repo Repository) {
	ctx := context.Background()
	company := uuid.New()
	r := Route(company, Now.Add(time.Hour))
	require.NoError(t, repo.CreateRoute(ctx, r, Tracking(r, 0)))

	upd := Tracking(r, 40)
	upd.CurrentLocation = "Zhytomyr"
	require.ErrorIs(t, repo.SaveTracking(ctx, upd, models.RouteStatusInTransit), storage.ErrStale)

	b := Bid(r.ID, uuid.New(), 1)
	require.NoError(t, repo.CreateBid(ctx, b))
	_, err := repo.AcceptBid(ctx, b.ID, company, Tracking(r, 0), Now)
	require.NoError(t, err)

	require.NoError(t, repo.SaveTracking(ctx, upd, models.RouteStatusInTransit))
	tr, err := repo.GetTracking(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, 40, tr.ProgressPercent)
	require.Equal(t, "Zhytomyr", tr.CurrentLocation)

	ghost := &models.Tracking{RouteID: uuid.New(), ProgressPercent: 1}
	require.ErrorIs(t, repo.SaveTracking(ctx, ghost, models.RouteStatusInTransit), storage.ErrNotFound)
}

func testExpireOverdueRoutes(t *testing.T, repo Repository) {
	ctx := context.Background()
	company := uuid.New()

	var overdue []*models.Route
	for i := 0; i < 3; i++ {
		r := Route(company, Now.Add(-time.Duration(i+1)*time.Hour))
		require.NoError(t, repo.CreateRoute(ctx, r, Tracking(r, 0)))
		overdue = append(overdue, r)
	}
	onTime := Route(company, Now)
	require.NoError(t, repo.CreateRoute(ctx, onTime, Tracking(onTime, 0)))
	future := Route(company, Now.Add(time.Hour))
	require.NoError(t, repo.CreateRoute(ctx, future, Tracking(future, 0)))

	first, err := repo.ExpireOverdueRoutes(ctx, Now, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	rest, err := repo.ExpireOverdueRoutes(ctx, Now, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	again, err := repo.ExpireOverdueRoutes(ctx, Now, 2)
	require.NoError(t, err)
	require.Empty(t, again)

	for _, r := range overdue {
		got, err := repo.GetRoute(ctx, r.ID)
		require.NoError(t, err)
		require.Equal(t, models.RouteStatusExpired, got.Status)
	}
	for _, r := range []*models.Route{onTime, future} {
		got, err := repo.GetRoute(ctx, r.ID)
		require.NoError(t, err)
		require.Equal(t, models.RouteStatusPending, got.Status)
	}
}

func testUnnotifiedExpired(t *testing.T, repo Repository) {
	ctx := context.Background()
	company := uuid.New()

	a := Route(company, Now.Add(-2*time.Hour))
	b := Route(company, Now.Add(-time.Hour))
	pending := Route(company, Now.Add(time.Hour))
	for _, r := range []*models.Route{a, b, pending} {
		require.NoError(t, repo.CreateRoute(ctx, r, Tracking(r, 0)))
	}

	none, err := repo.ListUnnotifiedExpiredRoutes(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, none)

	expired, err := repo.ExpireOverdueRoutes(ctx, Now, 0)
	require.NoError(t, err)
	require.Len(t, expired, 2)

	got, err := repo.ListUnnotifiedExpiredRoutes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, a.ID, got[0].ID)

	limited, err := repo.ListUnnotifiedExpiredRoutes(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	// уведомление другого типа или другому пользователю не считается
	other := a.ID
	require.NoError(t, repo.InsertNotification(ctx, &models.Notification{
		ID: uuid.New(), UserID: uuid.New(), Type: models.NotificationRouteExpired,
		Title: "x", Message: "x", RouteID: &other, CreatedAt: Now,
	}))
	require.NoError(t, repo.InsertNotification(ctx, &models.Notification{
		ID: uuid.New(), UserID: company, Type: models.NotificationNewBid,
		Title: "x", Message: "x", RouteID: &other, CreatedAt: Now,
	}))
	got, err = repo.ListUnnotifiedExpiredRoutes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	created, err := repo.InsertNotificationOnce(ctx, &models.Notification{
		ID: uuid.New(), UserID: company, Type: models.NotificationRouteExpired,
		Title: "Route expired", Message: "x", RouteID: &other, CreatedAt: Now,
	})
	require.NoError(t, err)
	require.True(t, created)

	got, err = repo.ListUnnotifiedExpiredRoutes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, b.ID, got[0].ID)
}

func testNilTrackingArgs(t *testing.T, repo Repository) {
	ctx := context.Background()
	company, carrier := uuid.New(), uuid.New()

	r := Route(company, Now.Add(time.Hour))
	require.NoError(t, repo.CreateRoute(ctx, r, nil))
	b := Bid(r.ID, carrier, 4000)
	require.NoError(t, repo.CreateBid(ctx, b))

	res, err := repo.AcceptBid(ctx, b.ID, company, nil, Now)
	require.NoError(t, err)
	require.Equal(t, models.RouteStatusInTransit, res.Route.Status)
	require.Nil(t, res.Tracking)
	_, err = repo.GetTracking(ctx, r.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)

	done, err := repo.CompleteRoute(ctx, r.ID, nil, Now)
	require.NoError(t, err)
	require.Equal(t, models.RouteStatusDelivered, done.Status)
	_, err = repo.GetTracking(ctx, r.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func testNotificationOnce(t *testing.T, repo Repository) {
	ctx := context.Background()
	user, routeID := uuid.New(), uuid.New()
	n := func(typ models.NotificationType) *models.Notification {
		id := routeID
		return &models.Notification{
			ID:        uuid.New(),
			UserID:    user,
			Type:      typ,
			Title:     "Route expired",
			Message:   "Kyiv → Lviv",
			RouteID:   &id,
			CreatedAt: Now,
		}
	}

	created, err := repo.InsertNotificationOnce(ctx, n(models.NotificationRouteExpired))
	require.NoError(t, err)
	require.True(t, created)
	created, err = repo.InsertNotificationOnce(ctx, n(models.NotificationRouteExpired))
	require.NoError(t, err)
	require.False(t, created)

	require.NoError(t, repo.InsertNotification(ctx, n(models.NotificationTrackingUpdated)))
	require.NoError(t, repo.InsertNotification(ctx, n(models.NotificationTrackingUpdated)))
}
