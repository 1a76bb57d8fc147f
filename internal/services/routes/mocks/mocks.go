package mocks

import (
	"context"
	"time"

	"github.com/BearBump/FreightBox/internal/models"
	"github.com/BearBump/FreightBox/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateRoute(ctx context.Context, r *models.Route, t *models.Tracking) error {
	args := m.Called(ctx, r, t)
	return args.Error(0)
}

func (m *MockRepository) GetRoute(ctx context.Context, id uuid.UUID) (*models.Route, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*models.Route)
	return r, args.Error(1)
}

func (m *MockRepository) ListRoutes(ctx context.Context, f models.RouteFilter) ([]*models.Route, error) {
	args := m.Called(ctx, f)
	rs, _ := args.Get(0).([]*models.Route)
	return rs, args.Error(1)
}

func (m *MockRepository) CancelRoute(ctx context.Context, routeID, companyID uuid.UUID, now time.Time) (*models.Route, error) {
	args := m.Called(ctx, routeID, companyID, now)
	r, _ := args.Get(0).(*models.Route)
	return r, args.Error(1)
}

func (m *MockRepository) CreateBid(ctx context.Context, b *models.Bid) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *MockRepository) GetBidForCompany(ctx context.Context, bidID, companyID uuid.UUID) (*models.Bid, *models.Route, error) {
	args := m.Called(ctx, bidID, companyID)
	b, _ := args.Get(0).(*models.Bid)
	r, _ := args.Get(1).(*models.Route)
	return b, r, args.Error(2)
}

func (m *MockRepository) ListBids(ctx context.Context, routeID uuid.UUID) ([]*models.Bid, error) {
	args := m.Called(ctx, routeID)
	bs, _ := args.Get(0).([]*models.Bid)
	return bs, args.Error(1)
}

func (m *MockRepository) HasBid(ctx context.Context, routeID, carrierID uuid.UUID) (bool, error) {
	args := m.Called(ctx, routeID, carrierID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) AcceptBid(ctx context.Context, bidID, companyID uuid.UUID, initial *models.Tracking, now time.Time) (*storage.AcceptResult, error) {
	args := m.Called(ctx, bidID, companyID, initial, now)
	res, _ := args.Get(0).(*storage.AcceptResult)
	return res, args.Error(1)
}

func (m *MockRepository) CompleteRoute(ctx context.Context, routeID uuid.UUID, snap *models.Tracking, now time.Time) (*models.Route, error) {
	args := m.Called(ctx, routeID, snap, now)
	r, _ := args.Get(0).(*models.Route)
	return r, args.Error(1)
}

func (m *MockRepository) GetTracking(ctx context.Context, routeID uuid.UUID) (*models.Tracking, error) {
	args := m.Called(ctx, routeID)
	t, _ := args.Get(0).(*models.Tracking)
	return t, args.Error(1)
}

func (m *MockRepository) SaveTracking(ctx context.Context, t *models.Tracking, expected models.RouteStatus) error {
	args := m.Called(ctx, t, expected)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, n *models.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

type MockExpirer struct {
	mock.Mock
}

func (m *MockExpirer) Sweep(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}
