package mocks

import (
	"context"
	"time"

	"github.com/BearBump/OrderHub/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockRepository) CreateOrder(ctx context.Context, o *models.Order) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *MockRepository) SaveOrderStatus(ctx context.Context, id, from, to string, ts time.Time) (*models.Order, error) {
	args := m.Called(ctx, id, from, to, ts)
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockRepository) GetDelivery(ctx context.Context, id string) (*models.Delivery, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*models.Delivery), args.Error(1)
}

func (m *MockRepository) GetActiveDeliveryForCourier(ctx context.Context, courierID string) (*models.Delivery, error) {
	args := m.Called(ctx, courierID)
	return args.Get(0).(*models.Delivery), args.Error(1)
}

func (m *MockRepository) CreateDelivery(ctx context.Context, d *models.Delivery) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *MockRepository) SaveDeliveryStatus(ctx context.Context, id, from, to string, ts time.Time) (*models.Delivery, error) {
	args := m.Called(ctx, id, from, to, ts)
	return args.Get(0).(*models.Delivery), args.Error(1)
}
