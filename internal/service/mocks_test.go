package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/utafrali/roastery/internal/domain"
	"github.com/utafrali/roastery/internal/gateway/flow"
	"github.com/utafrali/roastery/internal/repository"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- cart store ---

type mockCartStore struct{ mock.Mock }

func (m *mockCartStore) Load(ctx context.Context, owner string) ([]domain.CartItem, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CartItem), args.Error(1)
}

func (m *mockCartStore) Save(ctx context.Context, owner string, items []domain.CartItem) error {
	// Copy so later mutations of the slice do not change what was recorded.
	cp := append([]domain.CartItem{}, items...)
	return m.Called(ctx, owner, cp).Error(0)
}

// --- products ---

type mockProducts struct{ mock.Mock }

func (m *mockProducts) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockProducts) GetBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockProducts) ListActive(ctx context.Context) ([]domain.Product, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Product), args.Error(1)
}

// --- events ---

type mockEvents struct{ mock.Mock }

func (m *mockEvents) PublishCartUpdated(ctx context.Context, cart *domain.Cart) error {
	return m.Called(ctx, cart).Error(0)
}

func (m *mockEvents) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	return m.Called(ctx, order).Error(0)
}

func (m *mockEvents) PublishPaymentRecorded(ctx context.Context, order *domain.Order) error {
	return m.Called(ctx, order).Error(0)
}

// --- gateway ---

type mockGateway struct{ mock.Mock }

func (m *mockGateway) CreatePayment(ctx context.Context, req flow.PaymentRequest) (*flow.PaymentSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*flow.PaymentSession), args.Error(1)
}

func (m *mockGateway) GetStatus(ctx context.Context, token string) (*flow.PaymentStatus, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*flow.PaymentStatus), args.Error(1)
}

// --- orders ---

type mockOrders struct{ mock.Mock }

func (m *mockOrders) Create(ctx context.Context, order *domain.Order) error {
	return m.Called(ctx, order).Error(0)
}

func (m *mockOrders) SetGatewayToken(ctx context.Context, id, token string) error {
	return m.Called(ctx, id, token).Error(0)
}

func (m *mockOrders) ApplyPaymentResult(ctx context.Context, result domain.PaymentResult) (*domain.Order, bool, error) {
	args := m.Called(ctx, result)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.Order), args.Bool(1), args.Error(2)
}

func (m *mockOrders) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrders) GetByCommerceOrder(ctx context.Context, commerceOrder string) (*domain.Order, error) {
	args := m.Called(ctx, commerceOrder)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrders) List(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Order), args.Int(1), args.Error(2)
}

// --- checkout dedupe ---

type mockDedupe struct{ mock.Mock }

func (m *mockDedupe) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, *repository.CheckoutReservation, error) {
	args := m.Called(ctx, key, ttl)
	if args.Get(1) == nil {
		return args.Bool(0), nil, args.Error(2)
	}
	return args.Bool(0), args.Get(1).(*repository.CheckoutReservation), args.Error(2)
}

func (m *mockDedupe) Complete(ctx context.Context, key string, res repository.CheckoutReservation, ttl time.Duration) error {
	return m.Called(ctx, key, res, ttl).Error(0)
}

func (m *mockDedupe) Release(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

// --- users ---

type mockUsers struct{ mock.Mock }

func (m *mockUsers) Create(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockUsers) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUsers) UpdateProfile(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockUsers) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return m.Called(ctx, id, passwordHash).Error(0)
}

// --- analytics ---

type mockAnalytics struct{ mock.Mock }

func (m *mockAnalytics) RecordVisit(ctx context.Context, visit *domain.Visit) error {
	return m.Called(ctx, visit).Error(0)
}

func (m *mockAnalytics) RecordSale(ctx context.Context, sale *domain.Sale) (bool, error) {
	args := m.Called(ctx, sale)
	return args.Bool(0), args.Error(1)
}

func (m *mockAnalytics) ListVisits(ctx context.Context, since time.Time) ([]domain.Visit, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Visit), args.Error(1)
}

func (m *mockAnalytics) ListSales(ctx context.Context, since time.Time) ([]domain.Sale, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Sale), args.Error(1)
}

// --- profiles and tokens ---

type stubProfiles struct {
	user *domain.User
	err  error
}

func (s stubProfiles) Profile(context.Context, string) (*domain.User, error) {
	return s.user, s.err
}

type mockResetStore struct{ mock.Mock }

func (m *mockResetStore) Save(ctx context.Context, token, userID string, ttl time.Duration) error {
	return m.Called(ctx, token, userID, ttl).Error(0)
}

func (m *mockResetStore) Consume(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

type mockResetNotifier struct{ mock.Mock }

func (m *mockResetNotifier) PublishPasswordReset(ctx context.Context, user *domain.User, token string, expiresAt time.Time) error {
	return m.Called(ctx, user, token, expiresAt).Error(0)
}

type stubTokens struct{}

func (stubTokens) GenerateAccessToken(userID, _, _ string) (string, time.Time, error) {
	return "token-for-" + userID, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), nil
}
