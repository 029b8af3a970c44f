package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/roastery/internal/auth"
	"github.com/utafrali/roastery/internal/domain"
	"github.com/utafrali/roastery/internal/gateway/flow"
	"github.com/utafrali/roastery/internal/repository"
	redisrepo "github.com/utafrali/roastery/internal/repository/redis"
	"github.com/utafrali/roastery/internal/service"
	"github.com/utafrali/roastery/pkg/health"
	"github.com/utafrali/roastery/pkg/httputil"
	"github.com/utafrali/roastery/pkg/middleware"
	"github.com/utafrali/roastery/pkg/retry"
)

const (
	customerID = "8a4c2f0e-4d57-4c0c-9d0f-1f0b1c2d3e4f"
	adminID    = "0b7e7f4a-2f5e-4b8e-8b9e-7d4f0a1b2c3d"
	productID  = "3f2504e0-4f89-11d3-9a0c-0305e82c3301"
	orderID    = "5b6c7d8e-9f01-4a2b-8c3d-4e5f6a7b8c9d"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- repository and gateway mocks ---

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

// nopEvents drops every event.
type nopEvents struct{}

func (nopEvents) PublishCartUpdated(context.Context, *domain.Cart) error      { return nil }
func (nopEvents) PublishOrderCreated(context.Context, *domain.Order) error    { return nil }
func (nopEvents) PublishPaymentRecorded(context.Context, *domain.Order) error { return nil }

// resetOutbox keeps the reset tokens that would have been mailed.
type resetOutbox struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (o *resetOutbox) PublishPasswordReset(_ context.Context, user *domain.User, token string, _ time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.tokens == nil {
		o.tokens = make(map[string]string)
	}
	o.tokens[user.Email] = token
	return nil
}

func (o *resetOutbox) tokenFor(email string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tokens[email]
}

// --- test environment ---

type testEnv struct {
	router    http.Handler
	jwt       *auth.JWTManager
	redis     *miniredis.Miniredis
	products  *mockProducts
	orders    *mockOrders
	users     *mockUsers
	analytics *mockAnalytics
	gateway   *mockGateway
	resets    *resetOutbox
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	env := &testEnv{
		jwt:       auth.NewJWTManager("handler-test-secret", time.Hour),
		redis:     mr,
		products:  &mockProducts{},
		orders:    &mockOrders{},
		users:     &mockUsers{},
		analytics: &mockAnalytics{},
		gateway:   &mockGateway{},
		resets:    &resetOutbox{},
	}

	logger := testLogger()
	carts := redisrepo.NewCartStore(client, time.Hour, logger)
	events := nopEvents{}

	authSvc := service.NewAuthService(env.users, env.jwt, retry.Config{Attempts: 1}, service.PasswordResetConfig{
		Store:    redisrepo.NewPasswordResetStore(client),
		Notifier: env.resets,
		TTL:      time.Hour,
	}, logger)
	svcs := Services{
		Auth:    authSvc,
		Catalog: service.NewCatalogService(env.products),
		Cart:    service.NewCartService(carts, env.products, events, logger),
		Checkout: service.NewCheckoutService(
			carts,
			env.orders,
			redisrepo.NewCheckoutDedupeStore(client),
			env.gateway,
			authSvc,
			events,
			service.CheckoutConfig{
				ShippingCost:    3000,
				Currency:        "CLP",
				ConfirmationURL: "https://shop.test/payment/confirmation",
				ReturnURL:       "https://shop.test/payment/return",
				IdempotencyTTL:  time.Hour,
			},
			logger,
		),
		Payments:  service.NewPaymentResultService(env.gateway, env.orders, events, logger),
		Orders:    service.NewOrderService(env.orders),
		Analytics: service.NewAnalyticsService(env.analytics, logger),
	}

	env.router = NewRouter(svcs, RouterConfig{
		Tokens:         env.jwt.Validator(),
		Health:         health.NewHandler(),
		RequestTimeout: 5 * time.Second,
		CORS:           middleware.DefaultCORSConfig(),
		PprofCIDRs:     []string{"127.0.0.1/32"},
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	}, logger)

	t.Cleanup(func() {
		env.products.AssertExpectations(t)
		env.orders.AssertExpectations(t)
		env.users.AssertExpectations(t)
		env.analytics.AssertExpectations(t)
		env.gateway.AssertExpectations(t)
	})
	return env
}

func (e *testEnv) token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, _, err := e.jwt.GenerateAccessToken(userID, userID+"@example.com", role)
	require.NoError(t, err)
	return tok
}

type requestOption func(*http.Request)

func withBearer(token string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withHeader(key, value string) requestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

func (e *testEnv) do(t *testing.T, method, target string, body any, opts ...requestOption) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// decodeData unmarshals the data envelope into dst.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env), rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *httputil.ErrorResponse {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Error, "expected an error envelope")
	return resp.Error
}

func testProduct() *domain.Product {
	return &domain.Product{
		ID:     productID,
		Slug:   "geisha-panama",
		Name:   "Geisha Panamá",
		Origin: "Panamá",
		Price:  12000,
		Active: true,
	}
}

// httptestRecorder serves one bodiless request through h and returns the status.
func httptestRecorder(h http.Handler, method, target string) int {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, http.NoBody))
	return rec.Code
}

// decodePage unmarshals a paginated body, which carries its own data field.
func decodePage(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(dst), rec.Body.String())
}
