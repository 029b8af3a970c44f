package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/roastery/internal/service"
	"github.com/utafrali/roastery/pkg/health"
	"github.com/utafrali/roastery/pkg/middleware"
)

const (
	serviceName        = "storefront"
	productCacheMaxAge = 60
)

// Services are the application services the API exposes.
type Services struct {
	Auth      *service.AuthService
	Catalog   *service.CatalogService
	Cart      *service.CartService
	Checkout  *service.CheckoutService
	Payments  *service.PaymentResultService
	Orders    *service.OrderService
	Analytics *service.AnalyticsService
}

// RouterConfig holds the transport settings of the router.
type RouterConfig struct {
	Tokens         middleware.TokenValidator
	Health         *health.Handler
	RequestTimeout time.Duration
	CORS           middleware.CORSConfig
	PprofCIDRs     []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// Server groups the endpoint handlers behind the route table.
type Server struct {
	auth      *AuthHandler
	catalog   *CatalogHandler
	cart      *CartHandler
	checkout  *CheckoutHandler
	payment   *PaymentHandler
	orders    *OrderHandler
	analytics *AnalyticsHandler

	confirmLimiter func(http.Handler) http.Handler
	visitLimiter   func(http.Handler) http.Handler
	resetLimiter   func(http.Handler) http.Handler
}

// NewServer creates the handlers for svcs.
func NewServer(svcs Services, cfg RouterConfig, logger *slog.Logger) *Server {
	return &Server{
		auth:           NewAuthHandler(svcs.Auth, logger),
		catalog:        NewCatalogHandler(svcs.Catalog, logger),
		cart:           NewCartHandler(svcs.Cart, logger),
		checkout:       NewCheckoutHandler(svcs.Checkout, logger),
		payment:        NewPaymentHandler(svcs.Payments, logger),
		orders:         NewOrderHandler(svcs.Orders, logger),
		analytics:      NewAnalyticsHandler(svcs.Analytics, logger),
		confirmLimiter: middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, logger),
		visitLimiter:   middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, logger),
		resetLimiter:   middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, logger),
	}
}

// NewRouter creates a chi router with the storefront routes registered.
func NewRouter(svcs Services, cfg RouterConfig, logger *slog.Logger) http.Handler {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(timeout))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg.CORS))

	// Health check endpoints
	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.LivenessHandler())
		r.Get("/health/ready", cfg.Health.ReadinessHandler())
	}
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	srv := NewServer(svcs, cfg, logger)
	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.Tokens))
		mount(r, srv.Routes())
	})

	return r
}

// mount registers every route. Per-route middleware runs after the guard.
// Bodies must be JSON unless the route accepts forms.
func mount(r chi.Router, routes []Route) {
	for _, rt := range routes {
		var h http.Handler = rt.Handler
		for i := len(rt.Middleware) - 1; i >= 0; i-- {
			h = rt.Middleware[i](h)
		}
		if !rt.AcceptForm {
			h = ContentTypeJSON(h)
		}
		guard := rt.Guard
		if guard == nil {
			guard = Authenticated
		}
		r.Method(rt.Method, rt.Pattern, guarded(guard, h))
	}
}
