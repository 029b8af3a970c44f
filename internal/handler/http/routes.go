package http

import (
	"net/http"

	"github.com/utafrali/roastery/internal/domain"
	apperrors "github.com/utafrali/roastery/pkg/errors"
	"github.com/utafrali/roastery/pkg/httputil"
	"github.com/utafrali/roastery/pkg/middleware"
)

// Guard decides whether the caller behind claims may reach a route. claims is
// nil for anonymous callers. A non-nil error rejects the request with the
// error's status.
type Guard func(claims *middleware.Claims) error

// Public lets every caller through.
func Public(*middleware.Claims) error { return nil }

// Authenticated requires a valid access token.
func Authenticated(claims *middleware.Claims) error {
	if claims == nil {
		return apperrors.Unauthorized("authentication required")
	}
	return nil
}

// RoleIn requires one of roles. Anonymous callers are rejected as forbidden,
// so combine it with Authenticated.
func RoleIn(roles ...string) Guard {
	return func(claims *middleware.Claims) error {
		if claims != nil {
			for _, role := range roles {
				if claims.Role == role {
					return nil
				}
			}
		}
		return apperrors.Forbidden("insufficient permissions")
	}
}

// All passes only when every guard passes, checked in order.
func All(guards ...Guard) Guard {
	return func(claims *middleware.Claims) error {
		for _, g := range guards {
			if err := g(claims); err != nil {
				return err
			}
		}
		return nil
	}
}

// Admin requires an authenticated caller with the admin role.
var Admin = All(Authenticated, RoleIn(domain.RoleAdmin))

// Route is one entry of the API table.
type Route struct {
	Method  string
	Pattern string
	Guard   Guard
	Handler http.HandlerFunc
	// Middleware wraps only this route, inside the guard.
	Middleware []func(http.Handler) http.Handler
	// AcceptForm lets form-encoded bodies through, for gateway callbacks.
	AcceptForm bool
}

// guarded enforces g using the claims OptionalAuth attached.
func guarded(g Guard, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := g(middleware.ClaimsFromContext(r.Context())); err != nil {
			httputil.WriteError(w, r, err, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Routes returns the storefront API table.
func (s *Server) Routes() []Route {
	products := []func(http.Handler) http.Handler{middleware.CacheControl(productCacheMaxAge)}
	confirmLimit := []func(http.Handler) http.Handler{s.confirmLimiter}
	visitLimit := []func(http.Handler) http.Handler{s.visitLimiter}
	resetLimit := []func(http.Handler) http.Handler{s.resetLimiter}

	return []Route{
		{Method: http.MethodPost, Pattern: "/api/v1/auth/register", Guard: Public, Handler: s.auth.Register},
		{Method: http.MethodPost, Pattern: "/api/v1/auth/login", Guard: Public, Handler: s.auth.Login},
		{Method: http.MethodPost, Pattern: "/api/v1/auth/forgot-password", Guard: Public, Handler: s.auth.ForgotPassword, Middleware: resetLimit},
		{Method: http.MethodPost, Pattern: "/api/v1/auth/reset-password", Guard: Public, Handler: s.auth.ResetPassword, Middleware: resetLimit},
		{Method: http.MethodGet, Pattern: "/api/v1/profile", Guard: Authenticated, Handler: s.auth.GetProfile},
		{Method: http.MethodPut, Pattern: "/api/v1/profile", Guard: Authenticated, Handler: s.auth.UpdateProfile},

		{Method: http.MethodGet, Pattern: "/api/v1/products", Guard: Public, Handler: s.catalog.ListProducts, Middleware: products},
		{Method: http.MethodGet, Pattern: "/api/v1/products/{id}", Guard: Public, Handler: s.catalog.GetProduct, Middleware: products},

		{Method: http.MethodGet, Pattern: "/api/v1/cart", Guard: Public, Handler: s.cart.GetCart},
		{Method: http.MethodDelete, Pattern: "/api/v1/cart", Guard: Public, Handler: s.cart.ClearCart},
		{Method: http.MethodPost, Pattern: "/api/v1/cart/merge", Guard: Authenticated, Handler: s.cart.MergeCart},
		{Method: http.MethodPost, Pattern: "/api/v1/cart/items", Guard: Public, Handler: s.cart.AddItem},
		{Method: http.MethodPut, Pattern: "/api/v1/cart/items/{productId}", Guard: Public, Handler: s.cart.UpdateItemQuantity},
		{Method: http.MethodDelete, Pattern: "/api/v1/cart/items/{productId}", Guard: Public, Handler: s.cart.RemoveItem},

		{Method: http.MethodGet, Pattern: "/api/v1/checkout/prefill", Guard: Authenticated, Handler: s.checkout.Prefill},
		{Method: http.MethodPost, Pattern: "/api/v1/checkout", Guard: Authenticated, Handler: s.checkout.Checkout},

		{Method: http.MethodPost, Pattern: "/payment/confirmation", Guard: Public, Handler: s.payment.Confirm, Middleware: confirmLimit, AcceptForm: true},
		{Method: http.MethodGet, Pattern: "/payment/confirmation", Guard: Public, Handler: s.payment.Confirm, Middleware: confirmLimit, AcceptForm: true},
		{Method: http.MethodGet, Pattern: "/payment/return", Guard: Public, Handler: s.payment.Return, AcceptForm: true},
		{Method: http.MethodPost, Pattern: "/payment/return", Guard: Public, Handler: s.payment.Return, AcceptForm: true},

		{Method: http.MethodGet, Pattern: "/api/v1/orders", Guard: Authenticated, Handler: s.orders.ListMine},
		{Method: http.MethodGet, Pattern: "/api/v1/orders/{id}", Guard: Authenticated, Handler: s.orders.Get},

		{Method: http.MethodPost, Pattern: "/api/v1/visits", Guard: Public, Handler: s.analytics.RecordVisit, Middleware: visitLimit},

		{Method: http.MethodGet, Pattern: "/api/v1/admin/orders", Guard: Admin, Handler: s.orders.ListAll},
		{Method: http.MethodGet, Pattern: "/api/v1/admin/analytics", Guard: Admin, Handler: s.analytics.Dashboard},
	}
}
