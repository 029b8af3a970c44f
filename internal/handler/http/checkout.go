package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/utafrali/roastery/internal/domain"
	"github.com/utafrali/roastery/internal/service"
	apperrors "github.com/utafrali/roastery/pkg/errors"
	"github.com/utafrali/roastery/pkg/httputil"
	"github.com/utafrali/roastery/pkg/middleware"
)

// IdempotencyKeyHeader lets a client retry a checkout without creating a
// second order.
const IdempotencyKeyHeader = "Idempotency-Key"

const maxIdempotencyKeyLen = 128

// CheckoutHandler serves the checkout form.
type CheckoutHandler struct {
	service *service.CheckoutService
	logger  *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler.
func NewCheckoutHandler(svc *service.CheckoutService, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{service: svc, logger: logger}
}

// Prefill handles GET /api/v1/checkout/prefill
func (h *CheckoutHandler) Prefill(w http.ResponseWriter, r *http.Request) {
	addr, err := h.service.Prefill(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, addr)
}

// Checkout handles POST /api/v1/checkout. The body is the shipping form. A
// replayed idempotency key answers 200 with the first result; a fresh
// checkout answers 201.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if len(key) > maxIdempotencyKeyLen {
		httputil.WriteError(w, r, apperrors.InvalidInput(IdempotencyKeyHeader+" header is too long"), h.logger)
		return
	}

	var shipping domain.ShippingAddress
	if err := decodeJSON(r, &shipping); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	res, err := h.service.Checkout(r.Context(), service.CheckoutInput{
		UserID:         middleware.UserIDFromContext(r.Context()),
		Shipping:       shipping,
		IdempotencyKey: key,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	httputil.WriteData(w, status, res)
}
