package http

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/roastery/internal/service"
	"github.com/utafrali/roastery/pkg/httputil"
)

// PaymentHandler receives the gateway's callback and the shopper's return.
type PaymentHandler struct {
	service *service.PaymentResultService
	logger  *slog.Logger
}

// NewPaymentHandler creates a new payment HTTP handler.
func NewPaymentHandler(svc *service.PaymentResultService, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{service: svc, logger: logger}
}

// Confirm handles POST and GET /payment/confirmation. The gateway sends the
// token as a form field; a query parameter works too. Failures answer 4xx or
// 5xx so the gateway retries.
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Confirm(r.Context(), r.FormValue("token"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, res)
}

// Return handles GET and POST /payment/return. It always answers 200; the
// outcome field says what happened.
func (h *PaymentHandler) Return(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, http.StatusOK, h.service.Return(r.Context(), r.FormValue("token")))
}
