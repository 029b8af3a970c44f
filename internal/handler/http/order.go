package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/roastery/internal/domain"
	"github.com/utafrali/roastery/internal/service"
	"github.com/utafrali/roastery/pkg/httputil"
	"github.com/utafrali/roastery/pkg/middleware"
	"github.com/utafrali/roastery/pkg/pagination"
)

// OrderHandler serves order history for shoppers and admins.
type OrderHandler struct {
	service *service.OrderService
	logger  *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(svc *service.OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{service: svc, logger: logger}
}

// ListMine handles GET /api/v1/orders?page=&per_page=
func (h *OrderHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.ListMine(r.Context(), middleware.UserIDFromContext(r.Context()), pagination.FromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, res)
}

// Get handles GET /api/v1/orders/{id}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	isAdmin := middleware.RoleFromContext(r.Context()) == domain.RoleAdmin
	order, err := h.service.Get(r.Context(), middleware.UserIDFromContext(r.Context()), isAdmin, id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, order)
}

// ListAll handles GET /api/v1/admin/orders?status=&page=&per_page=
func (h *OrderHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.ListAll(r.Context(), r.URL.Query().Get("status"), pagination.FromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, res)
}
