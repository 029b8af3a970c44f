package http

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/roastery/internal/service"
	"github.com/utafrali/roastery/pkg/httputil"
)

// AnalyticsHandler records visits and serves the admin dashboard.
type AnalyticsHandler struct {
	service *service.AnalyticsService
	logger  *slog.Logger
}

// NewAnalyticsHandler creates a new analytics HTTP handler.
func NewAnalyticsHandler(svc *service.AnalyticsService, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{service: svc, logger: logger}
}

// RecordVisit handles POST /api/v1/visits
func (h *AnalyticsHandler) RecordVisit(w http.ResponseWriter, r *http.Request) {
	var req service.VisitInput
	if err := decodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if err := h.service.RecordVisit(r.Context(), req.Path, req.Referrer); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Dashboard handles GET /api/v1/admin/analytics?range=daily|weekly|monthly
func (h *AnalyticsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := h.service.Dashboard(r.Context(), r.URL.Query().Get("range"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, dash)
}
