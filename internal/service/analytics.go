package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/roastery/internal/domain"
	"github.com/utafrali/roastery/internal/event"
	"github.com/utafrali/roastery/internal/repository"
	apperrors "github.com/utafrali/roastery/pkg/errors"
	pkgkafka "github.com/utafrali/roastery/pkg/kafka"
)

const (
	maxPathLength     = 512
	maxReferrerLength = 1024
)

// VisitInput is a page view reported by the storefront.
type VisitInput struct {
	Path     string `json:"path" validate:"required,max=512"`
	Referrer string `json:"referrer" validate:"max=1024"`
}

// AnalyticsService records visits and sales and builds the admin dashboard.
type AnalyticsService struct {
	repo   repository.AnalyticsRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewAnalyticsService creates an analytics service.
func NewAnalyticsService(repo repository.AnalyticsRepository, logger *slog.Logger) *AnalyticsService {
	return &AnalyticsService{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RecordVisit stores one page view.
func (s *AnalyticsService) RecordVisit(ctx context.Context, path, referrer string) error {
	path = strings.TrimSpace(path)
	if path == "" || !strings.HasPrefix(path, "/") {
		return apperrors.InvalidInput("path must start with /")
	}
	if len(path) > maxPathLength {
		path = path[:maxPathLength]
	}
	if len(referrer) > maxReferrerLength {
		referrer = referrer[:maxReferrerLength]
	}

	visit := &domain.Visit{
		ID:        uuid.NewString(),
		Path:      path,
		Referrer:  referrer,
		CreatedAt: s.now(),
	}
	if err := s.repo.RecordVisit(ctx, visit); err != nil {
		return persistenceError("record visit", err)
	}
	return nil
}

// Window is how far back a dashboard of range r looks.
func Window(r domain.TimeRange) time.Duration {
	switch r {
	case domain.RangeWeekly:
		return 12 * 7 * 24 * time.Hour
	case domain.RangeMonthly:
		return 365 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

// Dashboard groups recent visits and sales by rng.
func (s *AnalyticsService) Dashboard(ctx context.Context, rng string) (*domain.Dashboard, error) {
	r, err := domain.ParseTimeRange(rng)
	if err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	since := r.BucketStart(s.now().Add(-Window(r)))

	visits, err := s.repo.ListVisits(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	sales, err := s.repo.ListSales(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}

	d := &domain.Dashboard{
		Range:       r,
		Visits:      domain.GroupVisits(visits, r),
		Sales:       domain.GroupSales(sales, r),
		TotalVisits: len(visits),
		TotalOrders: len(sales),
	}
	for _, sale := range sales {
		d.TotalSales += sale.Amount
	}
	return d, nil
}

// HandleOrderPaid records a sale for an order.paid event. Events for other
// statuses are ignored. A sale already recorded for the order is left as is,
// which is the usual case since marking an order paid writes its sale too.
func (s *AnalyticsService) HandleOrderPaid(ctx context.Context, evt *pkgkafka.Event) error {
	var data event.PaymentRecordedData
	if err := evt.UnmarshalData(&data); err != nil {
		return fmt.Errorf("decode %s payload: %w", evt.EventType, err)
	}
	if data.Status != string(domain.OrderStatusPaid) {
		return nil
	}
	if data.OrderID == "" {
		return fmt.Errorf("%s event %s has no order id", evt.EventType, evt.EventID)
	}

	at := data.RecordedAt
	if at.IsZero() {
		at = evt.Timestamp
	}
	sale := &domain.Sale{
		ID:            uuid.NewString(),
		OrderID:       data.OrderID,
		CommerceOrder: data.CommerceOrder,
		Amount:        data.TotalAmount,
		CreatedAt:     at.UTC(),
	}

	written, err := s.repo.RecordSale(ctx, sale)
	if err != nil {
		return fmt.Errorf("record sale: %w", err)
	}
	if written {
		s.logger.InfoContext(ctx, "sale recorded",
			slog.String("order_id", data.OrderID),
			slog.Int64("amount", data.TotalAmount),
		)
	}
	return nil
}
