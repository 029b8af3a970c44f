package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/utafrali/roastery/internal/domain"
	"github.com/utafrali/roastery/internal/gateway/flow"
	"github.com/utafrali/roastery/internal/repository"
	apperrors "github.com/utafrali/roastery/pkg/errors"
	"github.com/utafrali/roastery/pkg/logger"
)

// ConfirmResult reports what a confirmation callback recorded.
type ConfirmResult struct {
	CommerceOrder string             `json:"commerce_order"`
	Status        domain.OrderStatus `json:"status"`
	Changed       bool               `json:"changed"`
}

// ReturnResult is what the browser landing page shows.
type ReturnResult struct {
	Outcome       domain.ReturnOutcome  `json:"outcome"`
	Status        domain.OrderStatus    `json:"status,omitempty"`
	CommerceOrder string                `json:"commerce_order,omitempty"`
	Amount        int64                 `json:"amount,omitempty"`
	FlowOrder     int64                 `json:"flow_order,omitempty"`
	Message       string                `json:"message,omitempty"`
	Actions       []domain.ReturnAction `json:"actions"`
}

// PaymentResultService records gateway results on orders. Both entry points
// may run any number of times for the same token.
type PaymentResultService struct {
	gateway PaymentGateway
	orders  repository.OrderRepository
	events  EventPublisher
	logger  *slog.Logger
}

// NewPaymentResultService creates a payment result service.
func NewPaymentResultService(gateway PaymentGateway, orders repository.OrderRepository, events EventPublisher, logger *slog.Logger) *PaymentResultService {
	return &PaymentResultService{
		gateway: gateway,
		orders:  orders,
		events:  events,
		logger:  logger,
	}
}

// Confirm handles the gateway's server-to-server callback. Status 2 records
// the order as paid and every other status as failed. A paid order is never
// moved back.
func (s *PaymentResultService) Confirm(ctx context.Context, token string) (*ConfirmResult, error) {
	if token == "" {
		return nil, apperrors.Validation("token is required")
	}

	status, err := s.fetchStatus(ctx, token)
	if err != nil {
		return nil, err
	}
	if !status.Status.Valid() {
		return nil, apperrors.StatusUnknown(fmt.Sprintf("unrecognized payment status %d", int(status.Status)))
	}

	ctx = logger.WithCommerceOrder(ctx, status.CommerceOrder)
	order, changed, err := s.record(ctx, status)
	if err != nil {
		return nil, err
	}

	return &ConfirmResult{
		CommerceOrder: status.CommerceOrder,
		Status:        order.Status,
		Changed:       changed,
	}, nil
}

// Return handles the shopper's landing after the gateway redirect. It never
// fails: every problem becomes the error outcome. A pending payment writes
// nothing. A final one is recorded the same way Confirm records it, in case
// the callback has not arrived.
func (s *PaymentResultService) Return(ctx context.Context, token string) *ReturnResult {
	if token == "" {
		return errorOutcome("missing payment token")
	}

	status, err := s.fetchStatus(ctx, token)
	if err != nil {
		return errorOutcome("could not verify the payment status")
	}
	if !status.Status.Valid() {
		s.logger.WarnContext(ctx, "unrecognized payment status on return",
			slog.Int("status", int(status.Status)),
		)
		return errorOutcome("could not verify the payment status")
	}

	ctx = logger.WithCommerceOrder(ctx, status.CommerceOrder)
	outcome := domain.OutcomeForGateway(status.Status)
	result := &ReturnResult{
		Outcome:       outcome,
		Status:        domain.OrderStatusPending,
		CommerceOrder: status.CommerceOrder,
		Amount:        status.AmountValue(),
		FlowOrder:     status.FlowOrder,
		Actions:       domain.ActionsFor(outcome),
	}
	if status.Status == domain.GatewayStatusPending {
		return result
	}

	order, _, err := s.record(ctx, status)
	if err != nil {
		// The gateway's answer is still what the shopper should see.
		logger.WithContext(ctx, s.logger).ErrorContext(ctx, "failed to record payment result on return",
			slog.String("error", err.Error()),
		)
		result.Status = domain.OrderStatusFromGateway(status.Status)
		return result
	}
	result.Status = order.Status
	if order.Status == domain.OrderStatusPaid && outcome != domain.ReturnSuccess {
		// A later rejection cannot undo a recorded payment.
		result.Outcome = domain.ReturnSuccess
		result.Actions = domain.ActionsFor(domain.ReturnSuccess)
	}
	return result
}

func (s *PaymentResultService) fetchStatus(ctx context.Context, token string) (*flow.PaymentStatus, error) {
	status, err := s.gateway.GetStatus(ctx, token)
	if err != nil {
		s.logger.WarnContext(ctx, "payment status lookup failed",
			slog.String("error", err.Error()),
		)
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && errors.Is(err, apperrors.ErrGateway) {
			return nil, apperrors.StatusUnknown("payment status could not be retrieved: " + appErr.Message)
		}
		return nil, apperrors.StatusUnknown("payment status could not be retrieved")
	}
	return status, nil
}

// record writes the mapped status through the conditional update and
// publishes an event only when the row changed.
func (s *PaymentResultService) record(ctx context.Context, status *flow.PaymentStatus) (*domain.Order, bool, error) {
	result := domain.PaymentResult{
		CommerceOrder: status.CommerceOrder,
		Status:        domain.OrderStatusFromGateway(status.Status),
		PaymentData:   status.Raw,
	}
	if status.FlowOrder != 0 {
		flowOrder := status.FlowOrder
		result.FlowOrder = &flowOrder
	}

	order, changed, err := s.orders.ApplyPaymentResult(ctx, result)
	if err != nil {
		return nil, false, persistenceError("record payment result", err)
	}

	log := logger.WithContext(ctx, s.logger)
	if !changed {
		log.InfoContext(ctx, "payment result already recorded",
			slog.String("order_id", order.ID),
			slog.String("status", string(order.Status)),
		)
		return order, false, nil
	}

	log.InfoContext(ctx, "payment result recorded",
		slog.String("order_id", order.ID),
		slog.String("status", string(order.Status)),
		slog.Int("gateway_status", int(status.Status)),
	)
	if err := s.events.PublishPaymentRecorded(ctx, order); err != nil {
		log.ErrorContext(ctx, "failed to publish payment event",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}
	return order, true, nil
}

func errorOutcome(message string) *ReturnResult {
	return &ReturnResult{
		Outcome: domain.ReturnError,
		Message: message,
		Actions: domain.ActionsFor(domain.ReturnError),
	}
}
