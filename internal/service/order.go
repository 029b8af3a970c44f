package service

import (
	"context"
	"fmt"

	"github.com/utafrali/roastery/internal/domain"
	"github.com/utafrali/roastery/internal/repository"
	apperrors "github.com/utafrali/roastery/pkg/errors"
	"github.com/utafrali/roastery/pkg/pagination"
)

// OrderService reads orders for their owners and for admins.
type OrderService struct {
	orders repository.OrderRepository
}

// NewOrderService creates an order service.
func NewOrderService(orders repository.OrderRepository) *OrderService {
	return &OrderService{orders: orders}
}

// ListMine returns a page of the user's orders, newest first.
func (s *OrderService) ListMine(ctx context.Context, userID string, page pagination.Params) (pagination.Result[domain.Order], error) {
	if userID == "" {
		return pagination.Result[domain.Order]{}, apperrors.Unauthorized("authentication required")
	}
	return s.list(ctx, repository.OrderFilter{UserID: &userID}, page)
}

// ListAll returns a page of every order, optionally narrowed by status.
func (s *OrderService) ListAll(ctx context.Context, status string, page pagination.Params) (pagination.Result[domain.Order], error) {
	filter := repository.OrderFilter{}
	if status != "" {
		st := domain.OrderStatus(status)
		if !st.IsValid() {
			return pagination.Result[domain.Order]{}, apperrors.InvalidInput(fmt.Sprintf("unknown order status %q", status))
		}
		filter.Status = &st
	}
	return s.list(ctx, filter, page)
}

// Get returns one order. Customers only see their own; another user's order
// is reported as not found.
func (s *OrderService) Get(ctx context.Context, userID string, isAdmin bool, id string) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAdmin && order.UserID != userID {
		return nil, apperrors.NotFound("order", id)
	}
	return order, nil
}

func (s *OrderService) list(ctx context.Context, filter repository.OrderFilter, page pagination.Params) (pagination.Result[domain.Order], error) {
	filter.Page = page.Page
	filter.PerPage = page.Limit()

	orders, total, err := s.orders.List(ctx, filter)
	if err != nil {
		return pagination.Result[domain.Order]{}, fmt.Errorf("list orders: %w", err)
	}
	return pagination.NewResult(orders, total, page), nil
}
