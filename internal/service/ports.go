package service

import (
	"context"

	"github.com/utafrali/roastery/internal/domain"
	"github.com/utafrali/roastery/internal/gateway/flow"
)

// EventPublisher emits storefront domain events. Implemented by
// event.Producer.
type EventPublisher interface {
	PublishCartUpdated(ctx context.Context, cart *domain.Cart) error
	PublishOrderCreated(ctx context.Context, order *domain.Order) error
	PublishPaymentRecorded(ctx context.Context, order *domain.Order) error
}

// PaymentGateway opens payment sessions and reads their status. Implemented
// by flow.Client.
type PaymentGateway interface {
	CreatePayment(ctx context.Context, req flow.PaymentRequest) (*flow.PaymentSession, error)
	GetStatus(ctx context.Context, token string) (*flow.PaymentStatus, error)
}

// ProductReader prices cart lines.
type ProductReader interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}
