package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/roastery/internal/domain"
	pkgkafka "github.com/utafrali/roastery/pkg/kafka"
	"github.com/utafrali/roastery/pkg/logger"
)

// Topics carrying storefront events.
var (
	TopicCartUpdated  = pkgkafka.Topic("cart", "updated")
	TopicOrderCreated = pkgkafka.Topic("order", "created")
	TopicOrderPaid    = pkgkafka.Topic("order", "paid")
	TopicOrderFailed  = pkgkafka.Topic("order", "failed")

	TopicUserPasswordReset = pkgkafka.Topic("user", "password_reset")
)

// Aggregate types.
const (
	AggregateTypeCart  = "cart"
	AggregateTypeOrder = "order"
	AggregateTypeUser  = "user"
)

// Source identifies events emitted by this service.
const Source = "storefront"

// CartUpdatedData is the payload of a cart.updated event.
type CartUpdatedData struct {
	Owner     string            `json:"owner"`
	Items     []domain.CartItem `json:"items"`
	Total     int64             `json:"total"`
	ItemCount int               `json:"item_count"`
}

// OrderItemData is one line of an order event.
type OrderItemData struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// OrderCreatedData is the payload of an order.created event.
type OrderCreatedData struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	CommerceOrder  string          `json:"commerce_order"`
	Items          []OrderItemData `json:"items"`
	SubtotalAmount int64           `json:"subtotal_amount"`
	ShippingAmount int64           `json:"shipping_amount"`
	TotalAmount    int64           `json:"total_amount"`
	Currency       string          `json:"currency"`
}

// PaymentRecordedData is the payload of order.paid and order.failed events.
type PaymentRecordedData struct {
	OrderID       string    `json:"order_id"`
	UserID        string    `json:"user_id"`
	CommerceOrder string    `json:"commerce_order"`
	Status        string    `json:"status"`
	TotalAmount   int64     `json:"total_amount"`
	FlowOrder     *int64    `json:"flow_order,omitempty"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// PasswordResetData is the payload of a user.password_reset event. The mailer
// consuming it builds the reset link from Token.
type PasswordResetData struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Producer publishes storefront domain events.
type Producer struct {
	kafka  pkgkafka.Publisher
	logger *slog.Logger
}

// NewProducer creates an event producer.
func NewProducer(kafka pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCartUpdated publishes a cart.updated event with the cart's contents.
func (p *Producer) PublishCartUpdated(ctx context.Context, cart *domain.Cart) error {
	view := cart.View()
	data := CartUpdatedData{
		Owner:     view.Owner,
		Items:     view.Items,
		Total:     view.Total,
		ItemCount: view.ItemCount,
	}
	return p.publish(ctx, TopicCartUpdated, cart.Owner, AggregateTypeCart, data)
}

// PublishOrderCreated publishes an order.created event.
func (p *Producer) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	items := make([]OrderItemData, len(order.Items))
	for i, it := range order.Items {
		items[i] = OrderItemData{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		}
	}

	data := OrderCreatedData{
		ID:             order.ID,
		UserID:         order.UserID,
		CommerceOrder:  order.CommerceOrder,
		Items:          items,
		SubtotalAmount: order.SubtotalAmount,
		ShippingAmount: order.ShippingAmount,
		TotalAmount:    order.TotalAmount,
		Currency:       order.Currency,
	}
	return p.publish(ctx, TopicOrderCreated, order.ID, AggregateTypeOrder, data)
}

// PublishPaymentRecorded publishes order.paid or order.failed depending on
// the order's status. Pending orders publish nothing.
func (p *Producer) PublishPaymentRecorded(ctx context.Context, order *domain.Order) error {
	var topic string
	switch order.Status {
	case domain.OrderStatusPaid:
		topic = TopicOrderPaid
	case domain.OrderStatusFailed:
		topic = TopicOrderFailed
	default:
		return nil
	}

	data := PaymentRecordedData{
		OrderID:       order.ID,
		UserID:        order.UserID,
		CommerceOrder: order.CommerceOrder,
		Status:        string(order.Status),
		TotalAmount:   order.TotalAmount,
		FlowOrder:     order.FlowOrder,
		RecordedAt:    order.UpdatedAt,
	}
	return p.publish(ctx, topic, order.ID, AggregateTypeOrder, data)
}

// PublishPasswordReset publishes a user.password_reset event carrying a
// freshly issued reset token.
func (p *Producer) PublishPasswordReset(ctx context.Context, user *domain.User, token string, expiresAt time.Time) error {
	data := PasswordResetData{
		UserID:    user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		Token:     token,
		ExpiresAt: expiresAt,
	}
	return p.publish(ctx, TopicUserPasswordReset, user.ID, AggregateTypeUser, data)
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	evt, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, Source, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}
	if token := logger.CommerceOrderFromContext(ctx); token != "" {
		evt.WithMetadata("commerce_order", token)
	}

	if err := p.kafka.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}
