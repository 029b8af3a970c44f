package event

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/roastery/internal/domain"
	pkgkafka "github.com/utafrali/roastery/pkg/kafka"
	"github.com/utafrali/roastery/pkg/logger"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []*pkgkafka.Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, topic string, evt *pkgkafka.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.topics = append(r.topics, topic)
	r.events = append(r.events, evt)
	return nil
}

func newTestProducer(pub *recordingPublisher) *Producer {
	return NewProducer(pub, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTopicNames(t *testing.T) {
	assert.Equal(t, "roastery.cart.updated", TopicCartUpdated)
	assert.Equal(t, "roastery.order.created", TopicOrderCreated)
	assert.Equal(t, "roastery.order.paid", TopicOrderPaid)
	assert.Equal(t, "roastery.order.failed", TopicOrderFailed)
	assert.Equal(t, "roastery.user.password_reset", TopicUserPasswordReset)
}

func TestPublishCartUpdated(t *testing.T) {
	pub := &recordingPublisher{}
	cart := domain.NewCart("user-1", []domain.CartItem{{ProductID: "p1", Name: "Huila", Price: 12000, Quantity: 2}})

	require.NoError(t, newTestProducer(pub).PublishCartUpdated(context.Background(), cart))

	require.Len(t, pub.events, 1)
	assert.Equal(t, TopicCartUpdated, pub.topics[0])
	assert.Equal(t, "user-1", pub.events[0].AggregateID)
	assert.Equal(t, Source, pub.events[0].Source)

	var data CartUpdatedData
	require.NoError(t, pub.events[0].UnmarshalData(&data))
	assert.Equal(t, int64(24000), data.Total)
	assert.Equal(t, 2, data.ItemCount)
}

func TestPublishPasswordReset(t *testing.T) {
	pub := &recordingPublisher{}
	user := &domain.User{ID: "user-1", Email: "ana@example.cl", FirstName: "Ana"}
	expires := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

	require.NoError(t, newTestProducer(pub).PublishPasswordReset(context.Background(), user, "tok-abc", expires))

	require.Len(t, pub.events, 1)
	assert.Equal(t, TopicUserPasswordReset, pub.topics[0])
	assert.Equal(t, "user-1", pub.events[0].AggregateID)
	assert.Equal(t, AggregateTypeUser, pub.events[0].AggregateType)

	var data PasswordResetData
	require.NoError(t, pub.events[0].UnmarshalData(&data))
	assert.Equal(t, "ana@example.cl", data.Email)
	assert.Equal(t, "tok-abc", data.Token)
	assert.True(t, expires.Equal(data.ExpiresAt))
}

func TestPublishOrderCreated(t *testing.T) {
	pub := &recordingPublisher{}
	order := &domain.Order{
		ID:             "order-1",
		UserID:         "user-1",
		CommerceOrder:  "MYN-1-abcdef",
		Items:          []domain.OrderItem{{ProductID: "p1", Name: "Huila", UnitPrice: 12000, Quantity: 2, Subtotal: 24000}},
		SubtotalAmount: 24000,
		ShippingAmount: 3000,
		TotalAmount:    27000,
		Currency:       "CLP",
	}

	require.NoError(t, newTestProducer(pub).PublishOrderCreated(context.Background(), order))

	require.Len(t, pub.events, 1)
	assert.Equal(t, TopicOrderCreated, pub.topics[0])
	var data OrderCreatedData
	require.NoError(t, pub.events[0].UnmarshalData(&data))
	assert.Equal(t, "MYN-1-abcdef", data.CommerceOrder)
	assert.Equal(t, int64(27000), data.TotalAmount)
	require.Len(t, data.Items, 1)
	assert.Equal(t, 2, data.Items[0].Quantity)
}

func TestPublishPaymentRecorded_TopicByStatus(t *testing.T) {
	flowOrder := int64(99)
	tests := []struct {
		status domain.OrderStatus
		topic  string
	}{
		{domain.OrderStatusPaid, TopicOrderPaid},
		{domain.OrderStatusFailed, TopicOrderFailed},
		{domain.OrderStatusPending, ""},
	}

	for _, tc := range tests {
		t.Run(string(tc.status), func(t *testing.T) {
			pub := &recordingPublisher{}
			order := &domain.Order{
				ID:            "order-1",
				CommerceOrder: "MYN-1-abcdef",
				Status:        tc.status,
				TotalAmount:   27000,
				FlowOrder:     &flowOrder,
				UpdatedAt:     time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
			}

			require.NoError(t, newTestProducer(pub).PublishPaymentRecorded(context.Background(), order))

			if tc.topic == "" {
				assert.Empty(t, pub.events)
				return
			}
			require.Len(t, pub.events, 1)
			assert.Equal(t, tc.topic, pub.topics[0])

			var data PaymentRecordedData
			require.NoError(t, pub.events[0].UnmarshalData(&data))
			assert.Equal(t, string(tc.status), data.Status)
			require.NotNil(t, data.FlowOrder)
			assert.Equal(t, int64(99), *data.FlowOrder)
		})
	}
}

func TestPublish_WrapsBrokerError(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	cart := domain.NewCart("guest-1", nil)

	err := newTestProducer(pub).PublishCartUpdated(context.Background(), cart)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "roastery.cart.updated")
	assert.Contains(t, err.Error(), "broker down")
}

func TestPublish_CarriesRequestContext(t *testing.T) {
	pub := &recordingPublisher{}
	ctx := logger.WithCorrelationID(context.Background(), "corr-42")
	ctx = logger.WithCommerceOrder(ctx, "MYN-1767225600000-a1b2c3")
	order := &domain.Order{ID: "ord-1", CommerceOrder: "MYN-1767225600000-a1b2c3", Status: domain.OrderStatusPaid}

	require.NoError(t, newTestProducer(pub).PublishPaymentRecorded(ctx, order))

	require.Len(t, pub.events, 1)
	assert.Equal(t, "corr-42", pub.events[0].CorrelationID)
	assert.Equal(t, "MYN-1767225600000-a1b2c3", pub.events[0].Metadata["commerce_order"])
}
