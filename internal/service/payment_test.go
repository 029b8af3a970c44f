package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/roastery/internal/domain"
	"github.com/utafrali/roastery/internal/gateway/flow"
	apperrors "github.com/utafrali/roastery/pkg/errors"
)

type paymentFixture struct {
	gateway *mockGateway
	orders  *mockOrders
	events  *mockEvents
	svc     *PaymentResultService
}

func newPaymentFixture() *paymentFixture {
	f := &paymentFixture{
		gateway: new(mockGateway),
		orders:  new(mockOrders),
		events:  new(mockEvents),
	}
	f.svc = NewPaymentResultService(f.gateway, f.orders, f.events, newTestLogger())
	return f
}

func gatewayStatus(code domain.GatewayStatus) *flow.PaymentStatus {
	return &flow.PaymentStatus{
		FlowOrder:     987654,
		CommerceOrder: "MYN-1-abcdef",
		Status:        code,
		Amount:        json.Number("27000"),
		Raw:           json.RawMessage(fmt.Sprintf(`{"status":%d}`, int(code))),
	}
}

func orderWith(status domain.OrderStatus) *domain.Order {
	return &domain.Order{ID: "order-1", CommerceOrder: "MYN-1-abcdef", Status: status, TotalAmount: 27000}
}

func resultFor(status domain.OrderStatus) any {
	return mock.MatchedBy(func(r domain.PaymentResult) bool {
		return r.CommerceOrder == "MYN-1-abcdef" &&
			r.Status == status &&
			r.FlowOrder != nil && *r.FlowOrder == 987654 &&
			len(r.PaymentData) > 0
	})
}

func TestConfirm_StatusMapping(t *testing.T) {
	tests := []struct {
		code domain.GatewayStatus
		want domain.OrderStatus
	}{
		{domain.GatewayStatusPaid, domain.OrderStatusPaid},
		{domain.GatewayStatusPending, domain.OrderStatusFailed},
		{domain.GatewayStatusRejected, domain.OrderStatusFailed},
		{domain.GatewayStatusVoided, domain.OrderStatusFailed},
	}

	for _, tc := range tests {
		t.Run(tc.code.String(), func(t *testing.T) {
			f := newPaymentFixture()
			f.gateway.On("GetStatus", mock.Anything, "tok-1").Return(gatewayStatus(tc.code), nil)
			f.orders.On("ApplyPaymentResult", mock.Anything, resultFor(tc.want)).Return(orderWith(tc.want), true, nil)
			f.events.On("PublishPaymentRecorded", mock.Anything, mock.Anything).Return(nil)

			res, err := f.svc.Confirm(context.Background(), "tok-1")
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Status)
			assert.True(t, res.Changed)
			f.events.AssertNumberOfCalls(t, "PublishPaymentRecorded", 1)
		})
	}
}

func TestConfirm_AlreadyPaidStaysPaid(t *testing.T) {
	f := newPaymentFixture()
	f.gateway.On("GetStatus", mock.Anything, "tok-1").Return(gatewayStatus(domain.GatewayStatusRejected), nil)
	f.orders.On("ApplyPaymentResult", mock.Anything, resultFor(domain.OrderStatusFailed)).
		Return(orderWith(domain.OrderStatusPaid), false, nil)

	res, err := f.svc.Confirm(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, res.Status)
	assert.False(t, res.Changed)
	f.events.AssertNotCalled(t, "PublishPaymentRecorded", mock.Anything, mock.Anything)
}

func TestConfirm_RepeatedIsNoop(t *testing.T) {
	f := newPaymentFixture()
	f.gateway.On("GetStatus", mock.Anything, "tok-1").Return(gatewayStatus(domain.GatewayStatusPaid), nil)
	f.orders.On("ApplyPaymentResult", mock.Anything, mock.Anything).Return(orderWith(domain.OrderStatusPaid), true, nil).Once()
	f.orders.On("ApplyPaymentResult", mock.Anything, mock.Anything).Return(orderWith(domain.OrderStatusPaid), false, nil).Once()
	f.events.On("PublishPaymentRecorded", mock.Anything, mock.Anything).Return(nil).Once()

	for i := 0; i < 2; i++ {
		res, err := f.svc.Confirm(context.Background(), "tok-1")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusPaid, res.Status)
	}
	f.events.AssertNumberOfCalls(t, "PublishPaymentRecorded", 1)
}

func TestConfirm_PublishFailureStillRecordsPayment(t *testing.T) {
	f := newPaymentFixture()
	f.gateway.On("GetStatus", mock.Anything, "tok-1").Return(gatewayStatus(domain.GatewayStatusPaid), nil)
	f.orders.On("ApplyPaymentResult", mock.Anything, resultFor(domain.OrderStatusPaid)).
		Return(orderWith(domain.OrderStatusPaid), true, nil).Once()
	f.orders.On("ApplyPaymentResult", mock.Anything, resultFor(domain.OrderStatusPaid)).
		Return(orderWith(domain.OrderStatusPaid), false, nil).Once()
	f.events.On("PublishPaymentRecorded", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	res, err := f.svc.Confirm(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, res.Status)
	assert.True(t, res.Changed)

	// The gateway retrying the callback finds the order paid.
	res, err = f.svc.Confirm(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, res.Status)
	assert.False(t, res.Changed)
	f.orders.AssertNumberOfCalls(t, "ApplyPaymentResult", 2)
	f.events.AssertNumberOfCalls(t, "PublishPaymentRecorded", 1)
}

func TestConfirm_EmptyToken(t *testing.T) {
	f := newPaymentFixture()
	_, err := f.svc.Confirm(context.Background(), "")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	f.gateway.AssertNotCalled(t, "GetStatus", mock.Anything, mock.Anything)
}

func TestConfirm_UnknownStatusCode(t *testing.T) {
	f := newPaymentFixture()
	f.gateway.On("GetStatus", mock.Anything, "tok-1").Return(gatewayStatus(domain.GatewayStatus(9)), nil)

	_, err := f.svc.Confirm(context.Background(), "tok-1")
	assert.ErrorIs(t, err, apperrors.ErrStatusUnknown)
	f.orders.AssertNotCalled(t, "ApplyPaymentResult", mock.Anything, mock.Anything)
}

func TestConfirm_GatewayUnreachable(t *testing.T) {
	f := newPaymentFixture()
	f.gateway.On("GetStatus", mock.Anything, "tok-1").Return(nil, apperrors.Gateway("payment gateway temporarily unavailable", nil))

	_, err := f.svc.Confirm(context.Background(), "tok-1")
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "STATUS_UNKNOWN", appErr.Code)
	assert.Contains(t, appErr.Message, "temporarily unavailable")
}

func TestConfirm_PersistenceFailure(t *testing.T) {
	f := newPaymentFixture()
	f.gateway.On("GetStatus", mock.Anything, "tok-1").Return(gatewayStatus(domain.GatewayStatusPaid), nil)
	f.orders.On("ApplyPaymentResult", mock.Anything, mock.Anything).Return(nil, false, errors.New("db down"))

	_, err := f.svc.Confirm(context.Background(), "tok-1")
	assert.ErrorIs(t, err, apperrors.ErrPersistence)
}

func TestConfirm_UnknownOrder(t *testing.T) {
	f := newPaymentFixture()
	f.gateway.On("GetStatus", mock.Anything, "tok-1").Return(gatewayStatus(domain.GatewayStatusPaid), nil)
	f.orders.On("ApplyPaymentResult", mock.Anything, mock.Anything).
		Return(nil, false, apperrors.NotFound("order", "MYN-1-abcdef"))

	_, err := f.svc.Confirm(context.Background(), "tok-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestReturn_Success(t *testing.T) {
	f := newPaymentFixture()
	f.gateway.On("GetStatus", mock.Anything, "tok-1").Return(gatewayStatus(domain.GatewayStatusPaid), nil)
	f.orders.On("ApplyPaymentResult", mock.Anything, resultFor(domain.OrderStatusPaid)).Return(orderWith(domain.OrderStatusPaid), true, nil)
	f.events.On("PublishPaymentRecorded", mock.Anything, mock.Anything).Return(nil)

	res := f.svc.Return(context.Background(), "tok-1")

	assert.Equal(t, domain.ReturnSuccess, res.Outcome)
	assert.Equal(t, domain.OrderStatusPaid, res.Status)
	assert.Equal(t, int64(27000), res.Amount)
	assert.Equal(t, int64(987654), res.FlowOrder)
	assert.Equal(t, []string{"view_orders", "continue_shopping"}, actionIDs(res.Actions))
}

func TestReturn_PendingWritesNothing(t *testing.T) {
	f := newPaymentFixture()
	f.gateway.On("GetStatus", mock.Anything, "tok-1").Return(gatewayStatus(domain.GatewayStatusPending), nil)

	res := f.svc.Return(context.Background(), "tok-1")

	assert.Equal(t, domain.ReturnPending, res.Outcome)
	assert.Equal(t, domain.OrderStatusPending, res.Status)
	assert.Equal(t, []string{"dashboard"}, actionIDs(res.Actions))
	f.orders.AssertNotCalled(t, "ApplyPaymentResult", mock.Anything, mock.Anything)
}

func TestReturn_RejectedAndVoided(t *testing.T) {
	for _, code := range []domain.GatewayStatus{domain.GatewayStatusRejected, domain.GatewayStatusVoided} {
		f := newPaymentFixture()
		f.gateway.On("GetStatus", mock.Anything, "tok-1").Return(gatewayStatus(code), nil)
		f.orders.On("ApplyPaymentResult", mock.Anything, resultFor(domain.OrderStatusFailed)).Return(orderWith(domain.OrderStatusFailed), true, nil)
		f.events.On("PublishPaymentRecorded", mock.Anything, mock.Anything).Return(nil)

		res := f.svc.Return(context.Background(), "tok-1")
		assert.Equal(t, domain.ReturnError, res.Outcome, code.String())
		assert.Equal(t, domain.OrderStatusFailed, res.Status)
		assert.Equal(t, []string{"retry", "home"}, actionIDs(res.Actions))
	}
}

func TestReturn_RefreshKeepsRecordedStatus(t *testing.T) {
	f := newPaymentFixture()
	f.gateway.On("GetStatus", mock.Anything, "tok-1").Return(gatewayStatus(domain.GatewayStatusPaid), nil)
	f.orders.On("ApplyPaymentResult", mock.Anything, mock.Anything).Return(orderWith(domain.OrderStatusPaid), true, nil).Once()
	f.orders.On("ApplyPaymentResult", mock.Anything, mock.Anything).Return(orderWith(domain.OrderStatusPaid), false, nil).Once()
	f.events.On("PublishPaymentRecorded", mock.Anything, mock.Anything).Return(nil).Once()

	first := f.svc.Return(context.Background(), "tok-1")
	second := f.svc.Return(context.Background(), "tok-1")

	assert.Equal(t, first.Outcome, second.Outcome)
	assert.Equal(t, domain.OrderStatusPaid, second.Status)
	f.events.AssertNumberOfCalls(t, "PublishPaymentRecorded", 1)
}

func TestReturn_LateRejectionAfterPaymentShowsSuccess(t *testing.T) {
	f := newPaymentFixture()
	f.gateway.On("GetStatus", mock.Anything, "tok-1").Return(gatewayStatus(domain.GatewayStatusRejected), nil)
	f.orders.On("ApplyPaymentResult", mock.Anything, mock.Anything).Return(orderWith(domain.OrderStatusPaid), false, nil)

	res := f.svc.Return(context.Background(), "tok-1")
	assert.Equal(t, domain.ReturnSuccess, res.Outcome)
	assert.Equal(t, domain.OrderStatusPaid, res.Status)
}

func TestReturn_ErrorsBecomeErrorOutcome(t *testing.T) {
	t.Run("empty token", func(t *testing.T) {
		f := newPaymentFixture()
		res := f.svc.Return(context.Background(), "")
		assert.Equal(t, domain.ReturnError, res.Outcome)
		assert.Equal(t, []string{"retry", "home"}, actionIDs(res.Actions))
	})

	t.Run("gateway failure", func(t *testing.T) {
		f := newPaymentFixture()
		f.gateway.On("GetStatus", mock.Anything, "tok-1").Return(nil, errors.New("dial tcp: refused"))
		res := f.svc.Return(context.Background(), "tok-1")
		assert.Equal(t, domain.ReturnError, res.Outcome)
	})

	t.Run("unknown status", func(t *testing.T) {
		f := newPaymentFixture()
		f.gateway.On("GetStatus", mock.Anything, "tok-1").Return(gatewayStatus(domain.GatewayStatus(0)), nil)
		res := f.svc.Return(context.Background(), "tok-1")
		assert.Equal(t, domain.ReturnError, res.Outcome)
		f.orders.AssertNotCalled(t, "ApplyPaymentResult", mock.Anything, mock.Anything)
	})

	t.Run("write failure still shows gateway answer", func(t *testing.T) {
		f := newPaymentFixture()
		f.gateway.On("GetStatus", mock.Anything, "tok-1").Return(gatewayStatus(domain.GatewayStatusPaid), nil)
		f.orders.On("ApplyPaymentResult", mock.Anything, mock.Anything).Return(nil, false, errors.New("db down"))
		res := f.svc.Return(context.Background(), "tok-1")
		assert.Equal(t, domain.ReturnSuccess, res.Outcome)
		assert.Equal(t, domain.OrderStatusPaid, res.Status)
	})
}

func actionIDs(actions []domain.ReturnAction) []string {
	ids := make([]string, len(actions))
	for i, a := range actions {
		ids[i] = a.ID
	}
	return ids
}
