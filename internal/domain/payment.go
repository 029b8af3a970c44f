package domain

import "encoding/json"

// GatewayStatus is the numeric payment status reported by the gateway.
type GatewayStatus int

const (
	GatewayStatusPending  GatewayStatus = 1
	GatewayStatusPaid     GatewayStatus = 2
	GatewayStatusRejected GatewayStatus = 3
	GatewayStatusVoided   GatewayStatus = 4
)

// Valid reports whether s is one of the four codes the gateway documents.
func (s GatewayStatus) Valid() bool {
	return s >= GatewayStatusPending && s <= GatewayStatusVoided
}

func (s GatewayStatus) String() string {
	switch s {
	case GatewayStatusPending:
		return "pending"
	case GatewayStatusPaid:
		return "paid"
	case GatewayStatusRejected:
		return "rejected"
	case GatewayStatusVoided:
		return "voided"
	default:
		return "unknown"
	}
}

// OrderStatusFromGateway maps a gateway code to the recorded status: paid for
// 2, failed for anything else.
func OrderStatusFromGateway(s GatewayStatus) OrderStatus {
	if s == GatewayStatusPaid {
		return OrderStatusPaid
	}
	return OrderStatusFailed
}

// PaymentResult is what gets written onto an order once the gateway reports.
type PaymentResult struct {
	CommerceOrder string
	Status        OrderStatus
	FlowOrder     *int64
	PaymentData   json.RawMessage
}

// ReturnOutcome is what the shopper sees after coming back from the gateway.
type ReturnOutcome string

const (
	// ReturnLoading is the client's state before the server has answered.
	ReturnLoading ReturnOutcome = "loading"
	ReturnSuccess ReturnOutcome = "success"
	ReturnPending ReturnOutcome = "pending"
	ReturnError   ReturnOutcome = "error"
)

// ReturnAction is a navigation choice offered with an outcome.
type ReturnAction struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Path  string `json:"path"`
}

var (
	actionViewOrders       = ReturnAction{ID: "view_orders", Label: "Ver mis pedidos", Path: "/dashboard"}
	actionContinueShopping = ReturnAction{ID: "continue_shopping", Label: "Seguir comprando", Path: "/shop"}
	actionDashboard        = ReturnAction{ID: "dashboard", Label: "Ir a mi cuenta", Path: "/dashboard"}
	actionRetry            = ReturnAction{ID: "retry", Label: "Intentar nuevamente", Path: "/shop"}
	actionHome             = ReturnAction{ID: "home", Label: "Volver al inicio", Path: "/"}
)

// ActionsFor returns the navigation choices for an outcome.
func ActionsFor(o ReturnOutcome) []ReturnAction {
	switch o {
	case ReturnSuccess:
		return []ReturnAction{actionViewOrders, actionContinueShopping}
	case ReturnPending:
		return []ReturnAction{actionDashboard}
	case ReturnError:
		return []ReturnAction{actionRetry, actionHome}
	default:
		return nil
	}
}

// OutcomeForGateway maps a gateway code to the return page outcome.
func OutcomeForGateway(s GatewayStatus) ReturnOutcome {
	switch s {
	case GatewayStatusPaid:
		return ReturnSuccess
	case GatewayStatusPending:
		return ReturnPending
	default:
		return ReturnError
	}
}

// CheckoutStage is where a checkout attempt stands.
type CheckoutStage string

const (
	StageCollecting        CheckoutStage = "collecting"
	StageSubmitting        CheckoutStage = "submitting"
	StageRequestingPayment CheckoutStage = "requesting_payment"
	StageRedirecting       CheckoutStage = "redirecting"
	StageFailed            CheckoutStage = "failed"
)
