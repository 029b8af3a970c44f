package domain

import (
	"encoding/json"
	"time"
)

// OrderStatus is the recorded payment outcome of an order.
type OrderStatus string

// Order status constants.
const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusPaid    OrderStatus = "paid"
	OrderStatusFailed  OrderStatus = "failed"
)

// IsValid reports whether s is a known status.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusFailed:
		return true
	}
	return false
}

// AllowedTransitions defines which status transitions are valid. A failed
// order may still become paid when a late confirmation arrives. Paid is final.
func AllowedTransitions() map[OrderStatus][]OrderStatus {
	return map[OrderStatus][]OrderStatus{
		OrderStatusPending: {OrderStatusPaid, OrderStatusFailed},
		OrderStatusFailed:  {OrderStatusPaid},
		OrderStatusPaid:    {},
	}
}

// ShippingAddress is the delivery snapshot stored on the order.
type ShippingAddress struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"required,phone"`
	Address   string `json:"address" validate:"required,max=255"`
	City      string `json:"city" validate:"required,max=100"`
	Region    string `json:"region" validate:"required,max=100"`
	ZipCode   string `json:"zip_code" validate:"omitempty,max=20"`
}

// FullName joins first and last name.
func (a ShippingAddress) FullName() string {
	if a.LastName == "" {
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

// Order is a checkout attempt and, once the gateway answers, its result.
type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	CommerceOrder   string          `json:"commerce_order"`
	Status          OrderStatus     `json:"status"`
	Items           []OrderItem     `json:"items"`
	SubtotalAmount  int64           `json:"subtotal_amount"`
	ShippingAmount  int64           `json:"shipping_amount"`
	TotalAmount     int64           `json:"total_amount"`
	Currency        string          `json:"currency"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	GatewayToken    string          `json:"-"`
	FlowOrder       *int64          `json:"flow_order,omitempty"`
	PaymentData     json.RawMessage `json:"payment_data,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// CanTransitionTo checks if the order can transition to the target status.
func (o *Order) CanTransitionTo(target OrderStatus) bool {
	for _, s := range AllowedTransitions()[o.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// IsFinal reports whether the order can no longer change.
func (o *Order) IsFinal() bool {
	return o.Status == OrderStatusPaid
}
