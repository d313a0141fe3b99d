package model

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the payment state of an order. It only ever moves from
// unpaid to paid.
type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	PaymentStatusPaid   PaymentStatus = "paid"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	return s == PaymentStatusUnpaid || s == PaymentStatusPaid
}

// OrderStatus mirrors PaymentStatus at a coarser granularity.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusConfirmed OrderStatus = "Confirmed"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	return s == OrderStatusPending || s == OrderStatusConfirmed
}

// Order represents a customer order.
type Order struct {
	ID                uuid.UUID     `json:"id" db:"id"`
	Dish              string        `json:"dish" db:"dish"`
	Location          string        `json:"location" db:"location"`
	Contact           string        `json:"contact" db:"contact"`
	Date              string        `json:"date" db:"order_date"`
	Time              string        `json:"time" db:"order_time"`
	TotalAmount       int64         `json:"totalAmount" db:"total_amount"`
	Currency          string        `json:"currency" db:"currency"`
	PaymentStatus     PaymentStatus `json:"paymentStatus" db:"payment_status"`
	Status            OrderStatus   `json:"status" db:"status"`
	CheckoutSessionID *string       `json:"checkoutSessionId,omitempty" db:"checkout_session_id"`
	PaidAt            *time.Time    `json:"paidAt,omitempty" db:"paid_at"`
	CreatedAt         time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time     `json:"updatedAt" db:"updated_at"`
}

// NewOrder holds the fields of an order before the store assigns its ID.
type NewOrder struct {
	Dish        string
	Location    string
	Contact     string
	Date        string
	Time        string
	TotalAmount int64
	Currency    string
}

// OrderRequest represents the request payload for placing an order.
// Dish may be a JSON array of strings or a single comma-separated string.
type OrderRequest struct {
	Dish     DishList `json:"dish"`
	Location string   `json:"location"`
	Contact  string   `json:"contact"`
	Date     string   `json:"date"`
	Time     string   `json:"time"`
}

// PlaceOrderResponse is returned once the checkout session exists.
type PlaceOrderResponse struct {
	URL         string    `json:"url"`
	OrderID     uuid.UUID `json:"order_id"`
	SessionID   string    `json:"session_id,omitempty"`
	TotalAmount int64     `json:"total_amount"`
	Currency    string    `json:"currency"`
}

// VerificationResult is the outcome of polling the processor for a session.
type VerificationResult struct {
	Status  PaymentStatus `json:"status"`
	OrderID string        `json:"order_id"`
	Applied bool          `json:"-"`
}

// WebhookResult acknowledges a processor event.
type WebhookResult struct {
	Received bool   `json:"received"`
	Applied  bool   `json:"applied"`
	OrderID  string `json:"order_id,omitempty"`
}
