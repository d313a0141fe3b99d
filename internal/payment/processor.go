// Package payment talks to the PayMongo checkout API and decodes the events
// it pushes back.
package payment

import (
	"context"
	"fmt"

	"isawan/internal/lineitem"
)

// Processor creates and inspects hosted checkout sessions.
type Processor interface {
	// CreateCheckoutSession opens a hosted checkout for one order.
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)

	// GetCheckoutSession fetches the current state of a session.
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
}

// CheckoutRequest describes the session to open.
type CheckoutRequest struct {
	OrderID     string
	Description string
	SuccessURL  string
	CancelURL   string
	LineItems   []lineitem.LineItem
}

// CheckoutSession is the subset of a PayMongo checkout session the service uses.
type CheckoutSession struct {
	ID            string
	CheckoutURL   string
	PaymentStatus string // "paid" or "unpaid"
	OrderID       string
}

// Paid reports whether the session has a settled payment.
func (s *CheckoutSession) Paid() bool {
	return s.PaymentStatus == StatusPaid
}

const (
	StatusPaid   = "paid"
	StatusUnpaid = "unpaid"
)

// ProcessorError is returned when PayMongo answers with a non-2xx status.
type ProcessorError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error // model.ErrCheckoutFailed or model.ErrPaymentProcessor
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("paymongo %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *ProcessorError) Unwrap() error {
	return e.Err
}
