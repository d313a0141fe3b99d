package payment

import (
	"encoding/json"
	"fmt"
)

// resource is PayMongo's {id, type, attributes} object. Only the fields used
// for reconciliation are decoded.
type resource struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Attributes resourceAttributes `json:"attributes"`
}

type resourceAttributes struct {
	// event
	EventType string    `json:"type"`
	Data      *resource `json:"data"`

	// checkout_session
	CheckoutURL     string     `json:"checkout_url"`
	ReferenceNumber string     `json:"reference_number"`
	Payments        []resource `json:"payments"`
	PaymentIntent   *resource  `json:"payment_intent"`

	// payment, payment_intent
	Status string `json:"status"`

	Metadata metadata `json:"metadata"`
}

// metadata holds free-form key/value pairs; values are not always strings.
type metadata map[string]any

func (m metadata) get(key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	if n, ok := v.(json.Number); ok {
		return n.String()
	}
	return fmt.Sprint(v)
}

// checkoutSession maps a checkout_session resource.
func (r *resource) checkoutSession() *CheckoutSession {
	return &CheckoutSession{
		ID:            r.ID,
		CheckoutURL:   r.Attributes.CheckoutURL,
		PaymentStatus: r.paymentStatus(),
		OrderID:       r.orderID(),
	}
}

// paymentStatus is "paid" when any payment settled or the intent succeeded.
func (r *resource) paymentStatus() string {
	a := r.Attributes
	if r.Type == "payment" && a.Status == StatusPaid {
		return StatusPaid
	}
	for _, p := range a.Payments {
		if p.Attributes.Status == StatusPaid {
			return StatusPaid
		}
	}
	if a.PaymentIntent != nil && a.PaymentIntent.Attributes.Status == "succeeded" {
		return StatusPaid
	}
	return StatusUnpaid
}

// orderID looks for the order reference on the resource, then on its
// payments, then falls back to reference_number.
func (r *resource) orderID() string {
	if id := r.Attributes.Metadata.get("order_id"); id != "" {
		return id
	}
	for _, p := range r.Attributes.Payments {
		if id := p.Attributes.Metadata.get("order_id"); id != "" {
			return id
		}
	}
	return r.Attributes.ReferenceNumber
}
