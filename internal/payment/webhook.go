package payment

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"isawan/internal/model"
)

// SignatureHeader is the header PayMongo signs webhook deliveries with.
const SignatureHeader = "Paymongo-Signature"

// WebhookEvent is the normalised content of a webhook delivery.
type WebhookEvent struct {
	ID        string // event id, empty for the bare payment shape
	Type      string // e.g. "checkout_session.payment.paid"
	Status    string // "paid" or "unpaid"
	OrderID   string
	SessionID string
}

// Paid reports whether the event settles its order.
func (e *WebhookEvent) Paid() bool {
	return e.Status == StatusPaid
}

type webhookPayload struct {
	Data *struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			Type    string       `json:"type"`
			Data    *resource    `json:"data"`
			Payment *barePayment `json:"payment"`
		} `json:"attributes"`
	} `json:"data"`
}

// barePayment carries status and metadata directly, without the
// {id, type, attributes} wrapper of a resource.
type barePayment struct {
	Status   string   `json:"status"`
	Metadata metadata `json:"metadata"`
}

// ParseWebhookEvent decodes a webhook body. Two shapes are understood:
//
//	{"data":{"attributes":{"payment":{"status":"paid","metadata":{"order_id":"..."}}}}}
//	{"data":{"id":"evt_..","attributes":{"type":"checkout_session.payment.paid","data":{...}}}}
//
// The second is PayMongo's event envelope, wrapping either a checkout_session
// or a payment resource. Bodies that are not JSON objects return
// model.ErrMalformedPayload; unknown shapes decode to an unpaid event.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var payload webhookPayload

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrMalformedPayload, err)
	}

	event := &WebhookEvent{Status: StatusUnpaid}
	if payload.Data == nil {
		return event, nil
	}

	attrs := payload.Data.Attributes
	switch {
	case attrs.Payment != nil:
		if attrs.Payment.Status == StatusPaid {
			event.Status = StatusPaid
		}
		event.OrderID = attrs.Payment.Metadata.get("order_id")
		event.Type = "payment." + attrs.Payment.Status

	case attrs.Data != nil:
		event.ID = payload.Data.ID
		event.Type = attrs.Type

		inner := attrs.Data
		if inner.Type == "" && strings.HasPrefix(attrs.Type, "payment.") {
			inner.Type = "payment"
		}
		event.Status = inner.paymentStatus()
		if attrs.Type == "checkout_session.payment.paid" {
			event.Status = StatusPaid
		}
		event.OrderID = inner.orderID()
		if inner.Type == "checkout_session" {
			event.SessionID = inner.ID
		}
	}

	return event, nil
}

// VerifyWebhookSignature checks a Paymongo-Signature header of the form
// "t=<unix>,te=<hex>,li=<hex>" against HMAC-SHA256(secret, "<t>.<body>").
// Either the test-mode or the live-mode signature may match. A positive
// tolerance rejects timestamps further than that from now.
func VerifyWebhookSignature(header string, body []byte, secret string, tolerance time.Duration, now time.Time) error {
	if header == "" {
		return fmt.Errorf("%w: missing %s header", model.ErrInvalidSignature, SignatureHeader)
	}

	var timestamp, testSig, liveSig string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "te":
			testSig = value
		case "li":
			liveSig = value
		}
	}

	if timestamp == "" || (testSig == "" && liveSig == "") {
		return fmt.Errorf("%w: incomplete signature header", model.ErrInvalidSignature)
	}

	if tolerance > 0 {
		unix, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: bad timestamp", model.ErrInvalidSignature)
		}
		if age := now.Sub(time.Unix(unix, 0)); age > tolerance || age < -tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance", model.ErrInvalidSignature)
		}
	}

	expected := Sign(secret, timestamp, body)
	for _, candidate := range []string{testSig, liveSig} {
		if candidate == "" {
			continue
		}
		got, err := hex.DecodeString(candidate)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return nil
		}
	}

	return fmt.Errorf("%w: signature mismatch", model.ErrInvalidSignature)
}

// Sign computes the raw webhook signature for a timestamp and body.
func Sign(secret, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}

// SignatureHeaderValue builds a header value for body signed at t. The same
// signature is placed in both the te and li slots.
func SignatureHeaderValue(secret string, t time.Time, body []byte) string {
	ts := strconv.FormatInt(t.Unix(), 10)
	sig := hex.EncodeToString(Sign(secret, ts, body))
	return fmt.Sprintf("t=%s,te=%s,li=%s", ts, sig, sig)
}
