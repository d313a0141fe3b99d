package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"isawan/internal/config"
	"isawan/internal/lineitem"
	"isawan/internal/model"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "isawan/payment"

	// maxErrorBody caps how much of a failed response is kept for logs.
	maxErrorBody = 4 << 10
)

// Client is a PayMongo API client.
type Client struct {
	baseURL        string
	authHeader     string
	paymentMethods []string
	httpClient     *http.Client
	tracer         trace.Tracer
	logger         zerolog.Logger
}

// NewClient creates a PayMongo client from configuration.
func NewClient(cfg config.PayMongoConfig, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		authHeader:     "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.SecretKey+":")),
		paymentMethods: cfg.PaymentMethods,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
			},
		},
		tracer: otel.Tracer(tracerName),
		logger: logger.With().Str("component", "paymongo").Logger(),
	}
}

type checkoutLineItem struct {
	Name     string `json:"name"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Quantity int    `json:"quantity"`
}

type checkoutAttributes struct {
	LineItems          []checkoutLineItem `json:"line_items"`
	PaymentMethodTypes []string           `json:"payment_method_types"`
	SuccessURL         string             `json:"success_url,omitempty"`
	CancelURL          string             `json:"cancel_url,omitempty"`
	Description        string             `json:"description,omitempty"`
	ReferenceNumber    string             `json:"reference_number,omitempty"`
	Metadata           map[string]string  `json:"metadata,omitempty"`
	SendEmailReceipt   bool               `json:"send_email_receipt"`
	ShowDescription    bool               `json:"show_description"`
	ShowLineItems      bool               `json:"show_line_items"`
}

type checkoutSessionRequest struct {
	Data struct {
		Attributes checkoutAttributes `json:"attributes"`
	} `json:"data"`
}

type checkoutSessionResponse struct {
	Data resource `json:"data"`
}

// CreateCheckoutSession opens a hosted checkout with the order ID attached as
// metadata.order_id and reference_number.
func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if len(req.LineItems) == 0 {
		return nil, model.ErrNoLineItems
	}

	items := make([]checkoutLineItem, 0, len(req.LineItems))
	for _, item := range req.LineItems {
		if item.Quantity <= 0 || item.UnitAmount < 0 {
			return nil, fmt.Errorf("%w: invalid line item %q", model.ErrCheckoutFailed, item.Name)
		}
		currency := item.Currency
		if currency == "" {
			currency = lineitem.Currency
		}
		items = append(items, checkoutLineItem{
			Name:     item.Name,
			Amount:   item.UnitAmount,
			Currency: currency,
			Quantity: item.Quantity,
		})
	}

	description := req.Description
	if description == "" {
		description = lineitem.Describe(req.LineItems)
	}

	var body checkoutSessionRequest
	body.Data.Attributes = checkoutAttributes{
		LineItems:          items,
		PaymentMethodTypes: c.paymentMethods,
		SuccessURL:         req.SuccessURL,
		CancelURL:          req.CancelURL,
		Description:        description,
		ReferenceNumber:    req.OrderID,
		Metadata:           map[string]string{"order_id": req.OrderID},
		SendEmailReceipt:   true,
		ShowDescription:    true,
		ShowLineItems:      true,
	}

	var resp checkoutSessionResponse
	if err := c.do(ctx, "create_checkout_session", http.MethodPost, "/checkout_sessions", body, &resp, model.ErrCheckoutFailed); err != nil {
		c.logger.Error().Err(err).Str("order_id", req.OrderID).Msg("failed to create checkout session")
		return nil, err
	}

	session := resp.Data.checkoutSession()
	if session.ID == "" || session.CheckoutURL == "" {
		return nil, fmt.Errorf("%w: response has no session id or checkout url", model.ErrCheckoutFailed)
	}
	if session.OrderID == "" {
		session.OrderID = req.OrderID
	}

	c.logger.Info().
		Str("order_id", req.OrderID).
		Str("session_id", session.ID).
		Int64("total_amount", lineitem.Total(req.LineItems)).
		Msg("checkout session created")

	return session, nil
}

// GetCheckoutSession fetches a session and derives its payment status.
func (c *Client) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	if sessionID == "" {
		return nil, model.ErrMissingSessionID
	}

	var resp checkoutSessionResponse
	path := "/checkout_sessions/" + url.PathEscape(sessionID)
	if err := c.do(ctx, "get_checkout_session", http.MethodGet, path, nil, &resp, model.ErrPaymentProcessor); err != nil {
		c.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to retrieve checkout session")
		return nil, err
	}

	session := resp.Data.checkoutSession()
	if session.ID == "" {
		session.ID = sessionID
	}

	c.logger.Debug().
		Str("session_id", session.ID).
		Str("order_id", session.OrderID).
		Str("status", session.PaymentStatus).
		Msg("checkout session retrieved")

	return session, nil
}

// do performs one authenticated call inside a client span. Any failure is
// wrapped with sentinel.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any, sentinel error) error {
	ctx, span := c.tracer.Start(ctx, "paymongo."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	endpoint := c.baseURL + path
	span.SetAttributes(
		attribute.String("http.url", endpoint),
		attribute.String("http.method", method),
	)

	var reqBody io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("%w: encode request: %w", sentinel, err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: build request: %w", sentinel, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.authHeader)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		perr := &ProcessorError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       errorDetail(raw),
			Err:        sentinel,
		}
		span.RecordError(perr)
		span.SetStatus(codes.Error, perr.Error())
		return perr
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode response")
		return fmt.Errorf("%w: decode response: %w", sentinel, err)
	}

	return nil
}

// errorDetail extracts PayMongo's error details, falling back to the raw body.
func errorDetail(raw []byte) string {
	var body struct {
		Errors []struct {
			Code   string `json:"code"`
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Errors) == 0 {
		return strings.TrimSpace(string(raw))
	}

	details := make([]string, 0, len(body.Errors))
	for _, e := range body.Errors {
		if e.Code != "" {
			details = append(details, e.Code+": "+e.Detail)
			continue
		}
		details = append(details, e.Detail)
	}
	return strings.Join(details, "; ")
}

// IsClientError reports whether err is a 4xx answer from PayMongo.
func IsClientError(err error) bool {
	var perr *ProcessorError
	return errors.As(err, &perr) && perr.StatusCode >= 400 && perr.StatusCode < 500
}
