package service

import (
	"context"

	"isawan/internal/model"

	"github.com/google/uuid"
)

// OrderService defines operations for order intake.
type OrderService interface {
	// PlaceOrder parses the dish list, stores a pending order and opens a
	// hosted checkout for it.
	PlaceOrder(ctx context.Context, req *model.OrderRequest) (*model.PlaceOrderResponse, error)

	// GetOrder retrieves an order by its ID.
	GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error)
}

// ReconciliationService converges stored payment status with the processor.
// Every entry point funnels into the same idempotent unpaid -> paid update.
type ReconciliationService interface {
	// HandleWebhook processes a raw webhook delivery.
	HandleWebhook(ctx context.Context, body []byte, signature string) (*model.WebhookResult, error)

	// VerifyPayment polls the processor for a checkout session.
	VerifyPayment(ctx context.Context, sessionID string) (*model.VerificationResult, error)

	// Sweep polls the processor for stale pending orders and returns how many
	// were moved to paid.
	Sweep(ctx context.Context) (int, error)
}
