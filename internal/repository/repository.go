package repository

import (
	"context"
	"time"

	"isawan/internal/model"

	"github.com/google/uuid"
)

// OrderRepository defines the interface for order data access operations.
type OrderRepository interface {
	// Create inserts a new order. The store assigns the ID and starts the
	// order as unpaid and pending.
	Create(ctx context.Context, order *model.NewOrder) (*model.Order, error)

	// GetByID retrieves an order by its ID.
	// Returns model.ErrOrderNotFound if no such order exists.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)

	// AttachCheckoutSession records the processor session created for an order.
	AttachCheckoutSession(ctx context.Context, id uuid.UUID, sessionID string) error

	// UpdatePaymentStatus overwrites both status fields. A paid order is never
	// moved back to unpaid; that attempt returns model.ErrInvalidTransition.
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, paymentStatus model.PaymentStatus, status model.OrderStatus) error

	// MarkPaid moves an unpaid order to paid/confirmed in one conditional
	// update. It reports true only for the call that performed the transition;
	// repeating it on a paid order is a no-op.
	MarkPaid(ctx context.Context, id uuid.UUID) (bool, error)

	// Delete removes an unpaid order. Paid orders are never deleted.
	Delete(ctx context.Context, id uuid.UUID) error

	// ListPending returns unpaid orders with a checkout session that were
	// created at or before olderThan, oldest first.
	ListPending(ctx context.Context, olderThan time.Time, limit int) ([]model.Order, error)
}
