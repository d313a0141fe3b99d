package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"isawan/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const orderColumns = `
	id, dish, location, contact, order_date, order_time, total_amount, currency,
	payment_status, status, checkout_session_id, paid_at, created_at, updated_at
`

// orderRepository implements the OrderRepository interface using PostgreSQL.
type orderRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool *pgxpool.Pool, logger zerolog.Logger) OrderRepository {
	return &orderRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "order").Logger(),
	}
}

// Create inserts a new unpaid, pending order.
func (r *orderRepository) Create(ctx context.Context, in *model.NewOrder) (*model.Order, error) {
	query := `
		INSERT INTO orders (id, dish, location, contact, order_date, order_time, total_amount, currency, payment_status, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + orderColumns

	currency := in.Currency
	if currency == "" {
		currency = "PHP"
	}

	id := uuid.New()
	row := r.pool.QueryRow(ctx, query,
		id, in.Dish, in.Location, in.Contact, in.Date, in.Time, in.TotalAmount, currency,
		model.PaymentStatusUnpaid, model.OrderStatusPending,
	)

	order, err := scanOrder(row)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to create order")
		return nil, fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}

	r.logger.Debug().
		Str("order_id", order.ID.String()).
		Int64("total_amount", order.TotalAmount).
		Msg("order created successfully")

	return order, nil
}

// GetByID retrieves an order by its ID.
func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug().Str("order_id", id.String()).Msg("order not found")
			return nil, model.ErrOrderNotFound
		}
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to query order")
		return nil, fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}

	return order, nil
}

// AttachCheckoutSession records the processor session created for an order.
func (r *orderRepository) AttachCheckoutSession(ctx context.Context, id uuid.UUID, sessionID string) error {
	query := `
		UPDATE orders
		SET checkout_session_id = $2, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, id, sessionID)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", id.String()).
			Str("session_id", sessionID).
			Bool("session_in_use", isUniqueViolation(err)).
			Msg("failed to attach checkout session")
		return fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}

	if tag.RowsAffected() == 0 {
		return model.ErrOrderNotFound
	}

	return nil
}

// UpdatePaymentStatus overwrites both status fields, refusing paid -> unpaid.
func (r *orderRepository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, paymentStatus model.PaymentStatus, status model.OrderStatus) error {
	if !paymentStatus.Valid() || !status.Valid() {
		return fmt.Errorf("invalid status pair %q/%q", paymentStatus, status)
	}

	query := `
		WITH updated AS (
			UPDATE orders
			SET payment_status = $2::text,
				status = $3::text,
				paid_at = CASE WHEN $2::text = 'paid' THEN COALESCE(paid_at, NOW()) ELSE paid_at END,
				updated_at = NOW()
			WHERE id = $1 AND NOT (payment_status = 'paid' AND $2::text = 'unpaid')
			RETURNING id
		)
		SELECT EXISTS (SELECT 1 FROM updated), EXISTS (SELECT 1 FROM orders WHERE id = $1)
	`

	var applied, exists bool
	err := r.pool.QueryRow(ctx, query, id, string(paymentStatus), string(status)).Scan(&applied, &exists)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", id.String()).
			Str("payment_status", string(paymentStatus)).
			Msg("failed to update payment status")
		return fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}

	switch {
	case applied:
		r.logger.Debug().
			Str("order_id", id.String()).
			Str("payment_status", string(paymentStatus)).
			Str("status", string(status)).
			Msg("payment status updated")
		return nil
	case !exists:
		return model.ErrOrderNotFound
	default:
		r.logger.Warn().Str("order_id", id.String()).Msg("refused to downgrade paid order")
		return model.ErrInvalidTransition
	}
}

// MarkPaid performs the unpaid -> paid transition exactly once.
//
// The status predicate sits on the UPDATE itself so that a concurrent caller
// blocked on the row lock re-evaluates it against the committed row and
// updates nothing.
func (r *orderRepository) MarkPaid(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		WITH updated AS (
			UPDATE orders
			SET payment_status = 'paid', status = 'Confirmed', paid_at = NOW(), updated_at = NOW()
			WHERE id = $1 AND payment_status = 'unpaid'
			RETURNING id
		)
		SELECT EXISTS (SELECT 1 FROM updated), EXISTS (SELECT 1 FROM orders WHERE id = $1)
	`

	var transitioned, exists bool
	if err := r.pool.QueryRow(ctx, query, id).Scan(&transitioned, &exists); err != nil {
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to mark order paid")
		return false, fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}

	if !exists {
		r.logger.Debug().Str("order_id", id.String()).Msg("order not found")
		return false, model.ErrOrderNotFound
	}

	r.logger.Debug().
		Str("order_id", id.String()).
		Bool("transitioned", transitioned).
		Msg("mark paid applied")

	return transitioned, nil
}

// Delete removes an unpaid order.
func (r *orderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM orders WHERE id = $1 AND payment_status = 'unpaid'`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to delete order")
		return fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}

	if tag.RowsAffected() == 0 {
		return model.ErrOrderNotFound
	}

	return nil
}

// ListPending returns unpaid orders that already have a checkout session.
func (r *orderRepository) ListPending(ctx context.Context, olderThan time.Time, limit int) ([]model.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE payment_status = 'unpaid'
			AND checkout_session_id IS NOT NULL
			AND created_at <= $1
		ORDER BY created_at
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, olderThan, limit)
	if err != nil {
		r.logger.Error().Err(err).Int("limit", limit).Msg("failed to query pending orders")
		return nil, fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}
	defer rows.Close()

	orders := make([]model.Order, 0, limit)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan order row")
			return nil, fmt.Errorf("%w: %w", model.ErrPersistence, err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating order rows")
		return nil, fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}

	return orders, nil
}

// scanOrder reads a row selected with orderColumns.
func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o             model.Order
		paymentStatus string
		status        string
	)

	err := row.Scan(
		&o.ID,
		&o.Dish,
		&o.Location,
		&o.Contact,
		&o.Date,
		&o.Time,
		&o.TotalAmount,
		&o.Currency,
		&paymentStatus,
		&status,
		&o.CheckoutSessionID,
		&o.PaidAt,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.PaymentStatus = model.PaymentStatus(paymentStatus)
	o.Status = model.OrderStatus(status)

	return &o, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
