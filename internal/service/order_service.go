package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"isawan/internal/config"
	"isawan/internal/lineitem"
	"isawan/internal/metrics"
	"isawan/internal/model"
	"isawan/internal/payment"
	"isawan/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// orderService implements OrderService.
type orderService struct {
	orderRepo repository.OrderRepository
	processor payment.Processor
	checkout  config.CheckoutConfig
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewOrderService creates a new order service.
func NewOrderService(
	orderRepo repository.OrderRepository,
	processor payment.Processor,
	checkout config.CheckoutConfig,
	m *metrics.Metrics,
	logger zerolog.Logger,
) OrderService {
	return &orderService{
		orderRepo: orderRepo,
		processor: processor,
		checkout:  checkout,
		metrics:   m,
		logger:    logger.With().Str("service", "order").Logger(),
	}
}

// PlaceOrder creates the order first and the checkout session second, so the
// session can carry the order ID. If the checkout cannot be created the
// pending order is deleted again.
func (s *orderService) PlaceOrder(ctx context.Context, req *model.OrderRequest) (*model.PlaceOrderResponse, error) {
	if req == nil {
		s.metrics.OrderPlaced("invalid")
		return nil, model.ErrNoLineItems
	}

	items := lineitem.Parse(req.Dish)
	if len(items) == 0 {
		s.logger.Warn().Strs("dish", req.Dish).Msg("no valid line items in order")
		s.metrics.OrderPlaced("invalid")
		return nil, model.ErrNoLineItems
	}

	total := lineitem.Total(items)

	order, err := s.orderRepo.Create(ctx, &model.NewOrder{
		Dish:        lineitem.Describe(items),
		Location:    req.Location,
		Contact:     req.Contact,
		Date:        req.Date,
		Time:        req.Time,
		TotalAmount: total,
		Currency:    lineitem.Currency,
	})
	if err != nil {
		s.logger.Error().Err(err).Int64("total_amount", total).Msg("failed to save order")
		s.metrics.OrderPlaced("persistence_error")
		if !errors.Is(err, model.ErrPersistence) {
			err = fmt.Errorf("%w: %w", model.ErrPersistence, err)
		}
		return nil, err
	}

	orderID := order.ID.String()

	session, err := s.processor.CreateCheckoutSession(ctx, payment.CheckoutRequest{
		OrderID:     orderID,
		Description: fmt.Sprintf("%s (%s)", order.Dish, lineitem.FormatAmount(total)),
		SuccessURL:  withOrderID(s.checkout.SuccessURL, orderID),
		CancelURL:   withOrderID(s.checkout.CancelURL, orderID),
		LineItems:   items,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", orderID).Msg("checkout session creation failed")
		s.metrics.OrderPlaced("checkout_failed")
		s.rollback(ctx, order.ID)
		if !errors.Is(err, model.ErrCheckoutFailed) {
			err = fmt.Errorf("%w: %w", model.ErrCheckoutFailed, err)
		}
		return nil, err
	}

	// The webhook path does not need the session ID, only polling does.
	if err := s.orderRepo.AttachCheckoutSession(ctx, order.ID, session.ID); err != nil {
		s.logger.Warn().
			Err(err).
			Str("order_id", orderID).
			Str("session_id", session.ID).
			Msg("failed to record checkout session on order")
	}

	s.metrics.OrderPlaced("created")
	s.logger.Info().
		Str("order_id", orderID).
		Str("session_id", session.ID).
		Int("line_items", len(items)).
		Str("total", lineitem.FormatAmount(total)).
		Msg("order placed")

	return &model.PlaceOrderResponse{
		URL:         session.CheckoutURL,
		OrderID:     order.ID,
		SessionID:   session.ID,
		TotalAmount: total,
		Currency:    lineitem.Currency,
	}, nil
}

// rollback deletes an order whose checkout could not be created. It runs even
// if the request context is already cancelled.
func (s *orderService) rollback(ctx context.Context, id uuid.UUID) {
	if err := s.orderRepo.Delete(context.WithoutCancel(ctx), id); err != nil {
		s.logger.Error().
			Err(err).
			Str("order_id", id.String()).
			Msg("failed to delete order after checkout failure, order left pending")
		return
	}

	s.logger.Info().Str("order_id", id.String()).Msg("pending order removed after checkout failure")
}

// GetOrder retrieves an order by its ID.
func (s *orderService) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, model.ErrOrderNotFound) {
			s.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to get order")
		}
		return nil, err
	}

	return order, nil
}

// withOrderID appends order_id to a redirect URL. Unparseable URLs are
// returned unchanged.
func withOrderID(raw, orderID string) string {
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	q := u.Query()
	q.Set("order_id", orderID)
	u.RawQuery = q.Encode()

	return u.String()
}
