package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"isawan/internal/archive"
	"isawan/internal/metrics"
	"isawan/internal/model"
	"isawan/internal/payment"
	"isawan/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ReconcileOptions tunes the reconciliation service.
type ReconcileOptions struct {
	// WebhookSecret enables signature verification when non-empty.
	WebhookSecret string
	// SignatureTolerance bounds the age of a signed webhook; zero disables it.
	SignatureTolerance time.Duration
	// MinAge is how old a pending order must be before the sweeper polls it.
	MinAge time.Duration
	// BatchSize caps the orders polled per sweep.
	BatchSize int
	// Concurrency caps the processor calls in flight during a sweep.
	Concurrency int
	// ArchiveTimeout bounds each background archive write.
	ArchiveTimeout time.Duration
}

// reconciliationService implements ReconciliationService.
type reconciliationService struct {
	orderRepo repository.OrderRepository
	processor payment.Processor
	archiver  archive.Archiver
	opts      ReconcileOptions
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time

	archiving sync.WaitGroup
}

// NewReconciliationService creates a new reconciliation service. archiver may
// be nil.
func NewReconciliationService(
	orderRepo repository.OrderRepository,
	processor payment.Processor,
	archiver archive.Archiver,
	opts ReconcileOptions,
	m *metrics.Metrics,
	logger zerolog.Logger,
) ReconciliationService {
	if archiver == nil {
		archiver = archive.Nop()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.ArchiveTimeout <= 0 {
		opts.ArchiveTimeout = 10 * time.Second
	}

	return &reconciliationService{
		orderRepo: orderRepo,
		processor: processor,
		archiver:  archiver,
		opts:      opts,
		metrics:   m,
		logger:    logger.With().Str("service", "reconciliation").Logger(),
		now:       time.Now,
	}
}

// HandleWebhook archives, authenticates and decodes a delivery, then applies
// the paid transition when the event reports a settled payment for a known
// order. Anything short of a bad signature or an undecodable body is
// acknowledged so the processor does not retry.
func (s *reconciliationService) HandleWebhook(ctx context.Context, body []byte, signature string) (*model.WebhookResult, error) {
	s.archive(ctx, archive.Record{ReceivedAt: s.now(), Signature: signature, Body: bytes.Clone(body)})

	if s.opts.WebhookSecret != "" {
		if err := payment.VerifyWebhookSignature(signature, body, s.opts.WebhookSecret, s.opts.SignatureTolerance, s.now()); err != nil {
			s.logger.Warn().Err(err).Msg("rejected webhook with invalid signature")
			s.metrics.WebhookEvent("invalid_signature")
			return nil, err
		}
	}

	event, err := payment.ParseWebhookEvent(body)
	if err != nil {
		s.logger.Error().Err(err).Int("bytes", len(body)).Msg("malformed webhook payload")
		s.metrics.WebhookEvent("malformed")
		return nil, err
	}

	result := &model.WebhookResult{Received: true, OrderID: event.OrderID}

	logger := s.logger.With().
		Str("event_id", event.ID).
		Str("event_type", event.Type).
		Str("order_id", event.OrderID).
		Logger()

	if !event.Paid() || event.OrderID == "" {
		logger.Debug().Str("status", event.Status).Msg("webhook event ignored")
		s.metrics.WebhookEvent("ignored")
		return result, nil
	}

	id, err := uuid.Parse(event.OrderID)
	if err != nil {
		logger.Warn().Msg("webhook references an unknown order")
		s.metrics.WebhookEvent("unknown_order")
		return result, nil
	}

	applied, err := s.applyPaid(ctx, id, metrics.SourceWebhook)
	switch {
	case errors.Is(err, model.ErrOrderNotFound):
		logger.Warn().Msg("webhook references an unknown order")
		s.metrics.WebhookEvent("unknown_order")
	case err != nil:
		// Acknowledged anyway; the sweeper retries orders left unpaid.
		logger.Error().Err(err).Msg("failed to apply webhook payment")
		s.metrics.WebhookEvent("store_error")
	case applied:
		s.metrics.WebhookEvent("applied")
	default:
		s.metrics.WebhookEvent("duplicate")
	}

	result.Applied = applied
	return result, nil
}

// VerifyPayment asks the processor for the session status and, when paid,
// applies the transition. The processor's answer is returned even when the
// order it names is unknown to the store.
func (s *reconciliationService) VerifyPayment(ctx context.Context, sessionID string) (*model.VerificationResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, model.ErrMissingSessionID
	}

	session, err := s.processor.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to verify payment")
		if !errors.Is(err, model.ErrPaymentProcessor) {
			err = fmt.Errorf("%w: %w", model.ErrPaymentProcessor, err)
		}
		return nil, err
	}

	result := &model.VerificationResult{
		Status:  model.PaymentStatusUnpaid,
		OrderID: session.OrderID,
	}
	if !session.Paid() {
		return result, nil
	}
	result.Status = model.PaymentStatusPaid

	logger := s.logger.With().
		Str("session_id", sessionID).
		Str("order_id", session.OrderID).
		Logger()

	id, err := uuid.Parse(session.OrderID)
	if err != nil {
		logger.Warn().Msg("paid session references an unknown order")
		return result, nil
	}

	applied, err := s.applyPaid(ctx, id, metrics.SourceVerify)
	switch {
	case errors.Is(err, model.ErrOrderNotFound):
		logger.Warn().Msg("paid session references an unknown order")
	case err != nil:
		logger.Error().Err(err).Msg("failed to apply verified payment")
	}

	result.Applied = applied
	return result, nil
}

// Sweep polls the processor for pending orders older than MinAge that carry a
// checkout session. Processor failures for individual orders are logged and
// skipped.
func (s *reconciliationService) Sweep(ctx context.Context) (int, error) {
	orders, err := s.orderRepo.ListPending(ctx, s.now().Add(-s.opts.MinAge), s.opts.BatchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list pending orders")
		return 0, err
	}

	s.metrics.SweepChecked(len(orders))
	if len(orders) == 0 {
		return 0, nil
	}

	var transitioned atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for _, order := range orders {
		if order.CheckoutSessionID == nil {
			continue
		}
		id, sessionID := order.ID, *order.CheckoutSessionID

		g.Go(func() error {
			session, err := s.processor.GetCheckoutSession(gctx, sessionID)
			if err != nil {
				s.logger.Warn().
					Err(err).
					Str("order_id", id.String()).
					Str("session_id", sessionID).
					Bool("client_error", payment.IsClientError(err)).
					Msg("failed to poll checkout session")
				return nil
			}
			if !session.Paid() {
				return nil
			}

			applied, err := s.applyPaid(gctx, id, metrics.SourceSweep)
			if err != nil {
				s.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to apply swept payment")
				return nil
			}
			if applied {
				transitioned.Add(1)
			}
			return nil
		})
	}

	// Workers never return errors; failures are per order.
	_ = g.Wait()

	n := int(transitioned.Load())
	s.logger.Info().
		Int("checked", len(orders)).
		Int("transitioned", n).
		Msg("reconciliation sweep finished")

	return n, ctx.Err()
}

// archive writes rec in the background so a slow destination never delays the
// acknowledgement. The write outlives the request but not ArchiveTimeout.
func (s *reconciliationService) archive(ctx context.Context, rec archive.Record) {
	s.archiving.Add(1)
	go func() {
		defer s.archiving.Done()

		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ArchiveTimeout)
		defer cancel()

		key := rec.Key()
		if err := s.archiver.Archive(actx, key, rec); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("failed to archive webhook event")
		}
	}()
}

// applyPaid is the single write path for the unpaid -> paid transition.
func (s *reconciliationService) applyPaid(ctx context.Context, id uuid.UUID, source string) (bool, error) {
	transitioned, err := s.orderRepo.MarkPaid(ctx, id)
	if err != nil {
		return false, err
	}

	if transitioned {
		s.metrics.Transition(source)
		s.logger.Info().
			Str("order_id", id.String()).
			Str("source", source).
			Msg("order marked paid")
	} else {
		s.logger.Debug().
			Str("order_id", id.String()).
			Str("source", source).
			Msg("order already paid")
	}

	return transitioned, nil
}
