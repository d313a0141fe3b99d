package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper runs ReconciliationService.Sweep on a fixed interval. It picks up
// orders whose webhook never arrived.
type Sweeper struct {
	reconciler ReconciliationService
	interval   time.Duration
	logger     zerolog.Logger
}

// NewSweeper creates a sweeper. A non-positive interval disables it.
func NewSweeper(reconciler ReconciliationService, interval time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		reconciler: reconciler,
		interval:   interval,
		logger:     logger.With().Str("component", "sweeper").Logger(),
	}
}

// Run blocks until ctx is cancelled. It returns nil on cancellation.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info().Msg("reconciliation sweeper disabled")
		return nil
	}

	s.logger.Info().Dur("interval", s.interval).Msg("reconciliation sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("reconciliation sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := s.reconciler.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("reconciliation sweep failed")
			}
		}
	}
}
