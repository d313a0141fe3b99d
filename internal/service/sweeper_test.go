package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"isawan/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// countingReconciler counts Sweep calls.
type countingReconciler struct {
	sweeps atomic.Int32
}

func (c *countingReconciler) HandleWebhook(context.Context, []byte, string) (*model.WebhookResult, error) {
	return nil, nil
}

func (c *countingReconciler) VerifyPayment(context.Context, string) (*model.VerificationResult, error) {
	return nil, nil
}

func (c *countingReconciler) Sweep(context.Context) (int, error) {
	c.sweeps.Add(1)
	return 0, nil
}

func TestSweeper_Disabled(t *testing.T) {
	reconciler := &countingReconciler{}
	sweeper := NewSweeper(reconciler, 0, zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- sweeper.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("disabled sweeper should return immediately")
	}
	assert.Zero(t, reconciler.sweeps.Load())
}

func TestSweeper_RunsUntilCancelled(t *testing.T) {
	reconciler := &countingReconciler{}
	sweeper := NewSweeper(reconciler, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()

	assert.Eventually(t, func() bool { return reconciler.sweeps.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancellation")
	}
}
