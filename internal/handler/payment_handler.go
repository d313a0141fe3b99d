package handler

import (
	"fmt"
	"io"
	"net/http"

	"isawan/internal/model"
	"isawan/internal/payment"
	"isawan/internal/service"

	"github.com/rs/zerolog"
)

// maxWebhookBytes caps the webhook body read into memory.
const maxWebhookBytes = 1 << 20

// PaymentHandler serves the payment reconciliation endpoints.
type PaymentHandler struct {
	reconciler service.ReconciliationService
	logger     zerolog.Logger
}

// NewPaymentHandler creates a new payment handler.
func NewPaymentHandler(reconciler service.ReconciliationService, logger zerolog.Logger) *PaymentHandler {
	return &PaymentHandler{
		reconciler: reconciler,
		logger:     logger.With().Str("handler", "payment").Logger(),
	}
}

// Webhook handles POST /webhook deliveries from the payment processor. The
// raw body is passed through untouched so the signature can be checked.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "", "method not allowed", h.logger)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeDomainError(w, fmt.Errorf("%w: %w", model.ErrMalformedPayload, err), h.logger)
		return
	}

	result, err := h.reconciler.HandleWebhook(r.Context(), body, r.Header.Get(payment.SignatureHeader))
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// VerifyPayment handles GET /verify-payment?sessionId=... from the success
// page.
func (h *PaymentHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "", "method not allowed", h.logger)
		return
	}

	result, err := h.reconciler.VerifyPayment(r.Context(), r.URL.Query().Get("sessionId"))
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
