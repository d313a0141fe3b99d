package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"isawan/internal/model"

	"github.com/rs/zerolog"
)

// errorStatuses maps domain errors to HTTP status codes. Checked in order.
var errorStatuses = []struct {
	err    *model.DomainError
	status int
}{
	{model.ErrNoLineItems, http.StatusBadRequest},
	{model.ErrMissingSessionID, http.StatusBadRequest},
	{model.ErrInvalidSignature, http.StatusUnauthorized},
	{model.ErrOrderNotFound, http.StatusNotFound},
	{model.ErrInvalidTransition, http.StatusConflict},
	{model.ErrMalformedPayload, http.StatusInternalServerError},
	{model.ErrCheckoutFailed, http.StatusInternalServerError},
	{model.ErrPaymentProcessor, http.StatusInternalServerError},
	{model.ErrPersistence, http.StatusInternalServerError},
}

// statusFor resolves the status code and client-facing body for err.
// Unclassified errors are reported as a generic 500.
func statusFor(err error) (int, model.ErrorResponse) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status, model.ErrorResponse{Error: e.err.Message, Code: e.err.Code}
		}
	}
	return http.StatusInternalServerError, model.ErrorResponse{
		Error: "internal server error",
		Code:  model.ErrCodeInternalError,
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// The status line is already out; nothing useful left to send.
		return
	}
}

// writeError writes an error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, code, message string, logger zerolog.Logger) {
	logger.Warn().Str("error", message).Int("status", status).Msg("handler error")
	writeJSON(w, status, model.ErrorResponse{Error: message, Code: code})
}

// writeDomainError maps err through statusFor and writes the result. Server
// side failures are logged with the full error chain.
func writeDomainError(w http.ResponseWriter, err error, logger zerolog.Logger) {
	status, body := statusFor(err)
	event := logger.Warn()
	if status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Err(err).Int("status", status).Str("code", body.Code).Msg("request failed")
	writeJSON(w, status, body)
}
