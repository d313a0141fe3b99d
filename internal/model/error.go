package model

// ErrorResponse represents a standardised error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Standard error codes for API responses
const (
	ErrCodeInvalidJSON       = "INVALID_JSON"
	ErrCodeNoLineItems       = "NO_LINE_ITEMS"
	ErrCodeMissingSessionID  = "MISSING_SESSION_ID"
	ErrCodeOrderNotFound     = "ORDER_NOT_FOUND"
	ErrCodePersistence       = "PERSISTENCE_ERROR"
	ErrCodeCheckoutFailed    = "CHECKOUT_SESSION_FAILED"
	ErrCodePaymentProcessor  = "PAYMENT_PROCESSOR_ERROR"
	ErrCodeMalformedPayload  = "MALFORMED_PAYLOAD"
	ErrCodeInvalidSignature  = "INVALID_SIGNATURE"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeUnauthorised      = "UNAUTHORIZED"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// Domain errors for business logic
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Validation errors are reported to the client as 400 and never retried.
var (
	ErrNoLineItems      = NewDomainError(ErrCodeNoLineItems, "No valid dishes found. Use the format \"Name - Price\"")
	ErrMissingSessionID = NewDomainError(ErrCodeMissingSessionID, "Missing sessionId")
)

// Store errors.
var (
	ErrOrderNotFound     = NewDomainError(ErrCodeOrderNotFound, "Order not found")
	ErrPersistence       = NewDomainError(ErrCodePersistence, "Error saving order")
	ErrInvalidTransition = NewDomainError(ErrCodeInvalidTransition, "Payment status cannot move from paid back to unpaid")
)

// Payment processor errors.
var (
	ErrCheckoutFailed   = NewDomainError(ErrCodeCheckoutFailed, "Checkout session creation failed")
	ErrPaymentProcessor = NewDomainError(ErrCodePaymentProcessor, "Payment processor request failed")
	ErrMalformedPayload = NewDomainError(ErrCodeMalformedPayload, "Malformed webhook payload")
	ErrInvalidSignature = NewDomainError(ErrCodeInvalidSignature, "Invalid webhook signature")
)
