package types

import "net/http"

// APIErrorKind classifies gateway-visible failures. The gateway is the single
// place that maps these to transport status codes.
type APIErrorKind string

const (
	// ErrKindValidation is a malformed request parameter.
	ErrKindValidation APIErrorKind = "validation"

	// ErrKindNotFound means the addressed entity does not exist on the ledger.
	ErrKindNotFound APIErrorKind = "not_found"

	// ErrKindPaymentRequired means no (or insufficient) payment accompanied
	// the request. The error carries the requirements for the retry.
	ErrKindPaymentRequired APIErrorKind = "payment_required"

	// ErrKindPaymentInvalid means the submitted payload failed verification.
	ErrKindPaymentInvalid APIErrorKind = "payment_invalid"

	// ErrKindSettlement means the payment transaction could not be broadcast
	// or was rejected by the ledger.
	ErrKindSettlement APIErrorKind = "settlement"

	// ErrKindUpstream means the ledger or an external data source was
	// unavailable. Logged, never retried automatically.
	ErrKindUpstream APIErrorKind = "upstream"
)

// APIError is the error shape handlers return to the gateway layer.
type APIError struct {
	Kind    APIErrorKind
	Message string
	Err     error

	// Requirements is set for ErrKindPaymentRequired so the challenge body
	// can embed the payment options.
	Requirements []PaymentRequirements
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *APIError) Unwrap() error { return e.Err }

// HTTPStatus maps the error kind to a transport status code.
func (e *APIError) HTTPStatus() int {
	switch e.Kind {
	case ErrKindValidation, ErrKindPaymentInvalid:
		return http.StatusBadRequest
	case ErrKindNotFound:
		return http.StatusNotFound
	case ErrKindPaymentRequired, ErrKindSettlement:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// NewValidationError reports a malformed request parameter.
func NewValidationError(msg string) *APIError {
	return &APIError{Kind: ErrKindValidation, Message: msg}
}

// NewNotFoundError reports an absent ledger entity.
func NewNotFoundError(msg string) *APIError {
	return &APIError{Kind: ErrKindNotFound, Message: msg}
}

// NewUpstreamError wraps a ledger or data-source failure.
func NewUpstreamError(msg string, err error) *APIError {
	return &APIError{Kind: ErrKindUpstream, Message: msg, Err: err}
}
