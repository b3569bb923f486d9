package domain

import "errors"

// ErrorCode is the wire-level classification of a failure. Handlers marshal
// it into the error envelope so clients can branch on codes instead of
// matching message strings.
type ErrorCode string

const (
	ErrorCodeNotFound         ErrorCode = "not_found"
	ErrorCodeUnauthorized     ErrorCode = "unauthorized"
	ErrorCodeAdmissionDenied  ErrorCode = "admission_denied"
	ErrorCodeProviderRejected ErrorCode = "provider_rejected"
	ErrorCodeReconcileTimeout ErrorCode = "reconcile_timeout"
	ErrorCodeProviderFailed   ErrorCode = "provider_failed"
	ErrorCodeProviderCanceled ErrorCode = "provider_canceled"
	ErrorCodeEmptyResult      ErrorCode = "empty_result"
	ErrorCodeConfigMissing    ErrorCode = "config_missing"
	ErrorCodeInvalidRequest   ErrorCode = "invalid_request"
	ErrorCodeInternal         ErrorCode = "internal"
)

// ClassifyError maps a failure to its wire code. Unrecognized errors fall
// back to ErrorCodeInternal.
func ClassifyError(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return ErrorCodeNotFound
	case errors.Is(err, ErrUnauthorized):
		return ErrorCodeUnauthorized
	case errors.Is(err, ErrAdmissionDenied):
		return ErrorCodeAdmissionDenied
	case errors.Is(err, ErrProviderRejected):
		return ErrorCodeProviderRejected
	case errors.Is(err, ErrReconcileTimeout):
		return ErrorCodeReconcileTimeout
	case errors.Is(err, ErrProviderFailed):
		return ErrorCodeProviderFailed
	case errors.Is(err, ErrProviderCanceled):
		return ErrorCodeProviderCanceled
	case errors.Is(err, ErrEmptyResult):
		return ErrorCodeEmptyResult
	case errors.Is(err, ErrConfigMissing):
		return ErrorCodeConfigMissing
	default:
		return ErrorCodeInternal
	}
}

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrAdmissionDenied    = errors.New("admission denied")
	ErrProviderRejected   = errors.New("provider rejected submission")
	ErrReconcileTimeout   = errors.New("reconciliation timed out")
	ErrProviderFailed     = errors.New("provider reported failure")
	ErrProviderCanceled   = errors.New("provider reported cancellation")
	ErrEmptyResult        = errors.New("provider succeeded without usable output")
	ErrConfigMissing      = errors.New("provider configuration missing")
	ErrStaleTransition    = errors.New("stale status transition")
	ErrIterationExhausted = errors.New("iteration budget exhausted")
)
