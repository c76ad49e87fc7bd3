package usecase

import (
	"errors"
	"fmt"

	"coach-agent/internal/domain"
)

type ErrorCode string

const (
	ErrorInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrorNotFound           ErrorCode = "NOT_FOUND"
	ErrorServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrorUpstream           ErrorCode = "UPSTREAM_ERROR"
	ErrorInternal           ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// ledgerError classifies a failed ledger read.
func ledgerError(reason string, err error) *Error {
	if errors.Is(err, domain.ErrNotFound) {
		return newError(ErrorNotFound, "user_not_found", err)
	}
	return newError(ErrorInternal, reason, err)
}

// gatewayError classifies a failed completion call. Overload that outlived
// the retry budget is reported apart from every other upstream failure.
func gatewayError(err error) *Error {
	switch {
	case errors.Is(err, domain.ErrServiceUnavailable):
		return newError(ErrorServiceUnavailable, "gemini_unavailable", err)
	case errors.Is(err, domain.ErrUpstreamMalformed):
		return newError(ErrorUpstream, "gemini_malformed_response", err)
	default:
		return newError(ErrorUpstream, "gemini_error", err)
	}
}
