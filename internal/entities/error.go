package entities

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrProviderFailure = errors.New("rate provider failure")
	ErrCircuitOpen     = errors.New("rate provider unavailable: circuit breaker is open")
	ErrUnknownProvider = errors.New("unknown rate provider")

	// ErrExcludedCurrency is returned as is, callers match on the exact message.
	ErrExcludedCurrency = NewValidationError("Conversion involving excluded currencies is not allowed.")
)

type ValidationError struct {
	Msg string
}

func NewValidationError(format string, args ...any) *ValidationError {
	if len(args) == 0 {
		return &ValidationError{Msg: format}
	}
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ProviderError carries the upstream status of a failed provider call.
// StatusCode is zero when the request never got a response and 2xx when
// the body could not be decoded.
type ProviderError struct {
	Provider   string
	StatusCode int
	Status     string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil && e.failedStatus() {
		return e.StatusMessage() + ": " + e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s", e.Provider, e.Err.Error())
	}
	return e.StatusMessage()
}

// StatusMessage describes the failure without the upstream body or
// transport details.
func (e *ProviderError) StatusMessage() string {
	if e.failedStatus() {
		return fmt.Sprintf("provider %s: response status code does not indicate success: %s", e.Provider, e.Status)
	}
	return fmt.Sprintf("provider %s: request failed", e.Provider)
}

func (e *ProviderError) failedStatus() bool {
	return e.StatusCode != 0 && (e.StatusCode < 200 || e.StatusCode > 299)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) Is(target error) bool {
	return target == ErrProviderFailure
}

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindUpstream
	KindCircuitOpen
	KindCanceled
	KindConfiguration
)

func (k Kind) String() string {
	return [...]string{"unknown", "validation", "upstream", "circuit_open", "canceled", "configuration"}[k]
}

// KindOf classifies err so callers can branch without reading messages.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrCircuitOpen):
		return KindCircuitOpen
	case errors.Is(err, ErrUnknownProvider):
		return KindConfiguration
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrProviderFailure):
		return KindUpstream
	default:
		return KindUnknown
	}
}
