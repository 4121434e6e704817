package types

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Error taxonomy shared by every component. Failures are marked with one of
// these sentinels while the upstream cause stays in the chain, so callers can
// test for both with errors.Is.
var (
	// ErrConfiguration reports an invalid dependency or option at construction.
	ErrConfiguration = errors.New("configuration error")
	// ErrValidation reports bad caller input or a malformed provider output shape.
	ErrValidation = errors.New("validation error")
	// ErrProvider wraps a failure reported by an upstream provider.
	ErrProvider = errors.New("provider error")
	// ErrTimeout reports an operation that exceeded its time budget.
	ErrTimeout = errors.New("operation timed out")
	// ErrRetryExhausted reports that the retry budget ran out on a retryable failure.
	ErrRetryExhausted = errors.New("retries exhausted")
	// ErrRateLimited may be returned (or wrapped) by providers that detect
	// throttling themselves. It is always classified as rate-limit shaped.
	ErrRateLimited = errors.New("rate limited")
)

// StatusError is returned by HTTP-backed providers for non-success responses.
// The status code drives rate-limit classification.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.Code, e.Message)
}

// StatusCode returns the upstream status code.
func (e *StatusError) StatusCode() int {
	return e.Code
}

// Configurationf builds an ErrConfiguration-marked error.
func Configurationf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrConfiguration)
}

// Validationf builds an ErrValidation-marked error.
func Validationf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}

// WrapProvider marks err as a provider failure. It returns nil for a nil err
// and leaves errors that already carry a taxonomy mark untouched.
func WrapProvider(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.IsAny(err, ErrProvider, ErrTimeout, ErrRetryExhausted, ErrValidation, ErrConfiguration) {
		return err
	}
	return errors.Mark(errors.Wrap(err, msg), ErrProvider)
}
