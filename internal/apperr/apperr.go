package apperr

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNetwork         = errors.New("network error")
	ErrAuth            = errors.New("no authenticated user")
	ErrForbidden       = errors.New("not allowed")
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation failed")
	ErrDataUnavailable = errors.New("data unavailable")
)

// ValidationError reports a violated precondition. It matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Network marks err as a transient transport failure.
func Network(err error) error {
	if err == nil || errors.Is(err, ErrNetwork) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrNetwork, err)
}

// Unavailable wraps the last fetch failure once every fallback is exhausted.
func Unavailable(key string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrDataUnavailable, key, cause)
}

// Retryable reports whether err is a transient network failure that a read
// may repeat. Every other error, including a cancelled context, is final.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
