package engine

import (
	"errors"
	"fmt"

	"github.com/sheikh-saqib/transaction-notification-engine/internal/storage"
)

var (
	ErrValidation             = errors.New("validation error")
	ErrNotFound               = storage.ErrNotFound
	ErrIllegalStateTransition = errors.New("illegal state transition")
	// ErrInfrastructure marks lock or persistence failures. Nothing was
	// written and the request may be retried.
	ErrInfrastructure = errors.New("infrastructure error")
)

func IsRetryable(err error) bool {
	return errors.Is(err, ErrInfrastructure)
}

func validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// classify keeps not-found errors as they are and marks everything else as
// a retryable infrastructure failure.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrValidation),
		errors.Is(err, ErrIllegalStateTransition), errors.Is(err, ErrInfrastructure):
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrInfrastructure, op, err)
}
