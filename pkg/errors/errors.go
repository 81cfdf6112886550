package errors

import (
	"errors"
	"fmt"
)

// Standard errors
var (
	// ErrNotFound is returned when a requested record is not found
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput is returned when the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreUnavailable is returned when the backing datastore is unavailable
	ErrStoreUnavailable = errors.New("datastore unavailable")

	// ErrEmbeddingUnavailable is returned when an embedding could not be produced
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrPriceUnavailable is returned when a current price could not be obtained
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrAlreadyCompleted is returned when a completed reflection record is
	// written to again; COMPLETED is terminal
	ErrAlreadyCompleted = errors.New("reflection record already completed")
)

// Wrap wraps an error with additional context
func Wrap(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's tree matches target.
// This is a convenience function that wraps errors.Is
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target, and if so, sets
// target to that error value and returns true. Otherwise, it returns false.
// This is a convenience function that wraps errors.As
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
