package errors

import (
	"errors"
	"fmt"
)

// Closed set of failure classes for the bot. Callers branch on these with
// errors.Is rather than inspecting error strings.

var (
	// ErrInvalidInput indicates bad, empty, or oversized caller input.
	// Always recoverable: the operation returns nil/false to the caller.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPersistence indicates a cache flush/load I/O or serialization
	// failure. Logged and retried on the next maintenance cycle, never
	// propagated to the request path.
	ErrPersistence = errors.New("persistence failed")

	// ErrInternal indicates an unexpected failure inside hashing or
	// similarity scoring. Caught per-candidate during scans.
	ErrInternal = errors.New("internal computation failed")

	// ErrDatabaseOperation indicates a conversation-log database operation failed
	ErrDatabaseOperation = errors.New("database operation failed")

	// ErrLLMCommunication indicates the Q&A backend call failed
	ErrLLMCommunication = errors.New("llm communication failed")
)

// Wrap wraps an error with a context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// IsInvalidInput checks if error is an invalid input error
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsPersistence checks if error is a persistence error
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// IsInternal checks if error is an internal computation error
func IsInternal(err error) bool {
	return errors.Is(err, ErrInternal)
}
