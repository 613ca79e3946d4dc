package repository

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrRemoteUnavailable  = errors.New("remote store unavailable")
	ErrStorageUnavailable = errors.New("local storage unavailable")
)

// ValidationError rejects a request before any storage attempt.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ErrContentRequired is returned for saves with empty content.
func ErrContentRequired() error {
	return &ValidationError{Field: "content", Message: "Content is required"}
}

// RemoteUnavailableError reports a remote call that did not complete.
// Reason is meant for display.
type RemoteUnavailableError struct {
	Op     string
	Reason string
	Err    error
}

func (e *RemoteUnavailableError) Error() string {
	return e.Reason
}

func (e *RemoteUnavailableError) Unwrap() error {
	return e.Err
}

func (e *RemoteUnavailableError) Is(target error) bool {
	return target == ErrRemoteUnavailable
}

func NewRemoteUnavailable(op, reason string, cause error) *RemoteUnavailableError {
	return &RemoteUnavailableError{Op: op, Reason: reason, Err: cause}
}

// Reason returns the display reason carried by err, falling back to its
// message for errors that are not RemoteUnavailableError.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var ru *RemoteUnavailableError
	if errors.As(err, &ru) && ru.Reason != "" {
		return ru.Reason
	}
	return err.Error()
}

// StorageUnavailable wraps a local backend failure.
func StorageUnavailable(op string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, cause)
}
