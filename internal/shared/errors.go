package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks operator input that cannot be processed as given.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidState marks a lifecycle transition that is not allowed from the current status.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrStorage wraps opaque failures from the record store.
	ErrStorage = errors.New("storage failure")
	// ErrConflict indicates a request that was already processed.
	ErrConflict = errors.New("conflict")
)

// StateError reports a rejected transition together with the status observed at the time.
type StateError struct {
	Action  string
	Current string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: cannot %s order in status %s", ErrInvalidState, e.Action, e.Current)
}

// Unwrap lets errors.Is match ErrInvalidState.
func (e *StateError) Unwrap() error {
	return ErrInvalidState
}

// Validationf builds a validation error with a formatted detail.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Storage wraps a backend error unless it already carries a domain kind.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

// IsDomainError reports whether err already maps to one of the error kinds above.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrStorage) ||
		errors.Is(err, ErrConflict)
}

// UserSafeMessage returns the message shown to operators.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	if IsDomainError(err) {
		return err.Error()
	}
	return "unexpected error, please retry"
}
