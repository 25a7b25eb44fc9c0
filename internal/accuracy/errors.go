package accuracy

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or out-of-range input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a reference to a record, owner or aggregate key that
// does not exist.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

// AlreadyVerifiedError is returned when a record is reconciled a second time.
type AlreadyVerifiedError struct {
	RecordID int64
}

func (e *AlreadyVerifiedError) Error() string {
	return fmt.Sprintf("accuracy record %d already verified", e.RecordID)
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is a *NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsAlreadyVerified reports whether err is an *AlreadyVerifiedError.
func IsAlreadyVerified(err error) bool {
	var target *AlreadyVerifiedError
	return errors.As(err, &target)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
