package readings

import (
	"errors"
	"fmt"
)

// Sentinel errors for client-caused request failures
var (
	// ErrMissingBody indicates the request carried no usable payload
	ErrMissingBody = errors.New("no data provided")

	// ErrMissingField indicates a required field was absent
	ErrMissingField = errors.New("required field missing")

	// ErrTypeMismatch indicates a field could not be coerced to its type
	ErrTypeMismatch = errors.New("invalid data types: moisture must be integer, temperature must be number")

	// ErrOutOfRange indicates a value outside its allowed range
	ErrOutOfRange = errors.New("value out of range")

	// ErrInvalidParam indicates an out-of-bounds query parameter
	ErrInvalidParam = errors.New("invalid query parameter")

	// ErrConfirmationRequired indicates a reset request without the
	// confirmation token
	ErrConfirmationRequired = errors.New("confirmation required, send {\"confirm\": \"yes-delete-all\"}")
)

// FieldError ties a validation failure to the field that caused it
type FieldError struct {
	Field  string // Field or parameter name
	Reason string // Human-readable reason
	Err    error  // Sentinel category
}

// Error implements the error interface
func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Is allows error comparison against the sentinel category
func (e *FieldError) Is(target error) bool {
	return target == e.Err
}

// Unwrap implements error unwrapping
func (e *FieldError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a client-caused validation failure as
// opposed to an empty-state or infrastructure error
func IsValidation(err error) bool {
	return errors.Is(err, ErrMissingBody) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrTypeMismatch) ||
		errors.Is(err, ErrOutOfRange) ||
		errors.Is(err, ErrInvalidParam) ||
		errors.Is(err, ErrConfirmationRequired)
}
