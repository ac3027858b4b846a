package service

import (
	"errors"
	"fmt"
)

// Operational errors. Handlers match these with errors.Is and translate them
// into the stable HTTP error shape; anything else is an internal error.
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrNotFound           = errors.New("account not found or inactive")
	ErrValidation         = errors.New("validation failed")
)

// FieldError carries the offending field for validation failures. It wraps
// ErrValidation so errors.Is(err, ErrValidation) still holds.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrValidation }
