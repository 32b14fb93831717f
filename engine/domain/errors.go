package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for validation failures.
var (
	ErrInvalidRequest         = errors.New("invalid request")
	ErrVehicleRequired        = errors.New("vehicle id is required")
	ErrDisplacementRequired   = errors.New("displacement is required for unknown vehicles")
	ErrInvalidDisplacement    = errors.New("displacement must be a positive number")
	ErrInvalidOdometer        = errors.New("odometer must be a non-negative number")
	ErrComponentRequired      = errors.New("component id is required")
	ErrUnknownAction          = errors.New("unknown maintenance action")
	ErrUnknownCondition       = errors.New("unknown reported condition")
	ErrProfileNotFound        = errors.New("profile not found")
	ErrInvalidHistoryEntry    = errors.New("invalid history entry")
	ErrCatalogEmpty           = errors.New("catalog has no profiles")
	ErrCatalogIntegrity       = errors.New("catalog integrity violation")
	ErrClassifierUnavailable  = errors.New("wear classifier unavailable")
	ErrClassifierInvalidLabel = errors.New("wear classifier returned an unknown label")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// IsClientError reports whether err should be surfaced to the caller as a
// bad request rather than a server fault.
func IsClientError(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	return errors.Is(err, ErrDisplacementRequired) || errors.Is(err, ErrInvalidRequest)
}

// IntegrityError describes one catalog task rejected at load time.
type IntegrityError struct {
	ProfileID   string
	ComponentID string
	Reason      string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: profile %q component %q: %s", ErrCatalogIntegrity, e.ProfileID, e.ComponentID, e.Reason)
}

func (e *IntegrityError) Unwrap() error { return ErrCatalogIntegrity }
