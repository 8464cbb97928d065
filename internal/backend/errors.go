package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrValidation is wrapped by every ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when a versioned update loses a race.
	ErrConflict = errors.New("record was modified by another request")

	// ErrPrecondition marks outcomes that are reported to the operator as
	// information rather than failures.
	ErrPrecondition = errors.New("precondition failed")

	// ErrAlreadyProcessed is returned when a frame already has processed sensors.
	ErrAlreadyProcessed = fmt.Errorf("%w: sensors for this frame were already processed", ErrPrecondition)

	// ErrNoSensors is returned when processing finds no sensors configured.
	ErrNoSensors = fmt.Errorf("%w: no sensors configured", ErrPrecondition)

	// ErrNoReading is returned by InstrumentValueSource when a sensor has no
	// usable instrument reading.
	ErrNoReading = fmt.Errorf("%w: no instrument reading available", ErrPrecondition)
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
