package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound reports a missing entity reference.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// IsNotFound reports whether err wraps an ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}

// DataUnavailableError is returned when no temperature profile is configured
// for a computation at all. A profile that exists but has no reading for a
// date falls through to its default instead.
type DataUnavailableError struct {
	SlotID string
	Date   time.Time
}

func (e DataUnavailableError) Error() string {
	return fmt.Sprintf("no temperature profile configured for slot %q on %s", e.SlotID, e.Date.Format("2006-01-02"))
}

// InvalidModelConfigurationError reports a model rejected at validation time,
// before any computation starts.
type InvalidModelConfigurationError struct {
	Entity EntityType
	ID     string
	Reason string
}

func (e InvalidModelConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s configuration (%s): %s", e.Entity, e.ID, e.Reason)
}

// InvalidGrowthInputError reports a non-physical intermediate value. The
// offending date is carried so callers can surface where a sequence halted.
type InvalidGrowthInputError struct {
	Date   time.Time
	Field  string
	Value  float64
	SlotID string
}

func (e InvalidGrowthInputError) Error() string {
	return fmt.Sprintf("invalid growth input on %s: %s=%g", e.Date.Format("2006-01-02"), e.Field, e.Value)
}

// RunImmutableError is returned on any attempt to mutate a completed run.
type RunImmutableError struct {
	RunID string
}

func (e RunImmutableError) Error() string {
	return fmt.Sprintf("projection run %q is completed and immutable", e.RunID)
}

// ModelFrozenError is returned when editing a model referenced by a completed run.
type ModelFrozenError struct {
	Entity EntityType
	ID     string
}

func (e ModelFrozenError) Error() string {
	return fmt.Sprintf("%s %q is referenced by a completed run and cannot be edited", e.Entity, e.ID)
}
