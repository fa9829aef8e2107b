package model

import (
	"errors"
	"fmt"
)

// ErrNoData marks expected "nothing to compute" conditions. Every
// NoDataError matches it with errors.Is.
var ErrNoData = errors.New("no data")

// ConfigurationError reports data the caller must correct before the
// operation can succeed: an evaluation without a methodology version, a
// BETWEEN condition without an upper bound, and similar.
type ConfigurationError struct {
	// Entity names the kind of record at fault (evaluation, condition, ...).
	Entity string
	// ID is the record key, zero when unknown.
	ID int64
	// Reason is a human readable description of the problem.
	Reason string
	// Err is an optional underlying cause.
	Err error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("configuration error: %s", e.Entity)
	if e.ID != 0 {
		msg += fmt.Sprintf(" %d", e.ID)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewConfigurationError creates a ConfigurationError without a cause.
func NewConfigurationError(entity string, id int64, reason string) *ConfigurationError {
	return &ConfigurationError{Entity: entity, ID: id, Reason: reason}
}

// NoDataError reports that nothing matched a computation request. It is an
// expected, recoverable outcome: batch operations skip it.
type NoDataError struct {
	EvaluationID int64
	CapabilityID int64
	DimensionID  int64
	Reason       string
}

func (e *NoDataError) Error() string {
	if e.CapabilityID == 0 && e.DimensionID == 0 {
		return fmt.Sprintf("no data for evaluation %d: %s", e.EvaluationID, e.Reason)
	}
	return fmt.Sprintf("no data for evaluation %d capability %d dimension %d: %s",
		e.EvaluationID, e.CapabilityID, e.DimensionID, e.Reason)
}

// Is makes every NoDataError match ErrNoData.
func (e *NoDataError) Is(target error) bool { return target == ErrNoData }

// IsNoData reports whether err carries a NoDataError.
func IsNoData(err error) bool {
	return errors.Is(err, ErrNoData)
}

// IsConfiguration reports whether err carries a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
