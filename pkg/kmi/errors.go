package kmi

import (
	"fmt"
	"time"
)

// ValidationError is returned when caller input does not match what the
// service offers, before any request is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ConfigurationError is returned when a client cannot be constructed.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("configuration error for field '%s': %s", e.Field, e.Message)
}

// DataError is returned when a response lacks the structure a table needs.
// Time is zero when the failure is not tied to one timestamp.
type DataError struct {
	Layer   string
	Time    time.Time
	Message string
}

func (e *DataError) Error() string {
	if e.Time.IsZero() {
		return fmt.Sprintf("data error for layer %s: %s", e.Layer, e.Message)
	}
	return fmt.Sprintf("data error for layer %s at %s: %s", e.Layer, e.Time.UTC().Format(time.RFC3339), e.Message)
}
