package domain

import (
	"errors"
	"fmt"
)

// Failure kinds reported by configuration writes and resolution.
var (
	ErrOutOfRange               = errors.New("OutOfRange")
	ErrInvalidThresholds        = errors.New("InvalidThresholds")
	ErrInvalidForHeuristicClass = errors.New("InvalidForHeuristicClass")
	ErrNoLimitSpecified         = errors.New("NoLimitSpecified")
	ErrConflictingLimits        = errors.New("ConflictingLimits")
	ErrUnknownClass             = errors.New("UnknownClass")
)

// ValidationError carries the violated invariant together with the offending field and value.
// Field uses the persisted column name so an admin form can highlight it directly.
type ValidationError struct {
	Kind   error
	Field  string
	Value  interface{}
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s=%v", e.Kind, e.Field, e.Value)
	}
	return fmt.Sprintf("%s: %s=%v (%s)", e.Kind, e.Field, e.Value, e.Detail)
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// KindName returns the failure kind as a string, e.g. "OutOfRange".
func (e *ValidationError) KindName() string {
	if e.Kind == nil {
		return ""
	}
	return e.Kind.Error()
}

func outOfRange(field string, value interface{}, detail string) *ValidationError {
	return &ValidationError{Kind: ErrOutOfRange, Field: field, Value: value, Detail: detail}
}
