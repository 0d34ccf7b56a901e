// Package etlerr defines the migration error taxonomy. Every failure that
// reaches the run report is one of these kinds, so callers can classify with
// errors.Is regardless of how deeply the cause is wrapped.
package etlerr

import (
	"errors"
	"fmt"
)

// Sentinel kinds.
var (
	ErrSchemaMismatch       = errors.New("schema mismatch")
	ErrExtractFailure       = errors.New("extract failure")
	ErrLoadFailure          = errors.New("load failure")
	ErrDependencyFailed     = errors.New("dependency failed")
	ErrVerificationMismatch = errors.New("verification mismatch")
	ErrTimeout              = errors.New("timeout")
	ErrCanceled             = errors.New("canceled")
)

// SchemaMismatchError reports a source row that cannot be bound to its
// record type: an unmapped source column, an unknown target field, or a
// missing mandatory field.
type SchemaMismatchError struct {
	Table  string
	Column string
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("schema mismatch in table '%s': %s", e.Table, e.Reason)
	}
	return fmt.Sprintf("schema mismatch in table '%s', column '%s': %s", e.Table, e.Column, e.Reason)
}

// Is makes errors.Is(err, ErrSchemaMismatch) true.
func (e *SchemaMismatchError) Is(target error) bool { return target == ErrSchemaMismatch }

// ExtractError wraps a source-side failure on a given page of an entity.
type ExtractError struct {
	Entity string
	Page   int
	Cause  error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract '%s' page %d: %v", e.Entity, e.Page, e.Cause)
}

func (e *ExtractError) Unwrap() error { return e.Cause }

// Is matches ErrExtractFailure. A SchemaMismatch cause still matches
// ErrSchemaMismatch through Unwrap.
func (e *ExtractError) Is(target error) bool { return target == ErrExtractFailure }

// LoadError is the LoadFailure of a rejected bulk statement.
type LoadError struct {
	Entity     string
	BatchIndex int
	Cause      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load '%s' batch %d: %v", e.Entity, e.BatchIndex, e.Cause)
}

func (e *LoadError) Unwrap() error { return e.Cause }

func (e *LoadError) Is(target error) bool { return target == ErrLoadFailure }

// Timeout wraps cause so that it matches ErrTimeout while keeping the
// original message.
func Timeout(op string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	return fmt.Errorf("%s: %w (%v)", op, ErrTimeout, cause)
}

// Kind returns the short taxonomy name of err for reports, or "" when err
// is nil. Unclassified errors report as "error".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSchemaMismatch):
		return "SchemaMismatch"
	case errors.Is(err, ErrDependencyFailed):
		return "DependencyFailed"
	case errors.Is(err, ErrVerificationMismatch):
		return "VerificationMismatch"
	case errors.Is(err, ErrCanceled):
		return "Canceled"
	case errors.Is(err, ErrLoadFailure):
		if errors.Is(err, ErrTimeout) {
			return "LoadFailure/Timeout"
		}
		return "LoadFailure"
	case errors.Is(err, ErrExtractFailure):
		if errors.Is(err, ErrTimeout) {
			return "ExtractFailure/Timeout"
		}
		return "ExtractFailure"
	case errors.Is(err, ErrTimeout):
		return "Timeout"
	default:
		return "error"
	}
}
