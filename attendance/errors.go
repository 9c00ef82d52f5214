/*
errors.go - Error taxonomy shared by the reconciliation core and the
anomaly workflow.

ERROR CATEGORIES:
  1. Validation errors - missing/invalid input, rejected before any mutation
  2. Conflict errors   - precondition no longer holds (already resolved,
                         negative balance without override)
  3. Not-found errors  - unknown anomaly/employee/shift
  4. Integrity warnings - non-fatal, logged and carried in results

USAGE:
  Callers branch with errors.Is:

    if errors.Is(err, attendance.ErrConflict) { ... 409 ... }

SEE ALSO:
  - anomaly/resolution.go: produces ValidationError/ConflictError
  - api/handlers.go: maps the taxonomy onto HTTP statuses
*/
package attendance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of all reject-before-mutation failures.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when a guarded precondition does not hold
	// anymore (concurrent resolution, negative balance without override).
	ErrConflict = errors.New("conflict")

	// ErrNotFound is returned for unknown anomalies, employees or shifts.
	ErrNotFound = errors.New("not found")

	// ErrPartialResult is returned by the period aggregator when a row/day
	// cap was hit; the partial report is still returned alongside it.
	ErrPartialResult = errors.New("aggregation stopped early, partial result")

	// ErrInvalidPeriod is returned when a period ends before it starts.
	ErrInvalidPeriod = errors.New("invalid period: end before start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry the offending field or state
// =============================================================================

// ValidationError names the specific missing or invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConflictError explains why a guarded transition was refused.
type ConflictError struct {
	Reason  string
	Current string // current state that broke the precondition, if any
}

func (e *ConflictError) Error() string {
	if e.Current != "" {
		return fmt.Sprintf("%s (current: %s)", e.Reason, e.Current)
	}
	return e.Reason
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError identifies what was missing.
type NotFoundError struct {
	Kind string // "anomalie", "employe", "shift"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// =============================================================================
// INTEGRITY WARNING - Non-fatal, reported not rejected
// =============================================================================

type WarningCode string

const (
	WarnOrphanExit       WarningCode = "orphan_exit"
	WarnOpenInterval     WarningCode = "open_interval"
	WarnPlannedFallback  WarningCode = "planned_minutes_fallback"
	WarnSegmentDiscarded WarningCode = "segment_discarded"
)

// IntegrityWarning flags a tolerated data problem (orphan EXIT punch,
// uniform planned-minutes fallback). It travels with the result instead of
// failing it.
type IntegrityWarning struct {
	Code    WarningCode
	Message string
}

func (w IntegrityWarning) String() string {
	return fmt.Sprintf("%s: %s", w.Code, w.Message)
}

// IsClientError reports whether the error should map to a 4xx status.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrNotFound)
}
