/*
stores.go - Collaborator interfaces consumed by the reconciliation core.

PURPOSE:
  The engine reads punches and planned shifts through these narrow
  interfaces and never touches persistence directly. Implementations live
  in store/sqlite (production) and store/memory (tests/dev).

SEE ALSO:
  - reconcile.go: the only consumer of PunchStore + ShiftPlanResolver
  - anomaly/store.go: the anomaly-side store interfaces
*/
package attendance

import (
	"context"
	"time"
)

// PunchStore provides raw punch events.
type PunchStore interface {
	// Punches returns all punches for one employee in [from, to), ordered
	// by timestamp.
	Punches(ctx context.Context, employeeID string, from, to time.Time) ([]Punch, error)
}

// ShiftPlanResolver is the external-facing plan lookup. An empty slice is
// valid: no shift planned that day.
type ShiftPlanResolver interface {
	// Shifts returns the planned shifts for one employee-day.
	Shifts(ctx context.Context, employeeID string, date Day) ([]Shift, error)
}

// ShiftCorrection is the payload of a retroactive plan fix.
type ShiftCorrection struct {
	SegmentType string     // "debut", "fin", "segment", "absence"
	NewTime     *ClockTime // replacement start or end time
	Raison      string     // mandatory justification
}

// ShiftCorrector applies retroactive corrections and records converted
// extra segments. Only the anomaly resolution workflow calls it.
type ShiftCorrector interface {
	// ApplyCorrection mutates an existing shift per the payload.
	ApplyCorrection(ctx context.Context, shiftID string, c ShiftCorrection) error

	// AppendExtraSegment attaches an isExtra segment to the employee's
	// shift for that day, creating the shift when none exists. Returns the
	// shift ID.
	AppendExtraSegment(ctx context.Context, employeeID string, date Day, seg PlannedSegment) (string, error)
}
