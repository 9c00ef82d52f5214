/*
Package attendance is the reconciliation core: it pairs raw clock punches
into worked intervals, compares them against the planned shift segments and
produces a per-day balance plus typed deviations.

PURPOSE:
  Everything in this package is a pure computation over punches + plan.
  Persistence lives behind the narrow collaborator interfaces in stores.go;
  the anomaly lifecycle (validation workflow, payroll side effects) lives in
  the anomaly package.

KEY CONCEPTS IN THIS FILE (types.go):
  - Punch: one immutable clock-in/clock-out event
  - Shift / PlannedSegment: what the plan says the employee should work
  - WorkedInterval: derived pairing of an entry with its exit
  - Deviation: one typed mismatch between plan and reality
  - DailyBalance: planned vs worked minutes for one employee-day

DESIGN PRINCIPLES:
  1. Punches are never mutated; pairing is a function of (punches, now)
  2. Minutes are ints; hours and money use decimal.Decimal
  3. Segments flagged IsExtra never count toward official planned time

SEE ALSO:
  - pairing.go: punch pairing algorithm
  - reconcile.go: deviation derivation and daily balance
  - classify.go: deviation -> severity mapping
*/
package attendance

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PUNCH - Raw clock event
// =============================================================================

type PunchKind string

const (
	PunchEntry PunchKind = "entree"
	PunchExit  PunchKind = "sortie"
)

// Punch is a single clock event. Immutable once recorded; timestamp order
// is the only meaningful relation between punches.
type Punch struct {
	ID         string
	EmployeeID string
	At         time.Time
	Kind       PunchKind
}

// =============================================================================
// SHIFT PLAN - What the schedule says
// =============================================================================

type ShiftKind string

const (
	ShiftWork    ShiftKind = "travail"
	ShiftLeave   ShiftKind = "conge"
	ShiftAbsence ShiftKind = "absence"
)

// PlannedSegment is one scheduled interval of a shift. Start/End are clock
// times on the shift's day; End may wrap past midnight (End < Start means
// the segment finishes on the next calendar day).
type PlannedSegment struct {
	Start   ClockTime
	End     ClockTime
	IsExtra bool   // off-books segment, excluded from official planned hours
	Motif   string // optional free text
}

// Normalized returns the segment with a wrapped end time pushed past 24h so
// duration arithmetic stays monotonic.
func (s PlannedSegment) Normalized() PlannedSegment {
	if s.End < s.Start {
		s.End += 24 * 60
	}
	return s
}

// DurationMinutes is the planned length of the segment.
func (s PlannedSegment) DurationMinutes() int {
	n := s.Normalized()
	return n.End.Minutes() - n.Start.Minutes()
}

// Shift is the plan for one employee-day.
type Shift struct {
	ID         string
	EmployeeID string
	Date       Day
	Kind       ShiftKind
	Segments   []PlannedSegment
	Motif      string // leave/absence reason
	Notes      string
}

// PlannedMinutes sums the ordinary (non-extra) segment durations.
func (s Shift) PlannedMinutes() int {
	total := 0
	for _, seg := range s.Segments {
		if seg.IsExtra {
			continue
		}
		total += seg.DurationMinutes()
	}
	return total
}

// =============================================================================
// WORKED INTERVAL - Derived from punch pairing
// =============================================================================

// WorkedInterval is one continuous worked span built from an ENTRY and the
// matching EXIT. Open is true when the session had no exit yet and End is
// the evaluation instant.
type WorkedInterval struct {
	Start time.Time
	End   time.Time
	Open  bool
}

func (w WorkedInterval) Minutes() int { return MinutesBetween(w.Start, w.End) }

// OverlapMinutes returns how much of the interval falls inside the planned
// segment when the segment is anchored on the given day.
func (w WorkedInterval) OverlapMinutes(day Day, seg PlannedSegment) int {
	n := seg.Normalized()
	segStart := day.At(n.Start)
	segEnd := day.At(n.End)
	start := w.Start
	if segStart.After(start) {
		start = segStart
	}
	end := w.End
	if segEnd.Before(end) {
		end = segEnd
	}
	if !end.After(start) {
		return 0
	}
	return MinutesBetween(start, end)
}

// =============================================================================
// DEVIATION - One plan/reality mismatch
// =============================================================================

type DeviationType string

const (
	DeviationRetard            DeviationType = "retard"
	DeviationDepartAnticipe    DeviationType = "depart_anticipe"
	DeviationHeuresSup         DeviationType = "heures_sup"
	DeviationAbsenceTotale     DeviationType = "absence_totale"
	DeviationPresenceNonPrevue DeviationType = "presence_non_prevue"
	DeviationHorsPlage         DeviationType = "hors_plage"
	DeviationPointageManquant  DeviationType = "pointage_manquant"
	// Absence was planned but the employee clocked in anyway.
	DeviationAbsenceAvecPointage DeviationType = "absence_planifiee_avec_pointage"
)

// Deviation is a computed mismatch for one segment (or one unplanned
// interval) of an employee-day. EcartMinutes is actual minus planned:
// positive for a late arrival or extra worked time, negative for an early
// departure.
type Deviation struct {
	Type         DeviationType
	EmployeeID   string
	Date         Day
	SegmentIndex int // 1-based; 0 when not tied to a planned segment
	EcartMinutes int
	PlannedStart ClockTime
	PlannedEnd   ClockTime
	ActualStart  time.Time
	ActualEnd    time.Time
	Description  string
}

// =============================================================================
// DAILY BALANCE - Planned vs worked for one employee-day
// =============================================================================

// DailyBalance is recomputed on demand from punches + plan; it is never
// persisted as a source of truth.
type DailyBalance struct {
	EmployeeID        string
	Date              Day
	PlannedMinutes    int
	WorkedMinutes     int
	NetBalanceMinutes int
	Segments          []SegmentBalance
}

// SegmentBalance is the per-segment detail behind a DailyBalance.
type SegmentBalance struct {
	ShiftID        string
	Index          int // 1-based
	PlannedStart   ClockTime
	PlannedEnd     ClockTime
	PlannedMinutes int
	ActualStart    *time.Time
	ActualEnd      *time.Time
	WorkedMinutes  int
}

// NetHours converts the net balance into decimal hours (2 dp).
func (b DailyBalance) NetHours() decimal.Decimal {
	return decimal.NewFromInt(int64(b.NetBalanceMinutes)).
		Div(decimal.NewFromInt(60)).Round(2)
}

// =============================================================================
// DAY REPORT - Full reconciliation output for one employee-day
// =============================================================================

// DayReport bundles the balance, the deviations and any non-fatal
// integrity warnings produced while reconciling one employee-day.
type DayReport struct {
	Balance    DailyBalance
	Deviations []Deviation
	Warnings   []IntegrityWarning
}
