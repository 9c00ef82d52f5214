package attendance_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yamine-coder/gestion-rh-sub005/attendance"
	"github.com/Yamine-coder/gestion-rh-sub005/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testDay = attendance.NewDay(2025, time.March, 10)

func clock(hour, min int) attendance.ClockTime {
	return attendance.ClockTime(hour*60 + min)
}

// newTestEngine wires an engine over the in-memory store with a fixed clock
// so open sessions stay deterministic.
func newTestEngine(t *testing.T) (*attendance.Engine, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	engine := attendance.NewEngine(store, store)
	engine.Now = func() time.Time { return at(23, 0) }
	return engine, store
}

func planWorkDay(store *memory.Store, segments ...attendance.PlannedSegment) {
	store.PutShift(attendance.Shift{
		EmployeeID: "emp-1",
		Date:       testDay,
		Kind:       attendance.ShiftWork,
		Segments:   segments,
	})
}

func punchDay(store *memory.Store, punches ...attendance.Punch) {
	for _, p := range punches {
		store.AddPunch(p)
	}
}

func findDeviation(t *testing.T, report *attendance.DayReport, kind attendance.DeviationType) attendance.Deviation {
	t.Helper()
	for _, d := range report.Deviations {
		if d.Type == kind {
			return d
		}
	}
	t.Fatalf("deviation %s absente du rapport: %+v", kind, report.Deviations)
	return attendance.Deviation{}
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func TestReconcile_ConformingDay(t *testing.T) {
	// GIVEN a 09:00-17:00 plan worked exactly
	engine, store := newTestEngine(t)
	planWorkDay(store, attendance.PlannedSegment{Start: clock(9, 0), End: clock(17, 0)})
	punchDay(store, entry(9, 0), exit(17, 0))

	// WHEN reconciling the day
	report, err := engine.Reconcile(context.Background(), "emp-1", testDay)
	require.NoError(t, err)

	// THEN no deviation, balanced minutes
	assert.Empty(t, report.Deviations)
	assert.Equal(t, 480, report.Balance.PlannedMinutes)
	assert.Equal(t, 480, report.Balance.WorkedMinutes)
	assert.Zero(t, report.Balance.NetBalanceMinutes)
	require.Len(t, report.Balance.Segments, 1)
	assert.Equal(t, 1, report.Balance.Segments[0].Index)
}

func TestReconcile_ArrivalWithinToleranceIsSilent(t *testing.T) {
	engine, store := newTestEngine(t)
	planWorkDay(store, attendance.PlannedSegment{Start: clock(9, 0), End: clock(17, 0)})
	punchDay(store, entry(9, 4), exit(17, 0))

	report, err := engine.Reconcile(context.Background(), "emp-1", testDay)
	require.NoError(t, err)

	assert.Empty(t, report.Deviations)
}

func TestReconcile_LateArrival(t *testing.T) {
	// GIVEN a 09:00 plan and a 09:10 arrival
	engine, store := newTestEngine(t)
	planWorkDay(store, attendance.PlannedSegment{Start: clock(9, 0), End: clock(17, 0)})
	punchDay(store, entry(9, 10), exit(17, 0))

	report, err := engine.Reconcile(context.Background(), "emp-1", testDay)
	require.NoError(t, err)

	// THEN a 10-minute retard tied to segment 1
	d := findDeviation(t, report, attendance.DeviationRetard)
	assert.Equal(t, 10, d.EcartMinutes)
	assert.Equal(t, 1, d.SegmentIndex)
	assert.Equal(t, clock(9, 0), d.PlannedStart)
	assert.Equal(t, -10, report.Balance.NetBalanceMinutes)
}

func TestReconcile_Overtime(t *testing.T) {
	// GIVEN a 09:00-17:00 plan worked until 19:00
	engine, store := newTestEngine(t)
	planWorkDay(store, attendance.PlannedSegment{Start: clock(9, 0), End: clock(17, 0)})
	punchDay(store, entry(9, 0), exit(19, 0))

	report, err := engine.Reconcile(context.Background(), "emp-1", testDay)
	require.NoError(t, err)

	d := findDeviation(t, report, attendance.DeviationHeuresSup)
	assert.Equal(t, 120, d.EcartMinutes)
	assert.Equal(t, 120, report.Balance.NetBalanceMinutes)
}

func TestReconcile_EarlyDeparture(t *testing.T) {
	engine, store := newTestEngine(t)
	planWorkDay(store, attendance.PlannedSegment{Start: clock(9, 0), End: clock(17, 0)})
	punchDay(store, entry(9, 0), exit(16, 15))

	report, err := engine.Reconcile(context.Background(), "emp-1", testDay)
	require.NoError(t, err)

	d := findDeviation(t, report, attendance.DeviationDepartAnticipe)
	assert.Equal(t, -45, d.EcartMinutes)
}

func TestReconcile_EarlyArrivalHorsPlage(t *testing.T) {
	// GIVEN an arrival 45 minutes before the planned start
	engine, store := newTestEngine(t)
	planWorkDay(store, attendance.PlannedSegment{Start: clock(9, 0), End: clock(17, 0)})
	punchDay(store, entry(8, 15), exit(17, 0))

	report, err := engine.Reconcile(context.Background(), "emp-1", testDay)
	require.NoError(t, err)

	d := findDeviation(t, report, attendance.DeviationHorsPlage)
	assert.Equal(t, -45, d.EcartMinutes)
}

func TestReconcile_AbsenceTotale(t *testing.T) {
	// GIVEN a planned segment with zero punches
	engine, store := newTestEngine(t)
	planWorkDay(store, attendance.PlannedSegment{Start: clock(9, 0), End: clock(17, 0)})

	report, err := engine.Reconcile(context.Background(), "emp-1", testDay)
	require.NoError(t, err)

	d := findDeviation(t, report, attendance.DeviationAbsenceTotale)
	assert.Equal(t, -480, d.EcartMinutes)
	assert.Equal(t, 1, d.SegmentIndex)
	assert.Equal(t, -480, report.Balance.NetBalanceMinutes)
}

func TestReconcile_UnplannedPresence(t *testing.T) {
	// GIVEN punches on a day with no plan at all
	engine, store := newTestEngine(t)
	punchDay(store, entry(10, 0), exit(14, 0))

	report, err := engine.Reconcile(context.Background(), "emp-1", testDay)
	require.NoError(t, err)

	d := findDeviation(t, report, attendance.DeviationPresenceNonPrevue)
	assert.Equal(t, 240, d.EcartMinutes)
	assert.Zero(t, d.SegmentIndex)
	assert.Equal(t, 240, report.Balance.WorkedMinutes)
	assert.Zero(t, report.Balance.PlannedMinutes)
}

func TestReconcile_IntervalOutsideEverySegment(t *testing.T) {
	// GIVEN a planned day plus an evening session far from any segment
	engine, store := newTestEngine(t)
	planWorkDay(store, attendance.PlannedSegment{Start: clock(9, 0), End: clock(12, 0)})
	punchDay(store, entry(9, 0), exit(12, 0), entry(20, 0), exit(22, 0))

	report, err := engine.Reconcile(context.Background(), "emp-1", testDay)
	require.NoError(t, err)

	// THEN the planned day makes the stray interval hors_plage, not
	// presence_non_prevue
	d := findDeviation(t, report, attendance.DeviationHorsPlage)
	assert.Equal(t, 120, d.EcartMinutes)
}

func TestReconcile_OrphanExitNearSegmentEnd(t *testing.T) {
	// GIVEN a lone exit close to the planned end
	engine, store := newTestEngine(t)
	planWorkDay(store, attendance.PlannedSegment{Start: clock(9, 0), End: clock(17, 0)})
	punchDay(store, exit(17, 5))

	report, err := engine.Reconcile(context.Background(), "emp-1", testDay)
	require.NoError(t, err)

	d := findDeviation(t, report, attendance.DeviationPointageManquant)
	assert.Equal(t, 1, d.SegmentIndex)
	// The unworked segment is still reported: the exit alone proves nothing.
	findDeviation(t, report, attendance.DeviationAbsenceTotale)
}

func TestReconcile_PlannedAbsenceWithPunches(t *testing.T) {
	// GIVEN a planned absence day where the employee clocked in anyway
	engine, store := newTestEngine(t)
	store.PutShift(attendance.Shift{
		EmployeeID: "emp-1",
		Date:       testDay,
		Kind:       attendance.ShiftAbsence,
		Motif:      "maladie",
	})
	punchDay(store, entry(9, 0), exit(12, 0))

	report, err := engine.Reconcile(context.Background(), "emp-1", testDay)
	require.NoError(t, err)

	require.Len(t, report.Deviations, 1)
	assert.Equal(t, attendance.DeviationAbsenceAvecPointage, report.Deviations[0].Type)
	assert.Contains(t, report.Deviations[0].Description, "maladie")
	assert.Equal(t, 180, report.Balance.WorkedMinutes)
}

func TestReconcile_PlannedAbsenceWithoutPunchesIsConform(t *testing.T) {
	engine, store := newTestEngine(t)
	store.PutShift(attendance.Shift{
		EmployeeID: "emp-1",
		Date:       testDay,
		Kind:       attendance.ShiftLeave,
		Motif:      "conge paye",
	})

	report, err := engine.Reconcile(context.Background(), "emp-1", testDay)
	require.NoError(t, err)

	assert.Empty(t, report.Deviations)
	assert.Zero(t, report.Balance.WorkedMinutes)
}

func TestReconcile_ExtraSegmentGeneratesNoDeviation(t *testing.T) {
	// GIVEN an off-books segment worked exactly, plus nothing else
	engine, store := newTestEngine(t)
	planWorkDay(store, attendance.PlannedSegment{Start: clock(18, 0), End: clock(20, 0), IsExtra: true})
	punchDay(store, entry(18, 0), exit(20, 0))

	report, err := engine.Reconcile(context.Background(), "emp-1", testDay)
	require.NoError(t, err)

	// THEN the extra segment neither counts as plan nor produces deviations
	assert.Zero(t, report.Balance.PlannedMinutes)
	assert.Empty(t, report.Deviations)
	assert.Equal(t, 120, report.Balance.WorkedMinutes)
}

func TestReconcile_SplitDayMatchesBothSegments(t *testing.T) {
	// GIVEN a split 09:00-12:00 / 14:00-18:00 day worked with a late return
	engine, store := newTestEngine(t)
	planWorkDay(store,
		attendance.PlannedSegment{Start: clock(9, 0), End: clock(12, 0)},
		attendance.PlannedSegment{Start: clock(14, 0), End: clock(18, 0)},
	)
	punchDay(store, entry(9, 0), exit(12, 0), entry(14, 20), exit(18, 0))

	report, err := engine.Reconcile(context.Background(), "emp-1", testDay)
	require.NoError(t, err)

	require.Len(t, report.Deviations, 1)
	d := report.Deviations[0]
	assert.Equal(t, attendance.DeviationRetard, d.Type)
	assert.Equal(t, 2, d.SegmentIndex)
	assert.Equal(t, 20, d.EcartMinutes)
}
