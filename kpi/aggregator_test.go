package kpi_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yamine-coder/gestion-rh-sub005/attendance"
	"github.com/Yamine-coder/gestion-rh-sub005/kpi"
	"github.com/Yamine-coder/gestion-rh-sub005/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	day1 = attendance.NewDay(2025, time.March, 10)
	day2 = attendance.NewDay(2025, time.March, 11)
)

func newTestAggregator(t *testing.T) (*kpi.Aggregator, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	engine := attendance.NewEngine(store, store)
	engine.Now = func() time.Time { return day2.Time().Add(23 * time.Hour) }
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	g := kpi.NewAggregator(engine, store.Directory(), log)
	g.Now = engine.Now
	return g, store
}

func addEmployee(t *testing.T, store *memory.Store, e kpi.Employee) {
	t.Helper()
	if e.EmbaucheLe.IsZero() {
		e.EmbaucheLe = attendance.NewDay(2023, time.March, 10)
	}
	e.Actif = e.SortieLe == nil
	require.NoError(t, store.Directory().Create(context.Background(), &e))
}

func planDay(store *memory.Store, employeeID string, day attendance.Day) {
	store.PutShift(attendance.Shift{
		EmployeeID: employeeID,
		Date:       day,
		Kind:       attendance.ShiftWork,
		Segments:   []attendance.PlannedSegment{{Start: 9 * 60, End: 17 * 60}},
	})
}

func workDay(store *memory.Store, employeeID string, day attendance.Day, inH, inM, outH, outM int) {
	in := day.Time().Add(time.Duration(inH)*time.Hour + time.Duration(inM)*time.Minute)
	out := day.Time().Add(time.Duration(outH)*time.Hour + time.Duration(outM)*time.Minute)
	store.AddPunch(attendance.Punch{EmployeeID: employeeID, At: in, Kind: attendance.PunchEntry})
	store.AddPunch(attendance.Punch{EmployeeID: employeeID, At: out, Kind: attendance.PunchExit})
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	assert.True(t, actual.Equal(decimal.RequireFromString(expected)),
		"attendu %s, obtenu %s", expected, actual)
}

// =============================================================================
// AGGREGATION
// =============================================================================

func TestAggregate_AbsenteeismAndAssiduity(t *testing.T) {
	// GIVEN one employee planned two days but present only the first
	g, store := newTestAggregator(t)
	addEmployee(t, store, kpi.Employee{ID: "emp-1", Nom: "Martin", Categorie: "salle"})
	planDay(store, "emp-1", day1)
	planDay(store, "emp-1", day2)
	workDay(store, "emp-1", day1, 9, 0, 17, 0)

	report, err := g.Aggregate(context.Background(), attendance.Period{Start: day1, End: day2})
	require.NoError(t, err)

	// THEN half the planned minutes are missing
	assert.Equal(t, 960, report.PlannedMinutes)
	assert.Equal(t, 480, report.WorkedMinutes)
	assert.Equal(t, 2, report.PlannedDays)
	assert.Zero(t, report.LateDays)
	assertDecimal(t, "0.5", report.TauxAbsenteisme)
	assertDecimal(t, "50", report.TauxAssiduite)
	assertDecimal(t, "100", report.TauxPonctualite)

	cat, ok := report.ParCategorie["salle"]
	require.True(t, ok)
	assert.Equal(t, 1, cat.Headcount)
	assert.Equal(t, 960, cat.PlannedMinutes)
	assertDecimal(t, "0.5", cat.TauxAbsenteisme)
}

func TestAggregate_PunctualityCountsLateDaysOnce(t *testing.T) {
	// GIVEN one late day out of two planned days
	g, store := newTestAggregator(t)
	addEmployee(t, store, kpi.Employee{ID: "emp-1", Nom: "Martin"})
	planDay(store, "emp-1", day1)
	planDay(store, "emp-1", day2)
	workDay(store, "emp-1", day1, 9, 40, 17, 0)
	workDay(store, "emp-1", day2, 9, 0, 17, 0)

	report, err := g.Aggregate(context.Background(), attendance.Period{Start: day1, End: day2})
	require.NoError(t, err)

	assert.Equal(t, 1, report.LateDays)
	assertDecimal(t, "50", report.TauxPonctualite)
}

func TestAggregate_ContractFallbackWhenNothingPlanned(t *testing.T) {
	// GIVEN a 35h/week contract with no schedule at all over a full week
	g, store := newTestAggregator(t)
	addEmployee(t, store, kpi.Employee{
		ID:                 "emp-1",
		Nom:                "Martin",
		HeuresContratHebdo: decimal.NewFromInt(35),
	})

	report, err := g.Aggregate(context.Background(), attendance.Period{
		Start: day1,
		End:   day1.AddDays(6),
	})
	require.NoError(t, err)

	// THEN the contractual 2100 minutes are redistributed and flagged
	assert.Equal(t, 2100, report.PlannedMinutes)
	assertDecimal(t, "1", report.TauxAbsenteisme)
	found := false
	for _, w := range report.Warnings {
		if w.Code == attendance.WarnPlannedFallback {
			found = true
		}
	}
	assert.True(t, found, "avertissement de repartition attendu")
}

func TestAggregate_TurnoverAndTenure(t *testing.T) {
	// GIVEN two employees, one leaving mid-period
	g, store := newTestAggregator(t)
	addEmployee(t, store, kpi.Employee{
		ID:         "emp-1",
		Nom:        "Martin",
		EmbaucheLe: attendance.NewDay(2023, time.March, 11),
	})
	sortie := attendance.NewDay(2025, time.March, 15)
	addEmployee(t, store, kpi.Employee{
		ID:         "emp-2",
		Nom:        "Durand",
		EmbaucheLe: attendance.NewDay(2024, time.January, 1),
		SortieLe:   &sortie,
	})

	period := attendance.Period{
		Start: attendance.NewDay(2025, time.March, 1),
		End:   attendance.NewDay(2025, time.March, 31),
	}
	report, err := g.Aggregate(context.Background(), period)
	require.NoError(t, err)

	// THEN one departure over an average headcount of 1.5
	assertDecimal(t, "66.67", report.TauxTurnover)
	assert.Equal(t, 1, report.Headcount)

	// Tenure counts the remaining active employee only: two years.
	assertDecimal(t, "2", report.AncienneteMoy)
}

func TestAggregate_RowCapReturnsPartialReport(t *testing.T) {
	// GIVEN a cap lower than the number of employee-days
	g, store := newTestAggregator(t)
	addEmployee(t, store, kpi.Employee{ID: "emp-1", Nom: "Martin"})
	planDay(store, "emp-1", day1)
	planDay(store, "emp-1", day2)
	g.MaxRows = 1

	report, err := g.Aggregate(context.Background(), attendance.Period{Start: day1, End: day2})

	// THEN the partial report comes back alongside the sentinel
	require.ErrorIs(t, err, attendance.ErrPartialResult)
	require.NotNil(t, report)
	assert.Equal(t, 480, report.PlannedMinutes)
}

func TestAggregate_InvalidPeriod(t *testing.T) {
	g, _ := newTestAggregator(t)

	_, err := g.Aggregate(context.Background(), attendance.Period{Start: day2, End: day1})

	assert.ErrorIs(t, err, attendance.ErrInvalidPeriod)
}
