package attendance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Yamine-coder/gestion-rh-sub005/attendance"
)

func classify(kind attendance.DeviationType, ecart, soldeNet int) attendance.Classification {
	c := attendance.NewClassifier(attendance.DefaultThresholds())
	return c.Classify(attendance.Deviation{Type: kind, EcartMinutes: ecart}, soldeNet)
}

func TestClassify_RetardSeverityLadder(t *testing.T) {
	// GIVEN the default thresholds (tolerance 5, critique 30)
	// THEN lateness escalates with the gap
	assert.Equal(t, attendance.SeverityAttention, classify(attendance.DeviationRetard, 10, 0).Gravite)
	assert.Equal(t, attendance.SeverityCritique, classify(attendance.DeviationRetard, 30, 0).Gravite)
	assert.Equal(t, attendance.SeverityCritique, classify(attendance.DeviationRetard, 45, 0).Gravite)

	// Inside tolerance the deviation stays informational and unpersisted.
	within := classify(attendance.DeviationRetard, 4, 0)
	assert.Equal(t, attendance.SeverityInfo, within.Gravite)
	assert.False(t, within.Persist)
}

func TestClassify_EarlyDeparture(t *testing.T) {
	assert.Equal(t, attendance.SeverityAttention, classify(attendance.DeviationDepartAnticipe, -15, 0).Gravite)
	assert.Equal(t, attendance.SeverityCritique, classify(attendance.DeviationDepartAnticipe, -30, 0).Gravite)
}

func TestClassify_OvertimeAutoValidation(t *testing.T) {
	// GIVEN overtime inside the auto-validate zone
	small := classify(attendance.DeviationHeuresSup, 20, 20)

	// THEN info severity but still persisted for payment traceability
	assert.Equal(t, attendance.SeverityInfo, small.Gravite)
	assert.True(t, small.Persist)
	assert.True(t, small.Resolvability.PayableExtra)

	// Beyond the zone it needs managerial validation.
	big := classify(attendance.DeviationHeuresSup, 120, 120)
	assert.Equal(t, attendance.SeverityAValider, big.Gravite)
	assert.True(t, big.Resolvability.PayableExtra)
}

func TestClassify_NegativeBalanceBlocksExtraPay(t *testing.T) {
	// GIVEN overtime on a day whose net balance is negative
	c := classify(attendance.DeviationHeuresSup, 60, -30)

	assert.False(t, c.Resolvability.PayableExtra)
	assert.True(t, c.Resolvability.Correctable)
}

func TestClassify_AbsenceFamilyIsCritique(t *testing.T) {
	assert.Equal(t, attendance.SeverityCritique, classify(attendance.DeviationAbsenceTotale, -480, -480).Gravite)
	assert.Equal(t, attendance.SeverityCritique, classify(attendance.DeviationPointageManquant, 0, 0).Gravite)
	assert.Equal(t, attendance.SeverityCritique, classify(attendance.DeviationAbsenceAvecPointage, 0, 180).Gravite)
}

func TestClassify_PunchedDuringPlannedAbsenceIsConvertible(t *testing.T) {
	// GIVEN punches recorded during a planned absence
	c := classify(attendance.DeviationAbsenceAvecPointage, 0, 180)

	// THEN the worked time can be converted, unlike a plain absence
	assert.True(t, c.Resolvability.ConvertibleExtra)
	assert.False(t, classify(attendance.DeviationAbsenceTotale, -480, -480).Resolvability.ConvertibleExtra)
	assert.False(t, classify(attendance.DeviationPointageManquant, 0, 0).Resolvability.ConvertibleExtra)
}

func TestClassify_UnplannedPresenceIsConvertible(t *testing.T) {
	// GIVEN a 10:00-14:00 session on a plan-free day
	c := classify(attendance.DeviationPresenceNonPrevue, 240, 240)

	// THEN convertible to an off-books segment but not directly payable
	assert.Equal(t, attendance.SeverityAttention, c.Gravite)
	assert.True(t, c.Resolvability.ConvertibleExtra)
	assert.False(t, c.Resolvability.PayableExtra)
}

func TestClassify_HorsPlage(t *testing.T) {
	c := classify(attendance.DeviationHorsPlage, -45, 45)

	assert.Equal(t, attendance.SeverityHorsPlage, c.Gravite)
	assert.True(t, c.Resolvability.PayableExtra)
}
