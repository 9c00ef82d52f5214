package anomaly

import "github.com/Yamine-coder/gestion-rh-sub005/attendance"

// StandardPenalty is the per-type score cost of a validated fault.
// Refusing an anomaly costs double (RefusalPenalty); correcting one costs
// nothing since it is an administrative error, not an employee fault.
func StandardPenalty(t attendance.DeviationType, g attendance.Severity) int {
	switch t {
	case attendance.DeviationRetard:
		switch g {
		case attendance.SeverityCritique:
			return -10
		case attendance.SeverityAttention:
			return -5
		default:
			return -2
		}
	case attendance.DeviationDepartAnticipe:
		if g == attendance.SeverityCritique {
			return -8
		}
		return -3
	case attendance.DeviationHeuresSup:
		return 0 // extra hours are not a fault
	case attendance.DeviationPointageManquant:
		return -5
	case attendance.DeviationAbsenceTotale, attendance.DeviationAbsenceAvecPointage:
		return -10
	default:
		return -5
	}
}

// RefusalPenalty doubles the standard penalty.
func RefusalPenalty(t attendance.DeviationType, g attendance.Severity) int {
	return StandardPenalty(t, g) * 2
}
