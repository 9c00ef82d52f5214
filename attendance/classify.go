/*
classify.go - Deviation -> severity and resolvability mapping.

SEVERITY TABLE (defaults, all thresholds configurable via Thresholds):
  absence_totale, pointage_manquant, absence av. pointage  -> critique
  hors_plage                                               -> hors_plage
  retard >= 30 min                                         -> critique
  retard, depart_anticipe otherwise                        -> attention
  depart_anticipe >= 30 min                                -> critique
  heures_sup <= 30 min                                     -> info (auto-validated,
                                                              still persisted for
                                                              payment traceability)
  heures_sup beyond                                        -> a_valider
  presence_non_prevue                                      -> attention

RESOLVABILITY:
  payer_extra     only heures_sup / hors_plage AND day soldeNet >= 0
  convertir_extra only "worked but unplanned" types (presence non
                  prevue, pointage pendant une absence planifiee)
  corriger        always available
*/
package attendance

// Severity is the gravite of a persisted anomaly.
type Severity string

const (
	SeverityCritique  Severity = "critique"
	SeverityHorsPlage Severity = "hors_plage"
	SeverityAttention Severity = "attention"
	SeverityAValider  Severity = "a_valider"
	SeverityInfo      Severity = "info"
)

// Resolvability says which resolution actions are open for an anomaly.
type Resolvability struct {
	PayableExtra     bool
	ConvertibleExtra bool
	Correctable      bool
}

// Classification is the classifier's verdict for one deviation.
type Classification struct {
	Type          DeviationType
	Gravite       Severity
	Resolvability Resolvability
	// Persist is false for deviations that stay informational and never
	// become anomalies.
	Persist bool
}

// Classifier maps deviations to severities. Zero value is unusable; build
// with NewClassifier.
type Classifier struct {
	Thresholds Thresholds
}

func NewClassifier(t Thresholds) *Classifier {
	return &Classifier{Thresholds: t}
}

// Classify maps a deviation plus the day's net balance to a persisted
// anomaly shape. soldeNetMinutes gates payer_extra.
func (c *Classifier) Classify(d Deviation, soldeNetMinutes int) Classification {
	t := c.Thresholds
	out := Classification{Type: d.Type, Persist: true}
	out.Resolvability.Correctable = true

	switch d.Type {
	case DeviationAbsenceTotale, DeviationPointageManquant:
		out.Gravite = SeverityCritique

	case DeviationAbsenceAvecPointage:
		// Worked during a planned absence: the time is real, so it can be
		// converted into an extra shift like any unplanned presence.
		out.Gravite = SeverityCritique
		out.Resolvability.ConvertibleExtra = true

	case DeviationHorsPlage:
		out.Gravite = SeverityHorsPlage
		out.Resolvability.PayableExtra = soldeNetMinutes >= 0

	case DeviationRetard:
		if abs(d.EcartMinutes) >= t.RetardCritiqueMinutes {
			out.Gravite = SeverityCritique
		} else if abs(d.EcartMinutes) > t.ToleranceMinutes {
			out.Gravite = SeverityAttention
		} else {
			out.Gravite = SeverityInfo
			out.Persist = false
		}

	case DeviationDepartAnticipe:
		if abs(d.EcartMinutes) >= t.DepartCritiqueMinutes {
			out.Gravite = SeverityCritique
		} else if abs(d.EcartMinutes) > t.ToleranceMinutes {
			out.Gravite = SeverityAttention
		} else {
			out.Gravite = SeverityInfo
			out.Persist = false
		}

	case DeviationHeuresSup:
		if d.EcartMinutes <= t.OvertimeAutoValidateMinutes {
			// Auto-validated zone: kept for payment traceability.
			out.Gravite = SeverityInfo
		} else {
			out.Gravite = SeverityAValider
		}
		out.Resolvability.PayableExtra = soldeNetMinutes >= 0

	case DeviationPresenceNonPrevue:
		out.Gravite = SeverityAttention
		out.Resolvability.ConvertibleExtra = true

	default:
		out.Gravite = SeverityInfo
		out.Persist = false
	}

	return out
}
