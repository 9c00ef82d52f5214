/*
Package anomaly owns the persisted side of reconciliation: the Anomaly
record, its resolution workflow and the payroll/score side effects.

LIFECYCLE:
  en_attente (initial)
    valider         -> validee
    refuser         -> refusee           (double score penalty, comment required)
    corriger        -> corrigee          (retroactive shift fix, justification required)
    reporter        -> a_verifier        (still actionable later)
    payer_extra     -> validee           (+ PaiementExtra draft)
    convertir_extra -> corrigee          (+ PaiementExtra draft + isExtra shift segment)
  a_verifier is treated like en_attente for further actions.
  obsolete is system-driven: a newer reconciliation run no longer
  reproduces the deviation.

  Re-processing an already-resolved anomaly requires an explicit modify
  request and is logged distinctly from first-time resolution.

SEE ALSO:
  - resolution.go: the guarded state machine
  - sync.go: reconciliation output -> persisted anomalies
  - score.go: penalty table
*/
package anomaly

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Yamine-coder/gestion-rh-sub005/attendance"
)

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusEnAttente Status = "en_attente"
	StatusValidee   Status = "validee"
	StatusRefusee   Status = "refusee"
	StatusCorrigee  Status = "corrigee"
	StatusAVerifier Status = "a_verifier"
	StatusObsolete  Status = "obsolete"
)

// Actionable statuses accept a first-time resolution action.
func (s Status) Actionable() bool {
	return s == StatusEnAttente || s == StatusAVerifier
}

// Resolved statuses require an explicit modify to re-process.
func (s Status) Resolved() bool {
	return s == StatusValidee || s == StatusRefusee || s == StatusCorrigee
}

// =============================================================================
// ANOMALY
// =============================================================================

// Anomaly is a persisted, classified deviation awaiting (or having
// received) an administrative decision. Mutated only through the Resolver.
type Anomaly struct {
	ID          string
	EmployeeID  string
	Date        attendance.Day
	Type        attendance.DeviationType
	Gravite     attendance.Severity
	Statut      Status
	Description string
	Details     Details
	ShiftID     string

	TraitePar   string
	TraiteAt    *time.Time
	Commentaire string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Details carries the reconciliation numbers the anomaly was built from
// plus resolution metadata accumulated along the way. Stored as one JSON
// blob.
type Details struct {
	EcartMinutes          int                      `json:"ecartMinutes"`
	TempsPlanifieMinutes  int                      `json:"tempsPlanifieMinutes"`
	TempsTravailleMinutes int                      `json:"tempsTravailleMinutes"`
	SoldeNetMinutes       int                      `json:"soldeNetMinutes"`
	SegmentIndex          int                      `json:"segmentIndex,omitempty"`
	DebutReel             attendance.ClockTime     `json:"debutReel,omitempty"`
	FinReel               attendance.ClockTime     `json:"finReel,omitempty"`
	Resolvability         attendance.Resolvability `json:"resolvability"`

	// Resolution metadata, filled by the state machine.
	PayeEnExtra          bool   `json:"payeEnExtra,omitempty"`
	ConvertiEnExtra      bool   `json:"convertiEnExtra,omitempty"`
	PaiementExtraID      string `json:"paiementExtraId,omitempty"`
	ShiftExtraID         string `json:"shiftExtraId,omitempty"`
	ShiftCorrige         bool   `json:"shiftCorrige,omitempty"`
	TypeCorrection       string `json:"typeCorrection,omitempty"`
	RaisonCorrection     string `json:"raisonCorrection,omitempty"`
	QuestionVerification string `json:"questionVerification,omitempty"`
	NotificationEnvoyee  bool   `json:"notificationEnvoyee,omitempty"`
	HeuresExtra          string `json:"heuresExtra,omitempty"` // decimal, as text
}

// SoldeHeures is the day's net balance in decimal hours.
func (a *Anomaly) SoldeHeures() decimal.Decimal {
	return decimal.NewFromInt(int64(a.Details.SoldeNetMinutes)).
		Div(decimal.NewFromInt(60)).Round(2)
}

// =============================================================================
// PAIEMENT EXTRA - Off-books payment draft
// =============================================================================

type PaiementStatus string

const (
	PaiementAPayer PaiementStatus = "a_payer"
	PaiementPaye   PaiementStatus = "paye"
	PaiementAnnule PaiementStatus = "annule"
)

type PaiementSource string

const (
	SourceHeuresSup  PaiementSource = "anomalie_heures_sup"
	SourceConversion PaiementSource = "conversion_anomalie"
	SourceManuel     PaiementSource = "manuel"
)

// PaiementExtra tracks hours paid outside the official payroll record.
// The hourly rate is chosen at payment time, not at creation: TauxHoraire
// and Montant stay nil on a draft.
type PaiementExtra struct {
	ID          string
	AnomalieID  string
	EmployeeID  string
	ShiftID     string
	Date        attendance.Day
	Heures      decimal.Decimal
	TauxHoraire *decimal.Decimal
	Montant     *decimal.Decimal
	Source      PaiementSource
	Statut      PaiementStatus
	Commentaire string
	CreePar     string
	CreatedAt   time.Time
	PayeAt      *time.Time
}

// =============================================================================
// SCORE IMPACT
// =============================================================================

// ScoreImpact is one signed entry in the employee score ledger.
type ScoreImpact struct {
	ID         string
	AnomalieID string
	EmployeeID string
	Points     int
	Reason     string
	CreatedAt  time.Time
}
