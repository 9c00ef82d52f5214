/*
resolution.go - The anomaly resolution state machine.

GUARANTEES:
  1. Validation first: a missing comment (refuser), justification
     (corriger) or non-positive hours (payer_extra, convertir_extra)
     rejects the action before ANY side effect.
  2. Claim before side effects: the anomaly row is transitioned with a
     compare-and-set on statut, so a concurrent action loses with a
     ConflictError instead of double-creating payroll/score entries.
  3. No automatic retry after a partial side-effect failure: the error is
     surfaced for manual reconciliation.

RE-PROCESSING:
  A resolved anomaly can be re-processed only with Modify=true; the action
  is logged with reprocess=true, distinctly from first-time resolutions.
*/
package anomaly

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Yamine-coder/gestion-rh-sub005/attendance"
)

// =============================================================================
// ACTIONS
// =============================================================================

type Action string

const (
	ActionValider        Action = "valider"
	ActionRefuser        Action = "refuser"
	ActionCorriger       Action = "corriger"
	ActionReporter       Action = "reporter"
	ActionPayerExtra     Action = "payer_extra"
	ActionConvertirExtra Action = "convertir_extra"
)

func (a Action) Valid() bool {
	switch a {
	case ActionValider, ActionRefuser, ActionCorriger, ActionReporter,
		ActionPayerExtra, ActionConvertirExtra:
		return true
	}
	return false
}

// Request is one admin decision on one anomaly.
type Request struct {
	Action      Action
	Commentaire string

	// payer_extra / convertir_extra
	HeuresExtra          decimal.Decimal
	OverrideSoldeNegatif bool

	// corriger
	ShiftCorrection *attendance.ShiftCorrection

	// reporter
	QuestionVerification string
	NotifierEmploye      bool

	// Modify authorizes re-processing an already-resolved anomaly.
	Modify bool

	ActorID   string
	ActorRole string
}

// Outcome is what a successful transition produced.
type Outcome struct {
	Anomaly      *Anomaly
	ImpactScore  int
	ShiftModifie bool
	Paiement     *PaiementExtra
	Message      string
	Warnings     []attendance.IntegrityWarning
}

// =============================================================================
// RESOLVER
// =============================================================================

// Resolver applies admin actions to pending anomalies.
type Resolver struct {
	Anomalies Store
	Paiements PaiementStore
	Scores    ScoreLedger
	Shifts    attendance.ShiftCorrector
	Notifier  Notifier
	Log       logrus.FieldLogger
	Now       func() time.Time
}

func NewResolver(anomalies Store, paiements PaiementStore, scores ScoreLedger, shifts attendance.ShiftCorrector, notifier Notifier, log logrus.FieldLogger) *Resolver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Resolver{
		Anomalies: anomalies,
		Paiements: paiements,
		Scores:    scores,
		Shifts:    shifts,
		Notifier:  notifier,
		Log:       log,
		Now:       time.Now,
	}
}

// Traiter applies one action to one anomaly.
func (r *Resolver) Traiter(ctx context.Context, anomalieID string, req Request) (*Outcome, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	a, err := r.Anomalies.Get(ctx, anomalieID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, &attendance.NotFoundError{Kind: "anomalie", ID: anomalieID}
	}

	expect := []Status{StatusEnAttente, StatusAVerifier}
	reprocess := false
	if !a.Statut.Actionable() {
		if !req.Modify {
			return nil, &attendance.ConflictError{
				Reason:  "anomalie deja traitee",
				Current: string(a.Statut),
			}
		}
		if a.Statut == StatusObsolete {
			return nil, &attendance.ConflictError{
				Reason:  "anomalie obsolete, relancer la reconciliation",
				Current: string(a.Statut),
			}
		}
		reprocess = true
		expect = []Status{a.Statut}
	}

	out := &Outcome{}
	now := r.Now()

	// Build the transition. Pending side effects are collected and applied
	// only after the CAS claim succeeds.
	var paiement *PaiementExtra
	var score *ScoreImpact
	var applyShift func(context.Context) error

	switch req.Action {
	case ActionValider:
		a.Statut = StatusValidee
		if !req.HeuresExtra.IsZero() {
			a.Details.HeuresExtra = req.HeuresExtra.String()
		}
		out.Message = "anomalie validee"

	case ActionRefuser:
		a.Statut = StatusRefusee
		pts := RefusalPenalty(a.Type, a.Gravite)
		if pts != 0 {
			score = &ScoreImpact{
				ID:         uuid.NewString(),
				AnomalieID: a.ID,
				EmployeeID: a.EmployeeID,
				Points:     pts,
				Reason:     fmt.Sprintf("refus %s du %s", a.Type, a.Date),
				CreatedAt:  now,
			}
			out.ImpactScore = pts
		}
		out.Message = "anomalie refusee"

	case ActionCorriger:
		a.Statut = StatusCorrigee
		a.Details.ShiftCorrige = true
		a.Details.TypeCorrection = req.ShiftCorrection.SegmentType
		a.Details.RaisonCorrection = req.ShiftCorrection.Raison
		if a.ShiftID != "" {
			shiftID := a.ShiftID
			correction := *req.ShiftCorrection
			applyShift = func(ctx context.Context) error {
				return r.Shifts.ApplyCorrection(ctx, shiftID, correction)
			}
			out.ShiftModifie = true
		}
		out.Message = "anomalie corrigee, planning ajuste"

	case ActionReporter:
		a.Statut = StatusAVerifier
		q := req.QuestionVerification
		if q == "" {
			q = "verification necessaire"
		}
		a.Details.QuestionVerification = q
		a.Details.NotificationEnvoyee = req.NotifierEmploye
		out.Message = "anomalie mise en attente de verification"

	case ActionPayerExtra:
		p, err := r.preparePayerExtra(a, req, now)
		if err != nil {
			return nil, err
		}
		paiement = p
		a.Statut = StatusValidee
		a.Details.PayeEnExtra = true
		a.Details.PaiementExtraID = p.ID
		a.Details.HeuresExtra = p.Heures.String()
		out.Message = fmt.Sprintf("%s heures a payer en extra", p.Heures)

	case ActionConvertirExtra:
		p, seg, err := r.prepareConvertirExtra(a, req, now)
		if err != nil {
			return nil, err
		}
		paiement = p
		a.Statut = StatusCorrigee // resolved, off-books
		a.Details.ConvertiEnExtra = true
		a.Details.PaiementExtraID = p.ID
		a.Details.HeuresExtra = p.Heures.String()
		employeeID, date := a.EmployeeID, a.Date
		applyShift = func(ctx context.Context) error {
			shiftID, err := r.Shifts.AppendExtraSegment(ctx, employeeID, date, seg)
			if err != nil {
				return err
			}
			a.Details.ShiftExtraID = shiftID
			p.ShiftID = shiftID
			return nil
		}
		out.ShiftModifie = true
		out.Message = fmt.Sprintf("%s heures converties en extra", p.Heures)
	}

	a.TraitePar = req.ActorID
	a.TraiteAt = &now
	if req.Commentaire != "" {
		a.Commentaire = req.Commentaire
	}
	a.UpdatedAt = now

	// Claim the anomaly. A concurrent action on the same row loses here.
	if err := r.Anomalies.UpdateCAS(ctx, a, expect); err != nil {
		return nil, err
	}

	r.Log.WithFields(logrus.Fields{
		"anomalie":  a.ID,
		"employe":   a.EmployeeID,
		"action":    req.Action,
		"statut":    a.Statut,
		"acteur":    req.ActorID,
		"reprocess": reprocess,
	}).Info("anomalie traitee")

	// Side effects after the claim. A failure here is surfaced for manual
	// reconciliation, never retried automatically.
	if applyShift != nil {
		if err := applyShift(ctx); err != nil {
			return nil, fmt.Errorf("anomalie %s transitionnee mais correction planning echouee, reconciliation manuelle requise: %w", a.ID, err)
		}
		if a.Details.ShiftExtraID != "" {
			// Details gained the created shift id after the claim.
			if err := r.Anomalies.UpdateCAS(ctx, a, []Status{a.Statut}); err != nil {
				r.Log.WithError(err).WithField("anomalie", a.ID).Warn("mise a jour des details apres conversion echouee")
			}
		}
	}
	if paiement != nil {
		if err := r.Paiements.CreateDraft(ctx, paiement); err != nil {
			return nil, fmt.Errorf("anomalie %s transitionnee mais paiement extra non cree, reconciliation manuelle requise: %w", a.ID, err)
		}
		out.Paiement = paiement
	}
	if score != nil {
		if err := r.Scores.Record(ctx, *score); err != nil {
			return nil, fmt.Errorf("anomalie %s transitionnee mais score non enregistre, reconciliation manuelle requise: %w", a.ID, err)
		}
	}
	if req.Action == ActionReporter && req.NotifierEmploye && r.Notifier != nil {
		msg := fmt.Sprintf("Verification demandee concernant l'anomalie du %s. %s", a.Date, a.Details.QuestionVerification)
		if err := r.Notifier.Notify(ctx, a.EmployeeID, msg); err != nil {
			// Notification failures do not block the resolution.
			r.Log.WithError(err).WithField("anomalie", a.ID).Warn("notification employe echouee")
			out.Warnings = append(out.Warnings, attendance.IntegrityWarning{
				Code:    "notification_failed",
				Message: err.Error(),
			})
			a.Details.NotificationEnvoyee = false
		}
	}

	out.Anomaly = a
	return out, nil
}

// =============================================================================
// PER-ACTION GUARDS
// =============================================================================

func validateRequest(req Request) error {
	if !req.Action.Valid() {
		return &attendance.ValidationError{Field: "action",
			Message: "action invalide (valider, refuser, corriger, reporter, payer_extra, convertir_extra)"}
	}
	if req.ActorID == "" {
		return &attendance.ValidationError{Field: "acteur", Message: "identifiant de l'operateur requis"}
	}
	switch req.Action {
	case ActionRefuser:
		if req.Commentaire == "" {
			return &attendance.ValidationError{Field: "commentaire", Message: "commentaire requis pour un refus"}
		}
	case ActionCorriger:
		if req.ShiftCorrection == nil || req.ShiftCorrection.Raison == "" {
			return &attendance.ValidationError{Field: "shiftCorrection.raison", Message: "justification de la correction requise"}
		}
	}
	return nil
}

var payableTypes = map[attendance.DeviationType]bool{
	attendance.DeviationHeuresSup: true,
	attendance.DeviationHorsPlage: true,
}

var convertibleTypes = map[attendance.DeviationType]bool{
	attendance.DeviationPresenceNonPrevue:   true,
	attendance.DeviationAbsenceAvecPointage: true,
}

func (r *Resolver) preparePayerExtra(a *Anomaly, req Request, now time.Time) (*PaiementExtra, error) {
	if !payableTypes[a.Type] {
		return nil, &attendance.ValidationError{Field: "action",
			Message: "payer_extra n'est possible que pour les heures supplementaires"}
	}

	heures := req.HeuresExtra
	if heures.IsZero() && a.Details.EcartMinutes > 0 {
		heures = decimal.NewFromInt(int64(a.Details.EcartMinutes)).
			Div(decimal.NewFromInt(60)).Round(2)
	}
	if !heures.IsPositive() {
		return nil, &attendance.ValidationError{Field: "heuresExtra", Message: "aucune heure a payer pour cette anomalie"}
	}

	if a.Details.SoldeNetMinutes < 0 && !req.OverrideSoldeNegatif {
		return nil, &attendance.ConflictError{
			Reason:  "solde net negatif, paiement extra refuse sans derogation",
			Current: fmt.Sprintf("%d min", a.Details.SoldeNetMinutes),
		}
	}

	return &PaiementExtra{
		ID:          uuid.NewString(),
		AnomalieID:  a.ID,
		EmployeeID:  a.EmployeeID,
		ShiftID:     a.ShiftID,
		Date:        a.Date,
		Heures:      heures,
		Source:      SourceHeuresSup,
		Statut:      PaiementAPayer,
		Commentaire: req.Commentaire,
		CreePar:     req.ActorID,
		CreatedAt:   now,
	}, nil
}

func (r *Resolver) prepareConvertirExtra(a *Anomaly, req Request, now time.Time) (*PaiementExtra, attendance.PlannedSegment, error) {
	if !convertibleTypes[a.Type] {
		return nil, attendance.PlannedSegment{}, &attendance.ValidationError{Field: "action",
			Message: "convertir_extra n'est possible que pour une presence non prevue"}
	}

	heures := req.HeuresExtra
	if heures.IsZero() && a.Details.TempsTravailleMinutes > 0 {
		heures = decimal.NewFromInt(int64(a.Details.TempsTravailleMinutes)).
			Div(decimal.NewFromInt(60)).Round(2)
	}
	if !heures.IsPositive() {
		return nil, attendance.PlannedSegment{}, &attendance.ValidationError{Field: "heuresExtra",
			Message: "aucune heure a convertir, preciser heuresExtra"}
	}

	if a.Details.SoldeNetMinutes < 0 && !req.OverrideSoldeNegatif {
		return nil, attendance.PlannedSegment{}, &attendance.ConflictError{
			Reason:  "solde net negatif, conversion refusee sans derogation",
			Current: fmt.Sprintf("%d min", a.Details.SoldeNetMinutes),
		}
	}

	p := &PaiementExtra{
		ID:          uuid.NewString(),
		AnomalieID:  a.ID,
		EmployeeID:  a.EmployeeID,
		Date:        a.Date,
		Heures:      heures,
		Source:      SourceConversion,
		Statut:      PaiementAPayer,
		Commentaire: req.Commentaire,
		CreePar:     req.ActorID,
		CreatedAt:   now,
	}

	// The converted segment mirrors the worked span; isExtra keeps it out
	// of official planned-hours reporting.
	seg := attendance.PlannedSegment{IsExtra: true, Motif: "converti depuis anomalie " + a.ID}
	if a.Details.FinReel > a.Details.DebutReel {
		seg.Start = a.Details.DebutReel
		seg.End = a.Details.FinReel
	} else {
		// Fallback span when the anomaly carries no actual times.
		seg.Start = 9 * 60
		seg.End = seg.Start + attendance.ClockTime(heures.Mul(decimal.NewFromInt(60)).IntPart())
	}
	return p, seg, nil
}
