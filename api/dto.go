/*
dto.go - Request/response data structures for the REST API.

CONVENTIONS:
  - French field names on the wire, matching the domain vocabulary
    (employeId, gravite, statut, ecartMinutes).
  - Dates are "YYYY-MM-DD", timestamps RFC3339.
  - Clock times are "HH:MM" on the wire, minutes internally.
  - Decimal amounts travel as strings to avoid float drift.

SEE ALSO:
  - handlers.go: where these get filled
*/
package api

import (
	"time"

	"github.com/Yamine-coder/gestion-rh-sub005/anomaly"
	"github.com/Yamine-coder/gestion-rh-sub005/attendance"
	"github.com/Yamine-coder/gestion-rh-sub005/kpi"
)

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
}

// =============================================================================
// ANOMALIES
// =============================================================================

// AnomalyDTO is the wire form of one anomaly.
type AnomalyDTO struct {
	ID          string          `json:"id"`
	EmployeID   string          `json:"employeId"`
	Date        string          `json:"date"`
	Type        string          `json:"type"`
	Gravite     string          `json:"gravite"`
	Statut      string          `json:"statut"`
	Description string          `json:"description,omitempty"`
	Details     anomaly.Details `json:"details"`
	ShiftID     string          `json:"shiftId,omitempty"`
	TraitePar   string          `json:"traitePar,omitempty"`
	TraiteAt    string          `json:"traiteAt,omitempty"`
	Commentaire string          `json:"commentaire,omitempty"`
	CreatedAt   string          `json:"createdAt"`
	UpdatedAt   string          `json:"updatedAt"`
}

func toAnomalyDTO(a anomaly.Anomaly) AnomalyDTO {
	dto := AnomalyDTO{
		ID:          a.ID,
		EmployeID:   a.EmployeeID,
		Date:        a.Date.String(),
		Type:        string(a.Type),
		Gravite:     string(a.Gravite),
		Statut:      string(a.Statut),
		Description: a.Description,
		Details:     a.Details,
		ShiftID:     a.ShiftID,
		TraitePar:   a.TraitePar,
		Commentaire: a.Commentaire,
		CreatedAt:   a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   a.UpdatedAt.Format(time.RFC3339),
	}
	if a.TraiteAt != nil {
		dto.TraiteAt = a.TraiteAt.Format(time.RFC3339)
	}
	return dto
}

// ListAnomaliesResponse is the paginated listing envelope.
type ListAnomaliesResponse struct {
	Anomalies []AnomalyDTO `json:"anomalies"`
	Total     int          `json:"total"`
	Limit     int          `json:"limit"`
	Offset    int          `json:"offset"`
	HasMore   bool         `json:"hasMore"`
}

// StatsResponse aggregates anomaly counts for a period.
type StatsResponse struct {
	Periode    string         `json:"periode"`
	DateDebut  string         `json:"dateDebut"`
	DateFin    string         `json:"dateFin"`
	Total      int            `json:"total"`
	ParStatut  map[string]int `json:"parStatut"`
	ParType    map[string]int `json:"parType"`
	ParGravite map[string]int `json:"parGravite"`
	Recentes   []AnomalyDTO   `json:"recentes"`
}

// =============================================================================
// RESOLUTION
// =============================================================================

// ShiftCorrectionDTO is the corriger payload.
type ShiftCorrectionDTO struct {
	SegmentType string `json:"segmentType"`
	NewTime     string `json:"newTime,omitempty"` // "HH:MM"
	Raison      string `json:"raison"`
}

// TraiterRequest is the body of PUT /anomalies/{id}/traiter.
type TraiterRequest struct {
	Action               string              `json:"action"`
	Commentaire          string              `json:"commentaire,omitempty"`
	HeuresExtra          string              `json:"heuresExtra,omitempty"`
	OverrideSoldeNegatif bool                `json:"overrideSoldeNegatif,omitempty"`
	ShiftCorrection      *ShiftCorrectionDTO `json:"shiftCorrection,omitempty"`
	QuestionVerification string              `json:"questionVerification,omitempty"`
	NotifierEmploye      bool                `json:"notifierEmploye,omitempty"`
	Modify               bool                `json:"modify,omitempty"`
	TraitePar            string              `json:"traitePar"`
	Role                 string              `json:"role,omitempty"`
}

// TraiterResponse reports the outcome of one resolution action.
type TraiterResponse struct {
	Anomalie     AnomalyDTO   `json:"anomalie"`
	ImpactScore  int          `json:"impactScore"`
	ShiftModifie bool         `json:"shiftModifie"`
	Paiement     *PaiementDTO `json:"paiement,omitempty"`
	Message      string       `json:"message"`
}

// =============================================================================
// BILAN JOURNALIER
// =============================================================================

// SegmentDTO is the per-segment planned-vs-worked detail.
type SegmentDTO struct {
	Index        int    `json:"index"`
	ShiftID      string `json:"shiftId,omitempty"`
	PrevuDebut   string `json:"prevuDebut"`
	PrevuFin     string `json:"prevuFin"`
	PrevuMinutes int    `json:"prevuMinutes"`
	ReelDebut    string `json:"reelDebut,omitempty"`
	ReelFin      string `json:"reelFin,omitempty"`
	ReelMinutes  int    `json:"reelMinutes"`
}

// DeviationDTO is one derived deviation.
type DeviationDTO struct {
	Type         string `json:"type"`
	SegmentIndex int    `json:"segmentIndex,omitempty"`
	EcartMinutes int    `json:"ecartMinutes"`
	PrevuDebut   string `json:"prevuDebut,omitempty"`
	PrevuFin     string `json:"prevuFin,omitempty"`
	ReelDebut    string `json:"reelDebut,omitempty"`
	ReelFin      string `json:"reelFin,omitempty"`
	Description  string `json:"description,omitempty"`
}

// WarningDTO is a tolerated data problem attached to a result.
type WarningDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BilanResponse is the daily balance for one employee-day.
type BilanResponse struct {
	EmployeID             string         `json:"employeId"`
	Date                  string         `json:"date"`
	TempsPlanifieMinutes  int            `json:"tempsPlanifieMinutes"`
	TempsTravailleMinutes int            `json:"tempsTravailleMinutes"`
	SoldeMinutes          int            `json:"soldeMinutes"`
	SoldeHeures           string         `json:"soldeHeures"`
	Segments              []SegmentDTO   `json:"segments"`
	Ecarts                []DeviationDTO `json:"ecarts"`
	Avertissements        []WarningDTO   `json:"avertissements,omitempty"`
	ExtraPayable          bool           `json:"extraPayable"`
}

// =============================================================================
// SYNC
// =============================================================================

// SyncRequest runs reconciliation + anomaly sync over a date range.
type SyncRequest struct {
	EmployeID string `json:"employeId"`
	DateDebut string `json:"dateDebut"`
	DateFin   string `json:"dateFin,omitempty"` // defaults to dateDebut
}

// SyncDayDTO summarizes one synchronized day.
type SyncDayDTO struct {
	Date       string       `json:"date"`
	Creees     []AnomalyDTO `json:"creees,omitempty"`
	Obsoletes  []string     `json:"obsoletes,omitempty"`
	Inchangees int          `json:"inchangees"`
}

// SyncResponse is the outcome of POST /anomalies/sync.
type SyncResponse struct {
	EmployeID      string       `json:"employeId"`
	Jours          []SyncDayDTO `json:"jours"`
	TotalCreees    int          `json:"totalCreees"`
	TotalObsoletes int          `json:"totalObsoletes"`
	Partiel        bool         `json:"partiel,omitempty"`
}

// =============================================================================
// PAIEMENTS EXTRAS
// =============================================================================

// PaiementDTO is the wire form of an off-books payment.
type PaiementDTO struct {
	ID          string `json:"id"`
	AnomalieID  string `json:"anomalieId,omitempty"`
	EmployeID   string `json:"employeId"`
	ShiftID     string `json:"shiftId,omitempty"`
	Date        string `json:"date"`
	Heures      string `json:"heures"`
	TauxHoraire string `json:"tauxHoraire,omitempty"`
	Montant     string `json:"montant,omitempty"`
	Source      string `json:"source"`
	Statut      string `json:"statut"`
	Commentaire string `json:"commentaire,omitempty"`
	CreePar     string `json:"creePar,omitempty"`
	CreatedAt   string `json:"createdAt"`
	PayeAt      string `json:"payeAt,omitempty"`
}

func toPaiementDTO(p anomaly.PaiementExtra) PaiementDTO {
	dto := PaiementDTO{
		ID:          p.ID,
		AnomalieID:  p.AnomalieID,
		EmployeID:   p.EmployeeID,
		ShiftID:     p.ShiftID,
		Date:        p.Date.String(),
		Heures:      p.Heures.String(),
		Source:      string(p.Source),
		Statut:      string(p.Statut),
		Commentaire: p.Commentaire,
		CreePar:     p.CreePar,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
	}
	if p.TauxHoraire != nil {
		dto.TauxHoraire = p.TauxHoraire.String()
	}
	if p.Montant != nil {
		dto.Montant = p.Montant.String()
	}
	if p.PayeAt != nil {
		dto.PayeAt = p.PayeAt.Format(time.RFC3339)
	}
	return dto
}

// PayerRequest settles a payment draft; the rate is chosen here.
type PayerRequest struct {
	TauxHoraire string `json:"tauxHoraire"`
}

// =============================================================================
// EMPLOYES
// =============================================================================

// EmployeDTO is the wire form of a directory record.
type EmployeDTO struct {
	ID                 string `json:"id"`
	Nom                string `json:"nom"`
	Prenom             string `json:"prenom,omitempty"`
	Email              string `json:"email,omitempty"`
	Categorie          string `json:"categorie,omitempty"`
	HeuresContratHebdo string `json:"heuresContratHebdo"`
	EmbaucheLe         string `json:"embaucheLe"`
	SortieLe           string `json:"sortieLe,omitempty"`
	Actif              bool   `json:"actif"`
}

func toEmployeDTO(e kpi.Employee) EmployeDTO {
	dto := EmployeDTO{
		ID:                 e.ID,
		Nom:                e.Nom,
		Prenom:             e.Prenom,
		Email:              e.Email,
		Categorie:          e.Categorie,
		HeuresContratHebdo: e.HeuresContratHebdo.String(),
		EmbaucheLe:         e.EmbaucheLe.String(),
		Actif:              e.Actif,
	}
	if e.SortieLe != nil {
		dto.SortieLe = e.SortieLe.String()
	}
	return dto
}

// CreateEmployeRequest creates a directory record.
type CreateEmployeRequest struct {
	ID                 string `json:"id,omitempty"`
	Nom                string `json:"nom"`
	Prenom             string `json:"prenom,omitempty"`
	Email              string `json:"email,omitempty"`
	Categorie          string `json:"categorie,omitempty"`
	HeuresContratHebdo string `json:"heuresContratHebdo,omitempty"`
	EmbaucheLe         string `json:"embaucheLe"`
	SortieLe           string `json:"sortieLe,omitempty"`
	Actif              *bool  `json:"actif,omitempty"`
}

// =============================================================================
// ADMIN STATS
// =============================================================================

// AdminStatsResponse is the KPI report plus anomaly counters.
type AdminStatsResponse struct {
	Periode   string         `json:"periode"`
	DateDebut string         `json:"dateDebut"`
	DateFin   string         `json:"dateFin"`
	KPI       *kpi.Report    `json:"kpi"`
	Anomalies map[string]int `json:"anomaliesParStatut"`
	Partiel   bool           `json:"partiel,omitempty"`
}

func toWarningDTOs(ws []attendance.IntegrityWarning) []WarningDTO {
	if len(ws) == 0 {
		return nil
	}
	out := make([]WarningDTO, len(ws))
	for i, w := range ws {
		out[i] = WarningDTO{Code: string(w.Code), Message: w.Message}
	}
	return out
}
