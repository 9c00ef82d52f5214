/*
handlers.go - HTTP handlers for the attendance anomaly API.

PURPOSE:
  Exposes reconciliation, anomaly resolution and KPI aggregation over
  REST. Handlers parse and validate the HTTP surface, then delegate to
  the domain packages.

ENDPOINTS:
  Anomalies:
    GET  /api/anomalies                                    paginated listing
    GET  /api/anomalies/stats                              period counters
    GET  /api/anomalies/bilan-journalier/{employeId}/{date} daily balance
    PUT  /api/anomalies/{id}/traiter                       resolution action
    POST /api/anomalies/sync                               reconcile + persist

  Paiements extras:
    GET  /api/paiements-extras                             list drafts/settled
    PUT  /api/paiements-extras/{id}/payer                  settle with a rate

  Employes:
    GET  /api/employes
    POST /api/employes

  Admin:
    GET  /api/admin/stats                                  KPI report

ERROR HANDLING:
  The attendance error taxonomy maps onto HTTP statuses:
  - ValidationError -> 400 (with the offending field)
  - NotFoundError   -> 404
  - ConflictError   -> 409
  - anything else   -> 500

SEE ALSO:
  - dto.go: request/response shapes
  - server.go: router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Yamine-coder/gestion-rh-sub005/anomaly"
	"github.com/Yamine-coder/gestion-rh-sub005/attendance"
	"github.com/Yamine-coder/gestion-rh-sub005/kpi"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine     *attendance.Engine
	Classifier *attendance.Classifier
	Anomalies  anomaly.Store
	Paiements  anomaly.PaiementStore
	Resolver   *anomaly.Resolver
	Syncer     *anomaly.Syncer
	Aggregator *kpi.Aggregator
	Directory  kpi.Directory
	Log        logrus.FieldLogger
	Now        func() time.Time
}

// NewHandler wires a handler over the domain services.
func NewHandler(engine *attendance.Engine, classifier *attendance.Classifier,
	anomalies anomaly.Store, paiements anomaly.PaiementStore,
	resolver *anomaly.Resolver, syncer *anomaly.Syncer,
	aggregator *kpi.Aggregator, directory kpi.Directory,
	log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		Engine:     engine,
		Classifier: classifier,
		Anomalies:  anomalies,
		Paiements:  paiements,
		Resolver:   resolver,
		Syncer:     syncer,
		Aggregator: aggregator,
		Directory:  directory,
		Log:        log,
		Now:        time.Now,
	}
}

// =============================================================================
// ANOMALY HANDLERS
// =============================================================================

// ListAnomalies returns a filtered, paginated anomaly listing.
// GET /api/anomalies?statut=&gravite=&type=&employeId=&dateDebut=&dateFin=&limit=&offset=
func (h *Handler) ListAnomalies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := anomaly.Filter{
		EmployeeID: q.Get("employeId"),
		Statut:     anomaly.Status(q.Get("statut")),
		Gravite:    attendance.Severity(q.Get("gravite")),
		Type:       attendance.DeviationType(q.Get("type")),
		Limit:      50,
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit invalide (1-500)", nil)
			return
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset invalide", nil)
			return
		}
		f.Offset = n
	}
	if v := q.Get("dateDebut"); v != "" {
		d, err := attendance.ParseDay(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "dateDebut invalide (YYYY-MM-DD)", err)
			return
		}
		f.From = &d
	}
	if v := q.Get("dateFin"); v != "" {
		d, err := attendance.ParseDay(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "dateFin invalide (YYYY-MM-DD)", err)
			return
		}
		f.To = &d
	}

	anomalies, total, err := h.Anomalies.List(r.Context(), f)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]AnomalyDTO, len(anomalies))
	for i, a := range anomalies {
		dtos[i] = toAnomalyDTO(a)
	}
	writeJSON(w, http.StatusOK, ListAnomaliesResponse{
		Anomalies: dtos,
		Total:     total,
		Limit:     f.Limit,
		Offset:    f.Offset,
		HasMore:   f.Offset+len(dtos) < total,
	})
}

// GetStats returns anomaly counters for a rolling period.
// GET /api/anomalies/stats?periode=jour|semaine|mois
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	periode, from, to, err := h.parsePeriode(r.URL.Query().Get("periode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	f := anomaly.Filter{From: &from, To: &to}
	byStatut, err := h.Anomalies.CountBy(r.Context(), f, "statut")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	byType, err := h.Anomalies.CountBy(r.Context(), f, "type")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	byGravite, err := h.Anomalies.CountBy(r.Context(), f, "gravite")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	recent, total, err := h.Anomalies.List(r.Context(), anomaly.Filter{From: &from, To: &to, Limit: 10})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	recentDTOs := make([]AnomalyDTO, len(recent))
	for i, a := range recent {
		recentDTOs[i] = toAnomalyDTO(a)
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		Periode:    periode,
		DateDebut:  from.String(),
		DateFin:    to.String(),
		Total:      total,
		ParStatut:  byStatut,
		ParType:    byType,
		ParGravite: byGravite,
		Recentes:   recentDTOs,
	})
}

// GetBilanJournalier recomputes the daily balance for one employee-day.
// GET /api/anomalies/bilan-journalier/{employeId}/{date}
func (h *Handler) GetBilanJournalier(w http.ResponseWriter, r *http.Request) {
	employeID := chi.URLParam(r, "employeId")
	date, err := attendance.ParseDay(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date invalide (YYYY-MM-DD)", err)
		return
	}

	report, err := h.Engine.Reconcile(r.Context(), employeID, date)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := BilanResponse{
		EmployeID:             employeID,
		Date:                  date.String(),
		TempsPlanifieMinutes:  report.Balance.PlannedMinutes,
		TempsTravailleMinutes: report.Balance.WorkedMinutes,
		SoldeMinutes:          report.Balance.NetBalanceMinutes,
		SoldeHeures:           report.Balance.NetHours().String(),
		Segments:              []SegmentDTO{},
		Ecarts:                []DeviationDTO{},
		Avertissements:        toWarningDTOs(report.Warnings),
	}
	for _, sb := range report.Balance.Segments {
		dto := SegmentDTO{
			Index:        sb.Index,
			ShiftID:      sb.ShiftID,
			PrevuDebut:   sb.PlannedStart.String(),
			PrevuFin:     sb.PlannedEnd.String(),
			PrevuMinutes: sb.PlannedMinutes,
			ReelMinutes:  sb.WorkedMinutes,
		}
		if sb.ActualStart != nil {
			dto.ReelDebut = sb.ActualStart.Format("15:04")
		}
		if sb.ActualEnd != nil {
			dto.ReelFin = sb.ActualEnd.Format("15:04")
		}
		resp.Segments = append(resp.Segments, dto)
	}
	for _, d := range report.Deviations {
		dto := DeviationDTO{
			Type:         string(d.Type),
			SegmentIndex: d.SegmentIndex,
			EcartMinutes: d.EcartMinutes,
			Description:  d.Description,
		}
		if d.PlannedEnd > d.PlannedStart {
			dto.PrevuDebut = d.PlannedStart.String()
			dto.PrevuFin = d.PlannedEnd.String()
		}
		if !d.ActualStart.IsZero() {
			dto.ReelDebut = d.ActualStart.Format("15:04")
		}
		if !d.ActualEnd.IsZero() {
			dto.ReelFin = d.ActualEnd.Format("15:04")
		}
		resp.Ecarts = append(resp.Ecarts, dto)

		// Extra-payable recommendation: positive balance + payable overtime.
		c := h.Classifier.Classify(d, report.Balance.NetBalanceMinutes)
		if c.Resolvability.PayableExtra {
			resp.ExtraPayable = true
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Traiter applies one resolution action to one anomaly.
// PUT /api/anomalies/{id}/traiter
func (h *Handler) Traiter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body TraiterRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "corps de requete invalide", err)
		return
	}

	req := anomaly.Request{
		Action:               anomaly.Action(body.Action),
		Commentaire:          body.Commentaire,
		OverrideSoldeNegatif: body.OverrideSoldeNegatif,
		QuestionVerification: body.QuestionVerification,
		NotifierEmploye:      body.NotifierEmploye,
		Modify:               body.Modify,
		ActorID:              body.TraitePar,
		ActorRole:            body.Role,
	}
	if body.HeuresExtra != "" {
		d, err := decimal.NewFromString(body.HeuresExtra)
		if err != nil {
			writeError(w, http.StatusBadRequest, "heuresExtra invalide", err)
			return
		}
		req.HeuresExtra = d
	}
	if body.ShiftCorrection != nil {
		c := attendance.ShiftCorrection{
			SegmentType: body.ShiftCorrection.SegmentType,
			Raison:      body.ShiftCorrection.Raison,
		}
		if body.ShiftCorrection.NewTime != "" {
			t, err := attendance.ParseClock(body.ShiftCorrection.NewTime)
			if err != nil {
				writeError(w, http.StatusBadRequest, "shiftCorrection.newTime invalide (HH:MM)", err)
				return
			}
			c.NewTime = &t
		}
		req.ShiftCorrection = &c
	}

	outcome, err := h.Resolver.Traiter(r.Context(), id, req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := TraiterResponse{
		Anomalie:     toAnomalyDTO(*outcome.Anomaly),
		ImpactScore:  outcome.ImpactScore,
		ShiftModifie: outcome.ShiftModifie,
		Message:      outcome.Message,
	}
	if outcome.Paiement != nil {
		p := toPaiementDTO(*outcome.Paiement)
		resp.Paiement = &p
	}
	writeJSON(w, http.StatusOK, resp)
}

// SyncAnomalies reconciles a date range and aligns the anomaly table.
// POST /api/anomalies/sync
func (h *Handler) SyncAnomalies(w http.ResponseWriter, r *http.Request) {
	var body SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "corps de requete invalide", err)
		return
	}
	if body.EmployeID == "" {
		writeError(w, http.StatusBadRequest, "employeId requis", nil)
		return
	}
	from, err := attendance.ParseDay(body.DateDebut)
	if err != nil {
		writeError(w, http.StatusBadRequest, "dateDebut invalide (YYYY-MM-DD)", err)
		return
	}
	to := from
	if body.DateFin != "" {
		to, err = attendance.ParseDay(body.DateFin)
		if err != nil {
			writeError(w, http.StatusBadRequest, "dateFin invalide (YYYY-MM-DD)", err)
			return
		}
	}

	results, err := h.Syncer.SyncPeriod(r.Context(), body.EmployeID, attendance.Period{Start: from, End: to})
	partial := errors.Is(err, attendance.ErrPartialResult)
	if err != nil && !partial {
		writeDomainError(w, err)
		return
	}

	resp := SyncResponse{EmployeID: body.EmployeID, Partiel: partial}
	for _, res := range results {
		day := SyncDayDTO{
			Date:       res.Date.String(),
			Obsoletes:  res.Obsoleted,
			Inchangees: res.Unchanged,
		}
		for _, a := range res.Created {
			day.Creees = append(day.Creees, toAnomalyDTO(a))
		}
		resp.TotalCreees += len(res.Created)
		resp.TotalObsoletes += len(res.Obsoleted)
		resp.Jours = append(resp.Jours, day)
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// PAIEMENT HANDLERS
// =============================================================================

// ListPaiements lists off-books payments.
// GET /api/paiements-extras?employeId=&statut=
func (h *Handler) ListPaiements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	paiements, err := h.Paiements.List(r.Context(), q.Get("employeId"), anomaly.PaiementStatus(q.Get("statut")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]PaiementDTO, len(paiements))
	for i, p := range paiements {
		dtos[i] = toPaiementDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PayerPaiement settles a payment draft; the hourly rate is fixed here.
// PUT /api/paiements-extras/{id}/payer
func (h *Handler) PayerPaiement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body PayerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "corps de requete invalide", err)
		return
	}
	taux, err := decimal.NewFromString(body.TauxHoraire)
	if err != nil {
		writeError(w, http.StatusBadRequest, "tauxHoraire invalide", err)
		return
	}

	p, err := h.Paiements.MarkPaid(r.Context(), id, taux)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaiementDTO(*p))
}

// =============================================================================
// EMPLOYE HANDLERS
// =============================================================================

// ListEmployes returns the directory.
// GET /api/employes
func (h *Handler) ListEmployes(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Directory.Employees(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]EmployeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEmploye adds a directory record.
// POST /api/employes
func (h *Handler) CreateEmploye(w http.ResponseWriter, r *http.Request) {
	var body CreateEmployeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "corps de requete invalide", err)
		return
	}
	if body.Nom == "" {
		writeError(w, http.StatusBadRequest, "nom requis", nil)
		return
	}
	embauche, err := attendance.ParseDay(body.EmbaucheLe)
	if err != nil {
		writeError(w, http.StatusBadRequest, "embaucheLe invalide (YYYY-MM-DD)", err)
		return
	}

	e := kpi.Employee{
		ID:         body.ID,
		Nom:        body.Nom,
		Prenom:     body.Prenom,
		Email:      body.Email,
		Categorie:  body.Categorie,
		EmbaucheLe: embauche,
		Actif:      true,
	}
	if body.Actif != nil {
		e.Actif = *body.Actif
	}
	if body.HeuresContratHebdo != "" {
		d, err := decimal.NewFromString(body.HeuresContratHebdo)
		if err != nil || d.IsNegative() {
			writeError(w, http.StatusBadRequest, "heuresContratHebdo invalide", err)
			return
		}
		e.HeuresContratHebdo = d
	}
	if body.SortieLe != "" {
		d, err := attendance.ParseDay(body.SortieLe)
		if err != nil {
			writeError(w, http.StatusBadRequest, "sortieLe invalide (YYYY-MM-DD)", err)
			return
		}
		e.SortieLe = &d
	}

	if err := h.Directory.Create(r.Context(), &e); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeDTO(e))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// GetAdminStats returns the KPI report for a rolling period.
// GET /api/admin/stats?periode=jour|semaine|mois
func (h *Handler) GetAdminStats(w http.ResponseWriter, r *http.Request) {
	periode, from, to, err := h.parsePeriode(r.URL.Query().Get("periode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	report, err := h.Aggregator.Aggregate(r.Context(), attendance.Period{Start: from, End: to})
	partial := errors.Is(err, attendance.ErrPartialResult)
	if err != nil && !partial {
		writeDomainError(w, err)
		return
	}

	byStatut, err := h.Anomalies.CountBy(r.Context(), anomaly.Filter{From: &from, To: &to}, "statut")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AdminStatsResponse{
		Periode:   periode,
		DateDebut: from.String(),
		DateFin:   to.String(),
		KPI:       report,
		Anomalies: byStatut,
		Partiel:   partial,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// parsePeriode maps jour/semaine/mois onto a rolling day range ending today.
func (h *Handler) parsePeriode(periode string) (string, attendance.Day, attendance.Day, error) {
	today := attendance.DayOf(h.Now())
	switch periode {
	case "", "jour":
		return "jour", today, today, nil
	case "semaine":
		return "semaine", today.AddDays(-6), today, nil
	case "mois":
		return "mois", today.AddDays(-29), today, nil
	}
	return "", attendance.Day{}, attendance.Day{},
		errors.New("periode invalide (jour, semaine, mois)")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the attendance error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var vErr *attendance.ValidationError
	if errors.As(err, &vErr) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: vErr.Message, Field: vErr.Field})
		return
	}
	var nfErr *attendance.NotFoundError
	if errors.As(err, &nfErr) {
		writeError(w, http.StatusNotFound, err.Error(), nil)
		return
	}
	switch {
	case errors.Is(err, attendance.ErrValidation), errors.Is(err, attendance.ErrInvalidPeriod):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, attendance.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, attendance.ErrConflict):
		writeError(w, http.StatusConflict, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "erreur interne", err)
	}
}
