package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yamine-coder/gestion-rh-sub005/anomaly"
	"github.com/Yamine-coder/gestion-rh-sub005/api"
	"github.com/Yamine-coder/gestion-rh-sub005/attendance"
	"github.com/Yamine-coder/gestion-rh-sub005/kpi"
	"github.com/Yamine-coder/gestion-rh-sub005/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testDay = attendance.NewDay(2025, time.March, 10)

// newTestAPI wires the full handler stack over the in-memory store with the
// clock pinned to the evening of the test day.
func newTestAPI(t *testing.T) (http.Handler, *memory.Store) {
	t.Helper()
	store := memory.NewStore()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	now := func() time.Time { return testDay.Time().Add(23 * time.Hour) }

	engine := attendance.NewEngine(store, store)
	engine.Now = now
	classifier := attendance.NewClassifier(attendance.DefaultThresholds())
	resolver := anomaly.NewResolver(store.Anomalies(), store.Paiements(), store, store, store, log)
	resolver.Now = now
	syncer := anomaly.NewSyncer(engine, classifier, store.Anomalies(), log)
	syncer.Now = now
	aggregator := kpi.NewAggregator(engine, store.Directory(), log)
	aggregator.Now = now

	h := api.NewHandler(engine, classifier, store.Anomalies(), store.Paiements(),
		resolver, syncer, aggregator, store.Directory(), log)
	h.Now = now
	return api.NewRouter(h), store
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(out))
}

func seedPendingAnomaly(t *testing.T, store *memory.Store, employeID string) string {
	t.Helper()
	a := &anomaly.Anomaly{
		EmployeeID:  employeID,
		Date:        testDay,
		Type:        attendance.DeviationRetard,
		Gravite:     attendance.SeverityAttention,
		Statut:      anomaly.StatusEnAttente,
		Description: "retard: arrivee 09:10, prevu 09:00 (+10 min)",
		Details:     anomaly.Details{EcartMinutes: 10, SoldeNetMinutes: -10},
		CreatedAt:   testDay.Time().Add(18 * time.Hour),
		UpdatedAt:   testDay.Time().Add(18 * time.Hour),
	}
	require.NoError(t, store.Anomalies().Create(context.Background(), a))
	return a.ID
}

func seedOvertimeAnomaly(t *testing.T, store *memory.Store) string {
	t.Helper()
	a := &anomaly.Anomaly{
		EmployeeID: "emp-1",
		Date:       testDay,
		Type:       attendance.DeviationHeuresSup,
		Gravite:    attendance.SeverityAValider,
		Statut:     anomaly.StatusEnAttente,
		Details:    anomaly.Details{EcartMinutes: 120, SoldeNetMinutes: 120},
		CreatedAt:  testDay.Time().Add(18 * time.Hour),
		UpdatedAt:  testDay.Time().Add(18 * time.Hour),
	}
	require.NoError(t, store.Anomalies().Create(context.Background(), a))
	return a.ID
}

// =============================================================================
// LISTING AND STATS
// =============================================================================

func TestListAnomalies_Pagination(t *testing.T) {
	router, store := newTestAPI(t)
	for i := 0; i < 3; i++ {
		seedPendingAnomaly(t, store, "emp-1")
	}

	rec := do(t, router, http.MethodGet, "/api/anomalies?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Anomalies []json.RawMessage `json:"anomalies"`
		Total     int               `json:"total"`
		Limit     int               `json:"limit"`
		Offset    int               `json:"offset"`
		HasMore   bool              `json:"hasMore"`
	}
	decode(t, rec, &resp)
	assert.Len(t, resp.Anomalies, 2)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.Limit)
	assert.True(t, resp.HasMore)

	// Last page.
	rec = do(t, router, http.MethodGet, "/api/anomalies?limit=2&offset=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.Len(t, resp.Anomalies, 1)
	assert.False(t, resp.HasMore)
}

func TestListAnomalies_RejectsBadLimit(t *testing.T) {
	router, _ := newTestAPI(t)

	rec := do(t, router, http.MethodGet, "/api/anomalies?limit=1000", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetStats_Counters(t *testing.T) {
	router, store := newTestAPI(t)
	seedPendingAnomaly(t, store, "emp-1")
	seedPendingAnomaly(t, store, "emp-2")

	rec := do(t, router, http.MethodGet, "/api/anomalies/stats?periode=jour", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Periode   string         `json:"periode"`
		Total     int            `json:"total"`
		ParStatut map[string]int `json:"parStatut"`
		ParType   map[string]int `json:"parType"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, "jour", resp.Periode)
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 2, resp.ParStatut["en_attente"])
	assert.Equal(t, 2, resp.ParType["retard"])
}

func TestGetStats_RejectsUnknownPeriode(t *testing.T) {
	router, _ := newTestAPI(t)

	rec := do(t, router, http.MethodGet, "/api/anomalies/stats?periode=annee", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// DAILY BALANCE
// =============================================================================

func TestGetBilanJournalier(t *testing.T) {
	// GIVEN a 09:00-17:00 plan worked 09:10-19:00
	router, store := newTestAPI(t)
	store.PutShift(attendance.Shift{
		EmployeeID: "emp-1",
		Date:       testDay,
		Kind:       attendance.ShiftWork,
		Segments:   []attendance.PlannedSegment{{Start: 9 * 60, End: 17 * 60}},
	})
	store.AddPunch(attendance.Punch{EmployeeID: "emp-1", At: testDay.Time().Add(9*time.Hour + 10*time.Minute), Kind: attendance.PunchEntry})
	store.AddPunch(attendance.Punch{EmployeeID: "emp-1", At: testDay.Time().Add(19 * time.Hour), Kind: attendance.PunchExit})

	rec := do(t, router, http.MethodGet, "/api/anomalies/bilan-journalier/emp-1/2025-03-10", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		EmployeID             string `json:"employeId"`
		TempsPlanifieMinutes  int    `json:"tempsPlanifieMinutes"`
		TempsTravailleMinutes int    `json:"tempsTravailleMinutes"`
		SoldeMinutes          int    `json:"soldeMinutes"`
		SoldeHeures           string `json:"soldeHeures"`
		Segments              []struct {
			PrevuDebut string `json:"prevuDebut"`
			ReelDebut  string `json:"reelDebut"`
		} `json:"segments"`
		Ecarts []struct {
			Type         string `json:"type"`
			EcartMinutes int    `json:"ecartMinutes"`
		} `json:"ecarts"`
		ExtraPayable bool `json:"extraPayable"`
	}
	decode(t, rec, &resp)

	assert.Equal(t, "emp-1", resp.EmployeID)
	assert.Equal(t, 480, resp.TempsPlanifieMinutes)
	assert.Equal(t, 590, resp.TempsTravailleMinutes)
	assert.Equal(t, 110, resp.SoldeMinutes)
	assert.Equal(t, "1.83", resp.SoldeHeures)
	require.Len(t, resp.Segments, 1)
	assert.Equal(t, "09:00", resp.Segments[0].PrevuDebut)
	assert.Equal(t, "09:10", resp.Segments[0].ReelDebut)
	require.Len(t, resp.Ecarts, 2)
	assert.True(t, resp.ExtraPayable)
}

func TestGetBilanJournalier_BadDate(t *testing.T) {
	router, _ := newTestAPI(t)

	rec := do(t, router, http.MethodGet, "/api/anomalies/bilan-journalier/emp-1/10-03-2025", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// RESOLUTION
// =============================================================================

func TestTraiter_Valider(t *testing.T) {
	router, store := newTestAPI(t)
	id := seedPendingAnomaly(t, store, "emp-1")

	rec := do(t, router, http.MethodPut, "/api/anomalies/"+id+"/traiter", map[string]any{
		"action":    "valider",
		"traitePar": "admin-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Anomalie struct {
			Statut    string `json:"statut"`
			TraitePar string `json:"traitePar"`
		} `json:"anomalie"`
		Message string `json:"message"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, "validee", resp.Anomalie.Statut)
	assert.Equal(t, "admin-1", resp.Anomalie.TraitePar)
	assert.NotEmpty(t, resp.Message)
}

func TestTraiter_MissingCommentIs400WithField(t *testing.T) {
	router, store := newTestAPI(t)
	id := seedPendingAnomaly(t, store, "emp-1")

	rec := do(t, router, http.MethodPut, "/api/anomalies/"+id+"/traiter", map[string]any{
		"action":    "refuser",
		"traitePar": "admin-1",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp struct {
		Error string `json:"error"`
		Field string `json:"field"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, "commentaire", resp.Field)
}

func TestTraiter_SecondActionIs409(t *testing.T) {
	router, store := newTestAPI(t)
	id := seedPendingAnomaly(t, store, "emp-1")

	rec := do(t, router, http.MethodPut, "/api/anomalies/"+id+"/traiter", map[string]any{
		"action": "valider", "traitePar": "admin-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPut, "/api/anomalies/"+id+"/traiter", map[string]any{
		"action": "valider", "traitePar": "admin-2",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTraiter_UnknownAnomalyIs404(t *testing.T) {
	router, _ := newTestAPI(t)

	rec := do(t, router, http.MethodPut, "/api/anomalies/nope/traiter", map[string]any{
		"action": "valider", "traitePar": "admin-1",
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTraiter_PayerExtraReturnsDraft(t *testing.T) {
	router, store := newTestAPI(t)
	id := seedOvertimeAnomaly(t, store)

	rec := do(t, router, http.MethodPut, "/api/anomalies/"+id+"/traiter", map[string]any{
		"action":    "payer_extra",
		"traitePar": "admin-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Paiement *struct {
			Heures      string `json:"heures"`
			Statut      string `json:"statut"`
			TauxHoraire string `json:"tauxHoraire"`
		} `json:"paiement"`
	}
	decode(t, rec, &resp)
	require.NotNil(t, resp.Paiement)
	assert.Equal(t, "2", resp.Paiement.Heures)
	assert.Equal(t, "a_payer", resp.Paiement.Statut)
	assert.Empty(t, resp.Paiement.TauxHoraire)
}

// =============================================================================
// SYNC
// =============================================================================

func TestSyncAnomalies(t *testing.T) {
	// GIVEN an unplanned presence on the test day
	router, store := newTestAPI(t)
	store.AddPunch(attendance.Punch{EmployeeID: "emp-1", At: testDay.Time().Add(10 * time.Hour), Kind: attendance.PunchEntry})
	store.AddPunch(attendance.Punch{EmployeeID: "emp-1", At: testDay.Time().Add(14 * time.Hour), Kind: attendance.PunchExit})

	rec := do(t, router, http.MethodPost, "/api/anomalies/sync", map[string]any{
		"employeId": "emp-1",
		"dateDebut": "2025-03-10",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		EmployeID   string `json:"employeId"`
		TotalCreees int    `json:"totalCreees"`
		Jours       []struct {
			Date   string            `json:"date"`
			Creees []json.RawMessage `json:"creees"`
		} `json:"jours"`
		Partiel bool `json:"partiel"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, "emp-1", resp.EmployeID)
	assert.Equal(t, 1, resp.TotalCreees)
	require.Len(t, resp.Jours, 1)
	assert.Equal(t, "2025-03-10", resp.Jours[0].Date)
	assert.False(t, resp.Partiel)
}

func TestSyncAnomalies_RequiresEmploye(t *testing.T) {
	router, _ := newTestAPI(t)

	rec := do(t, router, http.MethodPost, "/api/anomalies/sync", map[string]any{
		"dateDebut": "2025-03-10",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// PAIEMENTS
// =============================================================================

func TestPayerPaiement_FullFlow(t *testing.T) {
	// GIVEN an overtime anomaly paid in extra
	router, store := newTestAPI(t)
	id := seedOvertimeAnomaly(t, store)
	rec := do(t, router, http.MethodPut, "/api/anomalies/"+id+"/traiter", map[string]any{
		"action": "payer_extra", "traitePar": "admin-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var traite struct {
		Paiement struct {
			ID string `json:"id"`
		} `json:"paiement"`
	}
	decode(t, rec, &traite)

	// WHEN settling the draft at 12.50/h
	rec = do(t, router, http.MethodPut, "/api/paiements-extras/"+traite.Paiement.ID+"/payer", map[string]any{
		"tauxHoraire": "12.50",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var paid struct {
		Statut  string `json:"statut"`
		Montant string `json:"montant"`
	}
	decode(t, rec, &paid)
	assert.Equal(t, "paye", paid.Statut)
	assert.Equal(t, "25", paid.Montant)

	// Settling twice is a conflict.
	rec = do(t, router, http.MethodPut, "/api/paiements-extras/"+traite.Paiement.ID+"/payer", map[string]any{
		"tauxHoraire": "12.50",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// The listing shows the settled payment.
	rec = do(t, router, http.MethodGet, "/api/paiements-extras/?statut=paye", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []json.RawMessage
	decode(t, rec, &list)
	assert.Len(t, list, 1)
}

// =============================================================================
// EMPLOYES AND ADMIN
// =============================================================================

func TestCreateAndListEmployes(t *testing.T) {
	router, _ := newTestAPI(t)

	rec := do(t, router, http.MethodPost, "/api/employes/", map[string]any{
		"nom":                "Martin",
		"prenom":             "Sophie",
		"categorie":          "salle",
		"heuresContratHebdo": "35",
		"embaucheLe":         "2023-06-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		ID    string `json:"id"`
		Actif bool   `json:"actif"`
	}
	decode(t, rec, &created)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.Actif)

	rec = do(t, router, http.MethodGet, "/api/employes/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []struct {
		Nom string `json:"nom"`
	}
	decode(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "Martin", list[0].Nom)
}

func TestCreateEmploye_RequiresNom(t *testing.T) {
	router, _ := newTestAPI(t)

	rec := do(t, router, http.MethodPost, "/api/employes/", map[string]any{
		"embaucheLe": "2023-06-01",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAdminStats(t *testing.T) {
	// GIVEN one employee planned and absent on the test day
	router, store := newTestAPI(t)
	require.NoError(t, store.Directory().Create(context.Background(), &kpi.Employee{
		ID:         "emp-1",
		Nom:        "Martin",
		EmbaucheLe: attendance.NewDay(2023, time.June, 1),
		Actif:      true,
	}))
	store.PutShift(attendance.Shift{
		EmployeeID: "emp-1",
		Date:       testDay,
		Kind:       attendance.ShiftWork,
		Segments:   []attendance.PlannedSegment{{Start: 9 * 60, End: 17 * 60}},
	})
	seedPendingAnomaly(t, store, "emp-1")

	rec := do(t, router, http.MethodGet, "/api/admin/stats?periode=jour", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Periode string `json:"periode"`
		KPI     struct {
			MinutesPrevues  int    `json:"minutesPrevues"`
			TauxAbsenteisme string `json:"tauxAbsenteisme"`
			Effectif        int    `json:"effectif"`
		} `json:"kpi"`
		Anomalies map[string]int `json:"anomaliesParStatut"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, "jour", resp.Periode)
	assert.Equal(t, 480, resp.KPI.MinutesPrevues)
	assert.Equal(t, "1", resp.KPI.TauxAbsenteisme)
	assert.Equal(t, 1, resp.KPI.Effectif)
	assert.Equal(t, 1, resp.Anomalies["en_attente"])
}
