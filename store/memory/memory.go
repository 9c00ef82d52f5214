// Package memory provides in-memory store implementations (for testing/dev).
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Yamine-coder/gestion-rh-sub005/anomaly"
	"github.com/Yamine-coder/gestion-rh-sub005/attendance"
	"github.com/Yamine-coder/gestion-rh-sub005/kpi"
)

// Notification is a captured employee notification.
type Notification struct {
	ID         string
	EmployeeID string
	Message    string
	SentAt     time.Time
}

// Store is a single in-memory backing store for every collection. It
// directly implements attendance.PunchStore, attendance.ShiftPlanResolver,
// attendance.ShiftCorrector, anomaly.ScoreLedger and anomaly.Notifier;
// the interfaces whose method names collide (anomaly.Store,
// anomaly.PaiementStore, kpi.Directory) are exposed as typed views via
// Anomalies(), Paiements() and Directory().
type Store struct {
	mu            sync.RWMutex
	punches       map[string][]attendance.Punch // by employee
	shifts        map[string]*attendance.Shift  // by shift ID
	anomalies     map[string]*anomaly.Anomaly
	paiements     map[string]*anomaly.PaiementExtra
	scores        []anomaly.ScoreImpact
	employees     map[string]*kpi.Employee
	notifications []Notification
}

func NewStore() *Store {
	return &Store{
		punches:   make(map[string][]attendance.Punch),
		shifts:    make(map[string]*attendance.Shift),
		anomalies: make(map[string]*anomaly.Anomaly),
		paiements: make(map[string]*anomaly.PaiementExtra),
		employees: make(map[string]*kpi.Employee),
	}
}

func (s *Store) Anomalies() *AnomalyStore  { return &AnomalyStore{s} }
func (s *Store) Paiements() *PaiementStore { return &PaiementStore{s} }
func (s *Store) Directory() *EmployeeStore { return &EmployeeStore{s} }

// =============================================================================
// PUNCHES
// =============================================================================

// AddPunch seeds a punch event. Test/dev helper.
func (s *Store) AddPunch(p attendance.Punch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.punches[p.EmployeeID] = append(s.punches[p.EmployeeID], p)
}

// ClearPunches drops every punch for an employee. Test/dev helper.
func (s *Store) ClearPunches(employeeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.punches, employeeID)
}

func (s *Store) Punches(_ context.Context, employeeID string, from, to time.Time) ([]attendance.Punch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []attendance.Punch
	for _, p := range s.punches[employeeID] {
		if !p.At.Before(from) && p.At.Before(to) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

// =============================================================================
// SHIFTS
// =============================================================================

// PutShift seeds or replaces a planned shift.
func (s *Store) PutShift(sh attendance.Shift) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sh.ID == "" {
		sh.ID = uuid.NewString()
	}
	cp := sh
	cp.Segments = append([]attendance.PlannedSegment(nil), sh.Segments...)
	s.shifts[sh.ID] = &cp
	return sh.ID
}

// Shift returns a copy of one stored shift. Test helper.
func (s *Store) Shift(id string) (attendance.Shift, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.shifts[id]
	if !ok {
		return attendance.Shift{}, false
	}
	cp := *sh
	cp.Segments = append([]attendance.PlannedSegment(nil), sh.Segments...)
	return cp, true
}

func (s *Store) Shifts(_ context.Context, employeeID string, date attendance.Day) ([]attendance.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []attendance.Shift
	for _, sh := range s.shifts {
		if sh.EmployeeID == employeeID && sh.Date.Equal(date) {
			cp := *sh
			cp.Segments = append([]attendance.PlannedSegment(nil), sh.Segments...)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ApplyCorrection(_ context.Context, shiftID string, c attendance.ShiftCorrection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shifts[shiftID]
	if !ok {
		return &attendance.NotFoundError{Kind: "shift", ID: shiftID}
	}
	switch c.SegmentType {
	case "debut":
		if c.NewTime == nil || len(sh.Segments) == 0 {
			return &attendance.ValidationError{Field: "newTime", Message: "heure de debut requise"}
		}
		sh.Segments[0].Start = *c.NewTime
	case "fin":
		if c.NewTime == nil || len(sh.Segments) == 0 {
			return &attendance.ValidationError{Field: "newTime", Message: "heure de fin requise"}
		}
		sh.Segments[len(sh.Segments)-1].End = *c.NewTime
	case "absence":
		sh.Kind = attendance.ShiftAbsence
		sh.Motif = c.Raison
	default:
		return &attendance.ValidationError{Field: "segmentType", Message: fmt.Sprintf("type de correction inconnu %q", c.SegmentType)}
	}
	sh.Notes = appendNote(sh.Notes, c.Raison)
	return nil
}

func (s *Store) AppendExtraSegment(_ context.Context, employeeID string, date attendance.Day, seg attendance.PlannedSegment) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sh := range s.shifts {
		if sh.EmployeeID == employeeID && sh.Date.Equal(date) && sh.Kind == attendance.ShiftWork {
			sh.Segments = append(sh.Segments, seg)
			return sh.ID, nil
		}
	}
	sh := &attendance.Shift{
		ID:         uuid.NewString(),
		EmployeeID: employeeID,
		Date:       date,
		Kind:       attendance.ShiftWork,
		Segments:   []attendance.PlannedSegment{seg},
	}
	s.shifts[sh.ID] = sh
	return sh.ID, nil
}

func appendNote(notes, note string) string {
	if note == "" {
		return notes
	}
	if notes == "" {
		return note
	}
	return notes + "; " + note
}

// =============================================================================
// ANOMALIES
// =============================================================================

// AnomalyStore implements anomaly.Store.
type AnomalyStore struct {
	s *Store
}

func (v *AnomalyStore) Create(_ context.Context, a *anomaly.Anomaly) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if _, exists := v.s.anomalies[a.ID]; exists {
		return &attendance.ConflictError{Reason: "anomalie deja existante", Current: a.ID}
	}
	cp := *a
	v.s.anomalies[a.ID] = &cp
	return nil
}

func (v *AnomalyStore) Get(_ context.Context, id string) (*anomaly.Anomaly, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	a, ok := v.s.anomalies[id]
	if !ok {
		return nil, &attendance.NotFoundError{Kind: "anomalie", ID: id}
	}
	cp := *a
	return &cp, nil
}

func (v *AnomalyStore) List(_ context.Context, f anomaly.Filter) ([]anomaly.Anomaly, int, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	var all []anomaly.Anomaly
	for _, a := range v.s.anomalies {
		if matches(a, f) {
			all = append(all, *a)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	total := len(all)
	if f.Offset > 0 {
		if f.Offset >= len(all) {
			all = nil
		} else {
			all = all[f.Offset:]
		}
	}
	if f.Limit > 0 && len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, total, nil
}

func (v *AnomalyStore) UpdateCAS(_ context.Context, a *anomaly.Anomaly, expect []anomaly.Status) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	stored, ok := v.s.anomalies[a.ID]
	if !ok {
		return &attendance.NotFoundError{Kind: "anomalie", ID: a.ID}
	}
	allowed := false
	for _, st := range expect {
		if stored.Statut == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return &attendance.ConflictError{Reason: "statut modifie entre temps", Current: string(stored.Statut)}
	}
	cp := *a
	v.s.anomalies[a.ID] = &cp
	return nil
}

func (v *AnomalyStore) ByEmployeeDay(_ context.Context, employeeID string, date attendance.Day) ([]anomaly.Anomaly, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	var out []anomaly.Anomaly
	for _, a := range v.s.anomalies {
		if a.EmployeeID == employeeID && a.Date.Equal(date) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *AnomalyStore) CountBy(_ context.Context, f anomaly.Filter, column string) (map[string]int, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	counts := make(map[string]int)
	for _, a := range v.s.anomalies {
		if !matches(a, f) {
			continue
		}
		switch column {
		case "statut":
			counts[string(a.Statut)]++
		case "gravite":
			counts[string(a.Gravite)]++
		case "type":
			counts[string(a.Type)]++
		default:
			return nil, &attendance.ValidationError{Field: "column", Message: fmt.Sprintf("colonne inconnue %q", column)}
		}
	}
	return counts, nil
}

func matches(a *anomaly.Anomaly, f anomaly.Filter) bool {
	if f.EmployeeID != "" && a.EmployeeID != f.EmployeeID {
		return false
	}
	if f.Statut != "" && a.Statut != f.Statut {
		return false
	}
	if f.Gravite != "" && a.Gravite != f.Gravite {
		return false
	}
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if f.From != nil && a.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && a.Date.After(*f.To) {
		return false
	}
	return true
}

// =============================================================================
// PAIEMENTS EXTRAS
// =============================================================================

// PaiementStore implements anomaly.PaiementStore.
type PaiementStore struct {
	s *Store
}

func (v *PaiementStore) CreateDraft(_ context.Context, p *anomaly.PaiementExtra) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	cp := *p
	v.s.paiements[p.ID] = &cp
	return nil
}

func (v *PaiementStore) Get(_ context.Context, id string) (*anomaly.PaiementExtra, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	p, ok := v.s.paiements[id]
	if !ok {
		return nil, &attendance.NotFoundError{Kind: "paiement_extra", ID: id}
	}
	cp := *p
	return &cp, nil
}

func (v *PaiementStore) List(_ context.Context, employeeID string, statut anomaly.PaiementStatus) ([]anomaly.PaiementExtra, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	var out []anomaly.PaiementExtra
	for _, p := range v.s.paiements {
		if employeeID != "" && p.EmployeeID != employeeID {
			continue
		}
		if statut != "" && p.Statut != statut {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v *PaiementStore) MarkPaid(_ context.Context, id string, taux decimal.Decimal) (*anomaly.PaiementExtra, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	p, ok := v.s.paiements[id]
	if !ok {
		return nil, &attendance.NotFoundError{Kind: "paiement_extra", ID: id}
	}
	if p.Statut != anomaly.PaiementAPayer {
		return nil, &attendance.ConflictError{Reason: "paiement deja regle", Current: string(p.Statut)}
	}
	if !taux.IsPositive() {
		return nil, &attendance.ValidationError{Field: "tauxHoraire", Message: "taux horaire positif requis"}
	}
	montant := p.Heures.Mul(taux).Round(2)
	now := time.Now()
	p.TauxHoraire = &taux
	p.Montant = &montant
	p.Statut = anomaly.PaiementPaye
	p.PayeAt = &now
	cp := *p
	return &cp, nil
}

// =============================================================================
// SCORE LEDGER
// =============================================================================

func (s *Store) Record(_ context.Context, impact anomaly.ScoreImpact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if impact.ID == "" {
		impact.ID = uuid.NewString()
	}
	s.scores = append(s.scores, impact)
	return nil
}

func (s *Store) TotalFor(_ context.Context, employeeID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, sc := range s.scores {
		if sc.EmployeeID == employeeID {
			total += sc.Points
		}
	}
	return total, nil
}

// ScoreEntries returns the raw ledger. Test helper.
func (s *Store) ScoreEntries() []anomaly.ScoreImpact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]anomaly.ScoreImpact(nil), s.scores...)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (s *Store) Notify(_ context.Context, employeeID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, Notification{
		ID:         uuid.NewString(),
		EmployeeID: employeeID,
		Message:    message,
		SentAt:     time.Now(),
	})
	return nil
}

// Notifications returns captured notifications. Test helper.
func (s *Store) Notifications() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Notification(nil), s.notifications...)
}

// =============================================================================
// EMPLOYEE DIRECTORY
// =============================================================================

// EmployeeStore implements kpi.Directory.
type EmployeeStore struct {
	s *Store
}

func (v *EmployeeStore) Employees(_ context.Context) ([]kpi.Employee, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	var out []kpi.Employee
	for _, e := range v.s.employees {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *EmployeeStore) Employee(_ context.Context, id string) (*kpi.Employee, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	e, ok := v.s.employees[id]
	if !ok {
		return nil, &attendance.NotFoundError{Kind: "employe", ID: id}
	}
	cp := *e
	return &cp, nil
}

func (v *EmployeeStore) Create(_ context.Context, e *kpi.Employee) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if _, exists := v.s.employees[e.ID]; exists {
		return &attendance.ConflictError{Reason: "employe deja existant", Current: e.ID}
	}
	cp := *e
	v.s.employees[e.ID] = &cp
	return nil
}
