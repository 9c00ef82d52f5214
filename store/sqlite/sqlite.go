/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements every persistence interface of the attendance, anomaly and
  kpi packages over one SQLite database. In production the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  attendance.PunchStore:        raw punch events
  attendance.ShiftPlanResolver: planned shifts per employee-day
  attendance.ShiftCorrector:    retroactive plan corrections
  anomaly.Store:                via Anomalies() view
  anomaly.PaiementStore:        via Paiements() view
  anomaly.ScoreLedger:          score entries
  anomaly.Notifier:             employee notifications outbox
  kpi.Directory:                via Directory() view

STATUT COMPARE-AND-SET:
  Anomaly transitions go through a single UPDATE guarded by
  "WHERE statut IN (...)". Zero rows affected means another actor moved
  the anomaly first; the caller gets a ConflictError and applies no side
  effects.

KEY TABLES:
  punches:          raw badge events, append-only
  shifts:           planned shifts, segments as JSON
  anomalies:        classified deviations + resolution state
  paiements_extras: off-books payment drafts and settlements
  score_entries:    penalty ledger (refusals)
  notifications:    employee notification outbox
  employees:        minimal directory for KPIs

WAL MODE:
  The database is opened with WAL so reads don't block behind the single
  writer.

USAGE:
  store, err := sqlite.New("./data/presence.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool with versioned migrations.

SEE ALSO:
  - attendance/stores.go, anomaly/store.go, kpi/directory.go: interfaces
  - store/memory: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/Yamine-coder/gestion-rh-sub005/anomaly"
	"github.com/Yamine-coder/gestion-rh-sub005/attendance"
	"github.com/Yamine-coder/gestion-rh-sub005/kpi"
)

// Store implements the storage interfaces over one SQLite database.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Anomalies() *AnomalyStore  { return &AnomalyStore{s} }
func (s *Store) Paiements() *PaiementStore { return &PaiementStore{s} }
func (s *Store) Directory() *EmployeeStore { return &EmployeeStore{s} }

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Raw badge events (append-only)
	CREATE TABLE IF NOT EXISTS punches (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		at TEXT NOT NULL,
		kind TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_punches_employee_at
		ON punches(employee_id, at);

	-- Planned shifts, segments as JSON
	CREATE TABLE IF NOT EXISTS shifts (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		date TEXT NOT NULL,
		kind TEXT NOT NULL,
		segments_json TEXT NOT NULL,
		motif TEXT,
		notes TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_shifts_employee_date
		ON shifts(employee_id, date);

	-- Classified deviations + resolution state
	CREATE TABLE IF NOT EXISTS anomalies (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		date TEXT NOT NULL,
		type TEXT NOT NULL,
		gravite TEXT NOT NULL,
		statut TEXT NOT NULL,
		description TEXT,
		details_json TEXT NOT NULL,
		shift_id TEXT,
		traite_par TEXT,
		traite_at TEXT,
		commentaire TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_anomalies_employee_date
		ON anomalies(employee_id, date);
	CREATE INDEX IF NOT EXISTS idx_anomalies_statut
		ON anomalies(statut);
	CREATE INDEX IF NOT EXISTS idx_anomalies_date
		ON anomalies(date);

	-- Off-books payment drafts and settlements
	CREATE TABLE IF NOT EXISTS paiements_extras (
		id TEXT PRIMARY KEY,
		anomalie_id TEXT,
		employee_id TEXT NOT NULL,
		shift_id TEXT,
		date TEXT NOT NULL,
		heures TEXT NOT NULL,
		taux_horaire TEXT,
		montant TEXT,
		source TEXT NOT NULL,
		statut TEXT NOT NULL,
		commentaire TEXT,
		cree_par TEXT,
		created_at TEXT NOT NULL,
		paye_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_paiements_employee
		ON paiements_extras(employee_id);
	CREATE INDEX IF NOT EXISTS idx_paiements_statut
		ON paiements_extras(statut);

	-- Penalty ledger (refusals)
	CREATE TABLE IF NOT EXISTS score_entries (
		id TEXT PRIMARY KEY,
		anomalie_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		points INTEGER NOT NULL,
		reason TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_score_employee
		ON score_entries(employee_id);

	-- Employee notification outbox
	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		message TEXT NOT NULL,
		sent_at TEXT NOT NULL
	);

	-- Minimal directory for KPIs
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		nom TEXT NOT NULL,
		prenom TEXT,
		email TEXT,
		categorie TEXT,
		heures_contrat_hebdo TEXT NOT NULL DEFAULT '0',
		embauche_le TEXT NOT NULL,
		sortie_le TEXT,
		actif BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// PUNCH STORE (attendance.PunchStore)
// =============================================================================

// SavePunch records a badge event.
func (s *Store) SavePunch(ctx context.Context, p attendance.Punch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO punches (id, employee_id, at, kind, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.EmployeeID, p.At.UTC().Format(time.RFC3339), p.Kind,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save punch: %w", err)
	}
	return nil
}

func (s *Store) Punches(ctx context.Context, employeeID string, from, to time.Time) ([]attendance.Punch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, employee_id, at, kind
		FROM punches
		WHERE employee_id = ? AND at >= ? AND at < ?
		ORDER BY at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, employeeID,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query punches: %w", err)
	}
	defer rows.Close()

	var punches []attendance.Punch
	for rows.Next() {
		var p attendance.Punch
		var at string
		if err := rows.Scan(&p.ID, &p.EmployeeID, &at, &p.Kind); err != nil {
			return nil, fmt.Errorf("failed to scan punch: %w", err)
		}
		p.At, _ = time.Parse(time.RFC3339, at)
		punches = append(punches, p)
	}
	return punches, rows.Err()
}

// =============================================================================
// SHIFT STORE (attendance.ShiftPlanResolver + ShiftCorrector)
// =============================================================================

// SaveShift inserts or replaces a planned shift.
func (s *Store) SaveShift(ctx context.Context, sh *attendance.Shift) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveShiftLocked(ctx, sh)
}

func (s *Store) saveShiftLocked(ctx context.Context, sh *attendance.Shift) error {
	if sh.ID == "" {
		sh.ID = uuid.NewString()
	}
	segments, err := json.Marshal(sh.Segments)
	if err != nil {
		return fmt.Errorf("failed to marshal segments: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		INSERT INTO shifts (id, employee_id, date, kind, segments_json, motif, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			segments_json = excluded.segments_json,
			motif = excluded.motif,
			notes = excluded.notes,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		sh.ID, sh.EmployeeID, sh.Date.String(), sh.Kind, string(segments),
		sh.Motif, sh.Notes, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save shift: %w", err)
	}
	return nil
}

func (s *Store) Shifts(ctx context.Context, employeeID string, date attendance.Day) ([]attendance.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, employee_id, date, kind, segments_json, motif, notes
		FROM shifts
		WHERE employee_id = ? AND date = ?
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, employeeID, date.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query shifts: %w", err)
	}
	defer rows.Close()

	var shifts []attendance.Shift
	for rows.Next() {
		sh, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, sh)
	}
	return shifts, rows.Err()
}

// GetShift retrieves one shift by ID.
func (s *Store) GetShift(ctx context.Context, id string) (*attendance.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getShiftLocked(ctx, id)
}

func (s *Store) getShiftLocked(ctx context.Context, id string) (*attendance.Shift, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, employee_id, date, kind, segments_json, motif, notes FROM shifts WHERE id = ?`, id)

	var sh attendance.Shift
	var date, segmentsJSON string
	var motif, notes sql.NullString
	err := row.Scan(&sh.ID, &sh.EmployeeID, &date, &sh.Kind, &segmentsJSON, &motif, &notes)
	if err == sql.ErrNoRows {
		return nil, &attendance.NotFoundError{Kind: "shift", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan shift: %w", err)
	}
	sh.Date, _ = attendance.ParseDay(date)
	sh.Motif = motif.String
	sh.Notes = notes.String
	if err := json.Unmarshal([]byte(segmentsJSON), &sh.Segments); err != nil {
		return nil, fmt.Errorf("corrupt segments for shift %s: %w", id, err)
	}
	return &sh, nil
}

func (s *Store) ApplyCorrection(ctx context.Context, shiftID string, c attendance.ShiftCorrection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, err := s.getShiftLocked(ctx, shiftID)
	if err != nil {
		return err
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
	if c.Raison != "" {
		if sh.Notes != "" {
			sh.Notes += "; "
		}
		sh.Notes += c.Raison
	}
	return s.saveShiftLocked(ctx, sh)
}

func (s *Store) AppendExtraSegment(ctx context.Context, employeeID string, date attendance.Day, seg attendance.PlannedSegment) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id FROM shifts WHERE employee_id = ? AND date = ? AND kind = ? ORDER BY id ASC LIMIT 1`,
		employeeID, date.String(), attendance.ShiftWork)

	var id string
	err := row.Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		sh := &attendance.Shift{
			EmployeeID: employeeID,
			Date:       date,
			Kind:       attendance.ShiftWork,
			Segments:   []attendance.PlannedSegment{seg},
		}
		if err := s.saveShiftLocked(ctx, sh); err != nil {
			return "", err
		}
		return sh.ID, nil
	case err != nil:
		return "", fmt.Errorf("failed to find shift: %w", err)
	}

	sh, err := s.getShiftLocked(ctx, id)
	if err != nil {
		return "", err
	}
	sh.Segments = append(sh.Segments, seg)
	if err := s.saveShiftLocked(ctx, sh); err != nil {
		return "", err
	}
	return sh.ID, nil
}

func scanShift(rows *sql.Rows) (attendance.Shift, error) {
	var sh attendance.Shift
	var date, segmentsJSON string
	var motif, notes sql.NullString
	if err := rows.Scan(&sh.ID, &sh.EmployeeID, &date, &sh.Kind, &segmentsJSON, &motif, &notes); err != nil {
		return sh, fmt.Errorf("failed to scan shift: %w", err)
	}
	sh.Date, _ = attendance.ParseDay(date)
	sh.Motif = motif.String
	sh.Notes = notes.String
	if err := json.Unmarshal([]byte(segmentsJSON), &sh.Segments); err != nil {
		return sh, fmt.Errorf("corrupt segments for shift %s: %w", sh.ID, err)
	}
	return sh, nil
}

// =============================================================================
// ANOMALY STORE (anomaly.Store)
// =============================================================================

// AnomalyStore implements anomaly.Store.
type AnomalyStore struct {
	s *Store
}

func (v *AnomalyStore) Create(ctx context.Context, a *anomaly.Anomaly) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	details, err := json.Marshal(a.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal details: %w", err)
	}

	query := `
		INSERT INTO anomalies
		(id, employee_id, date, type, gravite, statut, description, details_json,
		 shift_id, traite_par, traite_at, commentaire, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = v.s.db.ExecContext(ctx, query,
		a.ID, a.EmployeeID, a.Date.String(), a.Type, a.Gravite, a.Statut,
		a.Description, string(details), nullString(a.ShiftID),
		nullString(a.TraitePar), nullTime(a.TraiteAt), nullString(a.Commentaire),
		a.CreatedAt.UTC().Format(time.RFC3339), a.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &attendance.ConflictError{Reason: "anomalie deja existante", Current: a.ID}
		}
		return fmt.Errorf("failed to create anomaly: %w", err)
	}
	return nil
}

func (v *AnomalyStore) Get(ctx context.Context, id string) (*anomaly.Anomaly, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	query := anomalySelect + ` WHERE id = ?`
	rows, err := v.s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomaly: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, &attendance.NotFoundError{Kind: "anomalie", ID: id}
	}
	a, err := scanAnomaly(rows)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (v *AnomalyStore) List(ctx context.Context, f anomaly.Filter) ([]anomaly.Anomaly, int, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	where, args := filterClause(f)

	var total int
	if err := v.s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM anomalies"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count anomalies: %w", err)
	}

	query := anomalySelect + where + " ORDER BY created_at DESC, id ASC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	} else if f.Offset > 0 {
		query += fmt.Sprintf(" LIMIT -1 OFFSET %d", f.Offset)
	}

	rows, err := v.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query anomalies: %w", err)
	}
	defer rows.Close()

	var anomalies []anomaly.Anomaly
	for rows.Next() {
		a, err := scanAnomaly(rows)
		if err != nil {
			return nil, 0, err
		}
		anomalies = append(anomalies, a)
	}
	return anomalies, total, rows.Err()
}

// UpdateCAS writes the anomaly only while its stored statut is still one
// of the expected values. Zero rows affected means a concurrent actor
// won; the caller gets ConflictError and must not apply side effects.
func (v *AnomalyStore) UpdateCAS(ctx context.Context, a *anomaly.Anomaly, expect []anomaly.Status) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	if len(expect) == 0 {
		return &attendance.ValidationError{Field: "expect", Message: "au moins un statut attendu requis"}
	}
	details, err := json.Marshal(a.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal details: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(expect)), ",")
	query := fmt.Sprintf(`
		UPDATE anomalies SET
			gravite = ?, statut = ?, description = ?, details_json = ?,
			shift_id = ?, traite_par = ?, traite_at = ?, commentaire = ?, updated_at = ?
		WHERE id = ? AND statut IN (%s)
	`, placeholders)

	args := []any{
		a.Gravite, a.Statut, a.Description, string(details),
		nullString(a.ShiftID), nullString(a.TraitePar), nullTime(a.TraiteAt),
		nullString(a.Commentaire), a.UpdatedAt.UTC().Format(time.RFC3339),
		a.ID,
	}
	for _, st := range expect {
		args = append(args, st)
	}

	res, err := v.s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update anomaly: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var current string
		err := v.s.db.QueryRowContext(ctx,
			"SELECT statut FROM anomalies WHERE id = ?", a.ID).Scan(&current)
		if err == sql.ErrNoRows {
			return &attendance.NotFoundError{Kind: "anomalie", ID: a.ID}
		}
		if err != nil {
			return err
		}
		return &attendance.ConflictError{Reason: "statut modifie entre temps", Current: current}
	}
	return nil
}

func (v *AnomalyStore) ByEmployeeDay(ctx context.Context, employeeID string, date attendance.Day) ([]anomaly.Anomaly, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	query := anomalySelect + ` WHERE employee_id = ? AND date = ? ORDER BY id ASC`
	rows, err := v.s.db.QueryContext(ctx, query, employeeID, date.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query anomalies: %w", err)
	}
	defer rows.Close()

	var anomalies []anomaly.Anomaly
	for rows.Next() {
		a, err := scanAnomaly(rows)
		if err != nil {
			return nil, err
		}
		anomalies = append(anomalies, a)
	}
	return anomalies, rows.Err()
}

func (v *AnomalyStore) CountBy(ctx context.Context, f anomaly.Filter, column string) (map[string]int, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	switch column {
	case "statut", "gravite", "type":
	default:
		return nil, &attendance.ValidationError{Field: "column", Message: fmt.Sprintf("colonne inconnue %q", column)}
	}

	where, args := filterClause(f)
	query := fmt.Sprintf("SELECT %s, COUNT(*) FROM anomalies%s GROUP BY %s", column, where, column)

	rows, err := v.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count anomalies: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var value string
		var n int
		if err := rows.Scan(&value, &n); err != nil {
			return nil, err
		}
		counts[value] = n
	}
	return counts, rows.Err()
}

const anomalySelect = `
	SELECT id, employee_id, date, type, gravite, statut, description, details_json,
	       shift_id, traite_par, traite_at, commentaire, created_at, updated_at
	FROM anomalies`

func scanAnomaly(rows *sql.Rows) (anomaly.Anomaly, error) {
	var a anomaly.Anomaly
	var date, detailsJSON, createdAt, updatedAt string
	var description, shiftID, traitePar, traiteAt, commentaire sql.NullString

	err := rows.Scan(
		&a.ID, &a.EmployeeID, &date, &a.Type, &a.Gravite, &a.Statut,
		&description, &detailsJSON, &shiftID, &traitePar, &traiteAt,
		&commentaire, &createdAt, &updatedAt,
	)
	if err != nil {
		return a, fmt.Errorf("failed to scan anomaly: %w", err)
	}

	a.Date, _ = attendance.ParseDay(date)
	a.Description = description.String
	a.ShiftID = shiftID.String
	a.TraitePar = traitePar.String
	a.Commentaire = commentaire.String
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if traiteAt.Valid {
		t, _ := time.Parse(time.RFC3339, traiteAt.String)
		a.TraiteAt = &t
	}
	if err := json.Unmarshal([]byte(detailsJSON), &a.Details); err != nil {
		return a, fmt.Errorf("corrupt details for anomaly %s: %w", a.ID, err)
	}
	return a, nil
}

func filterClause(f anomaly.Filter) (string, []any) {
	var conds []string
	var args []any
	if f.EmployeeID != "" {
		conds = append(conds, "employee_id = ?")
		args = append(args, f.EmployeeID)
	}
	if f.Statut != "" {
		conds = append(conds, "statut = ?")
		args = append(args, f.Statut)
	}
	if f.Gravite != "" {
		conds = append(conds, "gravite = ?")
		args = append(args, f.Gravite)
	}
	if f.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, f.Type)
	}
	if f.From != nil {
		conds = append(conds, "date >= ?")
		args = append(args, f.From.String())
	}
	if f.To != nil {
		conds = append(conds, "date <= ?")
		args = append(args, f.To.String())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// =============================================================================
// PAIEMENT STORE (anomaly.PaiementStore)
// =============================================================================

// PaiementStore implements anomaly.PaiementStore.
type PaiementStore struct {
	s *Store
}

func (v *PaiementStore) CreateDraft(ctx context.Context, p *anomaly.PaiementExtra) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	query := `
		INSERT INTO paiements_extras
		(id, anomalie_id, employee_id, shift_id, date, heures, taux_horaire, montant,
		 source, statut, commentaire, cree_par, created_at, paye_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := v.s.db.ExecContext(ctx, query,
		p.ID, nullString(p.AnomalieID), p.EmployeeID, nullString(p.ShiftID),
		p.Date.String(), p.Heures.String(), nullDecimal(p.TauxHoraire),
		nullDecimal(p.Montant), p.Source, p.Statut, nullString(p.Commentaire),
		nullString(p.CreePar), p.CreatedAt.UTC().Format(time.RFC3339), nullTime(p.PayeAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create paiement extra: %w", err)
	}
	return nil
}

func (v *PaiementStore) Get(ctx context.Context, id string) (*anomaly.PaiementExtra, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	rows, err := v.s.db.QueryContext(ctx, paiementSelect+` WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query paiement: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, &attendance.NotFoundError{Kind: "paiement_extra", ID: id}
	}
	p, err := scanPaiement(rows)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (v *PaiementStore) List(ctx context.Context, employeeID string, statut anomaly.PaiementStatus) ([]anomaly.PaiementExtra, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	var conds []string
	var args []any
	if employeeID != "" {
		conds = append(conds, "employee_id = ?")
		args = append(args, employeeID)
	}
	if statut != "" {
		conds = append(conds, "statut = ?")
		args = append(args, statut)
	}
	query := paiementSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"

	rows, err := v.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query paiements: %w", err)
	}
	defer rows.Close()

	var paiements []anomaly.PaiementExtra
	for rows.Next() {
		p, err := scanPaiement(rows)
		if err != nil {
			return nil, err
		}
		paiements = append(paiements, p)
	}
	return paiements, rows.Err()
}

// MarkPaid settles a draft: the hourly rate is fixed here and the amount
// computed from it. Guarded on statut so a draft cannot be paid twice.
func (v *PaiementStore) MarkPaid(ctx context.Context, id string, taux decimal.Decimal) (*anomaly.PaiementExtra, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	if !taux.IsPositive() {
		return nil, &attendance.ValidationError{Field: "tauxHoraire", Message: "taux horaire positif requis"}
	}

	rows, err := v.s.db.QueryContext(ctx, paiementSelect+` WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query paiement: %w", err)
	}
	p, scanErr := func() (anomaly.PaiementExtra, error) {
		defer rows.Close()
		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return anomaly.PaiementExtra{}, err
			}
			return anomaly.PaiementExtra{}, &attendance.NotFoundError{Kind: "paiement_extra", ID: id}
		}
		return scanPaiement(rows)
	}()
	if scanErr != nil {
		return nil, scanErr
	}

	montant := p.Heures.Mul(taux).Round(2)
	now := time.Now().UTC()

	res, err := v.s.db.ExecContext(ctx, `
		UPDATE paiements_extras
		SET taux_horaire = ?, montant = ?, statut = ?, paye_at = ?
		WHERE id = ? AND statut = ?`,
		taux.String(), montant.String(), anomaly.PaiementPaye,
		now.Format(time.RFC3339), id, anomaly.PaiementAPayer,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark paiement paid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, &attendance.ConflictError{Reason: "paiement deja regle", Current: string(p.Statut)}
	}

	p.TauxHoraire = &taux
	p.Montant = &montant
	p.Statut = anomaly.PaiementPaye
	p.PayeAt = &now
	return &p, nil
}

const paiementSelect = `
	SELECT id, anomalie_id, employee_id, shift_id, date, heures, taux_horaire,
	       montant, source, statut, commentaire, cree_par, created_at, paye_at
	FROM paiements_extras`

func scanPaiement(rows *sql.Rows) (anomaly.PaiementExtra, error) {
	var p anomaly.PaiementExtra
	var date, heures, createdAt string
	var anomalieID, shiftID, taux, montant, commentaire, creePar, payeAt sql.NullString

	err := rows.Scan(
		&p.ID, &anomalieID, &p.EmployeeID, &shiftID, &date, &heures,
		&taux, &montant, &p.Source, &p.Statut, &commentaire, &creePar,
		&createdAt, &payeAt,
	)
	if err != nil {
		return p, fmt.Errorf("failed to scan paiement: %w", err)
	}

	p.AnomalieID = anomalieID.String
	p.ShiftID = shiftID.String
	p.Commentaire = commentaire.String
	p.CreePar = creePar.String
	p.Date, _ = attendance.ParseDay(date)
	p.Heures, _ = decimal.NewFromString(heures)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if taux.Valid {
		d, _ := decimal.NewFromString(taux.String)
		p.TauxHoraire = &d
	}
	if montant.Valid {
		d, _ := decimal.NewFromString(montant.String)
		p.Montant = &d
	}
	if payeAt.Valid {
		t, _ := time.Parse(time.RFC3339, payeAt.String)
		p.PayeAt = &t
	}
	return p, nil
}

// =============================================================================
// SCORE LEDGER (anomaly.ScoreLedger)
// =============================================================================

func (s *Store) Record(ctx context.Context, impact anomaly.ScoreImpact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if impact.ID == "" {
		impact.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO score_entries (id, anomalie_id, employee_id, points, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		impact.ID, impact.AnomalieID, impact.EmployeeID, impact.Points,
		impact.Reason, impact.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to record score entry: %w", err)
	}
	return nil
}

func (s *Store) TotalFor(ctx context.Context, employeeID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT SUM(points) FROM score_entries WHERE employee_id = ?",
		employeeID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum score entries: %w", err)
	}
	return int(total.Int64), nil
}

// =============================================================================
// NOTIFICATIONS (anomaly.Notifier)
// =============================================================================

// Notify appends to the notification outbox. Delivery is someone else's
// job; the resolution workflow only needs the record.
func (s *Store) Notify(ctx context.Context, employeeID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, employee_id, message, sent_at) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), employeeID, message, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}

// =============================================================================
// EMPLOYEE DIRECTORY (kpi.Directory)
// =============================================================================

// EmployeeStore implements kpi.Directory.
type EmployeeStore struct {
	s *Store
}

func (v *EmployeeStore) Create(ctx context.Context, e *kpi.Employee) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	var sortie *string
	if e.SortieLe != nil {
		s := e.SortieLe.String()
		sortie = &s
	}
	_, err := v.s.db.ExecContext(ctx, `
		INSERT INTO employees (id, nom, prenom, email, categorie, heures_contrat_hebdo,
			embauche_le, sortie_le, actif, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Nom, e.Prenom, e.Email, e.Categorie,
		e.HeuresContratHebdo.String(), e.EmbaucheLe.String(), sortie, e.Actif,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &attendance.ConflictError{Reason: "employe deja existant", Current: e.ID}
		}
		return fmt.Errorf("failed to create employee: %w", err)
	}
	return nil
}

func (v *EmployeeStore) Employee(ctx context.Context, id string) (*kpi.Employee, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	rows, err := v.s.db.QueryContext(ctx, employeeSelect+` WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query employee: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, &attendance.NotFoundError{Kind: "employe", ID: id}
	}
	e, err := scanEmployee(rows)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (v *EmployeeStore) Employees(ctx context.Context) ([]kpi.Employee, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	rows, err := v.s.db.QueryContext(ctx, employeeSelect+` ORDER BY nom, prenom`)
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var employees []kpi.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

const employeeSelect = `
	SELECT id, nom, prenom, email, categorie, heures_contrat_hebdo,
	       embauche_le, sortie_le, actif
	FROM employees`

func scanEmployee(rows *sql.Rows) (kpi.Employee, error) {
	var e kpi.Employee
	var heures, embauche string
	var prenom, email, categorie, sortie sql.NullString

	err := rows.Scan(&e.ID, &e.Nom, &prenom, &email, &categorie,
		&heures, &embauche, &sortie, &e.Actif)
	if err != nil {
		return e, fmt.Errorf("failed to scan employee: %w", err)
	}

	e.Prenom = prenom.String
	e.Email = email.String
	e.Categorie = categorie.String
	e.HeuresContratHebdo, _ = decimal.NewFromString(heures)
	e.EmbaucheLe, _ = attendance.ParseDay(embauche)
	if sortie.Valid {
		d, _ := attendance.ParseDay(sortie.String)
		e.SortieLe = &d
	}
	return e, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"punches", "shifts", "anomalies", "paiements_extras",
		"score_entries", "notifications", "employees"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
