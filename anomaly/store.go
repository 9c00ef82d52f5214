/*
store.go - Persistence interfaces for the anomaly workflow.

CONCURRENCY CONTRACT:
  UpdateCAS is a per-anomaly compare-and-set on statut: the write succeeds
  only while the stored statut is still one of the expected values,
  otherwise ErrConflict. This is what keeps two concurrent admin actions
  from double-applying payroll/score side effects.

IMPLEMENTATIONS:
  - store/sqlite: production
  - store/memory: tests/dev
*/
package anomaly

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Yamine-coder/gestion-rh-sub005/attendance"
)

// Filter narrows List queries. Zero values mean "no constraint".
type Filter struct {
	EmployeeID string
	Statut     Status
	Gravite    attendance.Severity
	Type       attendance.DeviationType
	From       *attendance.Day
	To         *attendance.Day
	Limit      int
	Offset     int
}

// Store persists anomalies.
type Store interface {
	Create(ctx context.Context, a *Anomaly) error
	Get(ctx context.Context, id string) (*Anomaly, error)

	// List returns a page plus the total match count.
	List(ctx context.Context, f Filter) ([]Anomaly, int, error)

	// UpdateCAS writes the anomaly only while its stored statut is one of
	// expect; otherwise it returns an error wrapping attendance.ErrConflict.
	UpdateCAS(ctx context.Context, a *Anomaly, expect []Status) error

	// ByEmployeeDay returns every anomaly for one employee-day, any statut.
	ByEmployeeDay(ctx context.Context, employeeID string, date attendance.Day) ([]Anomaly, error)

	// CountBy aggregates matches of f grouped by the given column
	// ("statut", "gravite" or "type").
	CountBy(ctx context.Context, f Filter, column string) (map[string]int, error)
}

// PaiementStore persists extra-payment drafts.
type PaiementStore interface {
	CreateDraft(ctx context.Context, p *PaiementExtra) error
	Get(ctx context.Context, id string) (*PaiementExtra, error)
	List(ctx context.Context, employeeID string, statut PaiementStatus) ([]PaiementExtra, error)

	// MarkPaid sets the rate, computes the amount and flips the statut.
	MarkPaid(ctx context.Context, id string, taux decimal.Decimal) (*PaiementExtra, error)
}

// ScoreLedger records signed score entries per employee.
type ScoreLedger interface {
	Record(ctx context.Context, impact ScoreImpact) error
	TotalFor(ctx context.Context, employeeID string) (int, error)
}

// Notifier delivers a message to an employee. Failures are non-blocking
// for the resolution itself.
type Notifier interface {
	Notify(ctx context.Context, employeeID, message string) error
}
