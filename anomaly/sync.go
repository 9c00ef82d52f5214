/*
sync.go - Reconciliation-to-anomaly synchronization.

The reconciliation engine is stateless: it recomputes deviations for an
employee-day from punches and plan on every call. The Syncer projects
that recomputation onto the persisted anomaly table:

  - a deviation with no matching pending anomaly creates one;
  - a pending anomaly whose deviation is no longer reproduced (the plan
    or the punches changed since) is marked obsolete;
  - resolved anomalies are never touched, they are the audit trail.

Matching key within one employee-day: deviation type + segment index,
plus the observed interval for deviations not tied to a segment (two
unplanned intervals on one day are two distinct anomalies).
*/
package anomaly

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Yamine-coder/gestion-rh-sub005/attendance"
)

// Syncer persists classified deviations as anomalies.
type Syncer struct {
	Engine     *attendance.Engine
	Classifier *attendance.Classifier
	Anomalies  Store
	Log        logrus.FieldLogger
	Now        func() time.Time
}

func NewSyncer(engine *attendance.Engine, classifier *attendance.Classifier, anomalies Store, log logrus.FieldLogger) *Syncer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Syncer{
		Engine:     engine,
		Classifier: classifier,
		Anomalies:  anomalies,
		Log:        log,
		Now:        time.Now,
	}
}

// SyncResult summarizes one employee-day synchronization.
type SyncResult struct {
	EmployeeID string
	Date       attendance.Day
	Created    []Anomaly
	Obsoleted  []string
	Unchanged  int
	Report     *attendance.DayReport
}

// SyncDay reconciles one employee-day and aligns the anomaly table with
// the result. Safe to call repeatedly; a second run with unchanged data
// creates nothing.
func (s *Syncer) SyncDay(ctx context.Context, employeeID string, date attendance.Day) (*SyncResult, error) {
	report, err := s.Engine.Reconcile(ctx, employeeID, date)
	if err != nil {
		return nil, err
	}

	existing, err := s.Anomalies.ByEmployeeDay(ctx, employeeID, date)
	if err != nil {
		return nil, err
	}

	res := &SyncResult{EmployeeID: employeeID, Date: date, Report: report}
	now := s.Now()

	pending := make(map[anomalyKey]*Anomaly)
	for i := range existing {
		a := &existing[i]
		if a.Statut.Actionable() {
			pending[keyOf(a.Type, a.Details.SegmentIndex, a.Details.DebutReel, a.Details.FinReel)] = a
		}
	}
	reproduced := make(map[anomalyKey]bool)

	for _, d := range report.Deviations {
		c := s.Classifier.Classify(d, report.Balance.NetBalanceMinutes)
		if !c.Persist {
			continue
		}
		k := keyOf(d.Type, d.SegmentIndex, clockOf(date, d.ActualStart), clockOf(date, d.ActualEnd))
		reproduced[k] = true

		if _, ok := pending[k]; ok {
			res.Unchanged++
			continue
		}

		a := Anomaly{
			ID:          uuid.NewString(),
			EmployeeID:  employeeID,
			Date:        date,
			Type:        d.Type,
			Gravite:     c.Gravite,
			Statut:      StatusEnAttente,
			Description: d.Description,
			ShiftID:     shiftIDFor(report, d),
			Details: Details{
				EcartMinutes:          d.EcartMinutes,
				TempsPlanifieMinutes:  report.Balance.PlannedMinutes,
				TempsTravailleMinutes: report.Balance.WorkedMinutes,
				SoldeNetMinutes:       report.Balance.NetBalanceMinutes,
				SegmentIndex:          d.SegmentIndex,
				DebutReel:             clockOf(date, d.ActualStart),
				FinReel:               clockOf(date, d.ActualEnd),
				Resolvability:         c.Resolvability,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.Anomalies.Create(ctx, &a); err != nil {
			return nil, err
		}
		res.Created = append(res.Created, a)
	}

	// Pending anomalies whose deviation disappeared: the underlying data
	// changed, the anomaly no longer describes reality.
	for k, a := range pending {
		if reproduced[k] {
			continue
		}
		a.Statut = StatusObsolete
		a.UpdatedAt = now
		if err := s.Anomalies.UpdateCAS(ctx, a, []Status{StatusEnAttente, StatusAVerifier}); err != nil {
			// Lost a race with a concurrent resolution; leave it be.
			s.Log.WithError(err).WithField("anomalie", a.ID).Debug("obsolescence ignoree, anomalie traitee entre temps")
			continue
		}
		res.Obsoleted = append(res.Obsoleted, a.ID)
	}

	if len(res.Created) > 0 || len(res.Obsoleted) > 0 {
		s.Log.WithFields(logrus.Fields{
			"employe":   employeeID,
			"date":      date.String(),
			"creees":    len(res.Created),
			"obsoletes": len(res.Obsoleted),
		}).Info("anomalies synchronisees")
	}
	return res, nil
}

// SyncPeriod runs SyncDay over each day of the period. Day failures do
// not abort the remaining days; the first error is returned wrapped as a
// partial result alongside what did succeed.
func (s *Syncer) SyncPeriod(ctx context.Context, employeeID string, period attendance.Period) ([]SyncResult, error) {
	if !period.Valid() {
		return nil, attendance.ErrInvalidPeriod
	}
	var results []SyncResult
	var firstErr error
	_ = period.Each(func(day attendance.Day) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		r, err := s.SyncDay(ctx, employeeID, day)
		if err != nil {
			s.Log.WithError(err).WithFields(logrus.Fields{
				"employe": employeeID,
				"date":    day.String(),
			}).Warn("synchronisation du jour echouee")
			if firstErr == nil {
				firstErr = err
			}
			return nil
		}
		results = append(results, *r)
		return nil
	})
	if firstErr != nil {
		return results, fmt.Errorf("%w: %v", attendance.ErrPartialResult, firstErr)
	}
	return results, nil
}

// anomalyKey identifies one deviation within an employee-day. Deviations
// tied to a planned segment match on the segment alone so a moved punch
// updates the same anomaly; segment-less deviations carry their observed
// interval instead, keeping two unplanned sessions distinct.
type anomalyKey struct {
	t     attendance.DeviationType
	seg   int
	debut attendance.ClockTime
	fin   attendance.ClockTime
}

func keyOf(t attendance.DeviationType, seg int, debut, fin attendance.ClockTime) anomalyKey {
	if seg != 0 {
		return anomalyKey{t: t, seg: seg}
	}
	return anomalyKey{t: t, debut: debut, fin: fin}
}

func shiftIDFor(report *attendance.DayReport, d attendance.Deviation) string {
	if d.SegmentIndex == 0 {
		return ""
	}
	for _, sb := range report.Balance.Segments {
		if sb.Index == d.SegmentIndex {
			return sb.ShiftID
		}
	}
	return ""
}

func clockOf(date attendance.Day, t time.Time) attendance.ClockTime {
	if t.IsZero() {
		return 0
	}
	return attendance.ClockTime(attendance.MinutesBetween(date.Time(), t))
}
