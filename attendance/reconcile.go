/*
reconcile.go - The reconciliation engine: plan vs punches for one day.

PURPOSE:
  Combines PairPunches output with the planned segments and produces a
  DailyBalance plus zero or more typed Deviations. Pure and read-only:
  persistence of the resulting anomalies is the anomaly package's job.

MATCHING:
  Worked intervals are assigned to planned segments greedily, best fit
  first, scored by |start gap| + |end gap|. An interval is eligible for a
  segment when it overlaps it, or when both gaps stay within the orphan
  match window (covers an arrival after the segment already ended).

DEVIATION RULES (tolerance = 5 min unless configured otherwise):
  - start later than planned+tolerance            -> retard
  - start earlier than planned-earlyMargin        -> hors_plage (in)
  - end earlier than planned-tolerance            -> depart_anticipe
  - end later than planned+tolerance              -> heures_sup
  - segment with no matching interval             -> absence_totale
    (or pointage_manquant when a lone punch sits within the match window)
  - interval matching no segment, day has a plan  -> hors_plage (out)
  - interval on a day with no plan at all         -> presence_non_prevue
  - punches on a planned absence day              -> absence_planifiee_avec_pointage

ORDERING:
  Within one employee-day punches are processed in timestamp order; across
  employees reconciliation is order-independent and safe to parallelize.
*/
package attendance

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// THRESHOLDS - All tunable, defaults from the historical rules
// =============================================================================

type Thresholds struct {
	// ToleranceMinutes is the dead zone around planned times; deviations
	// inside it are not reported at all.
	ToleranceMinutes int

	// RetardCritiqueMinutes: lateness at or above this is critique.
	RetardCritiqueMinutes int

	// DepartCritiqueMinutes: early departure at or above this is critique.
	DepartCritiqueMinutes int

	// EarlyArrivalHorsPlageMinutes: clocking in this early is hors_plage.
	EarlyArrivalHorsPlageMinutes int

	// OvertimeAutoValidateMinutes: overtime up to this is auto-validated
	// (info); beyond it requires managerial validation.
	OvertimeAutoValidateMinutes int

	// OrphanMatchWindowMinutes bounds how far a lone punch may sit from a
	// segment and still count as a partial (missing) punch for it.
	OrphanMatchWindowMinutes int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		ToleranceMinutes:             5,
		RetardCritiqueMinutes:        30,
		DepartCritiqueMinutes:        30,
		EarlyArrivalHorsPlageMinutes: 30,
		OvertimeAutoValidateMinutes:  30,
		OrphanMatchWindowMinutes:     120,
	}
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine reconciles one employee-day. Safe for concurrent use: it holds no
// mutable state beyond its configuration.
type Engine struct {
	Punches    PunchStore
	Plans      ShiftPlanResolver
	Thresholds Thresholds
	Now        func() time.Time // injected clock, defaults to time.Now
}

func NewEngine(punches PunchStore, plans ShiftPlanResolver) *Engine {
	return &Engine{
		Punches:    punches,
		Plans:      plans,
		Thresholds: DefaultThresholds(),
		Now:        time.Now,
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Reconcile computes the DayReport for one employee-day.
func (e *Engine) Reconcile(ctx context.Context, employeeID string, date Day) (*DayReport, error) {
	// Day-aligned window widened on both sides to tolerate timezone skew
	// and night sessions spilling past midnight.
	from := date.Time().Add(-5 * time.Hour)
	to := date.Time().Add(30 * time.Hour)

	punches, err := e.Punches.Punches(ctx, employeeID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load punches: %w", err)
	}
	shifts, err := e.Plans.Shifts(ctx, employeeID, date)
	if err != nil {
		return nil, fmt.Errorf("load shifts: %w", err)
	}

	paired := PairPunches(punches, e.now())
	intervals := keepDay(paired.Intervals, date)
	orphans := keepDayPunches(paired.Orphans, date)

	report := &DayReport{Warnings: paired.Warnings}
	report.Balance = DailyBalance{EmployeeID: employeeID, Date: date}

	// Planned absence day: any punch is a conflict, none is conformity.
	if abs := findAbsence(shifts); abs != nil {
		if len(intervals) > 0 || len(orphans) > 0 {
			report.Balance.WorkedMinutes = sumMinutes(intervals)
			report.Balance.NetBalanceMinutes = report.Balance.WorkedMinutes
			report.Deviations = append(report.Deviations, Deviation{
				Type:        DeviationAbsenceAvecPointage,
				EmployeeID:  employeeID,
				Date:        date,
				Description: fmt.Sprintf("pointage inattendu (absence prevue: %s)", abs.Motif),
			})
		}
		return report, nil
	}

	segments := collectSegments(shifts)

	assigned := e.assign(date, segments, intervals)

	e.deviateSegments(report, employeeID, date, segments, intervals, orphans, assigned)
	e.deviateUnmatched(report, employeeID, date, segments, intervals, assigned)
	e.deviateOrphans(report, employeeID, date, segments, orphans)

	e.fillBalance(report, date, segments, intervals, assigned)
	return report, nil
}

// segmentRef keeps the owning shift alongside the segment itself.
type segmentRef struct {
	Shift   *Shift
	Index   int // 1-based within the day
	Segment PlannedSegment
}

func collectSegments(shifts []Shift) []segmentRef {
	var refs []segmentRef
	idx := 0
	for i := range shifts {
		if shifts[i].Kind != ShiftWork {
			continue
		}
		for _, seg := range shifts[i].Segments {
			idx++
			refs = append(refs, segmentRef{Shift: &shifts[i], Index: idx, Segment: seg})
		}
	}
	return refs
}

func findAbsence(shifts []Shift) *Shift {
	for i := range shifts {
		if shifts[i].Kind == ShiftAbsence || shifts[i].Kind == ShiftLeave {
			return &shifts[i]
		}
	}
	return nil
}

// assign maps segment position -> interval position, greedy best fit.
func (e *Engine) assign(date Day, segments []segmentRef, intervals []WorkedInterval) map[int]int {
	window := e.Thresholds.OrphanMatchWindowMinutes
	assigned := make(map[int]int)
	used := make(map[int]bool)

	for si, ref := range segments {
		n := ref.Segment.Normalized()
		segStart := date.At(n.Start)
		segEnd := date.At(n.End)

		best := -1
		bestScore := 1 << 30
		for ii, iv := range intervals {
			if used[ii] {
				continue
			}
			startGap := abs(MinutesBetween(segStart, iv.Start))
			endGap := abs(MinutesBetween(segEnd, iv.End))
			eligible := iv.OverlapMinutes(date, ref.Segment) > 0 ||
				(startGap <= window && endGap <= window)
			if !eligible {
				continue
			}
			if score := startGap + endGap; score < bestScore {
				bestScore = score
				best = ii
			}
		}
		if best >= 0 {
			assigned[si] = best
			used[best] = true
		}
	}
	return assigned
}

// deviateSegments produces the retard/depart/heures_sup/hors_plage family
// for segments that have a matching interval.
func (e *Engine) deviateSegments(report *DayReport, employeeID string, date Day, segments []segmentRef, intervals []WorkedInterval, orphans []Punch, assigned map[int]int) {
	t := e.Thresholds
	for si, ref := range segments {
		if ref.Segment.IsExtra {
			continue // off-books, never generates deviations
		}
		ii, ok := assigned[si]
		if !ok {
			continue // handled by deviateUnmatched
		}
		iv := intervals[ii]
		n := ref.Segment.Normalized()
		segStart := date.At(n.Start)
		segEnd := date.At(n.End)

		startDelta := MinutesBetween(segStart, iv.Start) // >0 late
		endDelta := MinutesBetween(segEnd, iv.End)       // >0 overtime

		base := Deviation{
			EmployeeID:   employeeID,
			Date:         date,
			SegmentIndex: ref.Index,
			PlannedStart: ref.Segment.Start,
			PlannedEnd:   ref.Segment.End,
			ActualStart:  iv.Start,
			ActualEnd:    iv.End,
		}

		switch {
		case startDelta > t.ToleranceMinutes:
			d := base
			d.Type = DeviationRetard
			d.EcartMinutes = startDelta
			d.Description = fmt.Sprintf("retard: arrivee %s, prevu %s (+%d min)",
				ClockOf(iv.Start), ref.Segment.Start, startDelta)
			report.Deviations = append(report.Deviations, d)
		case startDelta < -t.EarlyArrivalHorsPlageMinutes:
			d := base
			d.Type = DeviationHorsPlage
			d.EcartMinutes = startDelta
			d.Description = fmt.Sprintf("hors plage: arrivee %s, %d min avant %s",
				ClockOf(iv.Start), -startDelta, ref.Segment.Start)
			report.Deviations = append(report.Deviations, d)
		}

		switch {
		case endDelta < -t.ToleranceMinutes:
			d := base
			d.Type = DeviationDepartAnticipe
			d.EcartMinutes = endDelta
			d.Description = fmt.Sprintf("depart anticipe: sortie %s, prevu %s (%d min)",
				ClockOf(iv.End), ref.Segment.End, endDelta)
			report.Deviations = append(report.Deviations, d)
		case endDelta > t.ToleranceMinutes:
			d := base
			d.Type = DeviationHeuresSup
			d.EcartMinutes = endDelta
			d.Description = fmt.Sprintf("heures sup: sortie %s, prevu %s (+%d min)",
				ClockOf(iv.End), ref.Segment.End, endDelta)
			report.Deviations = append(report.Deviations, d)
		}
	}
}

// deviateUnmatched covers segments nobody worked and intervals nobody
// planned.
func (e *Engine) deviateUnmatched(report *DayReport, employeeID string, date Day, segments []segmentRef, intervals []WorkedInterval, assigned map[int]int) {
	hasPlan := false
	for _, ref := range segments {
		if !ref.Segment.IsExtra {
			hasPlan = true
			break
		}
	}

	for si, ref := range segments {
		if ref.Segment.IsExtra {
			continue
		}
		if _, ok := assigned[si]; ok {
			continue
		}
		report.Deviations = append(report.Deviations, Deviation{
			Type:         DeviationAbsenceTotale,
			EmployeeID:   employeeID,
			Date:         date,
			SegmentIndex: ref.Index,
			PlannedStart: ref.Segment.Start,
			PlannedEnd:   ref.Segment.End,
			EcartMinutes: -ref.Segment.DurationMinutes(),
			Description: fmt.Sprintf("absence totale: aucun pointage sur le creneau %s-%s",
				ref.Segment.Start, ref.Segment.End),
		})
	}

	usedIvs := make(map[int]bool)
	for _, ii := range assigned {
		usedIvs[ii] = true
	}
	for ii, iv := range intervals {
		if usedIvs[ii] {
			continue
		}
		d := Deviation{
			EmployeeID:   employeeID,
			Date:         date,
			EcartMinutes: iv.Minutes(),
			ActualStart:  iv.Start,
			ActualEnd:    iv.End,
		}
		if hasPlan {
			d.Type = DeviationHorsPlage
			d.Description = fmt.Sprintf("pointage hors plage: %s-%s hors de tout creneau prevu",
				ClockOf(iv.Start), ClockOf(iv.End))
		} else {
			d.Type = DeviationPresenceNonPrevue
			d.Description = fmt.Sprintf("presence non prevue: pointage %s-%s sans planning",
				ClockOf(iv.Start), ClockOf(iv.End))
		}
		report.Deviations = append(report.Deviations, d)
	}
}

// deviateOrphans reports EXIT punches that could not be paired. When one
// sits close enough to an unworked segment it downgrades the segment's
// reading to "missing punch" semantics.
func (e *Engine) deviateOrphans(report *DayReport, employeeID string, date Day, segments []segmentRef, orphans []Punch) {
	window := e.Thresholds.OrphanMatchWindowMinutes
	for _, p := range orphans {
		d := Deviation{
			Type:        DeviationPointageManquant,
			EmployeeID:  employeeID,
			Date:        date,
			ActualEnd:   p.At,
			Description: fmt.Sprintf("pointage manquant: sortie %s sans entree", ClockOf(p.At)),
		}
		// Attach to the nearest segment end within the window, if any.
		for _, ref := range segments {
			if ref.Segment.IsExtra {
				continue
			}
			n := ref.Segment.Normalized()
			if abs(MinutesBetween(date.At(n.End), p.At)) <= window {
				d.SegmentIndex = ref.Index
				d.PlannedStart = ref.Segment.Start
				d.PlannedEnd = ref.Segment.End
				break
			}
		}
		report.Deviations = append(report.Deviations, d)
	}
}

func (e *Engine) fillBalance(report *DayReport, date Day, segments []segmentRef, intervals []WorkedInterval, assigned map[int]int) {
	b := &report.Balance
	b.WorkedMinutes = sumMinutes(intervals)
	for si, ref := range segments {
		if ref.Segment.IsExtra {
			continue
		}
		b.PlannedMinutes += ref.Segment.DurationMinutes()
		sb := SegmentBalance{
			ShiftID:        ref.Shift.ID,
			Index:          ref.Index,
			PlannedStart:   ref.Segment.Start,
			PlannedEnd:     ref.Segment.End,
			PlannedMinutes: ref.Segment.DurationMinutes(),
		}
		if ii, ok := assigned[si]; ok {
			iv := intervals[ii]
			start, end := iv.Start, iv.End
			sb.ActualStart = &start
			sb.ActualEnd = &end
			sb.WorkedMinutes = iv.Minutes()
		}
		b.Segments = append(b.Segments, sb)
	}
	b.NetBalanceMinutes = b.WorkedMinutes - b.PlannedMinutes
}

// keepDay retains intervals belonging to the business day: starting at or
// after 05:00 that day and before 05:00 the next.
func keepDay(intervals []WorkedInterval, date Day) []WorkedInterval {
	cutStart := date.Time().Add(5 * time.Hour)
	cutEnd := date.AddDays(1).Time().Add(5 * time.Hour)
	var out []WorkedInterval
	for _, iv := range intervals {
		if !iv.Start.Before(cutStart) && iv.Start.Before(cutEnd) {
			out = append(out, iv)
		}
	}
	return out
}

func keepDayPunches(punches []Punch, date Day) []Punch {
	cutStart := date.Time().Add(5 * time.Hour)
	cutEnd := date.AddDays(1).Time().Add(5 * time.Hour)
	var out []Punch
	for _, p := range punches {
		if !p.At.Before(cutStart) && p.At.Before(cutEnd) {
			out = append(out, p)
		}
	}
	return out
}

func sumMinutes(intervals []WorkedInterval) int {
	total := 0
	for _, iv := range intervals {
		total += iv.Minutes()
	}
	return total
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
