/*
pairing.go - Punch pairing: raw clock events -> worked intervals.

ALGORITHM:
  Stable-sort punches by timestamp, drop immediate same-kind duplicates
  (anti-double-badge window), then scan: each ENTRY pairs with the LAST
  EXIT seen before the next ENTRY. An ENTRY with no exit yields an open
  interval ending at the evaluation instant, clamped at the next ENTRY
  so output intervals never overlap. An EXIT with no preceding ENTRY is
  an orphan, reported as a warning rather than silently dropped.

  Pairing is a pure function of (punches, now). No side effects.

EDGE CASES:
  - no punches -> zero intervals, not an error
  - duplicate timestamps tolerated via stable sort
  - repeated EXITs inside one session: the last one wins (the employee
    re-badged on the way out)
*/
package attendance

import (
	"fmt"
	"sort"
	"time"
)

// duplicateWindow collapses same-kind punches closer than this; double
// badge taps at the clock are common.
const duplicateWindow = 2 * time.Minute

// PairResult is the output of PairPunches.
type PairResult struct {
	Intervals []WorkedInterval
	Orphans   []Punch // EXIT punches with no preceding ENTRY
	Warnings  []IntegrityWarning
}

// WorkedMinutes sums all interval durations.
func (r PairResult) WorkedMinutes() int {
	total := 0
	for _, iv := range r.Intervals {
		total += iv.Minutes()
	}
	return total
}

// PairPunches turns an unordered punch stream into ordered, non-overlapping
// worked intervals. now terminates any still-open session.
func PairPunches(punches []Punch, now time.Time) PairResult {
	var res PairResult
	if len(punches) == 0 {
		return res
	}

	ordered := make([]Punch, len(punches))
	copy(ordered, punches)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].At.Before(ordered[j].At)
	})

	cleaned := dedupe(ordered)

	i := 0
	for i < len(cleaned) {
		cur := cleaned[i]
		if cur.Kind == PunchExit {
			res.Orphans = append(res.Orphans, cur)
			res.Warnings = append(res.Warnings, IntegrityWarning{
				Code:    WarnOrphanExit,
				Message: fmt.Sprintf("sortie sans entree a %s", cur.At.Format("15:04")),
			})
			i++
			continue
		}

		// Find the boundary of this session: the next ENTRY.
		nextEntry := len(cleaned)
		for k := i + 1; k < len(cleaned); k++ {
			if cleaned[k].Kind == PunchEntry {
				nextEntry = k
				break
			}
		}

		// Last EXIT before the boundary closes the session.
		var exit *Punch
		for k := i + 1; k < nextEntry; k++ {
			if cleaned[k].Kind == PunchExit {
				exit = &cleaned[k]
			}
		}

		if exit != nil {
			if exit.At.After(cur.At) {
				res.Intervals = append(res.Intervals, WorkedInterval{Start: cur.At, End: exit.At})
			}
		} else {
			// Unterminated session: close it at now, but never past the next
			// ENTRY so intervals stay non-overlapping and ordered.
			end := now
			if nextEntry < len(cleaned) && cleaned[nextEntry].At.Before(end) {
				end = cleaned[nextEntry].At
			}
			if end.After(cur.At) {
				res.Intervals = append(res.Intervals, WorkedInterval{Start: cur.At, End: end, Open: true})
			}
			res.Warnings = append(res.Warnings, IntegrityWarning{
				Code:    WarnOpenInterval,
				Message: fmt.Sprintf("session ouverte depuis %s", cur.At.Format("15:04")),
			})
		}
		i = nextEntry
	}

	sort.Slice(res.Intervals, func(a, b int) bool {
		return res.Intervals[a].Start.Before(res.Intervals[b].Start)
	})
	return res
}

// dedupe removes same-kind punches within the duplicate window.
func dedupe(ordered []Punch) []Punch {
	cleaned := make([]Punch, 0, len(ordered))
	for _, cur := range ordered {
		if len(cleaned) > 0 {
			prev := cleaned[len(cleaned)-1]
			if prev.Kind == cur.Kind && cur.At.Sub(prev.At) <= duplicateWindow {
				continue
			}
		}
		cleaned = append(cleaned, cur)
	}
	return cleaned
}
