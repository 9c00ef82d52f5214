package attendance

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// DAY - Calendar date (the unit of reconciliation)
// =============================================================================

// Day is a calendar date with no time component. All reconciliation is
// keyed by employee+Day.
type Day struct {
	Year  int
	Month time.Month
	DayN  int
}

func NewDay(year int, month time.Month, day int) Day {
	return Day{Year: year, Month: month, DayN: day}
}

// DayOf truncates a timestamp to its calendar date (in the timestamp's location).
func DayOf(t time.Time) Day {
	return Day{Year: t.Year(), Month: t.Month(), DayN: t.Day()}
}

// ParseDay parses "YYYY-MM-DD".
func ParseDay(s string) (Day, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Day{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DayOf(t), nil
}

func (d Day) Time() time.Time {
	return time.Date(d.Year, d.Month, d.DayN, 0, 0, 0, 0, time.UTC)
}

func (d Day) String() string { return d.Time().Format("2006-01-02") }

func (d Day) AddDays(n int) Day     { return DayOf(d.Time().AddDate(0, 0, n)) }
func (d Day) Before(other Day) bool { return d.Time().Before(other.Time()) }
func (d Day) After(other Day) bool  { return d.Time().After(other.Time()) }
func (d Day) Equal(other Day) bool  { return d == other }
func (d Day) IsZero() bool          { return d == Day{} }

// At anchors a clock time onto this day, producing an absolute instant in UTC.
// Times past 24:00 (night shifts wrapping midnight) land on the next day.
func (d Day) At(c ClockTime) time.Time {
	return d.Time().Add(time.Duration(c) * time.Minute)
}

// MarshalJSON renders the day as "YYYY-MM-DD".
func (d Day) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Day) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Day{}
		return nil
	}
	parsed, err := ParseDay(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// PERIOD - Inclusive date range
// =============================================================================

type Period struct {
	Start Day
	End   Day
}

func (p Period) Valid() bool { return !p.End.Before(p.Start) }

// Days returns the number of calendar days in the period, inclusive.
func (p Period) Days() int {
	return int(p.End.Time().Sub(p.Start.Time()).Hours()/24) + 1
}

// Each iterates the period's days in order.
func (p Period) Each(fn func(Day) error) error {
	for d := p.Start; !d.After(p.End); d = d.AddDays(1) {
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

func (p Period) Contains(d Day) bool {
	return !d.Before(p.Start) && !d.After(p.End)
}

// =============================================================================
// CLOCK TIME - Time of day in minutes since midnight
// =============================================================================

// ClockTime is a planned time of day expressed in minutes since midnight.
// Values above 24*60 represent times past midnight for night shifts
// (a segment 22:00-02:00 is stored as 1320-1560 once normalized).
type ClockTime int

// ParseClock parses "HH:MM". Hours up to 47 are accepted so callers can
// express wrapped end times directly.
func ParseClock(s string) (ClockTime, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	if h < 0 || h > 47 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q: out of range", s)
	}
	return ClockTime(h*60 + m), nil
}

func ClockOf(t time.Time) ClockTime {
	return ClockTime(t.Hour()*60 + t.Minute())
}

func (c ClockTime) Minutes() int { return int(c) }

func (c ClockTime) String() string {
	h := int(c) / 60
	m := int(c) % 60
	return fmt.Sprintf("%02d:%02d", h%24, m)
}

// MinutesBetween returns b - a in whole minutes.
func MinutesBetween(a, b time.Time) int {
	return int(b.Sub(a).Minutes())
}
