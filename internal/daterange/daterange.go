package daterange

import (
	"fmt"
	"strings"
	"time"

	"minewatch/internal/services"
)

// Layout is the ISO 8601 calendar date layout used on every external surface.
const Layout = "2006-01-02"

// MinimumWindow is the shortest range worth fetching; it matches the
// Sentinel-2 sampling step used by the imagery provider.
const MinimumWindow = 21

// Date is a calendar date normalized to UTC midnight.
type Date struct {
	t time.Time
}

// NewDate builds a Date from its calendar components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// FromTime truncates t to its UTC calendar date.
func FromTime(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

// ParseDate parses an ISO 8601 calendar date (YYYY-MM-DD).
func ParseDate(value string) (Date, error) {
	trimmed := strings.TrimSpace(value)
	parsed, err := time.Parse(Layout, trimmed)
	if err != nil {
		return Date{}, services.Wrap(services.ErrInvalidDateRange, "request", "parse date", fmt.Sprintf("%q is not a YYYY-MM-DD date", trimmed), nil)
	}
	return Date{t: parsed}, nil
}

// Time returns the date as a UTC midnight timestamp.
func (d Date) Time() time.Time { return d.t }

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool { return d.t.IsZero() }

// AddDays shifts the date by n calendar days.
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// Before reports whether d precedes other.
func (d Date) Before(other Date) bool { return d.t.Before(other.t) }

// After reports whether d follows other.
func (d Date) After(other Date) bool { return d.t.After(other.t) }

// Equal reports whether both dates name the same day.
func (d Date) Equal(other Date) bool { return d.t.Equal(other.t) }

// DaysUntil returns the number of days from d to other (negative when other is earlier).
func (d Date) DaysUntil(other Date) int {
	return int(other.t.Sub(d.t).Hours() / 24)
}

// String renders the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.t.IsZero() {
		return ""
	}
	return d.t.Format(Layout)
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Range is an inclusive [Start, End] interval of calendar dates.
type Range struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// Parse validates a pair of ISO dates into a Range. Malformed input or a start
// after the end is rejected with ErrInvalidDateRange.
func Parse(start, end string) (Range, error) {
	s, err := ParseDate(start)
	if err != nil {
		return Range{}, err
	}
	e, err := ParseDate(end)
	if err != nil {
		return Range{}, err
	}
	r := Range{Start: s, End: e}
	if !r.Valid() {
		return Range{}, services.Wrap(services.ErrInvalidDateRange, "request", "validate", fmt.Sprintf("start %s is after end %s", s, e), nil)
	}
	return r, nil
}

// Valid reports whether Start does not follow End.
func (r Range) Valid() bool {
	return !r.Start.After(r.End)
}

// Days returns the inclusive day count, or 0 for an inverted range.
func (r Range) Days() int {
	if !r.Valid() {
		return 0
	}
	return r.Start.DaysUntil(r.End) + 1
}

// Contains reports whether d lies within the range, endpoints included.
func (r Range) Contains(d Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// Covers reports whether other lies entirely within r.
func (r Range) Covers(other Range) bool {
	return !other.Start.Before(r.Start) && !other.End.After(r.End)
}

// Overlaps reports whether the two ranges share at least one day.
func (r Range) Overlaps(other Range) bool {
	return !r.End.Before(other.Start) && !other.End.Before(r.Start)
}

// String renders the range as start..end.
func (r Range) String() string {
	return r.Start.String() + ".." + r.End.String()
}
