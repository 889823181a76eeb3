// Package alerts classifies per-zone violation area series into typed alerts.
package alerts

import (
	"cmp"
	"slices"

	"minewatch/internal/daterange"
	"minewatch/internal/violations"
	"minewatch/internal/zones"
)

// Kind is the trend classification of a violation day.
type Kind string

const (
	KindFirst      Kind = "first"
	KindExpansion  Kind = "expansion"
	KindPersistent Kind = "persistent"
)

// Label returns the display name used in notifications and reports.
func (k Kind) Label() string {
	switch k {
	case KindFirst:
		return "First Violation"
	case KindExpansion:
		return "Expansion Violation"
	case KindPersistent:
		return "Persistent Violation"
	default:
		return string(k)
	}
}

// Kinds lists every alert kind in severity order.
var Kinds = []Kind{KindFirst, KindExpansion, KindPersistent}

// Alert is one classified violation day for a mine and zone type.
type Alert struct {
	MineID       int64          `json:"mine_id"`
	Date         daterange.Date `json:"date"`
	ZoneType     zones.Type     `json:"zone_type"`
	Kind         Kind           `json:"alert_type"`
	AffectedArea float64        `json:"affected_area"`
	Streak       int            `json:"streak"`
}

// Key is the natural uniqueness key of an alert.
type Key struct {
	MineID   int64
	Date     string
	ZoneType zones.Type
}

// Key returns the alert's natural key.
func (a Alert) Key() Key {
	return Key{MineID: a.MineID, Date: a.Date.String(), ZoneType: a.ZoneType}
}

// Tracker is the per-(mine, zone) state machine. The zero value starts in the
// no-violation state.
type Tracker struct {
	prev   float64
	streak int
}

// Observe feeds the next day's area and reports the resulting alert kind.
// A zero-area day emits nothing and returns the tracker to the no-violation
// state without clearing the streak.
func (t *Tracker) Observe(area float64) (Kind, bool) {
	var kind Kind
	switch {
	case area <= 0:
		t.prev = 0
		return "", false
	case t.prev == 0:
		kind = KindFirst
		t.streak = 1
	case area > t.prev:
		kind = KindExpansion
		t.streak++
	default:
		kind = KindPersistent
		t.streak++
	}
	t.prev = area
	return kind, true
}

// Streak returns the number of alerting days since the last First.
func (t *Tracker) Streak() int {
	return t.streak
}

// Active reports whether the last observed day had a violation.
func (t *Tracker) Active() bool {
	return t.prev > 0
}

// Classify groups records by mine and zone type, builds the summed-area series
// over the union of the group's violation dates and dates, and runs a Tracker
// over each series. Alerts are ordered by mine, zone type, then date.
func Classify(records []violations.Record, dates []daterange.Date) []Alert {
	type group struct {
		mine int64
		zone zones.Type
	}
	areas := make(map[group]map[string]float64)
	var groups []group
	for _, r := range records {
		g := group{r.MineID, r.ZoneType}
		if areas[g] == nil {
			areas[g] = make(map[string]float64)
			groups = append(groups, g)
		}
		areas[g][r.Date.String()] += r.Area
	}
	slices.SortFunc(groups, func(a, b group) int {
		if c := cmp.Compare(a.mine, b.mine); c != 0 {
			return c
		}
		return cmp.Compare(a.zone, b.zone)
	})

	var out []Alert
	for _, g := range groups {
		byDate := areas[g]
		series := seriesDates(byDate, dates)
		var tracker Tracker
		for _, d := range series {
			area := byDate[d.String()]
			kind, ok := tracker.Observe(area)
			if !ok {
				continue
			}
			out = append(out, Alert{
				MineID:       g.mine,
				Date:         d,
				ZoneType:     g.zone,
				Kind:         kind,
				AffectedArea: area,
				Streak:       tracker.Streak(),
			})
		}
	}
	return out
}

func seriesDates(byDate map[string]float64, dates []daterange.Date) []daterange.Date {
	seen := make(map[string]daterange.Date, len(byDate)+len(dates))
	for _, d := range dates {
		seen[d.String()] = d
	}
	for key := range byDate {
		if _, ok := seen[key]; ok {
			continue
		}
		if d, err := daterange.ParseDate(key); err == nil {
			seen[key] = d
		}
	}
	out := make([]daterange.Date, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b daterange.Date) int { return a.Time().Compare(b.Time()) })
	return out
}

// CountByKind tallies alerts per kind.
func CountByKind(alerts []Alert) map[Kind]int {
	counts := make(map[Kind]int, len(Kinds))
	for _, a := range alerts {
		counts[a.Kind]++
	}
	return counts
}
