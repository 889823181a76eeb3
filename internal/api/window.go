package api

import (
	"strings"
	"time"

	"minewatch/internal/daterange"
)

// DefaultPixelWindowDays is the lookback used by pixel queries without dates.
const DefaultPixelWindowDays = 30

// ParseWindow parses optional start and end query values. Both empty yields
// fallback. A single bound is completed from fallback, or left open when
// fallback is the zero range.
func ParseWindow(start, end string, fallback daterange.Range) (daterange.Range, error) {
	start = strings.TrimSpace(start)
	end = strings.TrimSpace(end)
	if start == "" && end == "" {
		return fallback, nil
	}
	r := fallback
	if start != "" {
		d, err := daterange.ParseDate(start)
		if err != nil {
			return daterange.Range{}, err
		}
		r.Start = d
	}
	if end != "" {
		d, err := daterange.ParseDate(end)
		if err != nil {
			return daterange.Range{}, err
		}
		r.End = d
	}
	if r.Start.IsZero() || r.End.IsZero() {
		return r, nil
	}
	return daterange.Parse(r.Start.String(), r.End.String())
}

// LastDays returns the inclusive window of n days ending on now's date.
func LastDays(now time.Time, n int) daterange.Range {
	end := daterange.FromTime(now)
	return daterange.Range{Start: end.AddDays(-(n - 1)), End: end}
}
