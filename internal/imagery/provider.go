// Package imagery fetches per-pixel Sentinel-2 samples for a mine and window.
//
// The Provider interface is the seam to the remote sampling service. Two
// implementations ship: CSVProvider replays exported time series from disk and
// HTTPProvider calls a sampling service that returns JSON rows.
package imagery

import (
	"context"
	"math"
	"strconv"
	"strings"

	"minewatch/internal/daterange"
	"minewatch/internal/mines"
	"minewatch/internal/pixels"
)

// Provider fetches spectral samples inside a mine boundary for an inclusive
// date window. An empty result for a valid window is not an error.
type Provider interface {
	Fetch(ctx context.Context, mine mines.Mine, window daterange.Range) ([]pixels.Observation, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, mine mines.Mine, window daterange.Range) ([]pixels.Observation, error)

// Fetch calls f.
func (f ProviderFunc) Fetch(ctx context.Context, mine mines.Mine, window daterange.Range) ([]pixels.Observation, error) {
	return f(ctx, mine, window)
}

// Columns lists the required sample columns.
var Columns = []string{"mine_id", "date", "latitude", "longitude", "B4", "B8", "B11", "NDVI", "NBR"}

// Row is the wire form of one sample, shared by the CSV and HTTP providers.
type Row struct {
	MineID    int64   `json:"mine_id"`
	Date      string  `json:"date"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	B4        float64 `json:"B4"`
	B8        float64 `json:"B8"`
	B11       float64 `json:"B11"`
	NDVI      float64 `json:"NDVI"`
	NBR       float64 `json:"NBR"`
}

// Observation converts the row. ok is false when the date cannot be parsed.
func (r Row) Observation() (pixels.Observation, bool) {
	date, err := daterange.ParseDate(normalizeDate(r.Date))
	if err != nil {
		return pixels.Observation{}, false
	}
	return pixels.Observation{
		MineID:   r.MineID,
		Location: pixels.Location{Lat: r.Latitude, Lon: r.Longitude},
		Date:     date,
		Bands:    pixels.Bands{B4: r.B4, B8: r.B8, B11: r.B11, NDVI: r.NDVI, NBR: r.NBR},
	}, true
}

// normalizeDate accepts timestamps such as "2025-01-05T00:00:00" or
// "2025-01-05 00:00:00" by keeping the calendar date part.
func normalizeDate(value string) string {
	value = strings.TrimSpace(value)
	if len(value) > len(daterange.Layout) && (value[len(daterange.Layout)] == 'T' || value[len(daterange.Layout)] == ' ') {
		return value[:len(daterange.Layout)]
	}
	return value
}

// parseBand parses a band value; blanks and garbage become NaN so that
// preprocessing drops the row.
func parseBand(value string) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func filterWindow(obs []pixels.Observation, mineID int64, window daterange.Range) []pixels.Observation {
	out := obs[:0]
	for _, o := range obs {
		if o.MineID != mineID || !window.Contains(o.Date) {
			continue
		}
		out = append(out, o)
	}
	return out
}
