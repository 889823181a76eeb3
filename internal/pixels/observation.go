package pixels

import (
	"cmp"
	"math"
	"slices"

	"minewatch/internal/daterange"
)

// Label is the outlier label attached to an observation. Values follow the
// -1/1 convention used by the persisted pixel table.
type Label int

const (
	LabelUnscored  Label = 0
	LabelAnomalous Label = -1
	LabelNormal    Label = 1
)

// String returns a display name for the label.
func (l Label) String() string {
	switch l {
	case LabelAnomalous:
		return "anomalous"
	case LabelNormal:
		return "normal"
	default:
		return "unscored"
	}
}

// FeatureNames lists the spectral features in the column order used for scoring.
var FeatureNames = []string{"B4", "B8", "B11", "NDVI", "NBR"}

// Bands holds the Sentinel-2 reflectances and derived indices for one sample.
type Bands struct {
	B4   float64 `json:"b4"`
	B8   float64 `json:"b8"`
	B11  float64 `json:"b11"`
	NDVI float64 `json:"ndvi"`
	NBR  float64 `json:"nbr"`
}

// Vector returns the bands in FeatureNames order.
func (b Bands) Vector() []float64 {
	return []float64{b.B4, b.B8, b.B11, b.NDVI, b.NBR}
}

// Finite reports whether every band value is a finite number.
func (b Bands) Finite() bool {
	for _, v := range b.Vector() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Location identifies a fixed ground sample.
type Location struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Compare orders locations by latitude then longitude.
func (l Location) Compare(other Location) int {
	if c := cmp.Compare(l.Lat, other.Lat); c != 0 {
		return c
	}
	return cmp.Compare(l.Lon, other.Lon)
}

// Observation is one spectral reading at one location and date.
type Observation struct {
	MineID    int64          `json:"mine_id"`
	Location  Location       `json:"location"`
	Date      daterange.Date `json:"date"`
	Bands     Bands          `json:"bands"`
	Label     Label          `json:"anomaly_label"`
	Score     float64        `json:"anomaly_score"`
	Excavated bool           `json:"excavated_flag"`
}

// Anomalous reports whether the observation was labelled as an outlier.
func (o Observation) Anomalous() bool {
	return o.Label == LabelAnomalous
}

// Key is the natural uniqueness key of an observation.
type Key struct {
	MineID   int64
	Date     string
	Location Location
}

// Key returns the observation's natural key.
func (o Observation) Key() Key {
	return Key{MineID: o.MineID, Date: o.Date.String(), Location: o.Location}
}

// CompareByLocationDate orders observations by mine, location, then date.
func CompareByLocationDate(a, b Observation) int {
	if c := cmp.Compare(a.MineID, b.MineID); c != 0 {
		return c
	}
	if c := a.Location.Compare(b.Location); c != 0 {
		return c
	}
	return a.Date.Time().Compare(b.Date.Time())
}

// SortByLocationDate sorts observations in place by mine, location, and date.
func SortByLocationDate(obs []Observation) {
	slices.SortStableFunc(obs, CompareByLocationDate)
}

// Dedupe drops repeated natural keys, keeping the first occurrence.
func Dedupe(obs []Observation) []Observation {
	seen := make(map[Key]struct{}, len(obs))
	out := obs[:0:0]
	for _, o := range obs {
		k := o.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, o)
	}
	return out
}

// GroupByMine splits observations into per-mine slices, preserving order
// within each mine. Mine IDs are returned ascending.
func GroupByMine(obs []Observation) ([]int64, map[int64][]int) {
	groups := make(map[int64][]int)
	for i, o := range obs {
		groups[o.MineID] = append(groups[o.MineID], i)
	}
	ids := make([]int64, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, groups
}

// Dates returns the distinct observation dates in ascending order.
func Dates(obs []Observation) []daterange.Date {
	seen := make(map[string]daterange.Date)
	for _, o := range obs {
		seen[o.Date.String()] = o.Date
	}
	out := make([]daterange.Date, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b daterange.Date) int { return a.Time().Compare(b.Time()) })
	return out
}

// Bounds returns the earliest and latest observation dates.
func Bounds(obs []Observation) (daterange.Range, bool) {
	if len(obs) == 0 {
		return daterange.Range{}, false
	}
	r := daterange.Range{Start: obs[0].Date, End: obs[0].Date}
	for _, o := range obs[1:] {
		if o.Date.Before(r.Start) {
			r.Start = o.Date
		}
		if o.Date.After(r.End) {
			r.End = o.Date
		}
	}
	return r, true
}
