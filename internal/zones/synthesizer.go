package zones

import (
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"minewatch/internal/pixels"
)

// Type enumerates protected zone categories.
type Type string

const (
	TypeVegetation Type = "vegetation"
	TypeWater      Type = "water"
)

// Label returns the human-readable zone name.
func (t Type) Label() string {
	switch t {
	case TypeVegetation:
		return "Synthetic Forest Protection Zone"
	case TypeWater:
		return "Synthetic Water Protection Zone"
	default:
		return string(t)
	}
}

// ParseType maps a stored zone type string to a Type.
func ParseType(value string) (Type, bool) {
	switch Type(value) {
	case TypeVegetation, TypeWater:
		return Type(value), true
	default:
		return "", false
	}
}

const (
	DefaultUpperQuantile = 0.9
	DefaultLowerQuantile = 0.1
	// DefaultBufferDegrees is roughly 55 m at the equator.
	DefaultBufferDegrees = 0.0005
	DefaultMinPoints     = 1

	circleSegments = 32
)

// Zone is the union of buffered qualifying locations for one mine and type.
// Discs holds one buffer per center, in center order. Neighbouring discs
// usually overlap, so they are kept as a disc set rather than members of a
// MultiPolygon, which must not overlap.
type Zone struct {
	MineID    int64
	Type      Type
	Threshold Thresholds
	Centers   []pixels.Location
	Radius    float64
	Discs     []orb.Polygon

	bounds []orb.Bound
}

// Thresholds records the percentile cut-offs that produced a zone.
type Thresholds struct {
	NDVI float64 `json:"ndvi,omitempty"`
	B8   float64 `json:"b8,omitempty"`
	B11  float64 `json:"b11,omitempty"`
}

// Empty reports whether the zone has no geometry.
func (z Zone) Empty() bool {
	return len(z.Discs) == 0
}

// Geometry returns the disc set as a geometry collection.
func (z Zone) Geometry() orb.Collection {
	out := make(orb.Collection, len(z.Discs))
	for i, d := range z.Discs {
		out[i] = d
	}
	return out
}

// Contains reports whether loc falls inside any disc of the zone.
func (z Zone) Contains(loc pixels.Location) bool {
	pt := orb.Point{loc.Lon, loc.Lat}
	for i, poly := range z.Discs {
		if i < len(z.bounds) && !z.bounds[i].Contains(pt) {
			continue
		}
		if planar.PolygonContains(poly, pt) {
			return true
		}
	}
	return false
}

// Synthesizer derives protected zones from spectral percentiles.
type Synthesizer struct {
	UpperQuantile float64
	LowerQuantile float64
	BufferDegrees float64
	MinPoints     int
}

// NewSynthesizer returns a Synthesizer with default thresholds.
func NewSynthesizer() Synthesizer {
	return Synthesizer{
		UpperQuantile: DefaultUpperQuantile,
		LowerQuantile: DefaultLowerQuantile,
		BufferDegrees: DefaultBufferDegrees,
		MinPoints:     DefaultMinPoints,
	}
}

type locationMeans struct {
	loc  pixels.Location
	ndvi float64
	b8   float64
	b11  float64
}

// Synthesize builds vegetation and water zones for every mine in obs. Types
// with too few qualifying locations are omitted. Output order is by mine,
// then vegetation before water.
func (s Synthesizer) Synthesize(obs []pixels.Observation) []Zone {
	s = s.withDefaults()
	mineIDs, groups := pixels.GroupByMine(obs)

	var out []Zone
	for _, mineID := range mineIDs {
		means := averageByLocation(obs, groups[mineID])
		if len(means) == 0 {
			continue
		}
		if z, ok := s.vegetation(mineID, means); ok {
			out = append(out, z)
		}
		if z, ok := s.water(mineID, means); ok {
			out = append(out, z)
		}
	}
	return out
}

func (s Synthesizer) vegetation(mineID int64, means []locationMeans) (Zone, bool) {
	ndvi := make([]float64, len(means))
	for i, m := range means {
		ndvi[i] = m.ndvi
	}
	cut := Quantile(ndvi, s.UpperQuantile)

	var centers []pixels.Location
	for _, m := range means {
		if m.ndvi > cut {
			centers = append(centers, m.loc)
		}
	}
	return s.build(mineID, TypeVegetation, Thresholds{NDVI: cut}, centers)
}

func (s Synthesizer) water(mineID int64, means []locationMeans) (Zone, bool) {
	b8 := make([]float64, len(means))
	b11 := make([]float64, len(means))
	for i, m := range means {
		b8[i] = m.b8
		b11[i] = m.b11
	}
	cut8 := Quantile(b8, s.LowerQuantile)
	cut11 := Quantile(b11, s.LowerQuantile)

	var centers []pixels.Location
	for _, m := range means {
		if m.b8 < cut8 && m.b11 < cut11 {
			centers = append(centers, m.loc)
		}
	}
	return s.build(mineID, TypeWater, Thresholds{B8: cut8, B11: cut11}, centers)
}

func (s Synthesizer) build(mineID int64, typ Type, th Thresholds, centers []pixels.Location) (Zone, bool) {
	if len(centers) == 0 || len(centers) < s.MinPoints {
		return Zone{}, false
	}
	z := Zone{
		MineID:    mineID,
		Type:      typ,
		Threshold: th,
		Centers:   centers,
		Radius:    s.BufferDegrees,
		Discs:     make([]orb.Polygon, 0, len(centers)),
		bounds:    make([]orb.Bound, 0, len(centers)),
	}
	for _, c := range centers {
		poly := Buffer(c, s.BufferDegrees)
		z.Discs = append(z.Discs, poly)
		z.bounds = append(z.bounds, poly.Bound())
	}
	return z, true
}

func (s Synthesizer) withDefaults() Synthesizer {
	if s.UpperQuantile <= 0 || s.UpperQuantile >= 1 {
		s.UpperQuantile = DefaultUpperQuantile
	}
	if s.LowerQuantile <= 0 || s.LowerQuantile >= 1 {
		s.LowerQuantile = DefaultLowerQuantile
	}
	if s.BufferDegrees <= 0 {
		s.BufferDegrees = DefaultBufferDegrees
	}
	if s.MinPoints < 1 {
		s.MinPoints = DefaultMinPoints
	}
	return s
}

// averageByLocation sums each location's samples in sorted order so the
// means, and the thresholds derived from them, do not depend on input order.
func averageByLocation(obs []pixels.Observation, idx []int) []locationMeans {
	type samples struct {
		ndvi, b8, b11 []float64
	}
	byLoc := make(map[pixels.Location]*samples)
	for _, i := range idx {
		o := obs[i]
		v := byLoc[o.Location]
		if v == nil {
			v = &samples{}
			byLoc[o.Location] = v
		}
		v.ndvi = append(v.ndvi, o.Bands.NDVI)
		v.b8 = append(v.b8, o.Bands.B8)
		v.b11 = append(v.b11, o.Bands.B11)
	}
	out := make([]locationMeans, 0, len(byLoc))
	for loc, v := range byLoc {
		out = append(out, locationMeans{loc: loc, ndvi: sortedMean(v.ndvi), b8: sortedMean(v.b8), b11: sortedMean(v.b11)})
	}
	slices.SortFunc(out, func(x, y locationMeans) int { return x.loc.Compare(y.loc) })
	return out
}

func sortedMean(values []float64) float64 {
	slices.Sort(values)
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Quantile returns the q-th quantile of values using linear interpolation
// between closest ranks. values is not modified.
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Buffer approximates a disc of the given radius (in degrees) around loc.
func Buffer(loc pixels.Location, radius float64) orb.Polygon {
	ring := make(orb.Ring, 0, circleSegments+1)
	for i := 0; i < circleSegments; i++ {
		theta := 2 * math.Pi * float64(i) / circleSegments
		ring = append(ring, orb.Point{
			loc.Lon + radius*math.Cos(theta),
			loc.Lat + radius*math.Sin(theta),
		})
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}
