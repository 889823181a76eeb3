package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"minewatch/internal/daterange"
	"minewatch/internal/imagery"
	"minewatch/internal/mines"
	"minewatch/internal/pixels"
)

// Scene describes a synthetic square grid of sample locations observed on a
// fixed revisit cadence.
type Scene struct {
	MineID   int64
	Origin   pixels.Location
	Side     int
	Spacing  float64
	Start    daterange.Date
	Samples  int
	Interval int
}

// DefaultScene is a 5x5 grid sampled every 5 days for 60 samples.
func DefaultScene(mineID int64) Scene {
	return Scene{
		MineID:   mineID,
		Origin:   pixels.Location{Lat: 23.70, Lon: 86.40},
		Side:     5,
		Spacing:  0.002,
		Start:    daterange.NewDate(2024, time.January, 1),
		Samples:  60,
		Interval: 5,
	}
}

// Locations returns the grid locations in row-major order.
func (s Scene) Locations() []pixels.Location {
	out := make([]pixels.Location, 0, s.Side*s.Side)
	for i := 0; i < s.Side; i++ {
		for j := 0; j < s.Side; j++ {
			out = append(out, pixels.Location{
				Lat: s.Origin.Lat + float64(i)*s.Spacing,
				Lon: s.Origin.Lon + float64(j)*s.Spacing,
			})
		}
	}
	return out
}

// Last returns the date of the final sample.
func (s Scene) Last() daterange.Date {
	return s.Start.AddDays((s.Samples - 1) * s.Interval)
}

// Window returns the inclusive range spanning every sample.
func (s Scene) Window() daterange.Range {
	return daterange.Range{Start: s.Start, End: s.Last()}
}

// Observations builds deterministic bands: NDVI and near-infrared reflectance
// both rise with the location index, so the last location is the greenest and
// the first the darkest.
func (s Scene) Observations() []pixels.Observation {
	locs := s.Locations()
	out := make([]pixels.Observation, 0, len(locs)*s.Samples)
	for k := 0; k < s.Samples; k++ {
		date := s.Start.AddDays(k * s.Interval)
		season := float64(k%4) * 0.01
		for idx, loc := range locs {
			f := float64(idx) / float64(len(locs))
			out = append(out, pixels.Observation{
				MineID:   s.MineID,
				Location: loc,
				Date:     date,
				Bands: pixels.Bands{
					B4:   900 - 400*f + 10*season,
					B8:   1200 + 1800*f,
					B11:  1100 + 1500*f,
					NDVI: 0.1 + 0.6*f + season,
					NBR:  0.05 + 0.4*f,
				},
			})
		}
	}
	return out
}

// Mine returns a catalog entry whose polygon encloses the grid.
func (s Scene) Mine() mines.Mine {
	pad := s.Spacing
	span := float64(s.Side-1) * s.Spacing
	minLon, minLat := s.Origin.Lon-pad, s.Origin.Lat-pad
	maxLon, maxLat := s.Origin.Lon+span+pad, s.Origin.Lat+span+pad
	return mines.Mine{
		ID:   s.MineID,
		Name: "Test Colliery " + strconv.FormatInt(s.MineID, 10),
		Geometry: orb.Polygon{orb.Ring{
			{minLon, minLat}, {maxLon, minLat}, {maxLon, maxLat}, {minLon, maxLat}, {minLon, minLat},
		}},
	}
}

// WriteCSV stores obs as <dir>/mine_<id>.csv.
func WriteCSV(t testing.TB, dir string, mineID int64, obs []pixels.Observation) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, "mine_"+strconv.FormatInt(mineID, 10)+".csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := imagery.WriteCSV(f, obs); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

// WriteCatalog writes the mines as a GeoJSON FeatureCollection at path.
func WriteCatalog(t testing.TB, path string, ms ...mines.Mine) {
	t.Helper()
	fc := geojson.NewFeatureCollection()
	for _, m := range ms {
		fc.Append(m.Feature())
	}
	data, err := json.Marshal(fc)
	if err != nil {
		t.Fatalf("marshal catalog: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
}

// MustCatalog builds a catalog or fails the test.
func MustCatalog(t testing.TB, ms ...mines.Mine) *mines.Catalog {
	t.Helper()
	c, err := mines.NewCatalog(ms...)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	return c
}
