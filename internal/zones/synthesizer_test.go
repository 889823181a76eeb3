package zones_test

import (
	"encoding/json"
	"math"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"minewatch/internal/daterange"
	"minewatch/internal/pixels"
	"minewatch/internal/zones"
)

func gridObservations(mineID int64) []pixels.Observation {
	var obs []pixels.Observation
	for i := 0; i < 10; i++ {
		loc := pixels.Location{Lat: 21.0 + float64(i)*0.01, Lon: 85.0}
		for d := 0; d < 2; d++ {
			obs = append(obs, pixels.Observation{
				MineID:   mineID,
				Location: loc,
				Date:     daterange.NewDate(2025, time.March, 1).AddDays(21 * d),
				Bands: pixels.Bands{
					NDVI: float64(i) * 0.1,
					B8:   float64(i) * 100,
					B11:  float64(i) * 100,
				},
			})
		}
	}
	return obs
}

func TestQuantileLinearInterpolation(t *testing.T) {
	values := []float64{4, 1, 3, 2}
	tests := []struct {
		q    float64
		want float64
	}{
		{0, 1},
		{0.5, 2.5},
		{0.9, 3.7},
		{1, 4},
	}
	for _, tt := range tests {
		if got := zones.Quantile(values, tt.q); math.Abs(got-tt.want) > 1e-9 {
			t.Fatalf("Quantile(%v) = %v, want %v", tt.q, got, tt.want)
		}
	}
	if values[0] != 4 {
		t.Fatal("Quantile modified its input")
	}
	if !math.IsNaN(zones.Quantile(nil, 0.5)) {
		t.Fatal("expected NaN for empty input")
	}
}

func TestSynthesizeSelectsExtremeLocations(t *testing.T) {
	got := zones.NewSynthesizer().Synthesize(gridObservations(7))
	if len(got) != 2 {
		t.Fatalf("expected vegetation and water zones, got %d", len(got))
	}

	veg, water := got[0], got[1]
	if veg.Type != zones.TypeVegetation || water.Type != zones.TypeWater {
		t.Fatalf("unexpected zone order: %s, %s", veg.Type, water.Type)
	}
	if len(veg.Centers) != 1 || math.Abs(veg.Centers[0].Lat-21.09) > 1e-9 {
		t.Fatalf("expected greenest location only, got %+v", veg.Centers)
	}
	if len(water.Centers) != 1 || water.Centers[0].Lat != 21.0 {
		t.Fatalf("expected darkest location only, got %+v", water.Centers)
	}
	if veg.MineID != 7 || water.MineID != 7 {
		t.Fatalf("zones not tagged with mine id")
	}
	if math.Abs(veg.Threshold.NDVI-0.81) > 1e-9 {
		t.Fatalf("vegetation threshold = %v, want 0.81", veg.Threshold.NDVI)
	}
}

func TestSynthesizeRespectsMinPoints(t *testing.T) {
	s := zones.NewSynthesizer()
	s.MinPoints = 2
	if got := s.Synthesize(gridObservations(1)); len(got) != 0 {
		t.Fatalf("expected no zones below min points, got %d", len(got))
	}
}

func TestSynthesizeUniformValuesYieldNoZones(t *testing.T) {
	obs := gridObservations(1)
	for i := range obs {
		obs[i].Bands = pixels.Bands{NDVI: 0.4, B8: 1000, B11: 900}
	}
	if got := zones.NewSynthesizer().Synthesize(obs); len(got) != 0 {
		t.Fatalf("strict comparisons should exclude uniform values, got %d zones", len(got))
	}
}

func TestZoneContains(t *testing.T) {
	z := zones.NewSynthesizer().Synthesize(gridObservations(1))[0]
	center := z.Centers[0]

	tests := []struct {
		name string
		loc  pixels.Location
		want bool
	}{
		{"center", center, true},
		{"inside", pixels.Location{Lat: center.Lat + 0.0004, Lon: center.Lon}, true},
		{"outside", pixels.Location{Lat: center.Lat + 0.0006, Lon: center.Lon}, false},
		{"neighbour location", pixels.Location{Lat: 21.08, Lon: 85.0}, false},
	}
	for _, tt := range tests {
		if got := z.Contains(tt.loc); got != tt.want {
			t.Fatalf("%s: Contains = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestFeatureCollection(t *testing.T) {
	fc := zones.FeatureCollection(zones.NewSynthesizer().Synthesize(gridObservations(3)))
	if len(fc.Features) != 2 {
		t.Fatalf("expected 2 features, got %d", len(fc.Features))
	}
	if label := fc.Features[0].Properties["label"]; label != "Synthetic Forest Protection Zone" {
		t.Fatalf("unexpected label %v", label)
	}

	data, err := json.Marshal(fc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type       string `json:"type"`
				Geometries []struct {
					Type string `json:"type"`
				} `json:"geometries"`
			} `json:"geometry"`
		} `json:"features"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != "FeatureCollection" || decoded.Features[0].Geometry.Type != "GeometryCollection" {
		t.Fatalf("unexpected geojson shape: %s", data)
	}
	for _, g := range decoded.Features[0].Geometry.Geometries {
		if g.Type != "Polygon" {
			t.Fatalf("expected polygon discs, got %s", g.Type)
		}
	}
}

func TestOverlappingDiscsStaySeparateMembers(t *testing.T) {
	// Two adjacent greenest locations 0.0002 degrees apart; their buffers overlap.
	var obs []pixels.Observation
	for i := 0; i < 20; i++ {
		ndvi := 0.1
		if i >= 18 {
			ndvi = 0.9
		}
		obs = append(obs, pixels.Observation{
			MineID:   1,
			Location: pixels.Location{Lat: 21.0 + float64(i)*0.0002, Lon: 85.0},
			Date:     daterange.NewDate(2025, time.March, 1),
			Bands:    pixels.Bands{NDVI: ndvi, B8: 500, B11: 500},
		})
	}
	got := zones.NewSynthesizer().Synthesize(obs)
	if len(got) != 1 || got[0].Type != zones.TypeVegetation {
		t.Fatalf("expected a single vegetation zone, got %+v", got)
	}
	veg := got[0]
	if len(veg.Discs) != 2 || len(veg.Geometry()) != 2 {
		t.Fatalf("expected one disc per center, got %d", len(veg.Discs))
	}
	between := pixels.Location{Lat: 21.0 + 18.5*0.0002, Lon: 85.0}
	if !veg.Contains(between) {
		t.Fatal("point in the overlap should belong to the zone")
	}
	beyond := pixels.Location{Lat: veg.Centers[1].Lat + 0.0006, Lon: 85.0}
	if veg.Contains(beyond) {
		t.Fatal("point outside every disc should not belong to the zone")
	}
}

func TestSynthesizeIsDeterministic(t *testing.T) {
	obs := gridObservations(5)
	// Uneven values make summation order matter for float means.
	for i := range obs {
		obs[i].Bands.NDVI += 0.1 * float64(i%3) / 7
		obs[i].Bands.B8 += float64(i%5) / 3
		obs[i].Bands.B11 += float64(i%7) / 11
	}
	s := zones.NewSynthesizer()
	first := s.Synthesize(obs)
	second := s.Synthesize(obs)

	shuffled := slices.Clone(obs)
	rand.New(rand.NewPCG(1, 2)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	reordered := s.Synthesize(shuffled)

	type summary struct {
		Type      zones.Type
		Threshold zones.Thresholds
		Centers   []pixels.Location
	}
	summarize := func(zs []zones.Zone) []summary {
		out := make([]summary, len(zs))
		for i, z := range zs {
			out[i] = summary{Type: z.Type, Threshold: z.Threshold, Centers: z.Centers}
		}
		return out
	}
	want := summarize(first)
	if len(want) == 0 {
		t.Fatal("expected zones from the grid")
	}
	if diff := cmp.Diff(want, summarize(second)); diff != "" {
		t.Fatalf("repeat synthesis differs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(want, summarize(reordered)); diff != "" {
		t.Fatalf("shuffled synthesis differs (-first +shuffled):\n%s", diff)
	}
}
