package violations_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"minewatch/internal/daterange"
	"minewatch/internal/pixels"
	"minewatch/internal/violations"
	"minewatch/internal/zones"
)

// zoneAt synthesizes a single-location zone of the given type around loc.
func zoneAt(t *testing.T, mineID int64, typ zones.Type, loc pixels.Location) zones.Zone {
	t.Helper()
	far := pixels.Location{Lat: loc.Lat + 1, Lon: loc.Lon + 1}
	mid := pixels.Location{Lat: loc.Lat + 2, Lon: loc.Lon + 2}
	date := daterange.NewDate(2025, time.January, 1)
	target := pixels.Bands{NDVI: 0.9, B8: 100, B11: 100}
	if typ == zones.TypeWater {
		target = pixels.Bands{NDVI: 0.1, B8: 10, B11: 10}
	}
	obs := []pixels.Observation{
		{MineID: mineID, Location: loc, Date: date, Bands: target},
		{MineID: mineID, Location: far, Date: date, Bands: pixels.Bands{NDVI: 0.3, B8: 500, B11: 500}},
		{MineID: mineID, Location: mid, Date: date, Bands: pixels.Bands{NDVI: 0.4, B8: 600, B11: 600}},
	}
	for _, z := range zones.NewSynthesizer().Synthesize(obs) {
		if z.Type == typ {
			return z
		}
	}
	t.Fatalf("no %s zone synthesized", typ)
	return zones.Zone{}
}

func excavated(mineID int64, loc pixels.Location, date daterange.Date) pixels.Observation {
	return pixels.Observation{MineID: mineID, Location: loc, Date: date, Label: pixels.LabelAnomalous, Excavated: true, Score: -0.1}
}

func TestDetect(t *testing.T) {
	loc := pixels.Location{Lat: 21.0, Lon: 85.0}
	date := daterange.NewDate(2025, time.February, 1)
	veg := zoneAt(t, 1, zones.TypeVegetation, loc)
	water := zoneAt(t, 1, zones.TypeWater, loc)

	tests := []struct {
		name  string
		obs   []pixels.Observation
		zones []zones.Zone
		want  []zones.Type
	}{
		{
			name:  "inside vegetation",
			obs:   []pixels.Observation{excavated(1, loc, date)},
			zones: []zones.Zone{veg},
			want:  []zones.Type{zones.TypeVegetation},
		},
		{
			name:  "outside every zone",
			obs:   []pixels.Observation{excavated(1, pixels.Location{Lat: 22, Lon: 86}, date)},
			zones: []zones.Zone{veg, water},
		},
		{
			name:  "not excavated",
			obs:   []pixels.Observation{{MineID: 1, Location: loc, Date: date, Label: pixels.LabelAnomalous}},
			zones: []zones.Zone{veg},
		},
		{
			name:  "overlapping zones",
			obs:   []pixels.Observation{excavated(1, loc, date)},
			zones: []zones.Zone{water, veg},
			want:  []zones.Type{zones.TypeVegetation, zones.TypeWater},
		},
		{
			name:  "zone of another mine",
			obs:   []pixels.Observation{excavated(2, loc, date)},
			zones: []zones.Zone{veg},
		},
		{
			name:  "no zones",
			obs:   []pixels.Observation{excavated(1, loc, date)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := violations.Detect(tt.obs, tt.zones, 0)
			var got []zones.Type
			for _, r := range records {
				got = append(got, r.ZoneType)
				if r.Area != violations.DefaultPixelArea {
					t.Fatalf("area = %v, want %v", r.Area, violations.DefaultPixelArea)
				}
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("zone types mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAggregate(t *testing.T) {
	d1 := daterange.NewDate(2025, time.March, 1)
	d2 := d1.AddDays(21)
	records := []violations.Record{
		{MineID: 1, Date: d1, ZoneType: zones.TypeVegetation, Area: 100, Location: pixels.Location{Lat: 1}},
		{MineID: 1, Date: d1, ZoneType: zones.TypeVegetation, Area: 100, Location: pixels.Location{Lat: 2}},
		{MineID: 1, Date: d1, ZoneType: zones.TypeWater, Area: 100},
		{MineID: 1, Date: d2, ZoneType: zones.TypeVegetation, Area: 100},
	}
	got := violations.Aggregate(records)
	if len(got) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(got))
	}
	if got[0].Area != 200 || got[0].Pixels != 2 {
		t.Fatalf("unexpected first group: %+v", got[0])
	}
}
