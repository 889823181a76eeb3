package pixels_test

import (
	"math"
	"testing"
	"time"

	"minewatch/internal/daterange"
	"minewatch/internal/pixels"
)

func obs(mine int64, lat, lon float64, day int) pixels.Observation {
	return pixels.Observation{
		MineID:   mine,
		Location: pixels.Location{Lat: lat, Lon: lon},
		Date:     daterange.NewDate(2025, time.January, day),
	}
}

func TestSortByLocationDate(t *testing.T) {
	items := []pixels.Observation{
		obs(2, 1, 1, 1),
		obs(1, 2, 1, 5),
		obs(1, 1, 2, 3),
		obs(1, 1, 2, 1),
	}
	pixels.SortByLocationDate(items)

	want := []struct {
		mine int64
		lat  float64
		lon  float64
		day  int
	}{
		{1, 1, 2, 1},
		{1, 1, 2, 3},
		{1, 2, 1, 5},
		{2, 1, 1, 1},
	}
	for i, w := range want {
		got := items[i]
		if got.MineID != w.mine || got.Location.Lat != w.lat || got.Location.Lon != w.lon || got.Date.Time().Day() != w.day {
			t.Fatalf("position %d: got %+v", i, got)
		}
	}
}

func TestDedupeKeepsFirst(t *testing.T) {
	a := obs(1, 1, 1, 1)
	a.Score = 1
	b := obs(1, 1, 1, 1)
	b.Score = 2
	out := pixels.Dedupe([]pixels.Observation{a, b, obs(1, 1, 1, 2)})
	if len(out) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(out))
	}
	if out[0].Score != 1 {
		t.Fatalf("expected first occurrence kept, got score %v", out[0].Score)
	}
}

func TestBandsFinite(t *testing.T) {
	if !(pixels.Bands{B4: 1, B8: 2, B11: 3, NDVI: 0.1, NBR: 0.2}).Finite() {
		t.Fatal("expected finite bands")
	}
	if (pixels.Bands{NDVI: math.NaN()}).Finite() {
		t.Fatal("expected NaN to be rejected")
	}
	if (pixels.Bands{B8: math.Inf(1)}).Finite() {
		t.Fatal("expected Inf to be rejected")
	}
}

func TestBoundsAndDates(t *testing.T) {
	items := []pixels.Observation{obs(1, 0, 0, 9), obs(1, 0, 0, 2), obs(1, 1, 1, 9)}
	r, ok := pixels.Bounds(items)
	if !ok {
		t.Fatal("expected bounds")
	}
	if r.String() != "2025-01-02..2025-01-09" {
		t.Fatalf("unexpected bounds %s", r)
	}
	dates := pixels.Dates(items)
	if len(dates) != 2 || dates[0].String() != "2025-01-02" {
		t.Fatalf("unexpected dates %v", dates)
	}
	if _, ok := pixels.Bounds(nil); ok {
		t.Fatal("expected no bounds for empty input")
	}
}
