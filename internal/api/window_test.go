package api

import (
	"errors"
	"testing"
	"time"

	"minewatch/internal/daterange"
	"minewatch/internal/services"
)

func TestParseWindow(t *testing.T) {
	fallback := daterange.Range{
		Start: daterange.NewDate(2025, time.May, 1),
		End:   daterange.NewDate(2025, time.May, 30),
	}
	tests := []struct {
		name       string
		start, end string
		want       DateRange
	}{
		{"fallback", "", "", DateRange{"2025-05-01", "2025-05-30"}},
		{"both", "2025-01-01", "2025-01-31", DateRange{"2025-01-01", "2025-01-31"}},
		{"start only", "2025-05-10", "", DateRange{"2025-05-10", "2025-05-30"}},
		{"end only", "", "2025-05-20", DateRange{"2025-05-01", "2025-05-20"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWindow(tt.start, tt.end, fallback)
			if err != nil {
				t.Fatalf("ParseWindow: %v", err)
			}
			if FromRange(got) != tt.want {
				t.Fatalf("got %+v, want %+v", FromRange(got), tt.want)
			}
		})
	}
}

func TestParseWindowOpenEnded(t *testing.T) {
	got, err := ParseWindow("2025-02-01", "", daterange.Range{})
	if err != nil {
		t.Fatalf("ParseWindow: %v", err)
	}
	if got.Start.String() != "2025-02-01" || !got.End.IsZero() {
		t.Fatalf("expected open end, got %+v", got)
	}
}

func TestParseWindowRejectsInverted(t *testing.T) {
	for _, pair := range [][2]string{{"2025-03-01", "2025-02-01"}, {"20250101", ""}} {
		if _, err := ParseWindow(pair[0], pair[1], daterange.Range{}); !errors.Is(err, services.ErrInvalidDateRange) {
			t.Fatalf("%v: expected ErrInvalidDateRange, got %v", pair, err)
		}
	}
}

func TestLastDays(t *testing.T) {
	got := LastDays(time.Date(2025, time.March, 30, 15, 0, 0, 0, time.UTC), 30)
	if got.Start.String() != "2025-03-01" || got.End.String() != "2025-03-30" {
		t.Fatalf("unexpected window %s", got)
	}
	if got.Days() != 30 {
		t.Fatalf("expected 30 days, got %d", got.Days())
	}
}
