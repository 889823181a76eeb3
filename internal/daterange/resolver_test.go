package daterange_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"minewatch/internal/daterange"
	"minewatch/internal/services"
)

func day(t *testing.T, value string) daterange.Date {
	t.Helper()
	d, err := daterange.ParseDate(value)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", value, err)
	}
	return d
}

func span(t *testing.T, start, end string) daterange.Range {
	t.Helper()
	return daterange.Range{Start: day(t, start), End: day(t, end)}
}

func TestResolve(t *testing.T) {
	stored := span(t, "2025-03-01", "2025-05-31")

	tests := []struct {
		name      string
		requested daterange.Range
		stored    *daterange.Range
		want      []string
	}{
		{
			name:      "inverted request",
			requested: span(t, "2025-02-01", "2025-01-01"),
			want:      nil,
		},
		{
			name:      "no stored range and short request",
			requested: span(t, "2025-01-01", "2025-01-20"),
			want:      nil,
		},
		{
			name:      "no stored range exactly minimum window",
			requested: span(t, "2025-01-01", "2025-01-21"),
			want:      []string{"2025-01-01..2025-01-21"},
		},
		{
			name:      "contained in stored",
			requested: span(t, "2025-03-10", "2025-04-10"),
			stored:    &stored,
			want:      nil,
		},
		{
			name:      "identical to stored",
			requested: stored,
			stored:    &stored,
			want:      nil,
		},
		{
			name:      "left gap only",
			requested: span(t, "2025-01-01", "2025-04-01"),
			stored:    &stored,
			want:      []string{"2025-01-01..2025-02-28"},
		},
		{
			name:      "right gap only",
			requested: span(t, "2025-04-01", "2025-08-01"),
			stored:    &stored,
			want:      []string{"2025-06-01..2025-08-01"},
		},
		{
			name:      "both gaps",
			requested: span(t, "2025-01-01", "2025-08-01"),
			stored:    &stored,
			want:      []string{"2025-01-01..2025-02-28", "2025-06-01..2025-08-01"},
		},
		{
			name:      "left gap too short",
			requested: span(t, "2025-02-15", "2025-08-01"),
			stored:    &stored,
			want:      []string{"2025-06-01..2025-08-01"},
		},
		{
			name:      "right gap too short",
			requested: span(t, "2025-01-01", "2025-06-10"),
			stored:    &stored,
			want:      []string{"2025-01-01..2025-02-28"},
		},
		{
			name:      "request entirely before stored",
			requested: span(t, "2024-10-01", "2024-12-31"),
			stored:    &stored,
			want:      []string{"2024-10-01..2024-12-31"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := daterange.Resolve(tt.requested, tt.stored)
			var labels []string
			for _, r := range got {
				labels = append(labels, r.String())
			}
			if diff := cmp.Diff(tt.want, labels); diff != "" {
				t.Fatalf("Resolve mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolvePropertiesOverGrid(t *testing.T) {
	base := daterange.NewDate(2025, time.January, 1)
	stored := daterange.Range{Start: base.AddDays(60), End: base.AddDays(120)}

	for startOffset := 0; startOffset <= 180; startOffset += 7 {
		for length := 1; length <= 200; length += 9 {
			requested := daterange.Range{Start: base.AddDays(startOffset), End: base.AddDays(startOffset + length - 1)}
			for _, storedPtr := range []*daterange.Range{nil, &stored} {
				got := daterange.Resolve(requested, storedPtr)
				for i, r := range got {
					if r.Days() < daterange.MinimumWindow {
						t.Fatalf("range %s shorter than minimum window", r)
					}
					if !requested.Covers(r) {
						t.Fatalf("range %s escapes request %s", r, requested)
					}
					if storedPtr != nil && r.Overlaps(*storedPtr) {
						t.Fatalf("range %s overlaps stored %s", r, storedPtr)
					}
					for j := i + 1; j < len(got); j++ {
						if r.Overlaps(got[j]) {
							t.Fatalf("ranges %s and %s overlap", r, got[j])
						}
					}
				}
				if storedPtr == nil && requested.Days() < daterange.MinimumWindow && len(got) != 0 {
					t.Fatalf("expected no ranges for short request %s, got %v", requested, got)
				}
			}
		}
	}
}

func TestParseRejectsInvalidInput(t *testing.T) {
	for _, tc := range [][2]string{
		{"2025-13-01", "2025-12-31"},
		{"yesterday", "2025-01-01"},
		{"2025-02-01", "2025-01-01"},
	} {
		if _, err := daterange.Parse(tc[0], tc[1]); !errors.Is(err, services.ErrInvalidDateRange) {
			t.Fatalf("Parse(%q, %q) error = %v, want ErrInvalidDateRange", tc[0], tc[1], err)
		}
	}

	r, err := daterange.Parse("2025-01-01", "2025-01-01")
	if err != nil {
		t.Fatalf("Parse single day: %v", err)
	}
	if r.Days() != 1 {
		t.Fatalf("expected single-day range, got %d days", r.Days())
	}
}

func TestDateTextRoundTrip(t *testing.T) {
	var d daterange.Date
	if err := d.UnmarshalText([]byte("2025-07-04")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	text, err := d.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	if string(text) != "2025-07-04" {
		t.Fatalf("unexpected text %q", text)
	}
}
