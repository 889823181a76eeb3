package api

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"minewatch/internal/alerts"
	"minewatch/internal/daterange"
	"minewatch/internal/pipeline"
	"minewatch/internal/store"
	"minewatch/internal/workflow"
	"minewatch/internal/zones"
)

func TestFromTask(t *testing.T) {
	created := time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)
	finished := created.Add(90 * time.Second)
	window := daterange.Range{Start: daterange.NewDate(2025, time.January, 1), End: daterange.NewDate(2025, time.March, 31)}
	task := workflow.Task{
		ID:        "abc",
		MineID:    4,
		Window:    window,
		Status:    workflow.StatusCompleted,
		Stage:     pipeline.StageCompleted,
		Progress:  100,
		CreatedAt: created,
		UpdatedAt: finished,
		Result: &pipeline.Result{
			MineID:       4,
			Processed:    []daterange.Range{window},
			Inserted:     store.Counts{Observations: 12, Violations: 3, Alerts: 2},
			AlertsByKind: map[alerts.Kind]int{alerts.KindFirst: 1, alerts.KindPersistent: 1},
		},
		FinishedAt: &finished,
	}

	got := FromTask(task)
	want := Task{
		ID:       "abc",
		MineID:   4,
		Window:   DateRange{"2025-01-01", "2025-03-31"},
		Status:   "completed",
		Progress: TaskProgress{Stage: "completed", Percent: 100},
		Result: &PipelineResult{
			MineID:       4,
			Processed:    []DateRange{{"2025-01-01", "2025-03-31"}},
			Inserted:     InsertedCounts{Observations: 12, Violations: 3, Alerts: 2},
			AlertsByKind: map[string]int{"first": 1, "persistent": 1},
		},
		CreatedAt:  "2025-06-01T10:00:00.000Z",
		UpdatedAt:  "2025-06-01T10:01:30.000Z",
		FinishedAt: "2025-06-01T10:01:30.000Z",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("FromTask mismatch (-want +got):\n%s", diff)
	}
}

func TestFromKPIFillsEveryKind(t *testing.T) {
	latest := daterange.NewDate(2025, time.April, 2)
	kpi := store.KPI{
		MineID:        9,
		Excavated:     3,
		ViolationArea: map[zones.Type]float64{zones.TypeWater: 200},
		Alerts:        map[alerts.Kind]int{alerts.KindExpansion: 2},
		LatestAlert:   &latest,
	}
	got := FromKPI(kpi, 100)
	if got.ExcavatedAreaM2 != 300 {
		t.Fatalf("excavated area = %v, want 300", got.ExcavatedAreaM2)
	}
	wantAlerts := map[string]int{"first": 0, "expansion": 2, "persistent": 0}
	if diff := cmp.Diff(wantAlerts, got.Alerts); diff != "" {
		t.Fatalf("alerts mismatch (-want +got):\n%s", diff)
	}
	if got.ViolationAreaM2["water"] != 200 || got.LatestAlert != "2025-04-02" {
		t.Fatalf("unexpected kpi %+v", got)
	}
}

func TestFromSummaryIncludesAllStatuses(t *testing.T) {
	got := FromSummary(workflow.Summary{Running: true, Tasks: map[workflow.Status]int{workflow.StatusFailed: 2}})
	want := map[string]int{"queued": 0, "processing": 0, "completed": 0, "failed": 2}
	if diff := cmp.Diff(want, got.Tasks); diff != "" {
		t.Fatalf("tasks mismatch (-want +got):\n%s", diff)
	}
}

func TestSortedKinds(t *testing.T) {
	got := SortedKinds(map[string]int{"persistent": 1, "zeta": 1, "first": 2, "alpha": 1})
	want := []string{"first", "persistent", "alpha", "zeta"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}
