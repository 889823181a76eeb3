package logging

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestStreamHandlerCapturesSubjectFields(t *testing.T) {
	hub := NewStreamHub(100)
	logger := slog.New(NewStreamHandler(hub, slog.LevelInfo)).
		With(slog.String(FieldComponent, "pipeline")).
		With(slog.Int64(FieldMineID, 339), slog.String(FieldTaskID, "task-1"))

	logger.Info("range analysed", slog.String(FieldStage, "analysis"), slog.Int("flagged", 12))

	events, next := hub.Tail(10)
	if len(events) != 1 || next != 1 {
		t.Fatalf("expected 1 event, got %d (next %d)", len(events), next)
	}
	evt := events[0]
	if evt.MineID != 339 || evt.TaskID != "task-1" || evt.Stage != "analysis" || evt.Component != "pipeline" {
		t.Fatalf("unexpected subject fields: %+v", evt)
	}
	if evt.Fields["flagged"] != "12" {
		t.Fatalf("expected flagged field, got %+v", evt.Fields)
	}
	if evt.Level != "INFO" {
		t.Fatalf("level = %q", evt.Level)
	}
}

func TestStreamHandlerCallSiteOverridesWithAttrs(t *testing.T) {
	hub := NewStreamHub(10)
	logger := slog.New(NewStreamHandler(hub, nil)).With(slog.String(FieldStage, "original"))
	logger.Info("message", slog.String(FieldStage, "overridden"))

	events, _ := hub.Tail(1)
	if len(events) != 1 || events[0].Stage != "overridden" {
		t.Fatalf("expected call-site stage, got %+v", events)
	}
}

func TestStreamHandlerLevelAndNilHub(t *testing.T) {
	if _, ok := NewStreamHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler for nil hub")
	}
	h := NewStreamHandler(NewStreamHub(1), slog.LevelWarn)
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("info should be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("error should be enabled at warn level")
	}
}

func TestStreamHubCapacityAndFetch(t *testing.T) {
	hub := NewStreamHub(3)
	for i := 0; i < 5; i++ {
		hub.Publish(LogEvent{Message: "event"})
	}
	if first := hub.FirstSequence(); first != 3 {
		t.Fatalf("FirstSequence = %d, want 3", first)
	}

	events, next, err := hub.Fetch(context.Background(), 3, 10, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 2 || events[0].Sequence != 4 || next != 5 {
		t.Fatalf("unexpected fetch result: %+v next=%d", events, next)
	}

	events, _, err = hub.Fetch(context.Background(), 5, 10, false)
	if err != nil || len(events) != 0 {
		t.Fatalf("expected no new events, got %d (%v)", len(events), err)
	}
}

func TestStreamHubFetchWaitsForPublish(t *testing.T) {
	hub := NewStreamHub(10)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		time.Sleep(20 * time.Millisecond)
		hub.Publish(LogEvent{Message: "late"})
	}()

	events, _, err := hub.Fetch(ctx, 0, 10, true)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 1 || events[0].Message != "late" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestStreamHubFetchHonoursCancel(t *testing.T) {
	hub := NewStreamHub(10)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := hub.Fetch(ctx, 0, 10, true); err == nil {
		t.Fatal("expected context error")
	}
}

func TestLogEventMatches(t *testing.T) {
	evt := LogEvent{Level: "WARN", MineID: 12, TaskID: "abc"}
	tests := []struct {
		name   string
		mineID int64
		taskID string
		level  slog.Level
		want   bool
	}{
		{"no filters", 0, "", slog.LevelDebug, true},
		{"mine match", 12, "", slog.LevelInfo, true},
		{"mine mismatch", 13, "", slog.LevelInfo, false},
		{"task mismatch", 0, "xyz", slog.LevelInfo, false},
		{"level too high", 0, "", slog.LevelError, false},
	}
	for _, tt := range tests {
		if got := evt.Matches(tt.mineID, tt.taskID, tt.level); got != tt.want {
			t.Fatalf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}
