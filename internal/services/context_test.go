package services_test

import (
	"context"
	"testing"

	"minewatch/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithMineID(ctx, 42)
	ctx = services.WithTaskID(ctx, "task-1")
	ctx = services.WithStage(ctx, "scoring")
	ctx = services.WithRange(ctx, "2025-01-01..2025-02-01")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.MineIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("unexpected mine id: %v %v", id, ok)
	}
	if id, ok := services.TaskIDFromContext(ctx); !ok || id != "task-1" {
		t.Fatalf("unexpected task id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "scoring" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if label, ok := services.RangeFromContext(ctx); !ok || label != "2025-01-01..2025-02-01" {
		t.Fatalf("unexpected range: %v %v", label, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.MineIDFromContext(ctx); ok {
		t.Fatal("expected no mine id")
	}
}
