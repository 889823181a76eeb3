package services

import "context"

type contextKey string

const (
	mineIDKey    contextKey = "mine_id"
	taskIDKey    contextKey = "task_id"
	stageKey     contextKey = "stage"
	rangeKey     contextKey = "range"
	requestIDKey contextKey = "request_id"
)

// WithMineID annotates context with the mine identifier.
func WithMineID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, mineIDKey, id)
}

// MineIDFromContext extracts the mine identifier if present.
func MineIDFromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(mineIDKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}

// WithTaskID annotates context with the pipeline task identifier.
func WithTaskID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, taskIDKey, id)
}

// TaskIDFromContext returns the pipeline task identifier if present.
func TaskIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(taskIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRange annotates context with the date range being processed (e.g. 2025-01-01..2025-02-01).
func WithRange(ctx context.Context, label string) context.Context {
	if label == "" {
		return ctx
	}
	return context.WithValue(ctx, rangeKey, label)
}

// RangeFromContext returns the range label if present.
func RangeFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(rangeKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
