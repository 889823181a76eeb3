// Package logstream streams daemon logs for the CLI, preferring the HTTP log
// stream and falling back to IPC file tailing when the API is unreachable.
package logstream

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"minewatch/internal/api"
	"minewatch/internal/ipc"
	"minewatch/internal/logs"
)

// ErrFiltersRequireAPI is returned when structured filters are requested but
// only the raw log file is reachable.
var ErrFiltersRequireAPI = errors.New("log filters require API access")

const followPageSize = 200

// TailClient captures the IPC log tail contract used for fallback streaming.
type TailClient interface {
	LogTail(req ipc.LogTailRequest) (*ipc.LogTailResponse, error)
}

// Filters contains optional predicates. MineID, TaskID and Level need the
// API; Search also works against the raw log file.
type Filters struct {
	MineID int64
	TaskID string
	Level  string
	Search string
}

func (f Filters) structured() bool {
	return f.MineID != 0 || strings.TrimSpace(f.TaskID) != "" || strings.TrimSpace(f.Level) != ""
}

// Options controls stream behavior.
type Options struct {
	Lines   int
	Follow  bool
	Filters Filters
}

// Stream emits log events from the API when available, falling back to IPC
// tailing. It reports whether at least one event or line was emitted.
func Stream(
	ctx context.Context,
	apiClient *logs.StreamClient,
	fallback TailClient,
	opts Options,
	onEvent func(api.LogEvent),
	onLine func(string),
) (bool, error) {
	printed, err := streamAPI(ctx, apiClient, opts, onEvent)
	if err == nil {
		return printed, nil
	}
	if !logs.IsAPIUnavailable(err) {
		return printed, err
	}
	if opts.Filters.structured() {
		return false, fmt.Errorf("%w: %w", ErrFiltersRequireAPI, logs.ErrAPIUnavailable)
	}
	if fallback == nil {
		return false, logs.ErrAPIUnavailable
	}
	return streamFile(ctx, fallback, opts, onLine)
}

func streamAPI(ctx context.Context, client *logs.StreamClient, opts Options, onEvent func(api.LogEvent)) (bool, error) {
	query := logs.StreamQuery{
		Limit:  opts.Lines,
		Tail:   true,
		MineID: opts.Filters.MineID,
		TaskID: opts.Filters.TaskID,
		Level:  opts.Filters.Level,
	}
	if query.Limit <= 0 {
		query.Limit = followPageSize
	}
	search := strings.ToLower(strings.TrimSpace(opts.Filters.Search))

	printed := false
	for {
		resp, err := client.Fetch(ctx, query)
		if err != nil {
			if printed && ctx.Err() != nil {
				return printed, nil
			}
			return printed, err
		}
		for _, evt := range resp.Events {
			if search != "" && !strings.Contains(strings.ToLower(evt.Message), search) {
				continue
			}
			if onEvent != nil {
				onEvent(evt)
			}
			printed = true
		}
		if !opts.Follow {
			return printed, nil
		}
		query.Since = resp.Next
		query.Limit = followPageSize
		query.Tail = false
		query.Follow = true
	}
}

func streamFile(ctx context.Context, client TailClient, opts Options, onLine func(string)) (bool, error) {
	limit := max(opts.Lines, 0)
	offset := int64(-1)
	if limit == 0 {
		offset = 0
	}

	printed := false
	for {
		resp, err := client.LogTail(ipc.LogTailRequest{
			Offset:     offset,
			Limit:      limit,
			Follow:     opts.Follow,
			WaitMillis: 1000,
			Contains:   opts.Filters.Search,
		})
		if err != nil {
			return printed, fmt.Errorf("tail logs: %w", err)
		}
		if resp == nil {
			return printed, errors.New("log tail response missing")
		}
		for _, line := range resp.Lines {
			if onLine != nil {
				onLine(line)
			}
			printed = true
		}
		offset = resp.Offset
		limit = 0
		if !opts.Follow {
			return printed, nil
		}
		select {
		case <-ctx.Done():
			return printed, nil
		default:
		}
	}
}
