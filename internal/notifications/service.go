package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"minewatch/internal/config"
)

const userAgent = "Minewatch-Go/0.1.0"

// Event identifies a notification type.
type Event string

const (
	// EventAlert reports a newly classified violation alert.
	EventAlert Event = "alert"
	// EventPipelineCompleted reports a finished pipeline invocation.
	EventPipelineCompleted Event = "pipeline_completed"
	// EventError reports a failed pipeline invocation or daemon error.
	EventError Event = "error"
	// EventTest is sent by `minewatch notify test`.
	EventTest Event = "test"
)

// Payload carries event-specific values keyed by name.
type Payload map[string]any

// Service publishes workflow events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		alerts:   cfg.Notifications.Alerts,
		pipeline: cfg.Notifications.Pipeline,
		errors:   cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client

	alerts   bool
	pipeline bool
	errors   bool
}

// Publish formats and sends an event. Events disabled in configuration, and
// persistent alerts, are dropped without error.
func (n *ntfyService) Publish(ctx context.Context, event Event, p Payload) error {
	var (
		data payload
		ok   bool
	)
	switch event {
	case EventAlert:
		if !n.alerts {
			return nil
		}
		data, ok = alertPayload(p)
	case EventPipelineCompleted:
		if !n.pipeline {
			return nil
		}
		data, ok = completedPayload(p), true
	case EventError:
		if !n.errors {
			return nil
		}
		data, ok = errorPayload(p), true
	case EventTest:
		data = payload{
			title:    "Minewatch - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"minewatch", "test"},
			priority: "low",
		}
		ok = true
	}
	if !ok {
		return nil
	}
	return n.send(ctx, data)
}

func alertPayload(p Payload) (payload, bool) {
	kind := p.Text("kind")
	var priority string
	switch kind {
	case "first":
		priority = "high"
	case "expansion":
	default:
		return payload{}, false
	}
	label := p.Text("label")
	if label == "" {
		label = kind
	}
	message := fmt.Sprintf("⚠️ Mine #%d: %s in %s on %s (%s m²)",
		p.Int64("mine"), label, p.Text("zone"), p.Text("date"), formatArea(p.Float("area")))
	return payload{
		title:    "Minewatch - " + label,
		message:  message,
		tags:     []string{"minewatch", "alert", kind},
		priority: priority,
	}, true
}

func completedPayload(p Payload) payload {
	duration := p.Duration("duration").Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	mine := p.Int64("mine")
	if p.Bool("skipped") {
		return payload{
			title:   "Minewatch - Up To Date",
			message: fmt.Sprintf("Mine #%d: requested window already stored", mine),
			tags:    []string{"minewatch", "pipeline", "skipped"},
		}
	}
	return payload{
		title: "Minewatch - Pipeline Complete",
		message: fmt.Sprintf("✅ Mine #%d: %d ranges, %d observations, %d violations, %d alerts in %s",
			mine, p.Int64("ranges"), p.Int64("observations"), p.Int64("violations"), p.Int64("alerts"), duration),
		tags: []string{"minewatch", "pipeline", "completed"},
	}
}

func errorPayload(p Payload) payload {
	var builder strings.Builder
	builder.WriteString("❌ Error")
	if contextLabel := p.Text("context"); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if msg := p.Text("error"); msg != "" {
		builder.WriteString(msg)
	} else {
		builder.WriteString("unknown")
	}
	return payload{
		title:    "Minewatch - Error",
		message:  builder.String(),
		tags:     []string{"minewatch", "error", "alert"},
		priority: "high",
	}
}

func formatArea(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.1f", v)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
