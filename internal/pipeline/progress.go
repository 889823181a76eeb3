package pipeline

import (
	"log/slog"
	"sync"

	"minewatch/internal/logging"
)

// Stage names reported with progress updates.
const (
	StageQueued    = "queued"
	StageResolve   = "resolve"
	StageAnalysis  = "analysis"
	StageZones     = "zones"
	StagePersist   = "persist"
	StageAlerts    = "alerts"
	StageCompleted = "completed"
)

// Progress checkpoints on the 0-100 scale. Resolved ranges split
// [progressResolved, progressRangesEnd] evenly.
const (
	progressQueued      = 5
	progressResolved    = 10
	progressRangesEnd   = 95
	progressCompleted   = 100
	progressRangesShare = progressRangesEnd - progressResolved
)

// Reporter receives progress updates from a running invocation.
type Reporter interface {
	Report(stage string, percent float64, message string)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(stage string, percent float64, message string)

// Report implements Reporter.
func (f ReporterFunc) Report(stage string, percent float64, message string) {
	f(stage, percent, message)
}

// tracker clamps progress so callers never observe it decreasing, and
// samples the debug log so long runs do not flood it.
type tracker struct {
	mu      sync.Mutex
	next    Reporter
	logger  *slog.Logger
	sampler *logging.ProgressSampler
	last    float64
}

func newTracker(next Reporter, logger *slog.Logger) *tracker {
	return &tracker{next: next, logger: logger, sampler: logging.NewProgressSampler(10)}
}

func (t *tracker) report(stage string, percent float64, message string) {
	t.mu.Lock()
	if percent < t.last {
		percent = t.last
	}
	if percent > progressCompleted {
		percent = progressCompleted
	}
	t.last = percent
	emit := t.sampler.ShouldLog(percent, stage)
	t.mu.Unlock()

	if emit && t.logger != nil {
		t.logger.Debug("pipeline progress",
			logging.String(logging.FieldStage, stage),
			logging.Float64("percent", percent),
			logging.String("message", message),
		)
	}
	if t.next != nil {
		t.next.Report(stage, percent, message)
	}
}

// share maps step i of n (0-based) with part of it done onto
// [base, base+width].
func share(base, width float64, i, n int, part float64) float64 {
	if n <= 0 {
		return base + width
	}
	return base + width*(float64(i)+part)/float64(n)
}
