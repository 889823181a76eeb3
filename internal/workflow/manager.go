package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"minewatch/internal/config"
	"minewatch/internal/logging"
	"minewatch/internal/pipeline"
	"minewatch/internal/services"
)

// Runner executes one pipeline invocation.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request, reporter pipeline.Reporter) (pipeline.Result, error)
}

// Manager schedules pipeline invocations and tracks their status.
type Manager struct {
	runner   Runner
	logger   *slog.Logger
	registry *registry
	sem      *semaphore.Weighted

	ttl             time.Duration
	janitorInterval time.Duration

	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithClock overrides the time source used for task timestamps.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.registry.now = now
		}
	}
}

// NewManager constructs a workflow manager around runner.
func NewManager(cfg *config.Config, runner Runner, logger *slog.Logger, opts ...ManagerOption) *Manager {
	limit := int64(config.Default().Pipeline.MaxConcurrentTasks)
	ttl := time.Hour
	interval := time.Minute
	if cfg != nil {
		if cfg.Pipeline.MaxConcurrentTasks > 0 {
			limit = int64(cfg.Pipeline.MaxConcurrentTasks)
		}
		ttl = cfg.TaskTTL()
		interval = cfg.JanitorInterval()
	}
	m := &Manager{
		runner:          runner,
		logger:          logging.NewComponentLogger(logger, "workflow"),
		registry:        newRegistry(time.Now),
		sem:             semaphore.NewWeighted(limit),
		ttl:             ttl,
		janitorInterval: interval,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the janitor and allows Submit. The context bounds every
// submitted task.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	if m.runner == nil {
		return services.Wrap(services.ErrConfiguration, "workflow", "start", "pipeline runner not configured", nil)
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.running = true

	m.wg.Add(1)
	go m.runJanitor(m.ctx)
	return nil
}

// Stop cancels running tasks and waits for them to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Running reports whether Start has been called without a matching Stop.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Submit validates req, registers a queued task, and runs it in the
// background. The returned snapshot carries the task id.
func (m *Manager) Submit(req pipeline.Request) (Task, error) {
	if err := req.Validate(); err != nil {
		return Task{}, err
	}
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return Task{}, services.Wrap(services.ErrConfiguration, "workflow", "submit", "workflow not running", nil)
	}
	ctx := m.ctx
	id := uuid.NewString()
	task := m.registry.add(id, req)
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info("task submitted",
		logging.String(logging.FieldTaskID, id),
		logging.Int64(logging.FieldMineID, req.MineID),
		logging.String("window", req.Window.String()),
		logging.String(logging.FieldEventType, "task_submitted"),
	)
	go func() {
		defer m.wg.Done()
		_, _ = m.execute(ctx, id, req)
	}()
	return task, nil
}

// Run registers a task and executes it on the calling goroutine. The task
// snapshot is returned even when the invocation fails.
func (m *Manager) Run(ctx context.Context, req pipeline.Request) (Task, error) {
	if err := req.Validate(); err != nil {
		return Task{}, err
	}
	if m.runner == nil {
		return Task{}, services.Wrap(services.ErrConfiguration, "workflow", "run", "pipeline runner not configured", nil)
	}
	id := uuid.NewString()
	m.registry.add(id, req)
	return m.execute(ctx, id, req)
}

// Status returns the snapshot of one task.
func (m *Manager) Status(id string) (Task, error) {
	return m.registry.get(id)
}

// List returns every tracked task, newest first.
func (m *Manager) List() []Task {
	return m.registry.list()
}

// Summary is a lightweight view of manager state.
type Summary struct {
	Running   bool           `json:"running"`
	Tasks     map[Status]int `json:"tasks"`
	LastError string         `json:"last_error,omitempty"`
}

// Summary returns counts by status and the most recent failure.
func (m *Manager) Summary() Summary {
	m.mu.RLock()
	s := Summary{Running: m.running}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	m.mu.RUnlock()
	s.Tasks = m.registry.counts()
	return s
}

func (m *Manager) execute(ctx context.Context, id string, req pipeline.Request) (Task, error) {
	ctx = services.WithTaskID(ctx, id)
	logger := logging.WithContext(ctx, m.logger).With(logging.Int64(logging.FieldMineID, req.MineID))

	if err := m.sem.Acquire(ctx, 1); err != nil {
		err = services.Wrap(services.ErrTimeout, "workflow", "acquire", "cancelled while queued", err)
		m.fail(id, logger, err)
		task, _ := m.registry.get(id)
		return task, err
	}
	defer m.sem.Release(1)

	m.registry.update(id, func(t *Task) {
		t.Status = StatusProcessing
		t.Stage = pipeline.StageResolve
	})
	logger.Info("task started", logging.String(logging.FieldEventType, "task_start"))

	req.RequestID = id
	reporter := pipeline.ReporterFunc(func(stage string, percent float64, message string) {
		m.registry.update(id, func(t *Task) {
			t.Stage = stage
			t.Progress = percent
			t.Message = message
		})
	})
	result, err := m.runner.Run(ctx, req, reporter)
	if err != nil {
		m.fail(id, logger, err)
		task, _ := m.registry.get(id)
		return task, err
	}

	m.registry.update(id, func(t *Task) {
		t.Status = StatusCompleted
		t.Stage = pipeline.StageCompleted
		t.Progress = 100
		t.Result = &result
		if result.Skipped {
			t.Message = "already up to date"
		}
	})
	logger.Info("task completed",
		logging.String(logging.FieldEventType, "task_complete"),
		logging.Bool("skipped", result.Skipped),
	)
	task, _ := m.registry.get(id)
	return task, nil
}

func (m *Manager) fail(id string, logger *slog.Logger, err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()

	m.registry.update(id, func(t *Task) {
		t.Status = StatusFailed
		t.Progress = 0
		t.Error = err.Error()
		t.Retryable = services.Retryable(err)
	})
	if errors.Is(err, context.Canceled) {
		logger.Debug("task cancelled during shutdown", logging.Error(err))
		return
	}
	logger.Warn("task failed",
		logging.Error(err),
		logging.String(logging.FieldEventType, "task_failure"),
		logging.Alert("task_failure"),
		logging.String(logging.FieldErrorHint, "inspect the task error and resubmit if retryable"),
		logging.String(logging.FieldImpact, "no further ranges were processed for this request"),
	)
}
