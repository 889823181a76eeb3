package workflow_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"minewatch/internal/config"
	"minewatch/internal/daterange"
	"minewatch/internal/logging"
	"minewatch/internal/pipeline"
	"minewatch/internal/services"
	"minewatch/internal/store"
	"minewatch/internal/testsupport"
	"minewatch/internal/workflow"
)

type stubRunner struct {
	release chan struct{}
	err     error

	active  atomic.Int32
	maxSeen atomic.Int32
	calls   atomic.Int32
}

func (s *stubRunner) Run(ctx context.Context, req pipeline.Request, reporter pipeline.Reporter) (pipeline.Result, error) {
	s.calls.Add(1)
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		seen := s.maxSeen.Load()
		if n <= seen || s.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	reporter.Report(pipeline.StageAnalysis, 35, "analysing")
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return pipeline.Result{}, ctx.Err()
		}
	}
	if s.err != nil {
		return pipeline.Result{}, s.err
	}
	return pipeline.Result{MineID: req.MineID, Inserted: store.Counts{Observations: 10}}, nil
}

func testRequest(t *testing.T) pipeline.Request {
	t.Helper()
	req, err := pipeline.NewRequest(7, "2024-01-01", "2024-03-31")
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	return req
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRunRecordsCompletedTask(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	mgr := workflow.NewManager(cfg, &stubRunner{}, logging.NewNop())

	task, err := mgr.Run(context.Background(), testRequest(t))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if task.Status != workflow.StatusCompleted || task.Progress != 100 {
		t.Fatalf("unexpected task %+v", task)
	}
	if task.Result == nil || task.Result.Inserted.Observations != 10 {
		t.Fatalf("expected result to be recorded, got %+v", task.Result)
	}
	if task.FinishedAt == nil {
		t.Fatal("expected finished timestamp")
	}

	got, err := mgr.Status(task.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if got.Status != workflow.StatusCompleted || got.MineID != 7 {
		t.Fatalf("unexpected status snapshot %+v", got)
	}
}

func TestRunRecordsFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runErr := services.Wrap(services.ErrProviderUnavailable, "analysis", "fetch", "", errors.New("connection refused"))
	mgr := workflow.NewManager(cfg, &stubRunner{err: runErr}, logging.NewNop())

	task, err := mgr.Run(context.Background(), testRequest(t))
	if !errors.Is(err, services.ErrProviderUnavailable) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if task.Status != workflow.StatusFailed || !task.Retryable || task.Error == "" {
		t.Fatalf("unexpected failed task %+v", task)
	}
	if task.Progress != 0 || task.Stage != pipeline.StageAnalysis {
		t.Fatalf("failed task should reset progress and keep the failing stage, got %v at %s", task.Progress, task.Stage)
	}
	if summary := mgr.Summary(); summary.Tasks[workflow.StatusFailed] != 1 || summary.LastError == "" {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestRunRejectsInvalidRequest(t *testing.T) {
	mgr := workflow.NewManager(testsupport.NewConfig(t), &stubRunner{}, logging.NewNop())
	bad := pipeline.Request{MineID: 1, Window: daterange.Range{
		Start: daterange.NewDate(2024, time.May, 1),
		End:   daterange.NewDate(2024, time.April, 1),
	}}
	if _, err := mgr.Run(context.Background(), bad); !errors.Is(err, services.ErrInvalidDateRange) {
		t.Fatalf("expected ErrInvalidDateRange, got %v", err)
	}
	if len(mgr.List()) != 0 {
		t.Fatal("rejected requests must not create tasks")
	}
}

func TestSubmitRequiresStart(t *testing.T) {
	mgr := workflow.NewManager(testsupport.NewConfig(t), &stubRunner{}, logging.NewNop())
	if _, err := mgr.Submit(testRequest(t)); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestSubmitBoundsConcurrency(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.MaxConcurrentTasks = 1
	runner := &stubRunner{release: make(chan struct{})}
	mgr := workflow.NewManager(cfg, runner, logging.NewNop())
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(mgr.Stop)

	var ids []string
	for range 3 {
		task, err := mgr.Submit(testRequest(t))
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if task.Status != workflow.StatusQueued || task.ID == "" {
			t.Fatalf("unexpected submitted task %+v", task)
		}
		ids = append(ids, task.ID)
	}

	waitFor(t, "one task processing", func() bool {
		return mgr.Summary().Tasks[workflow.StatusProcessing] == 1
	})
	if queued := mgr.Summary().Tasks[workflow.StatusQueued]; queued != 2 {
		t.Fatalf("expected 2 queued tasks, got %d", queued)
	}

	close(runner.release)
	waitFor(t, "all tasks completed", func() bool {
		return mgr.Summary().Tasks[workflow.StatusCompleted] == 3
	})
	if runner.maxSeen.Load() != 1 {
		t.Fatalf("expected at most one concurrent run, saw %d", runner.maxSeen.Load())
	}
	for _, id := range ids {
		task, err := mgr.Status(id)
		if err != nil || task.Status != workflow.StatusCompleted {
			t.Fatalf("task %s: %+v, %v", id, task, err)
		}
	}
}

func TestStopCancelsRunningTasks(t *testing.T) {
	runner := &stubRunner{release: make(chan struct{})}
	mgr := workflow.NewManager(testsupport.NewConfig(t), runner, logging.NewNop())
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	task, err := mgr.Submit(testRequest(t))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, "task processing", func() bool { return runner.calls.Load() == 1 })

	mgr.Stop()
	got, err := mgr.Status(task.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if got.Status != workflow.StatusFailed {
		t.Fatalf("expected cancelled task to fail, got %s", got.Status)
	}
	if mgr.Running() {
		t.Fatal("manager still running after Stop")
	}
}

func TestStatusUnknownTask(t *testing.T) {
	mgr := workflow.NewManager(testsupport.NewConfig(t), &stubRunner{}, logging.NewNop())
	if _, err := mgr.Status("missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestPruneRemovesExpiredTasks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.TaskTTLSeconds = 60
	clock := &fakeClock{now: time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)}
	mgr := workflow.NewManager(cfg, &stubRunner{}, logging.NewNop(), workflow.WithClock(clock.Now))

	old, err := mgr.Run(context.Background(), testRequest(t))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	clock.Advance(2 * time.Minute)
	recent, err := mgr.Run(context.Background(), testRequest(t))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if removed := mgr.Prune(); removed != 1 {
		t.Fatalf("pruned %d tasks, want 1", removed)
	}
	if _, err := mgr.Status(old.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected expired task to be gone, got %v", err)
	}
	if _, err := mgr.Status(recent.ID); err != nil {
		t.Fatalf("recent task should remain: %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)}
	mgr := workflow.NewManager(&config.Config{}, &stubRunner{}, logging.NewNop(), workflow.WithClock(clock.Now))

	first, _ := mgr.Run(context.Background(), testRequest(t))
	clock.Advance(time.Second)
	second, _ := mgr.Run(context.Background(), testRequest(t))

	tasks := mgr.List()
	if len(tasks) != 2 || tasks[0].ID != second.ID || tasks[1].ID != first.ID {
		t.Fatalf("unexpected order: %+v", tasks)
	}
}
