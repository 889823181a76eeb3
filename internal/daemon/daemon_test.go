package daemon

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"minewatch/internal/config"
	"minewatch/internal/daterange"
	"minewatch/internal/logging"
	"minewatch/internal/pipeline"
	"minewatch/internal/services"
	"minewatch/internal/store"
	"minewatch/internal/testsupport"
	"minewatch/internal/workflow"
)

const failingMine = 13

type stubRunner struct {
	mu    sync.Mutex
	calls []pipeline.Request
}

func (r *stubRunner) Run(_ context.Context, req pipeline.Request, reporter pipeline.Reporter) (pipeline.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, req)
	r.mu.Unlock()
	if req.MineID == failingMine {
		return pipeline.Result{}, services.Wrap(services.ErrProviderUnavailable, "analysis", "fetch", "sampling service unreachable", nil)
	}
	reporter.Report(pipeline.StageAnalysis, 50, "halfway")
	return pipeline.Result{MineID: req.MineID, Processed: []daterange.Range{req.Window}}, nil
}

type daemonHarness struct {
	cfg      *config.Config
	store    *store.Store
	scene    testsupport.Scene
	runner   *stubRunner
	hub      *logging.StreamHub
	registry *prometheus.Registry
	daemon   *Daemon
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *daemonHarness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	h := &daemonHarness{
		cfg:      cfg,
		store:    testsupport.MustOpenStore(t, cfg),
		scene:    testsupport.DefaultScene(21),
		runner:   &stubRunner{},
		hub:      logging.NewStreamHub(64),
		registry: prometheus.NewRegistry(),
	}
	h.daemon = h.newDaemon(t)
	return h
}

func (h *daemonHarness) newDaemon(t *testing.T) *Daemon {
	t.Helper()
	wf := workflow.NewManager(h.cfg, h.runner, logging.NewNop())
	catalog := testsupport.MustCatalog(t, h.scene.Mine())
	d, err := New(h.cfg, h.store, catalog, wf, logging.NewNop(), WithLogHub(h.hub), WithGatherer(h.registry))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func TestDaemonSingleInstance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.daemon.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !h.daemon.Status().Running {
		t.Fatal("expected running status")
	}
	if h.daemon.APIAddress() == "" {
		t.Fatal("expected bound api address")
	}

	second := h.newDaemon(t)
	err := second.Start(ctx)
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock contention error, got %v", err)
	}

	h.daemon.Stop()
	if h.daemon.Status().Running {
		t.Fatal("expected stopped status")
	}
	if err := second.Start(ctx); err != nil {
		t.Fatalf("start after release: %v", err)
	}
	second.Stop()
}

func TestDaemonStatusReportsConfiguration(t *testing.T) {
	h := newHarness(t)
	st := h.daemon.Status()
	if st.Running {
		t.Fatal("daemon should not report running before Start")
	}
	if st.Mines != 1 || st.Provider != config.ProviderCSV {
		t.Fatalf("unexpected status %+v", st)
	}
	if st.DatabasePath != h.cfg.DatabasePath() || st.LockFilePath != h.cfg.LockPath() {
		t.Fatalf("unexpected paths %+v", st)
	}
}

func TestDaemonSubmitCompletes(t *testing.T) {
	h := newHarness(t)
	if err := h.daemon.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	req, err := pipeline.NewRequest(h.scene.MineID, "2024-01-01", "2024-03-01")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	task, err := h.daemon.Submit(req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := h.daemon.Task(task.ID)
		if err != nil {
			t.Fatalf("task: %v", err)
		}
		if got.Status.Finished() {
			if got.Status != workflow.StatusCompleted {
				t.Fatalf("expected completed task, got %+v", got)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("task did not finish: %+v", got)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(h.daemon.Tasks()) != 1 {
		t.Fatalf("expected one tracked task")
	}
}

func TestDaemonTestNotificationWithoutTopic(t *testing.T) {
	h := newHarness(t)
	sent, message, err := h.daemon.TestNotification(context.Background())
	if err != nil || sent {
		t.Fatalf("expected skipped notification, got sent=%v err=%v", sent, err)
	}
	if !strings.Contains(message, "not configured") {
		t.Fatalf("unexpected message %q", message)
	}
}
