package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"

	"minewatch/internal/api"
	"minewatch/internal/config"
	"minewatch/internal/logging"
	"minewatch/internal/mines"
	"minewatch/internal/notifications"
	"minewatch/internal/pipeline"
	"minewatch/internal/store"
	"minewatch/internal/workflow"
	"minewatch/internal/zones"
)

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	catalog  *mines.Catalog
	workflow *workflow.Manager
	mines    *api.MineService
	logHub   *logging.StreamHub
	gatherer prometheus.Gatherer
	logPath  string

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.Summary
	DatabasePath string
	LockFilePath string
	LogPath      string
	Provider     string
	Mines        int
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithLogHub exposes hub through the /api/logs endpoint.
func WithLogHub(hub *logging.StreamHub) Option {
	return func(d *Daemon) {
		d.logHub = hub
	}
}

// WithGatherer serves metrics from g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(d *Daemon) {
		d.gatherer = g
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, catalog *mines.Catalog, wf *workflow.Manager, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || st == nil || catalog == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, catalog, and workflow manager")
	}
	det := cfg.Detection
	synth := zones.Synthesizer{
		UpperQuantile: det.ZoneQuantileUpper,
		LowerQuantile: det.ZoneQuantileLower,
		BufferDegrees: det.ZoneBufferDegrees,
		MinPoints:     det.ZoneMinPoints,
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		catalog:  catalog,
		workflow: wf,
		mines:    api.NewMineService(catalog, st, synth, det.PixelAreaM2),
		logPath:  cfg.LogPath(),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.gatherer == nil {
		d.gatherer = prometheus.DefaultGatherer
	}
	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = srv
	return d, nil
}

// Start acquires the daemon lock, launches the workflow manager, and starts
// the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another minewatch daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.workflow.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.workflow.Stop()
		d.abortStart()
		return err
	}

	d.running.Store(true)
	d.logger.Info("minewatch daemon started",
		logging.String("lock", d.lockPath),
		logging.String("database", d.store.Path()),
		logging.Int("mines", d.catalog.Len()),
		logging.String(logging.FieldEventType, "daemon_start"),
	)
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
			logging.String(logging.FieldImpact, "the next daemon start may report an existing instance"),
		)
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("minewatch daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Submit queues a pipeline invocation.
func (d *Daemon) Submit(req pipeline.Request) (workflow.Task, error) {
	return d.workflow.Submit(req)
}

// Run executes a pipeline invocation synchronously.
func (d *Daemon) Run(ctx context.Context, req pipeline.Request) (workflow.Task, error) {
	return d.workflow.Run(ctx, req)
}

// Task returns one task snapshot.
func (d *Daemon) Task(id string) (workflow.Task, error) {
	return d.workflow.Status(strings.TrimSpace(id))
}

// Tasks returns every tracked task, newest first.
func (d *Daemon) Tasks() []workflow.Task {
	return d.workflow.List()
}

// Mines returns the read-only mine query service.
func (d *Daemon) Mines() *api.MineService {
	return d.mines
}

// LogStream returns the in-memory log hub, if configured.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.logHub
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// APIAddress returns the bound HTTP address, or "" when the API is disabled
// or not started.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.Publish(ctx, notifications.EventTest, notifications.Payload{
		"sent_at": time.Now().Format(time.RFC3339),
	}); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Summary(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		LogPath:      d.logPath,
		Provider:     d.cfg.Provider.Kind,
		Mines:        d.catalog.Len(),
	}
}
