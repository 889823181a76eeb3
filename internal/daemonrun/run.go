package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"minewatch/internal/config"
	"minewatch/internal/daemon"
	"minewatch/internal/fileutil"
	"minewatch/internal/ipc"
	"minewatch/internal/logging"
	"minewatch/internal/mines"
	"minewatch/internal/preflight"
	"minewatch/internal/store"
	"minewatch/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides logging.level from the config when set.
	LogLevel    string
	Development bool
}

// Run starts the minewatch daemon and blocks until SIGINT, SIGTERM, or
// cmdCtx cancellation.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("minewatch-%s.log", runID))
	logHub := logging.NewStreamHub(4096)

	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		Stream:           logHub,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.LogPath(), logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update minewatch.log link: %v\n", err)
	}
	if removed := logging.PruneLogs(logger, cfg.Paths.LogDir, "minewatch-*.log", cfg.Logging.RetentionDays, logPath); removed > 0 {
		logger.Info("pruned old daemon logs", logging.Int("removed", removed))
	}

	logPreflight(logger, preflight.RunAll(signalCtx, cfg))

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return err
	}
	defer st.Close()

	catalog, err := mines.LoadCatalog(cfg.Paths.MinesFile)
	if err != nil {
		logger.Error("load mine catalog", logging.Error(err), logging.String("path", cfg.Paths.MinesFile))
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	orchestrator, err := NewOrchestrator(cfg, catalog, st, logger, registry)
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}
	workflowManager := workflow.NewManager(cfg, orchestrator, logger)

	d, err := daemon.New(cfg, st, catalog, workflowManager, logger,
		daemon.WithLogHub(logHub),
		daemon.WithGatherer(registry),
	)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.WarnWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another running daemon and the API bind address"),
			logging.String(logging.FieldImpact, "pipeline requests will be rejected"),
		)
		return err
	}
	defer d.Stop()

	pidPath := PIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	logger.Info("minewatch daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.Int("mines", catalog.Len()),
		logging.String("provider", cfg.Provider.Kind),
		logging.String("socket", cfg.SocketPath()),
		logging.String("api", d.APIAddress()),
	)

	<-signalCtx.Done()
	logger.Info("minewatch daemon shutting down")
	return nil
}

// PIDPath returns the daemon pid file location.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, "minewatchd.pid")
}

func logPreflight(logger *slog.Logger, results []preflight.Result) {
	for _, r := range results {
		if r.Passed {
			logger.Info("preflight check passed",
				logging.String(logging.FieldEventType, "preflight_passed"),
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
			)
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "fix the reported path or sampling service before submitting requests"),
			logging.String(logging.FieldImpact, "pipeline requests may fail until resolved"),
		)
	}
}

func ensureCurrentLogPointer(current, target string) error {
	if current == "" || target == "" {
		return nil
	}
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return fileutil.WriteFile(path, []byte(value))
}
