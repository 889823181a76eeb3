package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"minewatch/internal/config"
	"minewatch/internal/daemon"
	"minewatch/internal/daemonrun"
	"minewatch/internal/ipc"
	"minewatch/internal/logging"
	"minewatch/internal/testsupport"
	"minewatch/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	scene      testsupport.Scene
	configPath string
	socketPath string
	daemon     *daemon.Daemon
}

// newCLIConfig writes a config file, mine catalog, and CSV samples for one
// scene under a temp directory.
func newCLIConfig(t *testing.T) *cliTestEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Logging.Level = "error"
	scene := testsupport.DefaultScene(31)
	testsupport.WriteCatalog(t, cfg.Paths.MinesFile, scene.Mine())
	testsupport.WriteCSV(t, cfg.Paths.CSVDir, scene.MineID, scene.Observations())

	env := &cliTestEnv{
		cfg:        cfg,
		scene:      scene,
		configPath: filepath.Join(testsupport.BaseDir(cfg), "config.toml"),
		socketPath: cfg.SocketPath(),
	}
	writeConfig(t, env)
	return env
}

func writeConfig(t *testing.T, env *cliTestEnv) {
	t.Helper()
	data, err := toml.Marshal(env.cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(env.configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// setupCLITestEnv additionally starts an in-process daemon with the real
// pipeline, HTTP API, and IPC server.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	env := newCLIConfig(t)
	cfg := env.cfg

	hub := logging.NewStreamHub(256)
	logger, err := logging.New(logging.Options{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{cfg.LogPath()},
		Stream:      hub,
	})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	st := testsupport.MustOpenStore(t, cfg)
	catalog := testsupport.MustCatalog(t, env.scene.Mine())
	orchestrator, err := daemonrun.NewOrchestrator(cfg, catalog, st, logger, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	mgr := workflow.NewManager(cfg, orchestrator, logger)
	d, err := daemon.New(cfg, st, catalog, mgr, logger, daemon.WithLogHub(hub))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon start: %v", err)
	}
	srv, err := ipc.NewServer(ctx, env.socketPath, d, logger)
	if err != nil {
		cancel()
		d.Stop()
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Stop()
	})

	env.daemon = d
	return env
}

func (e *cliTestEnv) start() string { return e.scene.Start.String() }
func (e *cliTestEnv) end() string   { return e.scene.Last().String() }

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--socket", env.socketPath, "--config", env.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
