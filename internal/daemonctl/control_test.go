package daemonctl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"minewatch/internal/api"
	"minewatch/internal/daemonrun"
	"minewatch/internal/preflight"
	"minewatch/internal/testsupport"
)

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "minewatchd.pid")

	pid, err := ReadPID(path)
	if err != nil || pid != 0 {
		t.Fatalf("missing pid file: got %d, %v", pid, err)
	}

	if err := os.WriteFile(path, []byte("4242\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if pid, err = ReadPID(path); err != nil || pid != 4242 {
		t.Fatalf("got %d, %v; want 4242", pid, err)
	}

	if err := os.WriteFile(path, []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadPID(path); err == nil {
		t.Fatal("expected malformed pid error")
	}
}

func TestSignalProcessRefusesSelf(t *testing.T) {
	if err := SignalProcess(os.Getpid(), syscall.SIGTERM); err == nil || !strings.Contains(err.Error(), "refusing") {
		t.Fatalf("expected refusal, got %v", err)
	}
	if err := SignalProcess(0, syscall.SIGTERM); err == nil {
		t.Fatal("expected error for pid 0")
	}
}

func TestStopWhenNotRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, err := StopAndTerminate(cfg.SocketPath(), cfg, time.Second)
	if !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
	if err := WaitForShutdown(cfg.SocketPath(), time.Second); err != nil {
		t.Fatalf("WaitForShutdown without socket: %v", err)
	}
	alive, pid, err := ProcessInfo(cfg.SocketPath())
	if alive || pid != 0 || err != nil {
		t.Fatalf("ProcessInfo = %v, %d, %v", alive, pid, err)
	}
}

func TestBuildStatusSnapshotOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	scene := testsupport.DefaultScene(3)
	testsupport.WriteCatalog(t, cfg.Paths.MinesFile, scene.Mine())

	snap, err := BuildStatusSnapshot(context.Background(), cfg.SocketPath(), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if snap.Daemon.Running {
		t.Fatal("daemon should be reported as stopped")
	}
	if snap.Daemon.Mines != 1 || snap.Daemon.DatabasePath != cfg.DatabasePath() {
		t.Fatalf("unexpected offline status %+v", snap.Daemon)
	}
	if snap.System[0].Label != "Minewatch" || snap.System[0].Severity != "warn" {
		t.Fatalf("unexpected first system line %+v", snap.System[0])
	}
	for _, line := range snap.Checks {
		if line.Severity != "ok" {
			t.Fatalf("expected passing checks, got %+v", line)
		}
	}
}

func TestBuildSystemChecksRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = "mines"
	status := api.DaemonStatus{
		Running: true,
		PID:     99,
		Mines:   2,
		Workflow: api.WorkflowStatus{
			Running:   true,
			Tasks:     map[string]int{"completed": 3, "failed": 1},
			LastError: "provider unavailable",
		},
	}
	got := BuildSystemChecks(cfg, status, "127.0.0.1:7611")
	want := []StatusLine{
		{Label: "Minewatch", Severity: "ok", Detail: "Running (pid 99)"},
		{Label: "Tasks", Severity: "warn", Detail: "4 tracked; last error: provider unavailable"},
		{Label: "HTTP API", Severity: "ok", Detail: "127.0.0.1:7611"},
		{Label: "Mines", Severity: "ok", Detail: "2 in catalog"},
		{Label: "Provider", Severity: "info", Detail: "CSV samples in " + cfg.Paths.CSVDir},
		{Label: "Notifications", Severity: "ok", Detail: "Configured"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("system checks mismatch (-want +got):\n%s", diff)
	}
}

func TestPreflightLines(t *testing.T) {
	got := PreflightLines([]preflight.Result{
		{Name: "Data directory", Passed: true, Detail: "/data"},
		{Name: "Mine catalog", Passed: false, Detail: "missing"},
	})
	want := []StatusLine{
		{Label: "Data directory", Severity: "ok", Detail: "/data"},
		{Label: "Mine catalog", Severity: "error", Detail: "missing"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("preflight lines mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshotAndProcessInfoWhileRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Logging.Level = "error"
	scene := testsupport.DefaultScene(5)
	testsupport.WriteCatalog(t, cfg.Paths.MinesFile, scene.Mine())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- daemonrun.Run(ctx, cfg, daemonrun.Options{}) }()
	defer func() {
		cancel()
		<-done
	}()

	client, err := WaitForClient(cfg.SocketPath(), 10*time.Second)
	if err != nil {
		t.Fatalf("WaitForClient: %v", err)
	}
	_ = client.Close()

	alive, pid, err := ProcessInfo(cfg.SocketPath())
	if err != nil || !alive || pid != os.Getpid() {
		t.Fatalf("ProcessInfo = %v, %d, %v", alive, pid, err)
	}
	snap, err := BuildStatusSnapshot(context.Background(), cfg.SocketPath(), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if !snap.Daemon.Running || snap.APIAddress == "" {
		t.Fatalf("expected running daemon with API address, got %+v", snap)
	}
}
