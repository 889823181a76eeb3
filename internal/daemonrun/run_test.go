package daemonrun

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"minewatch/internal/config"
	"minewatch/internal/imagery"
	"minewatch/internal/ipc"
	"minewatch/internal/logging"
	"minewatch/internal/pipeline"
	"minewatch/internal/testsupport"
)

func TestNewProviderSelectsKind(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	p, err := NewProvider(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("csv provider: %v", err)
	}
	if _, ok := p.(*imagery.CSVProvider); !ok {
		t.Fatalf("expected CSV provider, got %T", p)
	}

	cfg = testsupport.NewConfig(t, testsupport.WithHTTPProvider("http://127.0.0.1:9"))
	p, err = NewProvider(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("http provider: %v", err)
	}
	if _, ok := p.(*imagery.HTTPProvider); !ok {
		t.Fatalf("expected HTTP provider, got %T", p)
	}

	cfg.Provider.BaseURL = ""
	if _, err := NewProvider(cfg, logging.NewNop()); err == nil {
		t.Fatal("expected error for http provider without base url")
	}

	cfg.Provider.Kind = "ftp"
	if _, err := NewProvider(cfg, logging.NewNop()); err == nil {
		t.Fatal("expected error for unknown provider kind")
	}
}

func TestNewOrchestratorRunsAgainstCSV(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	scene := testsupport.DefaultScene(4)
	testsupport.WriteCSV(t, cfg.Paths.CSVDir, scene.MineID, scene.Observations())
	st := testsupport.MustOpenStore(t, cfg)
	catalog := testsupport.MustCatalog(t, scene.Mine())

	o, err := NewOrchestrator(cfg, catalog, st, logging.NewNop(), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	req, err := pipeline.NewRequest(scene.MineID, scene.Start.String(), scene.Last().String())
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	res, err := o.Run(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := len(scene.Observations()); res.Inserted.Observations != want {
		t.Fatalf("inserted %d observations, want %d", res.Inserted.Observations, want)
	}
}

func TestRunServesIPCUntilCancelled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	scene := testsupport.DefaultScene(8)
	testsupport.WriteCatalog(t, cfg.Paths.MinesFile, scene.Mine())
	cfg.Logging.Format = "json"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, Options{LogLevel: "warn"}) }()

	client := waitForClient(t, cfg.SocketPath(), done)
	status, err := client.Status()
	_ = client.Close()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Status.Running || status.Status.Mines != 1 {
		t.Fatalf("unexpected status %+v", status.Status)
	}
	if status.Status.PID != os.Getpid() {
		t.Fatalf("pid = %d, want %d", status.Status.PID, os.Getpid())
	}
	data, err := os.ReadFile(PIDPath(cfg))
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("unexpected pid file contents %q", data)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not shut down")
	}
	if _, err := os.Stat(PIDPath(cfg)); !os.IsNotExist(err) {
		t.Fatalf("expected pid file removed, stat err = %v", err)
	}
	if target, err := os.Readlink(cfg.LogPath()); err != nil || !strings.HasPrefix(filepath.Base(target), "minewatch-") {
		t.Fatalf("expected minewatch.log to point at the run log, got %q (%v)", target, err)
	}
}

func TestRunFailsWithoutCatalog(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Logging.Level = "error"
	if err := Run(context.Background(), cfg, Options{}); err == nil {
		t.Fatal("expected error for missing mine catalog")
	}
}

func TestRunRequiresConfig(t *testing.T) {
	var cfg *config.Config
	if err := Run(context.Background(), cfg, Options{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func waitForClient(t *testing.T, socket string, done <-chan error) *ipc.Client {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case err := <-done:
			t.Fatalf("daemon exited early: %v", err)
		default:
		}
		if client, err := ipc.Dial(socket); err == nil {
			return client
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("timed out waiting for daemon socket")
	return nil
}
