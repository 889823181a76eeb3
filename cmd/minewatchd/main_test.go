package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestCommandFailsWithoutMineCatalog(t *testing.T) {
	base := t.TempDir()
	path := writeConfig(t, fmt.Sprintf(`
[paths]
data_dir = %q
log_dir = %q
mines_file = %q
csv_dir = %q
`, filepath.Join(base, "data"), filepath.Join(base, "logs"), filepath.Join(base, "mines.geojson"), filepath.Join(base, "samples")))

	cmd := newCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", path, "--log-level", "error"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error without a mine catalog")
	}
}

func TestCommandRejectsMalformedConfig(t *testing.T) {
	path := writeConfig(t, "[paths\n")
	cmd := newCommand()
	cmd.SetArgs([]string{"--config", path})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Fatalf("expected load config error, got %v", err)
	}
}

func TestCommandRejectsArgs(t *testing.T) {
	cmd := newCommand()
	cmd.SetArgs([]string{"extra"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for positional arguments")
	}
}
