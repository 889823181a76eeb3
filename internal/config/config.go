package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"minewatch/internal/fileutil"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory, catalog, and bind address configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	LogDir    string `toml:"log_dir"`
	MinesFile string `toml:"mines_file"`
	CSVDir    string `toml:"csv_dir"`
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
}

// Provider selects and configures the imagery sample source.
type Provider struct {
	Kind           string  `toml:"kind"`
	BaseURL        string  `toml:"base_url"`
	Token          string  `toml:"token"`
	RequestTimeout int     `toml:"request_timeout"`
	RatePerSecond  float64 `toml:"rate_per_second"`
	Burst          int     `toml:"burst"`
}

// Provider kinds.
const (
	ProviderCSV  = "csv"
	ProviderHTTP = "http"
)

// Detection contains the anomaly, zone, and violation thresholds.
type Detection struct {
	Trees             int     `toml:"trees"`
	SampleSize        int     `toml:"sample_size"`
	Seed              uint64  `toml:"seed"`
	ZoneQuantileUpper float64 `toml:"zone_quantile_upper"`
	ZoneQuantileLower float64 `toml:"zone_quantile_lower"`
	ZoneBufferDegrees float64 `toml:"zone_buffer_degrees"`
	ZoneMinPoints     int     `toml:"zone_min_points"`
	PixelAreaM2       float64 `toml:"pixel_area_m2"`
	MinWindowDays     int     `toml:"min_window_days"`
}

// Pipeline contains task execution limits.
type Pipeline struct {
	MaxConcurrentTasks     int `toml:"max_concurrent_tasks"`
	TaskTTLSeconds         int `toml:"task_ttl_seconds"`
	JanitorIntervalSeconds int `toml:"janitor_interval_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Alerts         bool   `toml:"alerts"`
	Pipeline       bool   `toml:"pipeline"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for Minewatch.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories, mine catalog, API bind address
//   - Provider: imagery sample source (csv replay or remote sampling service)
//   - Detection: isolation forest, zone synthesis, and violation parameters
//   - Pipeline: task concurrency and retention of finished task status
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Provider      Provider      `toml:"provider"`
	Detection     Detection     `toml:"detection"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/minewatch/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("minewatch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon and CLI operation.
// The CSV sample directory is only created when the csv provider is selected.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Provider.Kind == ProviderCSV && strings.TrimSpace(c.Paths.CSVDir) != "" {
		if err := os.MkdirAll(c.Paths.CSVDir, 0o755); err != nil {
			return fmt.Errorf("create csv directory %q: %w", c.Paths.CSVDir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "minewatch.db")
}

// LogPath returns the daemon log file location.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "minewatch.log")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "minewatchd.lock")
}

// SocketPath returns the daemon IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.DataDir, "minewatchd.sock")
}

// ProviderTimeout returns the imagery request timeout.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Provider.RequestTimeout) * time.Second
}

// TaskTTL returns how long finished task snapshots are retained.
func (c *Config) TaskTTL() time.Duration {
	return time.Duration(c.Pipeline.TaskTTLSeconds) * time.Second
}

// JanitorInterval returns how often expired task snapshots are evicted.
func (c *Config) JanitorInterval() time.Duration {
	return time.Duration(c.Pipeline.JanitorIntervalSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if err := fileutil.WriteFile(path, []byte(sampleConfig)); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
