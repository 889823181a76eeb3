package testsupport

import (
	"path/filepath"
	"testing"

	"minewatch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.CSVDir = filepath.Join(base, "samples")
	cfgVal.Paths.MinesFile = filepath.Join(base, "mines.geojson")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Notifications.NtfyTopic = ""
	// Small forests keep pipeline tests fast.
	cfgVal.Detection.Trees = 50

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithAPIToken sets the bearer token required by the daemon API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithHTTPProvider switches the imagery provider to the sampling service at baseURL.
func WithHTTPProvider(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Provider.Kind = config.ProviderHTTP
		b.cfg.Provider.BaseURL = baseURL
		b.cfg.Provider.RatePerSecond = 0
	}
}

// WithDetection applies fn to the detection section.
func WithDetection(fn func(*config.Detection)) ConfigOption {
	return func(b *configBuilder) {
		fn(&b.cfg.Detection)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
