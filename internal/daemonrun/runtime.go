package daemonrun

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"minewatch/internal/config"
	"minewatch/internal/imagery"
	"minewatch/internal/mines"
	"minewatch/internal/notifications"
	"minewatch/internal/pipeline"
	"minewatch/internal/store"
)

// NewProvider builds the imagery provider selected by provider.kind.
func NewProvider(cfg *config.Config, logger *slog.Logger) (imagery.Provider, error) {
	switch cfg.Provider.Kind {
	case config.ProviderCSV, "":
		return imagery.NewCSVProvider(cfg.Paths.CSVDir, logger), nil
	case config.ProviderHTTP:
		return imagery.NewHTTPProvider(imagery.HTTPOptions{
			BaseURL:       cfg.Provider.BaseURL,
			Token:         cfg.Provider.Token,
			Timeout:       cfg.ProviderTimeout(),
			RatePerSecond: cfg.Provider.RatePerSecond,
			Burst:         cfg.Provider.Burst,
			Logger:        logger,
		})
	default:
		return nil, fmt.Errorf("unsupported provider kind %q", cfg.Provider.Kind)
	}
}

// NewOrchestrator wires the pipeline with the configured provider, ntfy
// notifier, and metrics registered on reg. A nil reg skips metrics.
func NewOrchestrator(cfg *config.Config, catalog *mines.Catalog, st *store.Store, logger *slog.Logger, reg prometheus.Registerer) (*pipeline.Orchestrator, error) {
	provider, err := NewProvider(cfg, logger)
	if err != nil {
		return nil, err
	}
	opts := []pipeline.Option{pipeline.WithNotifier(notifications.NewService(cfg))}
	if reg != nil {
		opts = append(opts, pipeline.WithMetrics(pipeline.NewMetrics(reg)))
	}
	return pipeline.New(cfg, catalog, st, provider, logger, opts...)
}
