package preflight

import (
	"context"

	"minewatch/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckMineCatalog(cfg.Paths.MinesFile),
	}

	switch cfg.Provider.Kind {
	case config.ProviderCSV:
		results = append(results, CheckDirectoryAccess("CSV sample directory", cfg.Paths.CSVDir))
	case config.ProviderHTTP:
		results = append(results, CheckSamplingService(ctx, cfg.Provider.BaseURL, cfg.Provider.Token))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
