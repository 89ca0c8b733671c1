package preflight

import (
	"context"
	"strings"

	"leaflens/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Remote checks only run when the collaborator is configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckCatalog(cfg.Catalog.Path),
		CheckAnalysisCredentials(cfg),
	}

	if strings.TrimSpace(cfg.ControlPlane.URL) != "" {
		results = append(results, CheckEndpoint(ctx, "Control plane", cfg.ControlPlane.URL, cfg.ControlPlane.APIKey))
	}
	if strings.TrimSpace(cfg.Ingest.URL) != "" {
		results = append(results, CheckEndpoint(ctx, "Ingest endpoint", cfg.Ingest.URL, cfg.Ingest.APIKey))
	}
	if cfg.Analysis.Provider == config.ProviderHTTP {
		results = append(results, CheckEndpoint(ctx, "Analyzer", cfg.Analyzer.URL, cfg.Analyzer.APIKey))
	}
	if strings.TrimSpace(cfg.Catalog.SearchURL) != "" {
		results = append(results, CheckEndpoint(ctx, "Catalog search", cfg.Catalog.SearchURL, cfg.Catalog.SearchAPIKey))
	}
	if cfg.ObjectStore.Enabled {
		results = append(results, CheckObjectStore(ctx, cfg.ObjectStore))
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
