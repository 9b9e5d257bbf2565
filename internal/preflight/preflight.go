package preflight

import (
	"context"
	"strings"

	"vidscribe/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Options selects the optional checks RunAll performs.
type Options struct {
	// CheckProvider pings the synthesis provider. It costs one request.
	CheckProvider bool
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// State directory (always checked)
	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))

	// Output directory (when configured); jobs create it on demand.
	if strings.TrimSpace(cfg.Paths.OutputDir) != "" {
		results = append(results, CheckOutputDirectory(cfg.Paths.OutputDir))
	}

	results = append(results, CheckWorkerScripts(cfg)...)
	results = append(results, CheckModelCache(cfg))

	if opts.CheckProvider {
		results = append(results, CheckLLMFromConfig(ctx, cfg))
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
