package preflight

import (
	"context"
	"fmt"

	"vidscribe/internal/config"
	"vidscribe/internal/models"
)

// CheckLLMFromConfig evaluates the synthesis provider from config and connectivity.
func CheckLLMFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "Synthesis provider"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	llmCfg := cfg.GetLLM()
	if !llmCfg.SynthesisEnabled() {
		return Result{Name: name, Passed: true, Detail: "Disabled (ask queries unavailable)"}
	}
	check := CheckLLM(ctx, name, llmCfg)
	check.Detail = fmt.Sprintf("%s/%s: %s", llmCfg.Provider, llmCfg.Model, check.Detail)
	return check
}

// CheckModelCache reports whether the default transcription model is cached.
// A missing model is not fatal: the worker downloads it on first use.
func CheckModelCache(cfg *config.Config) Result {
	name := fmt.Sprintf("Model %s", cfg.Transcription.Model)
	rec := models.Scan(cfg.Transcription.ModelCacheDir, cfg.Transcription.Model)
	if rec.Exists {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", rec.Path, rec.Size)}
	}
	return Result{Name: name, Passed: true, Detail: rec.Message}
}
