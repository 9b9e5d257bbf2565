package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"vidscribe/internal/config"
	"vidscribe/internal/deps"
	"vidscribe/internal/services/llm"
	"vidscribe/internal/synthesis"
)

const llmCheckTimeout = 30 * time.Second

// CheckLLM verifies that the provider is reachable and the key is valid.
// It uses a 30-second timeout and a single attempt (no retries).
func CheckLLM(ctx context.Context, name string, cfg config.LLMConfig) Result {
	if cfg.APIKey == "" && cfg.Provider != config.ProviderOllama {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, llmCheckTimeout)
	defer cancel()

	if cfg.Provider == config.ProviderGemini {
		reply, err := synthesis.NewGemini(cfg.APIKey, cfg.Model).Complete(checkCtx, "Reply with the single word OK.", "ping")
		if err != nil {
			return Result{Name: name, Detail: summarizeLLMError(err)}
		}
		if reply == "" {
			return Result{Name: name, Detail: "empty response"}
		}
		return Result{Name: name, Passed: true, Detail: "API reachable"}
	}

	client := llm.NewClient(llm.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Referer: cfg.Referer,
		Title:   cfg.Title,
	}, llm.WithRetryMaxAttempts(1))

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeLLMError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckOutputDirectory passes when the folder is usable or can be created
// under a writable parent.
func CheckOutputDirectory(path string) Result {
	const name = "Output directory"
	if _, err := os.Stat(path); err == nil {
		return CheckDirectoryAccess(name, path)
	}
	parent := filepath.Dir(path)
	for {
		if _, err := os.Stat(parent); err == nil {
			break
		}
		next := filepath.Dir(parent)
		if next == parent {
			break
		}
		parent = next
	}
	if err := unix.Access(parent, unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: cannot create under %s: %v)", path, parent, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (created on first batch)", path)}
}

// CheckWorkerScripts reports each configured worker script.
func CheckWorkerScripts(cfg *config.Config) []Result {
	statuses := deps.CheckFiles(WorkerScriptRequirements(cfg))
	out := make([]Result, 0, len(statuses))
	for _, s := range statuses {
		detail := s.Command
		if !s.Available {
			detail = s.Detail
		}
		out = append(out, Result{Name: s.Name, Passed: s.Available || s.Optional, Detail: detail})
	}
	return out
}

// WorkerScriptRequirements lists the worker scripts resolved from cfg.
func WorkerScriptRequirements(cfg *config.Config) []deps.Requirement {
	return []deps.Requirement{
		{Name: "Batch worker", Command: cfg.WorkerScript(cfg.Worker.BatchScript), Description: "Transcribes video batches"},
		{Name: "Verify worker", Command: cfg.WorkerScript(cfg.Worker.VerifyScript), Description: "Checks the model cache"},
		{Name: "Download worker", Command: cfg.WorkerScript(cfg.Worker.DownloadScript), Description: "Downloads models"},
		{
			Name:        "Search worker",
			Command:     cfg.WorkerScript(cfg.Worker.SearchScript),
			Description: "Computes embeddings when retrieval.embedder is worker",
			Optional:    cfg.Retrieval.Embedder != config.EmbedderWorker,
		},
	}
}

// CheckSystemDeps evaluates the binaries the worker needs.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	statuses := deps.CheckBinaries([]deps.Requirement{
		{
			Name:        "Interpreter",
			Command:     cfg.Worker.Interpreter,
			Description: "Runs the transcription workers",
		},
	})
	statuses = append(statuses,
		deps.CheckFFmpegForWorker(cfg.Worker.Interpreter),
		deps.CheckFFprobeForWorker(cfg.Worker.Interpreter),
	)
	return statuses
}

// summarizeLLMError produces a human-readable summary for LLM health check failures.
func summarizeLLMError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (LLM API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (LLM API unreachable)"
	}
	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Sprintf("API key rejected (http %d)", statusErr.StatusCode)
		case http.StatusNotFound:
			return "endpoint or model not found (http 404); check llm.base_url and llm.model"
		}
	}
	return err.Error()
}
