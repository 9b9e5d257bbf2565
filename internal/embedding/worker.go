package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"vidscribe/internal/protocol"
	"vidscribe/internal/services"
	"vidscribe/internal/worker"
)

// Worker embeds through the search worker:
//
//	search_handler --action embed --input <texts.json> --dimensions N
//
// The worker prints {"dimensions":N,"embeddings":[[...],...]} as its last line.
type Worker struct {
	launcher *worker.Launcher
	dims     int
	tempDir  string
}

// NewWorker constructs a worker-backed embedder. tempDir holds the input file
// for each call; empty uses the system default.
func NewWorker(launcher *worker.Launcher, dims int, tempDir string) *Worker {
	return &Worker{launcher: launcher, dims: dims, tempDir: tempDir}
}

func (w *Worker) ID() string { return fmt.Sprintf("worker-%d", w.dims) }

func (w *Worker) Dimensions() int { return w.dims }

type embedResult struct {
	Dimensions int         `json:"dimensions"`
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error"`
}

// Embed writes texts to a temporary JSON file and runs the worker once.
func (w *Worker) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	input, err := os.CreateTemp(w.tempDir, "vidscribe-embed-*.json")
	if err != nil {
		return nil, fmt.Errorf("create embed input: %w", err)
	}
	defer os.Remove(input.Name())
	if err := json.NewEncoder(input).Encode(texts); err != nil {
		_ = input.Close()
		return nil, fmt.Errorf("write embed input: %w", err)
	}
	if err := input.Close(); err != nil {
		return nil, fmt.Errorf("close embed input: %w", err)
	}

	var (
		trailing protocol.TrailingJSON
		tail     = protocol.NewTail(20)
	)
	args := []string{"--action", "embed", "--input", filepath.Clean(input.Name()), "--dimensions", fmt.Sprint(w.dims)}
	status, err := w.launcher.Run(ctx, worker.KindSearch, args, func(stream protocol.Stream, line string) {
		trailing.Observe(stream, line)
		if stream == protocol.Stderr {
			tail.Add(line)
		}
	})
	if err != nil {
		return nil, err
	}
	if !status.Success() {
		return nil, services.Wrap(services.ErrExternalTool, "embedding", "worker embed",
			fmt.Sprintf("exit code %d: %s", status.ExitCode, tail.String()), nil)
	}
	var result embedResult
	if err := trailing.Decode(&result); err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, services.Wrap(services.ErrExternalTool, "embedding", "worker embed", result.Error, nil)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: worker returned %d embeddings for %d texts", services.ErrProtocol, len(result.Embeddings), len(texts))
	}
	for i, vec := range result.Embeddings {
		if len(vec) != w.dims {
			return nil, fmt.Errorf("%w: embedding %d has %d dimensions, expected %d", services.ErrProtocol, i, len(vec), w.dims)
		}
	}
	return result.Embeddings, nil
}
