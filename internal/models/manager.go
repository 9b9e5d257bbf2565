package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"vidscribe/internal/logging"
	"vidscribe/internal/protocol"
	"vidscribe/internal/services"
	"vidscribe/internal/worker"
)

// DownloadResult is the terminal payload of the download worker.
type DownloadResult struct {
	Success   bool   `json:"success"`
	Model     string `json:"model"`
	Path      string `json:"path,omitempty"`
	Size      string `json:"size,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Manager runs the verify and download workers.
type Manager struct {
	launcher *worker.Launcher
	cacheDir string
	logger   *slog.Logger
}

// NewManager builds a Manager. cacheDir fills Record.CacheDir when the worker
// does not report one; the worker itself learns it from its environment.
func NewManager(launcher *worker.Launcher, cacheDir string, logger *slog.Logger) *Manager {
	return &Manager{
		launcher: launcher,
		cacheDir: cacheDir,
		logger:   logging.NewComponentLogger(logger, "models"),
	}
}

// args is the whole command line the model workers accept; they reject
// unknown flags.
func (m *Manager) args(model string) []string {
	return []string{"--model", model}
}

// Verify asks the verify worker whether model is cached. The worker exits 1
// when the model is missing; that still yields a Record.
func (m *Manager) Verify(ctx context.Context, model string) (Record, error) {
	name, err := validate(model)
	if err != nil {
		return Record{}, services.Wrap(services.ErrValidation, "models", "verify", err.Error(), nil)
	}
	ctx = services.WithWorkerKind(ctx, string(worker.KindVerifyModel))

	var (
		trailing protocol.TrailingJSON
		tail     = protocol.NewTail(20)
	)
	status, err := m.launcher.Run(ctx, worker.KindVerifyModel, m.args(name), func(stream protocol.Stream, line string) {
		trailing.Observe(stream, line)
		if stream == protocol.Stderr {
			tail.Add(line)
		}
	})
	if err != nil {
		return Record{}, err
	}

	var rec Record
	if decodeErr := trailing.Decode(&rec); decodeErr != nil {
		if !status.Success() {
			return Record{}, services.Wrap(services.ErrExternalTool, "models", "verify",
				fmt.Sprintf("verify worker exit code %d: %s", status.ExitCode, tail.String()), nil)
		}
		return Record{}, decodeErr
	}
	if status.ExitCode > 1 {
		return Record{}, services.Wrap(services.ErrExternalTool, "models", "verify",
			fmt.Sprintf("verify worker exit code %d: %s", status.ExitCode, rec.Message), nil)
	}
	rec.Model = name
	if rec.CacheDir == "" {
		rec.CacheDir = m.cacheDir
	}
	if rec.Size == "" && rec.SizeBytes > 0 {
		rec.Size = humanize.IBytes(uint64(rec.SizeBytes))
	}
	logging.WithContext(ctx, m.logger).Debug("model verified",
		logging.String("model", name),
		logging.Bool("exists", rec.Exists),
	)
	return rec, nil
}

// Download runs the download worker, forwarding each decoded output line to
// onEvent. A worker-reported failure returns the decoded result together with
// an ErrExternalTool error.
func (m *Manager) Download(ctx context.Context, model string, onEvent func(protocol.Event)) (DownloadResult, error) {
	name, err := validate(model)
	if err != nil {
		return DownloadResult{}, services.Wrap(services.ErrValidation, "models", "download", err.Error(), nil)
	}
	ctx = services.WithWorkerKind(ctx, string(worker.KindDownloadModel))
	logger := logging.WithContext(ctx, m.logger)
	logger.Info("model download started",
		logging.String("model", name),
		logging.String(logging.FieldEventType, "model_download_started"),
	)

	var (
		trailing protocol.TrailingJSON
		tail     = protocol.NewTail(20)
	)
	status, err := m.launcher.Run(ctx, worker.KindDownloadModel, m.args(name), func(stream protocol.Stream, line string) {
		trailing.Observe(stream, line)
		if stream == protocol.Stderr {
			tail.Add(line)
		}
		if onEvent != nil {
			onEvent(protocol.Decode(stream, line))
		}
	})
	if err != nil {
		return DownloadResult{}, err
	}
	if status.StoppedByCancel {
		return DownloadResult{Model: name}, services.Wrap(services.ErrExternalTool, "models", "download", "download cancelled", context.Cause(ctx))
	}

	var result DownloadResult
	decodeErr := trailing.Decode(&result)
	if decodeErr != nil {
		if payload, ok := trailing.FailurePayload(); ok && unmarshalResult(payload, &result) == nil {
			decodeErr = nil
		}
	}
	if decodeErr != nil {
		if !status.Success() {
			return DownloadResult{Model: name}, services.Wrap(services.ErrExternalTool, "models", "download",
				fmt.Sprintf("download worker exit code %d: %s", status.ExitCode, tail.String()), nil)
		}
		return DownloadResult{Model: name}, decodeErr
	}
	if result.Model == "" {
		result.Model = name
	}
	if result.Size == "" && result.SizeBytes > 0 {
		result.Size = humanize.IBytes(uint64(result.SizeBytes))
	}
	if !result.Success || !status.Success() {
		msg := result.Message
		if msg == "" {
			msg = result.Error
		}
		if msg == "" {
			msg = fmt.Sprintf("download worker exit code %d", status.ExitCode)
		}
		result.Success = false
		logging.WarnWithContext(logger, "model download failed", "model_download_failed",
			logging.String("model", name),
			logging.String("reason", msg),
			logging.String(logging.FieldErrorHint, "check network access and the model cache directory"),
			logging.String(logging.FieldImpact, "transcription with this model is unavailable"),
		)
		return result, services.Wrap(services.ErrExternalTool, "models", "download", msg, nil)
	}
	logger.Info("model download finished",
		logging.String("model", name),
		logging.String("path", result.Path),
		logging.String("size", result.Size),
		logging.String(logging.FieldEventType, "model_download_finished"),
	)
	return result, nil
}

func unmarshalResult(raw []byte, out *DownloadResult) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return err
	}
	if out.Model == "" && out.Message == "" && out.Error == "" {
		return errors.New("failure payload carries no detail")
	}
	return nil
}
