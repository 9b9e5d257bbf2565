package jobs

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"vidscribe/internal/config"
	"vidscribe/internal/services"
)

// LLMOptions enables post-processing inside the batch worker. It is passed
// through as the --llm-config JSON argument.
type LLMOptions struct {
	Enabled  bool   `json:"enabled"`
	Provider string `json:"provider"`
	Template string `json:"template,omitempty"`
	APIKey   string `json:"apiKey,omitempty"`
	Model    string `json:"model,omitempty"`
}

// Request describes a batch to start.
type Request struct {
	Files      []string    `json:"videoFiles"`
	OutputDir  string      `json:"outputFolder"`
	Model      string      `json:"model"`
	Format     string      `json:"format"`
	MP3Bitrate string      `json:"mp3Bitrate,omitempty"`
	LLM        *LLMOptions `json:"llm,omitempty"`
}

// normalize applies config defaults and validates the request.
func normalize(cfg *config.Config, req Request) (Request, error) {
	if len(req.Files) == 0 {
		return req, ErrNoInputFiles
	}
	req.OutputDir = strings.TrimSpace(req.OutputDir)
	if req.OutputDir == "" {
		return req, ErrNoOutputFolder
	}
	expanded, err := config.ExpandPath(req.OutputDir)
	if err != nil {
		return req, services.Wrap(services.ErrValidation, "jobs", "start", "resolve output folder", err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return req, services.Wrap(services.ErrValidation, "jobs", "start", "resolve output folder", err)
	}
	req.OutputDir = abs

	req.Model = strings.ToLower(strings.TrimSpace(req.Model))
	if req.Model == "" {
		req.Model = cfg.Transcription.Model
	}
	if err := config.ValidateModel(req.Model); err != nil {
		return req, services.Wrap(services.ErrValidation, "jobs", "start", err.Error(), nil)
	}
	req.Format = strings.ToLower(strings.TrimSpace(req.Format))
	if req.Format == "" {
		req.Format = cfg.Transcription.Format
	}
	if err := config.ValidateFormat(req.Format); err != nil {
		return req, services.Wrap(services.ErrValidation, "jobs", "start", err.Error(), nil)
	}
	if strings.TrimSpace(req.MP3Bitrate) == "" {
		req.MP3Bitrate = cfg.Transcription.MP3Bitrate
	}

	if req.LLM != nil {
		llm := *req.LLM
		llm.Provider = strings.ToLower(strings.TrimSpace(llm.Provider))
		if !llm.Enabled || llm.Provider == "" || llm.Provider == config.ProviderNone {
			req.LLM = nil
		} else {
			if llm.APIKey == "" && llm.Provider == cfg.LLM.Provider {
				llm.APIKey = cfg.LLM.APIKey
			}
			if llm.Template == "" {
				llm.Template = cfg.LLM.Template
			}
			req.LLM = &llm
		}
	}
	return req, nil
}

// batchArgs renders the batch worker's command line.
func batchArgs(files []string, req Request) ([]string, error) {
	videos, err := json.Marshal(files)
	if err != nil {
		return nil, fmt.Errorf("encode video list: %w", err)
	}
	args := []string{
		"--videos", string(videos),
		"--output", req.OutputDir,
		"--model", req.Model,
		"--format", req.Format,
		"--mp3-bitrate", req.MP3Bitrate,
	}
	if req.LLM != nil {
		llm, err := json.Marshal(req.LLM)
		if err != nil {
			return nil, fmt.Errorf("encode llm config: %w", err)
		}
		args = append(args, "--llm-config", string(llm))
	}
	return args, nil
}
