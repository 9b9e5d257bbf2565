package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorker(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateRetrieval(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateWorker() error {
	if strings.TrimSpace(c.Worker.Interpreter) == "" {
		return errors.New("worker.interpreter must be set")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if err := ValidateModel(c.Transcription.Model); err != nil {
		return fmt.Errorf("transcription.model: %w", err)
	}
	if err := ValidateFormat(c.Transcription.Format); err != nil {
		return fmt.Errorf("transcription.format: %w", err)
	}
	if !strings.HasSuffix(c.Transcription.MP3Bitrate, "k") {
		return fmt.Errorf("transcription.mp3_bitrate must look like 128k, got %q", c.Transcription.MP3Bitrate)
	}
	return nil
}

func (c *Config) validateRetrieval() error {
	switch c.Retrieval.Embedder {
	case EmbedderHash, EmbedderWorker:
	default:
		return fmt.Errorf("retrieval.embedder must be %q or %q, got %q", EmbedderHash, EmbedderWorker, c.Retrieval.Embedder)
	}
	if c.Retrieval.Dimensions < minEmbeddingDimensions {
		return fmt.Errorf("retrieval.dimensions must be at least %d", minEmbeddingDimensions)
	}
	if c.Retrieval.TopK < 1 {
		return errors.New("retrieval.top_k must be positive")
	}
	if c.Retrieval.Threshold < 0 || c.Retrieval.Threshold > 1 {
		return errors.New("retrieval.threshold must be between 0 and 1")
	}
	if c.Retrieval.AskTopN < 1 {
		return errors.New("retrieval.ask_top_n must be positive")
	}
	return nil
}

func (c *Config) validateLLM() error {
	switch c.LLM.Provider {
	case ProviderNone:
		return nil
	case ProviderOpenAI, ProviderOpenRouter, ProviderClaude, ProviderGemini:
		if c.LLM.APIKey == "" {
			defaultPath, err := DefaultConfigPath()
			if err != nil {
				defaultPath = defaultConfigPath
			}
			return fmt.Errorf("llm.api_key is required for provider %q. Set VIDSCRIBE_LLM_API_KEY or edit %s (create with 'vidscribe config init')", c.LLM.Provider, defaultPath)
		}
	case ProviderOllama:
	default:
		return fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider)
	}
	if c.LLM.Provider != ProviderGemini && c.LLM.BaseURL == "" {
		return errors.New("llm.base_url must be set")
	}
	if c.LLM.TimeoutSeconds < 0 {
		return errors.New("llm.timeout_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
	return nil
}

// ValidateModel reports whether name is a transcription model the worker accepts.
func ValidateModel(name string) error {
	if slices.Contains(SupportedModels, strings.ToLower(strings.TrimSpace(name))) {
		return nil
	}
	return fmt.Errorf("unknown model %q (expected one of %s)", name, strings.Join(SupportedModels, ", "))
}

// ValidateFormat reports whether format is an output format the worker accepts.
func ValidateFormat(format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatTXT, FormatMD, FormatBoth:
		return nil
	}
	return fmt.Errorf("unknown format %q (expected txt, md, or both)", format)
}
