package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeWorker(); err != nil {
		return err
	}
	if err := c.normalizeTranscription(); err != nil {
		return err
	}
	c.normalizeRetrieval()
	c.normalizeLLM()
	c.normalizeServer()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) != "" {
		if c.Paths.OutputDir, err = expandPath(strings.TrimSpace(c.Paths.OutputDir)); err != nil {
			return fmt.Errorf("paths.output_dir: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeWorker() error {
	c.Worker.Interpreter = strings.TrimSpace(c.Worker.Interpreter)
	if c.Worker.Interpreter == "" {
		c.Worker.Interpreter = defaultInterpreter
	}
	if strings.TrimSpace(c.Worker.ScriptsDir) == "" {
		c.Worker.ScriptsDir = defaultScriptsDir
	}
	var err error
	if c.Worker.ScriptsDir, err = expandPath(c.Worker.ScriptsDir); err != nil {
		return fmt.Errorf("worker.scripts_dir: %w", err)
	}
	c.Worker.BatchScript = fallback(c.Worker.BatchScript, defaultBatchScript)
	c.Worker.VerifyScript = fallback(c.Worker.VerifyScript, defaultVerifyScript)
	c.Worker.DownloadScript = fallback(c.Worker.DownloadScript, defaultDownloadScript)
	c.Worker.SearchScript = fallback(c.Worker.SearchScript, defaultSearchScript)
	return nil
}

func (c *Config) normalizeTranscription() error {
	c.Transcription.Model = strings.ToLower(fallback(c.Transcription.Model, defaultModel))
	c.Transcription.Format = strings.ToLower(fallback(c.Transcription.Format, defaultFormat))
	c.Transcription.MP3Bitrate = strings.ToLower(fallback(c.Transcription.MP3Bitrate, defaultMP3Bitrate))
	if strings.TrimSpace(c.Transcription.ModelCacheDir) == "" {
		c.Transcription.ModelCacheDir = defaultModelCacheDir
	}
	var err error
	if c.Transcription.ModelCacheDir, err = expandPath(c.Transcription.ModelCacheDir); err != nil {
		return fmt.Errorf("transcription.model_cache_dir: %w", err)
	}
	c.Transcription.HuggingFaceToken = strings.TrimSpace(c.Transcription.HuggingFaceToken)
	if c.Transcription.HuggingFaceToken == "" {
		c.Transcription.HuggingFaceToken = lookupEnv("HUGGING_FACE_HUB_TOKEN", "HF_TOKEN")
	}
	return nil
}

func (c *Config) normalizeRetrieval() {
	c.Retrieval.Embedder = strings.ToLower(fallback(c.Retrieval.Embedder, defaultEmbedder))
	if c.Retrieval.Dimensions == 0 {
		c.Retrieval.Dimensions = defaultDimensions
	}
	if c.Retrieval.TopK == 0 {
		c.Retrieval.TopK = defaultTopK
	}
	if c.Retrieval.AskTopN == 0 {
		c.Retrieval.AskTopN = defaultAskTopN
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderNone
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		names := append([]string{"VIDSCRIBE_LLM_API_KEY"}, providerKeyEnv[c.LLM.Provider]...)
		c.LLM.APIKey = lookupEnv(names...)
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = providerBaseURLs[c.LLM.Provider]
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = providerModels[c.LLM.Provider]
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeout
	}
	c.LLM.Template = strings.ToLower(strings.TrimSpace(c.LLM.Template))
}

func (c *Config) normalizeServer() {
	c.Server.Bind = fallback(c.Server.Bind, defaultServerBind)
	origins := c.Server.AllowedOrigins[:0]
	for _, origin := range c.Server.AllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	c.Server.AllowedOrigins = origins
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(fallback(c.Logging.Format, defaultLogFormat))
	c.Logging.Level = strings.ToLower(fallback(c.Logging.Level, defaultLogLevel))
}

func fallback(value, def string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return def
}

func lookupEnv(names ...string) string {
	for _, name := range names {
		if value, ok := os.LookupEnv(name); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
