package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and file locations.
type Paths struct {
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
	OutputDir string `toml:"output_dir"`
}

// Worker describes how external worker scripts are launched.
type Worker struct {
	Interpreter     string   `toml:"interpreter"`
	InterpreterArgs []string `toml:"interpreter_args"`
	ScriptsDir      string   `toml:"scripts_dir"`
	BatchScript     string   `toml:"batch_script"`
	VerifyScript    string   `toml:"verify_script"`
	DownloadScript  string   `toml:"download_script"`
	SearchScript    string   `toml:"search_script"`
}

// Transcription contains defaults forwarded to the batch worker.
type Transcription struct {
	Model            string `toml:"model"`
	Format           string `toml:"format"`
	MP3Bitrate       string `toml:"mp3_bitrate"`
	ModelCacheDir    string `toml:"model_cache_dir"`
	HuggingFaceToken string `toml:"hf_token"`
}

// Retrieval tunes keyword, semantic, and ask queries.
type Retrieval struct {
	Embedder        string  `toml:"embedder"`
	Dimensions      int     `toml:"dimensions"`
	TopK            int     `toml:"top_k"`
	Threshold       float64 `toml:"threshold"`
	AskTopN         int     `toml:"ask_top_n"`
	CacheEmbeddings bool    `toml:"cache_embeddings"`
}

// LLM contains answer synthesis and transcript post-processing settings.
type LLM struct {
	Provider       string `toml:"provider"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Template       string `toml:"template"`
}

// Server contains the HTTP boundary settings.
type Server struct {
	Bind           string   `toml:"bind"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for vidscribe.
//
// Configuration sections by subsystem:
//   - Paths: state, log, and default output directories
//   - Worker: interpreter and script names for the external worker
//   - Transcription: model, output format, and audio bitrate defaults
//   - Retrieval: embedder choice and ranking thresholds
//   - LLM: synthesis provider and post-processing template
//   - Server: HTTP bind address and CORS origins
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Worker        Worker        `toml:"worker"`
	Transcription Transcription `toml:"transcription"`
	Retrieval     Retrieval     `toml:"retrieval"`
	LLM           LLM           `toml:"llm"`
	Server        Server        `toml:"server"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadDotEnv(filepath.Dir(resolvedPath)); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv reads <dir>/.env when present. Values already set in the
// environment win.
func loadDotEnv(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return nil
	}
	envPath := filepath.Join(dir, ".env")
	info, err := os.Stat(envPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if info.IsDir() {
		return nil
	}
	if err := godotenv.Load(envPath); err != nil {
		return fmt.Errorf("load env file %s: %w", envPath, err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vidscribe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories. The output
// directory belongs to the user and is created per job.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database holding job history and the
// embedding cache.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "vidscribe.db")
}

// BatchLockPath returns the lock file guarding the single batch job.
func (c *Config) BatchLockPath() string {
	return filepath.Join(c.Paths.StateDir, "batch.lock")
}

// WorkerScript resolves a configured script name against the scripts directory.
func (c *Config) WorkerScript(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Worker.ScriptsDir, name)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains the resolved provider connection settings.
type LLMConfig struct {
	Provider       string
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
	Template       string
}

// GetLLM returns the synthesis provider settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider:       strings.TrimSpace(c.LLM.Provider),
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
		Template:       strings.TrimSpace(c.LLM.Template),
	}
}

// LLMFor resolves settings for a per-request provider override. Empty
// arguments fall back to the configured values, or to the provider's
// defaults when it differs from the configured one.
func (c *Config) LLMFor(provider, apiKey, model string) LLMConfig {
	out := c.GetLLM()
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider != "" && provider != out.Provider {
		out.Provider = provider
		out.APIKey = lookupEnv(append([]string{"VIDSCRIBE_LLM_API_KEY"}, providerKeyEnv[provider]...)...)
		out.BaseURL = providerBaseURLs[provider]
		out.Model = providerModels[provider]
	}
	if key := strings.TrimSpace(apiKey); key != "" {
		out.APIKey = key
	}
	if m := strings.TrimSpace(model); m != "" {
		out.Model = m
	}
	return out
}

// SynthesisEnabled reports whether a provider is configured.
func (c LLMConfig) SynthesisEnabled() bool {
	return c.Provider != "" && c.Provider != ProviderNone
}
