package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"vidscribe/internal/config"
)

// Stub script names used by NewConfig. Tests write them with WithWorkerScript.
const (
	BatchScript    = "batch.sh"
	VerifyScript   = "verify.sh"
	DownloadScript = "download.sh"
	SearchScript   = "search.sh"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Workers run through /bin/sh so stub scripts need no Python.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.OutputDir = filepath.Join(base, "out")
	cfgVal.Worker.Interpreter = "/bin/sh"
	cfgVal.Worker.InterpreterArgs = nil
	cfgVal.Worker.ScriptsDir = filepath.Join(base, "worker")
	cfgVal.Worker.BatchScript = BatchScript
	cfgVal.Worker.VerifyScript = VerifyScript
	cfgVal.Worker.DownloadScript = DownloadScript
	cfgVal.Worker.SearchScript = SearchScript
	cfgVal.Transcription.ModelCacheDir = filepath.Join(base, "models")
	cfgVal.Server.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithWorkerScript writes a /bin/sh stub for the named script into the
// worker directory.
func WithWorkerScript(name, body string) ConfigOption {
	return func(b *configBuilder) {
		WriteScript(b.t, filepath.Join(b.cfg.Worker.ScriptsDir, name), body)
	}
}

// WithLLM enables an OpenAI-compatible synthesis provider at baseURL.
func WithLLM(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.Provider = config.ProviderOpenAI
		b.cfg.LLM.APIKey = "test-key"
		b.cfg.LLM.BaseURL = baseURL
		b.cfg.LLM.Model = "test-model"
		b.cfg.LLM.TimeoutSeconds = 5
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		for _, name := range names {
			WriteScript(b.t, filepath.Join(binDir, name), "exit 0\n")
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
