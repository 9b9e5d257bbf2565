package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"vidscribe/internal/config"
	"vidscribe/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	outputDir  string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	for _, key := range []string{"VIDSCRIBE_LLM_API_KEY", "OPENAI_API_KEY", "OPENROUTER_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY", "HF_TOKEN", "HUGGING_FACE_HUB_TOKEN"} {
		t.Setenv(key, "")
	}
	cfg := testsupport.NewConfig(t, opts...)
	home := filepath.Join(testsupport.BaseDir(cfg), "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", home)
	return &cliTestEnv{
		cfg:        cfg,
		configPath: filepath.Join(testsupport.BaseDir(cfg), "config.toml"),
		outputDir:  cfg.Paths.OutputDir,
	}
}

// writeConfig renders the env's config. extra is appended verbatim and may
// add sections the base layout leaves out, such as [llm].
func (e *cliTestEnv) writeConfig(t *testing.T, extra string) {
	t.Helper()
	cfg := e.cfg
	content := fmt.Sprintf(`[paths]
state_dir = %q
log_dir = %q
output_dir = %q

[worker]
interpreter = %q
interpreter_args = []
scripts_dir = %q
batch_script = %q
verify_script = %q
download_script = %q
search_script = %q

[transcription]
model_cache_dir = %q

[server]
bind = "127.0.0.1:0"
`,
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.Paths.OutputDir,
		cfg.Worker.Interpreter,
		cfg.Worker.ScriptsDir,
		cfg.Worker.BatchScript,
		cfg.Worker.VerifyScript,
		cfg.Worker.DownloadScript,
		cfg.Worker.SearchScript,
		cfg.Transcription.ModelCacheDir,
	)
	if extra != "" {
		content += "\n" + extra
	}
	if err := os.WriteFile(e.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	if _, err := os.Stat(e.configPath); os.IsNotExist(err) {
		e.writeConfig(t, "")
	}
	return runCLI(t, append([]string{"--config", e.configPath}, args...))
}

func runCLI(t *testing.T, args []string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// syncBuffer lets a test poll output that another goroutine is writing.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func videoDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		testsupport.WriteFile(t, filepath.Join(dir, name), 16)
	}
	return dir
}

// batchPrelude parses the worker arguments and defines write_transcript.
const batchPrelude = `
videos=""; out=""
while [ $# -gt 0 ]; do
  case "$1" in
    --videos) videos="$2"; shift 2 ;;
    --output) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
sep=$(printf '%80s' '' | tr ' ' '=')
write_transcript() {
  stem=$(basename "$1"); stem="${stem%.*}"
  {
    echo "Detected Language: en"
    echo ""
    echo "TRANSCRIPT WITH SPEAKERS:"
    echo "$sep"
    echo ""
    echo "[00:00:00 -> 00:00:04] SPEAKER_00: hello from $stem"
    echo ""
    echo "$sep"
    echo "FULL TRANSCRIPT:"
    echo "$sep"
    echo ""
    echo "hello from $stem"
  } > "$out/${stem}_transcript.txt"
}
set -- $(printf '%s' "$videos" | tr -d '\133\135\042' | tr ',' ' ')
total=$#
i=0
`

const processAll = batchPrelude + `
for f in "$@"; do
  i=$((i+1))
  echo "PROGRESS: $i/$total"
  echo "Processing $i/$total: $f"
  write_transcript "$f"
done
`

const stopAfterFirst = batchPrelude + `
stop=0
trap 'stop=1' TERM
for f in "$@"; do
  if [ "$stop" = 1 ]; then
    echo "Stopped before $f"
    exit 0
  fi
  i=$((i+1))
  echo "PROGRESS: $i/$total"
  echo "working on $i"
  sleep 0.3
  write_transcript "$f"
  if [ $i -eq 1 ]; then
    n=0
    while [ "$stop" != 1 ] && [ $n -lt 100 ]; do sleep 0.05; n=$((n+1)); done
  fi
done
`

const ignoreTerm = `
trap '' TERM
echo "PROGRESS: 1/1"
echo "busy"
sleep 1
`
