package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"vidscribe/internal/jobs"
	"vidscribe/internal/logging"
	"vidscribe/internal/services"
	"vidscribe/internal/store"
	"vidscribe/internal/testsupport"
	"vidscribe/internal/transcript"
	"vidscribe/internal/worker"
)

func TestBatchCommandPrintsSummary(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithWorkerScript(testsupport.BatchScript, processAll))
	videos := videoDir(t, "one.mp4", "two.mkv")

	stdout, stderr, err := env.run(t, "batch", videos, "--model", "tiny")
	if err != nil {
		t.Fatalf("batch: %v\nstderr: %s", err, stderr)
	}
	var summary batchSummary
	if err := json.Unmarshal([]byte(stdout), &summary); err != nil {
		t.Fatalf("decode summary %q: %v", stdout, err)
	}
	if !summary.Success || summary.Stopped || summary.Processed != 2 || summary.Total != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.OutputDir != env.outputDir {
		t.Fatalf("expected configured output dir, got %q", summary.OutputDir)
	}
	requireContains(t, stderr, "[2/2]")
	requireContains(t, stderr, "Batch completed")

	paths, err := transcript.Paths(env.outputDir)
	if err != nil || len(paths) != 2 {
		t.Fatalf("expected two transcripts, got %v (%v)", paths, err)
	}

	listOut, _, err := env.run(t, "jobs", "list")
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, listOut, "completed")
	requireContains(t, listOut, summary.JobID[:8])

	showOut, _, err := env.run(t, "jobs", "show", summary.JobID[:8])
	if err != nil {
		t.Fatalf("jobs show: %v", err)
	}
	requireContains(t, showOut, summary.JobID)
	requireContains(t, showOut, "tiny (txt)")
}

func TestBatchCommandRequiresOutputFolder(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithWorkerScript(testsupport.BatchScript, processAll))
	env.cfg.Paths.OutputDir = ""
	env.writeConfig(t, "")

	_, _, err := env.run(t, "batch", videoDir(t, "a.mp4"))
	if err == nil || !strings.Contains(err.Error(), "output folder") {
		t.Fatalf("expected output folder error, got %v", err)
	}
}

func newBatchHarness(t *testing.T, script string) (*jobs.Orchestrator, *jobs.Bus, *cobra.Command, *syncBuffer, *syncBuffer, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerScript(testsupport.BatchScript, script))
	launcher := worker.NewLauncher(worker.ConfigResolver(cfg), logging.NewNop())
	bus := jobs.NewBus(0)
	orch := jobs.New(cfg, launcher, testsupport.MustOpenStore(t, cfg), bus, logging.NewNop())

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	stdout, stderr := &syncBuffer{}, &syncBuffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return orch, bus, cmd, stdout, stderr, cfg.Paths.OutputDir
}

func TestRunBatchFirstSignalStopsAfterCurrentFile(t *testing.T) {
	orch, bus, cmd, stdout, stderr, out := newBatchHarness(t, stopAfterFirst)
	events, unsubscribe := bus.Subscribe(256)
	defer unsubscribe()

	signals := make(chan os.Signal, 2)
	go func() {
		waitFor(t, 10*time.Second, func() bool { return strings.Contains(stderr.String(), "working on 1") })
		signals <- syscall.SIGINT
	}()

	req := jobs.Request{Files: []string{videoDir(t, "a.mp4", "b.mp4")}, OutputDir: out}
	if err := runBatch(cmd, orch, req, events, signals, false); err != nil {
		t.Fatalf("runBatch: %v", err)
	}
	var summary batchSummary
	if err := json.Unmarshal([]byte(stdout.String()), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Success || !summary.Stopped || summary.Status != store.StatusStopped {
		t.Fatalf("expected stopped summary, got %+v", summary)
	}
	requireContains(t, stderr.String(), "Stopping after the current file")

	paths, err := transcript.Paths(out)
	if err != nil || len(paths) != 1 {
		t.Fatalf("expected exactly one transcript, got %v (%v)", paths, err)
	}
}

func TestRunBatchSecondSignalStopsWaiting(t *testing.T) {
	orch, bus, cmd, _, stderr, out := newBatchHarness(t, ignoreTerm)
	events, unsubscribe := bus.Subscribe(256)
	defer unsubscribe()

	signals := make(chan os.Signal, 2)
	go func() {
		waitFor(t, 10*time.Second, func() bool { return strings.Contains(stderr.String(), "busy") })
		signals <- syscall.SIGINT
		signals <- syscall.SIGINT
	}()

	req := jobs.Request{Files: []string{videoDir(t, "a.mp4")}, OutputDir: out}
	err := runBatch(cmd, orch, req, events, signals, false)
	if err == nil || !strings.Contains(err.Error(), "stopped waiting") {
		t.Fatalf("expected stopped-waiting error, got %v", err)
	}

	rec, ok := orch.Current()
	if !ok {
		t.Fatal("worker should still be running")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	final, err := orch.Wait(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if final.Status != store.StatusStopped {
		t.Fatalf("expected stopped job, got %s", final.Status)
	}
}

func TestSearchKeywordJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteTranscript(t, env.outputDir, "greeting", "en", "Hello World", "nothing else")
	testsupport.WriteTranscript(t, env.outputDir, "other", "en", "unrelated words")

	stdout, _, err := env.run(t, "search", "keyword", "hello", "--json")
	if err != nil {
		t.Fatalf("search keyword: %v", err)
	}
	var payload struct {
		Results []struct {
			FileName   string `json:"file_name"`
			MatchCount int    `json:"match_count"`
		} `json:"results"`
	}
	if err := json.Unmarshal([]byte(stdout), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Results) != 1 || payload.Results[0].FileName != "greeting" || payload.Results[0].MatchCount != 1 {
		t.Fatalf("unexpected results %+v", payload.Results)
	}

	stdout, _, err = env.run(t, "search", "keyword", "hello", "--case-sensitive")
	if err != nil {
		t.Fatalf("case-sensitive search: %v", err)
	}
	requireContains(t, stdout, "No matches")
}

func TestSearchSemanticAndIndex(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteTranscript(t, env.outputDir, "budget", "en", "the quarterly budget review", "budget numbers look fine")

	stdout, _, err := env.run(t, "search", "index", "--json")
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	var summary struct {
		Indexed  int `json:"indexed"`
		Segments int `json:"segments"`
	}
	if err := json.Unmarshal([]byte(stdout), &summary); err != nil {
		t.Fatalf("decode index: %v", err)
	}
	if summary.Indexed != 1 || summary.Segments != 2 {
		t.Fatalf("unexpected index summary %+v", summary)
	}

	stdout, _, err = env.run(t, "search", "semantic", "quarterly budget review")
	if err != nil {
		t.Fatalf("semantic: %v", err)
	}
	requireContains(t, stdout, "budget")
	requireContains(t, stdout, "Score")
}

func TestSearchAskWithoutProvider(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteTranscript(t, env.outputDir, "clip", "en", "hello")

	_, _, err := env.run(t, "search", "ask", "what was said?")
	if !errors.Is(err, services.ErrSynthesisUnavailable) {
		t.Fatalf("expected synthesis unavailable, got %v", err)
	}
}

func TestSearchMissingFolder(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := env.run(t, "search", "keyword", "x", "--output", filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestModelListAndVerify(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithWorkerScript(testsupport.VerifyScript, `
echo '{"exists": true, "path": "/models/base.pt", "size_bytes": 2048, "message": "Model base is downloaded"}'
`))
	testsupport.WriteFile(t, filepath.Join(env.cfg.Transcription.ModelCacheDir, "base.pt"), 2048)

	stdout, _, err := env.run(t, "model", "list", "--json")
	if err != nil {
		t.Fatalf("model list: %v", err)
	}
	var records []struct {
		Model  string `json:"model"`
		Exists bool   `json:"exists"`
	}
	if err := json.Unmarshal([]byte(stdout), &records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("expected five catalog models, got %d", len(records))
	}
	for _, rec := range records {
		if rec.Exists != (rec.Model == "base") {
			t.Fatalf("unexpected cache state %+v", rec)
		}
	}

	stdout, _, err = env.run(t, "model", "verify", "base")
	if err != nil {
		t.Fatalf("model verify: %v", err)
	}
	requireContains(t, stdout, "Model base is downloaded")
	requireContains(t, stdout, "2.0 KiB")
}

func TestModelDownloadFailure(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithWorkerScript(testsupport.DownloadScript, `
echo "PROGRESS: 1/2"
echo '{"success": false, "model": "tiny", "error": "network unreachable"}' >&2
exit 1
`))
	_, stderr, err := env.run(t, "model", "download", "tiny")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	requireContains(t, err.Error(), "network unreachable")
	requireContains(t, stderr, "[1/2]")
}

func TestConfigInitAndShow(t *testing.T) {
	env := setupCLITestEnv(t)
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	stdout, _, err := runCLI(t, []string{"config", "init", "--path", target})
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, stdout, target)
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}); err == nil {
		t.Fatal("expected refusal to overwrite")
	}

	env.writeConfig(t, "[llm]\nprovider = \"openai\"\napi_key = \"sk-secret-value\"\n")
	stdout, _, err = env.run(t, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(stdout, "sk-secret-value") {
		t.Fatalf("api key leaked: %s", stdout)
	}
	requireContains(t, stdout, "sk-s****")
	requireContains(t, stdout, env.configPath)
}

func TestTemplatesCommand(t *testing.T) {
	stdout, _, err := runCLI(t, []string{"templates", "--json"})
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	var templates []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(stdout), &templates); err != nil {
		t.Fatalf("decode: %v", err)
	}
	names := make([]string, 0, len(templates))
	for _, tmpl := range templates {
		names = append(names, tmpl.Name)
	}
	for _, want := range []string{"clean", "summary", "meeting_notes"} {
		if !strings.Contains(strings.Join(names, ","), want) {
			t.Fatalf("missing template %q in %v", want, names)
		}
	}
}

func TestTranscriptConvert(t *testing.T) {
	env := setupCLITestEnv(t)
	src := testsupport.WriteTranscript(t, env.outputDir, "talk", "en", "first line", "second line")

	stdout, _, err := env.run(t, "transcript", "convert", src)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	dest := filepath.Join(env.outputDir, "talk_transcript.md")
	requireContains(t, stdout, dest)

	converted, err := transcript.NewStore(nil).Load(dest)
	if err != nil {
		t.Fatalf("load converted: %v", err)
	}
	if converted.Language != "en" || len(converted.Segments) != 2 || converted.Segments[1].Text != "second line" {
		t.Fatalf("unexpected converted transcript %+v", converted)
	}

	if _, _, err := env.run(t, "transcript", "convert", src); err == nil {
		t.Fatal("expected refusal to overwrite")
	}
	if _, _, err := env.run(t, "transcript", "convert", src, "--overwrite"); err != nil {
		t.Fatalf("convert --overwrite: %v", err)
	}
}

func TestTranscriptProcess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": "A short summary."}}},
		})
	}))
	defer server.Close()

	env := setupCLITestEnv(t)
	env.writeConfig(t, "[llm]\nprovider = \"ollama\"\nbase_url = \""+server.URL+"\"\nmodel = \"llama3.1\"\n")
	src := testsupport.WriteTranscript(t, env.outputDir, "standup", "en", "we shipped the release")

	if _, _, err := env.run(t, "transcript", "process", src, "--template", "summary"); err != nil {
		t.Fatalf("process: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(env.outputDir, "standup_summary.md"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if strings.TrimSpace(string(data)) != "A short summary." {
		t.Fatalf("unexpected output %q", data)
	}

	// The processed file is not a transcript and stays out of listings.
	paths, err := transcript.Paths(env.outputDir)
	if err != nil || len(paths) != 1 {
		t.Fatalf("expected only the source transcript, got %v (%v)", paths, err)
	}

	if _, _, err := env.run(t, "transcript", "process", src, "--template", "haiku"); err == nil {
		t.Fatal("expected unknown template error")
	}
}

func TestDoctorReportsHealthyStubs(t *testing.T) {
	env := setupCLITestEnv(t,
		testsupport.WithStubbedBinaries(),
		testsupport.WithWorkerScript(testsupport.BatchScript, "exit 0\n"),
		testsupport.WithWorkerScript(testsupport.VerifyScript, "exit 0\n"),
		testsupport.WithWorkerScript(testsupport.DownloadScript, "exit 0\n"),
	)
	stdout, _, err := env.run(t, "doctor", "--json", "--skip-llm")
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, stdout)
	}
	var report doctorReport
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !report.Healthy || !report.ConfigExists || len(report.Checks) == 0 || len(report.Dependencies) == 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestDoctorFailsWithoutWorkerScripts(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries())
	stdout, _, err := env.run(t, "doctor", "--skip-llm")
	if err == nil {
		t.Fatal("expected doctor to fail")
	}
	requireContains(t, stdout, "Batch worker")
	requireContains(t, stdout, "[ERROR]")
}

func TestVersionFlag(t *testing.T) {
	stdout, _, err := runCLI(t, []string{"--version"})
	if err != nil {
		t.Fatalf("--version: %v", err)
	}
	requireContains(t, stdout, version)
}
