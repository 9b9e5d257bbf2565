package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"vidscribe/internal/api"
	"vidscribe/internal/config"
	"vidscribe/internal/embedding"
	"vidscribe/internal/jobs"
	"vidscribe/internal/logging"
	"vidscribe/internal/models"
	"vidscribe/internal/retrieval"
	"vidscribe/internal/testsupport"
	"vidscribe/internal/worker"
)

const writeOneTranscript = `
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    --output) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
sep=$(printf '%80s' '' | tr ' ' '=')
echo "PROGRESS: 1/1"
{
  echo "Detected Language: en"
  echo ""
  echo "TRANSCRIPT WITH SPEAKERS:"
  echo "$sep"
  echo ""
  echo "[00:00:00 -> 00:00:04] SPEAKER_00: Hello World"
  echo ""
  echo "$sep"
  echo "FULL TRANSCRIPT:"
  echo "$sep"
  echo ""
  echo "Hello World"
} > "$out/clip_transcript.txt"
`

const holdUntilTerm = `
trap 'exit 0' TERM
echo "PROGRESS: 1/1"
n=0
while [ $n -lt 200 ]; do sleep 0.05; n=$((n+1)); done
`

type fixture struct {
	cfg    *config.Config
	jobs   *jobs.Orchestrator
	server *api.Server
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := testsupport.NewConfig(t, opts...)
	launcher := worker.NewLauncher(worker.ConfigResolver(cfg), logging.NewNop())
	orchestrator := jobs.New(cfg, launcher, testsupport.MustOpenStore(t, cfg), jobs.NewBus(0), logging.NewNop())
	engine := retrieval.New(nil, embedding.NewHashEmbedder(256), nil, retrieval.Options{Threshold: -1}, logging.NewNop())
	srv, err := api.New(api.Options{
		Config:  cfg,
		Jobs:    orchestrator,
		Engine:  engine,
		Models:  models.NewManager(launcher, cfg.Transcription.ModelCacheDir, logging.NewNop()),
		Logger:  logging.NewNop(),
		Version: "test",
	})
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	t.Cleanup(srv.Stop)
	return &fixture{cfg: cfg, jobs: orchestrator, server: srv}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return out
}

func videoFile(t *testing.T) string {
	t.Helper()
	path := t.TempDir() + "/clip.mp4"
	testsupport.WriteFile(t, path, 32)
	return path
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	health := decode[api.HealthResponse](t, rec)
	if health.Status != "ok" || health.Version != "test" || health.JobActive || health.Synthesis {
		t.Fatalf("unexpected health %+v", health)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a request id header")
	}
}

func TestBatchWaitReturnsOutcome(t *testing.T) {
	f := newFixture(t, testsupport.WithWorkerScript(testsupport.BatchScript, writeOneTranscript))
	rec := f.do(t, http.MethodPost, "/api/batch?wait=true", map[string]any{
		"videoFiles":   []string{videoFile(t)},
		"outputFolder": f.cfg.Paths.OutputDir,
		"model":        "tiny",
		"format":       "txt",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	outcome := decode[map[string]any](t, rec)
	if outcome["success"] != true || outcome["stopped"] != false || outcome["status"] != "completed" {
		t.Fatalf("unexpected outcome %v", outcome)
	}

	search := f.do(t, http.MethodPost, "/api/search", api.SearchRequest{Action: "keyword", Query: "hello", OutputFolder: f.cfg.Paths.OutputDir})
	if search.Code != http.StatusOK {
		t.Fatalf("search status = %d body=%s", search.Code, search.Body.String())
	}
	results := decode[api.ResultsResponse](t, search)
	if len(results.Results) != 1 || results.Results[0].FileName != "clip" {
		t.Fatalf("unexpected results %+v", results)
	}

	list := decode[api.JobListResponse](t, f.do(t, http.MethodGet, "/api/jobs", nil))
	if len(list.Jobs) != 1 || list.Jobs[0].Status != "completed" || list.Jobs[0].Processed != 1 {
		t.Fatalf("unexpected job list %+v", list)
	}
	job := f.do(t, http.MethodGet, "/api/jobs/"+list.Jobs[0].ID, nil)
	if job.Code != http.StatusOK || decode[api.Job](t, job).Model != "tiny" {
		t.Fatalf("unexpected job lookup %d %s", job.Code, job.Body.String())
	}
}

func TestSecondBatchConflictsAndCancel(t *testing.T) {
	f := newFixture(t, testsupport.WithWorkerScript(testsupport.BatchScript, holdUntilTerm))
	body := map[string]any{"videoFiles": []string{videoFile(t)}, "outputFolder": f.cfg.Paths.OutputDir}

	first := f.do(t, http.MethodPost, "/api/batch", body)
	if first.Code != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", first.Code, first.Body.String())
	}
	started := decode[api.BatchStarted](t, first)
	if !started.Success || started.JobID == "" {
		t.Fatalf("unexpected start payload %+v", started)
	}

	active := decode[api.ActiveBatch](t, f.do(t, http.MethodGet, "/api/batch", nil))
	if !active.Active || active.Job == nil || active.Job.ID != started.JobID {
		t.Fatalf("expected active job, got %+v", active)
	}

	second := f.do(t, http.MethodPost, "/api/batch", body)
	if second.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", second.Code)
	}
	if resp := decode[api.ErrorResponse](t, second); resp.Success || resp.Code != "job_running" {
		t.Fatalf("unexpected conflict payload %+v", resp)
	}

	cancel := decode[api.CancelResponse](t, f.do(t, http.MethodPost, "/api/batch/cancel", nil))
	if !cancel.Success || cancel.JobID != started.JobID {
		t.Fatalf("unexpected cancel payload %+v", cancel)
	}
	ctx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	final, err := f.jobs.Wait(ctx, started.JobID)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if final.Status != "stopped" {
		t.Fatalf("expected stopped job, got %+v", final)
	}

	again := decode[api.CancelResponse](t, f.do(t, http.MethodPost, "/api/batch/cancel", nil))
	if again.Success {
		t.Fatal("cancel without a running job must report success=false")
	}
	if idle := decode[api.ActiveBatch](t, f.do(t, http.MethodGet, "/api/batch", nil)); idle.Active {
		t.Fatal("expected no active job")
	}
}

func TestBatchValidation(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/batch", map[string]any{"outputFolder": f.cfg.Paths.OutputDir})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp := decode[api.ErrorResponse](t, rec); resp.Code != "no_input_files" {
		t.Fatalf("unexpected code %q", resp.Code)
	}

	bad := httptest.NewRequest(http.MethodPost, "/api/batch", strings.NewReader("{"))
	out := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(out, bad)
	if out.Code != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d", out.Code)
	}

	if missing := f.do(t, http.MethodGet, "/api/jobs/nope", nil); missing.Code != http.StatusNotFound {
		t.Fatalf("unknown job status = %d", missing.Code)
	}
	if limit := f.do(t, http.MethodGet, "/api/jobs?limit=x", nil); limit.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", limit.Code)
	}
}

func TestSearchErrors(t *testing.T) {
	f := newFixture(t)
	testsupport.WriteTranscript(t, f.cfg.Paths.OutputDir, "standup", "en", "We ship on Friday")

	cases := []struct {
		name   string
		req    api.SearchRequest
		status int
		code   string
	}{
		{"unknown action", api.SearchRequest{Action: "fuzzy", Query: "x", OutputFolder: f.cfg.Paths.OutputDir}, http.StatusBadRequest, "validation"},
		{"empty query", api.SearchRequest{Action: "keyword", OutputFolder: f.cfg.Paths.OutputDir}, http.StatusBadRequest, "validation"},
		{"missing folder", api.SearchRequest{Action: "semantic", Query: "ship", OutputFolder: f.cfg.Paths.OutputDir + "/absent"}, http.StatusNotFound, "not_found"},
		{"no provider", api.SearchRequest{Action: "ask", Query: "When do we ship?", OutputFolder: f.cfg.Paths.OutputDir}, http.StatusServiceUnavailable, "synthesis_unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/search", tc.req)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.status, rec.Body.String())
			}
			if resp := decode[api.ErrorResponse](t, rec); resp.Code != tc.code {
				t.Fatalf("code = %q, want %q", resp.Code, tc.code)
			}
		})
	}
}

func TestSearchSemanticAndIndex(t *testing.T) {
	f := newFixture(t)
	testsupport.WriteTranscript(t, f.cfg.Paths.OutputDir, "standup", "en", "We reviewed the quarterly budget numbers", "Lunch was delicious")

	rec := f.do(t, http.MethodPost, "/api/search", api.SearchRequest{Action: "semantic", Query: "quarterly budget numbers", OutputFolder: f.cfg.Paths.OutputDir})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	results := decode[api.ResultsResponse](t, rec)
	if len(results.Results) != 1 || results.Results[0].Matches[0].RelevanceScore <= 0 {
		t.Fatalf("unexpected results %+v", results)
	}

	empty := f.do(t, http.MethodPost, "/api/search", api.SearchRequest{Action: "keyword", Query: "zebra", OutputFolder: f.cfg.Paths.OutputDir})
	if !strings.Contains(empty.Body.String(), `"results":[]`) {
		t.Fatalf("expected an empty results array, got %s", empty.Body.String())
	}

	index := decode[api.IndexResponse](t, f.do(t, http.MethodPost, "/api/search", api.SearchRequest{Action: "index", OutputFolder: f.cfg.Paths.OutputDir}))
	if index.Index.Indexed != 1 || index.Index.Segments != 2 {
		t.Fatalf("unexpected index summary %+v", index.Index)
	}
}

func TestModelRoutes(t *testing.T) {
	f := newFixture(t,
		testsupport.WithWorkerScript(testsupport.VerifyScript, `echo '{"exists": true, "path": "/models/base.pt", "size_bytes": 2048}'`+"\n"),
		testsupport.WithWorkerScript(testsupport.DownloadScript, `
echo "PROGRESS: 1/2"
echo "PROGRESS: 2/2"
echo '{"success": true, "model": "base", "path": "/models/base.pt", "size_bytes": 2048}'
`),
	)
	events, unsubscribe := f.jobs.Bus().Subscribe(0)
	defer unsubscribe()

	verify := f.do(t, http.MethodGet, "/api/models/base", nil)
	if verify.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", verify.Code, verify.Body.String())
	}
	if rec := decode[models.Record](t, verify); !rec.Exists || rec.Size != "2.0 KiB" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if bad := f.do(t, http.MethodGet, "/api/models/huge", nil); bad.Code != http.StatusBadRequest {
		t.Fatalf("unknown model status = %d", bad.Code)
	}

	download := f.do(t, http.MethodPost, "/api/models/base/download", nil)
	if download.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", download.Code, download.Body.String())
	}
	if res := decode[models.DownloadResult](t, download); !res.Success || res.Path != "/models/base.pt" {
		t.Fatalf("unexpected download result %+v", res)
	}
	var progress int
	for len(events) > 0 {
		if ev := <-events; ev.Type == jobs.EventDownloadProgress && ev.Total == 2 {
			progress++
		}
	}
	if progress != 2 {
		t.Fatalf("expected two download_progress events, got %d", progress)
	}

	list := decode[map[string][]api.ModelEntry](t, f.do(t, http.MethodGet, "/api/models", nil))
	if len(list["models"]) != len(models.Catalog) || list["models"][0].Name != "tiny" {
		t.Fatalf("unexpected model list %+v", list)
	}
}

func TestEventStreamReplaysAndPushes(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()
	bus := f.jobs.Bus()
	first := bus.Publish(jobs.Event{Type: jobs.EventLog, Message: "before connect"})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events?since=0"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ev jobs.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read replay: %v", err)
	}
	if ev.Seq != first.Seq || ev.Message != "before connect" {
		t.Fatalf("unexpected replay %+v", ev)
	}

	bus.Publish(jobs.Event{Type: jobs.EventProgress, JobID: "job-1", Current: 1, Total: 3})
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read push: %v", err)
	}
	if ev.Type != jobs.EventProgress || ev.Current != 1 || ev.Total != 3 || ev.JobID != "job-1" {
		t.Fatalf("unexpected pushed event %+v", ev)
	}
}

func TestEventStreamRejectsForeignOrigin(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	header := http.Header{"Origin": []string{"https://evil.example"}}
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %+v", resp)
	}
}

func TestCORSAllowsLoopbackOrigins(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/search", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}
