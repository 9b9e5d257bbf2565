package worker_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"vidscribe/internal/protocol"
	"vidscribe/internal/services"
	"vidscribe/internal/testsupport"
	"vidscribe/internal/worker"
)

func newLauncher(t *testing.T, script string, body string) *worker.Launcher {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerScript(script, body))
	return worker.NewLauncher(worker.ConfigResolver(cfg), nil)
}

func collect(h *worker.Handle) (stdout, stderr []string) {
	h.Each(func(stream protocol.Stream, line string) {
		if stream == protocol.Stderr {
			stderr = append(stderr, line)
			return
		}
		stdout = append(stdout, line)
	})
	return stdout, stderr
}

func TestLaunchStreamsLinesInOrder(t *testing.T) {
	l := newLauncher(t, testsupport.SearchScript, `
echo "args: $*"
echo "unbuffered=$PYTHONUNBUFFERED"
for i in 1 2 3; do echo "line $i"; done
echo "oops" >&2
echo '{"ok":true}'
`)
	h, err := l.Launch(context.Background(), worker.KindSearch, []string{"--action", "index"})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if h.PID() == 0 || h.Kind() != worker.KindSearch {
		t.Fatalf("unexpected handle pid=%d kind=%s", h.PID(), h.Kind())
	}
	stdout, stderr := collect(h)
	status := h.Wait()
	if !status.Success() || status.ExitCode != 0 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if err := h.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}
	want := []string{"args: --action index", "unbuffered=1", "line 1", "line 2", "line 3", `{"ok":true}`}
	if !slices.Equal(stdout, want) {
		t.Fatalf("stdout = %q, want %q", stdout, want)
	}
	if !slices.Equal(stderr, []string{"oops"}) {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestLaunchReportsNonzeroExit(t *testing.T) {
	l := newLauncher(t, testsupport.VerifyScript, "echo failing >&2\nexit 3\n")
	status, err := l.Run(context.Background(), worker.KindVerifyModel, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status.ExitCode != 3 || status.StoppedByCancel || status.Success() {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestLaunchMissingScriptIsLaunchFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	l := worker.NewLauncher(worker.ConfigResolver(cfg), nil)
	_, err := l.Launch(context.Background(), worker.KindBatchTranscribe, nil)
	if !errors.Is(err, services.ErrLaunch) {
		t.Fatalf("expected ErrLaunch, got %v", err)
	}
	if services.Code(err) != "launch_failed" {
		t.Fatalf("unexpected code %q", services.Code(err))
	}
}

func TestLaunchMissingInterpreterIsLaunchFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerScript(testsupport.BatchScript, "exit 0\n"))
	cfg.Worker.Interpreter = filepath.Join(t.TempDir(), "no-such-python")
	l := worker.NewLauncher(worker.ConfigResolver(cfg), nil)
	if _, err := l.Launch(context.Background(), worker.KindBatchTranscribe, nil); !errors.Is(err, services.ErrLaunch) {
		t.Fatalf("expected ErrLaunch, got %v", err)
	}
}

func TestLaunchUnknownKind(t *testing.T) {
	l := worker.NewLauncher(worker.ConfigResolver(testsupport.NewConfig(t)), nil)
	if _, err := l.Launch(context.Background(), worker.Kind("transcode"), nil); !errors.Is(err, services.ErrLaunch) {
		t.Fatalf("expected ErrLaunch, got %v", err)
	}
}

// The stub finishes its in-flight "file" after SIGTERM instead of dying.
const gracefulScript = `
stop=0
trap 'stop=1' TERM
echo started
i=0
while [ $i -lt 50 ]; do
  i=$((i+1))
  sleep 0.1
  if [ $stop -eq 1 ]; then
    echo "finishing current file"
    exit 0
  fi
done
echo "ran to completion"
`

func TestCancelSendsGracefulSignal(t *testing.T) {
	l := newLauncher(t, testsupport.BatchScript, gracefulScript)
	h, err := l.Launch(context.Background(), worker.KindBatchTranscribe, nil)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	first := <-h.Stdout()
	if first != "started" {
		t.Fatalf("unexpected first line %q", first)
	}
	if err := h.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !h.CancelRequested() {
		t.Fatal("expected cancel to be recorded")
	}
	// A second cancel must not error or signal again.
	if err := h.Cancel(); err != nil {
		t.Fatalf("second Cancel: %v", err)
	}
	stdout, _ := collect(h)
	status := h.Wait()
	if !status.StoppedByCancel || status.ExitCode != 0 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if !slices.Contains(stdout, "finishing current file") {
		t.Fatalf("worker did not observe the graceful stop: %q", stdout)
	}
}

func TestContextCancelMapsToGracefulSignal(t *testing.T) {
	l := newLauncher(t, testsupport.BatchScript, gracefulScript)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h, err := l.Launch(ctx, worker.KindBatchTranscribe, nil)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	<-h.Stdout()
	cancel()
	stdout, _ := collect(h)
	status := h.Wait()
	if !status.StoppedByCancel {
		t.Fatalf("expected stopped by cancel: %+v", status)
	}
	if err := h.Err(); err != nil {
		t.Fatalf("context cancel should not surface as I/O error: %v", err)
	}
	if !slices.Contains(stdout, "finishing current file") {
		t.Fatalf("expected graceful shutdown output, got %q", stdout)
	}
}

func TestCancelAfterExitIsNoop(t *testing.T) {
	l := newLauncher(t, testsupport.SearchScript, "echo done\n")
	h, err := l.Launch(context.Background(), worker.KindSearch, nil)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	collect(h)
	h.Wait()
	if err := h.Cancel(); err != nil {
		t.Fatalf("Cancel after exit: %v", err)
	}
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("done channel not closed")
	}
}

func TestRunFeedsLinesAndPassesEnv(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerScript(testsupport.DownloadScript, `echo "token=$HF_TOKEN cache=$VIDSCRIBE_MODEL_CACHE_DIR"`+"\n"))
	cfg.Transcription.HuggingFaceToken = "hf_test"
	l := worker.NewLauncher(worker.ConfigResolver(cfg), nil)
	var lines []string
	status, err := l.Run(context.Background(), worker.KindDownloadModel, nil, func(_ protocol.Stream, line string) {
		lines = append(lines, line)
	})
	if err != nil || !status.Success() {
		t.Fatalf("Run: status=%+v err=%v", status, err)
	}
	if len(lines) != 1 || !strings.Contains(lines[0], "hf_test") {
		t.Fatalf("unexpected lines %q", lines)
	}
	if !strings.HasSuffix(lines[0], "cache="+cfg.Transcription.ModelCacheDir) {
		t.Fatalf("model cache dir not exported: %q", lines[0])
	}
}

func TestLongLinesAreDelivered(t *testing.T) {
	dir := t.TempDir()
	payload := filepath.Join(dir, "payload.txt")
	if err := os.WriteFile(payload, []byte(strings.Repeat("x", 200_000)+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := newLauncher(t, testsupport.SearchScript, "cat "+payload+"\n")
	var got []string
	if _, err := l.Run(context.Background(), worker.KindSearch, nil, func(_ protocol.Stream, line string) {
		got = append(got, line)
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 1 || len(got[0]) != 200_000 {
		t.Fatalf("expected one 200k line, got %d lines", len(got))
	}
}
