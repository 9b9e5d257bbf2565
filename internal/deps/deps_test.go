package deps

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected blank result %#v", results[2])
	}
}

func TestCheckFiles(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "batch_processor.py")
	if err := os.WriteFile(script, []byte("print('hi')\n"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	results := CheckFiles([]Requirement{
		{Name: "Batch worker", Command: script},
		{Name: "Search worker", Command: filepath.Join(dir, "search_handler.py"), Optional: true},
		{Name: "Folder", Command: dir},
	})
	if !results[0].Available {
		t.Fatalf("expected script without exec bit to count, got %#v", results[0])
	}
	if results[1].Available || !results[1].Optional {
		t.Fatalf("unexpected missing script result %#v", results[1])
	}
	if results[2].Available {
		t.Fatal("a directory is not a worker script")
	}
}

func TestCheckFFmpegForWorkerVirtualenv(t *testing.T) {
	venvBin := t.TempDir()
	pythonPath := filepath.Join(venvBin, executableName("python3"))
	ffmpegPath := filepath.Join(venvBin, executableName("ffmpeg"))
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(pythonPath, script, 0o755); err != nil {
		t.Fatalf("write python stub: %v", err)
	}
	if err := os.WriteFile(ffmpegPath, script, 0o755); err != nil {
		t.Fatalf("write ffmpeg sidecar: %v", err)
	}

	status := CheckFFmpegForWorker(pythonPath)
	if !status.Available {
		t.Fatalf("expected ffmpeg sidecar to be available, got detail %q", status.Detail)
	}
	if status.Command != ffmpegPath {
		t.Fatalf("expected ffmpeg command %q, got %q", ffmpegPath, status.Command)
	}
}

func TestCheckFFmpegForWorkerPathFallback(t *testing.T) {
	tmp := t.TempDir()
	pythonPath := filepath.Join(tmp, executableName("python3"))
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(pythonPath, script, 0o755); err != nil {
		t.Fatalf("write python stub: %v", err)
	}

	binDir := filepath.Join(tmp, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin: %v", err)
	}
	ffprobePath := filepath.Join(binDir, executableName("ffprobe"))
	if err := os.WriteFile(ffprobePath, script, 0o755); err != nil {
		t.Fatalf("write ffprobe stub: %v", err)
	}
	oldPath := os.Getenv("PATH")
	newPath := binDir
	if oldPath != "" {
		newPath = binDir + string(os.PathListSeparator) + oldPath
	}
	t.Setenv("PATH", newPath)

	status := CheckFFprobeForWorker(pythonPath)
	if !status.Available || !status.Optional {
		t.Fatalf("expected ffprobe fallback to be available, got %#v", status)
	}
	if status.Command != ffprobePath {
		t.Fatalf("expected ffprobe command %q, got %q", ffprobePath, status.Command)
	}
}

func TestCheckFFmpegForWorkerNotFound(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("PATH", "")
	status := CheckFFmpegForWorker(filepath.Join(tmp, executableName("python3")))
	if status.Available {
		t.Fatal("expected ffmpeg resolution to fail")
	}
	if status.Detail == "" {
		t.Fatal("expected detail message when ffmpeg is unavailable")
	}
}

func executableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}
