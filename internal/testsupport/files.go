package testsupport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vidscribe/internal/transcript"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(strings.Repeat("B", int(size))), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteScript writes an executable /bin/sh script.
func WriteScript(t testing.TB, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script %s: %v", path, err)
	}
}

// Segments builds a simple transcript body with one segment per line of text,
// five seconds apart, alternating between two speakers.
func Segments(lines ...string) []transcript.Segment {
	segs := make([]transcript.Segment, 0, len(lines))
	for i, text := range lines {
		start := time.Duration(i*5) * time.Second
		speaker := "SPEAKER_00"
		if i%2 == 1 {
			speaker = "SPEAKER_01"
		}
		segs = append(segs, transcript.Segment{Start: start, End: start + 4*time.Second, Speaker: speaker, Text: text})
	}
	return segs
}

// WriteTranscript renders a txt transcript named <stem>_transcript.txt in dir
// and returns its path.
func WriteTranscript(t testing.TB, dir, stem, language string, lines ...string) string {
	t.Helper()
	segs := Segments(lines...)
	tr := transcript.Transcript{Name: stem, Language: language, Segments: segs, FullText: strings.Join(lines, " ")}
	data, err := transcript.Render(transcript.FormatTXT, tr)
	if err != nil {
		t.Fatalf("render transcript: %v", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, transcript.FileName(stem, transcript.FormatTXT))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}
	return path
}
