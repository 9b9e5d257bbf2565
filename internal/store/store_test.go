package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"vidscribe/internal/store"
	"vidscribe/internal/testsupport"
)

func TestJobRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	started := time.Now().UTC().Add(-time.Minute).Truncate(time.Millisecond)
	rec := store.JobRecord{
		ID:        "job-1",
		Status:    store.StatusRunning,
		Model:     "small",
		Format:    "txt",
		OutputDir: "/out",
		Files:     []string{"/in/a.mp4", "/in/b.mp4"},
		Total:     2,
		StartedAt: started,
	}
	if err := s.SaveJob(ctx, rec); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}

	finished := started.Add(30 * time.Second)
	rec.Status = store.StatusCompleted
	rec.Processed = 2
	rec.FailedFiles = []string{"/in/b.mp4"}
	rec.FinishedAt = &finished
	if err := s.SaveJob(ctx, rec); err != nil {
		t.Fatalf("SaveJob update: %v", err)
	}

	got, err := s.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got == nil || got.Status != store.StatusCompleted || got.Processed != 2 {
		t.Fatalf("unexpected job: %+v", got)
	}
	if len(got.Files) != 2 || len(got.FailedFiles) != 1 || got.FailedFiles[0] != "/in/b.mp4" {
		t.Fatalf("unexpected file lists: %+v", got)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(finished) || !got.StartedAt.Equal(started) {
		t.Fatalf("unexpected timestamps: %+v", got)
	}
	if got.Elapsed(time.Now()) != 30*time.Second {
		t.Fatalf("unexpected elapsed %v", got.Elapsed(time.Now()))
	}

	missing, err := s.GetJob(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing job, got %+v, %v", missing, err)
	}
}

func TestListJobsNewestFirst(t *testing.T) {
	s := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	base := time.Now().UTC()
	for i, id := range []string{"old", "mid", "new"} {
		if err := s.SaveJob(ctx, store.JobRecord{ID: id, Status: store.StatusCompleted, Model: "base", Format: "txt", OutputDir: "/o", StartedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("SaveJob: %v", err)
		}
	}
	jobs, err := s.ListJobs(ctx, 2)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "new" || jobs[1].ID != "mid" {
		t.Fatalf("unexpected order: %+v", jobs)
	}
}

func TestReconcileInterrupted(t *testing.T) {
	s := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	_ = s.SaveJob(ctx, store.JobRecord{ID: "stale", Status: store.StatusRunning, Model: "base", Format: "txt", OutputDir: "/o"})
	_ = s.SaveJob(ctx, store.JobRecord{ID: "done", Status: store.StatusStopped, Model: "base", Format: "txt", OutputDir: "/o"})

	n, err := s.ReconcileInterrupted(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ReconcileInterrupted = %d, %v", n, err)
	}
	stale, _ := s.GetJob(ctx, "stale")
	if stale.Status != store.StatusFailed || stale.LastError != store.InterruptedReason || stale.FinishedAt == nil {
		t.Fatalf("unexpected stale job: %+v", stale)
	}
	done, _ := s.GetJob(ctx, "done")
	if done.Status != store.StatusStopped {
		t.Fatalf("terminal job changed: %+v", done)
	}
}

func TestEmbeddingCache(t *testing.T) {
	s := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if _, ok, err := s.GetEmbedding(ctx, "h1", "hash-256"); err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
	vec := []float32{0.5, -0.25, 1}
	if err := s.PutEmbedding(ctx, "h1", "hash-256", vec); err != nil {
		t.Fatalf("PutEmbedding: %v", err)
	}
	got, ok, err := s.GetEmbedding(ctx, "h1", "hash-256")
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if len(got) != 3 || got[0] != 0.5 || got[1] != -0.25 || got[2] != 1 {
		t.Fatalf("unexpected vector %v", got)
	}
	if _, ok, _ := s.GetEmbedding(ctx, "h1", "worker"); ok {
		t.Fatal("embedder id must be part of the key")
	}
	if n, _ := s.CountEmbeddings(ctx); n != 1 {
		t.Fatalf("count = %d", n)
	}
	if err := s.ClearEmbeddings(ctx); err != nil {
		t.Fatalf("ClearEmbeddings: %v", err)
	}
	if n, _ := s.CountEmbeddings(ctx); n != 0 {
		t.Fatalf("count after clear = %d", n)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.db")
	s, err := store.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	if err := s.SaveJob(context.Background(), store.JobRecord{ID: "a", Status: store.StatusFailed, Model: "base", Format: "md", OutputDir: "/o"}); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	s, err = store.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if rec, _ := s.GetJob(context.Background(), "a"); rec == nil {
		t.Fatal("expected job to persist")
	}
}
