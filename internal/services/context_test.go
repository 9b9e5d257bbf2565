package services_test

import (
	"context"
	"testing"

	"vidscribe/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobID(ctx, "job-42")
	ctx = services.WithWorkerKind(ctx, "batch-transcribe")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.JobIDFromContext(ctx); !ok || id != "job-42" {
		t.Fatalf("unexpected job id: %v %v", id, ok)
	}
	if kind, ok := services.WorkerKindFromContext(ctx); !ok || kind != "batch-transcribe" {
		t.Fatalf("unexpected worker kind: %v %v", kind, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := services.WithJobID(context.Background(), "")
	ctx = services.WithWorkerKind(ctx, "")
	if _, ok := services.JobIDFromContext(ctx); ok {
		t.Fatal("expected no job id")
	}
	if _, ok := services.WorkerKindFromContext(ctx); ok {
		t.Fatal("expected no worker kind")
	}
}
