package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"vidscribe/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrLaunch, "worker", "start", "python3 missing", base)
	if !errors.Is(err, services.ErrLaunch) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	for _, fragment := range []string{"worker", "start", "python3 missing"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected %q in error string %q", fragment, err.Error())
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestCodeMapping(t *testing.T) {
	cases := map[string]error{
		"launch_failed":         services.Wrap(services.ErrLaunch, "worker", "start", "", nil),
		"protocol_error":        fmt.Errorf("outer: %w", services.ErrProtocol),
		"job_failed":            services.ErrJobFailed,
		"synthesis_unavailable": services.ErrSynthesisUnavailable,
		"validation":            services.Wrap(services.ErrValidation, "jobs", "start", "bad", nil),
		"internal":              errors.New("other"),
		"":                      nil,
	}
	for want, err := range cases {
		if got := services.Code(err); got != want {
			t.Fatalf("Code(%v) = %q, want %q", err, got, want)
		}
	}
}
