package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrLaunch marks a worker that could not be started.
	ErrLaunch = errors.New("worker launch failed")
	// ErrProtocol marks worker output that violates the line protocol, such as
	// a missing or unparseable trailing JSON result.
	ErrProtocol = errors.New("worker protocol error")
	// ErrJobFailed marks a batch job in which no file succeeded.
	ErrJobFailed = errors.New("job failed")
	// ErrSynthesisUnavailable is returned by ask queries when no provider is configured.
	ErrSynthesisUnavailable = errors.New("answer synthesis unavailable")

	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Code maps an error to a stable machine-readable code for API responses.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLaunch):
		return "launch_failed"
	case errors.Is(err, ErrProtocol):
		return "protocol_error"
	case errors.Is(err, ErrJobFailed):
		return "job_failed"
	case errors.Is(err, ErrSynthesisUnavailable):
		return "synthesis_unavailable"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrExternalTool):
		return "external_tool"
	default:
		return "internal"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{component, operation, message} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
