package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"vidscribe/internal/services"
)

// TrailingJSON tracks the last JSON-looking line of a worker run. Noise lines
// printed before the result (download progress, library warnings) are ignored.
type TrailingJSON struct {
	stdout string
	stderr string
}

// Observe records a line if it starts with '{'.
func (t *TrailingJSON) Observe(stream Stream, line string) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return
	}
	if stream == Stderr {
		t.stderr = trimmed
		return
	}
	t.stdout = trimmed
}

// Result returns the terminal payload. A missing or invalid candidate is a
// protocol failure even when the worker exited zero.
func (t *TrailingJSON) Result() (json.RawMessage, error) {
	if t.stdout == "" {
		return nil, fmt.Errorf("%w: no terminal JSON result on stdout", services.ErrProtocol)
	}
	if !json.Valid([]byte(t.stdout)) {
		return nil, fmt.Errorf("%w: terminal result is not valid JSON: %s", services.ErrProtocol, snippet(t.stdout))
	}
	return json.RawMessage(t.stdout), nil
}

// Decode unmarshals the terminal payload into v.
func (t *TrailingJSON) Decode(v any) error {
	raw, err := t.Result()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: decode terminal result: %w", services.ErrProtocol, err)
	}
	return nil
}

// FailurePayload returns the last JSON object the worker wrote to stderr.
// Workers report structured failures there before exiting nonzero.
func (t *TrailingJSON) FailurePayload() (json.RawMessage, bool) {
	if t.stderr == "" || !json.Valid([]byte(t.stderr)) {
		return nil, false
	}
	return json.RawMessage(t.stderr), true
}

func snippet(s string) string {
	const limit = 120
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
