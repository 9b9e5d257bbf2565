package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"vidscribe/internal/services"
)

// Stream identifies which pipe a line was read from.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// EventKind tags the variant held by an Event.
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventLog      EventKind = "log"
	EventError    EventKind = "error"
	EventResult   EventKind = "result"
)

// ProgressPrefix starts every progress sentinel line.
const ProgressPrefix = "PROGRESS:"

// ErrMalformedProgress flags a sentinel whose numbers do not parse or violate
// 1 <= current <= total. The line is still delivered as text.
var ErrMalformedProgress = fmt.Errorf("%w: malformed progress sentinel", services.ErrProtocol)

// Event is a decoded worker line.
type Event struct {
	Kind    EventKind       `json:"kind"`
	Current int             `json:"current,omitempty"`
	Total   int             `json:"total,omitempty"`
	Text    string          `json:"text,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Err     error           `json:"-"`
}

// Decode classifies one line of worker output.
func Decode(stream Stream, line string) Event {
	line = strings.TrimRight(line, "\r\n")
	if rest, ok := strings.CutPrefix(line, ProgressPrefix); ok {
		if current, total, ok := parseProgress(rest); ok {
			return Event{Kind: EventProgress, Current: current, Total: total}
		}
		ev := textEvent(stream, line)
		ev.Err = fmt.Errorf("%w: %q", ErrMalformedProgress, line)
		return ev
	}
	return textEvent(stream, line)
}

// ResultEvent wraps a terminal JSON payload.
func ResultEvent(raw json.RawMessage) Event {
	return Event{Kind: EventResult, Result: raw}
}

func textEvent(stream Stream, line string) Event {
	if stream == Stderr {
		return Event{Kind: EventError, Text: line}
	}
	return Event{Kind: EventLog, Text: line}
}

func parseProgress(rest string) (int, int, bool) {
	left, right, ok := strings.Cut(strings.TrimSpace(rest), "/")
	if !ok {
		return 0, 0, false
	}
	current, err := strconv.Atoi(strings.TrimSpace(left))
	if err != nil {
		return 0, 0, false
	}
	total, err := strconv.Atoi(strings.TrimSpace(right))
	if err != nil {
		return 0, 0, false
	}
	if current < 1 || current > total {
		return 0, 0, false
	}
	return current, total, true
}
