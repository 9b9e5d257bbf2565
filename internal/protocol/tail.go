package protocol

import "strings"

// Tail keeps the last N lines of a stream for diagnostics.
type Tail struct {
	max   int
	lines []string
}

// NewTail returns a Tail retaining at most limit lines.
func NewTail(limit int) *Tail {
	if limit < 1 {
		limit = 1
	}
	return &Tail{max: limit}
}

// Add appends a non-blank line, evicting the oldest when full.
func (t *Tail) Add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if len(t.lines) == t.max {
		copy(t.lines, t.lines[1:])
		t.lines = t.lines[:t.max-1]
	}
	t.lines = append(t.lines, line)
}

// Last returns the most recent line.
func (t *Tail) Last() string {
	if len(t.lines) == 0 {
		return ""
	}
	return t.lines[len(t.lines)-1]
}

// Lines returns a copy of the retained lines, oldest first.
func (t *Tail) Lines() []string {
	return append([]string(nil), t.lines...)
}

func (t *Tail) String() string {
	return strings.Join(t.lines, "\n")
}
