package transcript

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	// [00:00:05 -> 00:00:08] SPEAKER_00: text
	txtSegmentPattern = regexp.MustCompile(`^\[([\d:]+) -> ([\d:]+)\](?: (.*))?$`)
	// ### 00:00:05 → 00:00:08
	mdSegmentPattern = regexp.MustCompile(`^### ([\d:]+) (?:→|->) ([\d:]+)\s*$`)
	// Only diarization labels count as speakers, so "NOTE: ..." stays text.
	// The label may close the line when the segment text is empty.
	speakerPattern   = regexp.MustCompile(`^(` + speakerLabel + `):(?: (.*))?$`)
	mdSpeakerPattern = regexp.MustCompile(`^\*\*(` + speakerLabel + `):\*\*(?: (.*))?$`)
)

const speakerLabel = `SPEAKER_\d+|UNKNOWN`

// Parse decodes a transcript in either persisted layout.
func Parse(data []byte) (Transcript, error) {
	if looksLikeMarkdown(data) {
		return ParseMD(data)
	}
	return ParseTXT(data)
}

func looksLikeMarkdown(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return bytes.HasPrefix(trimmed, []byte("# ")) || bytes.Contains(data, []byte("**Language:**"))
}

// ParseTXT decodes the plain-text layout. The language line, a separator, and
// the FULL TRANSCRIPT section are required; their absence means the file is
// malformed or still being written.
func ParseTXT(data []byte) (Transcript, error) {
	t := Transcript{Format: FormatTXT}
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")

	var (
		sawLanguage  bool
		sawSeparator bool
		fullStart    = -1
	)
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "Detected Language:"):
			t.Language = strings.TrimSpace(strings.TrimPrefix(trimmed, "Detected Language:"))
			sawLanguage = true
		case strings.HasPrefix(trimmed, "Total Duration:"):
			d, err := ParseClock(strings.TrimPrefix(trimmed, "Total Duration:"))
			if err != nil {
				return Transcript{}, fmt.Errorf("%w: %w", ErrMalformed, err)
			}
			t.Duration = d
		case trimmed == separator:
			sawSeparator = true
		case trimmed == "FULL TRANSCRIPT:":
			fullStart = i + 1
		case strings.HasPrefix(trimmed, "["):
			seg, err := parseTXTSegment(trimmed)
			if err != nil {
				return Transcript{}, err
			}
			t.Segments = append(t.Segments, seg)
		}
		if fullStart >= 0 {
			break
		}
	}

	if !sawLanguage {
		return Transcript{}, fmt.Errorf("%w: missing Detected Language line", ErrMalformed)
	}
	if !sawSeparator || fullStart < 0 {
		return Transcript{}, fmt.Errorf("%w: missing FULL TRANSCRIPT section", ErrMalformed)
	}
	rest := lines[fullStart:]
	if len(rest) > 0 && strings.TrimSpace(rest[0]) == separator {
		rest = rest[1:]
	} else {
		return Transcript{}, fmt.Errorf("%w: FULL TRANSCRIPT heading not closed by separator", ErrMalformed)
	}
	t.FullText = strings.TrimSpace(strings.Join(rest, "\n"))
	if err := t.Validate(); err != nil {
		return Transcript{}, err
	}
	return t, nil
}

func parseTXTSegment(line string) (Segment, error) {
	m := txtSegmentPattern.FindStringSubmatch(line)
	if m == nil {
		return Segment{}, fmt.Errorf("%w: unrecognized segment line %q", ErrMalformed, line)
	}
	seg, err := segmentTimes(m[1], m[2])
	if err != nil {
		return Segment{}, err
	}
	body := m[3]
	if sm := speakerPattern.FindStringSubmatch(body); sm != nil {
		seg.Speaker = sm[1]
		body = sm[2]
	}
	seg.Text = strings.TrimSpace(body)
	return seg, nil
}

// ParseMD decodes the Markdown layout.
func ParseMD(data []byte) (Transcript, error) {
	t := Transcript{Format: FormatMD}
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")

	var (
		sawLanguage bool
		fullStart   = -1
		pending     *Segment
	)
	flush := func() {
		if pending != nil {
			t.Segments = append(t.Segments, *pending)
			pending = nil
		}
	}
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "# Transcript:"):
			t.Name = strings.TrimSpace(strings.TrimPrefix(trimmed, "# Transcript:"))
		case strings.HasPrefix(trimmed, "**Language:**"):
			t.Language = strings.TrimSpace(strings.TrimPrefix(trimmed, "**Language:**"))
			sawLanguage = true
		case strings.HasPrefix(trimmed, "**Duration:**"):
			d, err := ParseClock(strings.TrimPrefix(trimmed, "**Duration:**"))
			if err != nil {
				return Transcript{}, fmt.Errorf("%w: %w", ErrMalformed, err)
			}
			t.Duration = d
		case trimmed == "## Full Transcript":
			flush()
			fullStart = i + 1
		case strings.HasPrefix(trimmed, "### "):
			flush()
			m := mdSegmentPattern.FindStringSubmatch(trimmed)
			if m == nil {
				return Transcript{}, fmt.Errorf("%w: unrecognized segment heading %q", ErrMalformed, trimmed)
			}
			seg, err := segmentTimes(m[1], m[2])
			if err != nil {
				return Transcript{}, err
			}
			pending = &seg
		case pending != nil && trimmed != "" && trimmed != "---":
			if sm := mdSpeakerPattern.FindStringSubmatch(trimmed); sm != nil {
				pending.Speaker = sm[1]
				pending.Text = strings.TrimSpace(sm[2])
			} else {
				pending.Text = trimmed
			}
			flush()
		}
		if fullStart >= 0 {
			break
		}
	}
	if pending != nil {
		return Transcript{}, fmt.Errorf("%w: segment heading without text", ErrMalformed)
	}
	if !sawLanguage {
		return Transcript{}, fmt.Errorf("%w: missing Language line", ErrMalformed)
	}
	if fullStart < 0 {
		return Transcript{}, fmt.Errorf("%w: missing Full Transcript section", ErrMalformed)
	}
	t.FullText = strings.TrimSpace(strings.Join(lines[fullStart:], "\n"))
	if err := t.Validate(); err != nil {
		return Transcript{}, err
	}
	return t, nil
}

func segmentTimes(start, end string) (Segment, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Segment{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	e, err := ParseClock(end)
	if err != nil {
		return Segment{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return Segment{Start: s, End: e}, nil
}

// Duration of the last segment end, used when a file omits Total Duration.
func (t Transcript) lastEnd() time.Duration {
	if len(t.Segments) == 0 {
		return 0
	}
	return t.Segments[len(t.Segments)-1].End
}
