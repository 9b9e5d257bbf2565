package transcript

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Format is a persisted transcript layout.
type Format string

const (
	FormatTXT Format = "txt"
	FormatMD  Format = "md"
)

// FileSuffix is appended to the source stem for transcript files.
const FileSuffix = "_transcript"

// ErrMalformed marks a transcript file that does not follow the persisted
// layout, including files truncated mid-write.
var ErrMalformed = errors.New("malformed transcript")

// Segment is one time-stamped utterance. Speaker is a diarization label
// (SPEAKER_00, UNKNOWN) or empty.
type Segment struct {
	Start   time.Duration `json:"start"`
	End     time.Duration `json:"end"`
	Speaker string        `json:"speaker,omitempty"`
	Text    string        `json:"text"`
}

// Timestamp renders the segment's time range as "hh:mm:ss -> hh:mm:ss".
func (s Segment) Timestamp() string {
	return FormatClock(s.Start) + " -> " + FormatClock(s.End)
}

// Transcript is the parsed content of one transcript file.
type Transcript struct {
	Name     string        `json:"file_name"`
	Path     string        `json:"path,omitempty"`
	Format   Format        `json:"format,omitempty"`
	Language string        `json:"language"`
	Duration time.Duration `json:"duration,omitempty"`
	Segments []Segment     `json:"segments"`
	FullText string        `json:"full_text"`
	ModTime  time.Time     `json:"mod_time,omitzero"`
}

// Text returns the searchable body: the full transcript when present,
// otherwise the concatenated segments.
func (t Transcript) Text() string {
	if strings.TrimSpace(t.FullText) != "" {
		return t.FullText
	}
	parts := make([]string, 0, len(t.Segments))
	for _, seg := range t.Segments {
		parts = append(parts, seg.Text)
	}
	return strings.Join(parts, " ")
}

// Validate checks segment ordering: start <= end, and starts never go backwards.
func (t Transcript) Validate() error {
	var prev time.Duration
	for i, seg := range t.Segments {
		if seg.Start > seg.End {
			return fmt.Errorf("%w: segment %d ends before it starts", ErrMalformed, i+1)
		}
		if i > 0 && seg.Start < prev {
			return fmt.Errorf("%w: segment %d is out of order", ErrMalformed, i+1)
		}
		prev = seg.Start
	}
	return nil
}

// FileName returns "<stem>_transcript.<ext>".
func FileName(stem string, format Format) string {
	return stem + FileSuffix + "." + string(format)
}

// SplitFileName reports the stem and format of a transcript file name.
func SplitFileName(name string) (string, Format, bool) {
	base := filepath.Base(name)
	ext := strings.ToLower(filepath.Ext(base))
	var format Format
	switch ext {
	case ".txt":
		format = FormatTXT
	case ".md":
		format = FormatMD
	default:
		return "", "", false
	}
	stem, ok := strings.CutSuffix(strings.TrimSuffix(base, filepath.Ext(base)), FileSuffix)
	if !ok || stem == "" {
		return "", "", false
	}
	return stem, format, true
}

// FormatClock renders d as hh:mm:ss.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

// ParseClock accepts ss, mm:ss, or hh:mm:ss.
func ParseClock(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	parts := strings.Split(value, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("timestamp %q has too many fields", value)
	}
	var seconds int64
	for _, part := range parts {
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("timestamp %q: invalid field %q", value, part)
		}
		seconds = seconds*60 + n
	}
	return time.Duration(seconds) * time.Second, nil
}
