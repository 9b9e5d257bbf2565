package transcript

import (
	"fmt"
	"strings"
)

const separator = "================================================================================"

// Render serializes t in the given layout.
func Render(format Format, t Transcript) ([]byte, error) {
	switch format {
	case FormatTXT:
		return []byte(renderTXT(t)), nil
	case FormatMD:
		return []byte(renderMD(t)), nil
	default:
		return nil, fmt.Errorf("render transcript: unsupported format %q", format)
	}
}

func renderTXT(t Transcript) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Detected Language: %s\n", languageOrUnknown(t.Language))
	if t.Duration > 0 {
		fmt.Fprintf(&b, "Total Duration: %s\n", FormatClock(t.Duration))
	}
	b.WriteString("\nTRANSCRIPT WITH SPEAKERS:\n")
	b.WriteString(separator + "\n\n")
	for _, seg := range t.Segments {
		fmt.Fprintf(&b, "[%s -> %s] ", FormatClock(seg.Start), FormatClock(seg.End))
		if seg.Speaker != "" {
			b.WriteString(seg.Speaker + ": ")
		}
		b.WriteString(oneLine(seg.Text) + "\n")
	}
	b.WriteString("\n" + separator + "\n")
	b.WriteString("FULL TRANSCRIPT:\n")
	b.WriteString(separator + "\n\n")
	b.WriteString(strings.TrimSpace(t.FullText) + "\n")
	return b.String()
}

func renderMD(t Transcript) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Transcript: %s\n\n", t.Name)
	fmt.Fprintf(&b, "**Language:** %s  \n", languageOrUnknown(t.Language))
	if t.Duration > 0 {
		fmt.Fprintf(&b, "**Duration:** %s  \n", FormatClock(t.Duration))
	}
	b.WriteString("\n---\n\n## Transcript with Speakers\n\n")
	for _, seg := range t.Segments {
		fmt.Fprintf(&b, "### %s → %s\n", FormatClock(seg.Start), FormatClock(seg.End))
		if seg.Speaker != "" {
			fmt.Fprintf(&b, "**%s:** %s\n\n", seg.Speaker, oneLine(seg.Text))
		} else {
			b.WriteString(oneLine(seg.Text) + "\n\n")
		}
	}
	b.WriteString("---\n\n## Full Transcript\n\n")
	b.WriteString(strings.TrimSpace(t.FullText) + "\n")
	return b.String()
}

func languageOrUnknown(lang string) string {
	if lang = strings.TrimSpace(lang); lang != "" {
		return lang
	}
	return "unknown"
}

func oneLine(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
