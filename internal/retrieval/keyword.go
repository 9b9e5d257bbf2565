package retrieval

import (
	"context"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"vidscribe/internal/logging"
)

// Keyword returns every segment containing query. Without caseSensitive the
// comparison uses Unicode case folding, so "STRASSE" finds "Straße".
func (e *Engine) Keyword(ctx context.Context, folder, query string, caseSensitive bool) ([]Result, error) {
	if err := requireQuery("keyword", query); err != nil {
		return nil, err
	}
	started := time.Now()
	corpus, err := e.corpus(ctx, folder)
	if err != nil {
		return nil, err
	}
	finder := newFinder(query, caseSensitive)
	results := make([]Result, 0)
	for _, t := range corpus {
		var matches []Match
		for _, u := range units(t) {
			spans := finder.find(u.text)
			if len(spans) == 0 {
				continue
			}
			m := u.match()
			m.Highlight = highlight(u.text, spans)
			matches = append(matches, m)
		}
		if len(matches) == 0 {
			continue
		}
		results = append(results, Result{
			FileName:   t.Name,
			Language:   languageOf(t),
			Matches:    matches,
			MatchCount: len(matches),
		})
	}
	e.logger.Debug(describe("keyword", len(results)),
		logging.Int("transcripts", len(corpus)),
		logging.Bool("case_sensitive", caseSensitive),
		logging.Duration("elapsed", time.Since(started)),
	)
	return results, nil
}

type span struct{ start, end int }

type finder struct {
	query         string
	caseSensitive bool
}

func newFinder(query string, caseSensitive bool) finder {
	if !caseSensitive {
		query = foldRunes(query).folded
	}
	return finder{query: query, caseSensitive: caseSensitive}
}

// find returns non-overlapping byte spans of text that match the query.
func (f finder) find(text string) []span {
	if f.query == "" {
		return nil
	}
	if f.caseSensitive {
		return indexAll(text, f.query, nil)
	}
	ft := foldRunes(text)
	return indexAll(ft.folded, f.query, ft.original)
}

// indexAll scans haystack for needle. When mapBack is set, a hit only counts
// if both ends fall on folded rune boundaries, and offsets are translated to
// the original text.
func indexAll(haystack, needle string, mapBack map[int]int) []span {
	var spans []span
	for off := 0; off < len(haystack); {
		i := strings.Index(haystack[off:], needle)
		if i < 0 {
			break
		}
		start, end := off+i, off+i+len(needle)
		if mapBack == nil {
			spans = append(spans, span{start, end})
			off = end
			continue
		}
		origStart, okStart := mapBack[start]
		origEnd, okEnd := mapBack[end]
		if okStart && okEnd {
			spans = append(spans, span{origStart, origEnd})
			off = end
			continue
		}
		off = start + 1
	}
	return spans
}

type foldedText struct {
	folded   string
	original map[int]int
}

// foldRunes case-folds text one rune at a time and remembers where each
// folded rune started in the original, so hits can be highlighted in place
// even when folding changes byte lengths.
func foldRunes(text string) foldedText {
	caser := cases.Fold()
	var b strings.Builder
	b.Grow(len(text))
	original := make(map[int]int, len(text)+1)
	for i, r := range text {
		if _, seen := original[b.Len()]; !seen {
			original[b.Len()] = i
		}
		b.WriteString(caser.String(string(r)))
	}
	original[b.Len()] = len(text)
	return foldedText{folded: b.String(), original: original}
}

func highlight(text string, spans []span) string {
	var b strings.Builder
	b.Grow(len(text) + 4*len(spans))
	last := 0
	for _, s := range spans {
		b.WriteString(text[last:s.start])
		b.WriteString("**")
		b.WriteString(text[s.start:s.end])
		b.WriteString("**")
		last = s.end
	}
	b.WriteString(text[last:])
	return b.String()
}
