package retrieval

import (
	"cmp"
	"context"
	"slices"
	"time"

	"vidscribe/internal/embedding"
	"vidscribe/internal/logging"
	"vidscribe/internal/services"
	"vidscribe/internal/synthesis"
	"vidscribe/internal/textutil"
	"vidscribe/internal/transcript"
)

// duplicateSimilarity marks two excerpts as the same statement for Ask.
const duplicateSimilarity = 0.9

type scoredUnit struct {
	unit
	score float64
}

type scoredTranscript struct {
	transcript transcript.Transcript
	units      []scoredUnit
}

// rank embeds query and every unit in corpus and returns each transcript's
// units sorted by descending score.
func (e *Engine) rank(ctx context.Context, query string, corpus []transcript.Transcript) ([]scoredTranscript, error) {
	if e.embedder == nil {
		return nil, services.Wrap(services.ErrConfiguration, "retrieval", "semantic", "no embedder configured", nil)
	}
	if len(corpus) == 0 {
		return nil, nil
	}
	qv, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(qv) != 1 {
		return nil, services.Wrap(services.ErrProtocol, "retrieval", "semantic", "embedder returned no query vector", nil)
	}
	out := make([]scoredTranscript, 0, len(corpus))
	for _, t := range corpus {
		us := units(t)
		if len(us) == 0 {
			continue
		}
		texts := make([]string, len(us))
		for i, u := range us {
			texts[i] = u.text
		}
		vecs, err := e.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		scored := make([]scoredUnit, len(us))
		for i, u := range us {
			scored[i] = scoredUnit{unit: u, score: embedding.Cosine(qv[0], vecs[i])}
		}
		slices.SortStableFunc(scored, func(a, b scoredUnit) int { return cmp.Compare(b.score, a.score) })
		out = append(out, scoredTranscript{transcript: t, units: scored})
	}
	return out, nil
}

// Semantic ranks segments by embedding similarity to query. Each transcript
// contributes its TopK segments at or above Threshold; transcripts with no
// such segment are omitted. Results are ordered by best score.
func (e *Engine) Semantic(ctx context.Context, folder, query string) ([]Result, error) {
	if err := requireQuery("semantic", query); err != nil {
		return nil, err
	}
	started := time.Now()
	corpus, err := e.corpus(ctx, folder)
	if err != nil {
		return nil, err
	}
	ranked, err := e.rank(ctx, query, corpus)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(ranked))
	for _, st := range ranked {
		var matches []Match
		for _, su := range st.units {
			if len(matches) == e.opts.TopK || su.score < e.opts.Threshold {
				break
			}
			m := su.match()
			m.RelevanceScore = su.score
			matches = append(matches, m)
		}
		if len(matches) == 0 {
			continue
		}
		results = append(results, Result{
			FileName:   st.transcript.Name,
			Language:   languageOf(st.transcript),
			Matches:    matches,
			MatchCount: len(matches),
			BestScore:  matches[0].RelevanceScore,
		})
	}
	slices.SortStableFunc(results, func(a, b Result) int { return cmp.Compare(b.BestScore, a.BestScore) })
	e.logger.Debug(describe("semantic", len(results)),
		logging.Int("transcripts", len(corpus)),
		logging.Float64("threshold", e.opts.Threshold),
		logging.Duration("elapsed", time.Since(started)),
	)
	return results, nil
}

// Ask answers question from the AskTopN most similar segments across the
// corpus. Without a synthesis provider it fails with ErrSynthesisUnavailable
// before touching the folder.
func (e *Engine) Ask(ctx context.Context, folder, question string) (Answer, error) {
	if err := requireQuery("ask", question); err != nil {
		return Answer{}, err
	}
	if err := e.synth.Ready(); err != nil {
		return Answer{}, err
	}
	corpus, err := e.corpus(ctx, folder)
	if err != nil {
		return Answer{}, err
	}
	ranked, err := e.rank(ctx, question, corpus)
	if err != nil {
		return Answer{}, err
	}
	sources := e.topSources(ranked)
	answer := Answer{Question: question, Sources: sources}
	if len(sources) == 0 {
		answer.Answer = NoAnswer
		return answer, nil
	}

	excerpts := make([]synthesis.Excerpt, len(sources))
	for i, s := range sources {
		excerpts[i] = synthesis.Excerpt{
			FileName:  s.FileName,
			Language:  s.Language,
			Timestamp: s.Timestamp,
			Speaker:   s.Speaker,
			Text:      s.Text,
		}
	}
	text, err := e.synth.Answer(ctx, question, excerpts)
	if err != nil {
		return Answer{}, err
	}
	answer.Answer = text
	e.logger.Info("question answered",
		logging.Int("sources", len(sources)),
		logging.String(logging.FieldEventType, "ask_answered"),
	)
	return answer, nil
}

// topSources picks the globally best units above threshold, skipping
// near-duplicate statements.
func (e *Engine) topSources(ranked []scoredTranscript) []Source {
	var all []Source
	for _, st := range ranked {
		for _, su := range st.units {
			if su.score < e.opts.Threshold {
				break
			}
			m := su.match()
			m.RelevanceScore = su.score
			all = append(all, Source{FileName: st.transcript.Name, Language: languageOf(st.transcript), Match: m})
		}
	}
	slices.SortStableFunc(all, func(a, b Source) int { return cmp.Compare(b.RelevanceScore, a.RelevanceScore) })

	picked := make([]Source, 0, e.opts.AskTopN)
	prints := make([]*textutil.Fingerprint, 0, e.opts.AskTopN)
	for _, s := range all {
		if len(picked) == e.opts.AskTopN {
			break
		}
		fp := textutil.NewFingerprint(s.Text)
		if slices.ContainsFunc(prints, func(other *textutil.Fingerprint) bool {
			return textutil.CosineSimilarity(fp, other) >= duplicateSimilarity
		}) {
			continue
		}
		picked = append(picked, s)
		prints = append(prints, fp)
	}
	return picked
}

// Index counts the parseable transcripts in folder and embeds every segment
// so later semantic queries hit the vector cache.
func (e *Engine) Index(ctx context.Context, folder string) (IndexSummary, error) {
	summary, err := e.transcripts.Summarize(ctx, folder)
	if err != nil {
		return IndexSummary{Summary: summary}, err
	}
	out := IndexSummary{Summary: summary}
	if e.embedder == nil {
		return out, nil
	}
	out.Embedder = e.embedder.ID()
	for t := range e.transcripts.List(ctx, folder) {
		us := units(t)
		if len(us) == 0 {
			continue
		}
		texts := make([]string, len(us))
		for i, u := range us {
			texts[i] = u.text
		}
		if _, err := e.embedder.Embed(ctx, texts); err != nil {
			return out, err
		}
		out.Segments += len(us)
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	e.logger.Info("transcripts indexed",
		logging.String("folder", folder),
		logging.Int("indexed", out.Indexed),
		logging.Int("skipped", out.Skipped),
		logging.Int("segments", out.Segments),
		logging.String(logging.FieldEventType, "index_complete"),
	)
	return out, nil
}
