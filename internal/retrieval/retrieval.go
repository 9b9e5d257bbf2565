// Package retrieval answers keyword, semantic, and question queries over the
// transcripts in an output folder.
//
// The folder is the source of truth: every query re-reads it through
// transcript.Store, so results always reflect what the batch worker has
// written so far. Semantic ranking embeds segments with an
// embedding.Embedder (usually wrapped with the SQLite vector cache) and Ask
// hands the best segments to a synthesis.Service.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"vidscribe/internal/config"
	"vidscribe/internal/embedding"
	"vidscribe/internal/logging"
	"vidscribe/internal/services"
	"vidscribe/internal/synthesis"
	"vidscribe/internal/transcript"
	"vidscribe/internal/worker"
)

// Defaults applied when Options leaves a field unset.
const (
	DefaultTopK      = 5
	DefaultThreshold = 0.3
	DefaultAskTopN   = 8
)

// NoAnswer is returned by Ask when nothing in the corpus is relevant.
const NoAnswer = "I couldn't find any relevant information in the transcripts to answer your question."

// Match is one matching segment.
type Match struct {
	Timestamp      string  `json:"timestamp,omitempty"`
	Speaker        string  `json:"speaker,omitempty"`
	Text           string  `json:"text"`
	Highlight      string  `json:"highlight,omitempty"`
	RelevanceScore float64 `json:"relevance_score,omitempty"`
}

// Result groups the matches found in one transcript.
type Result struct {
	FileName   string  `json:"file_name"`
	Language   string  `json:"language"`
	Matches    []Match `json:"matches"`
	MatchCount int     `json:"match_count"`
	BestScore  float64 `json:"best_score,omitempty"`
}

// Source is an excerpt that grounded an answer.
type Source struct {
	FileName string `json:"file_name"`
	Language string `json:"language,omitempty"`
	Match
}

// Answer is the outcome of Ask.
type Answer struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Sources  []Source `json:"sources,omitempty"`
}

// IndexSummary reports what Index found and embedded.
type IndexSummary struct {
	transcript.Summary
	Segments int    `json:"segments"`
	Embedder string `json:"embedder"`
}

// Options tunes ranking. Zero TopK and AskTopN take the defaults; a negative
// Threshold takes DefaultThreshold.
type Options struct {
	TopK      int
	Threshold float64
	AskTopN   int
}

// Engine runs queries. It holds no per-query state and is safe for
// concurrent use.
type Engine struct {
	transcripts *transcript.Store
	embedder    embedding.Embedder
	synth       *synthesis.Service
	opts        Options
	logger      *slog.Logger
}

// New assembles an Engine. synth may be nil, in which case Ask reports
// ErrSynthesisUnavailable.
func New(transcripts *transcript.Store, embedder embedding.Embedder, synth *synthesis.Service, opts Options, logger *slog.Logger) *Engine {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Threshold < 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.AskTopN <= 0 {
		opts.AskTopN = DefaultAskTopN
	}
	if transcripts == nil {
		transcripts = transcript.NewStore(logger)
	}
	return &Engine{
		transcripts: transcripts,
		embedder:    embedder,
		synth:       synth,
		opts:        opts,
		logger:      logging.NewComponentLogger(logger, "retrieval"),
	}
}

// NewFromConfig wires the configured embedder, vector cache, and synthesis
// provider. cache may be nil to disable caching; launcher is only needed for
// the worker embedder.
func NewFromConfig(cfg *config.Config, cache embedding.Cache, launcher *worker.Launcher, logger *slog.Logger) (*Engine, error) {
	var emb embedding.Embedder
	switch cfg.Retrieval.Embedder {
	case config.EmbedderWorker:
		if launcher == nil {
			return nil, services.Wrap(services.ErrConfiguration, "retrieval", "embedder", "worker embedder requires a launcher", nil)
		}
		emb = embedding.NewWorker(launcher, cfg.Retrieval.Dimensions, cfg.Paths.StateDir)
	default:
		emb = embedding.NewHashEmbedder(cfg.Retrieval.Dimensions)
	}
	if cfg.Retrieval.CacheEmbeddings && cache != nil {
		emb = embedding.NewCached(emb, cache, logger)
	}
	synth, err := synthesis.NewService(cfg.GetLLM(), logger)
	if err != nil {
		return nil, err
	}
	return New(transcript.NewStore(logger), emb, synth, Options{
		TopK:      cfg.Retrieval.TopK,
		Threshold: cfg.Retrieval.Threshold,
		AskTopN:   cfg.Retrieval.AskTopN,
	}, logger), nil
}

// WithSynthesis returns a copy of e that answers through synth.
func (e *Engine) WithSynthesis(synth *synthesis.Service) *Engine {
	clone := *e
	clone.synth = synth
	return &clone
}

// Synthesis returns the configured synthesis service, possibly nil.
func (e *Engine) Synthesis() *synthesis.Service { return e.synth }

// corpus loads every parseable transcript in folder. A missing folder is
// ErrNotFound; an empty one is an empty corpus.
func (e *Engine) corpus(ctx context.Context, folder string) ([]transcript.Transcript, error) {
	if strings.TrimSpace(folder) == "" {
		return nil, services.Wrap(services.ErrValidation, "retrieval", "corpus", "output folder is required", nil)
	}
	if _, err := transcript.Paths(folder); err != nil {
		return nil, err
	}
	var out []transcript.Transcript
	for t := range e.transcripts.List(ctx, folder) {
		out = append(out, t)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func requireQuery(op, query string) error {
	if strings.TrimSpace(query) == "" {
		return services.Wrap(services.ErrValidation, "retrieval", op, "query is empty", nil)
	}
	return nil
}

// unit is the searchable slice of a transcript: a segment, or the full text
// when the transcript has no segments.
type unit struct {
	timestamp string
	speaker   string
	text      string
}

func units(t transcript.Transcript) []unit {
	if len(t.Segments) == 0 {
		text := strings.TrimSpace(t.Text())
		if text == "" {
			return nil
		}
		return []unit{{text: text}}
	}
	out := make([]unit, 0, len(t.Segments))
	for _, seg := range t.Segments {
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}
		out = append(out, unit{timestamp: seg.Timestamp(), speaker: seg.Speaker, text: seg.Text})
	}
	return out
}

func (u unit) match() Match {
	return Match{Timestamp: u.timestamp, Speaker: u.speaker, Text: u.text}
}

func languageOf(t transcript.Transcript) string {
	if t.Language == "" {
		return "unknown"
	}
	return t.Language
}

func describe(op string, n int) string {
	return fmt.Sprintf("%s search matched %d transcripts", op, n)
}
