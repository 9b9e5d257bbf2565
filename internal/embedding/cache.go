package embedding

import (
	"context"
	"log/slog"

	"vidscribe/internal/logging"
)

// Cache persists vectors by content hash and embedder id. store.Store
// implements it.
type Cache interface {
	GetEmbedding(ctx context.Context, hash, embedder string) ([]float32, bool, error)
	PutEmbedding(ctx context.Context, hash, embedder string, vec []float32) error
}

// Cached serves vectors from a Cache and embeds only the misses.
type Cached struct {
	inner  Embedder
	cache  Cache
	logger *slog.Logger
}

// NewCached wraps inner with cache. A nil cache returns inner unchanged.
func NewCached(inner Embedder, cache Cache, logger *slog.Logger) Embedder {
	if cache == nil {
		return inner
	}
	return &Cached{inner: inner, cache: cache, logger: logging.NewComponentLogger(logger, "embedding-cache")}
}

func (c *Cached) ID() string { return c.inner.ID() }

func (c *Cached) Dimensions() int { return c.inner.Dimensions() }

// Embed looks up every text and computes the rest in one batch. Cache errors
// degrade to recomputation.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	hashes := make([]string, len(texts))
	var (
		missIdx   []int
		missTexts []string
	)
	for i, text := range texts {
		hashes[i] = ContentHash(text)
		vec, ok, err := c.cache.GetEmbedding(ctx, hashes[i], c.inner.ID())
		if err != nil {
			c.logger.Debug("embedding cache read failed", logging.Error(err))
		}
		if ok && len(vec) == c.inner.Dimensions() {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	computed, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = computed[j]
		if err := c.cache.PutEmbedding(ctx, hashes[i], c.inner.ID(), computed[j]); err != nil {
			c.logger.Debug("embedding cache write failed", logging.Error(err))
		}
	}
	c.logger.Debug("embedded texts",
		logging.Int("cached", len(texts)-len(missTexts)),
		logging.Int("computed", len(missTexts)),
	)
	return out, nil
}
