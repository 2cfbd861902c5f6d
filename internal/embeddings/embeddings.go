package embeddings

import (
	"context"
	"log/slog"

	"github.com/memohai/wabiz/internal/logger"
)

// Embedder produces vector embeddings for text and reports dimension.
type Embedder interface {
	Embed(ctx context.Context, input string) ([]float32, error)
	Dimensions() int
}

// FallbackEmbedder asks the primary embedder first and falls back to a local
// embedder when it fails, keeping the semantic index usable in degraded mode.
type FallbackEmbedder struct {
	primary  Embedder
	fallback Embedder
	logger   *slog.Logger
}

// NewFallbackEmbedder wraps primary. A nil primary always uses fallback.
func NewFallbackEmbedder(log *slog.Logger, primary, fallback Embedder) *FallbackEmbedder {
	return &FallbackEmbedder{
		primary:  primary,
		fallback: fallback,
		logger:   logger.OrDiscard(log).With(slog.String("embedder", "fallback")),
	}
}

func (e *FallbackEmbedder) Embed(ctx context.Context, input string) ([]float32, error) {
	if e.primary != nil {
		vec, err := e.primary.Embed(ctx, input)
		if err == nil && len(vec) == e.fallback.Dimensions() {
			return vec, nil
		}
		if err != nil {
			e.logger.Warn("primary embedding failed, using local embedding", slog.Any("error", err))
		} else {
			e.logger.Warn("primary embedding dimension mismatch, using local embedding",
				slog.Int("got", len(vec)), slog.Int("want", e.fallback.Dimensions()))
		}
	}
	return e.fallback.Embed(ctx, input)
}

func (e *FallbackEmbedder) Dimensions() int {
	return e.fallback.Dimensions()
}
