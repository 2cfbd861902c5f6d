package modules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.uber.org/fx"

	"github.com/memohai/wabiz/internal/boot"
	"github.com/memohai/wabiz/internal/config"
	"github.com/memohai/wabiz/internal/conversation"
	"github.com/memohai/wabiz/internal/embeddings"
	"github.com/memohai/wabiz/internal/event"
)

var ConversationModule = fx.Module(
	"conversation",
	fx.Provide(
		provideEmbedder,
		provideIndex,
		provideConversationStore,
	),
)

// ---------------------------------------------------------------------------
// conversation providers
// ---------------------------------------------------------------------------

// provideEmbedder uses Gemini when a key is configured and always keeps the
// local hash embedder as fallback so vectors keep a fixed dimension.
func provideEmbedder(log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig) (embeddings.Embedder, error) {
	dims := cfg.Gemini.EmbeddingDimensions
	if dims <= 0 {
		dims = config.DefaultEmbeddingDimensions
	}
	hash := embeddings.NewHashEmbedder(dims)
	if strings.TrimSpace(rc.GeminiAPIKey) == "" {
		log.Warn("no gemini api key configured, using local hash embeddings")
		return hash, nil
	}
	timeout := time.Duration(cfg.Gemini.TimeoutSeconds) * time.Second
	primary, err := embeddings.NewGeminiEmbedder(context.Background(), log, rc.GeminiAPIKey, cfg.Gemini.EmbeddingModel, dims, timeout)
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: %w", err)
	}
	return embeddings.NewFallbackEmbedder(log, primary, hash), nil
}

func provideIndex(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, embedder embeddings.Embedder) (conversation.Index, error) {
	qcfg := cfg.Qdrant
	if strings.TrimSpace(qcfg.BaseURL) == "" {
		log.Warn("qdrant not configured, conversations are kept in memory")
		return conversation.NewMemoryIndex(), nil
	}
	index, err := conversation.NewQdrantIndex(
		log,
		qcfg.BaseURL,
		qcfg.APIKey,
		qcfg.Collection,
		embedder.Dimensions(),
		time.Duration(qcfg.TimeoutSeconds)*time.Second,
	)
	if err != nil {
		return nil, fmt.Errorf("qdrant init: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return index.Close()
		},
	})
	return index, nil
}

func provideConversationStore(log *slog.Logger, index conversation.Index, embedder embeddings.Embedder, hub *event.Hub, rc *boot.RuntimeConfig) *conversation.Store {
	return conversation.NewStore(log, index, embedder, hub, rc.Location)
}
