package embeddings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/memohai/wabiz/internal/logger"
)

// TaskRetrievalDocument is the embedding task used for stored messages and queries.
const TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"

type contentEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// GeminiEmbedder calls the Gemini embedding API through the genai SDK.
type GeminiEmbedder struct {
	models  contentEmbedder
	model   string
	dims    int
	timeout time.Duration
	logger  *slog.Logger
}

// NewGeminiEmbedder builds a GeminiEmbedder; apiKey and model are required and dims must be positive.
func NewGeminiEmbedder(ctx context.Context, log *slog.Logger, apiKey, model string, dims int, timeout time.Duration) (*GeminiEmbedder, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini embedder: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: %w", err)
	}
	return newGeminiEmbedder(log, client.Models, model, dims, timeout)
}

func newGeminiEmbedder(log *slog.Logger, models contentEmbedder, model string, dims int, timeout time.Duration) (*GeminiEmbedder, error) {
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("gemini embedder: model is required")
	}
	if dims <= 0 {
		return nil, errors.New("gemini embedder: dimensions must be positive")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GeminiEmbedder{
		models:  models,
		model:   model,
		dims:    dims,
		timeout: timeout,
		logger:  logger.OrDiscard(log).With(slog.String("embedder", "gemini")),
	}, nil
}

func (e *GeminiEmbedder) Embed(ctx context.Context, input string) ([]float32, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, errors.New("gemini embedder: input is required")
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	dims := int32(e.dims) //nolint:gosec // configured dimension is small
	resp, err := e.models.EmbedContent(ctx, e.model,
		[]*genai.Content{genai.NewContentFromText(input, genai.RoleUser)},
		&genai.EmbedContentConfig{
			TaskType:             TaskRetrievalDocument,
			OutputDimensionality: &dims,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, errors.New("gemini embed: empty embedding")
	}
	return resp.Embeddings[0].Values, nil
}

func (e *GeminiEmbedder) Dimensions() int {
	return e.dims
}
