package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/memohai/wabiz/internal/logger"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiConfig configures GeminiModel. BaseURL is only set for tests and proxies.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// GeminiModel calls Gemini through the genai SDK.
type GeminiModel struct {
	models  contentGenerator
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewGeminiModel creates a Gemini-backed Model.
func NewGeminiModel(ctx context.Context, log *slog.Logger, cfg GeminiConfig) (*GeminiModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini model: api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("gemini model: model is required")
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini model: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GeminiModel{
		models:  client.Models,
		model:   cfg.Model,
		timeout: timeout,
		logger:  logger.OrDiscard(log).With(slog.String("client", "gemini")),
	}, nil
}

func (m *GeminiModel) Generate(ctx context.Context, prompt string) (string, error) {
	return m.generate(ctx, prompt, nil)
}

func (m *GeminiModel) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	return m.generate(ctx, prompt, &genai.GenerateContentConfig{ResponseMIMEType: "application/json"})
}

func (m *GeminiModel) generate(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("prompt is required")
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	started := time.Now()
	resp, err := m.models.GenerateContent(ctx, m.model, genai.Text(prompt), config)
	if err != nil {
		m.logger.Warn("gemini generate failed", slog.Any("error", err), slog.Duration("elapsed", time.Since(started)))
		if isQuotaError(err) {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("gemini generate: empty response")
	}
	m.logger.Debug("gemini generate", slog.Int("chars", len(text)), slog.Duration("elapsed", time.Since(started)))
	return text, nil
}

var statusTooManyRequests = regexp.MustCompile(`(?i)\b(?:error|status|code)\W{0,2}429\b`)

// isQuotaError classifies a transport error. Unlike model output, an error
// message may carry the HTTP status on its own.
func isQuotaError(err error) bool {
	msg := err.Error()
	return IsQuotaSignature(msg) || statusTooManyRequests.MatchString(msg)
}
