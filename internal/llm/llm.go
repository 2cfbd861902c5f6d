// Package llm wraps the language model used for intent classification,
// structured extraction and free-text replies.
package llm

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrMalformed means structured output could not be parsed or failed schema validation.
	ErrMalformed = errors.New("could not understand model output")
	// ErrUnavailable means the model refused service, usually a quota or rate limit.
	ErrUnavailable = errors.New("language model temporarily unavailable")
)

// Model generates text from a prompt.
type Model interface {
	// Generate returns free text.
	Generate(ctx context.Context, prompt string) (string, error)
	// GenerateJSON asks for a JSON document. The caller still validates the result.
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

var quotaSignatures = []string{
	"quota",
	"rate limit",
	"ratelimit",
	"resource_exhausted",
	"resource exhausted",
	"too many requests",
}

// IsQuotaSignature reports whether text looks like a quota or rate-limit refusal.
// A bare 429 is not a signature; model output routinely contains digits.
func IsQuotaSignature(text string) bool {
	lower := strings.ToLower(text)
	for _, sig := range quotaSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

// CleanText trims whitespace and wrapping quotes from a free-text reply.
func CleanText(text string) string {
	text = strings.TrimSpace(text)
	return strings.TrimSpace(strings.Trim(text, "\"'"))
}

func removeCodeBlocks(text string) string {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```JSON", "")
	return strings.TrimSpace(strings.ReplaceAll(text, "```", ""))
}

// extractObject returns the outermost {...} block in text.
func extractObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// StripLeadIn removes the first matching lead-in such as "Reply:" (case-insensitive)
// and then any wrapping quotes.
func StripLeadIn(text string, leadIns []string) string {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)
	for _, lead := range leadIns {
		if strings.HasPrefix(lower, strings.ToLower(lead)) {
			text = strings.TrimSpace(text[len(lead):])
			break
		}
	}
	return unwrapQuotes(text)
}

func unwrapQuotes(text string) string {
	for len(text) >= 2 {
		first, last := text[0], text[len(text)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			text = strings.TrimSpace(text[1 : len(text)-1])
			continue
		}
		break
	}
	return text
}
