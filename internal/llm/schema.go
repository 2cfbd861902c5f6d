package llm

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Schema validates model output before it is decoded into T.
type Schema[T any] struct {
	resolved *jsonschema.Resolved
}

// NewSchema infers a JSON schema from T. customize may tighten the inferred
// schema, for example by adding enums.
func NewSchema[T any](customize func(*jsonschema.Schema)) (*Schema[T], error) {
	s, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, err
	}
	// Models often add commentary fields; only declared properties are checked.
	s.AdditionalProperties = nil
	if customize != nil {
		customize(s)
	}
	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, err
	}
	return &Schema[T]{resolved: resolved}, nil
}

// MustSchema is NewSchema for package-level schemas.
func MustSchema[T any](customize func(*jsonschema.Schema)) *Schema[T] {
	s, err := NewSchema[T](customize)
	if err != nil {
		panic(fmt.Sprintf("llm schema: %v", err))
	}
	return s
}

// Decode parses raw model output into T. Code fences are stripped first; when
// the text still does not validate, the outermost {...} block is tried.
// Quota refusals map to ErrUnavailable and all other failures to ErrMalformed.
func Decode[T any](raw string, schema *Schema[T]) (T, error) {
	var zero T
	cleaned := removeCodeBlocks(raw)
	out, err := schema.decode(cleaned)
	if err == nil {
		return out, nil
	}
	if block, ok := extractObject(raw); ok && block != cleaned {
		if out, blockErr := schema.decode(block); blockErr == nil {
			return out, nil
		}
	}
	if IsQuotaSignature(raw) {
		return zero, fmt.Errorf("%w: %s", ErrUnavailable, truncate(raw, 200))
	}
	return zero, fmt.Errorf("%w: %v", ErrMalformed, err)
}

func (s *Schema[T]) decode(text string) (T, error) {
	var out T
	var instance map[string]any
	if err := json.Unmarshal([]byte(text), &instance); err != nil {
		return out, err
	}
	// null stands for "not provided"
	for key, value := range instance {
		if value == nil {
			delete(instance, key)
		}
	}
	if err := s.resolved.Validate(instance); err != nil {
		return out, err
	}
	normalized, err := json.Marshal(instance)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(normalized, &out); err != nil {
		return out, err
	}
	return out, nil
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
