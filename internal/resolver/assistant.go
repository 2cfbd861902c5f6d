package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/memohai/wabiz/internal/llm"
)

// ModelAssistant asks the language model to pick the closest listed contact.
type ModelAssistant struct {
	model llm.Model
}

// NewModelAssistant wraps model as an Assistant.
func NewModelAssistant(model llm.Model) *ModelAssistant {
	return &ModelAssistant{model: model}
}

func (a *ModelAssistant) Match(ctx context.Context, target string, candidates []Candidate) (Candidate, bool, error) {
	if len(candidates) == 0 {
		return Candidate{}, false, nil
	}
	list, err := json.Marshal(candidates)
	if err != nil {
		return Candidate{}, false, err
	}
	raw, err := a.model.GenerateJSON(ctx, matchPrompt(target, string(list)))
	if err != nil {
		return Candidate{}, false, err
	}
	match, err := llm.Decode(raw, llm.RecipientMatchSchema)
	if err != nil {
		return Candidate{}, false, err
	}
	if !match.Matched {
		return Candidate{}, false, nil
	}
	return Candidate{Name: strings.TrimSpace(match.Name), Number: strings.TrimSpace(match.Number)}, true, nil
}

func matchPrompt(target, contactsJSON string) string {
	return fmt.Sprintf(`Pick the WhatsApp contact the user most likely means.

Target: %q

Contacts (JSON array of {"name","number"}):
%s

Rules:
- Prefer the closest matching contact name, allowing for typos ("Jhon" -> "john").
- If several contacts are plausible, choose the one with the most similar spelling.
- The number must be copied exactly from the list.
- If nothing is a reasonable match set "matched" to false. Do not guess.

Return JSON only: {"matched": true, "name": "<name from list>", "number": "<number from list>"}`, target, contactsJSON)
}
