// Package resolver maps free-text recipient fragments to contact ids.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/memohai/wabiz/internal/contacts"
	"github.com/memohai/wabiz/internal/logger"
)

// DefaultCandidateLimit caps the contact list offered to the model.
const DefaultCandidateLimit = 150

// ErrUnresolvable is returned when no rule maps the target to a contact id.
var ErrUnresolvable = errors.New("recipient could not be resolved")

// Resolution methods.
const (
	MethodExact     = "exact"
	MethodSubstring = "substring"
	MethodModel     = "model"
	MethodLiteral   = "literal"
)

// Resolution is a successful resolution.
type Resolution struct {
	ContactID string `json:"contact_id"`
	Method    string `json:"method"`
	// Alias is the alias key or model-chosen name that matched.
	Alias string `json:"alias,omitempty"`
}

// Candidate is one contact offered to the model.
type Candidate struct {
	Name   string `json:"name"`
	Number string `json:"number"`
}

// Assistant resolves a target against candidates by similarity.
// ok=false means no candidate is a reasonable match.
type Assistant interface {
	Match(ctx context.Context, target string, candidates []Candidate) (Candidate, bool, error)
}

// Resolver applies exact, scored substring, model-assisted and literal rules in that order.
type Resolver struct {
	assistant Assistant
	limit     int
	logger    *slog.Logger
}

// New creates a resolver. assistant may be nil.
func New(log *slog.Logger, assistant Assistant, candidateLimit int) *Resolver {
	if candidateLimit <= 0 {
		candidateLimit = DefaultCandidateLimit
	}
	return &Resolver{
		assistant: assistant,
		limit:     candidateLimit,
		logger:    logger.OrDiscard(log).With(slog.String("service", "resolver")),
	}
}

// Resolve maps target to a contact id using aliases.
func (r *Resolver) Resolve(ctx context.Context, target string, aliases *Aliases) (Resolution, error) {
	needle := strings.ToLower(strings.TrimSpace(target))
	if needle == "" {
		return Resolution{}, ErrUnresolvable
	}
	if res, ok := ResolveLocal(needle, aliases); ok {
		return res, nil
	}

	if r.assistant != nil && aliases.Len() > 0 {
		candidates := Candidates(aliases, r.limit)
		match, ok, err := r.assistant.Match(ctx, target, candidates)
		switch {
		case err != nil:
			r.logger.Warn("model-assisted resolution failed", slog.String("target", target), slog.Any("error", err))
		case ok:
			if listed(candidates, match.Number) {
				return Resolution{ContactID: match.Number, Method: MethodModel, Alias: match.Name}, nil
			}
			r.logger.Warn("model picked an unlisted number", slog.String("target", target), slog.String("number", match.Number))
		}
	}

	if number, ok := PhoneLiteral(target); ok {
		return Resolution{ContactID: number, Method: MethodLiteral}, nil
	}
	return Resolution{}, ErrUnresolvable
}

// ResolveLocal applies the exact and scored substring rules only.
//
// Substring candidates are aliases that contain the target or are contained in
// it. Each scores shorter/longer rune length, so closer lengths rank higher.
// Ties go to the shorter alias, then to the earlier one.
func ResolveLocal(target string, aliases *Aliases) (Resolution, bool) {
	needle := strings.ToLower(strings.TrimSpace(target))
	if needle == "" || aliases.Len() == 0 {
		return Resolution{}, false
	}
	if id, ok := aliases.Lookup(needle); ok {
		return Resolution{ContactID: id, Method: MethodExact, Alias: needle}, true
	}

	needleLen := utf8.RuneCountInString(needle)
	var (
		best      Alias
		bestScore float64
		bestLen   int
		found     bool
	)
	for _, alias := range aliases.Entries() {
		if !strings.Contains(needle, alias.Key) && !strings.Contains(alias.Key, needle) {
			continue
		}
		aliasLen := utf8.RuneCountInString(alias.Key)
		score := float64(min(needleLen, aliasLen)) / float64(max(needleLen, aliasLen))
		if !found || score > bestScore || (score == bestScore && aliasLen < bestLen) {
			best, bestScore, bestLen, found = alias, score, aliasLen, true
		}
	}
	if !found {
		return Resolution{}, false
	}
	return Resolution{ContactID: best.ContactID, Method: MethodSubstring, Alias: best.Key}, true
}

// Candidates returns up to limit distinct name/number pairs for the model.
// Named aliases come first; bare numbers are listed as their own name.
func Candidates(aliases *Aliases, limit int) []Candidate {
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}
	seen := map[Candidate]struct{}{}
	out := make([]Candidate, 0, min(limit, aliases.Len()))
	add := func(c Candidate) bool {
		if _, ok := seen[c]; ok {
			return len(out) < limit
		}
		seen[c] = struct{}{}
		out = append(out, c)
		return len(out) < limit
	}
	for _, alias := range aliases.Entries() {
		if !hasLetter(alias.Key) {
			continue
		}
		if !add(Candidate{Name: alias.Key, Number: alias.ContactID}) {
			return out
		}
	}
	for _, alias := range aliases.Entries() {
		if hasLetter(alias.Key) {
			continue
		}
		if !add(Candidate{Name: alias.Key, Number: alias.ContactID}) {
			return out
		}
	}
	return out
}

// PhoneLiteral reports whether target is written as a phone number and returns its digits.
func PhoneLiteral(target string) (string, bool) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", false
	}
	for _, r := range target {
		switch {
		case r >= '0' && r <= '9':
		case r == '+', r == '-', r == ' ', r == '(', r == ')', r == '.':
		default:
			return "", false
		}
	}
	digits := contacts.Normalize(target)
	if len(digits) < 7 || len(digits) > 15 {
		return "", false
	}
	return digits, true
}

func listed(candidates []Candidate, number string) bool {
	number = strings.TrimSpace(number)
	if number == "" {
		return false
	}
	for _, c := range candidates {
		if c.Number == number {
			return true
		}
	}
	return false
}
