package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/wabiz/internal/contacts"
)

type fakeAssistant struct {
	match      Candidate
	ok         bool
	err        error
	calls      int
	candidates []Candidate
}

func (f *fakeAssistant) Match(_ context.Context, _ string, candidates []Candidate) (Candidate, bool, error) {
	f.calls++
	f.candidates = candidates
	return f.match, f.ok, f.err
}

type fakeModel struct {
	reply  string
	prompt string
}

func (f *fakeModel) Generate(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.reply, nil
}

func (f *fakeModel) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	return f.Generate(ctx, prompt)
}

func johnAliases() *Aliases {
	a := NewAliases()
	a.Add("john", "111", "john")
	a.Add("johnny", "222", "johnny")
	return a
}

func TestResolveLocalExactAndSubstring(t *testing.T) {
	t.Parallel()

	aliases := johnAliases()
	res, ok := ResolveLocal("john", aliases)
	require.True(t, ok)
	assert.Equal(t, "111", res.ContactID)
	assert.Equal(t, MethodExact, res.Method)

	res, ok = ResolveLocal("JOHN", aliases)
	require.True(t, ok)
	assert.Equal(t, "111", res.ContactID)

	_, ok = ResolveLocal("Jhon", aliases)
	assert.False(t, ok)
}

func TestResolveLocalScoresSubstrings(t *testing.T) {
	t.Parallel()

	aliases := NewAliases()
	aliases.Add("johnny bravo", "333", "Johnny Bravo")
	aliases.Add("johnny", "222", "Johnny")

	// "johnn" is contained in both; "johnny" has the closer length.
	res, ok := ResolveLocal("johnn", aliases)
	require.True(t, ok)
	assert.Equal(t, "222", res.ContactID)
	assert.Equal(t, MethodSubstring, res.Method)

	// target containing an alias
	res, ok = ResolveLocal("johnny b", aliases)
	require.True(t, ok)
	assert.Equal(t, "222", res.ContactID)
}

func TestResolveLocalTieBreaks(t *testing.T) {
	t.Parallel()

	aliases := NewAliases()
	aliases.Add("anna", "1", "Anna")
	aliases.Add("hann", "2", "Hann")
	// both score 4/5 with equal length; the earlier alias wins
	res, ok := ResolveLocal("hanna", aliases)
	require.True(t, ok)
	assert.Equal(t, "1", res.ContactID)

	for i := 0; i < 20; i++ {
		again, _ := ResolveLocal("hanna", aliases)
		assert.Equal(t, res, again)
	}
}

func TestResolveFallsBackToModel(t *testing.T) {
	t.Parallel()

	assistant := &fakeAssistant{match: Candidate{Name: "john", Number: "111"}, ok: true}
	r := New(nil, assistant, 0)
	res, err := r.Resolve(context.Background(), "Jhon", johnAliases())
	require.NoError(t, err)
	assert.Equal(t, "111", res.ContactID)
	assert.Equal(t, MethodModel, res.Method)
	assert.Len(t, assistant.candidates, 2)
}

func TestResolveRejectsUnlistedModelAnswer(t *testing.T) {
	t.Parallel()

	assistant := &fakeAssistant{match: Candidate{Name: "jon", Number: "999"}, ok: true}
	r := New(nil, assistant, 0)
	_, err := r.Resolve(context.Background(), "Jhon", johnAliases())
	assert.ErrorIs(t, err, ErrUnresolvable)
}

func TestResolveLiteralNumber(t *testing.T) {
	t.Parallel()

	r := New(nil, &fakeAssistant{err: errors.New("quota")}, 0)
	res, err := r.Resolve(context.Background(), "+91 98765-43210", johnAliases())
	require.NoError(t, err)
	assert.Equal(t, "919876543210", res.ContactID)
	assert.Equal(t, MethodLiteral, res.Method)

	_, err = r.Resolve(context.Background(), "12345", johnAliases())
	assert.ErrorIs(t, err, ErrUnresolvable)
	_, err = r.Resolve(context.Background(), "", johnAliases())
	assert.ErrorIs(t, err, ErrUnresolvable)
}

func TestCandidatesCapAndOrder(t *testing.T) {
	t.Parallel()

	aliases := NewAliases()
	aliases.Add("15550001", "15550001", "")
	aliases.Add("alice", "15550001", "Alice")
	aliases.Add("bob", "15550002", "Bob")
	got := Candidates(aliases, 2)
	assert.Equal(t, []Candidate{{Name: "alice", Number: "15550001"}, {Name: "bob", Number: "15550002"}}, got)
	assert.Len(t, Candidates(aliases, 10), 3)
}

func TestBuildAliases(t *testing.T) {
	t.Parallel()

	aliases := BuildAliases([]contacts.Contact{
		{Key: "919876543210", Name: "Shubham Kumar"},
		{Key: "15550001", Name: "15550001"},
		{Key: "15550002", Name: "J Smith"},
	})
	id, ok := aliases.Lookup("shubham kumar")
	require.True(t, ok)
	assert.Equal(t, "919876543210", id)
	id, _ = aliases.Lookup("kumar")
	assert.Equal(t, "919876543210", id)
	id, _ = aliases.Lookup("15550001")
	assert.Equal(t, "15550001", id)
	_, ok = aliases.Lookup("j")
	assert.False(t, ok)
	id, _ = aliases.Lookup("smith")
	assert.Equal(t, "15550002", id)
}

func TestFromMapIsDeterministic(t *testing.T) {
	t.Parallel()

	a := FromMap(map[string]string{"zed": "3", "Amy": "1", "bo": "2"})
	keys := make([]string, 0)
	for _, e := range a.Entries() {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"amy", "bo", "zed"}, keys)
}

func TestModelAssistant(t *testing.T) {
	t.Parallel()

	model := &fakeModel{reply: "```json\n{\"matched\": true, \"name\": \"john\", \"number\": \"111\"}\n```"}
	match, ok, err := NewModelAssistant(model).Match(context.Background(), "Jhon", []Candidate{{Name: "john", Number: "111"}})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "111", match.Number)
	assert.Contains(t, model.prompt, `"Jhon"`)

	model.reply = `{"matched": false}`
	_, ok, err = NewModelAssistant(model).Match(context.Background(), "Zed", []Candidate{{Name: "john", Number: "111"}})
	require.NoError(t, err)
	assert.False(t, ok)

	model.reply = `no idea`
	_, _, err = NewModelAssistant(model).Match(context.Background(), "Zed", []Candidate{{Name: "john", Number: "111"}})
	assert.Error(t, err)
}
