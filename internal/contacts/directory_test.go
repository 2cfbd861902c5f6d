package contacts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	*MemoryStore
}

func (f *failingStore) Upsert(context.Context, Contact) error {
	return errors.New("disk full")
}

func newTestDirectory(t *testing.T) (*Directory, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return NewDirectory(nil, store), store
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"+91 98765-43210":  "919876543210",
		"(987) 654 3210":   "9876543210",
		"whatsapp:+1 555":  "1555",
		"no digits at all": "",
		"":                 "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "Normalize(%q)", in)
	}
}

func TestGetNameExactThenSuffix(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()
	require.NoError(t, dir.SetName(ctx, "+91 98765 43210", "Shubham"))

	assert.Equal(t, "Shubham", dir.GetName("919876543210"))
	assert.Equal(t, "Shubham", dir.GetName("9876543210"))
	assert.Equal(t, "5551234", dir.GetName("5551234"))
}

func TestShortKeysOnlyMatchExactly(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()
	require.NoError(t, dir.SetName(ctx, "12345", "Desk"))

	assert.Equal(t, "Desk", dir.GetName("12345"))
	assert.Equal(t, "9912345", dir.GetName("9912345"))
}

func TestSetNameRejectsEmpty(t *testing.T) {
	dir, store := newTestDirectory(t)
	ctx := context.Background()
	require.NoError(t, dir.SetName(ctx, "919876543210", "Shubham"))

	err := dir.SetName(ctx, "919876543210", "   ")
	assert.ErrorIs(t, err, ErrEmptyName)
	assert.Equal(t, "Shubham", dir.GetName("919876543210"))

	items, _ := store.List(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, "Shubham", items[0].Name)
	assert.True(t, items[0].UserDefined)
}

func TestSetNameRejectsKeyWithoutDigits(t *testing.T) {
	dir, _ := newTestDirectory(t)
	assert.ErrorIs(t, dir.SetName(context.Background(), "abc", "Nobody"), ErrInvalidKey)
}

func TestLearnFromInboundKeepsExistingName(t *testing.T) {
	dir, store := newTestDirectory(t)
	ctx := context.Background()
	require.NoError(t, dir.SetName(ctx, "919876543210", "Shubham"))

	got := dir.LearnFromInbound(ctx, "919876543210", "Shubh WA")
	assert.Equal(t, "Shubham", got)

	items, _ := store.List(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, "Shubham", items[0].Name)
}

func TestLearnFromInboundCreatesAliasFromSuffix(t *testing.T) {
	dir, store := newTestDirectory(t)
	ctx := context.Background()
	require.NoError(t, dir.SetName(ctx, "9876543210", "Shubham"))

	got := dir.LearnFromInbound(ctx, "919876543210", "Profile Name")
	assert.Equal(t, "Shubham", got)

	alias, ok := dir.Lookup("919876543210")
	require.True(t, ok)
	assert.Equal(t, "919876543210", alias.Key)
	assert.Equal(t, "9876543210", alias.AliasOf)
	assert.True(t, alias.UserDefined)
	assert.True(t, alias.IsAlias())

	original, ok := dir.Lookup("9876543210")
	require.True(t, ok)
	assert.Equal(t, "Shubham", original.Name)
	assert.False(t, original.IsAlias())

	items, _ := store.List(ctx)
	assert.Len(t, items, 2)
}

func TestLearnFromInboundUsesObservedName(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()

	assert.Equal(t, "Priya", dir.LearnFromInbound(ctx, "15551234567", " Priya "))
	contact, ok := dir.Lookup("15551234567")
	require.True(t, ok)
	assert.False(t, contact.UserDefined)

	assert.Equal(t, "15550000000", dir.LearnFromInbound(ctx, "15550000000", ""))
	_, ok = dir.Lookup("15550000000")
	assert.False(t, ok)
}

func TestSuffixMatchPrefersEarliestEntry(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()
	require.NoError(t, dir.SetName(ctx, "19876543210", "First"))
	require.NoError(t, dir.SetName(ctx, "449876543210", "Second"))

	assert.Equal(t, "First", dir.GetName("9876543210"))
}

func TestRemoveName(t *testing.T) {
	dir, store := newTestDirectory(t)
	ctx := context.Background()
	require.NoError(t, dir.SetName(ctx, "919876543210", "Shubham"))
	require.NoError(t, dir.RemoveName(ctx, "+91 98765 43210"))
	require.NoError(t, dir.RemoveName(ctx, "919876543210"))

	assert.Equal(t, "919876543210", dir.GetName("919876543210"))
	items, _ := store.List(ctx)
	assert.Empty(t, items)
}

func TestLoadRestoresOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, Contact{Key: "19876543210", Name: "First"}))
	require.NoError(t, store.Upsert(ctx, Contact{Key: "449876543210", Name: "Second"}))

	dir := NewDirectory(nil, store)
	require.NoError(t, dir.Load(ctx))

	all := dir.All()
	require.Len(t, all, 2)
	assert.Equal(t, "First", all[0].Name)
	assert.Equal(t, map[string]string{"19876543210": "First", "449876543210": "Second"}, dir.Names())

	found, ok := dir.FindByName("second")
	require.True(t, ok)
	assert.Equal(t, "449876543210", found.Key)
}

func TestPersistFailureKeepsMemory(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore()}
	dir := NewDirectory(nil, store)
	ctx := context.Background()

	err := dir.SetName(ctx, "919876543210", "Shubham")
	require.Error(t, err)
	assert.Equal(t, "Shubham", dir.GetName("919876543210"))
	assert.Equal(t, "Priya", dir.LearnFromInbound(ctx, "15551234567", "Priya"))
	assert.Equal(t, "Priya", dir.GetName("15551234567"))
}

func TestLearnThenSetThenLearn(t *testing.T) {
	dir, store := newTestDirectory(t)
	ctx := context.Background()

	assert.Equal(t, "Priya", dir.LearnFromInbound(ctx, "15551234567", "Priya"))
	contact, ok := dir.Lookup("15551234567")
	require.True(t, ok)
	assert.Equal(t, "Priya", contact.Name)
	assert.False(t, contact.UserDefined)

	require.NoError(t, dir.SetName(ctx, "15551234567", "Priya Sharma"))
	contact, ok = dir.Lookup("15551234567")
	require.True(t, ok)
	assert.Equal(t, "Priya Sharma", contact.Name)
	assert.True(t, contact.UserDefined)

	assert.Equal(t, "Priya Sharma", dir.LearnFromInbound(ctx, "15551234567", "P on WhatsApp"))
	contact, ok = dir.Lookup("15551234567")
	require.True(t, ok)
	assert.Equal(t, "Priya Sharma", contact.Name)
	assert.True(t, contact.UserDefined)

	items, _ := store.List(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, "Priya Sharma", items[0].Name)
	assert.True(t, items[0].UserDefined)
}

func TestAliasFollowsRename(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()
	require.NoError(t, dir.SetName(ctx, "9876543210", "Bob"))
	assert.Equal(t, "Bob", dir.LearnFromInbound(ctx, "919876543210", "WA Profile"))

	require.NoError(t, dir.SetName(ctx, "9876543210", "Robert"))
	assert.Equal(t, "Robert", dir.GetName("919876543210"))
	assert.Equal(t, "Robert", dir.Names()["919876543210"])
	assert.Equal(t, "Robert", dir.LearnFromInbound(ctx, "919876543210", "WA Profile"))

	// naming the alias renames the contact it points to
	require.NoError(t, dir.SetName(ctx, "919876543210", "Rob"))
	assert.Equal(t, "Rob", dir.GetName("9876543210"))
	alias, ok := dir.Lookup("919876543210")
	require.True(t, ok)
	assert.True(t, alias.IsAlias())
	assert.Equal(t, "Rob", alias.Name)
	assert.Len(t, dir.All(), 2)
}

func TestRemoveNameDropsAliases(t *testing.T) {
	dir, store := newTestDirectory(t)
	ctx := context.Background()
	require.NoError(t, dir.SetName(ctx, "9876543210", "Bob"))
	dir.LearnFromInbound(ctx, "919876543210", "WA Profile")

	require.NoError(t, dir.RemoveName(ctx, "9876543210"))
	assert.Equal(t, "9876543210", dir.GetName("9876543210"))
	assert.Equal(t, "919876543210", dir.GetName("919876543210"))
	assert.Empty(t, dir.All())
	items, _ := store.List(ctx)
	assert.Empty(t, items)

	assert.Equal(t, "WA Profile", dir.LearnFromInbound(ctx, "919876543210", "WA Profile"))
	contact, ok := dir.Lookup("919876543210")
	require.True(t, ok)
	assert.False(t, contact.IsAlias())
	assert.False(t, contact.UserDefined)
}

func TestRemoveAliasKeepsOriginal(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()
	require.NoError(t, dir.SetName(ctx, "9876543210", "Bob"))
	dir.LearnFromInbound(ctx, "919876543210", "WA Profile")

	require.NoError(t, dir.RemoveName(ctx, "919876543210"))
	assert.Equal(t, "Bob", dir.GetName("9876543210"))
	// suffix match on the original still applies
	assert.Equal(t, "Bob", dir.GetName("919876543210"))
	assert.Len(t, dir.All(), 1)
}
