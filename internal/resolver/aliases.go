package resolver

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/memohai/wabiz/internal/contacts"
)

// Alias maps a lowercased token to a contact id.
type Alias struct {
	Key       string `json:"key"`
	ContactID string `json:"contact_id"`
	// Name is the display name the alias was derived from, if any.
	Name string `json:"name,omitempty"`
}

// Aliases is an insertion-ordered alias table. The first mapping for a key wins.
type Aliases struct {
	entries []Alias
	index   map[string]int
}

// NewAliases creates an empty table.
func NewAliases() *Aliases {
	return &Aliases{index: map[string]int{}}
}

// Add registers key for contactID unless key is already present.
func (a *Aliases) Add(key, contactID, name string) {
	key = strings.ToLower(strings.TrimSpace(key))
	contactID = strings.TrimSpace(contactID)
	if key == "" || contactID == "" {
		return
	}
	if _, exists := a.index[key]; exists {
		return
	}
	a.index[key] = len(a.entries)
	a.entries = append(a.entries, Alias{Key: key, ContactID: contactID, Name: name})
}

// Lookup returns the contact id for an exact, case-insensitive key.
func (a *Aliases) Lookup(key string) (string, bool) {
	if a == nil {
		return "", false
	}
	i, ok := a.index[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return "", false
	}
	return a.entries[i].ContactID, true
}

// Entries returns the aliases in insertion order.
func (a *Aliases) Entries() []Alias {
	if a == nil {
		return nil
	}
	out := make([]Alias, len(a.entries))
	copy(out, a.entries)
	return out
}

// Len returns the number of aliases.
func (a *Aliases) Len() int {
	if a == nil {
		return 0
	}
	return len(a.entries)
}

// Map returns the table as a plain key to contact id map.
func (a *Aliases) Map() map[string]string {
	out := make(map[string]string, a.Len())
	for _, entry := range a.Entries() {
		out[entry.Key] = entry.ContactID
	}
	return out
}

// Merge appends the entries of other that are not yet present.
func (a *Aliases) Merge(other *Aliases) {
	for _, entry := range other.Entries() {
		a.Add(entry.Key, entry.ContactID, entry.Name)
	}
}

// FromMap builds a table from an unordered map. Keys are inserted in sorted
// order so resolution does not depend on map iteration.
func FromMap(m map[string]string) *Aliases {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := NewAliases()
	for _, key := range keys {
		name := ""
		if hasLetter(key) {
			name = key
		}
		out.Add(key, m[key], name)
	}
	return out
}

// BuildAliases derives full names, individual name tokens and raw ids from the directory.
func BuildAliases(entries []contacts.Contact) *Aliases {
	out := NewAliases()
	for _, contact := range entries {
		name := strings.TrimSpace(contact.Name)
		if name != "" && name != contact.Key {
			out.Add(name, contact.Key, name)
		}
	}
	for _, contact := range entries {
		name := strings.TrimSpace(contact.Name)
		if name == "" || name == contact.Key {
			continue
		}
		for _, token := range strings.Fields(name) {
			token = strings.TrimFunc(token, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
			if utf8.RuneCountInString(token) >= 2 {
				out.Add(token, contact.Key, name)
			}
		}
	}
	for _, contact := range entries {
		out.Add(contact.Key, contact.Key, contact.Name)
	}
	return out
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
