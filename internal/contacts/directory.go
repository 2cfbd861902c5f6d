package contacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/memohai/wabiz/internal/logger"
)

// Directory maps normalized phone numbers to display names.
// Reads are served from memory; every mutation is written through to the Store
// before the call returns. A failed write leaves memory ahead of the store.
// Alias entries carry no name of their own: reads resolve them to the entry
// named by AliasOf.
type Directory struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]Contact
	order   []string
}

// NewDirectory creates a directory backed by store.
func NewDirectory(log *slog.Logger, store Store) *Directory {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Directory{
		store:   store,
		logger:  logger.OrDiscard(log).With(slog.String("service", "contacts")),
		now:     time.Now,
		entries: map[string]Contact{},
	}
}

// Load replaces the in-memory view with the store contents.
func (d *Directory) Load(ctx context.Context) error {
	items, err := d.store.List(ctx)
	if err != nil {
		return fmt.Errorf("load contacts: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = make(map[string]Contact, len(items))
	d.order = d.order[:0]
	for _, item := range items {
		if item.Key == "" {
			continue
		}
		if _, dup := d.entries[item.Key]; !dup {
			d.order = append(d.order, item.Key)
		}
		d.entries[item.Key] = item
	}
	d.logger.Info("contacts loaded", slog.Int("count", len(d.entries)))
	return nil
}

// GetName returns the stored name for raw, trying the exact key first and then
// the last-ten-digit suffix. Unknown numbers are returned unchanged.
func (d *Directory) GetName(raw string) string {
	if contact, ok := d.Lookup(raw); ok {
		return contact.Name
	}
	return raw
}

// Lookup returns the entry for raw by exact key or suffix match. An alias is
// returned with the current name and provenance of the entry it points to.
func (d *Directory) Lookup(raw string) (Contact, bool) {
	key := Normalize(raw)
	if key == "" {
		return Contact{}, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if contact, ok := d.entries[key]; ok {
		return d.resolveLocked(contact), true
	}
	if contact, ok := d.suffixMatchLocked(key); ok {
		return d.resolveLocked(contact), true
	}
	return Contact{}, false
}

// SetName stores a user-chosen name. Empty names are rejected without any change.
// Naming an alias renames the entry it points to.
func (d *Directory) SetName(ctx context.Context, raw, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		d.logger.Warn("ignoring empty contact name", slog.String("phone", raw))
		return ErrEmptyName
	}
	key := Normalize(raw)
	if key == "" {
		return ErrInvalidKey
	}

	now := d.now().UTC()
	d.mu.Lock()
	contact, ok := d.entries[key]
	if ok && contact.IsAlias() {
		if original, found := d.entries[contact.AliasOf]; found {
			key, contact = original.Key, original
		}
	}
	if !ok {
		contact = Contact{Key: key, CreatedAt: now}
		d.order = append(d.order, key)
	}
	contact.Name = name
	contact.UserDefined = true
	contact.UpdatedAt = now
	d.entries[key] = contact
	d.mu.Unlock()

	d.logger.Info("contact renamed", slog.String("key", key), slog.String("name", name))
	return d.persist(ctx, contact)
}

// RemoveName deletes the entry for raw together with every alias pointing to
// it, so lookups of those numbers fall back to the raw number. Absent entries
// are a no-op.
func (d *Directory) RemoveName(ctx context.Context, raw string) error {
	key := Normalize(raw)
	if key == "" {
		return nil
	}
	d.mu.Lock()
	contact, ok := d.entries[key]
	if !ok {
		d.mu.Unlock()
		return nil
	}
	removed := []string{key}
	if !contact.IsAlias() {
		for _, other := range d.order {
			if d.entries[other].AliasOf == key {
				removed = append(removed, other)
			}
		}
	}
	for _, k := range removed {
		delete(d.entries, k)
	}
	kept := d.order[:0]
	for _, existing := range d.order {
		if _, ok := d.entries[existing]; ok {
			kept = append(kept, existing)
		}
	}
	d.order = kept
	d.mu.Unlock()

	var errs []error
	for _, k := range removed {
		if err := d.store.Delete(ctx, k); err != nil {
			d.logger.Error("delete contact failed", slog.String("key", k), slog.Any("error", err))
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	d.logger.Info("contact name removed", slog.String("key", key), slog.Int("aliases", len(removed)-1))
	return nil
}

// LearnFromInbound records the profile name seen on an inbound message.
// An existing name for the number, under any digit-length variant, always wins
// over observedName. A suffix match creates an alias entry pointing at the
// matched entry. The resolved display name is returned.
func (d *Directory) LearnFromInbound(ctx context.Context, raw, observedName string) string {
	key := Normalize(raw)
	if key == "" {
		return raw
	}
	observedName = strings.TrimSpace(observedName)
	now := d.now().UTC()

	d.mu.Lock()
	if contact, ok := d.entries[key]; ok {
		name := d.resolveLocked(contact).Name
		d.mu.Unlock()
		return name
	}
	var learned Contact
	if match, ok := d.suffixMatchLocked(key); ok {
		root := match.Key
		if match.IsAlias() {
			root = match.AliasOf
		}
		resolved := d.resolveLocked(match)
		// Name and UserDefined are a snapshot for the store; reads follow AliasOf.
		learned = Contact{
			Key:         key,
			Name:        resolved.Name,
			UserDefined: resolved.UserDefined,
			AliasOf:     root,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	} else if observedName != "" {
		learned = Contact{
			Key:       key,
			Name:      observedName,
			CreatedAt: now,
			UpdatedAt: now,
		}
	} else {
		d.mu.Unlock()
		return raw
	}
	d.entries[key] = learned
	d.order = append(d.order, key)
	d.mu.Unlock()

	d.logger.Info("contact learned",
		slog.String("key", key),
		slog.String("name", learned.Name),
		slog.String("alias_of", learned.AliasOf),
	)
	if err := d.persist(ctx, learned); err != nil {
		d.logger.Warn("learned contact kept in memory only", slog.String("key", key))
	}
	return learned.Name
}

// All returns every entry in insertion order.
func (d *Directory) All() []Contact {
	d.mu.RLock()
	defer d.mu.RUnlock()
	items := make([]Contact, 0, len(d.order))
	for _, key := range d.order {
		items = append(items, d.resolveLocked(d.entries[key]))
	}
	return items
}

// Names returns a key to name map of every entry.
func (d *Directory) Names() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make(map[string]string, len(d.entries))
	for key, contact := range d.entries {
		names[key] = d.resolveLocked(contact).Name
	}
	return names
}

// FindByName returns the earliest entry whose name equals name, ignoring case.
func (d *Directory) FindByName(name string) (Contact, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Contact{}, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, key := range d.order {
		contact := d.resolveLocked(d.entries[key])
		if strings.ToLower(contact.Name) == name {
			return contact, true
		}
	}
	return Contact{}, false
}

func (d *Directory) suffixMatchLocked(key string) (Contact, bool) {
	suffix, ok := suffixOf(key)
	if !ok {
		return Contact{}, false
	}
	for _, candidate := range d.order {
		if candidate == key {
			continue
		}
		if other, ok := suffixOf(candidate); ok && other == suffix {
			return d.entries[candidate], true
		}
	}
	return Contact{}, false
}

// resolveLocked replaces an alias's name and provenance with those of the
// entry it points to. An alias whose target is gone keeps its snapshot.
func (d *Directory) resolveLocked(contact Contact) Contact {
	if !contact.IsAlias() {
		return contact
	}
	if original, ok := d.entries[contact.AliasOf]; ok {
		contact.Name = original.Name
		contact.UserDefined = original.UserDefined
	}
	return contact
}

func (d *Directory) persist(ctx context.Context, contact Contact) error {
	if err := d.store.Upsert(ctx, contact); err != nil {
		d.logger.Error("persist contact failed", slog.String("key", contact.Key), slog.Any("error", err))
		return fmt.Errorf("persist contact: %w", err)
	}
	return nil
}
