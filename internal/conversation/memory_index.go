package conversation

import (
	"context"
	"math"
	"sort"
	"sync"
)

type memoryEntry struct {
	record Record
	vector []float32
}

// MemoryIndex is an in-process Index using cosine similarity.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries []memoryEntry
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

func (m *MemoryIndex) Upsert(_ context.Context, record Record, vector []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.entries {
		if m.entries[i].record.ID == record.ID {
			m.entries[i] = memoryEntry{record: record, vector: vector}
			return nil
		}
	}
	m.entries = append(m.entries, memoryEntry{record: record, vector: vector})
	return nil
}

func (m *MemoryIndex) ByContact(_ context.Context, contactID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, entry := range m.entries {
		if entry.record.ContactID == contactID {
			out = append(out, entry.record)
		}
	}
	return out, nil
}

func (m *MemoryIndex) Similar(_ context.Context, vector []float32, contactID string, limit int) ([]Match, error) {
	m.mu.RLock()
	matches := make([]Match, 0, len(m.entries))
	for _, entry := range m.entries {
		if contactID != "" && entry.record.ContactID != contactID {
			continue
		}
		matches = append(matches, Match{
			Record:     entry.record,
			Similarity: clampSimilarity(cosine(vector, entry.vector)),
		})
	}
	m.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (m *MemoryIndex) ContactIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]struct{}{}
	var ids []string
	for _, entry := range m.entries {
		if _, ok := seen[entry.record.ContactID]; ok {
			continue
		}
		seen[entry.record.ContactID] = struct{}{}
		ids = append(ids, entry.record.ContactID)
	}
	return ids, nil
}

func (m *MemoryIndex) DeleteContact(_ context.Context, contactID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.entries[:0]
	deleted := 0
	for _, entry := range m.entries {
		if entry.record.ContactID == contactID {
			deleted++
			continue
		}
		kept = append(kept, entry)
	}
	m.entries = kept
	return deleted, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
