package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Embedder computes a vector for a piece of text. Implementations wrap a
// concrete provider (OpenAI, Ollama, a custom HTTP endpoint, a local
// model) behind this one seam so the manager never hard-codes a provider's
// request/response shape (spec.md §9).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelID() string
	Dims() int
}

// ToolSource is the minimal view of a registry tool the manager needs to
// compute a canonical content hash and an embedding input string.
type ToolSource struct {
	Key         string
	Name        string
	Description string
	InputSchema []byte
}

// Manager maintains the in-memory mirror over a persisted Store and
// reconciles it against the registry's current tool set on every snapshot
// change, re-embedding only tools whose canonical content hash changed.
type Manager struct {
	store    Store
	embedder Embedder
	now      func() time.Time

	mu     sync.RWMutex
	mirror map[string]Record

	// embedGroup collapses concurrent Reconcile calls that would embed the
	// same tool key (e.g. a registry reload racing a discovery-triggered
	// reconcile) into a single provider round trip.
	embedGroup singleflight.Group
}

// NewManager loads store's current contents into the in-memory mirror and
// returns a ready-to-use Manager.
func NewManager(store Store, embedder Embedder, now func() time.Time) (*Manager, error) {
	if now == nil {
		now = time.Now
	}
	m := &Manager{store: store, embedder: embedder, now: now, mirror: make(map[string]Record)}
	recs, err := store.All()
	if err != nil {
		return nil, fmt.Errorf("embedding: load mirror: %w", err)
	}
	for _, r := range recs {
		m.mirror[r.ToolKey] = r
	}
	return m, nil
}

// Reconcile re-embeds every tool in tools whose canonical content hash
// differs from the mirrored record (or that has none yet), persists the
// new records, and drops mirrored entries for tools no longer present.
// It returns the number of tools re-embedded.
func (m *Manager) Reconcile(ctx context.Context, tools []ToolSource) (int, error) {
	model := m.embedder.ModelID()
	seen := make(map[string]bool, len(tools))
	reembedded := 0

	for _, t := range tools {
		seen[t.Key] = true
		hash := ContentHash(t.Name, t.Description, t.InputSchema, model)

		m.mu.RLock()
		existing, ok := m.mirror[t.Key]
		m.mu.RUnlock()
		if ok && existing.Valid(hash) {
			continue
		}

		vecAny, err, _ := m.embedGroup.Do(t.Key, func() (any, error) {
			return m.embedder.Embed(ctx, embeddingInput(t.Name, t.Description))
		})
		if err != nil {
			return reembedded, fmt.Errorf("embedding: embed tool %q: %w", t.Key, err)
		}
		vec := vecAny.([]float32)
		rec := Record{
			ToolKey:     t.Key,
			ContentHash: hash,
			Vector:      vec,
			ModelID:     model,
			Dims:        m.embedder.Dims(),
			GeneratedAt: m.now(),
		}
		if err := m.store.Put(rec); err != nil {
			return reembedded, err
		}
		m.mu.Lock()
		m.mirror[t.Key] = rec
		m.mu.Unlock()
		reembedded++
	}

	m.mu.Lock()
	for key := range m.mirror {
		if !seen[key] {
			delete(m.mirror, key)
		}
	}
	m.mu.Unlock()

	return reembedded, nil
}

// Lookup returns the mirrored record for toolKey if present. It does not
// validate the hash — callers querying against a specific tool set should
// compare against Record.Valid themselves, since the manager may not have
// reconciled against the caller's exact snapshot yet.
func (m *Manager) Lookup(toolKey string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.mirror[toolKey]
	return r, ok
}

// All returns a snapshot copy of every mirrored record.
func (m *Manager) All() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.mirror))
	for _, r := range m.mirror {
		out = append(out, r)
	}
	return out
}

func embeddingInput(name, description string) string {
	if description == "" {
		return name
	}
	return name + ": " + description
}
