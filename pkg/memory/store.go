// Package memory provides the durable agent memory with hybrid
// vector/keyword retrieval. Vector search degrades gracefully: when the
// embedding service is unavailable, retrieval falls back to keyword
// matching instead of failing.
package memory

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/axonrt/axon/pkg/core"
	"github.com/axonrt/axon/pkg/errors"
	"github.com/axonrt/axon/pkg/llm"
	"github.com/axonrt/axon/pkg/store"
)

// DefaultMinSimilarity is the vector-phase score cutoff.
const DefaultMinSimilarity = 0.65

// Option configures a Store.
type Option func(*Store)

// WithMinSimilarity overrides the vector-phase similarity threshold.
func WithMinSimilarity(threshold float64) Option {
	return func(s *Store) { s.threshold = threshold }
}

// WithVectorStore attaches a remote vector backend. When set, the vector
// phase of Search queries it instead of scanning entries in process.
func WithVectorStore(vs VectorStore, collection string) Option {
	return func(s *Store) {
		s.remote = vs
		s.collection = collection
	}
}

// WithBus attaches a change-notification bus.
func WithBus(bus *core.Bus) Option {
	return func(s *Store) { s.bus = bus }
}

// Store holds memory entries, embedding on write and retrieving with
// two-phase hybrid search. Entries are immutable once added.
type Store struct {
	mu         sync.RWMutex
	entries    []*core.MemoryEntry // chronological, oldest first
	provider   llm.Provider
	durable    store.Store
	bus        *core.Bus
	threshold  float64
	remote     VectorStore
	collection string
}

// NewStore creates a memory store backed by the given durable store and
// embedding provider.
func NewStore(provider llm.Provider, durable store.Store, opts ...Option) *Store {
	s := &Store{
		provider:  provider,
		durable:   durable,
		threshold: DefaultMinSimilarity,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load hydrates the in-process working set from the durable store.
func (s *Store) Load(ctx context.Context) error {
	if s.durable == nil {
		return nil
	}
	entries, err := s.durable.ListMemories(ctx)
	if err != nil {
		return errors.New(errors.CodeMemoryError, "hydrate memory entries", err)
	}
	// Durable listing is newest-first; the working set is chronological.
	s.mu.Lock()
	s.entries = s.entries[:0]
	for i := len(entries) - 1; i >= 0; i-- {
		s.entries = append(s.entries, entries[i])
	}
	s.mu.Unlock()
	return nil
}

// Add embeds and persists a new entry. Embedding is best-effort: on
// failure the entry is stored without a vector (excluding it from vector
// search) rather than failing the write.
func (s *Store) Add(ctx context.Context, content string, kind core.MemoryKind, origin core.Role, tags []string) (*core.MemoryEntry, error) {
	entry := core.NewMemoryEntry(kind, content, origin, tags)

	if s.provider != nil {
		vec, err := s.provider.Embed(ctx, content)
		if err != nil {
			slog.WarnContext(ctx, "embedding failed, storing entry without vector",
				slog.String("entry_id", entry.ID),
				slog.String("error", err.Error()),
			)
		} else {
			entry.Embedding = vec
		}
	}

	if s.durable != nil {
		if err := s.durable.PutMemory(ctx, entry); err != nil {
			return nil, errors.New(errors.CodeMemoryError, "persist memory entry", err)
		}
	}

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()

	if s.remote != nil && len(entry.Embedding) > 0 {
		point := Point{
			ID:     entry.ID,
			Vector: entry.Embedding,
			Payload: map[string]any{
				"content": entry.Content,
				"kind":    string(entry.Kind),
			},
			Timestamp: entry.Timestamp.Unix(),
		}
		if err := s.remote.Upsert(ctx, s.collection, []Point{point}); err != nil {
			slog.WarnContext(ctx, "vector backend upsert failed",
				slog.String("entry_id", entry.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.bus != nil {
		s.bus.Notify()
	}
	return entry, nil
}

// Search retrieves relevant entries with two-phase hybrid retrieval.
// Phase 1 embeds the query and ranks stored vectors by cosine similarity,
// keeping scores at or above the threshold. If embedding fails or phase 1
// yields nothing, phase 2 falls back to case-insensitive substring
// matching over content and tags, newest-first.
func (s *Store) Search(ctx context.Context, query string) ([]*core.MemoryEntry, error) {
	results, err := s.vectorSearch(ctx, query)
	if err == nil && len(results) > 0 {
		return results, nil
	}
	if err != nil {
		slog.DebugContext(ctx, "vector search unavailable, using keyword fallback",
			slog.String("error", err.Error()),
		)
	}
	return s.keywordSearch(query), nil
}

func (s *Store) vectorSearch(ctx context.Context, query string) ([]*core.MemoryEntry, error) {
	if s.provider == nil {
		return nil, errors.New(errors.CodeMemoryError, "no embedding provider", nil)
	}
	queryVec, err := s.provider.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	if s.remote != nil {
		return s.remoteSearch(ctx, queryVec)
	}

	type scored struct {
		entry *core.MemoryEntry
		score float64
	}
	s.mu.RLock()
	var hits []scored
	for _, entry := range s.entries {
		if len(entry.Embedding) == 0 {
			continue
		}
		if score := Cosine(queryVec, entry.Embedding); score >= s.threshold {
			hits = append(hits, scored{entry: entry, score: score})
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	results := make([]*core.MemoryEntry, len(hits))
	for i, h := range hits {
		results[i] = h.entry
	}
	return results, nil
}

func (s *Store) remoteSearch(ctx context.Context, queryVec []float32) ([]*core.MemoryEntry, error) {
	hits, err := s.remote.Search(ctx, s.collection, queryVec, 10, float32(s.threshold))
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	byID := make(map[string]*core.MemoryEntry, len(s.entries))
	for _, entry := range s.entries {
		byID[entry.ID] = entry
	}
	s.mu.RUnlock()

	var results []*core.MemoryEntry
	for _, hit := range hits {
		if entry, ok := byID[hit.ID]; ok {
			results = append(results, entry)
		}
	}
	return results, nil
}

func (s *Store) keywordSearch(query string) []*core.MemoryEntry {
	needle := strings.ToLower(query)

	s.mu.RLock()
	var hits []*core.MemoryEntry
	for _, entry := range s.entries {
		if strings.Contains(strings.ToLower(entry.Content), needle) {
			hits = append(hits, entry)
			continue
		}
		for _, tag := range entry.Tags {
			if strings.Contains(strings.ToLower(tag), needle) {
				hits = append(hits, entry)
				break
			}
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Timestamp.After(hits[j].Timestamp)
	})
	return hits
}

// All returns every entry, newest-first.
func (s *Store) All() []*core.MemoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*core.MemoryEntry, len(s.entries))
	for i, entry := range s.entries {
		all[len(s.entries)-1-i] = entry
	}
	return all
}

// Clear irreversibly wipes all entries. Confirmation is the caller's
// responsibility.
func (s *Store) Clear(ctx context.Context) error {
	if s.durable != nil {
		if err := s.durable.ClearMemories(ctx); err != nil {
			return errors.New(errors.CodeMemoryError, "clear memory entries", err)
		}
	}
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
	if s.bus != nil {
		s.bus.Notify()
	}
	return nil
}
