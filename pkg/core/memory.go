package core

import (
	"time"

	"github.com/google/uuid"
)

// MemoryKind classifies a memory entry.
type MemoryKind string

const (
	// MemorySemantic holds general knowledge.
	MemorySemantic MemoryKind = "SEMANTIC"
	// MemoryEpisodic records the outcome of a specific past action.
	MemoryEpisodic MemoryKind = "EPISODIC"
	// MemoryProcedural holds how-to knowledge.
	MemoryProcedural MemoryKind = "PROCEDURAL"
)

// MemoryEntry is an immutable piece of agent memory. Entries are never
// updated, only superseded by newer ones; a nil Embedding excludes the
// entry from vector search.
type MemoryEntry struct {
	ID        string     `json:"id"`
	Kind      MemoryKind `json:"kind"`
	Content   string     `json:"content"`
	Tags      []string   `json:"tags,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	Origin    Role       `json:"origin"`
	Embedding []float32  `json:"embedding,omitempty"`
}

// NewMemoryEntry creates an entry with a generated ID and current timestamp.
func NewMemoryEntry(kind MemoryKind, content string, origin Role, tags []string) *MemoryEntry {
	return &MemoryEntry{
		ID:        uuid.NewString(),
		Kind:      kind,
		Content:   content,
		Tags:      append([]string(nil), tags...),
		Timestamp: time.Now().UTC(),
		Origin:    origin,
	}
}
