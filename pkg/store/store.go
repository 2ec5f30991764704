// Package store provides the durable persistence layer for tasks, memory
// entries, system logs and agent status records. The contract is plain
// per-record put/get/list with recency-ordered retrieval; last write wins
// per key and no cross-entry transactions are offered.
package store

import (
	"context"

	"github.com/axonrt/axon/pkg/core"
)

// Store is the durable store collaborator.
type Store interface {
	PutTask(ctx context.Context, task *core.Task) error
	GetTask(ctx context.Context, id string) (*core.Task, error)
	ListTasks(ctx context.Context) ([]*core.Task, error)

	PutMemory(ctx context.Context, entry *core.MemoryEntry) error
	// ListMemories returns entries newest-first.
	ListMemories(ctx context.Context) ([]*core.MemoryEntry, error)
	// ClearMemories irreversibly wipes all memory entries.
	ClearMemories(ctx context.Context) error

	AppendLog(ctx context.Context, entry *core.LogEntry) error
	// ListLogs returns the most recent entries, newest-first, up to limit.
	// A non-positive limit returns everything.
	ListLogs(ctx context.Context, limit int) ([]*core.LogEntry, error)

	PutAgentStatus(ctx context.Context, status *core.AgentStatus) error
	ListAgentStatuses(ctx context.Context) ([]*core.AgentStatus, error)

	Close() error
}
