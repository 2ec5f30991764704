package store

import (
	"context"
	"sort"
	"sync"

	"github.com/axonrt/axon/pkg/core"
	"github.com/axonrt/axon/pkg/errors"
)

// Memory keeps all records in process memory. It backs tests and
// ephemeral deployments; the semantics match the SQLite store.
type Memory struct {
	mu       sync.RWMutex
	tasks    map[string]*core.Task
	order    []string
	memories []*core.MemoryEntry
	logs     []*core.LogEntry
	statuses map[core.Role]*core.AgentStatus
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tasks:    make(map[string]*core.Task),
		statuses: make(map[core.Role]*core.AgentStatus),
	}
}

func (s *Memory) PutTask(_ context.Context, task *core.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *task
	if _, exists := s.tasks[task.ID]; !exists {
		s.order = append(s.order, task.ID)
	}
	s.tasks[task.ID] = &copied
	return nil
}

func (s *Memory) GetTask(_ context.Context, id string) (*core.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "task not found", nil).WithContext("id", id)
	}
	copied := *task
	return &copied, nil
}

func (s *Memory) ListTasks(_ context.Context) ([]*core.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tasks := make([]*core.Task, 0, len(s.order))
	for _, id := range s.order {
		copied := *s.tasks[id]
		tasks = append(tasks, &copied)
	}
	return tasks, nil
}

func (s *Memory) PutMemory(_ context.Context, entry *core.MemoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *entry
	s.memories = append(s.memories, &copied)
	return nil
}

func (s *Memory) ListMemories(_ context.Context) ([]*core.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]*core.MemoryEntry, len(s.memories))
	for i, e := range s.memories {
		copied := *e
		entries[i] = &copied
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}

func (s *Memory) ClearMemories(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memories = nil
	return nil
}

func (s *Memory) AppendLog(_ context.Context, entry *core.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *entry
	s.logs = append(s.logs, &copied)
	return nil
}

func (s *Memory) ListLogs(_ context.Context, limit int) ([]*core.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]*core.LogEntry, len(s.logs))
	for i, e := range s.logs {
		copied := *e
		entries[len(s.logs)-1-i] = &copied
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Memory) PutAgentStatus(_ context.Context, status *core.AgentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *status
	s.statuses[status.Role] = &copied
	return nil
}

func (s *Memory) ListAgentStatuses(_ context.Context) ([]*core.AgentStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	statuses := make([]*core.AgentStatus, 0, len(s.statuses))
	for _, st := range s.statuses {
		copied := *st
		statuses = append(statuses, &copied)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Role < statuses[j].Role })
	return statuses, nil
}

func (s *Memory) Close() error { return nil }
