package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/axonrt/axon/pkg/core"
	"github.com/axonrt/axon/pkg/errors"

	_ "modernc.org/sqlite"
)

const (
	taskTable   = "axon_tasks"
	memoryTable = "axon_memories"
	logTable    = "axon_logs"
	statusTable = "axon_agent_status"
)

// SQLite persists runtime records in a SQLite database. Records are stored
// as JSON payloads next to the columns the runtime queries by.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and ensures
// the schema.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.New(errors.CodeStoreError, "open sqlite database", err)
	}
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

// NewSQLite wraps an existing database handle and ensures the schema.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`, taskTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_status ON %s(status);`, taskTable, taskTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_created ON %s(created_at);`, taskTable, taskTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`, memoryTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_created ON %s(created_at);`, memoryTable, memoryTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			severity TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`, logTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_created ON %s(created_at);`, logTable, logTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			role TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);`, statusTable),
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return errors.New(errors.CodeStoreError, "ensure schema", err)
		}
	}
	return nil
}

// PutTask inserts or replaces a task record.
func (s *SQLite) PutTask(ctx context.Context, task *core.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return errors.New(errors.CodeStoreError, "marshal task", err)
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT OR REPLACE INTO %s (id, status, created_at, payload) VALUES (?, ?, ?, ?)`, taskTable),
		task.ID, string(task.Status), task.CreatedAt.UnixMilli(), payload)
	if err != nil {
		return errors.New(errors.CodeStoreError, "put task", err)
	}
	return nil
}

// GetTask retrieves a task by id.
func (s *SQLite) GetTask(ctx context.Context, id string) (*core.Task, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT payload FROM %s WHERE id = ?`, taskTable), id)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New(errors.CodeNotFound, "task not found", nil).WithContext("id", id)
		}
		return nil, errors.New(errors.CodeStoreError, "get task", err)
	}
	var task core.Task
	if err := json.Unmarshal(payload, &task); err != nil {
		return nil, errors.New(errors.CodeStoreError, "unmarshal task", err)
	}
	return &task, nil
}

// ListTasks returns all tasks in insertion order.
func (s *SQLite) ListTasks(ctx context.Context) ([]*core.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT payload FROM %s ORDER BY created_at ASC`, taskTable))
	if err != nil {
		return nil, errors.New(errors.CodeStoreError, "list tasks", err)
	}
	defer rows.Close()

	var tasks []*core.Task
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.New(errors.CodeStoreError, "scan task", err)
		}
		var task core.Task
		if err := json.Unmarshal(payload, &task); err != nil {
			return nil, errors.New(errors.CodeStoreError, "unmarshal task", err)
		}
		tasks = append(tasks, &task)
	}
	return tasks, rows.Err()
}

// PutMemory persists a memory entry.
func (s *SQLite) PutMemory(ctx context.Context, entry *core.MemoryEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return errors.New(errors.CodeStoreError, "marshal memory entry", err)
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT OR REPLACE INTO %s (id, kind, created_at, payload) VALUES (?, ?, ?, ?)`, memoryTable),
		entry.ID, string(entry.Kind), entry.Timestamp.UnixMilli(), payload)
	if err != nil {
		return errors.New(errors.CodeStoreError, "put memory entry", err)
	}
	return nil
}

// ListMemories returns all memory entries newest-first.
func (s *SQLite) ListMemories(ctx context.Context) ([]*core.MemoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT payload FROM %s ORDER BY created_at DESC`, memoryTable))
	if err != nil {
		return nil, errors.New(errors.CodeStoreError, "list memory entries", err)
	}
	defer rows.Close()

	var entries []*core.MemoryEntry
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.New(errors.CodeStoreError, "scan memory entry", err)
		}
		var entry core.MemoryEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return nil, errors.New(errors.CodeStoreError, "unmarshal memory entry", err)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// ClearMemories wipes every memory entry.
func (s *SQLite) ClearMemories(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, memoryTable)); err != nil {
		return errors.New(errors.CodeStoreError, "clear memory entries", err)
	}
	return nil
}

// AppendLog persists a log entry. Unlike the in-memory ring, the durable
// log is uncapped.
func (s *SQLite) AppendLog(ctx context.Context, entry *core.LogEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return errors.New(errors.CodeStoreError, "marshal log entry", err)
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, severity, created_at, payload) VALUES (?, ?, ?, ?)`, logTable),
		entry.ID, string(entry.Severity), entry.Timestamp.UnixMilli(), payload)
	if err != nil {
		return errors.New(errors.CodeStoreError, "append log entry", err)
	}
	return nil
}

// ListLogs returns the most recent log entries, newest-first.
func (s *SQLite) ListLogs(ctx context.Context, limit int) ([]*core.LogEntry, error) {
	query := fmt.Sprintf(`SELECT payload FROM %s ORDER BY created_at DESC`, logTable)
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, query+" LIMIT ?", limit)
	} else {
		rows, err = s.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, errors.New(errors.CodeStoreError, "list log entries", err)
	}
	defer rows.Close()

	var entries []*core.LogEntry
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.New(errors.CodeStoreError, "scan log entry", err)
		}
		var entry core.LogEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return nil, errors.New(errors.CodeStoreError, "unmarshal log entry", err)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// PutAgentStatus upserts the status slot for a role.
func (s *SQLite) PutAgentStatus(ctx context.Context, status *core.AgentStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return errors.New(errors.CodeStoreError, "marshal agent status", err)
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT OR REPLACE INTO %s (role, payload) VALUES (?, ?)`, statusTable),
		string(status.Role), payload)
	if err != nil {
		return errors.New(errors.CodeStoreError, "put agent status", err)
	}
	return nil
}

// ListAgentStatuses returns all role status slots.
func (s *SQLite) ListAgentStatuses(ctx context.Context) ([]*core.AgentStatus, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT payload FROM %s ORDER BY role ASC`, statusTable))
	if err != nil {
		return nil, errors.New(errors.CodeStoreError, "list agent statuses", err)
	}
	defer rows.Close()

	var statuses []*core.AgentStatus
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.New(errors.CodeStoreError, "scan agent status", err)
		}
		var status core.AgentStatus
		if err := json.Unmarshal(payload, &status); err != nil {
			return nil, errors.New(errors.CodeStoreError, "unmarshal agent status", err)
		}
		statuses = append(statuses, &status)
	}
	return statuses, rows.Err()
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}
