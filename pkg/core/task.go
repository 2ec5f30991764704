package core

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus describes the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusQueued     TaskStatus = "QUEUED"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusFailed     TaskStatus = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Priority orders tasks for admission. Higher values are admitted first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Task is the unit of work driven through the kernel. Tasks are created by
// external submitters or by the delegate_task tool and are mutated only by
// the kernel. They accumulate; they are never deleted.
type Task struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Role         Role       `json:"role"`
	Status       TaskStatus `json:"status"`
	Priority     Priority   `json:"priority"`
	Progress     int        `json:"progress"`
	Result       string     `json:"result,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ParentID     string     `json:"parent_id,omitempty"`
	Dependencies []string   `json:"dependencies,omitempty"`
}

// NewTask creates a queued task with a generated ID.
func NewTask(title, description string, role Role) *Task {
	return &Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Role:        role,
		Status:      TaskStatusQueued,
		Priority:    PriorityMedium,
		CreatedAt:   time.Now().UTC(),
	}
}
