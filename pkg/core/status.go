package core

import "time"

// AgentState describes what an agent role is currently doing.
type AgentState string

const (
	AgentIdle         AgentState = "IDLE"
	AgentThinking     AgentState = "THINKING"
	AgentExecuting    AgentState = "EXECUTING"
	AgentAwaitingTool AgentState = "AWAITING_TOOL"
	AgentError        AgentState = "ERROR"
	AgentOffline      AgentState = "OFFLINE"
)

// AgentStatus tracks the runtime state of one agent role. There is one
// status slot per role, not per task: when two tasks of the same role run
// concurrently the slot reflects the most recent transition (last write
// wins). CurrentTask records which task wrote last.
type AgentStatus struct {
	ID           string     `json:"id"`
	Role         Role       `json:"role"`
	DisplayName  string     `json:"display_name"`
	State        AgentState `json:"state"`
	Confidence   float64    `json:"confidence"`
	LastActivity time.Time  `json:"last_activity"`
	CurrentTask  string     `json:"current_task,omitempty"`
}

// NewAgentStatus returns an idle status slot for the role.
func NewAgentStatus(role Role) *AgentStatus {
	return &AgentStatus{
		ID:           "agent-" + string(role),
		Role:         role,
		DisplayName:  role.DisplayName(),
		State:        AgentIdle,
		Confidence:   1.0,
		LastActivity: time.Now().UTC(),
	}
}
