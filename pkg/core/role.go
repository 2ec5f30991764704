package core

// Role is the behavioral specialization of an agent. It determines the
// agent's instruction text, granted permissions and allowed tools.
type Role string

const (
	RolePlanner    Role = "planner"
	RoleCoder      Role = "coder"
	RoleResearcher Role = "researcher"
	RoleAuditor    Role = "auditor"
	RoleOperator   Role = "operator"
)

// Roles lists every known role in a stable order.
func Roles() []Role {
	return []Role{RolePlanner, RoleCoder, RoleResearcher, RoleAuditor, RoleOperator}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RolePlanner, RoleCoder, RoleResearcher, RoleAuditor, RoleOperator:
		return true
	}
	return false
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RolePlanner:
		return "Planning Agent"
	case RoleCoder:
		return "Coding Agent"
	case RoleResearcher:
		return "Research Agent"
	case RoleAuditor:
		return "Security Audit Agent"
	case RoleOperator:
		return "Operations Agent"
	default:
		return string(r)
	}
}
