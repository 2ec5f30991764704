package core

// Permission is a named grant required to invoke a tool.
type Permission string

const (
	PermReadMemory    Permission = "READ_MEMORY"
	PermWriteMemory   Permission = "WRITE_MEMORY"
	PermExecuteCode   Permission = "EXECUTE_CODE"
	PermNetworkAccess Permission = "NETWORK_ACCESS"
	PermSystemControl Permission = "SYSTEM_CONTROL"
	PermAudioIO       Permission = "AUDIO_IO"
	PermSearchAccess  Permission = "SEARCH_ACCESS"
)

// PermissionSet is an immutable-by-convention set of permissions.
type PermissionSet map[Permission]struct{}

// Permissions builds a set from the given grants.
func Permissions(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports whether the set contains the permission.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// HasAll reports whether every permission in required is present.
func (s PermissionSet) HasAll(required PermissionSet) bool {
	for p := range required {
		if !s.Has(p) {
			return false
		}
	}
	return true
}
