// Copyright 2026 © The Axon Authors
// SPDX-License-Identifier: Apache-2.0

// Package capability maps agent roles to permission grants and tools to
// permission requirements. Authorization fails closed: a tool that never
// declared its requirements is denied before any permission comparison.
package capability

import (
	"context"
	"log/slog"
	"sync"

	"github.com/axonrt/axon/pkg/core"
	"github.com/axonrt/axon/pkg/errors"
)

// Registry is the capability-based access-control table. Role grants are
// fixed at construction; tool requirements are registered alongside the
// dispatch table before the kernel starts.
type Registry struct {
	mu           sync.RWMutex
	grants       map[core.Role]core.PermissionSet
	requirements map[string]core.PermissionSet
}

// DefaultGrants returns the static role -> permission mapping.
func DefaultGrants() map[core.Role]core.PermissionSet {
	return map[core.Role]core.PermissionSet{
		core.RolePlanner: core.Permissions(
			core.PermReadMemory, core.PermWriteMemory, core.PermSystemControl,
		),
		core.RoleCoder: core.Permissions(
			core.PermReadMemory, core.PermWriteMemory, core.PermExecuteCode,
			core.PermSystemControl,
		),
		core.RoleResearcher: core.Permissions(
			core.PermReadMemory, core.PermWriteMemory, core.PermNetworkAccess,
			core.PermSearchAccess,
		),
		core.RoleAuditor: core.Permissions(
			core.PermReadMemory, core.PermSystemControl,
		),
		core.RoleOperator: core.Permissions(
			core.PermReadMemory, core.PermWriteMemory, core.PermNetworkAccess,
			core.PermSystemControl, core.PermAudioIO,
		),
	}
}

// New creates a registry with the given role grants. A nil grants map
// yields a registry that denies everything.
func New(grants map[core.Role]core.PermissionSet) *Registry {
	copied := make(map[core.Role]core.PermissionSet, len(grants))
	for role, set := range grants {
		copied[role] = set
	}
	return &Registry{
		grants:       copied,
		requirements: make(map[string]core.PermissionSet),
	}
}

// Require registers the permissions a tool demands. Called by the dispatch
// table when a tool is registered.
func (r *Registry) Require(tool string, perms core.PermissionSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requirements[tool] = perms
}

// Grants returns the permission set for a role. The lookup is total:
// unknown roles get the empty set.
func (r *Registry) Grants(role core.Role) core.PermissionSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if set, ok := r.grants[role]; ok {
		return set
	}
	return core.PermissionSet{}
}

// Authorize reports whether role may invoke tool. Unregistered tools are
// denied outright. Denials log a WARNING naming the role and tool.
func (r *Registry) Authorize(ctx context.Context, role core.Role, tool string) error {
	r.mu.RLock()
	required, registered := r.requirements[tool]
	r.mu.RUnlock()

	if !registered {
		slog.WarnContext(ctx, "capability denial: unregistered tool",
			slog.String("role", string(role)),
			slog.String("tool", tool),
		)
		return errors.New(errors.CodeUnauthorized, "tool not registered", nil).
			WithContext("role", string(role)).
			WithContext("tool", tool)
	}

	if !r.Grants(role).HasAll(required) {
		slog.WarnContext(ctx, "capability denial: missing permission",
			slog.String("role", string(role)),
			slog.String("tool", tool),
		)
		return errors.New(errors.CodeUnauthorized, "role lacks required permissions", nil).
			WithContext("role", string(role)).
			WithContext("tool", tool)
	}
	return nil
}
