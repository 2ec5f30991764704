// Copyright 2026 © The Axon Authors
// SPDX-License-Identifier: Apache-2.0

// Package tool implements the capability-gated tool dispatch table. Every
// dispatch consults the capability registry before the handler runs, and
// every outcome — including panics and authorization denials — is folded
// into a textual result so the calling loop never sees an exception.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/axonrt/axon/pkg/capability"
	"github.com/axonrt/axon/pkg/core"
	"github.com/axonrt/axon/pkg/llm"
)

// SecurityBlockPrefix starts every denial result. The model sees this
// string and may adapt; the handler is never invoked.
const SecurityBlockPrefix = "SECURITY BLOCK"

// ErrorPrefix starts every folded handler-failure result.
const ErrorPrefix = "Error"

// Handler executes a tool call and returns a textual result.
type Handler func(ctx context.Context, args map[string]any, caller core.Role) (string, error)

// Definition declares one tool: its unique name, parameter schema,
// required permissions, and handler.
type Definition struct {
	Name        string
	Description string
	Parameters  any // JSON Schema
	Required    core.PermissionSet
	Handler     Handler
}

// Registry is the dispatch table.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Definition
	caps  *capability.Registry
}

// NewRegistry creates an empty dispatch table bound to a capability
// registry.
func NewRegistry(caps *capability.Registry) *Registry {
	return &Registry{
		tools: make(map[string]Definition),
		caps:  caps,
	}
}

// Register adds a tool and records its permission requirements with the
// capability registry. Names must be unique.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %s: handler is required", def.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %s already registered", def.Name)
	}
	r.tools[def.Name] = def
	r.caps.Require(def.Name, def.Required)
	return nil
}

// Declarations returns the tool declarations the role is permitted to
// call, in stable name order.
func (r *Registry) Declarations(role core.Role) []llm.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	grants := r.caps.Grants(role)
	names := make([]string, 0, len(r.tools))
	for name, def := range r.tools {
		if grants.HasAll(def.Required) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	decls := make([]llm.Tool, 0, len(names))
	for _, name := range names {
		def := r.tools[name]
		decls = append(decls, llm.Tool{
			Type: llm.ToolTypeFunction,
			Function: llm.FunctionDef{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return decls
}

// Dispatch runs one requested tool call on behalf of caller and always
// returns a textual result.
func (r *Registry) Dispatch(ctx context.Context, caller core.Role, call llm.ToolCall) (result string) {
	name := call.Function.Name

	if err := r.caps.Authorize(ctx, caller, name); err != nil {
		return fmt.Sprintf("%s: role %q is not authorized to invoke tool %q", SecurityBlockPrefix, caller, name)
	}

	r.mu.RLock()
	def, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		// Authorize fails closed for unregistered tools, so this is
		// unreachable unless the table mutated mid-flight.
		return fmt.Sprintf("%s: unknown tool %q", ErrorPrefix, name)
	}

	args := make(map[string]any)
	if raw := call.Function.Arguments; raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return fmt.Sprintf("%s: invalid arguments for %s: %v", ErrorPrefix, name, err)
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.ErrorContext(ctx, "tool handler panicked",
				slog.String("tool", name),
				slog.String("caller", string(caller)),
				slog.Any("panic", rec),
			)
			result = fmt.Sprintf("%s: tool %s failed internally: %v", ErrorPrefix, name, rec)
		}
	}()

	out, err := def.Handler(ctx, args, caller)
	if err != nil {
		return fmt.Sprintf("%s: %v", ErrorPrefix, err)
	}
	return out
}
