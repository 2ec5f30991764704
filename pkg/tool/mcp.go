// Copyright 2026 © The Axon Authors
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/axonrt/axon/pkg/core"
)

// MCPCaller abstracts MCP tool execution so the bridge can be tested
// without a live server.
type MCPCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// MCPDefinition bridges one MCP tool into the dispatch table. External
// tools carry the permission set the operator assigns them; the same
// capability gate applies as for built-ins.
func MCPDefinition(t mcp.Tool, caller MCPCaller, required core.PermissionSet) (Definition, error) {
	if t.Name == "" {
		return Definition{}, errors.New("mcp tool name is required")
	}
	if caller == nil {
		return Definition{}, errors.New("mcp tool caller is required")
	}
	var params any = t.InputSchema
	if t.RawInputSchema != nil {
		params = t.RawInputSchema
	}
	return Definition{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  params,
		Required:    required,
		Handler: func(ctx context.Context, args map[string]any, _ core.Role) (string, error) {
			if err := validateRequiredArgs(t, args); err != nil {
				return "", err
			}
			result, err := caller.CallTool(ctx, t.Name, args)
			if err != nil {
				return "", err
			}
			return mcpResultText(result)
		},
	}, nil
}

// RegisterMCPTools installs every listed MCP tool with a shared
// permission requirement.
func RegisterMCPTools(r *Registry, tools []mcp.Tool, caller MCPCaller, required core.PermissionSet) error {
	for _, t := range tools {
		def, err := MCPDefinition(t, caller, required)
		if err != nil {
			return err
		}
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func validateRequiredArgs(t mcp.Tool, args map[string]any) error {
	schema := t.InputSchema
	if schema.Type != "" && schema.Type != "object" {
		return nil
	}
	for _, key := range schema.Required {
		if _, ok := args[key]; !ok {
			return fmt.Errorf("mcp tool %s: missing required field %q", t.Name, key)
		}
	}
	return nil
}

func mcpResultText(result *mcp.CallToolResult) (string, error) {
	if result == nil {
		return "", errors.New("mcp tool result is nil")
	}
	text := extractTextContent(result.Content)
	if result.IsError {
		return "", fmt.Errorf("mcp tool returned error: %s", text)
	}
	if text == "" {
		return "Tool completed with no textual output.", nil
	}
	return text, nil
}

func extractTextContent(items []mcp.Content) string {
	if len(items) == 0 {
		return ""
	}
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}
