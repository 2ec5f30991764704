// Copyright 2026 © The Axon Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic conventions for Axon telemetry. These follow OpenTelemetry
// naming conventions where applicable.
const (
	// Task attributes
	AttrTaskID       = "axon.task.id"
	AttrTaskRole     = "axon.task.role"
	AttrTaskStatus   = "axon.task.status"
	AttrTaskPriority = "axon.task.priority"

	// Agent loop attributes
	AttrAgentRole  = "axon.agent.role"
	AttrAgentTurn  = "axon.agent.turn"
	AttrAgentRunID = "axon.agent.run_id"

	// Tool attributes
	AttrToolName    = "axon.tool.name"
	AttrToolCaller  = "axon.tool.caller"
	AttrToolAllowed = "axon.tool.allowed"

	// LLM attributes (standard gen_ai conventions)
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"

	// Memory attributes
	AttrMemoryKind      = "axon.memory.kind"
	AttrMemoryRetrieved = "axon.memory.retrieved_count"
	AttrMemoryPhase     = "axon.memory.search_phase" // "vector" or "keyword"
)

// TaskAttrs builds the standard span attributes for a task execution.
func TaskAttrs(taskID, role, priority string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrTaskID, taskID),
		attribute.String(AttrTaskRole, role),
		attribute.String(AttrTaskPriority, priority),
	}
}

// ToolAttrs builds the standard span attributes for a tool dispatch.
func ToolAttrs(tool, caller string, allowed bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrToolName, tool),
		attribute.String(AttrToolCaller, caller),
		attribute.Bool(AttrToolAllowed, allowed),
	}
}
