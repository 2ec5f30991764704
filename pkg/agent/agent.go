// Copyright 2026 © The Axon Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent runs one task through a bounded model/tool loop. The
// loop ends when the model stops requesting tools or the turn limit is
// reached; tool failures are folded into the conversation as text so a
// single bad call never aborts the task.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/axonrt/axon/pkg/capability"
	"github.com/axonrt/axon/pkg/core"
	"github.com/axonrt/axon/pkg/errors"
	"github.com/axonrt/axon/pkg/llm"
	"github.com/axonrt/axon/pkg/telemetry"
	"github.com/axonrt/axon/pkg/tool"
)

// DefaultMaxTurns bounds the model/tool loop for a single task.
const DefaultMaxTurns = 10

// TruncationNotice is appended to the output when a task hits the turn
// limit while the model is still requesting tools.
const TruncationNotice = "[truncated: turn limit reached]"

// Agent executes tasks for one role.
type Agent struct {
	role     core.Role
	provider llm.Provider
	model    string
	tools    *tool.Registry
	caps     *capability.Registry
	maxTurns int
	tracer   trace.Tracer
}

// Option configures an Agent instance.
type Option func(*Agent)

// WithMaxTurns overrides the loop bound.
func WithMaxTurns(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxTurns = n
		}
	}
}

// WithTracer overrides the default tracer.
func WithTracer(t trace.Tracer) Option {
	return func(a *Agent) {
		a.tracer = t
	}
}

// New creates an agent bound to a role, model, and tool table.
func New(role core.Role, provider llm.Provider, model string, tools *tool.Registry, caps *capability.Registry, opts ...Option) (*Agent, error) {
	if !role.Valid() {
		return nil, errors.New(errors.CodeInvalidInput, fmt.Sprintf("unknown agent role %q", role), nil)
	}
	if provider == nil {
		return nil, errors.New(errors.CodeInvalidInput, "agent provider is required", nil)
	}
	a := &Agent{
		role:     role,
		provider: provider,
		model:    model,
		tools:    tools,
		caps:     caps,
		maxTurns: DefaultMaxTurns,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.tracer == nil {
		a.tracer = otel.Tracer("axon/agent")
	}
	return a, nil
}

// Role returns the agent's role.
func (a *Agent) Role() core.Role { return a.role }

// Input carries everything the loop needs for one task.
type Input struct {
	Task          *core.Task
	MemoryContext []string // retrieved memory content, most relevant first
	ParentResult  string   // result of the parent task, if delegated

	// StateFn, when set, receives agent-state transitions (THINKING while
	// waiting on the model, AWAITING_TOOL while dispatching).
	StateFn func(core.AgentState)
}

// Result is the outcome of one run.
type Result struct {
	Output    string
	Turns     int
	Truncated bool
	Citations []llm.Citation
}

// Run drives the model/tool loop for one task until the model produces
// a final answer or the turn limit is hit.
func (a *Agent) Run(ctx context.Context, input Input) (*Result, error) {
	if input.Task == nil {
		return nil, errors.New(errors.CodeInvalidInput, "agent input task is required", nil)
	}
	ctx, runID := core.EnsureRunID(ctx)
	ctx = core.WithTaskID(ctx, input.Task.ID)

	ctx, span := a.tracer.Start(ctx, "Agent.Run", trace.WithAttributes(
		append(telemetry.TaskAttrs(input.Task.ID, string(a.role), input.Task.Priority.String()),
			attribute.String(telemetry.AttrAgentRunID, runID),
		)...,
	))
	defer span.End()

	log := slog.Default()
	log.InfoContext(ctx, "agent.run.start",
		slog.String("task_id", input.Task.ID),
		slog.String("role", string(a.role)),
		slog.String("run_id", runID),
	)

	grounded := a.caps != nil && a.caps.Grants(a.role).Has(core.PermSearchAccess)
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: a.systemFrame(input, grounded)},
		{Role: llm.RoleUser, Content: userFrame(input.Task)},
	}

	var (
		decls     []llm.Tool
		parts     []string
		citations []llm.Citation
		seenURLs  = map[string]struct{}{}
	)
	if a.tools != nil {
		decls = a.tools.Declarations(a.role)
	}

	notify := func(state core.AgentState) {
		if input.StateFn != nil {
			input.StateFn(state)
		}
	}

	for turn := 1; turn <= a.maxTurns; turn++ {
		span.SetAttributes(attribute.Int(telemetry.AttrAgentTurn, turn))
		notify(core.AgentThinking)
		res, err := a.provider.Generate(ctx, llm.GenerateRequest{
			Model:           a.model,
			Messages:        messages,
			Tools:           decls,
			EnableGrounding: grounded,
		})
		if err != nil {
			log.ErrorContext(ctx, "agent.run.error",
				slog.String("task_id", input.Task.ID),
				slog.Int("turn", turn),
				slog.String("error", err.Error()),
			)
			return nil, err
		}

		if text := strings.TrimSpace(res.Content); text != "" {
			parts = append(parts, text)
		}
		for _, c := range res.Citations {
			if _, dup := seenURLs[c.URL]; dup {
				continue
			}
			seenURLs[c.URL] = struct{}{}
			citations = append(citations, c)
		}

		if len(res.ToolCalls) == 0 {
			out := renderOutput(parts, citations, false)
			log.InfoContext(ctx, "agent.run.complete",
				slog.String("task_id", input.Task.ID),
				slog.Int("turns", turn),
			)
			return &Result{Output: out, Turns: turn, Citations: citations}, nil
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   res.Content,
			ToolCalls: res.ToolCalls,
		})
		notify(core.AgentAwaitingTool)
		for _, call := range res.ToolCalls {
			// A tool-less agent still answers hallucinated calls in-band.
			result := fmt.Sprintf("%s: tool %q is not available", tool.ErrorPrefix, call.Function.Name)
			if a.tools != nil {
				result = a.tools.Dispatch(ctx, a.role, call)
			}
			log.DebugContext(ctx, "agent.tool.dispatched",
				slog.String("task_id", input.Task.ID),
				slog.String("tool", call.Function.Name),
			)
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	out := renderOutput(parts, citations, true)
	log.WarnContext(ctx, "agent.run.truncated",
		slog.String("task_id", input.Task.ID),
		slog.Int("turns", a.maxTurns),
	)
	return &Result{Output: out, Turns: a.maxTurns, Truncated: true, Citations: citations}, nil
}

func renderOutput(parts []string, citations []llm.Citation, truncated bool) string {
	out := strings.Join(parts, "\n\n")
	if len(citations) > 0 {
		var sb strings.Builder
		sb.WriteString(out)
		sb.WriteString("\n\nSources:\n")
		for _, c := range citations {
			fmt.Fprintf(&sb, "- %s (%s)\n", c.Title, c.URL)
		}
		out = strings.TrimRight(sb.String(), "\n")
	}
	if truncated {
		if out != "" {
			out += "\n\n"
		}
		out += TruncationNotice
	}
	return out
}

func (a *Agent) systemFrame(input Input, grounded bool) string {
	var sb strings.Builder
	sb.WriteString(persona(a.role))
	if len(input.MemoryContext) > 0 {
		sb.WriteString("\n\nRelevant memories from previous work:\n")
		for _, m := range input.MemoryContext {
			sb.WriteString("- ")
			sb.WriteString(m)
			sb.WriteString("\n")
		}
	}
	if input.ParentResult != "" {
		sb.WriteString("\nResult of the parent task:\n")
		sb.WriteString(input.ParentResult)
		sb.WriteString("\n")
	}
	if grounded {
		sb.WriteString("\nPrefer live web results for anything time-sensitive, and cite your sources.")
	}
	return sb.String()
}

func userFrame(task *core.Task) string {
	var sb strings.Builder
	sb.WriteString("Task: ")
	sb.WriteString(task.Title)
	if task.Description != "" {
		sb.WriteString("\n\n")
		sb.WriteString(task.Description)
	}
	return sb.String()
}

func persona(role core.Role) string {
	switch role {
	case core.RolePlanner:
		return "You are the planning agent. Break work into concrete, ordered steps and delegate sub-tasks to the role best suited for each. Keep plans short and actionable."
	case core.RoleCoder:
		return "You are the coding agent. Write, run, and debug code to complete the task. Verify your work by executing it before reporting success."
	case core.RoleResearcher:
		return "You are the research agent. Gather accurate, current information, distinguish fact from speculation, and always name your sources."
	case core.RoleAuditor:
		return "You are the security audit agent. Review actions, configurations, and outputs for risk. Be precise about severity and never soften findings."
	case core.RoleOperator:
		return "You are the operations agent. Execute operational procedures carefully, log what you do, and stop at the first sign of an unsafe state."
	default:
		return "You are a general-purpose agent. Complete the task directly and report the result."
	}
}
