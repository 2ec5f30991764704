// Copyright 2026 © The Axon Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/axonrt/axon/pkg/capability"
	"github.com/axonrt/axon/pkg/core"
	"github.com/axonrt/axon/pkg/errors"
	"github.com/axonrt/axon/pkg/llm"
	"github.com/axonrt/axon/pkg/tool"
)

func newCaps() *capability.Registry {
	return capability.New(capability.DefaultGrants())
}

func newTask(role core.Role) *core.Task {
	return core.NewTask("summarize release notes", "Summarize what changed in the latest release.", role)
}

func toolCall(name, args string) llm.ToolCall {
	return llm.ToolCall{
		ID:   "call-1",
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestRunCompletesWithoutToolCalls(t *testing.T) {
	provider := llm.NewScripted(llm.ScriptedResponse{Content: "All done."})
	caps := newCaps()
	a, err := New(core.RolePlanner, provider, "test-model", tool.NewRegistry(caps), caps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := a.Run(context.Background(), Input{Task: newTask(core.RolePlanner)})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Output != "All done." {
		t.Errorf("Output = %q", res.Output)
	}
	if res.Turns != 1 {
		t.Errorf("Turns = %d, want 1", res.Turns)
	}
	if res.Truncated {
		t.Error("Truncated = true, want false")
	}
}

func TestRunDispatchesToolsAndFeedsResultsBack(t *testing.T) {
	caps := newCaps()
	registry := tool.NewRegistry(caps)
	if err := registry.Register(tool.Definition{
		Name:     "lookup",
		Required: core.Permissions(core.PermReadMemory),
		Handler: func(ctx context.Context, args map[string]any, caller core.Role) (string, error) {
			return "release 2.3 shipped on Friday", nil
		},
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	provider := llm.NewScripted(
		llm.ScriptedResponse{ToolCalls: []llm.ToolCall{toolCall("lookup", "{}")}},
		llm.ScriptedResponse{Content: "Release 2.3 shipped on Friday."},
	)
	a, err := New(core.RolePlanner, provider, "test-model", registry, caps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := a.Run(context.Background(), Input{Task: newTask(core.RolePlanner)})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Turns != 2 {
		t.Errorf("Turns = %d, want 2", res.Turns)
	}

	reqs := provider.Requests()
	if len(reqs) != 2 {
		t.Fatalf("got %d requests, want 2", len(reqs))
	}
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	if last.Role != llm.RoleTool {
		t.Errorf("last message role = %q, want tool", last.Role)
	}
	if !strings.Contains(last.Content, "shipped on Friday") {
		t.Errorf("tool result not fed back: %q", last.Content)
	}
	if last.ToolCallID != "call-1" {
		t.Errorf("ToolCallID = %q, want call-1", last.ToolCallID)
	}
}

func TestRunTruncatesAtTurnLimit(t *testing.T) {
	caps := newCaps()
	registry := tool.NewRegistry(caps)
	if err := registry.Register(tool.Definition{
		Name:     "spin",
		Required: core.Permissions(core.PermReadMemory),
		Handler: func(ctx context.Context, args map[string]any, caller core.Role) (string, error) {
			return "still spinning", nil
		},
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	provider := llm.NewScripted(llm.ScriptedResponse{
		Content:   "working on it",
		ToolCalls: []llm.ToolCall{toolCall("spin", "{}")},
	})
	provider.Repeat = true

	a, err := New(core.RolePlanner, provider, "test-model", registry, caps, WithMaxTurns(3))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := a.Run(context.Background(), Input{Task: newTask(core.RolePlanner)})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Truncated {
		t.Error("Truncated = false, want true")
	}
	if res.Turns != 3 {
		t.Errorf("Turns = %d, want 3", res.Turns)
	}
	if !strings.HasSuffix(res.Output, TruncationNotice) {
		t.Errorf("Output = %q, want truncation notice suffix", res.Output)
	}
	if provider.CallCount != 3 {
		t.Errorf("CallCount = %d, want 3", provider.CallCount)
	}
}

func TestRunBlockedToolResultReachesModel(t *testing.T) {
	caps := newCaps()
	registry := tool.NewRegistry(caps)
	handlerCalls := 0
	if err := registry.Register(tool.Definition{
		Name:     "wipe_memory",
		Required: core.Permissions(core.PermWriteMemory),
		Handler: func(ctx context.Context, args map[string]any, caller core.Role) (string, error) {
			handlerCalls++
			return "wiped", nil
		},
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// Auditors cannot write memory.
	provider := llm.NewScripted(
		llm.ScriptedResponse{ToolCalls: []llm.ToolCall{toolCall("wipe_memory", "{}")}},
		llm.ScriptedResponse{Content: "Understood, access denied."},
	)
	a, err := New(core.RoleAuditor, provider, "test-model", registry, caps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := a.Run(context.Background(), Input{Task: newTask(core.RoleAuditor)}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if handlerCalls != 0 {
		t.Errorf("handler invoked %d times, want 0", handlerCalls)
	}
	reqs := provider.Requests()
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	if !strings.HasPrefix(last.Content, tool.SecurityBlockPrefix) {
		t.Errorf("blocked result = %q, want %s prefix", last.Content, tool.SecurityBlockPrefix)
	}
}

func TestRunReportsStateTransitions(t *testing.T) {
	caps := newCaps()
	registry := tool.NewRegistry(caps)
	if err := registry.Register(tool.Definition{
		Name:     "lookup",
		Required: core.Permissions(core.PermReadMemory),
		Handler: func(ctx context.Context, args map[string]any, caller core.Role) (string, error) {
			return "found it", nil
		},
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	provider := llm.NewScripted(
		llm.ScriptedResponse{ToolCalls: []llm.ToolCall{toolCall("lookup", "{}")}},
		llm.ScriptedResponse{Content: "done"},
	)
	a, err := New(core.RolePlanner, provider, "test-model", registry, caps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var states []core.AgentState
	input := Input{
		Task:    newTask(core.RolePlanner),
		StateFn: func(s core.AgentState) { states = append(states, s) },
	}
	if _, err := a.Run(context.Background(), input); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []core.AgentState{core.AgentThinking, core.AgentAwaitingTool, core.AgentThinking}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("states = %v, want %v", states, want)
		}
	}
}

func TestRunToollessAgentSurvivesHallucinatedCall(t *testing.T) {
	provider := llm.NewScripted(
		llm.ScriptedResponse{ToolCalls: []llm.ToolCall{toolCall("made_up_tool", "{}")}},
		llm.ScriptedResponse{Content: "done without tools"},
	)
	a, err := New(core.RolePlanner, provider, "test-model", nil, newCaps())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := a.Run(context.Background(), Input{Task: newTask(core.RolePlanner)})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Output != "done without tools" {
		t.Errorf("Output = %q", res.Output)
	}

	reqs := provider.Requests()
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	if last.Role != llm.RoleTool {
		t.Fatalf("last message role = %q, want tool", last.Role)
	}
	if !strings.HasPrefix(last.Content, tool.ErrorPrefix) {
		t.Errorf("tool result = %q, want %s prefix", last.Content, tool.ErrorPrefix)
	}
}

func TestRunAppendsCitations(t *testing.T) {
	caps := newCaps()
	provider := llm.NewScripted(llm.ScriptedResponse{
		Content: "The release shipped last week.",
		Citations: []llm.Citation{
			{Title: "Release notes", URL: "https://example.com/notes"},
		},
	})
	a, err := New(core.RoleResearcher, provider, "test-model", tool.NewRegistry(caps), caps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := a.Run(context.Background(), Input{Task: newTask(core.RoleResearcher)})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(res.Output, "Sources:") || !strings.Contains(res.Output, "https://example.com/notes") {
		t.Errorf("Output = %q, want cited sources", res.Output)
	}

	// Researchers hold SEARCH_ACCESS, so the request asks for grounding.
	reqs := provider.Requests()
	if !reqs[0].EnableGrounding {
		t.Error("EnableGrounding = false, want true for researcher")
	}
}

func TestRunPropagatesProviderError(t *testing.T) {
	caps := newCaps()
	boom := errors.New(errors.CodeLLMError, "model exploded", nil)
	provider := llm.NewScripted(llm.ScriptedResponse{Err: boom})
	a, err := New(core.RolePlanner, provider, "test-model", tool.NewRegistry(caps), caps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := a.Run(context.Background(), Input{Task: newTask(core.RolePlanner)}); !errors.HasCode(err, errors.CodeLLMError) {
		t.Errorf("Run() error = %v, want CodeLLMError", err)
	}
}

func TestSystemFrameIncludesMemoryAndParent(t *testing.T) {
	caps := newCaps()
	provider := llm.NewScripted(llm.ScriptedResponse{Content: "ok"})
	a, err := New(core.RoleCoder, provider, "test-model", tool.NewRegistry(caps), caps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = a.Run(context.Background(), Input{
		Task:          newTask(core.RoleCoder),
		MemoryContext: []string{"build uses make ci"},
		ParentResult:  "plan approved",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	system := provider.Requests()[0].Messages[0]
	if system.Role != llm.RoleSystem {
		t.Fatalf("first message role = %q, want system", system.Role)
	}
	if !strings.Contains(system.Content, "build uses make ci") {
		t.Error("memory context missing from system frame")
	}
	if !strings.Contains(system.Content, "plan approved") {
		t.Error("parent result missing from system frame")
	}
}
