// Copyright 2026 © The Axon Authors
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/axonrt/axon/pkg/core"
	axonerrors "github.com/axonrt/axon/pkg/errors"
	"github.com/axonrt/axon/pkg/llm"
	"github.com/axonrt/axon/pkg/memory"
)

// TaskSubmitter accepts tasks delegated from within a run. The kernel
// implements it.
type TaskSubmitter interface {
	Submit(ctx context.Context, task *core.Task) error
}

// LogSink receives system log entries emitted through the system_log
// tool. The kernel implements it.
type LogSink interface {
	Log(ctx context.Context, entry *core.LogEntry)
}

const (
	httpFetchTimeout   = 15 * time.Second
	httpFetchBodyLimit = 64 * 1024
	executeTimeout     = 30 * time.Second
	executeOutputLimit = 16 * 1024
)

// Builtins wires the built-in tool set.
type Builtins struct {
	Memory    *memory.Store
	Submitter TaskSubmitter
	Sink      LogSink
	Provider  llm.Provider
	Model     string
	HTTP      *http.Client
}

// RegisterBuiltins installs the built-in tools into the registry.
func RegisterBuiltins(r *Registry, b Builtins) error {
	if b.HTTP == nil {
		b.HTTP = &http.Client{Timeout: httpFetchTimeout}
	}
	defs := []Definition{
		b.saveMemory(),
		b.searchMemory(),
		b.delegateTask(),
		b.httpFetch(),
		b.webSearch(),
		b.executeCode(),
		b.systemLog(),
	}
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func (b Builtins) saveMemory() Definition {
	return Definition{
		Name:        "save_memory",
		Description: "Persist a durable memory entry for later retrieval. Use for facts, decisions, and results worth remembering across tasks.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"content": map[string]any{"type": "string", "description": "The text to remember."},
				"kind":    map[string]any{"type": "string", "enum": []string{"SEMANTIC", "EPISODIC", "PROCEDURAL"}, "description": "Memory category. Defaults to SEMANTIC."},
				"tags":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Optional labels for keyword retrieval."},
			},
			"required": []string{"content"},
		},
		Required: core.Permissions(core.PermWriteMemory),
		Handler: func(ctx context.Context, args map[string]any, caller core.Role) (string, error) {
			content := strings.TrimSpace(stringArg(args, "content"))
			if content == "" {
				return "", axonerrors.New(axonerrors.CodeInvalidInput, "save_memory: content is required", nil)
			}
			kind := core.MemoryKind(stringArg(args, "kind"))
			switch kind {
			case core.MemorySemantic, core.MemoryEpisodic, core.MemoryProcedural:
			case "":
				kind = core.MemorySemantic
			default:
				return "", axonerrors.New(axonerrors.CodeInvalidInput, fmt.Sprintf("save_memory: unknown kind %q", kind), nil)
			}
			var tags []string
			if raw, ok := args["tags"].([]any); ok {
				for _, t := range raw {
					if s, ok := t.(string); ok && s != "" {
						tags = append(tags, s)
					}
				}
			}
			if taskID, ok := core.TaskID(ctx); ok {
				tags = append(tags, "task:"+taskID)
			}
			entry, err := b.Memory.Add(ctx, content, kind, caller, tags)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Memory saved with id %s.", entry.ID), nil
		},
	}
}

func (b Builtins) searchMemory() Definition {
	return Definition{
		Name:        "search_memory",
		Description: "Search stored memories by meaning. Falls back to keyword matching when no semantic match clears the similarity threshold.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "What to look for."},
			},
			"required": []string{"query"},
		},
		Required: core.Permissions(core.PermReadMemory),
		Handler: func(ctx context.Context, args map[string]any, caller core.Role) (string, error) {
			query := strings.TrimSpace(stringArg(args, "query"))
			if query == "" {
				return "", axonerrors.New(axonerrors.CodeInvalidInput, "search_memory: query is required", nil)
			}
			entries, err := b.Memory.Search(ctx, query)
			if err != nil {
				return "", err
			}
			if len(entries) == 0 {
				return "No matching memories found.", nil
			}
			var sb strings.Builder
			fmt.Fprintf(&sb, "Found %d memories:\n", len(entries))
			for i, e := range entries {
				fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, e.Kind, e.Content)
			}
			return strings.TrimRight(sb.String(), "\n"), nil
		},
	}
}

func (b Builtins) delegateTask() Definition {
	return Definition{
		Name:        "delegate_task",
		Description: "Create a sub-task for another agent role. The sub-task is queued at high priority and linked to the current task.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title":       map[string]any{"type": "string", "description": "Short summary of the sub-task."},
				"description": map[string]any{"type": "string", "description": "Full instructions for the delegate."},
				"role":        map[string]any{"type": "string", "enum": []string{"planner", "coder", "researcher", "auditor", "operator"}, "description": "Which agent role should handle it."},
			},
			"required": []string{"title", "description", "role"},
		},
		Required: core.Permissions(core.PermSystemControl),
		Handler: func(ctx context.Context, args map[string]any, caller core.Role) (string, error) {
			title := strings.TrimSpace(stringArg(args, "title"))
			desc := strings.TrimSpace(stringArg(args, "description"))
			role := core.Role(stringArg(args, "role"))
			if title == "" || desc == "" {
				return "", axonerrors.New(axonerrors.CodeInvalidInput, "delegate_task: title and description are required", nil)
			}
			if !role.Valid() {
				return "", axonerrors.New(axonerrors.CodeInvalidInput, fmt.Sprintf("delegate_task: unknown role %q", role), nil)
			}
			task := core.NewTask(title, desc, role)
			task.Priority = core.PriorityHigh
			if parentID, ok := core.TaskID(ctx); ok {
				task.ParentID = parentID
			}
			if err := b.Submitter.Submit(ctx, task); err != nil {
				return "", err
			}
			return fmt.Sprintf("Delegated task %s to %s.", task.ID, role.DisplayName()), nil
		},
	}
}

func (b Builtins) httpFetch() Definition {
	return Definition{
		Name:        "http_fetch",
		Description: "Fetch the body of an HTTP or HTTPS URL. Responses are truncated to a bounded size.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{"type": "string", "description": "Absolute http(s) URL to fetch."},
			},
			"required": []string{"url"},
		},
		Required: core.Permissions(core.PermNetworkAccess),
		Handler: func(ctx context.Context, args map[string]any, caller core.Role) (string, error) {
			url := strings.TrimSpace(stringArg(args, "url"))
			if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
				return "", axonerrors.New(axonerrors.CodeInvalidInput, "http_fetch: url must be http or https", nil)
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return "", axonerrors.New(axonerrors.CodeInvalidInput, "http_fetch: bad request", err)
			}
			resp, err := b.HTTP.Do(req)
			if err != nil {
				return "", axonerrors.New(axonerrors.CodeToolFailure, "http_fetch: request failed", err)
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(io.LimitReader(resp.Body, httpFetchBodyLimit))
			if err != nil {
				return "", axonerrors.New(axonerrors.CodeToolFailure, "http_fetch: read failed", err)
			}
			if resp.StatusCode >= 400 {
				return "", axonerrors.New(axonerrors.CodeToolFailure, fmt.Sprintf("http_fetch: %s returned %s", url, resp.Status), nil)
			}
			return string(body), nil
		},
	}
}

func (b Builtins) webSearch() Definition {
	return Definition{
		Name:        "web_search",
		Description: "Search the web for current information and return a sourced summary.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "The search query."},
			},
			"required": []string{"query"},
		},
		Required: core.Permissions(core.PermSearchAccess),
		Handler: func(ctx context.Context, args map[string]any, caller core.Role) (string, error) {
			query := strings.TrimSpace(stringArg(args, "query"))
			if query == "" {
				return "", axonerrors.New(axonerrors.CodeInvalidInput, "web_search: query is required", nil)
			}
			res, err := b.Provider.Generate(ctx, llm.GenerateRequest{
				Model: b.Model,
				Messages: []llm.Message{
					{Role: llm.RoleSystem, Content: "Answer using live web results. Be concise and cite sources."},
					{Role: llm.RoleUser, Content: query},
				},
				EnableGrounding: true,
			})
			if err != nil {
				return "", err
			}
			out := strings.TrimSpace(res.Content)
			if len(res.Citations) > 0 {
				var sb strings.Builder
				sb.WriteString(out)
				sb.WriteString("\n\nSources:\n")
				for _, c := range res.Citations {
					fmt.Fprintf(&sb, "- %s (%s)\n", c.Title, c.URL)
				}
				out = strings.TrimRight(sb.String(), "\n")
			}
			if out == "" {
				return "No results.", nil
			}
			return out, nil
		},
	}
}

func (b Builtins) executeCode() Definition {
	return Definition{
		Name:        "execute_code",
		Description: "Run a short shell command in an isolated working directory and return its combined output. The command runs in a separate process with a hard timeout.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{"type": "string", "description": "Shell command to execute."},
			},
			"required": []string{"command"},
		},
		Required: core.Permissions(core.PermExecuteCode, core.PermSystemControl),
		Handler: func(ctx context.Context, args map[string]any, caller core.Role) (string, error) {
			command := strings.TrimSpace(stringArg(args, "command"))
			if command == "" {
				return "", axonerrors.New(axonerrors.CodeInvalidInput, "execute_code: command is required", nil)
			}
			workdir, err := os.MkdirTemp("", "axon-exec-*")
			if err != nil {
				return "", axonerrors.New(axonerrors.CodeToolFailure, "execute_code: workdir", err)
			}
			defer os.RemoveAll(workdir)

			runCtx, cancel := context.WithTimeout(ctx, executeTimeout)
			defer cancel()
			cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
			cmd.Dir = workdir
			// The daemon's environment stays out of reach of agent code.
			cmd.Env = []string{"PATH=/usr/local/bin:/usr/bin:/bin", "HOME=" + workdir}
			out, err := cmd.CombinedOutput()
			if len(out) > executeOutputLimit {
				out = out[:executeOutputLimit]
			}
			if runCtx.Err() == context.DeadlineExceeded {
				return "", axonerrors.New(axonerrors.CodeTimeout, fmt.Sprintf("execute_code: command exceeded %s", executeTimeout), nil)
			}
			if err != nil {
				return "", axonerrors.New(axonerrors.CodeToolFailure, fmt.Sprintf("execute_code: %v\n%s", err, strings.TrimSpace(string(out))), nil)
			}
			result := strings.TrimSpace(string(out))
			if result == "" {
				result = fmt.Sprintf("Command completed with no output (cwd %s).", filepath.Base(workdir))
			}
			return result, nil
		},
	}
}

func (b Builtins) systemLog() Definition {
	return Definition{
		Name:        "system_log",
		Description: "Record an operator-visible entry in the system log.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message":  map[string]any{"type": "string", "description": "The log message."},
				"severity": map[string]any{"type": "string", "enum": []string{"INFO", "WARNING", "ERROR", "CRITICAL"}, "description": "Defaults to INFO."},
			},
			"required": []string{"message"},
		},
		Required: core.Permissions(core.PermSystemControl),
		Handler: func(ctx context.Context, args map[string]any, caller core.Role) (string, error) {
			message := strings.TrimSpace(stringArg(args, "message"))
			if message == "" {
				return "", axonerrors.New(axonerrors.CodeInvalidInput, "system_log: message is required", nil)
			}
			severity := core.Severity(stringArg(args, "severity"))
			switch severity {
			case core.SeverityInfo, core.SeverityWarning, core.SeverityError, core.SeverityCritical:
			case "":
				severity = core.SeverityInfo
			default:
				return "", axonerrors.New(axonerrors.CodeInvalidInput, fmt.Sprintf("system_log: unknown severity %q", severity), nil)
			}
			b.Sink.Log(ctx, core.NewLogEntry(caller, severity, message))
			return "Logged.", nil
		},
	}
}
