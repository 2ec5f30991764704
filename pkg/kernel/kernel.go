// Copyright 2026 © The Axon Authors
// SPDX-License-Identifier: Apache-2.0

// Package kernel is the scheduler at the center of the runtime. It owns
// every task, admits queued work up to the concurrency limit on a fixed
// tick, runs each admitted task through the agent loop in its own
// goroutine, and mirrors state changes to the durable store and the
// change bus.
package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/axonrt/axon/pkg/agent"
	"github.com/axonrt/axon/pkg/capability"
	"github.com/axonrt/axon/pkg/config"
	"github.com/axonrt/axon/pkg/core"
	"github.com/axonrt/axon/pkg/errors"
	"github.com/axonrt/axon/pkg/guard"
	"github.com/axonrt/axon/pkg/llm"
	"github.com/axonrt/axon/pkg/memory"
	"github.com/axonrt/axon/pkg/store"
	"github.com/axonrt/axon/pkg/telemetry"
	"github.com/axonrt/axon/pkg/tool"
)

// memoryContextLimit caps how many retrieved memories are framed into a
// task's system prompt.
const memoryContextLimit = 5

// Deps are the kernel's collaborators. All fields except Metrics are
// required.
type Deps struct {
	Provider llm.Provider
	Memory   *memory.Store
	Tools    *tool.Registry
	Caps     *capability.Registry
	Guard    *guard.Scanner
	Store    store.Store
	Bus      *core.Bus
}

// Option configures optional kernel collaborators.
type Option func(*Kernel)

// WithMetrics attaches scheduler metrics.
func WithMetrics(m *telemetry.KernelMetrics) Option {
	return func(k *Kernel) { k.metrics = m }
}

// WithTracer overrides the default tracer.
func WithTracer(t trace.Tracer) Option {
	return func(k *Kernel) { k.tracer = t }
}

// Kernel schedules and executes tasks.
type Kernel struct {
	cfg     config.SchedulerConfig
	deps    Deps
	agents  map[core.Role]*agent.Agent
	metrics *telemetry.KernelMetrics
	tracer  trace.Tracer

	mu        sync.Mutex
	tasks     map[string]*core.Task
	order     []string // insertion order of task IDs
	seq       map[string]int
	running   map[string]struct{}
	statuses  map[core.Role]*core.AgentStatus
	logs      []*core.LogEntry // bounded ring, oldest first
	startedAt time.Time
	queued    int // refreshed on every tick

	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

// New builds a kernel from configuration and collaborators. One agent is
// constructed per role, sharing the provider and tool table.
func New(cfg *config.Config, deps Deps, opts ...Option) (*Kernel, error) {
	if cfg == nil {
		return nil, errors.New(errors.CodeInvalidInput, "kernel config is required", nil)
	}
	if deps.Provider == nil || deps.Memory == nil || deps.Tools == nil ||
		deps.Caps == nil || deps.Guard == nil || deps.Store == nil || deps.Bus == nil {
		return nil, errors.New(errors.CodeInvalidInput, "kernel deps are incomplete", nil)
	}

	k := &Kernel{
		cfg:      cfg.Scheduler,
		deps:     deps,
		agents:   make(map[core.Role]*agent.Agent, len(core.Roles())),
		tasks:    make(map[string]*core.Task),
		seq:      make(map[string]int),
		running:  make(map[string]struct{}),
		statuses: make(map[core.Role]*core.AgentStatus, len(core.Roles())),
	}
	for _, opt := range opts {
		opt(k)
	}
	if k.tracer == nil {
		k.tracer = otel.Tracer("axon/kernel")
	}

	for _, role := range core.Roles() {
		a, err := agent.New(role, deps.Provider, cfg.LLM.Model, deps.Tools, deps.Caps,
			agent.WithMaxTurns(cfg.Scheduler.MaxTurns))
		if err != nil {
			return nil, err
		}
		k.agents[role] = a
		k.statuses[role] = core.NewAgentStatus(role)
	}
	return k, nil
}

// Load hydrates tasks from the durable store. Tasks stranded IN_PROGRESS
// by a crash are re-queued.
func (k *Kernel) Load(ctx context.Context) error {
	tasks, err := k.deps.Store.ListTasks(ctx)
	if err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, t := range tasks {
		if t.Status == core.TaskStatusInProgress {
			t.Status = core.TaskStatusQueued
		}
		k.insertLocked(t)
	}
	return nil
}

// Start launches the scheduler loop.
func (k *Kernel) Start(ctx context.Context) error {
	k.mu.Lock()
	if k.started {
		k.mu.Unlock()
		return errors.New(errors.CodeInternal, "kernel already started", nil)
	}
	k.started = true
	k.startedAt = time.Now().UTC()
	k.stopCh = make(chan struct{})
	k.mu.Unlock()

	tick := time.Duration(k.cfg.TickMillis) * time.Millisecond
	if tick <= 0 {
		tick = 500 * time.Millisecond
	}
	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-k.stopCh:
				return
			case <-ticker.C:
				k.Tick(ctx)
			}
		}
	}()

	slog.InfoContext(ctx, "kernel.started",
		slog.Int("concurrency", k.cfg.Concurrency),
		slog.Duration("tick", tick),
	)
	return nil
}

// Stop halts the scheduler and waits for in-flight tasks to finish or
// the context to expire.
func (k *Kernel) Stop(ctx context.Context) error {
	k.mu.Lock()
	if !k.started {
		k.mu.Unlock()
		return nil
	}
	k.started = false
	close(k.stopCh)
	k.mu.Unlock()

	done := make(chan struct{})
	go func() {
		k.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.InfoContext(ctx, "kernel.stopped")
		return nil
	case <-ctx.Done():
		return errors.New(errors.CodeTimeout, "kernel stop timed out with tasks in flight", ctx.Err())
	}
}

// Dispatch creates and submits a new task.
func (k *Kernel) Dispatch(ctx context.Context, title, description string, role core.Role) (*core.Task, error) {
	if !role.Valid() {
		return nil, errors.New(errors.CodeInvalidInput, fmt.Sprintf("unknown role %q", role), nil)
	}
	task := core.NewTask(title, description, role)
	if err := k.Submit(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Submit accepts a task into the queue, filling defaults for drafts. It
// implements the submitter contract used by the delegate_task tool.
func (k *Kernel) Submit(ctx context.Context, task *core.Task) error {
	if task == nil {
		return errors.New(errors.CodeInvalidInput, "task is required", nil)
	}
	if !task.Role.Valid() {
		return errors.New(errors.CodeInvalidInput, fmt.Sprintf("unknown role %q", task.Role), nil)
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = core.TaskStatusQueued
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	k.mu.Lock()
	if _, exists := k.tasks[task.ID]; exists {
		k.mu.Unlock()
		return errors.New(errors.CodeInvalidInput, fmt.Sprintf("task %s already exists", task.ID), nil)
	}
	k.insertLocked(task)
	k.mu.Unlock()

	if err := k.deps.Store.PutTask(ctx, task); err != nil {
		return err
	}
	k.deps.Bus.Notify()
	slog.InfoContext(ctx, "kernel.task.submitted",
		slog.String("task_id", task.ID),
		slog.String("role", string(task.Role)),
		slog.String("priority", task.Priority.String()),
	)
	return nil
}

func (k *Kernel) insertLocked(task *core.Task) {
	k.tasks[task.ID] = task
	k.seq[task.ID] = len(k.order)
	k.order = append(k.order, task.ID)
}

// Tick runs one admission pass: ready queued tasks start, in priority
// order, until the concurrency limit is reached. Tasks whose dependency
// failed are failed without running.
func (k *Kernel) Tick(ctx context.Context) {
	k.mu.Lock()

	var failed []*core.Task
	var candidates []*core.Task
	queued := 0
	for _, id := range k.order {
		t := k.tasks[id]
		if t.Status != core.TaskStatusQueued && t.Status != core.TaskStatusPending {
			continue
		}
		queued++
		switch k.readinessLocked(t) {
		case depsFailed:
			t.Status = core.TaskStatusFailed
			failed = append(failed, t)
		case depsReady:
			candidates = append(candidates, t)
		case depsWaiting:
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return k.seq[candidates[i].ID] < k.seq[candidates[j].ID]
	})

	free := k.cfg.Concurrency - len(k.running)
	var admitted []*core.Task
	for _, t := range candidates {
		if free <= 0 {
			break
		}
		t.Status = core.TaskStatusInProgress
		k.running[t.ID] = struct{}{}
		admitted = append(admitted, t)
		free--
	}
	k.queued = queued - len(failed) - len(admitted)
	runningNow := len(k.running)
	k.mu.Unlock()

	for _, t := range failed {
		k.persistTask(ctx, t)
		k.metrics.RecordFailed(ctx, string(t.Role))
		k.appendLog(ctx, core.NewLogEntry(t.Role, core.SeverityError,
			fmt.Sprintf("task %s failed: dependency failed", t.ID)))
	}
	if len(failed) > 0 || len(admitted) > 0 {
		k.deps.Bus.Notify()
	}
	k.metrics.RecordRunning(ctx, runningNow)

	for _, t := range admitted {
		k.persistTask(ctx, t)
		k.wg.Add(1)
		go k.runProcess(ctx, t)
	}
}

type readiness int

const (
	depsReady readiness = iota
	depsWaiting
	depsFailed
)

func (k *Kernel) readinessLocked(t *core.Task) readiness {
	for _, depID := range t.Dependencies {
		dep, ok := k.tasks[depID]
		if !ok {
			// Unknown dependency never completes.
			return depsWaiting
		}
		switch dep.Status {
		case core.TaskStatusFailed:
			return depsFailed
		case core.TaskStatusCompleted:
		default:
			return depsWaiting
		}
	}
	return depsReady
}

// runProcess drives one admitted task to a terminal state.
func (k *Kernel) runProcess(ctx context.Context, task *core.Task) {
	defer k.wg.Done()
	defer func() {
		k.mu.Lock()
		delete(k.running, task.ID)
		running := len(k.running)
		k.mu.Unlock()
		k.metrics.RecordRunning(ctx, running)
	}()

	ctx, span := k.tracer.Start(ctx, "Kernel.RunProcess",
		trace.WithAttributes(telemetry.TaskAttrs(task.ID, string(task.Role), task.Priority.String())...))
	defer span.End()

	k.setAgentState(ctx, task.Role, core.AgentExecuting, task.ID)

	directive := task.Title + "\n" + task.Description
	if verdict := k.deps.Guard.Scan(ctx, directive); !verdict.Safe {
		k.metrics.RecordRejected(ctx)
		k.finishTask(ctx, task, core.TaskStatusFailed, "")
		k.appendLog(ctx, core.NewLogEntry(task.Role, core.SeverityWarning,
			fmt.Sprintf("task %s rejected by safety rule %s: %s", task.ID, verdict.RuleID, verdict.Reason)))
		k.setAgentState(ctx, task.Role, core.AgentIdle, "")
		return
	}

	input := agent.Input{
		Task: task,
		StateFn: func(state core.AgentState) {
			k.setAgentState(ctx, task.Role, state, task.ID)
		},
	}
	if entries, err := k.deps.Memory.Search(ctx, task.Title+" "+task.Description); err == nil {
		for _, e := range entries {
			input.MemoryContext = append(input.MemoryContext, e.Content)
			if len(input.MemoryContext) >= memoryContextLimit {
				break
			}
		}
	}
	if task.ParentID != "" {
		if parent, err := k.deps.Store.GetTask(ctx, task.ParentID); err == nil {
			input.ParentResult = parent.Result
		}
	}

	res, err := k.agents[task.Role].Run(ctx, input)
	if err != nil {
		k.metrics.RecordFailed(ctx, string(task.Role))
		k.finishTask(ctx, task, core.TaskStatusFailed, "")
		k.appendLog(ctx, core.NewLogEntry(task.Role, core.SeverityError,
			fmt.Sprintf("task %s failed: %v", task.ID, err)))
		k.setAgentState(ctx, task.Role, core.AgentIdle, "")
		return
	}

	k.metrics.RecordCompleted(ctx, string(task.Role))
	k.finishTask(ctx, task, core.TaskStatusCompleted, res.Output)
	k.appendLog(ctx, core.NewLogEntry(task.Role, core.SeverityInfo,
		fmt.Sprintf("task %s completed in %d turns", task.ID, res.Turns)))
	k.recordEpisode(ctx, task, res.Output)
	k.setAgentState(ctx, task.Role, core.AgentIdle, "")
}

// finishTask moves a task to a terminal state. FAILED tasks never carry
// result text; the reason lives in the log stream.
func (k *Kernel) finishTask(ctx context.Context, task *core.Task, status core.TaskStatus, result string) {
	k.mu.Lock()
	task.Status = status
	task.Result = result
	if status == core.TaskStatusCompleted {
		task.Progress = 100
	} else {
		task.Progress = 0
	}
	k.mu.Unlock()
	k.persistTask(ctx, task)
	k.deps.Bus.Notify()
}

func (k *Kernel) persistTask(ctx context.Context, task *core.Task) {
	if err := k.deps.Store.PutTask(ctx, task); err != nil {
		slog.ErrorContext(ctx, "kernel.task.persist_failed",
			slog.String("task_id", task.ID),
			slog.String("error", err.Error()),
		)
	}
}

// recordEpisode saves a summary of a completed task as episodic memory
// so later tasks can retrieve it.
func (k *Kernel) recordEpisode(ctx context.Context, task *core.Task, output string) {
	summary := output
	if len(summary) > 500 {
		summary = summary[:500]
	}
	content := fmt.Sprintf("Task %q (%s): %s", task.Title, task.Role, strings.TrimSpace(summary))
	if _, err := k.deps.Memory.Add(ctx, content, core.MemoryEpisodic, task.Role, []string{"task:" + task.ID}); err != nil {
		slog.WarnContext(ctx, "kernel.episode.save_failed",
			slog.String("task_id", task.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (k *Kernel) setAgentState(ctx context.Context, role core.Role, state core.AgentState, taskID string) {
	k.mu.Lock()
	status := k.statuses[role]
	status.State = state
	status.CurrentTask = taskID
	status.LastActivity = time.Now().UTC()
	snapshot := *status
	k.mu.Unlock()

	if err := k.deps.Store.PutAgentStatus(ctx, &snapshot); err != nil {
		slog.ErrorContext(ctx, "kernel.status.persist_failed",
			slog.String("role", string(role)),
			slog.String("error", err.Error()),
		)
	}
	k.deps.Bus.Notify()
}

// Log appends to the bounded in-memory ring and mirrors the entry,
// uncapped, to the durable store. It implements the sink contract used
// by the system_log tool.
func (k *Kernel) Log(ctx context.Context, entry *core.LogEntry) {
	k.appendLog(ctx, entry)
}

func (k *Kernel) appendLog(ctx context.Context, entry *core.LogEntry) {
	k.mu.Lock()
	k.logs = append(k.logs, entry)
	if limit := k.cfg.LogRingLimit; limit > 0 && len(k.logs) > limit {
		k.logs = k.logs[len(k.logs)-limit:]
	}
	k.mu.Unlock()

	if err := k.deps.Store.AppendLog(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "kernel.log.persist_failed",
			slog.String("error", err.Error()),
		)
	}
	k.deps.Bus.Notify()
}

// Task returns a copy of one task.
func (k *Kernel) Task(id string) (*core.Task, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	t, ok := k.tasks[id]
	if !ok {
		return nil, false
	}
	copied := *t
	return &copied, true
}

// Tasks returns copies of all tasks in insertion order.
func (k *Kernel) Tasks() []*core.Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]*core.Task, 0, len(k.order))
	for _, id := range k.order {
		copied := *k.tasks[id]
		out = append(out, &copied)
	}
	return out
}

// Statuses returns copies of every role's status slot in stable role
// order.
func (k *Kernel) Statuses() []*core.AgentStatus {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]*core.AgentStatus, 0, len(k.statuses))
	for _, role := range core.Roles() {
		copied := *k.statuses[role]
		out = append(out, &copied)
	}
	return out
}

// Logs returns the ring contents, newest first.
func (k *Kernel) Logs() []*core.LogEntry {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]*core.LogEntry, 0, len(k.logs))
	for i := len(k.logs) - 1; i >= 0; i-- {
		copied := *k.logs[i]
		out = append(out, &copied)
	}
	return out
}

// RunningCount reports how many tasks currently hold a concurrency slot.
func (k *Kernel) RunningCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.running)
}

// State is a point-in-time snapshot of scheduler health.
type State struct {
	StartedAt time.Time
	Uptime    time.Duration
	Active    int // tasks holding a concurrency slot
	Queued    int // admissible or waiting, as of the last tick
	Total     int
}

// State reports the scheduler snapshot. Uptime and the active count are
// live; the queued count is refreshed by the tick loop.
func (k *Kernel) State() State {
	k.mu.Lock()
	defer k.mu.Unlock()
	s := State{
		StartedAt: k.startedAt,
		Active:    len(k.running),
		Queued:    k.queued,
		Total:     len(k.tasks),
	}
	if !k.startedAt.IsZero() {
		s.Uptime = time.Since(k.startedAt)
	}
	return s
}

var (
	_ tool.TaskSubmitter = (*Kernel)(nil)
	_ tool.LogSink       = (*Kernel)(nil)
)
