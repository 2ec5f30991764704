// Copyright 2026 © The Axon Authors
// SPDX-License-Identifier: Apache-2.0

// Command axond runs the Axon agent kernel: it wires the configured LLM
// tiers, memory, tools, and durable store into the scheduler and runs
// until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/axonrt/axon/pkg/capability"
	"github.com/axonrt/axon/pkg/config"
	"github.com/axonrt/axon/pkg/core"
	"github.com/axonrt/axon/pkg/guard"
	"github.com/axonrt/axon/pkg/kernel"
	"github.com/axonrt/axon/pkg/llm"
	"github.com/axonrt/axon/pkg/memory"
	"github.com/axonrt/axon/pkg/memory/qdrant"
	"github.com/axonrt/axon/pkg/store"
	"github.com/axonrt/axon/pkg/telemetry"
	"github.com/axonrt/axon/pkg/tool"
)

const (
	serviceName    = "axond"
	serviceVersion = "0.1.0"
)

func main() {
	configPath := flag.String("config", "", "path to axon.yaml")
	taskTitle := flag.String("task", "", "submit a task at startup")
	taskDesc := flag.String("description", "", "description for the startup task")
	taskRole := flag.String("role", string(core.RolePlanner), "role for the startup task")
	flag.Parse()

	if err := run(*configPath, *taskTitle, *taskDesc, *taskRole); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, taskTitle, taskDesc, taskRole string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	shutdown, err := telemetry.InitWithConfig(serviceName, serviceVersion, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Error("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	durable, err := store.OpenSQLite(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store %s: %w", cfg.Store.Path, err)
	}
	defer durable.Close()

	primary := llm.NewOllama(cfg.LLM.BaseURL, cfg.LLM.Model, "")
	var provider llm.Provider = primary
	if cfg.LLM.FallbackModel != "" {
		provider = llm.NewFallback(primary,
			llm.NewOllama(cfg.LLM.BaseURL, cfg.LLM.FallbackModel, ""))
	}

	bus := core.NewBus()
	memOpts := []memory.Option{
		memory.WithMinSimilarity(cfg.Memory.MinSimilarity),
		memory.WithBus(bus),
	}
	if cfg.Memory.Provider == "qdrant" {
		vs, err := qdrant.New(cfg.Memory.QdrantAddr)
		if err != nil {
			return fmt.Errorf("connect qdrant %s: %w", cfg.Memory.QdrantAddr, err)
		}
		memOpts = append(memOpts, memory.WithVectorStore(vs, cfg.Memory.Collection))
	}
	mem := memory.NewStore(provider, durable, memOpts...)
	if err := mem.Load(ctx); err != nil {
		return fmt.Errorf("hydrate memory: %w", err)
	}

	caps := capability.New(capability.DefaultGrants())
	registry := tool.NewRegistry(caps)
	metrics, err := telemetry.NewKernelMetrics()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	k, err := kernel.New(cfg, kernel.Deps{
		Provider: provider,
		Memory:   mem,
		Tools:    registry,
		Caps:     caps,
		Guard:    guard.NewScanner(),
		Store:    durable,
		Bus:      bus,
	}, kernel.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("build kernel: %w", err)
	}

	if err := tool.RegisterBuiltins(registry, tool.Builtins{
		Memory:    mem,
		Submitter: k,
		Sink:      k,
		Provider:  provider,
		Model:     cfg.LLM.Model,
	}); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}

	if err := k.Load(ctx); err != nil {
		return fmt.Errorf("hydrate tasks: %w", err)
	}
	if err := k.Start(ctx); err != nil {
		return fmt.Errorf("start kernel: %w", err)
	}

	if taskTitle != "" {
		task, err := k.Dispatch(ctx, taskTitle, taskDesc, core.Role(taskRole))
		if err != nil {
			return fmt.Errorf("submit startup task: %w", err)
		}
		slog.Info("startup task submitted", slog.String("task_id", task.ID))
	}

	slog.Info("axond running", slog.String("version", serviceVersion))
	<-ctx.Done()

	slog.Info("shutting down")
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return k.Stop(stopCtx)
}
