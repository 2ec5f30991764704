package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/axonrt/axon/pkg/core"
)

func TestConfigureSlogStampsContextIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "info", "json")

	ctx := core.WithRunID(context.Background(), "run-abc123")
	ctx = core.WithTaskID(ctx, "task-42")
	logger.InfoContext(ctx, "agent.started")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("unmarshal log line: %v (line: %s)", err, buf.String())
	}
	if record["run_id"] != "run-abc123" {
		t.Errorf("run_id = %v, want run-abc123", record["run_id"])
	}
	if record["task_id"] != "task-42" {
		t.Errorf("task_id = %v, want task-42", record["task_id"])
	}
}

func TestConfigureSlogPlainContext(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "info", "json")

	logger.InfoContext(context.Background(), "kernel.started")

	line := buf.String()
	if strings.Contains(line, "run_id") || strings.Contains(line, "task_id") {
		t.Errorf("bare context must add no ids, got: %s", line)
	}
}

func TestConfigureSlogLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "warn", "text")

	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info record logged despite warn level")
	}
	if !strings.Contains(out, "kept") {
		t.Error("warn record missing")
	}
}
