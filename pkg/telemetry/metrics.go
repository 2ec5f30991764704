// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// KernelMetrics tracks scheduler throughput for production monitoring.
type KernelMetrics struct {
	tasksCompleted metric.Int64Counter
	tasksFailed    metric.Int64Counter
	tasksRejected  metric.Int64Counter
	runningGauge   metric.Int64Gauge
}

// NewKernelMetrics creates the scheduler instrument set.
func NewKernelMetrics() (*KernelMetrics, error) {
	meter := otel.Meter("axon/kernel")

	completed, err := meter.Int64Counter(
		"axon.tasks.completed",
		metric.WithDescription("Tasks completed successfully, by role"),
	)
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter(
		"axon.tasks.failed",
		metric.WithDescription("Tasks that terminated in FAILED, by role"),
	)
	if err != nil {
		return nil, err
	}
	rejected, err := meter.Int64Counter(
		"axon.tasks.rejected",
		metric.WithDescription("Tasks rejected by the pre-flight safety scan"),
	)
	if err != nil {
		return nil, err
	}
	running, err := meter.Int64Gauge(
		"axon.tasks.running",
		metric.WithDescription("Tasks currently holding a concurrency slot"),
	)
	if err != nil {
		return nil, err
	}

	return &KernelMetrics{
		tasksCompleted: completed,
		tasksFailed:    failed,
		tasksRejected:  rejected,
		runningGauge:   running,
	}, nil
}

// RecordCompleted increments the completion counter for a role.
func (m *KernelMetrics) RecordCompleted(ctx context.Context, role string) {
	if m == nil {
		return
	}
	m.tasksCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrTaskRole, role)))
}

// RecordFailed increments the failure counter for a role.
func (m *KernelMetrics) RecordFailed(ctx context.Context, role string) {
	if m == nil {
		return
	}
	m.tasksFailed.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrTaskRole, role)))
}

// RecordRejected increments the safety-rejection counter.
func (m *KernelMetrics) RecordRejected(ctx context.Context) {
	if m == nil {
		return
	}
	m.tasksRejected.Add(ctx, 1)
}

// RecordRunning records the current running-set size.
func (m *KernelMetrics) RecordRunning(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.runningGauge.Record(ctx, int64(n))
}
