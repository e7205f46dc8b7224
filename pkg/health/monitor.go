// Package health derives a health verdict and alerts for a deployed
// workflow from remote execution telemetry. Every check is a fresh
// snapshot; the monitor keeps no state between invocations.
package health

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentdock/agentdock/pkg/engine"
)

// Observer receives health check outcomes for metrics collection.
type Observer interface {
	HealthCheckCompleted(healthy bool, duration time.Duration)
}

// Monitor inspects deployed workflows through the remote client.
type Monitor struct {
	client   engine.RemoteClient
	logger   zerolog.Logger
	observer Observer
}

// NewMonitor creates a health monitor over the given remote client.
func NewMonitor(client engine.RemoteClient, logger zerolog.Logger, observer Observer) *Monitor {
	return &Monitor{client: client, logger: logger, observer: observer}
}

// CheckHealth produces a point-in-time health snapshot for one
// deployment. Telemetry fetch failures yield an unhealthy result with an
// explanatory error rather than a Go error: the inability to inspect a
// deployment is itself a legitimate signal about it.
func (m *Monitor) CheckHealth(ctx context.Context, cfg MonitorConfig) *CheckResult {
	started := time.Now()
	result := &CheckResult{
		DeploymentID: cfg.DeploymentID,
		ClientID:     cfg.ClientID,
		AgentID:      cfg.AgentID,
		WorkflowID:   cfg.WorkflowID,
		Timestamp:    started,
	}
	defer func() {
		result.LatencyMs = time.Since(started).Milliseconds()
		if m.observer != nil {
			m.observer.HealthCheckCompleted(result.Healthy, time.Since(started))
		}
	}()

	// An unreachable backend short-circuits the check; issuing further
	// calls would only cascade timeouts.
	probe, err := m.client.HealthCheck(ctx)
	if err != nil || probe == nil || !probe.Healthy {
		result.Healthy = false
		result.Error = "automation backend unreachable"
		if err != nil {
			result.Error += ": " + err.Error()
		} else if probe != nil && probe.Error != "" {
			result.Error += ": " + probe.Error
		}
		m.logger.Warn().Str("deployment_id", cfg.DeploymentID).Str("error", result.Error).
			Msg("Health check aborted, backend unreachable")
		return result
	}

	wf, err := m.client.GetWorkflow(ctx, cfg.WorkflowID)
	if err != nil {
		result.Healthy = false
		result.Error = "failed to fetch workflow state: " + err.Error()
		return result
	}

	executions, err := m.client.GetExecutions(ctx, cfg.WorkflowID, ExecutionWindow)
	if err != nil {
		result.Healthy = false
		result.Error = "failed to fetch executions: " + err.Error()
		return result
	}

	details := &Details{
		WorkflowActive:     wf.Active,
		RecentExecutions:   len(executions),
		SuccessRate:        successRate(executions),
		AvgExecutionTimeMs: avgExecutionTimeMs(executions),
	}
	result.Details = details

	if len(executions) > 0 {
		last := executions[0]
		result.LastExecutionStatus = last.Status
		t := last.StartedAt
		result.LastExecution = &t
	}

	// A workflow with no recent executions is never healthy, even when
	// active: silence from a deployment expected to run is suspicious.
	result.Healthy = details.WorkflowActive &&
		details.SuccessRate >= HealthySuccessRate &&
		details.RecentExecutions > 0

	m.logger.Debug().
		Str("deployment_id", cfg.DeploymentID).
		Bool("healthy", result.Healthy).
		Int("success_rate", details.SuccessRate).
		Int("recent_executions", details.RecentExecutions).
		Msg("Health check completed")

	return result
}

// successRate computes round(100*success/total); an empty window is 100.
func successRate(executions []engine.Execution) int {
	if len(executions) == 0 {
		return 100
	}
	success := 0
	for _, e := range executions {
		if e.Status == engine.ExecutionStatusSuccess {
			success++
		}
	}
	return int(math.Round(100 * float64(success) / float64(len(executions))))
}

// avgExecutionTimeMs averages only executions that report both start and
// stop timestamps, rounded to the nearest millisecond.
func avgExecutionTimeMs(executions []engine.Execution) int64 {
	var total time.Duration
	count := 0
	for _, e := range executions {
		if e.StartedAt.IsZero() || e.StoppedAt == nil {
			continue
		}
		total += e.StoppedAt.Sub(e.StartedAt)
		count++
	}
	if count == 0 {
		return 0
	}
	return int64(math.Round(float64(total.Microseconds()) / float64(count) / 1000.0))
}
