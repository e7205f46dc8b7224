package health

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentdock/agentdock/pkg/engine"
)

// GenerateAlerts derives alerts from one health check result. It is a
// pure function of the result: a fully healthy snapshot yields an empty
// list, never a synthetic "ok" alert.
func GenerateAlerts(result *CheckResult) []Alert {
	var alerts []Alert

	add := func(alertType AlertType, severity Severity, message string) {
		alerts = append(alerts, Alert{
			ID:           uuid.New().String(),
			DeploymentID: result.DeploymentID,
			ClientID:     result.ClientID,
			AgentID:      result.AgentID,
			Severity:     severity,
			Type:         alertType,
			Message:      message,
			Timestamp:    time.Now(),
		})
	}

	if strings.Contains(strings.ToLower(result.Error), "unreachable") {
		add(AlertConnectionLost, SeverityCritical,
			"Lost connection to the automation backend: "+result.Error)
	}

	if result.Details != nil {
		d := result.Details

		if !d.WorkflowActive {
			add(AlertWorkflowInactive, SeverityWarning,
				fmt.Sprintf("Workflow %s is inactive", result.WorkflowID))
		}

		if d.SuccessRate < HealthySuccessRate {
			severity := SeverityError
			if d.SuccessRate < CriticalFailureRate {
				severity = SeverityCritical
			}
			add(AlertHighFailureRate, severity,
				fmt.Sprintf("Success rate %d%% over the last %d executions", d.SuccessRate, d.RecentExecutions))
		}

		if d.AvgExecutionTimeMs > SlowExecutionMs {
			add(AlertSlowExecution, SeverityWarning,
				fmt.Sprintf("Average execution time %dms exceeds %dms", d.AvgExecutionTimeMs, int64(SlowExecutionMs)))
		}
	}

	if engine.IsErrorStatus(result.LastExecutionStatus) {
		add(AlertExecutionFailed, SeverityError,
			fmt.Sprintf("Most recent execution finished with status %q", result.LastExecutionStatus))
	}

	return alerts
}
