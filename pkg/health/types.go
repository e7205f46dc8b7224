package health

import "time"

// Policy constants for the health verdict. Fixed product thresholds, kept
// as named constants rather than configuration.
const (
	// HealthySuccessRate is the minimum success rate (percent) for a
	// healthy verdict.
	HealthySuccessRate = 80

	// CriticalFailureRate is the success rate (percent) below which a
	// failure-rate alert escalates to critical.
	CriticalFailureRate = 50

	// ExecutionWindow is how many recent executions the verdict considers.
	ExecutionWindow = 20

	// SlowExecutionMs is the average execution time above which a
	// slow-execution alert fires.
	SlowExecutionMs = 30000
)

// MonitorConfig identifies the deployment a health check targets.
type MonitorConfig struct {
	DeploymentID string `json:"deployment_id"`
	ClientID     string `json:"client_id"`
	AgentID      string `json:"agent_id"`
	WorkflowID   string `json:"workflow_id"`
}

// Details are the computed metrics behind a verdict.
type Details struct {
	// WorkflowActive is the backend's active flag for the workflow.
	WorkflowActive bool `json:"workflow_active"`

	// RecentExecutions is how many executions fell inside the window.
	RecentExecutions int `json:"recent_executions"`

	// SuccessRate is 0-100. An empty execution window reports 100:
	// absence of failure, not evidence of failure.
	SuccessRate int `json:"success_rate"`

	// AvgExecutionTimeMs averages executions reporting both start and
	// stop timestamps; zero when none qualify.
	AvgExecutionTimeMs int64 `json:"avg_execution_time_ms"`
}

// CheckResult is one point-in-time health snapshot. No history is kept in
// the monitor; the caller owns trend storage.
type CheckResult struct {
	DeploymentID  string     `json:"deployment_id"`
	ClientID      string     `json:"client_id,omitempty"`
	AgentID       string     `json:"agent_id,omitempty"`
	WorkflowID    string     `json:"workflow_id"`
	Healthy       bool       `json:"healthy"`
	Timestamp     time.Time  `json:"timestamp"`
	LatencyMs     int64      `json:"latency_ms,omitempty"`
	LastExecution *time.Time `json:"last_execution,omitempty"`

	// LastExecutionStatus is the status of the newest execution in the
	// window, used for execution-failure alerting.
	LastExecutionStatus string `json:"last_execution_status,omitempty"`

	// Error explains an unhealthy verdict caused by telemetry being
	// unavailable; inability to inspect a deployment is itself a signal.
	Error string `json:"error,omitempty"`

	Details *Details `json:"details,omitempty"`
}

// Severity grades an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// AlertType identifies the condition an alert reports.
type AlertType string

const (
	AlertWorkflowInactive AlertType = "workflow_inactive"
	AlertExecutionFailed  AlertType = "execution_failed"
	AlertConnectionLost   AlertType = "connection_lost"
	AlertHighFailureRate  AlertType = "high_failure_rate"
	AlertSlowExecution    AlertType = "slow_execution"
)

// Alert is one actionable condition derived from a health check.
type Alert struct {
	ID           string    `json:"id"`
	DeploymentID string    `json:"deployment_id"`
	ClientID     string    `json:"client_id"`
	AgentID      string    `json:"agent_id"`
	Severity     Severity  `json:"severity"`
	Type         AlertType `json:"type"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
	Acknowledged bool      `json:"acknowledged"`
}
