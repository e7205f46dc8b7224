package engine

import (
	"context"
	"time"
)

// ConnectionStatus is the outcome of a connectivity probe against the
// remote backend.
type ConnectionStatus struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// CredentialRequest is the payload for creating a remote credential.
type CredentialRequest struct {
	Name string                 `json:"name"`
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// Credential is a backend-issued credential record.
type Credential struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Workflow is the backend's view of a workflow resource.
type Workflow struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Active bool   `json:"active"`
}

// Execution is one workflow execution record.
type Execution struct {
	ID        string     `json:"id"`
	Status    string     `json:"status"`
	StartedAt time.Time  `json:"startedAt"`
	StoppedAt *time.Time `json:"stoppedAt,omitempty"`
}

// Execution statuses reported by the remote backend.
const (
	ExecutionStatusSuccess = "success"
	ExecutionStatusError   = "error"
	ExecutionStatusCrashed = "crashed"
	ExecutionStatusRunning = "running"
	ExecutionStatusWaiting = "waiting"
)

// IsErrorStatus reports whether an execution status counts as a failure.
func IsErrorStatus(status string) bool {
	return status == ExecutionStatusError || status == ExecutionStatusCrashed || status == "failed"
}

// ProbeResult is the outcome of the backend liveness probe.
type ProbeResult struct {
	Healthy   bool   `json:"healthy"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RemoteClient is the engine's contract with the remote
// workflow-automation backend. Implementations own transport concerns
// (timeouts, TLS, serialization); the engine owns retry and rollback.
// Errors returned should be classified EngineErrors so retry
// classification works; unclassified errors are treated as permanent.
type RemoteClient interface {
	// TestConnection verifies reachability and authentication.
	TestConnection(ctx context.Context) (*ConnectionStatus, error)

	// CreateCredential creates a credential and returns its backend ID.
	CreateCredential(ctx context.Context, req CredentialRequest) (*Credential, error)

	// DeleteCredential removes a credential by backend ID.
	DeleteCredential(ctx context.Context, id string) error

	// CreateWorkflow creates a workflow from a document without an ID;
	// the backend assigns a fresh identifier.
	CreateWorkflow(ctx context.Context, doc map[string]interface{}) (*Workflow, error)

	// DeleteWorkflow removes a workflow by backend ID.
	DeleteWorkflow(ctx context.Context, id string) error

	// ActivateWorkflow switches a workflow to active.
	ActivateWorkflow(ctx context.Context, id string) (*Workflow, error)

	// GetWorkflow fetches current workflow state.
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)

	// GetExecutions returns the most recent execution records, newest first.
	GetExecutions(ctx context.Context, workflowID string, limit int) ([]Execution, error)

	// HealthCheck probes backend liveness without authentication side effects.
	HealthCheck(ctx context.Context) (*ProbeResult, error)
}

// Observer receives engine lifecycle signals for metrics collection.
// Implemented by pkg/telemetry; a nil Observer disables observation.
type Observer interface {
	DeploymentStarted()
	DeploymentCompleted(status string, duration time.Duration)
	StageCompleted(stage Stage, duration time.Duration)
	RetryAttempted(operation string, class ErrorClass)
	RollbackResource(kind string, success bool)
}

// AdmissionChecker gates a deployment config before any remote call.
// Implemented by pkg/policy; a nil checker admits everything.
type AdmissionChecker interface {
	CheckDeployment(ctx context.Context, cfg *DeploymentConfig) error
}
