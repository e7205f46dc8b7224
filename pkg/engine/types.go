package engine

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Stage identifies a phase of the deployment pipeline.
type Stage string

const (
	// StageInitializing verifies reachability and authentication.
	StageInitializing Stage = "initializing"

	// StageCreatingCredentials creates the remote credentials one by one.
	StageCreatingCredentials Stage = "creating_credentials"

	// StageGeneratingWorkflow materializes the workflow document from the template.
	StageGeneratingWorkflow Stage = "generating_workflow"

	// StageDeploying creates the workflow on the remote backend.
	StageDeploying Stage = "deploying"

	// StageActivating activates the created workflow.
	StageActivating Stage = "activating"

	// StageCompleted is the terminal success stage.
	StageCompleted Stage = "completed"

	// StageRollingBack deletes partially created remote resources.
	StageRollingBack Stage = "rolling_back"

	// StageFailed is the terminal failure stage.
	StageFailed Stage = "failed"
)

// CredentialInput is one secret the caller supplies for a deployment.
// Type is a backend-defined credential kind; the Data shape depends on it.
type CredentialInput struct {
	Type string                 `json:"type" validate:"required"`
	Name string                 `json:"name" validate:"required"`
	Data map[string]interface{} `json:"data" validate:"required"`
}

// DeploymentConfig is the immutable input to one deployment attempt.
type DeploymentConfig struct {
	// ClientID identifies the tenant receiving the deployment.
	ClientID string `json:"client_id" validate:"required"`

	// AgentID identifies the agent template being deployed.
	AgentID string `json:"agent_id" validate:"required"`

	// BaseURL is the remote backend endpoint.
	BaseURL string `json:"base_url" validate:"required,url"`

	// APIKey authenticates against the remote backend itself.
	APIKey string `json:"api_key" validate:"required"`

	// Credentials are the secrets to provision before the workflow.
	Credentials []CredentialInput `json:"credentials" validate:"dive"`

	// Template is the workflow template document (nodes/connections JSON).
	Template map[string]interface{} `json:"template" validate:"required"`

	// WorkflowName is the desired name of the created workflow.
	WorkflowName string `json:"workflow_name" validate:"required"`
}

var validate = validator.New()

// Validate checks the config for structural completeness before any
// remote call is made.
func (c *DeploymentConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return NewPermanentError("invalid deployment config", err).
			WithCode(ErrCodeValidation).
			WithStage(StageInitializing)
	}
	if _, ok := c.Template["nodes"]; !ok {
		return NewPermanentError("template has no nodes array", nil).
			WithCode(ErrCodeValidation).
			WithStage(StageInitializing)
	}
	return nil
}

// DeploymentProgress is one observational progress event. It is never
// authoritative state; callers must not reconstruct outcomes from it.
type DeploymentProgress struct {
	Stage   Stage  `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// DeploymentResult is the terminal value of one deployment attempt.
type DeploymentResult struct {
	// Success reports whether all five stages completed.
	Success bool `json:"success"`

	// WorkflowID is the backend-issued workflow identifier on success.
	WorkflowID string `json:"workflow_id,omitempty"`

	// WorkflowURL is the browsable URL of the created workflow.
	WorkflowURL string `json:"workflow_url,omitempty"`

	// CredentialIDs lists every credential created by this attempt, in
	// creation order. On success each ID exists remotely at return time;
	// on failure the listed resources have been rolled back best-effort.
	CredentialIDs []string `json:"credential_ids,omitempty"`

	// Error is the original failure message, never a rollback failure.
	Error string `json:"error,omitempty"`

	// ErrorDetail is the string-ified underlying error.
	ErrorDetail string `json:"error_detail,omitempty"`
}

// failedResult builds the caller-visible result for a stage failure. The
// rollback manifest is not echoed back: after rollback the attempt owns no
// remote resources, so an ID list would only invite stale lookups.
func failedResult(err *EngineError) *DeploymentResult {
	detail := ""
	if err.Err != nil {
		detail = fmt.Sprintf("%v", err.Err)
	}
	return &DeploymentResult{
		Success:     false,
		Error:       err.Message,
		ErrorDetail: detail,
	}
}
