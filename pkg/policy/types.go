// Package policy gates deployment configurations with Rego policies
// before any remote resource is created: naming conventions, credential
// hygiene, endpoint requirements. Policies never see secret material,
// only the deployment's metadata shape.
package policy

import "time"

// Severity grades a policy violation.
type Severity string

const (
	// SeverityInfo is informational only.
	SeverityInfo Severity = "info"

	// SeverityWarning should be reviewed but does not block a deployment.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the deployment.
	SeverityError Severity = "error"

	// SeverityCritical blocks the deployment and demands attention.
	SeverityCritical Severity = "critical"
)

// Policy is one named Rego rule set.
type Policy struct {
	// Name is the unique policy name.
	Name string `json:"name"`

	// Description is a human-readable summary.
	Description string `json:"description"`

	// Rego is the policy source. Violations are collected from the
	// package's deny set.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates whether the policy is evaluated.
	Enabled bool `json:"enabled"`

	// Tags organize policies.
	Tags []string `json:"tags,omitempty"`
}

// Violation is one policy violation against a deployment config.
type Violation struct {
	Policy   string   `json:"policy"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Result is the outcome of evaluating all enabled policies.
type Result struct {
	// Allowed is false when any violation is error or critical.
	Allowed bool `json:"allowed"`

	// Violations lists everything the policies denied.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists evaluation problems (not violations).
	Warnings []string `json:"warnings,omitempty"`

	EvaluatedAt time.Time `json:"evaluated_at"`
}

// DeploymentInput is the policy-visible shape of a deployment config.
// Credential data and the backend API key are deliberately absent.
type DeploymentInput struct {
	ClientID     string            `json:"client_id"`
	AgentID      string            `json:"agent_id"`
	BaseURL      string            `json:"base_url"`
	WorkflowName string            `json:"workflow_name"`
	Credentials  []CredentialInput `json:"credentials"`
	NodeCount    int               `json:"node_count"`
}

// CredentialInput is the policy-visible shape of one credential.
type CredentialInput struct {
	Type string `json:"type"`
	Name string `json:"name"`
}
