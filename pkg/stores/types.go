package stores

import (
	"context"
	"time"
)

// DeploymentStatus tracks a deployment record through its lifecycle.
type DeploymentStatus string

const (
	DeploymentStatusPending   DeploymentStatus = "pending"
	DeploymentStatusDeploying DeploymentStatus = "deploying"
	DeploymentStatusActive    DeploymentStatus = "active"
	DeploymentStatusFailed    DeploymentStatus = "failed"
	DeploymentStatusDeleted   DeploymentStatus = "deleted"
)

// Client is a tenant receiving deployments.
type Client struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ContactEmail string    `json:"contact_email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Agent is a reusable automation template.
type Agent struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Template    string    `json:"template"` // workflow template JSON blob
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Deployment is one provisioning of an agent into a client's backend.
type Deployment struct {
	ID            string           `json:"id"`
	ClientID      string           `json:"client_id"`
	AgentID       string           `json:"agent_id"`
	WorkflowID    *string          `json:"workflow_id,omitempty"`
	WorkflowURL   *string          `json:"workflow_url,omitempty"`
	Status        DeploymentStatus `json:"status"`
	Error         *string          `json:"error,omitempty"`
	CredentialIDs string           `json:"credential_ids"` // JSON array
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// HealthCheckRecord is one persisted health snapshot.
type HealthCheckRecord struct {
	ID                 string    `json:"id"`
	DeploymentID       string    `json:"deployment_id"`
	Healthy            bool      `json:"healthy"`
	WorkflowActive     bool      `json:"workflow_active"`
	SuccessRate        int       `json:"success_rate"`
	RecentExecutions   int       `json:"recent_executions"`
	AvgExecutionTimeMs int64     `json:"avg_execution_time_ms"`
	LatencyMs          int64     `json:"latency_ms"`
	Error              *string   `json:"error,omitempty"`
	CheckedAt          time.Time `json:"checked_at"`
}

// AlertRecord is one persisted health alert.
type AlertRecord struct {
	ID           string    `json:"id"`
	DeploymentID string    `json:"deployment_id"`
	ClientID     string    `json:"client_id"`
	AgentID      string    `json:"agent_id"`
	Severity     string    `json:"severity"`
	Type         string    `json:"type"`
	Message      string    `json:"message"`
	Acknowledged bool      `json:"acknowledged"`
	CreatedAt    time.Time `json:"created_at"`
}

// ActivityEntry is one line of the activity log shown to operators.
type ActivityEntry struct {
	ID           string    `json:"id"`
	DeploymentID *string   `json:"deployment_id,omitempty"`
	Level        string    `json:"level"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store is the persistence contract the API server and CLI consume.
type Store interface {
	Init(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error

	CreateClient(ctx context.Context, c *Client) error
	GetClient(ctx context.Context, id string) (*Client, error)
	ListClients(ctx context.Context) ([]*Client, error)

	CreateAgent(ctx context.Context, a *Agent) error
	GetAgent(ctx context.Context, id string) (*Agent, error)
	ListAgents(ctx context.Context) ([]*Agent, error)

	CreateDeployment(ctx context.Context, d *Deployment) error
	GetDeployment(ctx context.Context, id string) (*Deployment, error)
	ListDeployments(ctx context.Context, limit, offset int) ([]*Deployment, error)
	UpdateDeploymentStatus(ctx context.Context, id string, status DeploymentStatus, workflowID, workflowURL, errMsg *string) error
	SetDeploymentCredentials(ctx context.Context, id string, credentialIDs string) error

	SaveHealthCheck(ctx context.Context, r *HealthCheckRecord) error
	ListHealthChecks(ctx context.Context, deploymentID string, limit int) ([]*HealthCheckRecord, error)

	SaveAlerts(ctx context.Context, alerts []*AlertRecord) error
	ListAlerts(ctx context.Context, deploymentID string, unacknowledgedOnly bool) ([]*AlertRecord, error)
	AcknowledgeAlert(ctx context.Context, id string) error

	AppendActivity(ctx context.Context, e *ActivityEntry) error
	ListActivity(ctx context.Context, limit int) ([]*ActivityEntry, error)
}
