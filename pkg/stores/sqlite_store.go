package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	return &SQLiteStore{
		path: cfg.Path,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Foreign keys are a connection-level setting in SQLite.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations from the embedded migration files.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// CreateClient inserts a new client record
func (s *SQLiteStore) CreateClient(ctx context.Context, c *Client) error {
	query := `
		INSERT INTO clients (id, name, contact_email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.Name, nullString(c.ContactEmail), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

// GetClient retrieves a client by ID
func (s *SQLiteStore) GetClient(ctx context.Context, id string) (*Client, error) {
	query := `
		SELECT id, name, contact_email, created_at, updated_at
		FROM clients WHERE id = ?
	`
	var c Client
	var email sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Name, &email, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("client not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	c.ContactEmail = email.String
	return &c, nil
}

// ListClients returns all clients ordered by creation time
func (s *SQLiteStore) ListClients(ctx context.Context) ([]*Client, error) {
	query := `
		SELECT id, name, contact_email, created_at, updated_at
		FROM clients ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var clients []*Client
	for rows.Next() {
		var c Client
		var email sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &email, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		c.ContactEmail = email.String
		clients = append(clients, &c)
	}
	return clients, rows.Err()
}

// CreateAgent inserts a new agent template record
func (s *SQLiteStore) CreateAgent(ctx context.Context, a *Agent) error {
	query := `
		INSERT INTO agents (id, name, description, template, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.Name, nullString(a.Description), a.Template, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}
	return nil
}

// GetAgent retrieves an agent by ID
func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	query := `
		SELECT id, name, description, template, created_at, updated_at
		FROM agents WHERE id = ?
	`
	var a Agent
	var desc sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.Name, &desc, &a.Template, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	a.Description = desc.String
	return &a, nil
}

// ListAgents returns all agent templates ordered by creation time
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	query := `
		SELECT id, name, description, template, created_at, updated_at
		FROM agents ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var agents []*Agent
	for rows.Next() {
		var a Agent
		var desc sql.NullString
		if err := rows.Scan(&a.ID, &a.Name, &desc, &a.Template, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		a.Description = desc.String
		agents = append(agents, &a)
	}
	return agents, rows.Err()
}

// CreateDeployment inserts a new deployment record
func (s *SQLiteStore) CreateDeployment(ctx context.Context, d *Deployment) error {
	query := `
		INSERT INTO deployments (id, client_id, agent_id, workflow_id, workflow_url, status, error, credential_ids, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	if d.CredentialIDs == "" {
		d.CredentialIDs = "[]"
	}

	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.ClientID, d.AgentID, d.WorkflowID, d.WorkflowURL,
		string(d.Status), d.Error, d.CredentialIDs, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create deployment: %w", err)
	}
	return nil
}

// GetDeployment retrieves a deployment by ID
func (s *SQLiteStore) GetDeployment(ctx context.Context, id string) (*Deployment, error) {
	query := `
		SELECT id, client_id, agent_id, workflow_id, workflow_url, status, error, credential_ids, created_at, updated_at
		FROM deployments WHERE id = ?
	`
	d, err := scanDeployment(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("deployment not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment: %w", err)
	}
	return d, nil
}

// ListDeployments returns deployments ordered by creation time, newest first
func (s *SQLiteStore) ListDeployments(ctx context.Context, limit, offset int) ([]*Deployment, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, client_id, agent_id, workflow_id, workflow_url, status, error, credential_ids, created_at, updated_at
		FROM deployments ORDER BY created_at DESC LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var deployments []*Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment: %w", err)
		}
		deployments = append(deployments, d)
	}
	return deployments, rows.Err()
}

// UpdateDeploymentStatus updates a deployment's status and outcome fields.
// Nil workflowID, workflowURL and errMsg leave the stored values untouched.
func (s *SQLiteStore) UpdateDeploymentStatus(ctx context.Context, id string, status DeploymentStatus, workflowID, workflowURL, errMsg *string) error {
	query := `
		UPDATE deployments
		SET status = ?,
		    workflow_id = COALESCE(?, workflow_id),
		    workflow_url = COALESCE(?, workflow_url),
		    error = ?,
		    updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		string(status), workflowID, workflowURL, errMsg, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update deployment status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("deployment not found: %s", id)
	}
	return nil
}

// SetDeploymentCredentials records the remote credential IDs created for a
// deployment, as a JSON array
func (s *SQLiteStore) SetDeploymentCredentials(ctx context.Context, id string, credentialIDs string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE deployments SET credential_ids = ?, updated_at = ? WHERE id = ?",
		credentialIDs, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set deployment credentials: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("deployment not found: %s", id)
	}
	return nil
}

// SaveHealthCheck persists one health check snapshot
func (s *SQLiteStore) SaveHealthCheck(ctx context.Context, r *HealthCheckRecord) error {
	query := `
		INSERT INTO health_checks (id, deployment_id, healthy, workflow_active, success_rate, recent_executions, avg_execution_time_ms, latency_ms, error, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if r.CheckedAt.IsZero() {
		r.CheckedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.DeploymentID, r.Healthy, r.WorkflowActive, r.SuccessRate,
		r.RecentExecutions, r.AvgExecutionTimeMs, r.LatencyMs, r.Error, r.CheckedAt)
	if err != nil {
		return fmt.Errorf("failed to save health check: %w", err)
	}
	return nil
}

// ListHealthChecks returns recent health checks for a deployment, newest first
func (s *SQLiteStore) ListHealthChecks(ctx context.Context, deploymentID string, limit int) ([]*HealthCheckRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, deployment_id, healthy, workflow_active, success_rate, recent_executions, avg_execution_time_ms, latency_ms, error, checked_at
		FROM health_checks WHERE deployment_id = ? ORDER BY checked_at DESC LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, deploymentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list health checks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*HealthCheckRecord
	for rows.Next() {
		var r HealthCheckRecord
		if err := rows.Scan(&r.ID, &r.DeploymentID, &r.Healthy, &r.WorkflowActive,
			&r.SuccessRate, &r.RecentExecutions, &r.AvgExecutionTimeMs,
			&r.LatencyMs, &r.Error, &r.CheckedAt); err != nil {
			return nil, fmt.Errorf("failed to scan health check: %w", err)
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

// SaveAlerts persists a batch of alerts in a single transaction
func (s *SQLiteStore) SaveAlerts(ctx context.Context, alerts []*AlertRecord) error {
	if len(alerts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO alerts (id, deployment_id, client_id, agent_id, severity, type, message, acknowledged, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, a := range alerts {
		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now()
		}
		if _, err := tx.ExecContext(ctx, query,
			a.ID, a.DeploymentID, a.ClientID, a.AgentID,
			a.Severity, a.Type, a.Message, a.Acknowledged, a.CreatedAt); err != nil {
			return fmt.Errorf("failed to save alert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit alerts: %w", err)
	}
	return nil
}

// ListAlerts returns alerts for a deployment, newest first. Pass an empty
// deploymentID to list across all deployments.
func (s *SQLiteStore) ListAlerts(ctx context.Context, deploymentID string, unacknowledgedOnly bool) ([]*AlertRecord, error) {
	query := `
		SELECT id, deployment_id, client_id, agent_id, severity, type, message, acknowledged, created_at
		FROM alerts WHERE (? = '' OR deployment_id = ?) AND (? = 0 OR acknowledged = 0)
		ORDER BY created_at DESC
	`
	only := 0
	if unacknowledgedOnly {
		only = 1
	}
	rows, err := s.db.QueryContext(ctx, query, deploymentID, deploymentID, only)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var alerts []*AlertRecord
	for rows.Next() {
		var a AlertRecord
		if err := rows.Scan(&a.ID, &a.DeploymentID, &a.ClientID, &a.AgentID,
			&a.Severity, &a.Type, &a.Message, &a.Acknowledged, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

// AcknowledgeAlert marks an alert as acknowledged
func (s *SQLiteStore) AcknowledgeAlert(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "UPDATE alerts SET acknowledged = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("alert not found: %s", id)
	}
	return nil
}

// AppendActivity adds one activity log entry
func (s *SQLiteStore) AppendActivity(ctx context.Context, e *ActivityEntry) error {
	query := `
		INSERT INTO activity (id, deployment_id, level, message, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.DeploymentID, e.Level, e.Message, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

// ListActivity returns recent activity entries, newest first
func (s *SQLiteStore) ListActivity(ctx context.Context, limit int) ([]*ActivityEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, deployment_id, level, message, created_at
		FROM activity ORDER BY created_at DESC LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*ActivityEntry
	for rows.Next() {
		var e ActivityEntry
		if err := rows.Scan(&e.ID, &e.DeploymentID, &e.Level, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeployment(row rowScanner) (*Deployment, error) {
	var d Deployment
	var status string
	if err := row.Scan(&d.ID, &d.ClientID, &d.AgentID, &d.WorkflowID, &d.WorkflowURL,
		&status, &d.Error, &d.CredentialIDs, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Status = DeploymentStatus(status)
	return &d, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
