package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Deployer drives one deployment attempt through the five pipeline stages.
// It holds no per-deployment state; distinct deployments may run
// concurrently on the same Deployer.
type Deployer struct {
	client    RemoteClient
	retry     RetryPolicy
	admission AdmissionChecker
	observer  Observer
	logger    zerolog.Logger
}

// Option configures a Deployer.
type Option func(*Deployer)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(d *Deployer) { d.retry = p }
}

// WithAdmission installs a policy gate evaluated before any remote call.
func WithAdmission(a AdmissionChecker) Option {
	return func(d *Deployer) { d.admission = a }
}

// WithObserver installs a metrics observer.
func WithObserver(o Observer) Option {
	return func(d *Deployer) { d.observer = o }
}

// WithLogger sets the deployer logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Deployer) { d.logger = l }
}

// NewDeployer creates a deployer over the given remote client.
func NewDeployer(client RemoteClient, opts ...Option) *Deployer {
	d := &Deployer{
		client: client,
		retry:  DefaultRetryPolicy(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// manifest is the rollback ledger of one attempt. Credential IDs are
// recorded the moment the backend returns them, before any operation that
// could fail, so a failure never loses track of a resource to clean up.
type manifest struct {
	workflowID    string
	credentialIDs []string
}

// Deploy runs one deployment attempt. It never returns an error: the
// outcome, including failures, is the DeploymentResult. onProgress may be
// nil. The context is consulted only between stages; an in-flight
// mutating call is always allowed to finish before rollback runs.
func (d *Deployer) Deploy(ctx context.Context, cfg *DeploymentConfig, onProgress ProgressFunc) *DeploymentResult {
	started := time.Now()
	log := d.logger.With().
		Str("client_id", cfg.ClientID).
		Str("agent_id", cfg.AgentID).
		Str("workflow_name", cfg.WorkflowName).
		Logger()

	if d.observer != nil {
		d.observer.DeploymentStarted()
	}

	result := d.run(ctx, cfg, onProgress, log)

	status := "failed"
	if result.Success {
		status = "succeeded"
	}
	if d.observer != nil {
		d.observer.DeploymentCompleted(status, time.Since(started))
	}
	log.Info().
		Bool("success", result.Success).
		Dur("duration", time.Since(started)).
		Msg("Deployment attempt finished")

	return result
}

func (d *Deployer) run(ctx context.Context, cfg *DeploymentConfig, onProgress ProgressFunc, log zerolog.Logger) *DeploymentResult {
	report := func(stage Stage, percent int, message, detail string) {
		if onProgress != nil {
			onProgress(DeploymentProgress{Stage: stage, Percent: percent, Message: message, Detail: detail})
		}
	}

	var m manifest

	// Stage 1: initializing. Nothing has been created yet, so failures
	// here abort without rollback.
	report(StageInitializing, 5, "Verifying backend connection", "")

	if err := cfg.Validate(); err != nil {
		return d.fail(ctx, err.(*EngineError), &m, report, log)
	}
	if d.admission != nil {
		if err := d.admission.CheckDeployment(ctx, cfg); err != nil {
			e := NewPermanentError("deployment rejected by policy", err).
				WithCode(ErrCodePolicyDenied).
				WithStage(StageInitializing)
			return d.fail(ctx, e, &m, report, log)
		}
	}

	if err := d.stage(StageInitializing, func() error {
		return d.retry.Do(ctx, "testConnection", d.observer, func(ctx context.Context) error {
			status, err := d.client.TestConnection(ctx)
			if err != nil {
				return err
			}
			if !status.Success {
				return NewPermanentError(status.Message, nil)
			}
			return nil
		})
	}); err != nil {
		e := d.classify(err).
			WithCode(ErrCodeConnectionFailed).
			WithStage(StageInitializing)
		e.Message = "failed to connect to automation backend: " + e.Message
		return d.fail(ctx, e, &m, report, log)
	}

	// Stage 2: creating_credentials. Strictly sequential; the manifest is
	// appended before anything else can fail.
	credByType := make(map[string]*Credential, len(cfg.Credentials))
	total := len(cfg.Credentials)
	for i, input := range cfg.Credentials {
		if err := ctx.Err(); err != nil {
			e := NewPermanentError("deployment cancelled", err).
				WithCode(ErrCodeTimeout).
				WithStage(StageCreatingCredentials)
			return d.fail(ctx, e, &m, report, log)
		}

		percent := 10 + ((i+1)*30)/total
		report(StageCreatingCredentials, percent,
			fmt.Sprintf("Creating credential %d of %d", i+1, total), input.Name)

		var created *Credential
		err := d.stage(StageCreatingCredentials, func() error {
			return d.retry.Do(ctx, "createCredential", d.observer, func(ctx context.Context) error {
				var err error
				created, err = d.client.CreateCredential(ctx, CredentialRequest{
					Name: input.Name,
					Type: input.Type,
					Data: input.Data,
				})
				return err
			})
		})
		if err == nil && (created == nil || created.ID == "") {
			err = NewPermanentError("backend returned credential without an identifier", nil)
		}
		if err != nil {
			e := d.classify(err).
				WithCode(ErrCodeCredentialCreation).
				WithStage(StageCreatingCredentials).
				WithDetail("credential_name", input.Name)
			e.Message = fmt.Sprintf("failed to create credential %q: %s", input.Name, e.Message)
			return d.fail(ctx, e, &m, report, log)
		}

		m.credentialIDs = append(m.credentialIDs, created.ID)
		if created.Name == "" {
			created.Name = input.Name
		}
		credByType[input.Type] = created
		log.Debug().Str("credential_id", created.ID).Str("type", input.Type).Msg("Credential created")
	}

	// Stage 3: generating_workflow. Pure local transformation.
	report(StageGeneratingWorkflow, 50, "Generating workflow from template", "")
	doc, err := buildWorkflowDocument(cfg, credByType)
	if err != nil {
		e := NewPermanentError("failed to generate workflow document", err).
			WithCode(ErrCodeValidation).
			WithStage(StageGeneratingWorkflow)
		return d.fail(ctx, e, &m, report, log)
	}

	// Stage 4: deploying.
	if err := ctx.Err(); err != nil {
		e := NewPermanentError("deployment cancelled", err).
			WithCode(ErrCodeTimeout).
			WithStage(StageDeploying)
		return d.fail(ctx, e, &m, report, log)
	}
	report(StageDeploying, 70, "Creating workflow on backend", cfg.WorkflowName)

	var wf *Workflow
	err = d.stage(StageDeploying, func() error {
		return d.retry.Do(ctx, "createWorkflow", d.observer, func(ctx context.Context) error {
			var err error
			wf, err = d.client.CreateWorkflow(ctx, doc)
			return err
		})
	})
	// A creation response without an ID is a failure even when the call
	// itself succeeded; there is nothing addressable to activate or roll back.
	if err == nil && (wf == nil || wf.ID == "") {
		err = NewPermanentError("backend returned workflow without an identifier", nil)
	}
	if err != nil {
		e := d.classify(err).
			WithCode(ErrCodeWorkflowCreation).
			WithStage(StageDeploying)
		e.Message = "failed to create workflow: " + e.Message
		return d.fail(ctx, e, &m, report, log)
	}
	m.workflowID = wf.ID

	// Stage 5: activating.
	report(StageActivating, 85, "Activating workflow", wf.ID)
	if err := d.stage(StageActivating, func() error {
		return d.retry.Do(ctx, "activateWorkflow", d.observer, func(ctx context.Context) error {
			_, err := d.client.ActivateWorkflow(ctx, wf.ID)
			return err
		})
	}); err != nil {
		e := d.classify(err).
			WithCode(ErrCodeWorkflowActivation).
			WithStage(StageActivating)
		e.Message = "failed to activate workflow: " + e.Message
		return d.fail(ctx, e, &m, report, log)
	}

	report(StageCompleted, 100, "Deployment completed", wf.ID)
	return &DeploymentResult{
		Success:       true,
		WorkflowID:    wf.ID,
		WorkflowURL:   workflowURL(cfg.BaseURL, wf.ID),
		CredentialIDs: m.credentialIDs,
	}
}

// stage times a stage body for the observer.
func (d *Deployer) stage(s Stage, fn func() error) error {
	started := time.Now()
	err := fn()
	if d.observer != nil {
		d.observer.StageCompleted(s, time.Since(started))
	}
	return err
}

// fail rolls back any resources recorded in the manifest and returns the
// caller-visible failure. The reported error is always the original stage
// failure; rollback problems are logged only.
func (d *Deployer) fail(ctx context.Context, e *EngineError, m *manifest, report func(Stage, int, string, string), log zerolog.Logger) *DeploymentResult {
	log.Error().Err(e).Str("stage", string(e.Stage)).Msg("Deployment stage failed")

	if m.workflowID != "" || len(m.credentialIDs) > 0 {
		report(StageRollingBack, 0, "Rolling back created resources", e.Message)
		d.rollback(ctx, m, log)
	}

	report(StageFailed, 0, "Deployment failed", e.Message)
	return failedResult(e)
}

// rollback deletes the workflow first, then every recorded credential in
// creation order; some backends reject credential deletion while a
// workflow still references it. Each deletion is best-effort.
func (d *Deployer) rollback(ctx context.Context, m *manifest, log zerolog.Logger) {
	// Rollback must proceed even when the deployment context was
	// cancelled; it is the only path back to a clean backend.
	ctx = context.WithoutCancel(ctx)

	if m.workflowID != "" {
		err := d.retry.Do(ctx, "deleteWorkflow", d.observer, func(ctx context.Context) error {
			return d.client.DeleteWorkflow(ctx, m.workflowID)
		})
		if d.observer != nil {
			d.observer.RollbackResource("workflow", err == nil)
		}
		if err != nil {
			log.Warn().Err(err).Str("workflow_id", m.workflowID).Msg("Rollback: workflow deletion failed")
		} else {
			log.Info().Str("workflow_id", m.workflowID).Msg("Rollback: workflow deleted")
		}
	}

	for _, id := range m.credentialIDs {
		err := d.retry.Do(ctx, "deleteCredential", d.observer, func(ctx context.Context) error {
			return d.client.DeleteCredential(ctx, id)
		})
		if d.observer != nil {
			d.observer.RollbackResource("credential", err == nil)
		}
		if err != nil {
			log.Warn().Err(err).Str("credential_id", id).Msg("Rollback: credential deletion failed")
		} else {
			log.Info().Str("credential_id", id).Msg("Rollback: credential deleted")
		}
	}
}

// classify normalizes an arbitrary error into an EngineError.
func (d *Deployer) classify(err error) *EngineError {
	if e, ok := err.(*EngineError); ok {
		return e
	}
	return NewPermanentError(err.Error(), err)
}

// buildWorkflowDocument deep-copies the template, names it, forces it
// inactive, strips any pre-existing identifier, and rewrites node
// credential references for every type the attempt created. References
// with no mapping pass through untouched.
func buildWorkflowDocument(cfg *DeploymentConfig, credByType map[string]*Credential) (map[string]interface{}, error) {
	raw, err := json.Marshal(cfg.Template)
	if err != nil {
		return nil, fmt.Errorf("marshal template: %w", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("copy template: %w", err)
	}

	doc["name"] = cfg.WorkflowName
	doc["active"] = false
	// The backend must assign a fresh identifier.
	delete(doc, "id")

	nodes, ok := doc["nodes"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("template has no nodes array")
	}
	for _, n := range nodes {
		node, ok := n.(map[string]interface{})
		if !ok {
			continue
		}
		creds, ok := node["credentials"].(map[string]interface{})
		if !ok {
			continue
		}
		for credType := range creds {
			created, ok := credByType[credType]
			if !ok {
				continue
			}
			creds[credType] = map[string]interface{}{
				"id":   created.ID,
				"name": created.Name,
			}
		}
	}

	return doc, nil
}

// workflowURL derives the browsable workflow URL from the backend base URL.
func workflowURL(baseURL, workflowID string) string {
	return strings.TrimRight(baseURL, "/") + "/workflow/" + workflowID
}
