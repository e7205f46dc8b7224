package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentdock/agentdock/pkg/engine"
	"github.com/agentdock/agentdock/pkg/health"
	"github.com/agentdock/agentdock/pkg/policy"
	"github.com/agentdock/agentdock/pkg/schema"
	"github.com/agentdock/agentdock/pkg/stores"
	"github.com/agentdock/agentdock/pkg/telemetry"
)

type response struct {
	Ok    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

type createClientRequest struct {
	Name         string `json:"name" binding:"required"`
	ContactEmail string `json:"contact_email"`
}

type createAgentRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Template    json.RawMessage `json:"template" binding:"required"`
}

type createDeploymentRequest struct {
	ClientID     string                   `json:"client_id" binding:"required"`
	AgentID      string                   `json:"agent_id" binding:"required"`
	WorkflowName string                   `json:"workflow_name" binding:"required"`
	Credentials  []engine.CredentialInput `json:"credentials"`

	// BaseURL and APIKey override the configured backend for this
	// deployment only. Both must be set to take effect.
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
}

type extractRequest struct {
	Template map[string]interface{} `json:"template" binding:"required"`
}

type healthCheckResponse struct {
	Result *health.CheckResult `json:"result"`
	Alerts []health.Alert      `json:"alerts"`
}

// BackendConfig is the default automation backend deployments target.
type BackendConfig struct {
	BaseURL string
	APIKey  string
}

// API carries the wired components the HTTP handlers dispatch to.
type API struct {
	deployer  *engine.Deployer
	monitor   *health.Monitor
	extractor *schema.Extractor
	policies  *policy.Engine
	store     stores.Store
	backend   BackendConfig
	metrics   http.Handler
	tracer    *telemetry.Tracer
	logger    zerolog.Logger
}

// NewAPI wires the handlers. The metrics handler may be nil when metrics
// are disabled.
func NewAPI(deployer *engine.Deployer, monitor *health.Monitor, extractor *schema.Extractor,
	policies *policy.Engine, store stores.Store, backend BackendConfig,
	metrics http.Handler, logger zerolog.Logger) *API {
	return &API{
		deployer:  deployer,
		monitor:   monitor,
		extractor: extractor,
		policies:  policies,
		store:     store,
		backend:   backend,
		metrics:   metrics,
		logger:    logger,
	}
}

// WithTracer enables span creation around deployments and health checks.
// A nil tracer leaves tracing off.
func (a *API) WithTracer(t *telemetry.Tracer) *API {
	a.tracer = t
	return a
}

// RegisterRoutes attaches every API route to the router. Ping and metrics
// stay unauthenticated; everything under /api/v1 requires the token.
func (a *API) RegisterRoutes(router *gin.Engine, authToken string) {
	router.GET("/ping", a.ping)
	if a.metrics != nil {
		router.GET("/metrics", gin.WrapH(a.metrics))
	}

	v1 := router.Group("/api/v1", authMiddleware(authToken))
	v1.POST("/clients", a.createClient)
	v1.GET("/clients", a.listClients)
	v1.POST("/agents", a.createAgent)
	v1.GET("/agents", a.listAgents)
	v1.GET("/agents/:id/schema", a.agentSchema)
	v1.POST("/extract", a.extract)
	v1.POST("/deployments", a.createDeployment)
	v1.GET("/deployments", a.listDeployments)
	v1.GET("/deployments/:id", a.getDeployment)
	v1.POST("/deployments/:id/health", a.checkHealth)
	v1.GET("/deployments/:id/health", a.healthHistory)
	v1.GET("/deployments/:id/alerts", a.listAlerts)
	v1.POST("/alerts/:id/ack", a.acknowledgeAlert)
	v1.GET("/activity", a.listActivity)
	v1.GET("/policies", a.listPolicies)
}

func (a *API) ping(c *gin.Context) {
	c.JSON(http.StatusOK, response{Ok: true})
}

func (a *API) createClient(c *gin.Context) {
	var req createClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response{Ok: false, Error: err.Error()})
		return
	}
	client := &stores.Client{
		ID:           uuid.New().String(),
		Name:         req.Name,
		ContactEmail: req.ContactEmail,
	}
	if err := a.store.CreateClient(c.Request.Context(), client); err != nil {
		a.logger.Error().Err(err).Msg("create client failed")
		c.JSON(http.StatusInternalServerError, response{Ok: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: client})
}

func (a *API) listClients(c *gin.Context) {
	clients, err := a.store.ListClients(c.Request.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("list clients failed")
		c.JSON(http.StatusInternalServerError, response{Ok: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: clients})
}

func (a *API) createAgent(c *gin.Context) {
	var req createAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response{Ok: false, Error: err.Error()})
		return
	}

	// Reject templates the extractor cannot parse up front so a broken
	// template never reaches a deployment attempt.
	var template map[string]interface{}
	if err := json.Unmarshal(req.Template, &template); err != nil {
		c.JSON(http.StatusBadRequest, response{Ok: false, Error: "template is not a JSON object"})
		return
	}
	if _, err := a.extractor.Extract(template); err != nil {
		c.JSON(http.StatusBadRequest, response{Ok: false, Error: err.Error()})
		return
	}

	agent := &stores.Agent{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		Template:    string(req.Template),
	}
	if err := a.store.CreateAgent(c.Request.Context(), agent); err != nil {
		a.logger.Error().Err(err).Msg("create agent failed")
		c.JSON(http.StatusInternalServerError, response{Ok: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: agent})
}

func (a *API) listAgents(c *gin.Context) {
	agents, err := a.store.ListAgents(c.Request.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("list agents failed")
		c.JSON(http.StatusInternalServerError, response{Ok: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: agents})
}

func (a *API) agentSchema(c *gin.Context) {
	agent, err := a.store.GetAgent(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, response{Ok: false, Error: err.Error()})
		return
	}
	template, err := parseTemplate(agent.Template)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response{Ok: false, Error: err.Error()})
		return
	}
	credSchema, err := a.extractor.Extract(template)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, response{Ok: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: credSchema})
}

func (a *API) extract(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response{Ok: false, Error: err.Error()})
		return
	}
	credSchema, err := a.extractor.Extract(req.Template)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, response{Ok: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: credSchema})
}

func (a *API) createDeployment(c *gin.Context) {
	var req createDeploymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response{Ok: false, Error: err.Error()})
		return
	}

	ctx := c.Request.Context()
	if _, err := a.store.GetClient(ctx, req.ClientID); err != nil {
		c.JSON(http.StatusNotFound, response{Ok: false, Error: err.Error()})
		return
	}
	agent, err := a.store.GetAgent(ctx, req.AgentID)
	if err != nil {
		c.JSON(http.StatusNotFound, response{Ok: false, Error: err.Error()})
		return
	}
	template, err := parseTemplate(agent.Template)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response{Ok: false, Error: err.Error()})
		return
	}

	baseURL, apiKey := a.backend.BaseURL, a.backend.APIKey
	if req.BaseURL != "" && req.APIKey != "" {
		baseURL, apiKey = req.BaseURL, req.APIKey
	}

	cfg := &engine.DeploymentConfig{
		ClientID:     req.ClientID,
		AgentID:      req.AgentID,
		BaseURL:      baseURL,
		APIKey:       apiKey,
		Credentials:  req.Credentials,
		Template:     template,
		WorkflowName: req.WorkflowName,
	}

	record := &stores.Deployment{
		ID:       uuid.New().String(),
		ClientID: req.ClientID,
		AgentID:  req.AgentID,
		Status:   stores.DeploymentStatusDeploying,
	}
	if err := a.store.CreateDeployment(ctx, record); err != nil {
		a.logger.Error().Err(err).Msg("create deployment record failed")
		c.JSON(http.StatusInternalServerError, response{Ok: false, Error: err.Error()})
		return
	}
	a.logActivity(ctx, &record.ID, "info", "deployment started for agent "+agent.Name)

	if a.tracer != nil {
		var span trace.Span
		ctx, span = a.tracer.StartDeploymentSpan(ctx, req.ClientID, req.AgentID)
		defer span.End()
	}

	result := a.deployer.Deploy(ctx, cfg, nil)
	if a.tracer != nil && !result.Success {
		telemetry.RecordError(trace.SpanFromContext(ctx), errors.New(result.Error))
	}
	a.finishDeployment(c, record, result)
}

// finishDeployment persists the deployment outcome and writes the HTTP
// response. The record update is best-effort; the caller still gets the
// engine result if persistence fails.
func (a *API) finishDeployment(c *gin.Context, record *stores.Deployment, result *engine.DeploymentResult) {
	ctx := c.Request.Context()

	status := stores.DeploymentStatusActive
	var workflowID, workflowURL, errMsg *string
	if result.Success {
		workflowID = &result.WorkflowID
		workflowURL = &result.WorkflowURL
		a.logActivity(ctx, &record.ID, "info", "deployment completed: workflow "+result.WorkflowID)
	} else {
		status = stores.DeploymentStatusFailed
		errMsg = &result.Error
		a.logActivity(ctx, &record.ID, "error", "deployment failed: "+result.Error)
	}

	if err := a.store.UpdateDeploymentStatus(ctx, record.ID, status, workflowID, workflowURL, errMsg); err != nil {
		a.logger.Error().Err(err).Str("deployment_id", record.ID).Msg("update deployment record failed")
	}
	if len(result.CredentialIDs) > 0 {
		ids, _ := json.Marshal(result.CredentialIDs)
		record.CredentialIDs = string(ids)
		if err := a.store.SetDeploymentCredentials(ctx, record.ID, record.CredentialIDs); err != nil {
			a.logger.Error().Err(err).Str("deployment_id", record.ID).Msg("persist credential ids failed")
		}
	}

	record.Status = status
	record.WorkflowID = workflowID
	record.WorkflowURL = workflowURL
	record.Error = errMsg

	code := http.StatusOK
	if !result.Success {
		code = http.StatusBadGateway
	}
	c.JSON(code, response{Ok: result.Success, Data: gin.H{
		"deployment": record,
		"result":     result,
	}, Error: result.Error})
}

func (a *API) listDeployments(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	deployments, err := a.store.ListDeployments(c.Request.Context(), limit, offset)
	if err != nil {
		a.logger.Error().Err(err).Msg("list deployments failed")
		c.JSON(http.StatusInternalServerError, response{Ok: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: deployments})
}

func (a *API) getDeployment(c *gin.Context) {
	d, err := a.store.GetDeployment(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, response{Ok: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: d})
}

func (a *API) checkHealth(c *gin.Context) {
	ctx := c.Request.Context()
	d, err := a.store.GetDeployment(ctx, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, response{Ok: false, Error: err.Error()})
		return
	}
	if d.WorkflowID == nil || *d.WorkflowID == "" {
		c.JSON(http.StatusConflict, response{Ok: false, Error: "deployment has no workflow to check"})
		return
	}

	if a.tracer != nil {
		var span trace.Span
		ctx, span = a.tracer.StartHealthCheckSpan(ctx, d.ID)
		defer span.End()
	}

	result := a.monitor.CheckHealth(ctx, health.MonitorConfig{
		DeploymentID: d.ID,
		ClientID:     d.ClientID,
		AgentID:      d.AgentID,
		WorkflowID:   *d.WorkflowID,
	})
	alerts := health.GenerateAlerts(result)

	a.persistHealthCheck(ctx, result, alerts)

	c.JSON(http.StatusOK, response{Ok: true, Data: healthCheckResponse{Result: result, Alerts: alerts}})
}

func (a *API) persistHealthCheck(ctx context.Context, result *health.CheckResult, alerts []health.Alert) {
	record := &stores.HealthCheckRecord{
		ID:           uuid.New().String(),
		DeploymentID: result.DeploymentID,
		Healthy:      result.Healthy,
		LatencyMs:    result.LatencyMs,
		CheckedAt:    result.Timestamp,
	}
	if result.Error != "" {
		record.Error = &result.Error
	}
	if result.Details != nil {
		record.WorkflowActive = result.Details.WorkflowActive
		record.SuccessRate = result.Details.SuccessRate
		record.RecentExecutions = result.Details.RecentExecutions
		record.AvgExecutionTimeMs = result.Details.AvgExecutionTimeMs
	}
	if err := a.store.SaveHealthCheck(ctx, record); err != nil {
		a.logger.Error().Err(err).Str("deployment_id", result.DeploymentID).Msg("save health check failed")
	}

	if len(alerts) == 0 {
		return
	}
	records := make([]*stores.AlertRecord, 0, len(alerts))
	for _, al := range alerts {
		records = append(records, &stores.AlertRecord{
			ID:           al.ID,
			DeploymentID: al.DeploymentID,
			ClientID:     al.ClientID,
			AgentID:      al.AgentID,
			Severity:     string(al.Severity),
			Type:         string(al.Type),
			Message:      al.Message,
			CreatedAt:    al.Timestamp,
		})
	}
	if err := a.store.SaveAlerts(ctx, records); err != nil {
		a.logger.Error().Err(err).Str("deployment_id", result.DeploymentID).Msg("save alerts failed")
	}
}

func (a *API) healthHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	records, err := a.store.ListHealthChecks(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("list health checks failed")
		c.JSON(http.StatusInternalServerError, response{Ok: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: records})
}

func (a *API) listAlerts(c *gin.Context) {
	unackedOnly := c.Query("unacknowledged") == "true"
	alerts, err := a.store.ListAlerts(c.Request.Context(), c.Param("id"), unackedOnly)
	if err != nil {
		a.logger.Error().Err(err).Msg("list alerts failed")
		c.JSON(http.StatusInternalServerError, response{Ok: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: alerts})
}

func (a *API) acknowledgeAlert(c *gin.Context) {
	if err := a.store.AcknowledgeAlert(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, response{Ok: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, response{Ok: true})
}

func (a *API) listActivity(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := a.store.ListActivity(c.Request.Context(), limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("list activity failed")
		c.JSON(http.StatusInternalServerError, response{Ok: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: entries})
}

func (a *API) listPolicies(c *gin.Context) {
	c.JSON(http.StatusOK, response{Ok: true, Data: a.policies.ListPolicies()})
}

func (a *API) logActivity(ctx context.Context, deploymentID *string, level, message string) {
	entry := &stores.ActivityEntry{
		ID:           uuid.New().String(),
		DeploymentID: deploymentID,
		Level:        level,
		Message:      message,
	}
	if err := a.store.AppendActivity(ctx, entry); err != nil {
		a.logger.Warn().Err(err).Msg("append activity failed")
	}
}

func parseTemplate(raw string) (map[string]interface{}, error) {
	var template map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &template); err != nil {
		return nil, err
	}
	return template, nil
}
