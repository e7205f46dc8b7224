package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/agentdock/agentdock/pkg/engine"
	"github.com/agentdock/agentdock/pkg/health"
	"github.com/agentdock/agentdock/pkg/policy"
	"github.com/agentdock/agentdock/pkg/schema"
	"github.com/agentdock/agentdock/pkg/stores"
)

// In-memory store for handler tests
type memStore struct {
	mu           sync.Mutex
	clients      map[string]*stores.Client
	agents       map[string]*stores.Agent
	deployments  map[string]*stores.Deployment
	healthChecks []*stores.HealthCheckRecord
	alerts       map[string]*stores.AlertRecord
	activity     []*stores.ActivityEntry
}

func newMemStore() *memStore {
	return &memStore{
		clients:     make(map[string]*stores.Client),
		agents:      make(map[string]*stores.Agent),
		deployments: make(map[string]*stores.Deployment),
		alerts:      make(map[string]*stores.AlertRecord),
	}
}

func (s *memStore) Init(ctx context.Context) error    { return nil }
func (s *memStore) Migrate(ctx context.Context) error { return nil }
func (s *memStore) Close() error                      { return nil }

func (s *memStore) CreateClient(ctx context.Context, c *stores.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ID] = c
	return nil
}

func (s *memStore) GetClient(ctx context.Context, id string) (*stores.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, fmt.Errorf("client not found: %s", id)
	}
	return c, nil
}

func (s *memStore) ListClients(ctx context.Context) ([]*stores.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*stores.Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	return out, nil
}

func (s *memStore) CreateAgent(ctx context.Context, a *stores.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[a.ID] = a
	return nil
}

func (s *memStore) GetAgent(ctx context.Context, id string) (*stores.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent not found: %s", id)
	}
	return a, nil
}

func (s *memStore) ListAgents(ctx context.Context) ([]*stores.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*stores.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	return out, nil
}

func (s *memStore) CreateDeployment(ctx context.Context, d *stores.Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deployments[d.ID] = d
	return nil
}

func (s *memStore) GetDeployment(ctx context.Context, id string) (*stores.Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deployments[id]
	if !ok {
		return nil, fmt.Errorf("deployment not found: %s", id)
	}
	return d, nil
}

func (s *memStore) ListDeployments(ctx context.Context, limit, offset int) ([]*stores.Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*stores.Deployment, 0, len(s.deployments))
	for _, d := range s.deployments {
		out = append(out, d)
	}
	return out, nil
}

func (s *memStore) UpdateDeploymentStatus(ctx context.Context, id string, status stores.DeploymentStatus, workflowID, workflowURL, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deployments[id]
	if !ok {
		return fmt.Errorf("deployment not found: %s", id)
	}
	d.Status = status
	if workflowID != nil {
		d.WorkflowID = workflowID
	}
	if workflowURL != nil {
		d.WorkflowURL = workflowURL
	}
	d.Error = errMsg
	return nil
}

func (s *memStore) SetDeploymentCredentials(ctx context.Context, id string, credentialIDs string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deployments[id]
	if !ok {
		return fmt.Errorf("deployment not found: %s", id)
	}
	d.CredentialIDs = credentialIDs
	return nil
}

func (s *memStore) SaveHealthCheck(ctx context.Context, r *stores.HealthCheckRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthChecks = append(s.healthChecks, r)
	return nil
}

func (s *memStore) ListHealthChecks(ctx context.Context, deploymentID string, limit int) ([]*stores.HealthCheckRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*stores.HealthCheckRecord
	for _, r := range s.healthChecks {
		if r.DeploymentID == deploymentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) SaveAlerts(ctx context.Context, alerts []*stores.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range alerts {
		s.alerts[a.ID] = a
	}
	return nil
}

func (s *memStore) ListAlerts(ctx context.Context, deploymentID string, unacknowledgedOnly bool) ([]*stores.AlertRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*stores.AlertRecord
	for _, a := range s.alerts {
		if deploymentID != "" && a.DeploymentID != deploymentID {
			continue
		}
		if unacknowledgedOnly && a.Acknowledged {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *memStore) AcknowledgeAlert(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return fmt.Errorf("alert not found: %s", id)
	}
	a.Acknowledged = true
	return nil
}

func (s *memStore) AppendActivity(ctx context.Context, e *stores.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = append(s.activity, e)
	return nil
}

func (s *memStore) ListActivity(ctx context.Context, limit int) ([]*stores.ActivityEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*stores.ActivityEntry{}, s.activity...), nil
}

// Fake backend client, always succeeds
type fakeBackend struct {
	mu         sync.Mutex
	nextCred   int
	nextWf     int
	executions []engine.Execution
}

func (f *fakeBackend) TestConnection(ctx context.Context) (*engine.ConnectionStatus, error) {
	return &engine.ConnectionStatus{Success: true}, nil
}

func (f *fakeBackend) CreateCredential(ctx context.Context, req engine.CredentialRequest) (*engine.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextCred++
	return &engine.Credential{ID: fmt.Sprintf("cred-%d", f.nextCred), Name: req.Name}, nil
}

func (f *fakeBackend) DeleteCredential(ctx context.Context, id string) error { return nil }

func (f *fakeBackend) CreateWorkflow(ctx context.Context, doc map[string]interface{}) (*engine.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextWf++
	return &engine.Workflow{ID: fmt.Sprintf("wf-%d", f.nextWf)}, nil
}

func (f *fakeBackend) DeleteWorkflow(ctx context.Context, id string) error { return nil }

func (f *fakeBackend) ActivateWorkflow(ctx context.Context, id string) (*engine.Workflow, error) {
	return &engine.Workflow{ID: id, Active: true}, nil
}

func (f *fakeBackend) GetWorkflow(ctx context.Context, id string) (*engine.Workflow, error) {
	return &engine.Workflow{ID: id, Active: true}, nil
}

func (f *fakeBackend) GetExecutions(ctx context.Context, workflowID string, limit int) ([]engine.Execution, error) {
	return f.executions, nil
}

func (f *fakeBackend) HealthCheck(ctx context.Context) (*engine.ProbeResult, error) {
	return &engine.ProbeResult{Healthy: true}, nil
}

const testToken = "test-token"

func newTestRouter(t *testing.T, store stores.Store, backend engine.RemoteClient) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	policies, err := policy.NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("policy engine: %v", err)
	}

	deployer := engine.NewDeployer(backend,
		engine.WithAdmission(policies),
		engine.WithRetryPolicy(engine.RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond}),
	)
	monitor := health.NewMonitor(backend, zerolog.Nop(), nil)
	extractor := schema.NewExtractor(zerolog.Nop(), nil)

	api := NewAPI(deployer, monitor, extractor, policies, store,
		BackendConfig{BaseURL: "https://backend.example.com", APIKey: "key"},
		nil, zerolog.Nop())

	router := gin.New()
	api.RegisterRoutes(router, testToken)
	return router
}

func doRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Token", testToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) response {
	t.Helper()
	var resp response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v (%s)", err, w.Body.String())
	}
	return resp
}

func validTemplate() map[string]interface{} {
	return map[string]interface{}{
		"nodes": []interface{}{
			map[string]interface{}{
				"name": "AI",
				"credentials": map[string]interface{}{
					"openAiApi": map[string]interface{}{"id": "1", "name": "OpenAI"},
				},
			},
		},
	}
}

func seedClientAndAgent(t *testing.T, router *gin.Engine) (string, string) {
	t.Helper()

	w := doRequest(router, http.MethodPost, "/api/v1/clients", createClientRequest{Name: "Acme"})
	if w.Code != http.StatusOK {
		t.Fatalf("create client: %d %s", w.Code, w.Body.String())
	}
	var client stores.Client
	data, _ := json.Marshal(decodeResponse(t, w).Data)
	_ = json.Unmarshal(data, &client)

	raw, _ := json.Marshal(validTemplate())
	w = doRequest(router, http.MethodPost, "/api/v1/agents", map[string]interface{}{
		"name":     "Support Bot",
		"template": json.RawMessage(raw),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("create agent: %d %s", w.Code, w.Body.String())
	}
	var agent stores.Agent
	data, _ = json.Marshal(decodeResponse(t, w).Data)
	_ = json.Unmarshal(data, &agent)

	return client.ID, agent.ID
}

func TestPingUnauthenticated(t *testing.T) {
	router := newTestRouter(t, newMemStore(), &fakeBackend{})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	router := newTestRouter(t, newMemStore(), &fakeBackend{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/clients", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/clients", nil)
	req.Header.Set("X-API-Token", "wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with wrong token, got %d", w.Code)
	}
}

func TestCreateAgentRejectsBrokenTemplate(t *testing.T) {
	router := newTestRouter(t, newMemStore(), &fakeBackend{})

	w := doRequest(router, http.MethodPost, "/api/v1/agents", map[string]interface{}{
		"name":     "Broken",
		"template": map[string]interface{}{"no_nodes": true},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for template without nodes, got %d", w.Code)
	}
}

func TestExtractEndpoint(t *testing.T) {
	router := newTestRouter(t, newMemStore(), &fakeBackend{})

	w := doRequest(router, http.MethodPost, "/api/v1/extract", extractRequest{Template: validTemplate()})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeResponse(t, w)
	data, _ := json.Marshal(resp.Data)
	var got schema.CredentialSchema
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Simple) != 1 || got.Simple[0].Type != "openAiApi" {
		t.Errorf("Expected openAiApi schema, got %+v", got)
	}
}

func TestDeploymentEndToEnd(t *testing.T) {
	store := newMemStore()
	router := newTestRouter(t, store, &fakeBackend{})
	clientID, agentID := seedClientAndAgent(t, router)

	w := doRequest(router, http.MethodPost, "/api/v1/deployments", createDeploymentRequest{
		ClientID:     clientID,
		AgentID:      agentID,
		WorkflowName: "Acme Support Bot",
		Credentials: []engine.CredentialInput{
			{Type: "openAiApi", Name: "OpenAI", Data: map[string]interface{}{"apiKey": "sk"}},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if len(store.deployments) != 1 {
		t.Fatalf("Expected 1 stored deployment, got %d", len(store.deployments))
	}
	for _, d := range store.deployments {
		if d.Status != stores.DeploymentStatusActive {
			t.Errorf("Expected active status, got %s", d.Status)
		}
		if d.WorkflowID == nil || *d.WorkflowID != "wf-1" {
			t.Errorf("Expected workflow ID recorded, got %v", d.WorkflowID)
		}
		if d.CredentialIDs != `["cred-1"]` {
			t.Errorf("Expected credential IDs recorded, got %s", d.CredentialIDs)
		}
	}
	if len(store.activity) == 0 {
		t.Error("Expected activity entries for the deployment")
	}
}

func TestDeploymentUnknownClient(t *testing.T) {
	router := newTestRouter(t, newMemStore(), &fakeBackend{})

	w := doRequest(router, http.MethodPost, "/api/v1/deployments", createDeploymentRequest{
		ClientID:     "nope",
		AgentID:      "nope",
		WorkflowName: "Bot",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestHealthCheckEndpoint(t *testing.T) {
	store := newMemStore()
	backend := &fakeBackend{executions: []engine.Execution{
		{ID: "e1", Status: engine.ExecutionStatusSuccess, StartedAt: time.Now()},
	}}
	router := newTestRouter(t, store, backend)
	clientID, agentID := seedClientAndAgent(t, router)

	w := doRequest(router, http.MethodPost, "/api/v1/deployments", createDeploymentRequest{
		ClientID:     clientID,
		AgentID:      agentID,
		WorkflowName: "Bot",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("deploy failed: %d %s", w.Code, w.Body.String())
	}

	var depID string
	for id := range store.deployments {
		depID = id
	}

	w = doRequest(router, http.MethodPost, "/api/v1/deployments/"+depID+"/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health check: %d %s", w.Code, w.Body.String())
	}
	if len(store.healthChecks) != 1 {
		t.Errorf("Expected health check persisted, got %d", len(store.healthChecks))
	}
}

func TestHealthCheckPersistsAlerts(t *testing.T) {
	store := newMemStore()
	backend := &fakeBackend{executions: []engine.Execution{
		{ID: "e1", Status: engine.ExecutionStatusError, StartedAt: time.Now()},
		{ID: "e2", Status: engine.ExecutionStatusError, StartedAt: time.Now()},
	}}
	router := newTestRouter(t, store, backend)
	clientID, agentID := seedClientAndAgent(t, router)

	w := doRequest(router, http.MethodPost, "/api/v1/deployments", createDeploymentRequest{
		ClientID:     clientID,
		AgentID:      agentID,
		WorkflowName: "Bot",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("deploy failed: %d %s", w.Code, w.Body.String())
	}

	var depID string
	for id := range store.deployments {
		depID = id
	}

	w = doRequest(router, http.MethodPost, "/api/v1/deployments/"+depID+"/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health check: %d %s", w.Code, w.Body.String())
	}
	if len(store.healthChecks) != 1 {
		t.Fatalf("Expected health check persisted, got %d", len(store.healthChecks))
	}
	if store.healthChecks[0].Healthy {
		t.Error("Expected unhealthy result with all executions failing")
	}
	if len(store.alerts) == 0 {
		t.Error("Expected generated alerts to be persisted")
	}
	for _, al := range store.alerts {
		if al.DeploymentID != depID {
			t.Errorf("Expected alert attributed to %s, got %s", depID, al.DeploymentID)
		}
	}
}

func TestHealthCheckWithoutWorkflow(t *testing.T) {
	store := newMemStore()
	router := newTestRouter(t, store, &fakeBackend{})

	d := &stores.Deployment{ID: "dep-1", ClientID: "c", AgentID: "a", Status: stores.DeploymentStatusFailed}
	_ = store.CreateDeployment(context.Background(), d)

	w := doRequest(router, http.MethodPost, "/api/v1/deployments/dep-1/health", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for deployment without workflow, got %d", w.Code)
	}
}

func TestAcknowledgeUnknownAlert(t *testing.T) {
	router := newTestRouter(t, newMemStore(), &fakeBackend{})

	w := doRequest(router, http.MethodPost, "/api/v1/alerts/missing/ack", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestListPoliciesEndpoint(t *testing.T) {
	router := newTestRouter(t, newMemStore(), &fakeBackend{})

	w := doRequest(router, http.MethodGet, "/api/v1/policies", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	resp := decodeResponse(t, w)
	data, _ := json.Marshal(resp.Data)
	var policies []policy.Policy
	if err := json.Unmarshal(data, &policies); err != nil {
		t.Fatal(err)
	}
	if len(policies) != 3 {
		t.Errorf("Expected 3 policies, got %d", len(policies))
	}
}
