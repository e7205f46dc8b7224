// Package remote implements engine.RemoteClient over the HTTP API of an
// n8n-compatible workflow-automation backend. It owns transport concerns
// only; retry and rollback belong to the engine, which relies on this
// package classifying every failure into the engine error classes.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentdock/agentdock/pkg/engine"
)

const apiPrefix = "/api/v1"

// Config configures a Client.
type Config struct {
	// BaseURL is the backend root, e.g. "https://automation.example.com".
	BaseURL string

	// APIKey authenticates API requests.
	APIKey string

	// Timeout bounds each HTTP request. The engine imposes no timeouts of
	// its own beyond the retry bound.
	Timeout time.Duration
}

// Client is the HTTP implementation of engine.RemoteClient.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  zerolog.Logger
}

var _ engine.RemoteClient = (*Client)(nil)

// NewClient creates a client for the given backend.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "remote-client").Logger(),
	}
}

// TestConnection verifies reachability and authentication by listing
// workflows with the smallest possible page.
func (c *Client) TestConnection(ctx context.Context) (*engine.ConnectionStatus, error) {
	if _, err := c.doRequest(ctx, http.MethodGet, apiPrefix+"/workflows?limit=1", nil); err != nil {
		return nil, err
	}
	return &engine.ConnectionStatus{Success: true, Message: "connected"}, nil
}

// CreateCredential creates a credential and returns the backend record.
func (c *Client) CreateCredential(ctx context.Context, req engine.CredentialRequest) (*engine.Credential, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, engine.NewPermanentError("marshal credential request", err).WithCode(engine.ErrCodeValidation)
	}
	data, err := c.doRequest(ctx, http.MethodPost, apiPrefix+"/credentials", body)
	if err != nil {
		return nil, err
	}
	var cred engine.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, engine.NewPermanentError("unmarshal credential response", err)
	}
	return &cred, nil
}

// DeleteCredential removes a credential by ID.
func (c *Client) DeleteCredential(ctx context.Context, id string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, apiPrefix+"/credentials/"+url.PathEscape(id), nil)
	return err
}

// CreateWorkflow creates a workflow from the given document.
func (c *Client) CreateWorkflow(ctx context.Context, doc map[string]interface{}) (*engine.Workflow, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, engine.NewPermanentError("marshal workflow document", err).WithCode(engine.ErrCodeValidation)
	}
	data, err := c.doRequest(ctx, http.MethodPost, apiPrefix+"/workflows", body)
	if err != nil {
		return nil, err
	}
	var wf engine.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, engine.NewPermanentError("unmarshal workflow response", err)
	}
	return &wf, nil
}

// DeleteWorkflow removes a workflow by ID.
func (c *Client) DeleteWorkflow(ctx context.Context, id string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, apiPrefix+"/workflows/"+url.PathEscape(id), nil)
	return err
}

// ActivateWorkflow switches a workflow to active.
func (c *Client) ActivateWorkflow(ctx context.Context, id string) (*engine.Workflow, error) {
	data, err := c.doRequest(ctx, http.MethodPost, apiPrefix+"/workflows/"+url.PathEscape(id)+"/activate", nil)
	if err != nil {
		return nil, err
	}
	var wf engine.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, engine.NewPermanentError("unmarshal workflow response", err)
	}
	return &wf, nil
}

// GetWorkflow fetches current workflow state.
func (c *Client) GetWorkflow(ctx context.Context, id string) (*engine.Workflow, error) {
	data, err := c.doRequest(ctx, http.MethodGet, apiPrefix+"/workflows/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	var wf engine.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, engine.NewPermanentError("unmarshal workflow response", err)
	}
	return &wf, nil
}

// GetExecutions returns the most recent execution records, newest first.
func (c *Client) GetExecutions(ctx context.Context, workflowID string, limit int) ([]engine.Execution, error) {
	q := url.Values{}
	q.Set("workflowId", workflowID)
	q.Set("limit", fmt.Sprintf("%d", limit))
	data, err := c.doRequest(ctx, http.MethodGet, apiPrefix+"/executions?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data []engine.Execution `json:"data"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, engine.NewPermanentError("unmarshal executions response", err)
	}
	return resp.Data, nil
}

// HealthCheck probes the unauthenticated liveness endpoint.
func (c *Client) HealthCheck(ctx context.Context) (*engine.ProbeResult, error) {
	started := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return nil, engine.NewPermanentError("create probe request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &engine.ProbeResult{Healthy: false, Error: err.Error()}, nil
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	result := &engine.ProbeResult{
		Healthy:   resp.StatusCode >= 200 && resp.StatusCode < 300,
		LatencyMs: time.Since(started).Milliseconds(),
	}
	if !result.Healthy {
		result.Error = fmt.Sprintf("liveness probe returned %d", resp.StatusCode)
	}
	return result, nil
}

// doRequest issues one API request and returns the raw response body.
// Failures come back as classified engine errors.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, engine.NewPermanentError("create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-N8N-API-KEY", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		// Connection resets, timeouts, and unreachable hosts are all
		// worth retrying.
		return nil, engine.NewTransientError(fmt.Sprintf("%s %s failed", method, path), err).
			WithCode(engine.ErrCodeTimeout)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, engine.NewTransientError("read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Msg("API request failed")
		return nil, classifyStatus(resp, respBody, method, path)
	}

	return respBody, nil
}
