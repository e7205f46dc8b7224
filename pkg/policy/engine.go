package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/agentdock/agentdock/pkg/engine"
)

// Engine compiles and evaluates deployment policies. It implements
// engine.AdmissionChecker.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

// compiledPolicy is a policy with its prepared query.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	compiled time.Time
}

// NewEngine creates a policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}

	builtin := GetBuiltinPolicies()
	for i := range builtin {
		if err := e.compileAndStore(&builtin[i]); err != nil {
			return nil, fmt.Errorf("failed to compile built-in policy %s: %w", builtin[i].Name, err)
		}
	}
	e.logger.Debug().Int("count", len(builtin)).Msg("Built-in policies loaded")

	return e, nil
}

// CheckDeployment evaluates all enabled policies against a deployment
// config and returns an error when any blocking violation exists.
func (e *Engine) CheckDeployment(ctx context.Context, cfg *engine.DeploymentConfig) error {
	result, err := e.Evaluate(ctx, inputFromConfig(cfg))
	if err != nil {
		return err
	}
	if result.Allowed {
		return nil
	}

	messages := make([]string, 0, len(result.Violations))
	for _, v := range result.Violations {
		if v.Severity == SeverityError || v.Severity == SeverityCritical {
			messages = append(messages, fmt.Sprintf("%s: %s", v.Policy, v.Message))
		}
	}
	return fmt.Errorf("policy violations: %s", strings.Join(messages, "; "))
}

// Evaluate runs every enabled policy against the input.
func (e *Engine) Evaluate(ctx context.Context, input *DeploymentInput) (*Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var violations []Violation
	var warnings []string

	for _, cp := range e.policies {
		if !cp.policy.Enabled {
			continue
		}

		found, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			e.logger.Error().Err(err).Str("policy", cp.policy.Name).Msg("Policy evaluation failed")
			warnings = append(warnings, fmt.Sprintf("policy %s evaluation failed: %v", cp.policy.Name, err))
			continue
		}
		violations = append(violations, found...)
	}

	allowed := true
	for i := range violations {
		if violations[i].Severity == SeverityError || violations[i].Severity == SeverityCritical {
			allowed = false
			break
		}
	}

	return &Result{
		Allowed:     allowed,
		Violations:  violations,
		Warnings:    warnings,
		EvaluatedAt: time.Now(),
	}, nil
}

// evaluatePolicy collects the deny set of one policy.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *DeploymentInput) ([]Violation, error) {
	query := fmt.Sprintf("data.%s.deny", packageName(cp.policy.Rego))

	r := rego.New(
		rego.Module(cp.policy.Name, cp.policy.Rego),
		rego.Query(query),
		rego.Input(input),
	)

	results, err := r.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, e.violationFrom(cp.policy, d))
			}
		}
	}
	return violations, nil
}

// violationFrom converts one deny-set entry into a Violation.
func (e *Engine) violationFrom(p *Policy, result interface{}) Violation {
	v := Violation{Policy: p.Name, Severity: p.Severity}
	switch r := result.(type) {
	case string:
		v.Message = r
	case map[string]interface{}:
		if msg, ok := r["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := r["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
	default:
		v.Message = fmt.Sprintf("%v", result)
	}
	return v
}

// ListPolicies returns all loaded policies.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		policies = append(policies, *cp.policy)
	}
	return policies
}

// SetEnabled toggles a policy by name.
func (e *Engine) SetEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy toggled")
	return nil
}

// compileAndStore parses a policy and keeps it for evaluation.
func (e *Engine) compileAndStore(p *Policy) error {
	module, err := ast.ParseModule(p.Name, p.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}
	e.policies[p.Name] = &compiledPolicy{
		policy:   p,
		module:   module,
		compiled: time.Now(),
	}
	return nil
}

// packageName extracts the package name from Rego source.
func packageName(src string) string {
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "agentdock.policies"
}

// inputFromConfig strips a deployment config down to its policy-visible
// shape. Secret material never reaches policy evaluation.
func inputFromConfig(cfg *engine.DeploymentConfig) *DeploymentInput {
	creds := make([]CredentialInput, 0, len(cfg.Credentials))
	for _, c := range cfg.Credentials {
		creds = append(creds, CredentialInput{Type: c.Type, Name: c.Name})
	}
	nodeCount := 0
	if nodes, ok := cfg.Template["nodes"].([]interface{}); ok {
		nodeCount = len(nodes)
	}
	return &DeploymentInput{
		ClientID:     cfg.ClientID,
		AgentID:      cfg.AgentID,
		BaseURL:      cfg.BaseURL,
		WorkflowName: cfg.WorkflowName,
		Credentials:  creds,
		NodeCount:    nodeCount,
	}
}
