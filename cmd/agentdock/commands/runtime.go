package commands

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/agentdock/agentdock/pkg/config"
	"github.com/agentdock/agentdock/pkg/engine"
	"github.com/agentdock/agentdock/pkg/health"
	"github.com/agentdock/agentdock/pkg/policy"
	"github.com/agentdock/agentdock/pkg/remote"
	"github.com/agentdock/agentdock/pkg/schema"
	"github.com/agentdock/agentdock/pkg/telemetry"
)

// runtime is the wired component set shared by the CLI commands.
type runtime struct {
	settings  *config.Settings
	logger    zerolog.Logger
	metrics   *telemetry.Metrics
	client    *remote.Client
	deployer  *engine.Deployer
	monitor   *health.Monitor
	extractor *schema.Extractor
	policies  *policy.Engine
}

// newRuntime loads settings and wires everything short of the HTTP server
// and the record store, which only the serve command needs.
func newRuntime(version string) (*runtime, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	telCfg := settings.TelemetryConfig(version)
	if verbose {
		telCfg.Logging.Level = "debug"
	}
	if jsonOutput {
		telCfg.Logging.Format = "json"
	}

	logger, err := telemetry.NewLogger(telCfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}

	metrics, err := telemetry.NewMetrics(telCfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("setup metrics: %w", err)
	}

	policies, err := policy.NewEngine(telemetry.ComponentLogger(logger, "policy"))
	if err != nil {
		return nil, fmt.Errorf("setup policy engine: %w", err)
	}

	client := remote.NewClient(remote.Config{
		BaseURL: settings.Backend.BaseURL,
		APIKey:  settings.Backend.APIKey,
		Timeout: settings.Backend.Timeout,
	}, telemetry.ComponentLogger(logger, "remote"))

	deployer := engine.NewDeployer(client,
		engine.WithObserver(metrics),
		engine.WithAdmission(policies),
		engine.WithLogger(telemetry.ComponentLogger(logger, "engine")),
	)

	monitor := health.NewMonitor(client, telemetry.ComponentLogger(logger, "health"), metrics)
	extractor := schema.NewExtractor(telemetry.ComponentLogger(logger, "schema"), metrics)

	return &runtime{
		settings:  settings,
		logger:    logger,
		metrics:   metrics,
		client:    client,
		deployer:  deployer,
		monitor:   monitor,
		extractor: extractor,
		policies:  policies,
	}, nil
}
