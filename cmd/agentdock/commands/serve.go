package commands

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/agentdock/agentdock/pkg/config"
	"github.com/agentdock/agentdock/pkg/server"
	"github.com/agentdock/agentdock/pkg/stores"
	"github.com/agentdock/agentdock/pkg/telemetry"
)

func newServeCommand(version string) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API server",
		Long: `Run the REST API server.

The server exposes deployments, credential schema extraction, health
checks and alerting over HTTP, backed by the SQLite record store.
The settings file is watched; log level changes apply without restart.`,
		Example: `  # Serve with the default settings file
  agentdock serve

  # Serve on a specific address
  agentdock serve --listen :9000 --config /etc/agentdock/agentdock.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(version)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			store, err := stores.NewSQLiteStore(stores.Config{Path: rt.settings.Store.Path})
			if err != nil {
				return fmt.Errorf("setup store: %w", err)
			}
			if err := store.Init(ctx); err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			if err := store.Migrate(ctx); err != nil {
				return err
			}

			telCfg := rt.settings.TelemetryConfig(version)
			tracer, err := telemetry.NewTracer(telCfg.Tracing, telCfg.ServiceName, version, telCfg.Environment)
			if err != nil {
				return fmt.Errorf("setup tracing: %w", err)
			}
			defer func() { _ = tracer.Shutdown(ctx) }()

			// Live-reload the log level on settings changes. Everything
			// else requires a restart.
			go func() {
				err := config.Watch(ctx, configPath, rt.logger, func(s *config.Settings) {
					level, err := zerolog.ParseLevel(s.Telemetry.LogLevel)
					if err != nil {
						rt.logger.Warn().Str("level", s.Telemetry.LogLevel).Msg("ignoring invalid log level")
						return
					}
					zerolog.SetGlobalLevel(level)
					rt.logger.Info().Str("level", s.Telemetry.LogLevel).Msg("log level updated")
				})
				if err != nil {
					rt.logger.Warn().Err(err).Msg("settings watcher stopped")
				}
			}()

			api := server.NewAPI(rt.deployer, rt.monitor, rt.extractor, rt.policies, store,
				server.BackendConfig{
					BaseURL: rt.settings.Backend.BaseURL,
					APIKey:  rt.settings.Backend.APIKey,
				},
				rt.metrics.Handler(),
				telemetry.ComponentLogger(rt.logger, "api"),
			).WithTracer(tracer)

			addr := rt.settings.Server.Listen
			if listen != "" {
				addr = listen
			}
			srv := server.NewServer(addr, api, rt.settings.Server.AuthToken,
				telemetry.ComponentLogger(rt.logger, "http"))

			rt.logger.Info().Str("listen", addr).Msg("API server starting")
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "bind address (overrides settings file)")

	return cmd
}
