package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agentdock",
		Short: "AgentDock - agent deployment orchestration",
		Long: `AgentDock provisions agent workflow templates into a remote
automation backend on behalf of tenants.

Features:
  - Five-stage deployment pipeline with rollback on failure
  - Credential schema extraction from workflow templates
  - Deployment health monitoring and alerting
  - OPA admission policies for deployment requests
  - REST API server with deployment records in SQLite`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "agentdock.yaml", "settings file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newServeCommand(version))
	rootCmd.AddCommand(newDeployCommand())
	rootCmd.AddCommand(newExtractCommand())
	rootCmd.AddCommand(newHealthCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newPolicyCommand())

	return rootCmd
}
