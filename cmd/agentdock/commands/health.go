package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentdock/agentdock/pkg/health"
)

func newHealthCommand() *cobra.Command {
	var (
		workflowID   string
		deploymentID string
		clientID     string
		agentID      string
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the health of a deployed workflow",
		Long: `Check the health of a deployed workflow on the backend.

The verdict considers the workflow's active flag and the success rate
over the recent execution window, and reports any derived alerts.`,
		Example: `  # Check a workflow
  agentdock health --workflow wf-123

  # Machine-readable output
  agentdock health --workflow wf-123 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Root().Version)
			if err != nil {
				return err
			}

			result := rt.monitor.CheckHealth(cmd.Context(), health.MonitorConfig{
				DeploymentID: deploymentID,
				ClientID:     clientID,
				AgentID:      agentID,
				WorkflowID:   workflowID,
			})
			alerts := health.GenerateAlerts(result)

			if jsonOutput {
				return printJSON(map[string]interface{}{
					"result": result,
					"alerts": alerts,
				})
			}

			verdict := "healthy"
			if !result.Healthy {
				verdict = "unhealthy"
			}
			fmt.Printf("Workflow %s: %s\n", workflowID, verdict)
			if result.Error != "" {
				fmt.Printf("  error: %s\n", result.Error)
			}
			if d := result.Details; d != nil {
				fmt.Printf("  active: %v\n", d.WorkflowActive)
				fmt.Printf("  success rate: %d%% over %d execution(s)\n", d.SuccessRate, d.RecentExecutions)
				if d.AvgExecutionTimeMs > 0 {
					fmt.Printf("  avg execution time: %dms\n", d.AvgExecutionTimeMs)
				}
			}
			for _, a := range alerts {
				fmt.Printf("  [%s] %s: %s\n", a.Severity, a.Type, a.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&workflowID, "workflow", "w", "", "workflow identifier on the backend")
	cmd.Flags().StringVar(&deploymentID, "deployment", "", "deployment identifier for alert attribution")
	cmd.Flags().StringVar(&clientID, "client", "", "client identifier for alert attribution")
	cmd.Flags().StringVar(&agentID, "agent", "", "agent identifier for alert attribution")
	_ = cmd.MarkFlagRequired("workflow")

	return cmd
}
