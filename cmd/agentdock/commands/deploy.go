package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentdock/agentdock/pkg/engine"
)

func newDeployCommand() *cobra.Command {
	var (
		clientID        string
		agentID         string
		workflowName    string
		templateFile    string
		credentialsFile string
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy an agent workflow to the automation backend",
		Long: `Deploy an agent workflow template to the configured backend.

This command:
  - Loads the workflow template and credential inputs from files
  - Runs admission policies against the deployment request
  - Creates the credentials, then the workflow, then activates it
  - Rolls back created resources if any stage fails`,
		Example: `  # Deploy with credentials from a file
  agentdock deploy --client acme --agent support-bot \
    --name "Acme Support Bot" --template bot.json --credentials creds.json

  # Deploy a template that needs no credentials
  agentdock deploy --client acme --agent digest --name "Daily Digest" --template digest.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Root().Version)
			if err != nil {
				return err
			}

			template, err := readJSONObject(templateFile)
			if err != nil {
				return fmt.Errorf("read template: %w", err)
			}

			var credentials []engine.CredentialInput
			if credentialsFile != "" {
				raw, err := os.ReadFile(credentialsFile)
				if err != nil {
					return fmt.Errorf("read credentials: %w", err)
				}
				if err := json.Unmarshal(raw, &credentials); err != nil {
					return fmt.Errorf("parse credentials: %w", err)
				}
			}

			cfg := &engine.DeploymentConfig{
				ClientID:     clientID,
				AgentID:      agentID,
				BaseURL:      rt.settings.Backend.BaseURL,
				APIKey:       rt.settings.Backend.APIKey,
				Credentials:  credentials,
				Template:     template,
				WorkflowName: workflowName,
			}

			onProgress := func(p engine.DeploymentProgress) {
				rt.logger.Info().
					Str("stage", string(p.Stage)).
					Int("percent", p.Percent).
					Msg(p.Message)
			}

			result := rt.deployer.Deploy(cmd.Context(), cfg, onProgress)

			if jsonOutput {
				return printJSON(result)
			}
			if !result.Success {
				return fmt.Errorf("deployment failed: %s", result.Error)
			}
			fmt.Printf("Deployed workflow %s\n", result.WorkflowID)
			fmt.Printf("URL: %s\n", result.WorkflowURL)
			if len(result.CredentialIDs) > 0 {
				fmt.Printf("Credentials: %v\n", result.CredentialIDs)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&clientID, "client", "", "client (tenant) identifier")
	cmd.Flags().StringVar(&agentID, "agent", "", "agent template identifier")
	cmd.Flags().StringVar(&workflowName, "name", "", "workflow name on the backend")
	cmd.Flags().StringVarP(&templateFile, "template", "t", "", "workflow template JSON file")
	cmd.Flags().StringVar(&credentialsFile, "credentials", "", "credential inputs JSON file")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("agent")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("template")

	return cmd
}

func readJSONObject(path string) (map[string]interface{}, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
