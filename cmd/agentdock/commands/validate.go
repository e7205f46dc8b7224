package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentdock/agentdock/pkg/config"
	"github.com/agentdock/agentdock/pkg/schema"
)

func newValidateCommand() *cobra.Command {
	var templateFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the settings file and optionally a template",
		Long: `Validate the settings file, and a workflow template if given.

Template validation checks that the document parses and that a
credential schema can be extracted from it.`,
		Example: `  # Validate settings only
  agentdock validate

  # Validate settings and a template
  agentdock validate --template bot.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Printf("Settings OK: backend %s, store %s\n",
				settings.Backend.BaseURL, settings.Store.Path)

			if templateFile == "" {
				return nil
			}
			template, err := readJSONObject(templateFile)
			if err != nil {
				return fmt.Errorf("read template: %w", err)
			}
			credSchema, err := schema.Extract(template)
			if err != nil {
				return fmt.Errorf("template invalid: %w", err)
			}
			fmt.Printf("Template OK: %d simple, %d special credential type(s)\n",
				len(credSchema.Simple), len(credSchema.Special))
			return nil
		},
	}

	cmd.Flags().StringVarP(&templateFile, "template", "t", "", "workflow template JSON file")

	return cmd
}
