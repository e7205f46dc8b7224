package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newExtractCommand() *cobra.Command {
	var templateFile string

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract the credential schema from a workflow template",
		Long: `Extract the credential requirements of a workflow template.

The schema lists every credential type the template references, the
fields a caller must supply for each, and which references use
header/basic/custom HTTP auth types that need per-instance handling.`,
		Example: `  # Print the schema for a template
  agentdock extract --template bot.json

  # Machine-readable output
  agentdock extract --template bot.json --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Root().Version)
			if err != nil {
				return err
			}

			template, err := readJSONObject(templateFile)
			if err != nil {
				return fmt.Errorf("read template: %w", err)
			}

			credSchema, err := rt.extractor.Extract(template)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(credSchema)
			}
			fmt.Printf("Credential types: %d simple, %d special\n",
				len(credSchema.Simple), len(credSchema.Special))
			for _, c := range credSchema.Simple {
				fmt.Printf("  %s (%s): %d field(s)\n", c.DisplayName, c.Type, len(c.Fields))
			}
			for _, c := range credSchema.Special {
				fmt.Printf("  %s (%s, keyword %q)\n", c.DisplayName, c.Type, c.Keyword)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&templateFile, "template", "t", "", "workflow template JSON file")
	_ = cmd.MarkFlagRequired("template")

	return cmd
}
