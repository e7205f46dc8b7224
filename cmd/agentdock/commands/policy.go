package commands

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/agentdock/agentdock/pkg/policy"
)

func newPolicyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect admission policies",
	}

	cmd.AddCommand(newPolicyListCommand())

	return cmd
}

func newPolicyListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the admission policies applied to deployments",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := policy.NewEngine(log.Logger)
			if err != nil {
				return err
			}

			policies := eng.ListPolicies()
			if jsonOutput {
				return printJSON(policies)
			}
			for _, p := range policies {
				state := "enabled"
				if !p.Enabled {
					state = "disabled"
				}
				fmt.Printf("%s [%s, %s]\n", p.Name, p.Severity, state)
				fmt.Printf("  %s\n", p.Description)
				if len(p.Tags) > 0 {
					fmt.Printf("  tags: %s\n", strings.Join(p.Tags, ", "))
				}
			}
			return nil
		},
	}
}
