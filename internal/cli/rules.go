package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steward-sh/steward/internal/client"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and manage automation rules",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all automation rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr(cmd))
			rs, err := c.Rules(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, rs)
		},
	})

	for _, action := range []string{"activate", "pause", "resume", "revoke"} {
		action := action
		cmd.AddCommand(&cobra.Command{
			Use:   action + " RULE_ID",
			Short: fmt.Sprintf("%s a rule", capitalize(action)),
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c := client.New(serverAddr(cmd))
				if err := c.RuleAction(cmd.Context(), args[0], action); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return nil
			},
		})
	}

	return cmd
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
