package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steward-sh/steward/internal/client"
)

func newProposalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proposals",
		Short: "Review pending automation proposals",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List pending proposals",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr(cmd))
			ps, err := c.Proposals(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, ps)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "approve PROPOSAL_ID",
		Short: "Approve a proposal, activating the rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr(cmd))
			if err := c.ResolveProposal(cmd.Context(), args[0], true); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "decline PROPOSAL_ID",
		Short: "Decline a proposal and start its pattern cooldown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr(cmd))
			if err := c.ResolveProposal(cmd.Context(), args[0], false); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	})

	return cmd
}
