package cli

import (
	"github.com/spf13/cobra"

	"github.com/steward-sh/steward/internal/client"
)

func newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show rule and automation activity summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr(cmd))
			s, err := c.Summary(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, s)
		},
	}
}

func newDecisionsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "decisions",
		Short: "Show recent decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr(cmd))
			recs, err := c.RecentDecisions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, recs)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of decisions to show")
	return cmd
}
