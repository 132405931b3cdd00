// Package cli implements the steward command tree.
package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func NewRoot(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "steward",
		Short:         "steward: decision-authorization learning engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = version
	cmd.SetVersionTemplate("steward {{.Version}}\n")

	cmd.PersistentFlags().String("server", getenvDefault("STEWARD_SERVER", "http://127.0.0.1:8385"), "steward server base URL")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSummaryCmd())
	cmd.AddCommand(newRulesCmd())
	cmd.AddCommand(newProposalsCmd())
	cmd.AddCommand(newDecisionsCmd())

	return cmd
}

func serverAddr(cmd *cobra.Command) string {
	addr, _ := cmd.Root().PersistentFlags().GetString("server")
	if addr == "" {
		addr = "http://127.0.0.1:8385"
	}
	return addr
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
