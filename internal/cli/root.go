// Package cli wires the deltacar-server commands. Running the binary with
// no subcommand starts the HTTP server.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "deltacar-server",
	Short: "Delta car storefront backend",
	Long: `Serves the Delta car storefront API: service catalog, customer orders
and access tokens.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

// Execute runs the command selected by the process arguments.
func Execute() error {
	return rootCmd.Execute()
}
