package cli

import (
	"github.com/spf13/cobra"

	"deltacar/server/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Starts the HTTP API. Configuration comes from the environment, with a
.env file in the working directory loaded first if present.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	return app.Run()
}
