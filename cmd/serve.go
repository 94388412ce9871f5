package cmd

import "github.com/spf13/cobra"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the periodic trigger sweep",
	RunE:  run,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
