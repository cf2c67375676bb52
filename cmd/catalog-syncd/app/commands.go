// Package app defines the catalog-syncd command tree.
package app

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	debug bool

	rootCmd = &cobra.Command{
		Use:   "catalog-syncd",
		Short: "Storefront catalog reconciliation service",
		Long: `catalog-syncd accepts product sync submissions, reconciles them
against the authoritative inventory source and writes the result to the
storefront catalog through an asynchronous batch pipeline.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			configureLogging()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func configureLogging() {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
