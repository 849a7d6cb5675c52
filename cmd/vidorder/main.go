package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/vidorder/internal/bootstrap"

	// Register migrations and seeders from their init() funcs.
	_ "github.com/shashiranjanraj/vidorder/database/migrations"
	_ "github.com/shashiranjanraj/vidorder/database/seeders"
)

// flushLogs closes the Mongo log sink, if any, before exit.
var flushLogs = func(context.Context) error { return nil }

func main() {
	err := rootCmd.Execute()
	_ = flushLogs(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "vidorder",
	Short:         "VidOrder video-order backend",
	Long:          "VidOrder serves the order, payment and admin API and runs its background workers.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		flush, err := bootstrap.Logging(cmd.Context(), os.Stdout)
		if err != nil {
			return err
		}
		flushLogs = flush
		return nil
	},
}

func init() {
	// Server
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(routeListCmd)

	// Database
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(migrateRollbackCmd)
	rootCmd.AddCommand(migrateStatusCmd)
	rootCmd.AddCommand(seedCmd)

	// Workers
	rootCmd.AddCommand(queueWorkCmd)
	rootCmd.AddCommand(scheduleRunCmd)
	rootCmd.AddCommand(reconcileCmd)
}
