package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/vidorder/config"
	"github.com/shashiranjanraj/vidorder/database/seeders"
	"github.com/shashiranjanraj/vidorder/internal/bootstrap"
	"github.com/shashiranjanraj/vidorder/pkg/migration"
)

var errNotSQL = errors.New("migrations apply to SQL drivers only; MongoDB indexes are created at boot")

// withStore opens the configured store for the duration of fn.
func withStore(ctx context.Context, fn func(a *bootstrap.App) error) error {
	a, err := bootstrap.StoresOnly(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())
	return fn(a)
}

// vidorder migrate
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run all pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(a *bootstrap.App) error {
			if a.SQL == nil {
				fmt.Printf("Nothing to migrate for the %s driver.\n", config.DatabaseDriver())
				return nil
			}
			applied, err := migration.New(a.SQL).Up()
			for _, name := range applied {
				fmt.Println("  migrated:", name)
			}
			if err == nil && len(applied) == 0 {
				fmt.Println("Nothing to migrate.")
			}
			return err
		})
	},
}

// vidorder migrate:rollback
var migrateRollbackCmd = &cobra.Command{
	Use:   "migrate:rollback",
	Short: "Rollback the last batch of migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(a *bootstrap.App) error {
			if a.SQL == nil {
				return errNotSQL
			}
			reverted, err := migration.New(a.SQL).Rollback()
			for _, name := range reverted {
				fmt.Println("  rolled back:", name)
			}
			return err
		})
	},
}

// vidorder migrate:status
var migrateStatusCmd = &cobra.Command{
	Use:   "migrate:status",
	Short: "Show the status of each migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(a *bootstrap.App) error {
			if a.SQL == nil {
				return errNotSQL
			}
			status, err := migration.New(a.SQL).Status()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "RAN\tBATCH\tMIGRATION")
			for _, s := range status {
				ran, batch := "No", "-"
				if s.Ran {
					ran, batch = "Yes", fmt.Sprint(s.Batch)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", ran, batch, s.Name)
			}
			return w.Flush()
		})
	},
}

// vidorder seed
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Run all database seeders",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(a *bootstrap.App) error {
			return seeders.RunAll(cmd.Context(), seeders.Stores{Users: a.Users, Orders: a.Orders})
		})
	},
}
