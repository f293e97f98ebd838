package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"promopush/pkg/bootstrap"
	"promopush/pkg/migrations"
)

func (c *cli) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the subscribers_restaurants and subscribers_feedback schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withDatabase(cmd.Context(), migrations.Up)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations, one step by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("invalid steps %q", args[0])
				}
				steps = n
			}
			return c.withDatabase(cmd.Context(), func(db *sql.DB) error {
				return migrations.Down(db, steps)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withDatabase(cmd.Context(), func(db *sql.DB) error {
				version, dirty, err := migrations.Version(db)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
				return nil
			})
		},
	})

	return cmd
}

func (c *cli) withDatabase(ctx context.Context, fn func(db *sql.DB) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, log, flush, err := c.setup()
	if err != nil {
		return err
	}
	defer flush()

	db, err := bootstrap.NewDatabaseConnector(cfg, log).InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := fn(db); err != nil {
		log.ErrorwCtx(ctx, "migration failed", "error", err)
		return err
	}
	log.InfowCtx(ctx, "migration finished")
	return nil
}
