package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/price-tracker/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/database"
)

func newMigrateCommand(opts *globalOptions) *cobra.Command {
	var dir string

	migrator := func() (*database.Migrator, error) {
		cfg, err := opts.loadConfig()
		if err != nil {
			return nil, err
		}
		log, err := bootstrap.CreateLogger(cfg, opts.version)
		if err != nil {
			return nil, err
		}
		return database.NewMigrator(dir, cfg.Database.MigrateURL(), log), nil
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", database.DefaultMigrationsDir, "migrations directory")

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(*cobra.Command, []string) error {
			m, err := migrator()
			if err != nil {
				return err
			}
			return m.Up()
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(*cobra.Command, []string) error {
			m, err := migrator()
			if err != nil {
				return err
			}
			return m.Down(steps)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := migrator()
			if err != nil {
				return err
			}
			v, dirty, err := m.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", v, dirty)
			return nil
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}
