package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/openmerch/catalog-sync/database"
	"github.com/openmerch/catalog-sync/internal/config"
	"github.com/openmerch/catalog-sync/internal/db"
)

var (
	migrateConfigPath string

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Manage catalog database schema migrations",
	}

	migrateUpCmd = &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runMigration(func(m database.Migrator) error { return m.Up() })
		},
	}

	migrateDownCmd = &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runMigration(func(m database.Migrator) error { return m.Steps(-1) })
		},
	}

	migrateVersionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the current migration version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigration(func(m database.Migrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					if errors.Is(err, migrate.ErrNilVersion) {
						cmd.Println("no migrations applied")
						return nil
					}
					return err
				}
				cmd.Printf("version=%d dirty=%t\n", version, dirty)
				return nil
			})
		},
	}
)

func init() {
	migrateCmd.PersistentFlags().StringVar(&migrateConfigPath, "config", "", "Path to the configuration file (required)")
	if err := migrateCmd.MarkPersistentFlagRequired("config"); err != nil {
		panic(err)
	}

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
}

func runMigration(fn func(database.Migrator) error) error {
	cfg, err := config.Load(config.WithConfigPath(migrateConfigPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Database == nil {
		return fmt.Errorf("no database configured")
	}

	connString, err := db.ConnString(cfg.Database)
	if err != nil {
		return err
	}

	m, err := database.NewFromConnectionString(connString)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}

	if err := fn(m); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("Database schema already up to date")
			return nil
		}
		return err
	}
	slog.Info("Migration complete")
	return nil
}
