package main

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/morezero/domain-controller/internal/config"
	"github.com/morezero/domain-controller/internal/server"
	"github.com/morezero/domain-controller/pkg/db"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the controller (COMMS, HTTP, domain operations); the default command",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	return server.Run()
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Run database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withPool(cmd.Context(), func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
			migrationSQL, err := db.LoadMigrationFiles(cfg.MigrationPath)
			if err != nil {
				return fmt.Errorf("load migrations: %w", err)
			}
			if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the newest migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withPool(cmd.Context(), func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
			return db.MigrationDown(ctx, pool, cfg.MigrationPath)
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withPool(cmd.Context(), func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
			status, err := db.MigrationStatus(ctx, pool, cfg.MigrationPath)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), status)
			return nil
		})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Truncate domain controller tables; schema is preserved",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withPool(cmd.Context(), func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
			if err := db.ClearDomainData(ctx, pool); err != nil {
				return fmt.Errorf("clear domain data: %w", err)
			}
			return nil
		})
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed [file]",
	Short: "Store a domain model file in the database (default DOMAIN_MODEL_FILE)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPool(cmd.Context(), func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
			path := cfg.DomainModelFile
			if len(args) > 0 {
				path = args[0]
			}
			if err := db.SeedDomainModel(ctx, db.NewRepository(pool), cfg.DomainModelName, path, cfg.LocalHostName); err != nil {
				return fmt.Errorf("seed domain model: %w", err)
			}
			return nil
		})
	},
}

var ensureDBCmd = &cobra.Command{
	Use:   "ensure-db [name]",
	Short: "Create a database on the DATABASE_URL host if missing (default name: domain_controller_test)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dbName := "domain_controller_test"
		if len(args) > 0 && args[0] != "" {
			dbName = args[0]
		}
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cfg.ValidateForDB(); err != nil {
			return err
		}
		targetURL, err := withDatabaseName(cfg.DatabaseURL, dbName)
		if err != nil {
			return err
		}
		name, err := db.EnsureDatabase(contextOf(cmd), targetURL)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Database %q is ready.\n", name)
		return nil
	},
}

// withDatabaseName replaces the database path of databaseURL; the query is kept.
func withDatabaseName(databaseURL, dbName string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	u.Path = "/" + dbName
	return u.String(), nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// withPool loads and validates DB config, opens a pool and runs fn.
func withPool(ctx context.Context, fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	server.SetupLogging(cfg.LogLevel)
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.PoolOptions())
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}
