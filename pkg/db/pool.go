// Package db provides database connection pooling via pgx.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const logPrefix = "db:pool"

// PoolOptions tunes the connection pool. Zero values keep the defaults.
type PoolOptions struct {
	MaxConns int32
	MinConns int32
	// ApplicationName is reported to Postgres unless the URL already sets application_name.
	ApplicationName string
}

// Pool defaults.
const (
	DefaultMaxConns int32 = 10
	DefaultMinConns int32 = 1
)

// NewPool creates a pgx connection pool and checks the database answers.
func NewPool(ctx context.Context, databaseURL string, opts PoolOptions) (*pgxpool.Pool, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to database", logPrefix))

	config, err := poolConfig(databaseURL, opts)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create pool: %w", logPrefix, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s - failed to ping database: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Database connection established (max %d conns)", logPrefix, config.MaxConns))
	return pool, nil
}

func poolConfig(databaseURL string, opts PoolOptions) (*pgxpool.Config, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("%s - database URL is empty", logPrefix)
	}
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to parse database URL: %w", logPrefix, err)
	}

	config.MaxConns = DefaultMaxConns
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}
	config.MinConns = DefaultMinConns
	if opts.MinConns > 0 {
		config.MinConns = opts.MinConns
	}
	if config.MinConns > config.MaxConns {
		return nil, fmt.Errorf("%s - min conns %d exceeds max conns %d", logPrefix, config.MinConns, config.MaxConns)
	}

	params := config.ConnConfig.RuntimeParams
	if opts.ApplicationName != "" && params["application_name"] == "" {
		params["application_name"] = opts.ApplicationName
	}
	return config, nil
}

// RunMigrations applies SQL migration files in order.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrationFiles []string) error {
	slog.Info(fmt.Sprintf("%s - Running %d migrations", logPrefix, len(migrationFiles)))

	for _, sql := range migrationFiles {
		if _, err := pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("%s - migration failed: %w", logPrefix, err)
		}
	}

	slog.Info(fmt.Sprintf("%s - Migrations complete", logPrefix))
	return nil
}

// SchemaTables are the tables created by the migrations.
var SchemaTables = []string{"domain_models", "remote_hosts", "resolution_log"}

// SchemaStatus reports which controller tables exist.
type SchemaStatus struct {
	Tables         map[string]bool
	MigrationFiles int
	MigrationPath  string
}

// Applied reports whether every controller table exists.
func (s *SchemaStatus) Applied() bool {
	for _, name := range SchemaTables {
		if !s.Tables[name] {
			return false
		}
	}
	return true
}

// Missing lists the controller tables that do not exist.
func (s *SchemaStatus) Missing() []string {
	var out []string
	for _, name := range SchemaTables {
		if !s.Tables[name] {
			out = append(out, name)
		}
	}
	return out
}

func (s *SchemaStatus) String() string {
	if s.Applied() {
		return fmt.Sprintf("Migration status: applied (%d migration files in %s)", s.MigrationFiles, s.MigrationPath)
	}
	if len(s.Missing()) == len(SchemaTables) {
		return fmt.Sprintf("Migration status: not applied (run 'domain-controller migrate up'). %d migration files in %s", s.MigrationFiles, s.MigrationPath)
	}
	return fmt.Sprintf("Migration status: partial, missing %s (run 'domain-controller migrate up'). %d migration files in %s",
		strings.Join(s.Missing(), ", "), s.MigrationFiles, s.MigrationPath)
}

// MigrationStatus checks which controller tables exist in the public schema.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, migrationPath string) (*SchemaStatus, error) {
	const statusLogPrefix = "db:MigrationStatus"

	files, err := LoadMigrationFiles(migrationPath)
	if err != nil {
		return nil, fmt.Errorf("%s - load migration list: %w", statusLogPrefix, err)
	}

	rows, err := pool.Query(ctx,
		`SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' AND table_name = ANY($1)`,
		SchemaTables)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to check schema: %w", statusLogPrefix, err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read schema: %w", statusLogPrefix, err)
	}

	status := &SchemaStatus{Tables: map[string]bool{}, MigrationFiles: len(files), MigrationPath: migrationPath}
	for _, name := range names {
		status.Tables[name] = true
	}
	return status, nil
}

// MigrationDown applies the newest *.down.sql file in migrationPath.
func MigrationDown(ctx context.Context, pool *pgxpool.Pool, migrationPath string) error {
	downs, err := LoadDownMigrationFiles(migrationPath)
	if err != nil {
		return err
	}
	if len(downs) == 0 {
		fmt.Println("Migration down: no down migrations found. Use a database backup to roll back.")
		return nil
	}
	if _, err := pool.Exec(ctx, downs[0]); err != nil {
		return fmt.Errorf("%s - down migration failed: %w", logPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Rolled back latest migration", logPrefix))
	return nil
}
