package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearDomainData truncates the resolution log, remote hosts, and stored domain models.
// Schema is preserved; only data is removed.
func ClearDomainData(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing domain controller tables", clearLogPrefix))

	_, err := pool.Exec(ctx, `TRUNCATE TABLE
		resolution_log,
		remote_hosts,
		domain_models
		CASCADE`)
	if err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Domain controller tables cleared", clearLogPrefix))
	return nil
}
