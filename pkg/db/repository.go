package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoLogPrefix = "db:repository"

// Repository provides database access for domain models and the resolution log.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// =========================================================================
// DOMAIN MODELS
// =========================================================================

// GetDomainModel finds a domain model by name. Returns nil, nil when absent.
func (r *Repository) GetDomainModel(ctx context.Context, name string) (*DomainModel, error) {
	slog.Debug(fmt.Sprintf("%s - GetDomainModel name=%s", repoLogPrefix, name))

	var m DomainModel
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, model, revision, created, modified, modified_by
		 FROM domain_models
		 WHERE name = $1
		 LIMIT 1`, name,
	).Scan(&m.ID, &m.Name, &m.Model, &m.Revision, &m.Created, &m.Modified, &m.ModifiedBy)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - GetDomainModel failed: %w", repoLogPrefix, err)
	}
	return &m, nil
}

// SaveDomainModel creates or replaces a named domain model, bumping its revision.
func (r *Repository) SaveDomainModel(ctx context.Context, params SaveDomainModelParams) (*DomainModel, error) {
	slog.Info(fmt.Sprintf("%s - SaveDomainModel name=%s", repoLogPrefix, params.Name))

	userID := params.UserID
	if userID == "" {
		userID = "system"
	}
	now := time.Now().UTC()

	var m DomainModel
	err := r.pool.QueryRow(ctx,
		`INSERT INTO domain_models (id, name, model, modified_by, created, modified)
		 VALUES ($1, $2, $3::jsonb, $4, $5, $5)
		 ON CONFLICT (name) DO UPDATE SET
		   model = EXCLUDED.model,
		   revision = domain_models.revision + 1,
		   modified = EXCLUDED.modified,
		   modified_by = EXCLUDED.modified_by
		 RETURNING id, name, model, revision, created, modified, modified_by`,
		uuid.NewString(), params.Name, params.Model, userID, now,
	).Scan(&m.ID, &m.Name, &m.Model, &m.Revision, &m.Created, &m.Modified, &m.ModifiedBy)
	if err != nil {
		return nil, fmt.Errorf("%s - SaveDomainModel failed: %w", repoLogPrefix, err)
	}
	return &m, nil
}

// SaveDomainModelParams holds parameters for SaveDomainModel.
type SaveDomainModelParams struct {
	Name   string
	Model  []byte
	UserID string
}

// =========================================================================
// RESOLUTION LOG
// =========================================================================

// RecordResolution appends a row to the resolution log. ID and Created are filled in when empty.
func (r *Repository) RecordResolution(ctx context.Context, rec *ResolutionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Created.IsZero() {
		rec.Created = time.Now().UTC()
	}
	if rec.UserID == "" {
		rec.UserID = "system"
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO resolution_log
		   (id, request_id, host, operation, address, outcome, failure_description, server_operations, user_id, created)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10)`,
		rec.ID, rec.RequestID, rec.Host, rec.Operation, rec.Address, rec.Outcome,
		rec.FailureDescription, rec.ServerOperations, rec.UserID, rec.Created)
	if err != nil {
		return fmt.Errorf("%s - RecordResolution failed: %w", repoLogPrefix, err)
	}
	return nil
}

// ListResolutions returns the newest resolution log rows for a host.
func (r *Repository) ListResolutions(ctx context.Context, host string, limit int) ([]ResolutionRecord, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, request_id, host, operation, address, outcome, failure_description,
		        server_operations, user_id, created
		 FROM resolution_log
		 WHERE host = $1
		 ORDER BY created DESC
		 LIMIT $2`, host, limit)
	if err != nil {
		return nil, fmt.Errorf("%s - ListResolutions failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []ResolutionRecord
	for rows.Next() {
		var rec ResolutionRecord
		if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.Host, &rec.Operation, &rec.Address, &rec.Outcome,
			&rec.FailureDescription, &rec.ServerOperations, &rec.UserID, &rec.Created); err != nil {
			return nil, fmt.Errorf("%s - ListResolutions scan failed: %w", repoLogPrefix, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
