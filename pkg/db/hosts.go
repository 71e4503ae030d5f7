package db

import (
	"context"
	"fmt"
	"log/slog"
)

const hostsLogPrefix = "db:hosts"

// ListRemoteHosts returns all remote hosts ordered by name.
func (r *Repository) ListRemoteHosts(ctx context.Context) ([]RemoteHost, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT name, subject, created, modified
		 FROM remote_hosts
		 ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("%s - ListRemoteHosts failed: %w", hostsLogPrefix, err)
	}
	defer rows.Close()

	var hosts []RemoteHost
	for rows.Next() {
		var h RemoteHost
		if err := rows.Scan(&h.Name, &h.Subject, &h.Created, &h.Modified); err != nil {
			return nil, fmt.Errorf("%s - ListRemoteHosts scan failed: %w", hostsLogPrefix, err)
		}
		hosts = append(hosts, h)
	}
	return hosts, rows.Err()
}

// UpsertRemoteHost registers a remote host. A nil subject means the default host subject.
func (r *Repository) UpsertRemoteHost(ctx context.Context, name string, subject *string) error {
	slog.Info(fmt.Sprintf("%s - UpsertRemoteHost name=%s", hostsLogPrefix, name))

	_, err := r.pool.Exec(ctx,
		`INSERT INTO remote_hosts (name, subject)
		 VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET
		   subject = EXCLUDED.subject,
		   modified = NOW()`, name, subject)
	if err != nil {
		return fmt.Errorf("%s - UpsertRemoteHost failed: %w", hostsLogPrefix, err)
	}
	return nil
}
