package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/domain-controller/pkg/model"
)

const seedLogPrefix = "db:seed"

// SeedDomainModel loads a YAML or JSON domain model file and stores it under name.
// Remote hosts found under the model's host children other than localHost are registered
// in remote_hosts.
func SeedDomainModel(ctx context.Context, repo *Repository, name, path, localHost string) error {
	slog.Info(fmt.Sprintf("%s - seeding %q from %s", seedLogPrefix, name, path))

	node, err := model.NewFileStore(path).Load(ctx)
	if err != nil {
		return fmt.Errorf("%s - load domain model: %w", seedLogPrefix, err)
	}
	if len(node) == 0 {
		slog.Info(fmt.Sprintf("%s - %s is empty, nothing to seed", seedLogPrefix, path))
		return nil
	}

	if err := NewPgStore(repo, name).Save(ctx, node); err != nil {
		return fmt.Errorf("%s - save domain model: %w", seedLogPrefix, err)
	}

	for _, host := range RemoteHostNames(node, localHost) {
		if err := repo.UpsertRemoteHost(ctx, host, nil); err != nil {
			return fmt.Errorf("%s - register remote host %s: %w", seedLogPrefix, host, err)
		}
	}
	return nil
}

// RemoteHostNames lists the hosts of a domain model other than localHost.
func RemoteHostNames(node model.Node, localHost string) []string {
	hosts, ok := model.Child(node, "host")
	if !ok {
		return nil
	}
	var out []string
	for _, name := range model.Keys(hosts) {
		if name != localHost {
			out = append(out, name)
		}
	}
	return out
}
