package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/morezero/domain-controller/pkg/model"
)

const pgStoreLogPrefix = "db:pg_store"

// DomainModelRepository is the subset of Repository used by PgStore.
type DomainModelRepository interface {
	GetDomainModel(ctx context.Context, name string) (*DomainModel, error)
	SaveDomainModel(ctx context.Context, params SaveDomainModelParams) (*DomainModel, error)
}

// PgStore is a model.Store backed by one named row of domain_models.
type PgStore struct {
	repo DomainModelRepository
	name string
}

var _ model.Store = (*PgStore)(nil)

// NewPgStore creates a PgStore for the named domain model.
func NewPgStore(repo DomainModelRepository, name string) *PgStore {
	return &PgStore{repo: repo, name: name}
}

// Load returns the stored model, or an empty model when none has been saved yet.
func (s *PgStore) Load(ctx context.Context) (model.Node, error) {
	row, err := s.repo.GetDomainModel(ctx, s.name)
	if err != nil {
		return nil, err
	}
	if row == nil || len(row.Model) == 0 {
		return model.Node{}, nil
	}
	var node model.Node
	if err := json.Unmarshal(row.Model, &node); err != nil {
		return nil, fmt.Errorf("%s - domain model %q is not a JSON object: %w", pgStoreLogPrefix, s.name, err)
	}
	if node == nil {
		node = model.Node{}
	}
	return node, nil
}

// Save replaces the stored model.
func (s *PgStore) Save(ctx context.Context, node model.Node) error {
	if node == nil {
		return fmt.Errorf("%s - cannot save a nil domain model", pgStoreLogPrefix)
	}
	data, err := model.Canonical(node)
	if err != nil {
		return fmt.Errorf("%s - failed to encode domain model: %w", pgStoreLogPrefix, err)
	}
	_, err = s.repo.SaveDomainModel(ctx, SaveDomainModelParams{Name: s.name, Model: data})
	return err
}
