package model

import (
	"context"
	"fmt"
	"sync"
)

// Store loads and saves the domain model.
type Store interface {
	Load(ctx context.Context) (Node, error)
	Save(ctx context.Context, root Node) error
}

// MemoryStore keeps the domain model in memory (for tests and offline resolution).
type MemoryStore struct {
	mu   sync.RWMutex
	root Node
}

// NewMemoryStore creates a MemoryStore holding a copy of root.
func NewMemoryStore(root Node) *MemoryStore {
	return &MemoryStore{root: Clone(root)}
}

// Load returns a copy of the stored model.
func (s *MemoryStore) Load(_ context.Context) (Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.root == nil {
		return Node{}, nil
	}
	return Clone(s.root), nil
}

// Save replaces the stored model.
func (s *MemoryStore) Save(_ context.Context, root Node) error {
	if root == nil {
		return fmt.Errorf("%s - cannot save a nil model", logPrefix)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root = Clone(root)
	return nil
}
