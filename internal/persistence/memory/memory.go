// Package memory implements the ephemeral, in-process tier of the
// persistence fallback chain.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/judgehost/judgehost/internal/persistence"
)

// Store is an in-memory implementation of persistence.Store. The zero value
// is not usable; construct with New.
type Store struct {
	mu   sync.RWMutex
	data map[persistence.Domain]map[string]persistence.Document
}

// New constructs an empty memory store.
func New() *Store {
	return &Store{data: make(map[persistence.Domain]map[string]persistence.Document)}
}

func (s *Store) Put(ctx context.Context, domain persistence.Domain, id string, doc persistence.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[domain] == nil {
		s.data[domain] = make(map[string]persistence.Document)
	}
	s.data[domain][id] = maps.Clone(doc)
	return nil
}

func (s *Store) Get(ctx context.Context, domain persistence.Domain, id string) (persistence.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.data[domain][id]
	if !ok {
		return nil, nil
	}
	return maps.Clone(doc), nil
}

func (s *Store) Delete(ctx context.Context, domain persistence.Domain, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[domain], id)
	return nil
}

func (s *Store) List(ctx context.Context, domain persistence.Domain) ([]persistence.Document, error) {
	return s.Search(ctx, domain, nil)
}

func (s *Store) Search(ctx context.Context, domain persistence.Domain, predicate func(persistence.Document) bool) ([]persistence.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []persistence.Document
	for _, doc := range s.data[domain] {
		if predicate == nil || predicate(doc) {
			out = append(out, maps.Clone(doc))
		}
	}
	return out, nil
}

func (s *Store) Close(context.Context) error { return nil }
