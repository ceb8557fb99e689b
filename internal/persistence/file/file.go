// Package file implements the on-disk tier of the persistence fallback
// chain: a single JSON state document per data directory, written
// atomically (temp file, fsync, rename).
package file

import (
	"context"
	"encoding/json"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/judgehost/judgehost/internal/persistence"
)

const stateFileName = "state.json"

// Store is a single-document, on-disk implementation of persistence.Store.
type Store struct {
	mu   sync.Mutex
	dir  string
	path string
	docs map[persistence.Domain]map[string]persistence.Document
}

// Open loads (or initialises) the state document under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &Store{
		dir:  dir,
		path: filepath.Join(dir, stateFileName),
		docs: make(map[persistence.Domain]map[string]persistence.Document),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var flat map[persistence.Domain][]persistence.Document
	if err := json.Unmarshal(raw, &flat); err != nil {
		return err
	}
	for domain, docs := range flat {
		byID := make(map[string]persistence.Document, len(docs))
		for _, d := range docs {
			id, _ := d["id"].(string)
			byID[id] = d
		}
		s.docs[domain] = byID
	}
	return nil
}

// persist serializes the full document atomically: write to a temp file in
// the same directory, fsync, then rename over the target path.
func (s *Store) persist() error {
	flat := make(map[persistence.Domain][]persistence.Document, len(s.docs))
	for domain, byID := range s.docs {
		list := make([]persistence.Document, 0, len(byID))
		for _, d := range byID {
			list = append(list, d)
		}
		flat[domain] = list
	}
	raw, err := json.MarshalIndent(flat, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, "state-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}

func (s *Store) Put(_ context.Context, domain persistence.Domain, id string, doc persistence.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docs[domain] == nil {
		s.docs[domain] = make(map[string]persistence.Document)
	}
	s.docs[domain][id] = maps.Clone(doc)
	return s.persist()
}

func (s *Store) Get(_ context.Context, domain persistence.Domain, id string) (persistence.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[domain][id]
	if !ok {
		return nil, nil
	}
	return maps.Clone(doc), nil
}

func (s *Store) Delete(_ context.Context, domain persistence.Domain, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs[domain], id)
	return s.persist()
}

func (s *Store) List(ctx context.Context, domain persistence.Domain) ([]persistence.Document, error) {
	return s.Search(ctx, domain, nil)
}

func (s *Store) Search(_ context.Context, domain persistence.Domain, predicate func(persistence.Document) bool) ([]persistence.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []persistence.Document
	for _, d := range s.docs[domain] {
		if predicate == nil || predicate(d) {
			out = append(out, maps.Clone(d))
		}
	}
	return out, nil
}

func (s *Store) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist()
}
