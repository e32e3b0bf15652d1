// Package memstore is an in-process Store implementation used by the
// pipeline and orchestrator test suites so stage tests don't require a
// running DefraDB. Grounded in the teacher's hand-written provider
// fakes (internal/providers/mock.go): a small, lock-protected map
// standing in for the real collaborator, round-tripping documents
// through encoding/json the way the real store round-trips them
// through GraphQL.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/avantbook/distill/internal/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu          sync.Mutex
	collections map[string]map[string]map[string]any
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{collections: make(map[string]map[string]map[string]any)}
}

func (s *Store) coll(name string) map[string]map[string]any {
	c, ok := s.collections[name]
	if !ok {
		c = make(map[string]map[string]any)
		s.collections[name] = c
	}
	return c
}

func matches(doc map[string]any, filter store.Filter) bool {
	for k, v := range filter {
		if doc[k] != v {
			return false
		}
	}
	return true
}

// Find implements store.Store.
func (s *Store) Find(ctx context.Context, collection string, q store.Query, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.coll(collection)
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var matched []map[string]any
	for _, id := range ids {
		doc := c[id]
		if matches(doc, q.Filter) {
			matched = append(matched, doc)
		}
	}

	if q.Sort != nil {
		field := q.Sort.Field
		desc := q.Sort.Descending
		sort.SliceStable(matched, func(i, j int) bool {
			vi, vj := matched[i][field], matched[j][field]
			less := fmt.Sprint(vi) < fmt.Sprint(vj)
			if ni, ok := vi.(int); ok {
				if nj, ok := vj.(int); ok {
					less = ni < nj
				}
			}
			if desc {
				return !less
			}
			return less
		})
	}

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	return decodeAll(matched, out)
}

// FindOne implements store.Store.
func (s *Store) FindOne(ctx context.Context, collection, id string, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.coll(collection)
	doc, ok := c[id]
	if !ok {
		return store.ErrNotFound
	}
	return decodeOne(doc, out)
}

// InsertMany implements store.Store.
func (s *Store) InsertMany(ctx context.Context, collection string, docs []map[string]any) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.coll(collection)
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		id, _ := d["id"].(string)
		if id == "" {
			id = uuid.New().String()
		}
		clone := make(map[string]any, len(d)+1)
		for k, v := range d {
			clone[k] = v
		}
		clone["id"] = id
		c[id] = clone
		ids = append(ids, id)
	}
	return ids, nil
}

// UpdateOne implements store.Store.
func (s *Store) UpdateOne(ctx context.Context, collection, id string, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.coll(collection)
	doc, ok := c[id]
	if !ok {
		return store.ErrNotFound
	}
	for k, v := range patch {
		doc[k] = v
	}
	return nil
}

// DeleteMany implements store.Store.
func (s *Store) DeleteMany(ctx context.Context, collection string, filter store.Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.coll(collection)
	n := 0
	for id, doc := range c {
		if matches(doc, filter) {
			delete(c, id)
			n++
		}
	}
	return n, nil
}

func decodeAll(docs []map[string]any, out any) error {
	raw, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("memstore: marshal: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("memstore: unmarshal: %w", err)
	}
	return nil
}

func decodeOne(doc map[string]any, out any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("memstore: marshal: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("memstore: unmarshal: %w", err)
	}
	return nil
}
