// Package memory is an in-process DocumentStore used for tests and demos.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JonMunkholm/archive/internal/schema"
	"github.com/JonMunkholm/archive/internal/store"
)

// Store keeps collections in maps guarded by a single mutex.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]schema.Record
	now         func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		collections: make(map[string]map[string]schema.Record),
		now:         time.Now,
	}
}

// WithClock replaces the time source. Useful for deterministic ordering in tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func key(databaseID, collectionID string) string {
	return databaseID + "/" + collectionID
}

func (s *Store) Name() string { return "memory" }

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) ListDocuments(ctx context.Context, databaseID, collectionID string, queries []string) (store.Page, error) {
	if err := ctx.Err(); err != nil {
		return store.Page{}, err
	}
	plan, err := store.BuildPlan(queries)
	if err != nil {
		return store.Page{}, err
	}

	s.mu.RLock()
	coll := s.collections[key(databaseID, collectionID)]
	records := make([]schema.Record, 0, len(coll))
	for _, r := range coll {
		records = append(records, r)
	}
	s.mu.RUnlock()

	return plan.Apply(records), nil
}

func (s *Store) GetDocument(ctx context.Context, databaseID, collectionID, id string) (schema.Record, error) {
	if err := ctx.Err(); err != nil {
		return schema.Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.collections[key(databaseID, collectionID)][id]
	if !ok {
		return schema.Record{}, fmt.Errorf("get %s: %w", id, store.ErrNotFound)
	}
	return r, nil
}

func (s *Store) CreateDocument(ctx context.Context, databaseID, collectionID, id string, fields schema.Fields) (schema.Record, error) {
	if err := ctx.Err(); err != nil {
		return schema.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(databaseID, collectionID)
	coll, ok := s.collections[k]
	if !ok {
		coll = make(map[string]schema.Record)
		s.collections[k] = coll
	}
	if _, exists := coll[id]; exists {
		return schema.Record{}, fmt.Errorf("create %s: duplicate key", id)
	}

	now := s.now().UTC()
	r := schema.Record{
		Meta: schema.Meta{
			ID:           id,
			Permissions:  append([]string(nil), store.DefaultPermissions...),
			CreatedAt:    now,
			UpdatedAt:    now,
			DatabaseID:   databaseID,
			CollectionID: collectionID,
		},
		Fields: fields,
	}
	coll[id] = r
	return r, nil
}

func (s *Store) UpdateDocument(ctx context.Context, databaseID, collectionID, id string, fields schema.Fields) (schema.Record, error) {
	if err := ctx.Err(); err != nil {
		return schema.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collections[key(databaseID, collectionID)]
	r, ok := coll[id]
	if !ok {
		return schema.Record{}, fmt.Errorf("update %s: %w", id, store.ErrNotFound)
	}
	r.Fields = fields
	r.UpdatedAt = s.now().UTC()
	coll[id] = r
	return r, nil
}

func (s *Store) DeleteDocument(ctx context.Context, databaseID, collectionID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collections[key(databaseID, collectionID)]
	if _, ok := coll[id]; !ok {
		return fmt.Errorf("delete %s: %w", id, store.ErrNotFound)
	}
	delete(coll, id)
	return nil
}

// Len returns the number of documents in a collection.
func (s *Store) Len(databaseID, collectionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[key(databaseID, collectionID)])
}
