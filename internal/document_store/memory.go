package document_store

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]map[string]any),
	}
}

// Get returns the document with the given ID, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields, ok := s.collections[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{ID: id, Fields: copyFields(fields)}, nil
}

// Query returns documents matching the spec.
func (s *MemoryStore) Query(ctx context.Context, collection string, spec QuerySpec) ([]Document, error) {
	s.mu.RLock()
	docs := make([]Document, 0)
	for id, fields := range s.collections[collection] {
		if matchesFilters(fields, spec.Filters) {
			docs = append(docs, Document{ID: id, Fields: copyFields(fields)})
		}
	}
	s.mu.RUnlock()

	sortDocuments(docs, spec.OrderBy)
	if spec.Limit > 0 && len(docs) > spec.Limit {
		docs = docs[:spec.Limit]
	}
	return docs, nil
}

// Set upserts a document atomically.
func (s *MemoryStore) Set(ctx context.Context, collection, id string, value any, merge bool) error {
	fields, err := Encode(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]map[string]any)
	}
	if merge {
		existing := s.collections[collection][id]
		s.collections[collection][id] = mergeFields(copyFields(existing), fields)
		return nil
	}
	s.collections[collection][id] = fields
	return nil
}

// Delete removes a document; missing documents are not an error.
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], id)
	return nil
}

func copyFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
