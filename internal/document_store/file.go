package document_store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
)

// FileStore implements Store on a BlobProvider, one JSON blob per document
// under "<collection>/<id>.json". Queries list the collection prefix and
// filter in memory, which matches the bounded per-user document sets this
// subsystem works with.
type FileStore struct {
	blobs BlobProvider

	// Upserts with merge read-then-write a single blob; serialize per store.
	mu sync.Mutex
}

// NewFileStore creates a FileStore backed by the given provider.
func NewFileStore(blobs BlobProvider) *FileStore {
	return &FileStore{blobs: blobs}
}

// Get returns the document with the given ID, or ErrNotFound.
func (s *FileStore) Get(ctx context.Context, collection, id string) (Document, error) {
	data, err := s.blobs.Read(ctx, docPath(collection, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return Document{}, fmt.Errorf("%w: %s: %v", ErrDecode, id, err)
	}
	return Document{ID: id, Fields: fields}, nil
}

// Query lists the collection and filters documents in memory.
func (s *FileStore) Query(ctx context.Context, collection string, spec QuerySpec) ([]Document, error) {
	paths, err := s.blobs.List(ctx, collection+"/")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	docs := make([]Document, 0, len(paths))
	for _, p := range paths {
		id := idFromPath(collection, p)
		if id == "" {
			continue
		}
		doc, err := s.Get(ctx, collection, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue // deleted between list and read
			}
			return nil, err
		}
		if matchesFilters(doc.Fields, spec.Filters) {
			docs = append(docs, doc)
		}
	}

	sortDocuments(docs, spec.OrderBy)
	if spec.Limit > 0 && len(docs) > spec.Limit {
		docs = docs[:spec.Limit]
	}
	return docs, nil
}

// Set upserts a document as a single blob write.
func (s *FileStore) Set(ctx context.Context, collection, id string, value any, merge bool) error {
	fields, err := Encode(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if merge {
		existing, err := s.Get(ctx, collection, id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		fields = mergeFields(existing.Fields, fields)
	}

	data, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := s.blobs.Write(ctx, docPath(collection, id), data); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Delete removes a document blob.
func (s *FileStore) Delete(ctx context.Context, collection, id string) error {
	if err := s.blobs.Delete(ctx, docPath(collection, id)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func docPath(collection, id string) string {
	return path.Join(collection, id+".json")
}

func idFromPath(collection, p string) string {
	trimmed := strings.TrimPrefix(p, collection+"/")
	if trimmed == p || !strings.HasSuffix(trimmed, ".json") {
		return ""
	}
	return strings.TrimSuffix(trimmed, ".json")
}
