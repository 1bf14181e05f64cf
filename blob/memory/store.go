// Package memory provides an in-memory blob store for testing.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/docport/transit/blob"
)

// Store implements blob.Store with in-memory storage. Thread-safe.
// Not suitable for production.
type Store struct {
	blobs sync.Map // map[string][]byte
}

var _ blob.Store = (*Store)(nil)

// New creates a new in-memory blob store.
func New() *Store {
	return &Store{}
}

// Upload stores the content under a generated mem:// location.
func (s *Store) Upload(_ context.Context, name, _ string, content io.Reader) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	location := fmt.Sprintf("mem://%s/%s", uuid.New().String(), name)
	s.blobs.Store(location, data)
	return location, nil
}

// Load returns a reader for the blob content.
func (s *Store) Load(_ context.Context, location string) (io.ReadCloser, error) {
	v, ok := s.blobs.Load(location)
	if !ok {
		return nil, blob.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(v.([]byte))), nil
}

// Delete removes the blob.
func (s *Store) Delete(_ context.Context, location string) error {
	if _, loaded := s.blobs.LoadAndDelete(location); !loaded {
		return blob.ErrNotFound
	}
	return nil
}
