package cached

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/docport/transit/blob"
	"github.com/docport/transit/blob/memory"
)

// countingStore wraps the in-memory store and counts backend loads.
type countingStore struct {
	*memory.Store
	mu    sync.Mutex
	loads int
}

func (c *countingStore) Load(ctx context.Context, location string) (io.ReadCloser, error) {
	c.mu.Lock()
	c.loads++
	c.mu.Unlock()
	return c.Store.Load(ctx, location)
}

func (c *countingStore) loadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads
}

func newCachedStore(t *testing.T, backend blob.Store) *Store {
	t.Helper()
	s, err := New(backend, WithCacheDir(t.TempDir()))
	if err != nil {
		t.Fatalf("new cached store failed: %v", err)
	}
	return s
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return string(b)
}

func TestCacheHit(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{Store: memory.New()}
	s := newCachedStore(t, backend)

	location, err := s.Upload(ctx, "invoice.xml", "application/xml", strings.NewReader("<Invoice/>"))
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	// First load populates the cache.
	rc, err := s.Load(ctx, location)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := readAll(t, rc); got != "<Invoice/>" {
		t.Fatalf("unexpected content: %q", got)
	}
	if backend.loadCount() != 1 {
		t.Fatalf("expected 1 backend load, got %d", backend.loadCount())
	}

	// Second load is served from disk.
	rc, err = s.Load(ctx, location)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := readAll(t, rc); got != "<Invoice/>" {
		t.Fatalf("unexpected cached content: %q", got)
	}
	if backend.loadCount() != 1 {
		t.Errorf("expected cache hit, backend loads = %d", backend.loadCount())
	}
}

func TestDeleteEvictsCache(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{Store: memory.New()}
	s := newCachedStore(t, backend)

	location, err := s.Upload(ctx, "doc", "", strings.NewReader("data"))
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	rc, err := s.Load(ctx, location)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	readAll(t, rc)

	if err := s.Delete(ctx, location); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := s.Load(ctx, location); !errors.Is(err, blob.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestClearCache(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{Store: memory.New()}
	s := newCachedStore(t, backend)

	location, err := s.Upload(ctx, "doc", "", strings.NewReader("data"))
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	rc, err := s.Load(ctx, location)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	readAll(t, rc)

	if err := s.ClearCache(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}

	// Content still served, from the backend again.
	rc, err = s.Load(ctx, location)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := readAll(t, rc); got != "data" {
		t.Errorf("unexpected content: %q", got)
	}
	if backend.loadCount() != 2 {
		t.Errorf("expected backend reload after clear, got %d loads", backend.loadCount())
	}
}

func TestCacheFullPassthrough(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{Store: memory.New()}
	s, err := New(backend, WithCacheDir(t.TempDir()), WithMaxSize(1))
	if err != nil {
		t.Fatalf("new cached store failed: %v", err)
	}

	location, err := s.Upload(ctx, "doc", "", strings.NewReader("too large to cache"))
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		rc, err := s.Load(ctx, location)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if got := readAll(t, rc); got != "too large to cache" {
			t.Fatalf("unexpected content: %q", got)
		}
	}
	if backend.loadCount() != 2 {
		t.Errorf("expected no caching when over budget, got %d loads", backend.loadCount())
	}
}
