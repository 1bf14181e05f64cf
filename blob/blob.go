// Package blob defines the interface for storing message payloads and
// transport evidence outside the metadata store. Transmission records carry
// only the opaque location string returned by Upload; the bytes live in one
// of the backend subpackages (s3, gcs, memory) optionally wrapped by cached.
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when no blob exists at the given location.
var ErrNotFound = errors.New("blob: not found")

// Store persists opaque blobs addressed by backend-specific locations.
type Store interface {
	// Upload stores the content and returns its location. The location is
	// what a transmission record carries in PayloadLocation or
	// EvidenceLocation.
	Upload(ctx context.Context, name, contentType string, content io.Reader) (string, error)

	// Load returns a reader for the blob content. The caller must close it.
	Load(ctx context.Context, location string) (io.ReadCloser, error)

	// Delete removes the blob.
	Delete(ctx context.Context, location string) error
}
