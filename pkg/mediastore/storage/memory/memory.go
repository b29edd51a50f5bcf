package memory

import (
	"bytes"
	"context"
	"io"
	"path"
	"sync"

	"github.com/harborlab/mediastore/pkg/mediastore"
)

// Backend is an in-memory implementation of the mediastore.BlobStore
// interface, intended for tests and zero-dependency runs.
type Backend struct {
	mu           sync.RWMutex
	blobs        map[string][]byte
	contentTypes map[string]string
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		blobs:        make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

// Put stores the blob bytes under ownerID/key.
func (b *Backend) Put(ctx context.Context, key mediastore.BlobKey, reader io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}

	locator := path.Join(key.OwnerID.String(), key.Key)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.blobs[locator] = data
	b.contentTypes[locator] = contentType
	return locator, nil
}

// Get returns a reader over the stored bytes.
func (b *Backend) Get(ctx context.Context, locator string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.blobs[locator]
	if !exists {
		return nil, mediastore.ErrBlobNotFound
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the blob. Deleting a missing locator is a success.
func (b *Backend) Delete(ctx context.Context, locator string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.blobs, locator)
	delete(b.contentTypes, locator)
	return nil
}

// Exists reports whether a blob is present at the locator.
func (b *Backend) Exists(ctx context.Context, locator string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, exists := b.blobs[locator]
	return exists, nil
}

// ContentType returns the content type recorded for a stored blob. Test
// helper, not part of the BlobStore interface.
func (b *Backend) ContentType(locator string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.contentTypes[locator]
}

// Len returns the number of stored blobs. Test helper.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.blobs)
}
