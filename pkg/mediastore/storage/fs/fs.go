package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/harborlab/mediastore/pkg/mediastore"
)

// Backend is a filesystem implementation of the mediastore.BlobStore
// interface. Blobs live at baseDir/ownerID/key.
type Backend struct {
	baseDir string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory for storing blobs
}

// New creates a new filesystem storage backend
func New(config Config) (mediastore.BlobStore, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{baseDir: config.BaseDir}, nil
}

// Put writes the blob to baseDir/ownerID/key. A write interrupted by an
// error or context cancellation removes the partial file so no orphan
// survives the request.
func (b *Backend) Put(ctx context.Context, key mediastore.BlobKey, reader io.Reader, contentType string) (string, error) {
	locator := filepath.Join(key.OwnerID.String(), key.Key)
	filePath := filepath.Join(b.baseDir, locator)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	_, err = io.Copy(file, &ctxReader{ctx: ctx, r: reader})
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(filePath)
		b.cleanupEmptyDirectories(filepath.Dir(filePath))
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return locator, nil
}

// Get opens the blob for streaming reads.
func (b *Backend) Get(ctx context.Context, locator string) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Join(b.baseDir, locator))
	if os.IsNotExist(err) {
		return nil, mediastore.ErrBlobNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Delete removes the blob. Deleting a missing locator is a success.
func (b *Backend) Delete(ctx context.Context, locator string) error {
	filePath := filepath.Join(b.baseDir, locator)

	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	b.cleanupEmptyDirectories(filepath.Dir(filePath))

	return nil
}

// Exists reports whether a blob is present at the locator.
func (b *Backend) Exists(ctx context.Context, locator string) (bool, error) {
	if _, err := os.Stat(filepath.Join(b.baseDir, locator)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
	return true, nil
}

// cleanupEmptyDirectories recursively removes empty directories up to baseDir
func (b *Backend) cleanupEmptyDirectories(dir string) {
	if dir == b.baseDir {
		return
	}

	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if os.Remove(dir) == nil {
			b.cleanupEmptyDirectories(filepath.Dir(dir))
		}
	}
}

// ctxReader fails the copy as soon as the request context is cancelled, so a
// disconnected client stops an in-flight write.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
