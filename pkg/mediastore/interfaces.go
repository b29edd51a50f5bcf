package mediastore

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// BlobStore defines the interface for storage backends. One implementation is
// selected at process startup; callers never branch on the concrete type.
type BlobStore interface {
	// Put writes the blob read from reader under the given key and returns
	// the backend-specific locator used for later retrieval. The write is
	// aborted when ctx is cancelled; no partial blob survives an abort.
	Put(ctx context.Context, key BlobKey, reader io.Reader, contentType string) (string, error)

	// Get opens the blob at the given locator for streaming reads.
	Get(ctx context.Context, locator string) (io.ReadCloser, error)

	// Delete removes the blob at the given locator. Deleting a locator that
	// does not exist is a success (idempotent).
	Delete(ctx context.Context, locator string) error

	// Exists reports whether a blob is present at the given locator.
	Exists(ctx context.Context, locator string) (bool, error)
}

// BlobKey addresses a blob inside a backend. Key is server-generated and
// opaque; client-supplied filenames never appear in it.
type BlobKey struct {
	OwnerID uuid.UUID
	Key     string
}

// StreamWriter is a chunked blob write in progress. Backends that support
// resumable writes return one for payloads above their chunking threshold.
// Exactly one of Finish or Abort must be called.
type StreamWriter interface {
	// Write uploads one chunk. It blocks until the transport has
	// acknowledged the chunk, which is what bounds buffered memory.
	Write(ctx context.Context, chunk []byte) error

	// Finish commits all written chunks and returns the blob's locator.
	Finish(ctx context.Context) (string, error)

	// Abort discards all written chunks.
	Abort(ctx context.Context) error
}

// Repository defines the interface for asset metadata persistence.
type Repository interface {
	// CreateAsset inserts a metadata row. Called only after a confirmed
	// blob write.
	CreateAsset(ctx context.Context, asset *MediaAsset) error

	// GetAsset returns the row for id or ErrAssetNotFound.
	GetAsset(ctx context.Context, id uuid.UUID) (*MediaAsset, error)

	// UpdateAsset persists visibility/metadata mutations.
	UpdateAsset(ctx context.Context, asset *MediaAsset) error

	// DeleteAsset removes the row or returns ErrAssetNotFound. Row removal
	// is the authoritative step of asset deletion.
	DeleteAsset(ctx context.Context, id uuid.UUID) error

	// ListAssets returns one page of rows matching the filter plus the
	// total match count.
	ListAssets(ctx context.Context, filter AssetFilter) ([]*MediaAsset, int64, error)
}

// AssetFilter selects rows for ListAssets. Zero values mean "no constraint"
// except Page/Limit, which are always applied.
type AssetFilter struct {
	OwnerID        uuid.UUID
	MimeTypePrefix string
	FilenameSearch string
	Page           int
	Limit          int
}

// ThumbnailCache is a non-authoritative store of rendered thumbnails. A miss
// never implies the source asset is missing.
type ThumbnailCache interface {
	// Get returns the cached thumbnail bytes, or ok=false on a miss.
	Get(ctx context.Context, key ThumbKey) ([]byte, bool, error)

	// Set stores thumbnail bytes under key for the given TTL.
	Set(ctx context.Context, key ThumbKey, data []byte, ttl time.Duration) error

	// PurgeAsset drops all entries for an asset, best-effort.
	PurgeAsset(ctx context.Context, assetID uuid.UUID) error
}

// ThumbKey identifies one cached thumbnail rendition.
type ThumbKey struct {
	AssetID uuid.UUID
	Width   int
	Height  int
}

// EventSink receives lifecycle events. Emission happens only after the
// metadata commit; failures are logged by the caller and never propagated.
type EventSink interface {
	// Publish delivers one event, fire-and-forget semantics from the
	// caller's point of view.
	Publish(ctx context.Context, event Event) error
}

// Verifier authenticates bearer tokens. It is treated as a remote
// collaborator: ErrInvalidToken means bad credentials, ErrVerifierUnavailable
// means the verifier itself could not answer.
type Verifier interface {
	Verify(ctx context.Context, token string) (uuid.UUID, error)
}
