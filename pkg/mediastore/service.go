package mediastore

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the main interface for the mediastore library.
//
// Every operation is scoped to a requester: Upload records the requester as
// owner, reads enforce owner-or-public, mutations enforce owner-only.
type Service interface {
	// Upload ingests one payload: transcode (optional) -> blob put ->
	// metadata insert -> event emit. A failed insert triggers synchronous
	// best-effort deletion of the just-written blob.
	Upload(ctx context.Context, req UploadRequest) (*MediaAsset, error)

	// GetAsset returns the metadata record, enforcing read authorization.
	GetAsset(ctx context.Context, id, requesterID uuid.UUID) (*MediaAsset, error)

	// Download opens the asset's blob for streaming. The caller closes
	// Body. A metadata row whose blob is gone yields ErrBlobNotFound.
	Download(ctx context.Context, id, requesterID uuid.UUID) (*DownloadResult, error)

	// Thumbnail returns JPEG thumbnail bytes for an image asset, serving
	// from cache when possible.
	Thumbnail(ctx context.Context, req ThumbnailRequest) ([]byte, error)

	// ListAssets returns one page of the owner's assets.
	ListAssets(ctx context.Context, req ListRequest) (*AssetPage, error)

	// UpdateAsset mutates visibility and/or the metadata bag.
	UpdateAsset(ctx context.Context, req UpdateAssetRequest) (*MediaAsset, error)

	// DeleteAsset removes the row (guaranteed), then deletes the blob and
	// purges cached thumbnails best-effort.
	DeleteAsset(ctx context.Context, id, requesterID uuid.UUID) error
}
