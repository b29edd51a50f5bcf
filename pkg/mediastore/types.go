package mediastore

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Visibility controls who may read an asset.
type Visibility string

// Visibility constants (typed).
const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Valid reports whether v is a known visibility value.
func (v Visibility) Valid() bool {
	return v == VisibilityPrivate || v == VisibilityPublic
}

// MediaAsset is the metadata record for one stored blob. A row exists only
// after its blob has been written; sizeBytes reflects the bytes actually in
// storage (post-transcoding when optimization was applied).
type MediaAsset struct {
	ID               uuid.UUID              `json:"id"`
	OwnerID          uuid.UUID              `json:"owner_id"`
	OriginalFilename string                 `json:"filename"`
	MimeType         string                 `json:"mime_type"`
	SizeBytes        int64                  `json:"size_bytes"`
	StorageLocator   string                 `json:"-"`
	Visibility       Visibility             `json:"visibility"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// IsImage reports whether the asset's MIME type is an image type the
// transcoder can operate on.
func (a *MediaAsset) IsImage() bool {
	return strings.HasPrefix(a.MimeType, "image/")
}

// IsPublic reports whether any authenticated user may read the asset.
func (a *MediaAsset) IsPublic() bool {
	return a.Visibility == VisibilityPublic
}

// allowedMimeTypes is the upload allow-list. Anything outside it is rejected
// before any bytes reach storage.
var allowedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"image/bmp":       true,
	"image/tiff":      true,
	"video/mp4":       true,
	"video/quicktime": true,
	"video/webm":      true,
	"video/x-matroska": true,
}

// MimeTypeAllowed reports whether mimeType is on the upload allow-list.
func MimeTypeAllowed(mimeType string) bool {
	return allowedMimeTypes[mimeType]
}

func isImageMime(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

// Pagination is the response envelope for list operations.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalCount int64 `json:"total_count"`
	TotalPages int   `json:"total_pages"`
}

// NewPagination computes the envelope for a page/limit request and a total
// row count.
func NewPagination(page, limit int, total int64) Pagination {
	pages := int(total) / limit
	if int(total)%limit > 0 {
		pages++
	}
	return Pagination{
		Page:       page,
		Limit:      limit,
		TotalCount: total,
		TotalPages: pages,
	}
}

// AssetPage is a single page of list results plus its pagination envelope.
type AssetPage struct {
	Assets     []*MediaAsset `json:"media"`
	Pagination Pagination    `json:"pagination"`
}

// Event is a lifecycle notification emitted after a metadata commit.
type Event struct {
	Type      string    `json:"type"`
	AssetID   uuid.UUID `json:"asset_id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	MimeType  string    `json:"mime_type"`
	SizeBytes int64     `json:"size_bytes"`
	At        time.Time `json:"at"`
}

// Event type constants.
const (
	EventAssetCreated = "asset.created"
	EventAssetDeleted = "asset.deleted"
)
