package mediastore

import (
	"io"

	"github.com/google/uuid"
)

// Request/Response DTOs

// UploadRequest contains parameters for ingesting one uploaded payload.
//
// Data is consumed as a stream; the service never buffers more than one
// transform's worth of bytes at a time. DeclaredSize is what the client
// claims (-1 when unknown); the size ceiling is enforced on the actual bytes
// as they arrive regardless.
type UploadRequest struct {
	OwnerID          uuid.UUID
	OriginalFilename string
	MimeType         string
	DeclaredSize     int64
	Data             io.Reader

	Optimize bool
	Quality  int // 1-100, 0 means backend default
	Width    int // optional resize bound, never upscales
	Height   int
	IsPublic bool
	Metadata map[string]interface{}
}

// DownloadResult carries a blob stream and the header fields needed to
// serve it.
type DownloadResult struct {
	Asset *MediaAsset
	Body  io.ReadCloser
}

// ThumbnailRequest contains parameters for one thumbnail rendition.
type ThumbnailRequest struct {
	AssetID     uuid.UUID
	RequesterID uuid.UUID
	Width       int
	Height      int
}

// UpdateAssetRequest contains the mutable fields of an asset. Nil fields are
// left unchanged.
type UpdateAssetRequest struct {
	AssetID     uuid.UUID
	RequesterID uuid.UUID
	Visibility  *Visibility
	Metadata    map[string]interface{}
}

// ListRequest contains parameters for listing a requester's assets.
type ListRequest struct {
	OwnerID        uuid.UUID
	MimeTypePrefix string
	FilenameSearch string
	Page           int
	Limit          int
}
