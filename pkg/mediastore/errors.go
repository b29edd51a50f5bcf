package mediastore

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrAssetNotFound indicates no metadata row exists for the asset
	ErrAssetNotFound = errors.New("asset not found")

	// ErrBlobNotFound indicates a blob was not found in the storage backend
	ErrBlobNotFound = errors.New("blob not found")

	// ErrForbidden indicates the requester may not access the asset
	ErrForbidden = errors.New("access denied")

	// ErrMimeTypeNotAllowed indicates a MIME type outside the allow-list
	ErrMimeTypeNotAllowed = errors.New("mime type not allowed")

	// ErrPayloadTooLarge indicates an upload exceeding the size ceiling
	ErrPayloadTooLarge = errors.New("payload exceeds size limit")

	// ErrThumbnailUnavailable indicates a thumbnail request against a
	// non-image asset; the HTTP layer maps it to a not-found response
	ErrThumbnailUnavailable = errors.New("thumbnail not available")

	// ErrVerifierUnavailable indicates the authentication verifier could not
	// be reached; distinct from invalid credentials
	ErrVerifierUnavailable = errors.New("authentication verifier unavailable")

	// ErrInvalidToken indicates credentials that failed verification
	ErrInvalidToken = errors.New("invalid token")
)

// AssetError represents an error related to asset operations
type AssetError struct {
	AssetID uuid.UUID
	Op      string
	Err     error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("asset operation %s failed for asset %s: %v", e.Op, e.AssetID, e.Err)
}

func (e *AssetError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to blob storage operations
type StorageError struct {
	Backend string
	Locator string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for locator %s on backend %s: %v", e.Op, e.Locator, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
