package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/harborlab/mediastore/pkg/mediastore"
)

// ErrorResponse is the JSON error envelope returned by every handler.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: ErrorDetail{
		Code:      code,
		Message:   message,
		RequestID: RequestIDFromContext(r.Context()),
	}})
}

// writeServiceError maps service-layer errors onto HTTP statuses. A missing
// blob behind an existing row reads as not found, same as a missing row.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, mediastore.ErrAssetNotFound), errors.Is(err, mediastore.ErrBlobNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "media not found")
	case errors.Is(err, mediastore.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden", "you do not own this media")
	case errors.Is(err, mediastore.ErrMimeTypeNotAllowed):
		writeError(w, r, http.StatusBadRequest, "unsupported_media_type", "file type is not allowed")
	case errors.Is(err, mediastore.ErrThumbnailUnavailable):
		writeError(w, r, http.StatusNotFound, "thumbnail_unavailable", "thumbnails are only available for images")
	case errors.Is(err, mediastore.ErrPayloadTooLarge):
		writeError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "upload exceeds the size limit")
	case errors.Is(err, mediastore.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
	case errors.Is(err, mediastore.ErrVerifierUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "auth_unavailable", "authentication service is unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal_error", "an internal error occurred")
	}
}
