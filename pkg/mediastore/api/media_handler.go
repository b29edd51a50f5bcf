package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/harborlab/mediastore/pkg/mediastore"
)

// Thumbnail dimension bounds. Requests outside these are clamped rather than
// rejected so lazy clients still get a usable rendition.
const (
	DefaultThumbnailSize = 256
	MinThumbnailSize     = 16
	MaxThumbnailSize     = 1024
)

// maxUploadParts caps the number of multipart sections read before the file
// part, so a hostile body cannot spin the parser forever.
const maxUploadParts = 16

// MediaHandler handles HTTP requests for media assets.
type MediaHandler struct {
	service        mediastore.Service
	maxUploadBytes int64
}

// NewMediaHandler creates a new media handler. maxUploadBytes caps the whole
// request body; zero means the service default.
func NewMediaHandler(service mediastore.Service, maxUploadBytes int64) *MediaHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = mediastore.DefaultMaxUploadBytes
	}
	return &MediaHandler{
		service:        service,
		maxUploadBytes: maxUploadBytes,
	}
}

// Routes returns the routes for media
func (h *MediaHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/upload", h.Upload)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/download", h.Download)
	r.Get("/{id}/thumbnail", h.Thumbnail)
	r.Patch("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)

	return r
}

// MediaResponse is the response body for a media asset
type MediaResponse struct {
	ID               string                 `json:"id"`
	OwnerID          string                 `json:"owner_id"`
	OriginalFilename string                 `json:"original_filename"`
	MimeType         string                 `json:"mime_type"`
	SizeBytes        int64                  `json:"size_bytes"`
	Visibility       string                 `json:"visibility"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
	DownloadURL      string                 `json:"download_url"`
	ThumbnailURL     string                 `json:"thumbnail_url,omitempty"`
}

func newMediaResponse(asset *mediastore.MediaAsset) MediaResponse {
	resp := MediaResponse{
		ID:               asset.ID.String(),
		OwnerID:          asset.OwnerID.String(),
		OriginalFilename: asset.OriginalFilename,
		MimeType:         asset.MimeType,
		SizeBytes:        asset.SizeBytes,
		Visibility:       string(asset.Visibility),
		Metadata:         asset.Metadata,
		CreatedAt:        asset.CreatedAt,
		UpdatedAt:        asset.UpdatedAt,
		DownloadURL:      fmt.Sprintf("/media/%s/download", asset.ID),
	}
	if asset.IsImage() {
		resp.ThumbnailURL = fmt.Sprintf("/media/%s/thumbnail", asset.ID)
	}
	return resp
}

// MediaEnvelope wraps a single asset under the same "media" key the list
// envelope uses.
type MediaEnvelope struct {
	Media MediaResponse `json:"media"`
}

// ListResponse is the paginated envelope for media listings
type ListResponse struct {
	Media      []MediaResponse       `json:"media"`
	Pagination mediastore.Pagination `json:"pagination"`
}

// uploadOptions are the non-file form fields accepted alongside the upload
type uploadOptions struct {
	Optimize bool
	Quality  int
	Width    int
	Height   int
	IsPublic bool
	Metadata map[string]interface{}
}

// Upload ingests one file from a multipart form. Form fields must precede
// the "file" part; the file part streams straight through to storage without
// being buffered in the handler.
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	requesterID := RequesterIDFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "expected a multipart/form-data body")
		return
	}

	var opts uploadOptions
	parts := 0
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			writeError(w, r, http.StatusBadRequest, "bad_request", "missing 'file' field")
			return
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "upload exceeds the size limit")
				return
			}
			writeError(w, r, http.StatusBadRequest, "bad_request", "malformed multipart body")
			return
		}

		parts++
		if parts > maxUploadParts {
			part.Close()
			writeError(w, r, http.StatusBadRequest, "bad_request", "too many form fields")
			return
		}

		if part.FormName() != "file" {
			if err := opts.setField(part); err != nil {
				part.Close()
				writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
				return
			}
			part.Close()
			continue
		}

		h.ingestFilePart(w, r, requesterID, part, opts)
		part.Close()
		return
	}
}

func (h *MediaHandler) ingestFilePart(w http.ResponseWriter, r *http.Request, requesterID uuid.UUID, part *multipart.Part, opts uploadOptions) {
	filename := filepath.Base(part.FileName())
	mimeType := detectMimeType(part.Header.Get("Content-Type"), filename)

	asset, err := h.service.Upload(r.Context(), mediastore.UploadRequest{
		OwnerID:          requesterID,
		OriginalFilename: filename,
		MimeType:         mimeType,
		DeclaredSize:     -1,
		Data:             part,
		Optimize:         opts.Optimize,
		Quality:          opts.Quality,
		Width:            opts.Width,
		Height:           opts.Height,
		IsPublic:         opts.IsPublic,
		Metadata:         opts.Metadata,
	})
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "upload exceeds the size limit")
			return
		}
		slog.ErrorContext(r.Context(), "upload failed",
			"request_id", RequestIDFromContext(r.Context()),
			"owner_id", requesterID, "filename", filename, "error", err)
		writeServiceError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "media uploaded",
		"request_id", RequestIDFromContext(r.Context()),
		"asset_id", asset.ID, "owner_id", requesterID,
		"mime_type", asset.MimeType, "size_bytes", asset.SizeBytes)

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, MediaEnvelope{Media: newMediaResponse(asset)})
}

// setField applies one non-file form field to the upload options.
func (o *uploadOptions) setField(part *multipart.Part) error {
	// Option fields are small; a hostile oversized one is cut off here.
	value, err := io.ReadAll(io.LimitReader(part, 64*1024))
	if err != nil {
		return fmt.Errorf("failed to read field %q", part.FormName())
	}

	switch name := part.FormName(); name {
	case "optimize":
		o.Optimize = string(value) == "true"
	case "quality":
		o.Quality, err = strconv.Atoi(string(value))
	case "width":
		o.Width, err = strconv.Atoi(string(value))
	case "height":
		o.Height, err = strconv.Atoi(string(value))
	case "is_public":
		o.IsPublic = string(value) == "true"
	case "metadata":
		err = json.Unmarshal(value, &o.Metadata)
	default:
		// Unknown fields are ignored so clients can evolve ahead of the
		// server.
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid value for field %q", part.FormName())
	}
	return nil
}

// detectMimeType prefers the part's declared Content-Type and falls back to
// the filename extension.
func detectMimeType(declared, filename string) string {
	if declared != "" {
		if parsed, _, err := mime.ParseMediaType(declared); err == nil && parsed != "application/octet-stream" {
			return parsed
		}
	}
	if mt := mime.TypeByExtension(filepath.Ext(filename)); mt != "" {
		if parsed, _, err := mime.ParseMediaType(mt); err == nil {
			return parsed
		}
	}
	return "application/octet-stream"
}

// Get retrieves a media asset's metadata by ID
func (h *MediaHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := assetIDParam(w, r)
	if !ok {
		return
	}

	asset, err := h.service.GetAsset(r.Context(), id, RequesterIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, MediaEnvelope{Media: newMediaResponse(asset)})
}

// Download streams the asset's bytes with its stored content type and the
// original filename as the download name.
func (h *MediaHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, ok := assetIDParam(w, r)
	if !ok {
		return
	}

	result, err := h.service.Download(r.Context(), id, RequesterIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer result.Body.Close()

	w.Header().Set("Content-Type", result.Asset.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(result.Asset.SizeBytes, 10))
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": result.Asset.OriginalFilename}))

	if _, err := io.Copy(w, result.Body); err != nil {
		// Headers are already out; all we can do is log the broken stream.
		slog.WarnContext(r.Context(), "download stream interrupted",
			"request_id", RequestIDFromContext(r.Context()), "asset_id", id, "error", err)
	}
}

// Thumbnail serves a JPEG thumbnail at the requested dimensions
func (h *MediaHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	id, ok := assetIDParam(w, r)
	if !ok {
		return
	}

	width := clampDimension(queryInt(r, "width", DefaultThumbnailSize))
	height := clampDimension(queryInt(r, "height", DefaultThumbnailSize))

	data, err := h.service.Thumbnail(r.Context(), mediastore.ThumbnailRequest{
		AssetID:     id,
		RequesterID: RequesterIDFromContext(r.Context()),
		Width:       width,
		Height:      height,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}

// List returns a page of the requester's own assets
func (h *MediaHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListAssets(r.Context(), mediastore.ListRequest{
		OwnerID:        RequesterIDFromContext(r.Context()),
		MimeTypePrefix: r.URL.Query().Get("type"),
		FilenameSearch: r.URL.Query().Get("search"),
		Page:           queryInt(r, "page", 0),
		Limit:          queryInt(r, "limit", 0),
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "list failed",
			"request_id", RequestIDFromContext(r.Context()), "error", err)
		writeServiceError(w, r, err)
		return
	}

	media := make([]MediaResponse, 0, len(page.Assets))
	for _, asset := range page.Assets {
		media = append(media, newMediaResponse(asset))
	}

	render.JSON(w, r, ListResponse{Media: media, Pagination: page.Pagination})
}

// UpdateMediaRequest is the request body for mutating an asset
type UpdateMediaRequest struct {
	Visibility *string                `json:"visibility,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Update mutates an asset's visibility and metadata
func (h *MediaHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := assetIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateMediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "malformed JSON body")
		return
	}

	update := mediastore.UpdateAssetRequest{
		AssetID:     id,
		RequesterID: RequesterIDFromContext(r.Context()),
		Metadata:    req.Metadata,
	}
	if req.Visibility != nil {
		v := mediastore.Visibility(*req.Visibility)
		if !v.Valid() {
			writeError(w, r, http.StatusBadRequest, "bad_request", "visibility must be \"private\" or \"public\"")
			return
		}
		update.Visibility = &v
	}

	asset, err := h.service.UpdateAsset(r.Context(), update)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, MediaEnvelope{Media: newMediaResponse(asset)})
}

// Delete removes an asset. Deleting an already-deleted asset returns 404.
func (h *MediaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := assetIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteAsset(r.Context(), id, RequesterIDFromContext(r.Context())); err != nil {
		writeServiceError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "media deleted",
		"request_id", RequestIDFromContext(r.Context()), "asset_id", id)
	render.JSON(w, r, map[string]string{"status": "deleted", "id": id.String()})
}

// Helpers

func assetIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "invalid media ID")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func clampDimension(n int) int {
	if n < MinThumbnailSize {
		return MinThumbnailSize
	}
	if n > MaxThumbnailSize {
		return MaxThumbnailSize
	}
	return n
}
