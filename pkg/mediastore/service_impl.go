package mediastore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// Defaults applied when the corresponding option is not supplied.
const (
	DefaultMaxUploadBytes    = 500 * 1024 * 1024
	DefaultThumbnailTTL      = time.Hour
	DefaultThumbnailWorkers  = 4
	DefaultMetadataOpTimeout = 5 * time.Second
	DefaultListLimit         = 20
	MaxListLimit             = 100
)

// service implements the Service interface
type service struct {
	repository Repository
	blobStore  BlobStore
	cache      ThumbnailCache
	eventSink  EventSink
	logger     *slog.Logger

	maxUploadBytes int64
	thumbnailTTL   time.Duration
	metaTimeout    time.Duration

	// thumbSem bounds concurrent CPU-bound thumbnail renders so a burst of
	// cache misses cannot starve the I/O-bound upload/download paths.
	thumbSem *semaphore.Weighted
	// thumbGroup collapses concurrent regenerations of the same rendition.
	thumbGroup singleflight.Group

	transform transformer
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the metadata repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the blob storage backend. The backend is chosen once at
// startup; the service never inspects its concrete type.
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithThumbnailCache sets the thumbnail cache for the service
func WithThumbnailCache(cache ThumbnailCache) Option {
	return func(s *service) {
		s.cache = cache
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithLogger sets the structured logger used for warnings and cleanup
// failures
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithMaxUploadBytes sets the upload size ceiling, enforced incrementally as
// bytes arrive
func WithMaxUploadBytes(n int64) Option {
	return func(s *service) {
		s.maxUploadBytes = n
	}
}

// WithThumbnailTTL sets the cache lifetime for rendered thumbnails
func WithThumbnailTTL(ttl time.Duration) Option {
	return func(s *service) {
		s.thumbnailTTL = ttl
	}
}

// WithThumbnailWorkers bounds concurrent thumbnail renders
func WithThumbnailWorkers(n int) Option {
	return func(s *service) {
		if n > 0 {
			s.thumbSem = semaphore.NewWeighted(int64(n))
		}
	}
}

// transformer is the transcoding seam; tests and callers can substitute it.
type transformer interface {
	Optimize(data []byte, mimeType string, quality, maxWidth, maxHeight int) (out []byte, applied bool, warning string)
	Thumbnail(data []byte, width, height int) ([]byte, error)
}

var defaultTransformer transformer = imagingTransformer{}

// WithTransformer overrides the transcoding engine. Intended for tests.
func WithTransformer(t transformer) Option {
	return func(s *service) {
		s.transform = t
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		logger:         slog.Default(),
		maxUploadBytes: DefaultMaxUploadBytes,
		thumbnailTTL:   DefaultThumbnailTTL,
		metaTimeout:    DefaultMetadataOpTimeout,
		thumbSem:       semaphore.NewWeighted(DefaultThumbnailWorkers),
		transform:      defaultTransformer,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.cache == nil {
		return nil, fmt.Errorf("thumbnail cache is required")
	}

	return s, nil
}

// Upload ingests one payload. Orchestration order: transcode (optional) ->
// blob put -> metadata insert -> event emit. A transcoding failure degrades
// to the original bytes; a failed insert deletes the just-written blob
// before the error returns, so no orphan survives the request.
func (s *service) Upload(ctx context.Context, req UploadRequest) (*MediaAsset, error) {
	if !MimeTypeAllowed(req.MimeType) {
		return nil, fmt.Errorf("%w: %s", ErrMimeTypeNotAllowed, req.MimeType)
	}
	if req.DeclaredSize > s.maxUploadBytes {
		return nil, ErrPayloadTooLarge
	}

	assetID := uuid.New()
	// The storage key is server-generated and opaque; the client filename is
	// metadata only and never becomes a path component.
	key := BlobKey{OwnerID: req.OwnerID, Key: assetID.String()}

	body, size, err := s.prepareUploadBody(ctx, assetID, req)
	if err != nil {
		return nil, err
	}

	counted := &limitedCountingReader{r: body, limit: s.maxUploadBytes}
	locator, err := s.blobStore.Put(ctx, key, counted, req.MimeType)
	if err != nil {
		if errors.Is(err, ErrPayloadTooLarge) || counted.exceeded {
			return nil, ErrPayloadTooLarge
		}
		return nil, &StorageError{Locator: key.Key, Op: "put", Err: err}
	}
	if size < 0 {
		size = counted.n
	}

	now := time.Now().UTC()
	asset := &MediaAsset{
		ID:               assetID,
		OwnerID:          req.OwnerID,
		OriginalFilename: req.OriginalFilename,
		MimeType:         req.MimeType,
		SizeBytes:        size,
		StorageLocator:   locator,
		Visibility:       VisibilityPrivate,
		Metadata:         req.Metadata,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if req.IsPublic {
		asset.Visibility = VisibilityPublic
	}

	if err := s.createAssetRow(ctx, asset); err != nil {
		// Compensating cleanup: the blob exists but the row does not, so the
		// blob must go. Its own failure is logged, never raised over the
		// original error.
		if delErr := s.blobStore.Delete(context.WithoutCancel(ctx), locator); delErr != nil {
			s.logger.ErrorContext(ctx, "orphan blob cleanup failed",
				"op", "upload", "asset_id", assetID, "locator", locator, "error", delErr)
		}
		return nil, &AssetError{AssetID: assetID, Op: "create", Err: err}
	}

	s.emit(ctx, Event{
		Type:      EventAssetCreated,
		AssetID:   asset.ID,
		OwnerID:   asset.OwnerID,
		MimeType:  asset.MimeType,
		SizeBytes: asset.SizeBytes,
		At:        now,
	})

	return asset, nil
}

// prepareUploadBody returns the byte stream to persist and, when known, its
// exact size (-1 when the stream must be counted during the write). Image
// optimization buffers the payload once; everything else streams through.
func (s *service) prepareUploadBody(ctx context.Context, assetID uuid.UUID, req UploadRequest) (io.Reader, int64, error) {
	optimizable := req.Optimize && isImageMime(req.MimeType)
	if !optimizable {
		return req.Data, -1, nil
	}

	counted := &limitedCountingReader{r: req.Data, limit: s.maxUploadBytes}
	data, err := io.ReadAll(counted)
	if err != nil {
		if counted.exceeded {
			return nil, 0, ErrPayloadTooLarge
		}
		return nil, 0, fmt.Errorf("failed to read payload: %w", err)
	}

	out, applied, warning := s.transform.Optimize(data, req.MimeType, req.Quality, req.Width, req.Height)
	if !applied {
		// Upload availability takes priority over optimization.
		s.logger.WarnContext(ctx, "transcoding skipped, storing original bytes",
			"op", "upload", "asset_id", assetID, "mime_type", req.MimeType, "reason", warning)
		out = data
	}

	return bytes.NewReader(out), int64(len(out)), nil
}

func (s *service) GetAsset(ctx context.Context, id, requesterID uuid.UUID) (*MediaAsset, error) {
	return s.readableAsset(ctx, id, requesterID)
}

// Download opens the asset's blob for streaming. A row whose blob is gone is
// an integrity violation: it logs a warning for reconciliation and reads as
// not found.
func (s *service) Download(ctx context.Context, id, requesterID uuid.UUID) (*DownloadResult, error) {
	asset, err := s.readableAsset(ctx, id, requesterID)
	if err != nil {
		return nil, err
	}

	body, err := s.blobStore.Get(ctx, asset.StorageLocator)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			s.logger.WarnContext(ctx, "metadata row exists but blob is missing",
				"op", "download", "asset_id", id, "locator", asset.StorageLocator)
			return nil, ErrBlobNotFound
		}
		return nil, &StorageError{Locator: asset.StorageLocator, Op: "get", Err: err}
	}

	return &DownloadResult{Asset: asset, Body: body}, nil
}

// Thumbnail returns JPEG thumbnail bytes, rendering through the cache.
// Concurrent requests for the same rendition collapse into one render, and
// renders are bounded by the CPU worker limit.
func (s *service) Thumbnail(ctx context.Context, req ThumbnailRequest) ([]byte, error) {
	asset, err := s.readableAsset(ctx, req.AssetID, req.RequesterID)
	if err != nil {
		return nil, err
	}
	if !asset.IsImage() {
		return nil, ErrThumbnailUnavailable
	}

	key := ThumbKey{AssetID: req.AssetID, Width: req.Width, Height: req.Height}

	if data, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "thumbnail cache read failed",
			"op", "thumbnail", "asset_id", req.AssetID, "error", err)
	} else if ok {
		return data, nil
	}

	flightKey := fmt.Sprintf("%s:%dx%d", key.AssetID, key.Width, key.Height)
	result, err, _ := s.thumbGroup.Do(flightKey, func() (interface{}, error) {
		return s.renderThumbnail(ctx, asset, key)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (s *service) renderThumbnail(ctx context.Context, asset *MediaAsset, key ThumbKey) ([]byte, error) {
	// Another flight may have populated the cache while we queued.
	if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		return data, nil
	}

	if err := s.thumbSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.thumbSem.Release(1)

	body, err := s.blobStore.Get(ctx, asset.StorageLocator)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			s.logger.WarnContext(ctx, "metadata row exists but blob is missing",
				"op", "thumbnail", "asset_id", asset.ID, "locator", asset.StorageLocator)
			return nil, ErrBlobNotFound
		}
		return nil, &StorageError{Locator: asset.StorageLocator, Op: "get", Err: err}
	}
	defer body.Close()

	source, err := io.ReadAll(body)
	if err != nil {
		return nil, &StorageError{Locator: asset.StorageLocator, Op: "read", Err: err}
	}

	thumb, err := s.transform.Thumbnail(source, key.Width, key.Height)
	if err != nil {
		return nil, &AssetError{AssetID: asset.ID, Op: "thumbnail", Err: err}
	}

	if err := s.cache.Set(ctx, key, thumb, s.thumbnailTTL); err != nil {
		s.logger.WarnContext(ctx, "thumbnail cache write failed",
			"op", "thumbnail", "asset_id", asset.ID, "error", err)
	}

	return thumb, nil
}

func (s *service) ListAssets(ctx context.Context, req ListRequest) (*AssetPage, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	limit := req.Limit
	if limit < 1 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	mctx, cancel := context.WithTimeout(ctx, s.metaTimeout)
	defer cancel()

	assets, total, err := s.repository.ListAssets(mctx, AssetFilter{
		OwnerID:        req.OwnerID,
		MimeTypePrefix: req.MimeTypePrefix,
		FilenameSearch: req.FilenameSearch,
		Page:           page,
		Limit:          limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}

	if assets == nil {
		assets = []*MediaAsset{}
	}
	return &AssetPage{
		Assets:     assets,
		Pagination: NewPagination(page, limit, total),
	}, nil
}

func (s *service) UpdateAsset(ctx context.Context, req UpdateAssetRequest) (*MediaAsset, error) {
	asset, err := s.ownedAsset(ctx, req.AssetID, req.RequesterID)
	if err != nil {
		return nil, err
	}

	if req.Visibility != nil {
		if !req.Visibility.Valid() {
			return nil, fmt.Errorf("invalid visibility %q", *req.Visibility)
		}
		asset.Visibility = *req.Visibility
	}
	if req.Metadata != nil {
		asset.Metadata = req.Metadata
	}
	asset.UpdatedAt = time.Now().UTC()

	mctx, cancel := context.WithTimeout(ctx, s.metaTimeout)
	defer cancel()
	if err := s.repository.UpdateAsset(mctx, asset); err != nil {
		return nil, &AssetError{AssetID: asset.ID, Op: "update", Err: err}
	}

	return asset, nil
}

// DeleteAsset removes the metadata row first; that is the only guaranteed
// step. Blob deletion and cache purge follow best-effort, and the lifecycle
// event fires after the commit.
func (s *service) DeleteAsset(ctx context.Context, id, requesterID uuid.UUID) error {
	asset, err := s.ownedAsset(ctx, id, requesterID)
	if err != nil {
		return err
	}

	mctx, cancel := context.WithTimeout(ctx, s.metaTimeout)
	defer cancel()
	if err := s.repository.DeleteAsset(mctx, id); err != nil {
		if errors.Is(err, ErrAssetNotFound) {
			return ErrAssetNotFound
		}
		return &AssetError{AssetID: id, Op: "delete", Err: err}
	}

	cleanupCtx := context.WithoutCancel(ctx)
	if err := s.blobStore.Delete(cleanupCtx, asset.StorageLocator); err != nil {
		s.logger.WarnContext(ctx, "blob deletion failed after row removal",
			"op", "delete", "asset_id", id, "locator", asset.StorageLocator, "error", err)
	}
	if err := s.cache.PurgeAsset(cleanupCtx, id); err != nil {
		s.logger.WarnContext(ctx, "thumbnail cache purge failed",
			"op", "delete", "asset_id", id, "error", err)
	}

	s.emit(ctx, Event{
		Type:      EventAssetDeleted,
		AssetID:   asset.ID,
		OwnerID:   asset.OwnerID,
		MimeType:  asset.MimeType,
		SizeBytes: asset.SizeBytes,
		At:        time.Now().UTC(),
	})

	return nil
}

// Helper methods

// readableAsset loads an asset and enforces read authorization. A private
// asset reads as not found for anyone but its owner, so existence does not
// leak.
func (s *service) readableAsset(ctx context.Context, id, requesterID uuid.UUID) (*MediaAsset, error) {
	mctx, cancel := context.WithTimeout(ctx, s.metaTimeout)
	defer cancel()

	asset, err := s.repository.GetAsset(mctx, id)
	if err != nil {
		return nil, err
	}
	if asset.OwnerID != requesterID && !asset.IsPublic() {
		return nil, ErrAssetNotFound
	}
	return asset, nil
}

// ownedAsset loads an asset for mutation; only the owner may mutate.
func (s *service) ownedAsset(ctx context.Context, id, requesterID uuid.UUID) (*MediaAsset, error) {
	mctx, cancel := context.WithTimeout(ctx, s.metaTimeout)
	defer cancel()

	asset, err := s.repository.GetAsset(mctx, id)
	if err != nil {
		return nil, err
	}
	if asset.OwnerID != requesterID {
		if asset.IsPublic() {
			return nil, ErrForbidden
		}
		return nil, ErrAssetNotFound
	}
	return asset, nil
}

func (s *service) createAssetRow(ctx context.Context, asset *MediaAsset) error {
	mctx, cancel := context.WithTimeout(ctx, s.metaTimeout)
	defer cancel()
	return s.repository.CreateAsset(mctx, asset)
}

// emit publishes a lifecycle event; failures are logged and swallowed.
func (s *service) emit(ctx context.Context, event Event) {
	if s.eventSink == nil {
		return
	}
	if err := s.eventSink.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.WarnContext(ctx, "event publish failed",
			"op", event.Type, "asset_id", event.AssetID, "error", err)
	}
}

// limitedCountingReader counts bytes and fails with ErrPayloadTooLarge the
// moment the count passes the limit, so oversized uploads are rejected while
// still in flight.
type limitedCountingReader struct {
	r        io.Reader
	limit    int64
	n        int64
	exceeded bool
}

func (l *limitedCountingReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.n += int64(n)
	if l.limit > 0 && l.n > l.limit {
		l.exceeded = true
		return n, ErrPayloadTooLarge
	}
	return n, err
}
