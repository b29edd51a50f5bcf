package mediastore_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborlab/mediastore/pkg/mediastore"
	"github.com/harborlab/mediastore/pkg/mediastore/events"
	repomemory "github.com/harborlab/mediastore/pkg/mediastore/repo/memory"
	memorystorage "github.com/harborlab/mediastore/pkg/mediastore/storage/memory"
	"github.com/harborlab/mediastore/pkg/mediastore/thumbcache"
)

func TestServiceCreation(t *testing.T) {
	tests := []struct {
		name        string
		options     []mediastore.Option
		expectError bool
	}{
		{
			name:        "no options should fail",
			options:     []mediastore.Option{},
			expectError: true,
		},
		{
			name: "repository alone should fail",
			options: []mediastore.Option{
				mediastore.WithRepository(repomemory.New()),
			},
			expectError: true,
		},
		{
			name: "repository, store and cache should succeed",
			options: []mediastore.Option{
				mediastore.WithRepository(repomemory.New()),
				mediastore.WithBlobStore(memorystorage.New()),
				mediastore.WithThumbnailCache(thumbcache.NewMemory()),
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := mediastore.New(tt.options...)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

type testEnv struct {
	svc   mediastore.Service
	store *memorystorage.Backend
	sink  *recordingSink
}

func setupTestService(t *testing.T, extra ...mediastore.Option) testEnv {
	t.Helper()

	store := memorystorage.New()
	sink := &recordingSink{}

	options := []mediastore.Option{
		mediastore.WithRepository(repomemory.New()),
		mediastore.WithBlobStore(store),
		mediastore.WithThumbnailCache(thumbcache.NewMemory()),
		mediastore.WithEventSink(sink),
	}
	options = append(options, extra...)

	svc, err := mediastore.New(options...)
	require.NoError(t, err)

	return testEnv{svc: svc, store: store, sink: sink}
}

// recordingSink captures published events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []mediastore.Event
	fail   bool
}

func (s *recordingSink) Publish(_ context.Context, event mediastore.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("broker unreachable")
	}
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) recorded() []mediastore.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mediastore.Event(nil), s.events...)
}

// testPNG renders a small solid-color PNG for upload fixtures.
func testPNG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 5), B: 90, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uploadFixture(t *testing.T, svc mediastore.Service, owner uuid.UUID, name, mimeType string, data []byte) *mediastore.MediaAsset {
	t.Helper()

	asset, err := svc.Upload(context.Background(), mediastore.UploadRequest{
		OwnerID:          owner,
		OriginalFilename: name,
		MimeType:         mimeType,
		DeclaredSize:     int64(len(data)),
		Data:             bytes.NewReader(data),
	})
	require.NoError(t, err)
	return asset
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	owner := uuid.New()
	payload := []byte("not really an mp4 but the service never inspects video bytes")

	asset := uploadFixture(t, env.svc, owner, "clip.mp4", "video/mp4", payload)

	assert.Equal(t, owner, asset.OwnerID)
	assert.Equal(t, "clip.mp4", asset.OriginalFilename)
	assert.Equal(t, "video/mp4", asset.MimeType)
	assert.Equal(t, int64(len(payload)), asset.SizeBytes)
	assert.Equal(t, mediastore.VisibilityPrivate, asset.Visibility)

	result, err := env.svc.Download(ctx, asset.ID, owner)
	require.NoError(t, err)
	defer result.Body.Close()

	got := new(bytes.Buffer)
	_, err = got.ReadFrom(result.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, got.Bytes())
	assert.Equal(t, asset.SizeBytes, result.Asset.SizeBytes)
}

func TestUploadRejectsDisallowedMimeType(t *testing.T) {
	env := setupTestService(t)

	_, err := env.svc.Upload(context.Background(), mediastore.UploadRequest{
		OwnerID:          uuid.New(),
		OriginalFilename: "script.sh",
		MimeType:         "application/x-sh",
		Data:             strings.NewReader("#!/bin/sh"),
	})

	assert.ErrorIs(t, err, mediastore.ErrMimeTypeNotAllowed)
	assert.Equal(t, 0, env.store.Len())
}

func TestUploadEnforcesSizeCeiling(t *testing.T) {
	env := setupTestService(t, mediastore.WithMaxUploadBytes(64))

	_, err := env.svc.Upload(context.Background(), mediastore.UploadRequest{
		OwnerID:          uuid.New(),
		OriginalFilename: "big.mp4",
		MimeType:         "video/mp4",
		DeclaredSize:     -1,
		Data:             bytes.NewReader(bytes.Repeat([]byte("x"), 200)),
	})

	assert.ErrorIs(t, err, mediastore.ErrPayloadTooLarge)
	assert.Equal(t, 0, env.store.Len(), "partial blob must not survive a rejected upload")
}

func TestUploadRejectsOversizeDeclaredSize(t *testing.T) {
	env := setupTestService(t, mediastore.WithMaxUploadBytes(64))

	_, err := env.svc.Upload(context.Background(), mediastore.UploadRequest{
		OwnerID:          uuid.New(),
		OriginalFilename: "big.mp4",
		MimeType:         "video/mp4",
		DeclaredSize:     1 << 20,
		Data:             strings.NewReader("tiny"),
	})

	assert.ErrorIs(t, err, mediastore.ErrPayloadTooLarge)
}

// failingRepository rejects every insert, simulating a database outage
// between the blob write and the metadata commit.
type failingRepository struct {
	mediastore.Repository
}

func (r *failingRepository) CreateAsset(context.Context, *mediastore.MediaAsset) error {
	return errors.New("connection refused")
}

func TestUploadCleansUpBlobWhenInsertFails(t *testing.T) {
	store := memorystorage.New()
	svc, err := mediastore.New(
		mediastore.WithRepository(&failingRepository{Repository: repomemory.New()}),
		mediastore.WithBlobStore(store),
		mediastore.WithThumbnailCache(thumbcache.NewMemory()),
	)
	require.NoError(t, err)

	_, err = svc.Upload(context.Background(), mediastore.UploadRequest{
		OwnerID:          uuid.New(),
		OriginalFilename: "photo.png",
		MimeType:         "image/png",
		Data:             bytes.NewReader([]byte("payload")),
	})

	require.Error(t, err)
	assert.NotErrorIs(t, err, mediastore.ErrPayloadTooLarge)
	assert.Equal(t, 0, store.Len(), "blob must be deleted after a failed metadata insert")
}

func TestUploadOptimizeDegradesOnUndecodableImage(t *testing.T) {
	env := setupTestService(t)
	garbage := []byte("this is not a png at all")

	asset, err := env.svc.Upload(context.Background(), mediastore.UploadRequest{
		OwnerID:          uuid.New(),
		OriginalFilename: "broken.png",
		MimeType:         "image/png",
		Data:             bytes.NewReader(garbage),
		Optimize:         true,
	})

	require.NoError(t, err, "a failed optimization must not fail the upload")
	assert.Equal(t, int64(len(garbage)), asset.SizeBytes, "original bytes must be stored unchanged")
}

func TestUploadOptimizePreservesMimeAndRecordsActualSize(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	owner := uuid.New()
	original := testPNG(t, 400, 300)

	asset, err := env.svc.Upload(ctx, mediastore.UploadRequest{
		OwnerID:          owner,
		OriginalFilename: "cat.png",
		MimeType:         "image/png",
		DeclaredSize:     int64(len(original)),
		Data:             bytes.NewReader(original),
		Optimize:         true,
		Width:            200,
	})
	require.NoError(t, err)

	assert.Equal(t, "image/png", asset.MimeType, "optimization must not change the stored MIME type")

	result, err := env.svc.Download(ctx, asset.ID, owner)
	require.NoError(t, err)
	defer result.Body.Close()

	stored := new(bytes.Buffer)
	_, err = stored.ReadFrom(result.Body)
	require.NoError(t, err)

	assert.Equal(t, int64(stored.Len()), asset.SizeBytes,
		"size_bytes must reflect the bytes actually written, not the client's original")

	img, err := png.Decode(bytes.NewReader(stored.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx(), "stored image must be downscaled to the requested width")
}

func TestPrivateAssetHiddenFromOtherUsers(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	owner := uuid.New()
	stranger := uuid.New()

	asset := uploadFixture(t, env.svc, owner, "secret.png", "image/png", testPNG(t, 20, 20))

	_, err := env.svc.GetAsset(ctx, asset.ID, stranger)
	assert.ErrorIs(t, err, mediastore.ErrAssetNotFound, "private assets must not leak existence")

	_, err = env.svc.Download(ctx, asset.ID, stranger)
	assert.ErrorIs(t, err, mediastore.ErrAssetNotFound)

	_, err = env.svc.GetAsset(ctx, asset.ID, owner)
	assert.NoError(t, err)
}

func TestPublicAssetReadableButNotMutable(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	owner := uuid.New()
	stranger := uuid.New()

	asset := uploadFixture(t, env.svc, owner, "shared.png", "image/png", testPNG(t, 20, 20))

	public := mediastore.VisibilityPublic
	_, err := env.svc.UpdateAsset(ctx, mediastore.UpdateAssetRequest{
		AssetID:     asset.ID,
		RequesterID: owner,
		Visibility:  &public,
	})
	require.NoError(t, err)

	got, err := env.svc.GetAsset(ctx, asset.ID, stranger)
	require.NoError(t, err)
	assert.Equal(t, mediastore.VisibilityPublic, got.Visibility)

	err = env.svc.DeleteAsset(ctx, asset.ID, stranger)
	assert.ErrorIs(t, err, mediastore.ErrForbidden, "only the owner may delete")

	_, err = env.svc.UpdateAsset(ctx, mediastore.UpdateAssetRequest{
		AssetID:     asset.ID,
		RequesterID: stranger,
		Metadata:    map[string]interface{}{"stolen": true},
	})
	assert.ErrorIs(t, err, mediastore.ErrForbidden)
}

func TestDeleteRemovesRowBlobAndIsNotRepeatable(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	asset := uploadFixture(t, env.svc, owner, "gone.mp4", "video/mp4", []byte("bytes"))

	require.NoError(t, env.svc.DeleteAsset(ctx, asset.ID, owner))
	assert.Equal(t, 0, env.store.Len())

	_, err := env.svc.GetAsset(ctx, asset.ID, owner)
	assert.ErrorIs(t, err, mediastore.ErrAssetNotFound)

	err = env.svc.DeleteAsset(ctx, asset.ID, owner)
	assert.ErrorIs(t, err, mediastore.ErrAssetNotFound, "second delete must report not found")
}

func TestThumbnailDeterministic(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	asset := uploadFixture(t, env.svc, owner, "photo.png", "image/png", testPNG(t, 300, 200))

	first, err := env.svc.Thumbnail(ctx, mediastore.ThumbnailRequest{
		AssetID: asset.ID, RequesterID: owner, Width: 64, Height: 64,
	})
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := env.svc.Thumbnail(ctx, mediastore.ThumbnailRequest{
		AssetID: asset.ID, RequesterID: owner, Width: 64, Height: 64,
	})
	require.NoError(t, err)
	assert.Equal(t, first, second, "same input and dimensions must yield identical bytes")

	img, _, err := image.Decode(bytes.NewReader(first))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 64, img.Bounds().Dy())
}

func TestThumbnailUnavailableForVideo(t *testing.T) {
	env := setupTestService(t)
	owner := uuid.New()

	asset := uploadFixture(t, env.svc, owner, "clip.mp4", "video/mp4", []byte("video bytes"))

	_, err := env.svc.Thumbnail(context.Background(), mediastore.ThumbnailRequest{
		AssetID: asset.ID, RequesterID: owner, Width: 64, Height: 64,
	})
	assert.ErrorIs(t, err, mediastore.ErrThumbnailUnavailable)
}

func TestListAssetsFiltersAndPaginates(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	owner := uuid.New()
	other := uuid.New()

	uploadFixture(t, env.svc, owner, "holiday-beach.png", "image/png", testPNG(t, 10, 10))
	uploadFixture(t, env.svc, owner, "holiday-hike.png", "image/png", testPNG(t, 10, 10))
	uploadFixture(t, env.svc, owner, "report.mp4", "video/mp4", []byte("v"))
	uploadFixture(t, env.svc, other, "unrelated.png", "image/png", testPNG(t, 10, 10))

	page, err := env.svc.ListAssets(ctx, mediastore.ListRequest{OwnerID: owner})
	require.NoError(t, err)
	assert.Len(t, page.Assets, 3, "listing must only include the requester's assets")
	assert.Equal(t, int64(3), page.Pagination.TotalCount)

	page, err = env.svc.ListAssets(ctx, mediastore.ListRequest{OwnerID: owner, MimeTypePrefix: "image/"})
	require.NoError(t, err)
	assert.Len(t, page.Assets, 2)

	page, err = env.svc.ListAssets(ctx, mediastore.ListRequest{OwnerID: owner, FilenameSearch: "HOLIDAY"})
	require.NoError(t, err)
	assert.Len(t, page.Assets, 2, "filename search must be case-insensitive")

	page, err = env.svc.ListAssets(ctx, mediastore.ListRequest{OwnerID: owner, Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Assets, 1)
	assert.Equal(t, 2, page.Pagination.TotalPages)
}

func TestLifecycleEventsEmitted(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	asset := uploadFixture(t, env.svc, owner, "evented.mp4", "video/mp4", []byte("v"))
	require.NoError(t, env.svc.DeleteAsset(ctx, asset.ID, owner))

	recorded := env.sink.recorded()
	require.Len(t, recorded, 2)
	assert.Equal(t, mediastore.EventAssetCreated, recorded[0].Type)
	assert.Equal(t, asset.ID, recorded[0].AssetID)
	assert.Equal(t, mediastore.EventAssetDeleted, recorded[1].Type)
}

func TestEventFailureDoesNotFailUpload(t *testing.T) {
	env := setupTestService(t)
	env.sink.fail = true

	asset, err := env.svc.Upload(context.Background(), mediastore.UploadRequest{
		OwnerID:          uuid.New(),
		OriginalFilename: "resilient.mp4",
		MimeType:         "video/mp4",
		Data:             bytes.NewReader([]byte("v")),
	})

	require.NoError(t, err, "a dead event broker must not block ingestion")
	assert.NotNil(t, asset)
}

func TestNoopSinkSatisfiesInterface(t *testing.T) {
	var sink mediastore.EventSink = events.NewNoopSink()
	assert.NoError(t, sink.Publish(context.Background(), mediastore.Event{}))
}

// missCache never retains anything, so every thumbnail request reaches the
// render path.
type missCache struct{}

func (missCache) Get(context.Context, mediastore.ThumbKey) ([]byte, bool, error) {
	return nil, false, nil
}

func (missCache) Set(context.Context, mediastore.ThumbKey, []byte, time.Duration) error {
	return nil
}

func (missCache) PurgeAsset(context.Context, uuid.UUID) error { return nil }

// gatedTransformer counts renders and holds the first one open until the
// test releases it, so concurrent callers pile up behind it.
type gatedTransformer struct {
	mu      sync.Mutex
	renders int
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedTransformer) Optimize(data []byte, _ string, _, _, _ int) ([]byte, bool, string) {
	return data, false, ""
}

func (g *gatedTransformer) Thumbnail([]byte, int, int) ([]byte, error) {
	g.mu.Lock()
	g.renders++
	g.mu.Unlock()
	g.once.Do(func() { close(g.started) })
	<-g.release
	return []byte("rendered"), nil
}

func TestThumbnailConcurrentRequestsCollapse(t *testing.T) {
	gate := &gatedTransformer{started: make(chan struct{}), release: make(chan struct{})}
	env := setupTestService(t,
		mediastore.WithThumbnailCache(missCache{}),
		mediastore.WithTransformer(gate),
	)

	owner := uuid.New()
	asset := uploadFixture(t, env.svc, owner, "photo.png", "image/png", testPNG(t, 40, 40))

	const callers = 8
	results := make(chan []byte, callers)
	errs := make(chan error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := env.svc.Thumbnail(context.Background(), mediastore.ThumbnailRequest{
				AssetID:     asset.ID,
				RequesterID: owner,
				Width:       64,
				Height:      64,
			})
			results <- data
			errs <- err
		}()
	}

	<-gate.started
	// Let the remaining callers join the in-flight render before releasing.
	time.Sleep(100 * time.Millisecond)
	close(gate.release)
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	for data := range results {
		assert.Equal(t, []byte("rendered"), data)
	}

	gate.mu.Lock()
	defer gate.mu.Unlock()
	assert.Equal(t, 1, gate.renders, "identical concurrent requests should share one render")
}
