package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/harborlab/mediastore/pkg/mediastore"
)

// Repository implements mediastore.Repository using in-memory storage
type Repository struct {
	mu     sync.RWMutex
	assets map[uuid.UUID]*mediastore.MediaAsset
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		assets: make(map[uuid.UUID]*mediastore.MediaAsset),
	}
}

func (r *Repository) CreateAsset(ctx context.Context, asset *mediastore.MediaAsset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Store a copy to avoid external modifications
	assetCopy := *asset
	r.assets[asset.ID] = &assetCopy

	return nil
}

func (r *Repository) GetAsset(ctx context.Context, id uuid.UUID) (*mediastore.MediaAsset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	asset, exists := r.assets[id]
	if !exists {
		return nil, mediastore.ErrAssetNotFound
	}

	assetCopy := *asset
	return &assetCopy, nil
}

func (r *Repository) UpdateAsset(ctx context.Context, asset *mediastore.MediaAsset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.assets[asset.ID]; !exists {
		return mediastore.ErrAssetNotFound
	}

	assetCopy := *asset
	r.assets[asset.ID] = &assetCopy
	return nil
}

func (r *Repository) DeleteAsset(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.assets[id]; !exists {
		return mediastore.ErrAssetNotFound
	}

	delete(r.assets, id)
	return nil
}

func (r *Repository) ListAssets(ctx context.Context, filter mediastore.AssetFilter) ([]*mediastore.MediaAsset, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*mediastore.MediaAsset
	for _, asset := range r.assets {
		if asset.OwnerID != filter.OwnerID {
			continue
		}
		if filter.MimeTypePrefix != "" && !strings.HasPrefix(asset.MimeType, filter.MimeTypePrefix) {
			continue
		}
		if filter.FilenameSearch != "" &&
			!strings.Contains(strings.ToLower(asset.OriginalFilename), strings.ToLower(filter.FilenameSearch)) {
			continue
		}
		assetCopy := *asset
		matched = append(matched, &assetCopy)
	}

	// Newest first, matching the SQL repository's ordering.
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))

	offset := (filter.Page - 1) * filter.Limit
	if offset >= len(matched) {
		return nil, total, nil
	}
	end := offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}

	return matched[offset:end], total, nil
}
