package thumbcache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/harborlab/mediastore/pkg/mediastore"
)

// Redis implements mediastore.ThumbnailCache on a shared Redis instance.
//
// Each rendition lives under its own key with a TTL; a per-asset index set
// tracks the renditions so PurgeAsset can drop them in one pass. The index
// set carries its own TTL so it cannot outlive the entries it names forever.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an existing Redis client. The client is long-lived and
// injected; this package never constructs its own connection.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func thumbField(key mediastore.ThumbKey) string {
	return fmt.Sprintf("thumb:%s:%dx%d", key.AssetID, key.Width, key.Height)
}

func assetIndex(assetID uuid.UUID) string {
	return fmt.Sprintf("thumb:%s:index", assetID)
}

func (c *Redis) Get(ctx context.Context, key mediastore.ThumbKey) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, thumbField(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	return data, true, nil
}

func (c *Redis) Set(ctx context.Context, key mediastore.ThumbKey, data []byte, ttl time.Duration) error {
	field := thumbField(key)
	index := assetIndex(key.AssetID)

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, field, data, ttl)
	pipe.SAdd(ctx, index, field)
	pipe.Expire(ctx, index, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *Redis) PurgeAsset(ctx context.Context, assetID uuid.UUID) error {
	index := assetIndex(assetID)

	fields, err := c.client.SMembers(ctx, index).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("cache purge: %w", err)
	}

	if len(fields) > 0 {
		if err := c.client.Del(ctx, fields...).Err(); err != nil {
			return fmt.Errorf("cache purge: %w", err)
		}
	}
	if err := c.client.Del(ctx, index).Err(); err != nil {
		return fmt.Errorf("cache purge: %w", err)
	}
	return nil
}
