// Package config builds a fully wired media service from declarative
// configuration. Exactly one backend is chosen per concern (repository,
// blob store, thumbnail cache, event sink, verifier) at load time.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/harborlab/mediastore/pkg/mediastore"
	"github.com/harborlab/mediastore/pkg/mediastore/auth"
	"github.com/harborlab/mediastore/pkg/mediastore/events"
	repomemory "github.com/harborlab/mediastore/pkg/mediastore/repo/memory"
	repopg "github.com/harborlab/mediastore/pkg/mediastore/repo/postgres"
	fsstorage "github.com/harborlab/mediastore/pkg/mediastore/storage/fs"
	memorystorage "github.com/harborlab/mediastore/pkg/mediastore/storage/memory"
	s3storage "github.com/harborlab/mediastore/pkg/mediastore/storage/s3"
	"github.com/harborlab/mediastore/pkg/mediastore/thumbcache"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of
// library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:        "8080",
		Environment: "development",

		DatabaseType: "memory",

		Storage: StorageConfig{
			Type: "memory",
			FS:   FSConfig{BaseDir: "./data/media"},
		},

		Cache: CacheConfig{Type: "memory"},

		Events: EventsConfig{
			Sink:       "log",
			KafkaTopic: "media-events",
		},

		Auth: AuthConfig{
			Mode:            "jwt",
			VerifierTimeout: 3 * time.Second,
		},

		MaxUploadBytes:   mediastore.DefaultMaxUploadBytes,
		ThumbnailTTL:     mediastore.DefaultThumbnailTTL,
		ThumbnailWorkers: mediastore.DefaultThumbnailWorkers,
	}
}

// ServerConfig represents server configuration for the media service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"

	Storage StorageConfig
	Cache   CacheConfig
	Events  EventsConfig
	Auth    AuthConfig

	MaxUploadBytes   int64
	ThumbnailTTL     time.Duration
	ThumbnailWorkers int
}

// StorageConfig selects and parameterizes the single blob storage backend.
type StorageConfig struct {
	Type string // "memory", "fs", "s3"
	FS   FSConfig
	S3   S3Config
}

type FSConfig struct {
	BaseDir string
}

type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	UsePathStyle    bool
}

// CacheConfig selects the thumbnail cache backend.
type CacheConfig struct {
	Type          string // "memory", "redis"
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// EventsConfig selects the lifecycle event sink.
type EventsConfig struct {
	Sink         string // "log", "kafka", "none"
	KafkaBrokers []string
	KafkaTopic   string
}

// AuthConfig selects the token verifier.
type AuthConfig struct {
	Mode            string // "jwt", "remote"
	JWTSecret       string
	VerifierURL     string
	VerifierTimeout time.Duration
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}
	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	switch c.Storage.Type {
	case "memory":
	case "fs":
		if c.Storage.FS.BaseDir == "" {
			return errors.New("storage base_dir is required for fs storage")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return errors.New("s3 bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	switch c.Cache.Type {
	case "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return errors.New("redis address is required for redis cache")
		}
	default:
		return fmt.Errorf("unsupported cache type: %s", c.Cache.Type)
	}

	switch c.Events.Sink {
	case "log", "none":
	case "kafka":
		if len(c.Events.KafkaBrokers) == 0 {
			return errors.New("kafka brokers are required for kafka events")
		}
	default:
		return fmt.Errorf("unsupported event sink: %s", c.Events.Sink)
	}

	switch c.Auth.Mode {
	case "jwt":
		if c.Auth.JWTSecret == "" {
			return errors.New("jwt secret is required for jwt auth")
		}
	case "remote":
		if c.Auth.VerifierURL == "" {
			return errors.New("verifier url is required for remote auth")
		}
	default:
		return fmt.Errorf("unsupported auth mode: %s", c.Auth.Mode)
	}

	return nil
}

// BuildService creates a Service instance from the server configuration
func (c *ServerConfig) BuildService(ctx context.Context, logger *slog.Logger) (mediastore.Service, error) {
	repo, err := c.buildRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}

	store, err := c.buildStorageBackend()
	if err != nil {
		return nil, fmt.Errorf("failed to build storage backend: %w", err)
	}

	cache, err := c.buildCache()
	if err != nil {
		return nil, fmt.Errorf("failed to build thumbnail cache: %w", err)
	}

	sink := c.buildEventSink(logger)

	return mediastore.New(
		mediastore.WithRepository(repo),
		mediastore.WithBlobStore(store),
		mediastore.WithThumbnailCache(cache),
		mediastore.WithEventSink(sink),
		mediastore.WithLogger(logger),
		mediastore.WithMaxUploadBytes(c.MaxUploadBytes),
		mediastore.WithThumbnailTTL(c.ThumbnailTTL),
		mediastore.WithThumbnailWorkers(c.ThumbnailWorkers),
	)
}

// BuildVerifier creates the token verifier from the auth configuration
func (c *ServerConfig) BuildVerifier() (mediastore.Verifier, error) {
	switch c.Auth.Mode {
	case "jwt":
		return auth.NewJWTVerifier(c.Auth.JWTSecret)
	case "remote":
		return auth.NewRemoteVerifier(c.Auth.VerifierURL, c.Auth.VerifierTimeout)
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", c.Auth.Mode)
	}
}

func (c *ServerConfig) buildRepository(ctx context.Context) (mediastore.Repository, error) {
	switch c.DatabaseType {
	case "memory":
		return repomemory.New(), nil
	case "postgres":
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("database ping failed: %w", err)
		}
		return repopg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

func (c *ServerConfig) buildStorageBackend() (mediastore.BlobStore, error) {
	switch c.Storage.Type {
	case "memory":
		return memorystorage.New(), nil
	case "fs":
		return fsstorage.New(fsstorage.Config{BaseDir: c.Storage.FS.BaseDir})
	case "s3":
		return s3storage.New(s3storage.Config{
			Region:          c.Storage.S3.Region,
			Bucket:          c.Storage.S3.Bucket,
			AccessKeyID:     c.Storage.S3.AccessKeyID,
			SecretAccessKey: c.Storage.S3.SecretAccessKey,
			Endpoint:        c.Storage.S3.Endpoint,
			UsePathStyle:    c.Storage.S3.UsePathStyle,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
}

func (c *ServerConfig) buildCache() (mediastore.ThumbnailCache, error) {
	switch c.Cache.Type {
	case "memory":
		return thumbcache.NewMemory(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     c.Cache.RedisAddr,
			Password: c.Cache.RedisPassword,
			DB:       c.Cache.RedisDB,
		})
		return thumbcache.NewRedis(client), nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", c.Cache.Type)
	}
}

func (c *ServerConfig) buildEventSink(logger *slog.Logger) mediastore.EventSink {
	switch c.Events.Sink {
	case "kafka":
		return events.NewKafkaSink(c.Events.KafkaBrokers, c.Events.KafkaTopic)
	case "log":
		return events.NewLogSink(logger)
	default:
		return events.NewNoopSink()
	}
}
