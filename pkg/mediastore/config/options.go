package config

import (
	"fmt"
	"time"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the metadata repository backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		if dbType != "memory" && dbType != "postgres" {
			return fmt.Errorf("database type must be 'memory' or 'postgres', got: %s", dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithMemoryStorage selects the in-memory blob store (for testing)
func WithMemoryStorage() Option {
	return func(c *ServerConfig) error {
		c.Storage = StorageConfig{Type: "memory"}
		return nil
	}
}

// WithFilesystemStorage selects filesystem blob storage rooted at baseDir
func WithFilesystemStorage(baseDir string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.Storage = StorageConfig{Type: "fs", FS: FSConfig{BaseDir: baseDir}}
		return nil
	}
}

// WithS3Storage selects S3 blob storage
func WithS3Storage(s3 S3Config) Option {
	return func(c *ServerConfig) error {
		if s3.Bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
		if s3.Region == "" {
			s3.Region = "us-east-1"
		}
		c.Storage = StorageConfig{Type: "s3", S3: s3}
		return nil
	}
}

// WithRedisCache selects the Redis thumbnail cache
func WithRedisCache(addr, password string, db int) Option {
	return func(c *ServerConfig) error {
		if addr == "" {
			return fmt.Errorf("redis address cannot be empty")
		}
		c.Cache = CacheConfig{Type: "redis", RedisAddr: addr, RedisPassword: password, RedisDB: db}
		return nil
	}
}

// WithKafkaEvents publishes lifecycle events to Kafka
func WithKafkaEvents(brokers []string, topic string) Option {
	return func(c *ServerConfig) error {
		if len(brokers) == 0 {
			return fmt.Errorf("at least one kafka broker is required")
		}
		if topic == "" {
			topic = "media-events"
		}
		c.Events = EventsConfig{Sink: "kafka", KafkaBrokers: brokers, KafkaTopic: topic}
		return nil
	}
}

// WithEventSink selects a non-kafka event sink ("log" or "none")
func WithEventSink(sink string) Option {
	return func(c *ServerConfig) error {
		if sink != "log" && sink != "none" {
			return fmt.Errorf("event sink must be 'log' or 'none', got: %s", sink)
		}
		c.Events = EventsConfig{Sink: sink}
		return nil
	}
}

// WithJWTAuth verifies bearer tokens locally with an HMAC secret
func WithJWTAuth(secret string) Option {
	return func(c *ServerConfig) error {
		if secret == "" {
			return fmt.Errorf("jwt secret cannot be empty")
		}
		c.Auth = AuthConfig{Mode: "jwt", JWTSecret: secret, VerifierTimeout: c.Auth.VerifierTimeout}
		return nil
	}
}

// WithRemoteAuth verifies bearer tokens against an external verifier service
func WithRemoteAuth(url string, timeout time.Duration) Option {
	return func(c *ServerConfig) error {
		if url == "" {
			return fmt.Errorf("verifier url cannot be empty")
		}
		if timeout <= 0 {
			timeout = 3 * time.Second
		}
		c.Auth = AuthConfig{Mode: "remote", VerifierURL: url, VerifierTimeout: timeout}
		return nil
	}
}

// WithUploadLimit sets the maximum accepted upload size in bytes
func WithUploadLimit(maxBytes int64) Option {
	return func(c *ServerConfig) error {
		if maxBytes <= 0 {
			return fmt.Errorf("upload limit must be positive, got: %d", maxBytes)
		}
		c.MaxUploadBytes = maxBytes
		return nil
	}
}

// WithThumbnailSettings tunes thumbnail caching and render concurrency
func WithThumbnailSettings(ttl time.Duration, workers int) Option {
	return func(c *ServerConfig) error {
		if ttl > 0 {
			c.ThumbnailTTL = ttl
		}
		if workers > 0 {
			c.ThumbnailWorkers = workers
		}
		return nil
	}
}
