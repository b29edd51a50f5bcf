package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/harborlab/mediastore/pkg/mediastore"
	"github.com/harborlab/mediastore/pkg/mediastore/api"
	"github.com/harborlab/mediastore/pkg/mediastore/config"
)

type Config struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`

	DatabaseURL string `env:"DATABASE_URL" env-default:""`

	Storage StorageConfig
	Cache   CacheConfig
	Events  EventsConfig
	Auth    AuthConfig

	MaxUploadMB      int64 `env:"MAX_UPLOAD_MB" env-default:"500"`
	ThumbnailTTLSecs int   `env:"THUMBNAIL_TTL_SECONDS" env-default:"3600"`
	ThumbnailWorkers int   `env:"THUMBNAIL_WORKERS" env-default:"4"`
}

type StorageConfig struct {
	Type            string `env:"STORAGE_TYPE" env-default:"fs"`
	BaseDir         string `env:"STORAGE_BASE_DIR" env-default:"./data/media"`
	Endpoint        string `env:"AWS_S3_ENDPOINT" env-default:""`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID" env-default:""`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" env-default:""`
	Bucket          string `env:"AWS_S3_BUCKET" env-default:""`
	Region          string `env:"AWS_S3_REGION" env-default:"us-east-1"`
	UsePathStyle    bool   `env:"AWS_S3_USE_PATH_STYLE" env-default:"false"`
}

type CacheConfig struct {
	Type          string `env:"CACHE_TYPE" env-default:"memory"`
	RedisAddr     string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`
}

type EventsConfig struct {
	Sink         string `env:"EVENT_SINK" env-default:"log"`
	KafkaBrokers string `env:"KAFKA_BROKERS" env-default:""`
	KafkaTopic   string `env:"KAFKA_TOPIC" env-default:"media-events"`
}

type AuthConfig struct {
	Mode        string `env:"AUTH_MODE" env-default:"jwt"`
	JWTSecret   string `env:"JWT_SECRET" env-default:""`
	VerifierURL string `env:"AUTH_VERIFIER_URL" env-default:""`
}

func main() {
	var envCfg Config
	if err := cleanenv.ReadEnv(&envCfg); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	logger := newLogger(envCfg.Environment)
	slog.SetDefault(logger)

	cfg, err := buildServerConfig(envCfg)
	if err != nil {
		logger.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	svc, err := cfg.BuildService(ctx, logger)
	if err != nil {
		logger.Error("Failed to build service", "err", err)
		os.Exit(1)
	}

	verifier, err := cfg.BuildVerifier()
	if err != nil {
		logger.Error("Failed to build verifier", "err", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           routes(svc, verifier, cfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Media server starting",
			"port", cfg.Port,
			"environment", cfg.Environment,
			"storage", cfg.Storage.Type,
			"database", cfg.DatabaseType,
			"cache", cfg.Cache.Type,
			"events", cfg.Events.Sink)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "err", err)
		os.Exit(1)
	}

	logger.Info("Server exiting")
}

func buildServerConfig(envCfg Config) (*config.ServerConfig, error) {
	opts := []config.Option{
		config.WithPort(envCfg.Port),
		config.WithEnvironment(envCfg.Environment),
		config.WithUploadLimit(envCfg.MaxUploadMB * 1024 * 1024),
		config.WithThumbnailSettings(
			time.Duration(envCfg.ThumbnailTTLSecs)*time.Second,
			envCfg.ThumbnailWorkers,
		),
	}

	if envCfg.DatabaseURL != "" {
		opts = append(opts, config.WithDatabase("postgres", envCfg.DatabaseURL))
	}

	switch envCfg.Storage.Type {
	case "memory":
		opts = append(opts, config.WithMemoryStorage())
	case "fs":
		opts = append(opts, config.WithFilesystemStorage(envCfg.Storage.BaseDir))
	case "s3":
		opts = append(opts, config.WithS3Storage(config.S3Config{
			Region:          envCfg.Storage.Region,
			Bucket:          envCfg.Storage.Bucket,
			AccessKeyID:     envCfg.Storage.AccessKeyID,
			SecretAccessKey: envCfg.Storage.SecretAccessKey,
			Endpoint:        envCfg.Storage.Endpoint,
			UsePathStyle:    envCfg.Storage.UsePathStyle,
		}))
	default:
		return nil, fmt.Errorf("unsupported STORAGE_TYPE: %s", envCfg.Storage.Type)
	}

	if envCfg.Cache.Type == "redis" {
		opts = append(opts, config.WithRedisCache(
			envCfg.Cache.RedisAddr, envCfg.Cache.RedisPassword, envCfg.Cache.RedisDB))
	}

	switch envCfg.Events.Sink {
	case "kafka":
		opts = append(opts, config.WithKafkaEvents(
			strings.Split(envCfg.Events.KafkaBrokers, ","), envCfg.Events.KafkaTopic))
	case "log", "none":
		opts = append(opts, config.WithEventSink(envCfg.Events.Sink))
	default:
		return nil, fmt.Errorf("unsupported EVENT_SINK: %s", envCfg.Events.Sink)
	}

	switch envCfg.Auth.Mode {
	case "jwt":
		opts = append(opts, config.WithJWTAuth(envCfg.Auth.JWTSecret))
	case "remote":
		opts = append(opts, config.WithRemoteAuth(envCfg.Auth.VerifierURL, 0))
	default:
		return nil, fmt.Errorf("unsupported AUTH_MODE: %s", envCfg.Auth.Mode)
	}

	return config.Load(opts...)
}

func routes(svc mediastore.Service, verifier mediastore.Verifier, cfg *config.ServerConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(api.RequestID)
	r.Use(api.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, map[string]string{
			"status":  "healthy",
			"storage": cfg.Storage.Type,
		})
	})

	mediaHandler := api.NewMediaHandler(svc, cfg.MaxUploadBytes)
	r.Route("/media", func(r chi.Router) {
		r.Use(api.Authenticate(verifier))
		r.Mount("/", mediaHandler.Routes())
	})

	return r
}

func newLogger(environment string) *slog.Logger {
	if environment == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
