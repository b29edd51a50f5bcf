package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/harborlab/mediastore/pkg/mediastore"
)

// Default chunking parameters. Payloads at or above ChunkThreshold are
// written as a multipart upload in ChunkSize parts; a transient failure
// mid-write retries the failed part instead of restarting the payload.
const (
	DefaultChunkThreshold = 10 * 1024 * 1024
	DefaultChunkSize      = 8 * 1024 * 1024 // S3 minimum part size is 5 MB

	partRetryAttempts = 3
	partRetryDelay    = 500 * time.Millisecond
)

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)

	// ChunkThreshold and ChunkSize override the multipart defaults when > 0.
	ChunkThreshold int64
	ChunkSize      int64
}

// Backend is an S3-compatible implementation of the mediastore.BlobStore
// interface. Locators are object keys of the form ownerID/key inside the
// configured bucket.
type Backend struct {
	client         *s3.Client
	bucket         string
	chunkThreshold int64
	chunkSize      int64
}

// New creates a new S3-compatible storage backend
func New(config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	if config.Region == "" {
		config.Region = "us-east-1"
	}
	if config.ChunkThreshold <= 0 {
		config.ChunkThreshold = DefaultChunkThreshold
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}

	var awsCfg aws.Config
	var err error

	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				config.AccessKeyID,
				config.SecretAccessKey,
				"",
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
		)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)

	// Custom endpoint for S3-compatible services (MinIO, etc.)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	return &Backend{
		client:         s3.NewFromConfig(awsCfg, s3Options...),
		bucket:         config.Bucket,
		chunkThreshold: config.ChunkThreshold,
		chunkSize:      config.ChunkSize,
	}, nil
}

// Put writes the blob to S3. Small payloads go up in a single PutObject;
// payloads at or above the chunk threshold switch to a multipart stream with
// one part in flight at a time, so a slow transport applies backpressure all
// the way back to the reader.
func (b *Backend) Put(ctx context.Context, key mediastore.BlobKey, reader io.Reader, contentType string) (string, error) {
	locator := path.Join(key.OwnerID.String(), key.Key)

	// Peek up to the threshold to decide between single-shot and multipart.
	head := make([]byte, b.chunkThreshold)
	n, err := io.ReadFull(reader, head)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		if uploadErr := b.putSingle(ctx, locator, head[:n], contentType); uploadErr != nil {
			return "", uploadErr
		}
		return locator, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read payload: %w", err)
	}

	sw, err := b.NewStreamWriter(ctx, locator, contentType)
	if err != nil {
		return "", err
	}

	if err := b.streamChunks(ctx, sw, head, reader); err != nil {
		if abortErr := sw.Abort(ctx); abortErr != nil {
			return "", fmt.Errorf("%w (abort also failed: %v)", err, abortErr)
		}
		return "", err
	}

	return sw.Finish(ctx)
}

// streamChunks feeds the buffered head plus the remaining reader to sw in
// fixed-size chunks. The head and the rest of the payload are chunked as one
// stream so every part except the last is exactly chunkSize; S3 rejects
// non-final parts under its minimum size. Each Write blocks until the
// previous part is acknowledged; nothing is queued ahead of the transport.
func (b *Backend) streamChunks(ctx context.Context, sw mediastore.StreamWriter, head []byte, reader io.Reader) error {
	combined := io.MultiReader(bytes.NewReader(head), reader)

	chunk := make([]byte, b.chunkSize)
	for {
		n, err := io.ReadFull(combined, chunk)
		if n > 0 {
			if werr := sw.Write(ctx, chunk[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read payload: %w", err)
		}
	}
}

func (b *Backend) putSingle(ctx context.Context, locator string, data []byte, contentType string) error {
	uploader := manager.NewUploader(b.client)

	err := retry.Do(
		func() error {
			_, err := uploader.Upload(ctx, &s3.PutObjectInput{
				Bucket:      aws.String(b.bucket),
				Key:         aws.String(locator),
				Body:        bytes.NewReader(data),
				ContentType: aws.String(contentType),
			})
			return err
		},
		retry.Attempts(partRetryAttempts),
		retry.Delay(partRetryDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		// A retried PutObject that ultimately failed leaves nothing behind,
		// but delete defensively in case a prior attempt landed.
		_ = b.Delete(context.WithoutCancel(ctx), locator)
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

// Get opens the blob for streaming reads.
func (b *Backend) Get(ctx context.Context, locator string) (io.ReadCloser, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(locator),
	})

	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, mediastore.ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}

	return result.Body, nil
}

// Delete removes the blob. S3 DeleteObject succeeds on missing keys, which
// gives the idempotent-delete contract for free.
func (b *Backend) Delete(ctx context.Context, locator string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(locator),
	})

	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}

	return nil
}

// Exists reports whether a blob is present at the locator.
func (b *Backend) Exists(ctx context.Context, locator string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(locator),
	})

	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object: %w", err)
	}

	return true, nil
}
