package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/avast/retry-go/v4"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/harborlab/mediastore/pkg/mediastore"
)

// multipartWriter implements mediastore.StreamWriter on an S3 multipart
// upload. Parts are uploaded strictly one at a time; Write does not return
// until S3 has acknowledged the part, and each part retries independently
// with bounded backoff before the whole write is abandoned.
type multipartWriter struct {
	client   *s3.Client
	bucket   string
	locator  string
	uploadID string

	partNum   int32
	completed []types.CompletedPart
	done      bool
}

// NewStreamWriter starts a multipart upload for the given locator and
// returns a writer for its parts. Exactly one of Finish or Abort must be
// called on the result.
func (b *Backend) NewStreamWriter(ctx context.Context, locator, contentType string) (mediastore.StreamWriter, error) {
	out, err := b.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(locator),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start multipart upload: %w", err)
	}

	return &multipartWriter{
		client:   b.client,
		bucket:   b.bucket,
		locator:  locator,
		uploadID: aws.ToString(out.UploadId),
	}, nil
}

// Write uploads one part, retrying transient failures with bounded backoff.
func (w *multipartWriter) Write(ctx context.Context, chunk []byte) error {
	if w.done {
		return errors.New("write on finished stream")
	}

	w.partNum++
	partNum := w.partNum

	var etag *string
	err := retry.Do(
		func() error {
			out, err := w.client.UploadPart(ctx, &s3.UploadPartInput{
				Bucket:     aws.String(w.bucket),
				Key:        aws.String(w.locator),
				UploadId:   aws.String(w.uploadID),
				PartNumber: aws.Int32(partNum),
				Body:       bytes.NewReader(chunk),
			})
			if err != nil {
				return err
			}
			etag = out.ETag
			return nil
		},
		retry.Attempts(partRetryAttempts),
		retry.Delay(partRetryDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upload part %d: %w", partNum, err)
	}

	w.completed = append(w.completed, types.CompletedPart{
		ETag:       etag,
		PartNumber: aws.Int32(partNum),
	})
	return nil
}

// Finish commits the multipart upload and returns the locator.
func (w *multipartWriter) Finish(ctx context.Context) (string, error) {
	if w.done {
		return "", errors.New("stream already finished")
	}
	w.done = true

	_, err := w.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(w.bucket),
		Key:      aws.String(w.locator),
		UploadId: aws.String(w.uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: w.completed,
		},
	})
	if err != nil {
		// Best effort: do not leave the partial upload accruing storage.
		_, _ = w.client.AbortMultipartUpload(context.WithoutCancel(ctx), &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(w.bucket),
			Key:      aws.String(w.locator),
			UploadId: aws.String(w.uploadID),
		})
		return "", fmt.Errorf("failed to complete multipart upload: %w", err)
	}

	return w.locator, nil
}

// Abort discards all uploaded parts. Runs detached from the request context
// so a client disconnect still cleans up.
func (w *multipartWriter) Abort(ctx context.Context) error {
	if w.done {
		return nil
	}
	w.done = true

	_, err := w.client.AbortMultipartUpload(context.WithoutCancel(ctx), &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(w.bucket),
		Key:      aws.String(w.locator),
		UploadId: aws.String(w.uploadID),
	})
	if err != nil {
		return fmt.Errorf("failed to abort multipart upload: %w", err)
	}
	return nil
}
