// Package storage provides cold-storage upload support for archived
// notification batches.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3PutClient abstracts the S3 PutObject operation for testability.
type S3PutClient interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3ArchiveUploader writes gzip JSONL archive batches to an S3 bucket.
// Uploads happen before the source rows are deleted, so a failed upload
// leaves the data in place for the next run.
type S3ArchiveUploader struct {
	client S3PutClient
	bucket string
	logger *slog.Logger
}

// NewS3ArchiveUploader creates an uploader targeting the given bucket.
// logger falls back to slog.Default when nil.
func NewS3ArchiveUploader(client S3PutClient, bucket string, logger *slog.Logger) *S3ArchiveUploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3ArchiveUploader{
		client: client,
		bucket: bucket,
		logger: logger,
	}
}

// UploadArchive stores one archive batch under the given key.
func (u *S3ArchiveUploader) UploadArchive(ctx context.Context, key string, data []byte) error {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/gzip"),
	})
	if err != nil {
		return fmt.Errorf("uploading archive %s to %s: %w", key, u.bucket, err)
	}

	u.logger.DebugContext(ctx, "archive batch uploaded",
		"bucket", u.bucket,
		"key", key,
		"bytes", len(data),
	)
	return nil
}
