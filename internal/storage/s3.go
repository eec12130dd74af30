// Package storage implements the AWS S3 storage handler.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jittakal/kafblockstore/internal/encoder"
	apperrors "github.com/jittakal/kafblockstore/internal/errors"
	"github.com/jittakal/kafblockstore/pkg/block"
	"github.com/jittakal/kafblockstore/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Handler = (*S3Handler)(nil)

// S3Config contains AWS S3 configuration.
type S3Config struct {
	Bucket       string
	Region       string
	Prefix       string
	Endpoint     string
	UsePathStyle bool
	SSEEnabled   bool
	SSEKMSKeyID  string
}

// Validate checks the S3 configuration.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("s3 bucket is required")
	}
	if c.Region == "" {
		return fmt.Errorf("s3 region is required")
	}
	return nil
}

// S3Handler implements storage.Handler for AWS S3.
// It provides multipart upload support, server-side encryption (SSE),
// server-side copy for block relocation, and paginated cleanup.
type S3Handler struct {
	client         *s3.Client
	uploader       *manager.Uploader
	bucket         string
	prefix         string
	host           string
	sseEnabled     bool
	sseKMSKeyID    string
	encoderFactory *encoder.Factory
	logger         *slog.Logger
	metrics        MetricsCollector

	mu     sync.Mutex
	keys   map[string]string
	closed bool
}

// NewS3Handler creates a new S3 storage handler.
func NewS3Handler(
	cfg S3Config,
	host string,
	format block.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*S3Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx := context.Background()
	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	uploader := manager.NewUploader(s3Client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024 // 10MB parts
		u.Concurrency = 5             // 5 concurrent uploads
	})

	encoderFactory := encoder.NewFactory(format, compression)
	if _, err := encoderFactory.CreateEncoder(); err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	logger.Info("S3 storage handler created",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"prefix", cfg.Prefix,
		"host", host,
		"format", format,
		"compression", compression,
		"sse_enabled", cfg.SSEEnabled,
	)

	return &S3Handler{
		client:         s3Client,
		uploader:       uploader,
		bucket:         cfg.Bucket,
		prefix:         cfg.Prefix,
		host:           host,
		sseEnabled:     cfg.SSEEnabled,
		sseKMSKeyID:    cfg.SSEKMSKeyID,
		encoderFactory: encoderFactory,
		logger:         logger,
		metrics:        metrics,
		keys:           make(map[string]string),
	}, nil
}

// StoreBlock encodes a block's records and uploads the file to S3.
func (h *S3Handler) StoreBlock(ctx context.Context, id block.ID, records []block.Record) (*block.StoreResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, apperrors.ErrHandlerClosed
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to store")
	}

	startTime := time.Now()

	enc, err := h.encoderFactory.CreateEncoder()
	if err != nil {
		if h.metrics != nil {
			h.metrics.IncStorageErrors("s3", "encoder_create")
		}
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	s3Key := BlockKey(h.prefix, h.host, id, enc.FileExtension())

	// Encode to a temporary file, then upload.
	tempFile := filepath.Join(os.TempDir(), fmt.Sprintf("s3-upload-%d%s", time.Now().UnixNano(), enc.FileExtension()))

	result, err := enc.Encode(tempFile, id, records)
	if err != nil {
		if h.metrics != nil {
			h.metrics.IncStorageErrors("s3", "encode")
		}
		return nil, fmt.Errorf("failed to encode records: %w", err)
	}
	defer os.Remove(tempFile)

	file, err := os.Open(tempFile)
	if err != nil {
		if h.metrics != nil {
			h.metrics.IncStorageErrors("s3", "file_open")
		}
		return nil, fmt.Errorf("failed to open encoded file: %w", err)
	}
	defer file.Close()

	uploadInput := &s3.PutObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(s3Key),
		Body:   file,
	}

	if h.sseEnabled {
		if h.sseKMSKeyID != "" {
			uploadInput.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			uploadInput.SSEKMSKeyId = aws.String(h.sseKMSKeyID)
		} else {
			uploadInput.ServerSideEncryption = types.ServerSideEncryptionAes256
		}
	}

	uploadResult, err := h.uploader.Upload(ctx, uploadInput)
	if err != nil {
		if h.metrics != nil {
			h.metrics.IncStorageErrors("s3", "upload")
			h.metrics.IncBlocksStored("s3", string(enc.Format()), "error")
		}
		return nil, &apperrors.StorageError{Operation: "upload", Key: s3Key, Err: err}
	}

	h.keys[id.String()] = s3Key

	duration := time.Since(startTime)
	h.logger.Info("stored block to S3",
		"block_id", id.String(),
		"bucket", h.bucket,
		"key", s3Key,
		"records", result.RecordCount,
		"size_bytes", result.SizeBytes,
		"location", uploadResult.Location,
		"duration_ms", duration.Milliseconds(),
	)

	if h.metrics != nil {
		format := string(enc.Format())
		h.metrics.IncBlocksStored("s3", format, "success")
		h.metrics.ObserveBlockSize("s3", format, float64(result.SizeBytes))
		h.metrics.ObserveStoreDuration("s3", duration.Seconds())
	}

	return result, nil
}

// ReallocateBlock moves a stored block object under the destination
// host's key space using a server-side copy followed by a delete.
func (h *S3Handler) ReallocateBlock(ctx context.Context, id block.ID, host string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return apperrors.ErrHandlerClosed
	}

	oldKey, ok := h.keys[id.String()]
	if !ok {
		return &apperrors.StorageError{Operation: "reallocate", Key: id.String(), Err: apperrors.ErrBlockNotFound}
	}

	enc, err := h.encoderFactory.CreateEncoder()
	if err != nil {
		return fmt.Errorf("failed to create encoder: %w", err)
	}
	newKey := BlockKey(h.prefix, host, id, enc.FileExtension())

	_, err = h.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(h.bucket),
		CopySource: aws.String(h.bucket + "/" + oldKey),
		Key:        aws.String(newKey),
	})
	if err != nil {
		if h.metrics != nil {
			h.metrics.IncStorageErrors("s3", "reallocate")
			h.metrics.IncReallocations("s3", "error")
		}
		return &apperrors.StorageError{Operation: "reallocate", Key: oldKey, Err: err}
	}

	_, err = h.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(oldKey),
	})
	if err != nil {
		if h.metrics != nil {
			h.metrics.IncStorageErrors("s3", "reallocate")
		}
		h.logger.Warn("failed to delete source object after copy",
			"bucket", h.bucket,
			"key", oldKey,
			"error", err,
		)
	}

	h.keys[id.String()] = newKey

	if h.metrics != nil {
		h.metrics.IncReallocations("s3", "success")
	}

	h.logger.Info("reallocated block",
		"block_id", id.String(),
		"host", host,
		"bucket", h.bucket,
		"key", newKey,
	)
	return nil
}

// CleanupOldBlocks deletes objects last modified before the threshold.
// Objects are listed under the configured prefix and deleted in batches.
func (h *S3Handler) CleanupOldBlocks(ctx context.Context, threshold time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return apperrors.ErrHandlerClosed
	}

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(h.bucket),
	}
	if h.prefix != "" {
		input.Prefix = aws.String(h.prefix)
	}

	removed := 0
	paginator := s3.NewListObjectsV2Paginator(h.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			if h.metrics != nil {
				h.metrics.IncStorageErrors("s3", "cleanup")
			}
			return &apperrors.StorageError{Operation: "cleanup", Key: h.prefix, Err: err}
		}

		var stale []types.ObjectIdentifier
		for _, obj := range page.Contents {
			if obj.LastModified != nil && obj.LastModified.Before(threshold) {
				stale = append(stale, types.ObjectIdentifier{Key: obj.Key})
			}
		}
		if len(stale) == 0 {
			continue
		}

		_, err = h.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(h.bucket),
			Delete: &types.Delete{Objects: stale},
		})
		if err != nil {
			if h.metrics != nil {
				h.metrics.IncStorageErrors("s3", "cleanup")
			}
			return &apperrors.StorageError{Operation: "cleanup", Key: h.prefix, Err: err}
		}
		removed += len(stale)
	}

	h.logger.Info("cleaned up old blocks",
		"bucket", h.bucket,
		"prefix", h.prefix,
		"threshold", threshold,
		"removed", removed,
	)
	return nil
}

// Close rejects further operations.
func (h *S3Handler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	h.logger.Info("closing S3 storage handler")
	return nil
}
