// Package storage implements the Google Cloud Storage handler.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/jittakal/kafblockstore/internal/encoder"
	apperrors "github.com/jittakal/kafblockstore/internal/errors"
	"github.com/jittakal/kafblockstore/pkg/block"
	pkgstorage "github.com/jittakal/kafblockstore/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ pkgstorage.Handler = (*GCSHandler)(nil)

// GCSConfig contains Google Cloud Storage configuration.
type GCSConfig struct {
	Bucket               string
	ProjectID            string
	Prefix               string
	CredentialsFile      string
	CredentialsJSON      string
	Endpoint             string
	UseDefaultCredential bool
}

// Validate checks the GCS configuration.
func (c *GCSConfig) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("gcs bucket is required")
	}
	return nil
}

// GCSHandler implements storage.Handler for Google Cloud Storage.
// It supports multiple authentication methods (service account file,
// JSON, default credentials), server-side copy for block relocation,
// and prefix-scoped cleanup.
type GCSHandler struct {
	client         *storage.Client
	bucket         string
	prefix         string
	host           string
	encoderFactory *encoder.Factory
	logger         *slog.Logger
	metrics        MetricsCollector

	mu     sync.Mutex
	keys   map[string]string
	closed bool
}

// NewGCSHandler creates a new Google Cloud Storage handler.
func NewGCSHandler(
	cfg GCSConfig,
	host string,
	format block.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*GCSHandler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx := context.Background()

	var clientOpts []option.ClientOption
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.Endpoint))
	}

	if cfg.UseDefaultCredential {
		logger.Info("using default GCP credentials")
	} else if cfg.CredentialsJSON != "" {
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		logger.Info("using GCP credentials from JSON string")
	} else if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info("using GCP credentials from file", "file", cfg.CredentialsFile)
	} else {
		logger.Info("no explicit credentials provided, using default GCP credentials")
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	encoderFactory := encoder.NewFactory(format, compression)
	if _, err := encoderFactory.CreateEncoder(); err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	logger.Info("GCS storage handler created",
		"bucket", cfg.Bucket,
		"project_id", cfg.ProjectID,
		"prefix", cfg.Prefix,
		"host", host,
		"format", format,
		"compression", compression,
	)

	return &GCSHandler{
		client:         client,
		bucket:         cfg.Bucket,
		prefix:         cfg.Prefix,
		host:           host,
		encoderFactory: encoderFactory,
		logger:         logger,
		metrics:        metrics,
		keys:           make(map[string]string),
	}, nil
}

// StoreBlock encodes a block's records and uploads the file to GCS.
func (h *GCSHandler) StoreBlock(ctx context.Context, id block.ID, records []block.Record) (*block.StoreResult, error) {
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
			h.metrics.IncStorageErrors("gcs", "encoder_create")
		}
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	objectPath := BlockKey(h.prefix, h.host, id, enc.FileExtension())

	// Encode to a temporary file, then upload.
	tempFile := filepath.Join(os.TempDir(), fmt.Sprintf("gcs-upload-%d%s", time.Now().UnixNano(), enc.FileExtension()))

	result, err := enc.Encode(tempFile, id, records)
	if err != nil {
		if h.metrics != nil {
			h.metrics.IncStorageErrors("gcs", "encode")
		}
		return nil, fmt.Errorf("failed to encode records: %w", err)
	}
	defer os.Remove(tempFile)

	file, err := os.Open(tempFile)
	if err != nil {
		if h.metrics != nil {
			h.metrics.IncStorageErrors("gcs", "file_open")
		}
		return nil, fmt.Errorf("failed to open encoded file: %w", err)
	}
	defer file.Close()

	obj := h.client.Bucket(h.bucket).Object(objectPath)
	gcsWriter := obj.NewWriter(ctx)

	switch enc.Format() {
	case block.FormatAvro:
		gcsWriter.ContentType = "application/avro"
	default:
		gcsWriter.ContentType = "application/octet-stream"
	}

	if _, err := io.Copy(gcsWriter, file); err != nil {
		if h.metrics != nil {
			h.metrics.IncStorageErrors("gcs", "upload")
		}
		gcsWriter.Close()
		return nil, &apperrors.StorageError{Operation: "upload", Key: objectPath, Err: err}
	}

	if err := gcsWriter.Close(); err != nil {
		if h.metrics != nil {
			h.metrics.IncStorageErrors("gcs", "close")
		}
		return nil, &apperrors.StorageError{Operation: "upload", Key: objectPath, Err: err}
	}

	h.keys[id.String()] = objectPath

	duration := time.Since(startTime)
	h.logger.Info("stored block to GCS",
		"block_id", id.String(),
		"bucket", h.bucket,
		"object", objectPath,
		"records", result.RecordCount,
		"size_bytes", result.SizeBytes,
		"duration_ms", duration.Milliseconds(),
	)

	if h.metrics != nil {
		format := string(enc.Format())
		h.metrics.IncBlocksStored("gcs", format, "success")
		h.metrics.ObserveBlockSize("gcs", format, float64(result.SizeBytes))
		h.metrics.ObserveStoreDuration("gcs", duration.Seconds())
	}

	return result, nil
}

// ReallocateBlock moves a stored block object under the destination
// host's key space using a server-side copy followed by a delete.
func (h *GCSHandler) ReallocateBlock(ctx context.Context, id block.ID, host string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return apperrors.ErrHandlerClosed
	}

	oldPath, ok := h.keys[id.String()]
	if !ok {
		return &apperrors.StorageError{Operation: "reallocate", Key: id.String(), Err: apperrors.ErrBlockNotFound}
	}

	enc, err := h.encoderFactory.CreateEncoder()
	if err != nil {
		return fmt.Errorf("failed to create encoder: %w", err)
	}
	newPath := BlockKey(h.prefix, host, id, enc.FileExtension())

	bucket := h.client.Bucket(h.bucket)
	src := bucket.Object(oldPath)
	dst := bucket.Object(newPath)

	if _, err := dst.CopierFrom(src).Run(ctx); err != nil {
		if h.metrics != nil {
			h.metrics.IncStorageErrors("gcs", "reallocate")
			h.metrics.IncReallocations("gcs", "error")
		}
		return &apperrors.StorageError{Operation: "reallocate", Key: oldPath, Err: err}
	}

	if err := src.Delete(ctx); err != nil {
		if h.metrics != nil {
			h.metrics.IncStorageErrors("gcs", "reallocate")
		}
		h.logger.Warn("failed to delete source object after copy",
			"bucket", h.bucket,
			"object", oldPath,
			"error", err,
		)
	}

	h.keys[id.String()] = newPath

	if h.metrics != nil {
		h.metrics.IncReallocations("gcs", "success")
	}

	h.logger.Info("reallocated block",
		"block_id", id.String(),
		"host", host,
		"bucket", h.bucket,
		"object", newPath,
	)
	return nil
}

// CleanupOldBlocks deletes objects created before the threshold.
func (h *GCSHandler) CleanupOldBlocks(ctx context.Context, threshold time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return apperrors.ErrHandlerClosed
	}

	bucket := h.client.Bucket(h.bucket)
	query := &storage.Query{}
	if h.prefix != "" {
		query.Prefix = h.prefix
	}

	removed := 0
	it := bucket.Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			if h.metrics != nil {
				h.metrics.IncStorageErrors("gcs", "cleanup")
			}
			return &apperrors.StorageError{Operation: "cleanup", Key: h.prefix, Err: err}
		}
		if !attrs.Created.Before(threshold) {
			continue
		}
		if err := bucket.Object(attrs.Name).Delete(ctx); err != nil {
			if h.metrics != nil {
				h.metrics.IncStorageErrors("gcs", "cleanup")
			}
			h.logger.Warn("failed to delete old object",
				"bucket", h.bucket,
				"object", attrs.Name,
				"error", err,
			)
			continue
		}
		removed++
	}

	h.logger.Info("cleaned up old blocks",
		"bucket", h.bucket,
		"prefix", h.prefix,
		"threshold", threshold,
		"removed", removed,
	)
	return nil
}

// Close closes the GCS client and rejects further operations.
func (h *GCSHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	h.logger.Info("closing GCS storage handler")
	if h.client != nil {
		return h.client.Close()
	}
	return nil
}
