// Package storage implements the Azure Blob storage handler.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/jittakal/kafblockstore/internal/encoder"
	apperrors "github.com/jittakal/kafblockstore/internal/errors"
	"github.com/jittakal/kafblockstore/pkg/block"
	"github.com/jittakal/kafblockstore/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Handler = (*AzureHandler)(nil)

// AzureConfig contains Azure Blob Storage configuration.
type AzureConfig struct {
	AccountName   string
	AccountKey    string
	ContainerName string
	Prefix        string
	Endpoint      string
}

// Validate checks the Azure configuration.
func (c *AzureConfig) Validate() error {
	if c.AccountName == "" {
		return fmt.Errorf("azure account name is required")
	}
	if c.AccountKey == "" {
		return fmt.Errorf("azure account key is required")
	}
	if c.ContainerName == "" {
		return fmt.Errorf("azure container name is required")
	}
	return nil
}

// AzureHandler implements storage.Handler for Azure Blob Storage.
// Relocation re-uploads the blob under the destination host path since
// azblob has no single-call server-side move.
type AzureHandler struct {
	client         *azblob.Client
	containerName  string
	prefix         string
	host           string
	encoderFactory *encoder.Factory
	logger         *slog.Logger
	metrics        MetricsCollector

	mu     sync.Mutex
	keys   map[string]string
	closed bool
}

// NewAzureHandler creates a new Azure Blob storage handler.
func NewAzureHandler(
	cfg AzureConfig,
	host string,
	format block.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*AzureHandler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var connectionString string
	if cfg.Endpoint != "" {
		connectionString = fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;BlobEndpoint=%s",
			cfg.AccountName, cfg.AccountKey, cfg.Endpoint)
	} else {
		connectionString = fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;EndpointSuffix=core.windows.net",
			cfg.AccountName, cfg.AccountKey)
	}

	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	encoderFactory := encoder.NewFactory(format, compression)
	if _, err := encoderFactory.CreateEncoder(); err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	logger.Info("Azure storage handler created",
		"container", cfg.ContainerName,
		"account", cfg.AccountName,
		"prefix", cfg.Prefix,
		"host", host,
		"format", format,
		"compression", compression,
	)

	return &AzureHandler{
		client:         client,
		containerName:  cfg.ContainerName,
		prefix:         cfg.Prefix,
		host:           host,
		encoderFactory: encoderFactory,
		logger:         logger,
		metrics:        metrics,
		keys:           make(map[string]string),
	}, nil
}

// StoreBlock encodes a block's records and uploads the file to Azure Blob.
func (h *AzureHandler) StoreBlock(ctx context.Context, id block.ID, records []block.Record) (*block.StoreResult, error) {
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
			h.metrics.IncStorageErrors("azure", "encoder_create")
		}
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	blobPath := BlockKey(h.prefix, h.host, id, enc.FileExtension())

	// Encode to a temporary file, then upload.
	tempFile := filepath.Join(os.TempDir(), fmt.Sprintf("azure-upload-%d%s", time.Now().UnixNano(), enc.FileExtension()))

	result, err := enc.Encode(tempFile, id, records)
	if err != nil {
		if h.metrics != nil {
			h.metrics.IncStorageErrors("azure", "encode")
		}
		return nil, fmt.Errorf("failed to encode records: %w", err)
	}
	defer os.Remove(tempFile)

	file, err := os.Open(tempFile)
	if err != nil {
		if h.metrics != nil {
			h.metrics.IncStorageErrors("azure", "file_open")
		}
		return nil, fmt.Errorf("failed to open encoded file: %w", err)
	}
	defer file.Close()

	if _, err := h.client.UploadFile(ctx, h.containerName, blobPath, file, nil); err != nil {
		if h.metrics != nil {
			h.metrics.IncStorageErrors("azure", "upload")
			h.metrics.IncBlocksStored("azure", string(enc.Format()), "error")
		}
		return nil, &apperrors.StorageError{Operation: "upload", Key: blobPath, Err: err}
	}

	h.keys[id.String()] = blobPath

	duration := time.Since(startTime)
	h.logger.Info("stored block to Azure Blob",
		"block_id", id.String(),
		"container", h.containerName,
		"blob", blobPath,
		"records", result.RecordCount,
		"size_bytes", result.SizeBytes,
		"duration_ms", duration.Milliseconds(),
	)

	if h.metrics != nil {
		format := string(enc.Format())
		h.metrics.IncBlocksStored("azure", format, "success")
		h.metrics.ObserveBlockSize("azure", format, float64(result.SizeBytes))
		h.metrics.ObserveStoreDuration("azure", duration.Seconds())
	}

	return result, nil
}

// ReallocateBlock moves a stored blob under the destination host path
// by downloading, re-uploading and deleting the source blob.
func (h *AzureHandler) ReallocateBlock(ctx context.Context, id block.ID, host string) error {
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

	download, err := h.client.DownloadStream(ctx, h.containerName, oldPath, nil)
	if err != nil {
		if h.metrics != nil {
			h.metrics.IncStorageErrors("azure", "reallocate")
			h.metrics.IncReallocations("azure", "error")
		}
		return &apperrors.StorageError{Operation: "reallocate", Key: oldPath, Err: err}
	}
	payload, err := io.ReadAll(download.Body)
	download.Body.Close()
	if err != nil {
		if h.metrics != nil {
			h.metrics.IncStorageErrors("azure", "reallocate")
			h.metrics.IncReallocations("azure", "error")
		}
		return &apperrors.StorageError{Operation: "reallocate", Key: oldPath, Err: err}
	}

	if _, err := h.client.UploadStream(ctx, h.containerName, newPath, bytes.NewReader(payload), nil); err != nil {
		if h.metrics != nil {
			h.metrics.IncStorageErrors("azure", "reallocate")
			h.metrics.IncReallocations("azure", "error")
		}
		return &apperrors.StorageError{Operation: "reallocate", Key: newPath, Err: err}
	}

	if _, err := h.client.DeleteBlob(ctx, h.containerName, oldPath, nil); err != nil {
		if h.metrics != nil {
			h.metrics.IncStorageErrors("azure", "reallocate")
		}
		h.logger.Warn("failed to delete source blob after copy",
			"container", h.containerName,
			"blob", oldPath,
			"error", err,
		)
	}

	h.keys[id.String()] = newPath

	if h.metrics != nil {
		h.metrics.IncReallocations("azure", "success")
	}

	h.logger.Info("reallocated block",
		"block_id", id.String(),
		"host", host,
		"container", h.containerName,
		"blob", newPath,
	)
	return nil
}

// CleanupOldBlocks deletes blobs last modified before the threshold.
func (h *AzureHandler) CleanupOldBlocks(ctx context.Context, threshold time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return apperrors.ErrHandlerClosed
	}

	opts := &azblob.ListBlobsFlatOptions{}
	if h.prefix != "" {
		opts.Prefix = &h.prefix
	}

	removed := 0
	pager := h.client.NewListBlobsFlatPager(h.containerName, opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			if h.metrics != nil {
				h.metrics.IncStorageErrors("azure", "cleanup")
			}
			return &apperrors.StorageError{Operation: "cleanup", Key: h.prefix, Err: err}
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil || item.Properties == nil || item.Properties.LastModified == nil {
				continue
			}
			if !item.Properties.LastModified.Before(threshold) {
				continue
			}
			if _, err := h.client.DeleteBlob(ctx, h.containerName, *item.Name, nil); err != nil {
				if h.metrics != nil {
					h.metrics.IncStorageErrors("azure", "cleanup")
				}
				h.logger.Warn("failed to delete old blob",
					"container", h.containerName,
					"blob", *item.Name,
					"error", err,
				)
				continue
			}
			removed++
		}
	}

	h.logger.Info("cleaned up old blocks",
		"container", h.containerName,
		"prefix", h.prefix,
		"threshold", threshold,
		"removed", removed,
	)
	return nil
}

// Close rejects further operations.
func (h *AzureHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	h.logger.Info("closing Azure storage handler")
	return nil
}
