// Package storage implements the filesystem storage handler.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jittakal/kafblockstore/internal/encoder"
	apperrors "github.com/jittakal/kafblockstore/internal/errors"
	"github.com/jittakal/kafblockstore/pkg/block"
	"github.com/jittakal/kafblockstore/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Handler = (*FileHandler)(nil)

// FileConfig contains local filesystem configuration.
type FileConfig struct {
	BasePath string
}

type fileEntry struct {
	relPath  string
	storedAt time.Time
}

// FileHandler persists each block as one encoded write-ahead file under
// basePath/host/stream-N/dt=DATE/. Relocation moves the file below the
// destination host directory; cleanup removes files for blocks stored
// before a threshold.
type FileHandler struct {
	basePath       string
	host           string
	encoderFactory *encoder.Factory
	logger         *slog.Logger
	metrics        MetricsCollector

	mu     sync.Mutex
	index  map[string]*fileEntry
	closed bool
}

// NewFileHandler creates a new filesystem storage handler.
func NewFileHandler(
	cfg FileConfig,
	host string,
	format block.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*FileHandler, error) {
	if err := os.MkdirAll(cfg.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	encoderFactory := encoder.NewFactory(format, compression)
	if _, err := encoderFactory.CreateEncoder(); err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	logger.Info("filesystem storage handler created",
		"base_path", cfg.BasePath,
		"host", host,
		"format", format,
		"compression", compression,
	)

	return &FileHandler{
		basePath:       cfg.BasePath,
		host:           host,
		encoderFactory: encoderFactory,
		logger:         logger,
		metrics:        metrics,
		index:          make(map[string]*fileEntry),
	}, nil
}

// StoreBlock encodes a block's records into one file.
func (h *FileHandler) StoreBlock(ctx context.Context, id block.ID, records []block.Record) (*block.StoreResult, error) {
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
			h.metrics.IncStorageErrors("file", "encoder_create")
		}
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	relPath := filepath.FromSlash(BlockKey("", h.host, id, enc.FileExtension()))
	fullPath := filepath.Join(h.basePath, relPath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		if h.metrics != nil {
			h.metrics.IncStorageErrors("file", "mkdir")
		}
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	result, err := enc.Encode(fullPath, id, records)
	if err != nil {
		if h.metrics != nil {
			h.metrics.IncStorageErrors("file", "encode")
		}
		return nil, &apperrors.StorageError{Operation: "store", Key: relPath, Err: err}
	}

	h.index[id.String()] = &fileEntry{relPath: relPath, storedAt: time.Now()}

	duration := time.Since(startTime)
	h.logger.Info("stored block to file",
		"block_id", id.String(),
		"path", fullPath,
		"records", result.RecordCount,
		"size_bytes", result.SizeBytes,
		"duration_ms", duration.Milliseconds(),
	)

	if h.metrics != nil {
		format := string(enc.Format())
		h.metrics.IncBlocksStored("file", format, "success")
		h.metrics.ObserveBlockSize("file", format, float64(result.SizeBytes))
		h.metrics.ObserveStoreDuration("file", duration.Seconds())
	}

	return result, nil
}

// ReallocateBlock moves a stored block file under the destination host
// directory.
func (h *FileHandler) ReallocateBlock(ctx context.Context, id block.ID, host string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return apperrors.ErrHandlerClosed
	}

	entry, ok := h.index[id.String()]
	if !ok {
		return &apperrors.StorageError{Operation: "reallocate", Key: id.String(), Err: apperrors.ErrBlockNotFound}
	}

	enc, err := h.encoderFactory.CreateEncoder()
	if err != nil {
		return fmt.Errorf("failed to create encoder: %w", err)
	}

	newRel := filepath.FromSlash(BlockKey("", host, id, enc.FileExtension()))
	newPath := filepath.Join(h.basePath, newRel)
	oldPath := filepath.Join(h.basePath, entry.relPath)

	if err := os.MkdirAll(filepath.Dir(newPath), 0755); err != nil {
		if h.metrics != nil {
			h.metrics.IncStorageErrors("file", "mkdir")
		}
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.Rename(oldPath, newPath); err != nil {
		if h.metrics != nil {
			h.metrics.IncStorageErrors("file", "reallocate")
			h.metrics.IncReallocations("file", "error")
		}
		return &apperrors.StorageError{Operation: "reallocate", Key: entry.relPath, Err: err}
	}
	entry.relPath = newRel

	if h.metrics != nil {
		h.metrics.IncReallocations("file", "success")
	}

	h.logger.Info("reallocated block",
		"block_id", id.String(),
		"host", host,
		"path", newPath,
	)
	return nil
}

// CleanupOldBlocks removes block files stored before the threshold.
func (h *FileHandler) CleanupOldBlocks(ctx context.Context, threshold time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return apperrors.ErrHandlerClosed
	}

	removed := 0
	for key, entry := range h.index {
		if !entry.storedAt.Before(threshold) {
			continue
		}
		fullPath := filepath.Join(h.basePath, entry.relPath)
		if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
			if h.metrics != nil {
				h.metrics.IncStorageErrors("file", "cleanup")
			}
			h.logger.Warn("failed to remove old block file",
				"path", fullPath,
				"error", err,
			)
			continue
		}
		delete(h.index, key)
		removed++
	}

	h.logger.Info("cleaned up old blocks",
		"threshold", threshold,
		"removed", removed,
		"remaining", len(h.index),
	)
	return nil
}

// Close rejects further operations. Stored files are left in place.
func (h *FileHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	h.logger.Info("closing filesystem storage handler")
	return nil
}
