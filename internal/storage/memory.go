// Package storage implements the in-memory storage handler.
package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/jittakal/kafblockstore/internal/errors"
	"github.com/jittakal/kafblockstore/pkg/block"
	"github.com/jittakal/kafblockstore/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Handler = (*MemoryHandler)(nil)

type memoryBlock struct {
	records  []block.Record
	size     int64
	host     string
	storedAt time.Time
}

// MemoryHandler keeps block payloads in process memory. It is the
// simplest storage handler: useful for tests and for deployments where
// durability is delegated entirely to the coordinator's replay path.
type MemoryHandler struct {
	host    string
	logger  *slog.Logger
	metrics MetricsCollector

	mu     sync.RWMutex
	blocks map[string]*memoryBlock
	closed bool
}

// NewMemoryHandler creates a new in-memory storage handler.
func NewMemoryHandler(host string, logger *slog.Logger, metrics MetricsCollector) *MemoryHandler {
	return &MemoryHandler{
		host:    host,
		logger:  logger,
		metrics: metrics,
		blocks:  make(map[string]*memoryBlock),
	}
}

// StoreBlock places a block's records in memory.
func (h *MemoryHandler) StoreBlock(ctx context.Context, id block.ID, records []block.Record) (*block.StoreResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, apperrors.ErrHandlerClosed
	}

	var size int64
	kept := make([]block.Record, len(records))
	for i, r := range records {
		kept[i] = r
		size += r.Size()
	}

	h.blocks[id.String()] = &memoryBlock{
		records:  kept,
		size:     size,
		host:     h.host,
		storedAt: time.Now(),
	}

	if h.metrics != nil {
		h.metrics.IncBlocksStored("memory", "raw", "success")
		h.metrics.ObserveBlockSize("memory", "raw", float64(size))
	}

	h.logger.Debug("stored block in memory",
		"block_id", id.String(),
		"records", len(kept),
		"size_bytes", size,
	)

	return &block.StoreResult{
		RecordCount: len(kept),
		SizeBytes:   size,
	}, nil
}

// ReallocateBlock retags an in-memory block with the destination host.
func (h *MemoryHandler) ReallocateBlock(ctx context.Context, id block.ID, host string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return apperrors.ErrHandlerClosed
	}

	b, ok := h.blocks[id.String()]
	if !ok {
		return &apperrors.StorageError{Operation: "reallocate", Key: id.String(), Err: apperrors.ErrBlockNotFound}
	}
	b.host = host

	if h.metrics != nil {
		h.metrics.IncReallocations("memory", "success")
	}

	h.logger.Info("reallocated block",
		"block_id", id.String(),
		"host", host,
	)
	return nil
}

// CleanupOldBlocks drops blocks stored before the threshold.
func (h *MemoryHandler) CleanupOldBlocks(ctx context.Context, threshold time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return apperrors.ErrHandlerClosed
	}

	removed := 0
	for key, b := range h.blocks {
		if b.storedAt.Before(threshold) {
			delete(h.blocks, key)
			removed++
		}
	}

	h.logger.Info("cleaned up old blocks",
		"threshold", threshold,
		"removed", removed,
		"remaining", len(h.blocks),
	)
	return nil
}

// Block returns a stored block's records and host location.
func (h *MemoryHandler) Block(id block.ID) ([]block.Record, string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	b, ok := h.blocks[id.String()]
	if !ok {
		return nil, "", false
	}
	return b.records, b.host, true
}

// Count returns the number of blocks currently held.
func (h *MemoryHandler) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.blocks)
}

// Close drops all blocks and rejects further operations.
func (h *MemoryHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	h.blocks = make(map[string]*memoryBlock)
	h.logger.Info("closing memory storage handler")
	return nil
}
