// Package storage defines the storage handler interface for blocks.
//
// Handlers persist a block's payload (local filesystem write-ahead files,
// object storage, or plain memory) and support relocating an already
// stored block to a different host location.
package storage

import (
	"context"
	"time"

	"github.com/jittakal/kafblockstore/pkg/block"
)

// Handler stores block payloads.
// All implementations must be thread-safe.
type Handler interface {
	// StoreBlock durably stores a block's records and returns the stored
	// record count and payload size.
	StoreBlock(ctx context.Context, id block.ID, records []block.Record) (*block.StoreResult, error)

	// ReallocateBlock migrates an already stored block to the given
	// destination host location.
	ReallocateBlock(ctx context.Context, id block.ID, host string) error

	// CleanupOldBlocks removes blocks stored before the threshold time.
	CleanupOldBlocks(ctx context.Context, threshold time.Time) error

	// Close releases handler resources.
	Close() error
}
