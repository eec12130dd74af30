// Package blockgen defines the interfaces of the block generation pipeline.
//
// A Generator buffers incoming records, finalizes the buffer into blocks
// on a periodic tick, and delivers blocks through a bounded hand-off queue
// to a Listener on an independent drain path.
package blockgen

import (
	"context"

	"github.com/jittakal/kafblockstore/pkg/block"
)

// Listener receives callbacks from a Generator.
//
// OnAddData and OnGenerateBlock are invoked synchronously inside the
// generator's critical section and must return quickly. OnPushBlock runs
// on the drain path with no lock held and may block for as long as needed,
// for example while writing to durable storage.
type Listener interface {
	// OnAddData is called after a record was appended to the active buffer
	// by AddDataWithCallback, inside the same critical section.
	OnAddData(record block.Record, metadata any)

	// OnGenerateBlock is called when a block identifier has been assigned
	// to a finalized buffer (or slice), before the block is enqueued.
	// Returning an error abandons the remainder of the current tick.
	OnGenerateBlock(id block.ID) error

	// OnPushBlock delivers a dequeued block. An error is reported through
	// OnError and does not stop delivery of subsequent blocks.
	OnPushBlock(id block.ID, records []block.Record) error

	// OnError reports a failure on the tick or drain path.
	OnError(message string, err error)
}

// Generator converts a record stream into time-bounded blocks.
// All implementations must be safe for concurrent use.
type Generator interface {
	// Start launches the tick timer and the drain worker.
	Start() error

	// AddData appends one record to the active buffer, respecting the
	// configured ingestion rate limit.
	AddData(ctx context.Context, record block.Record) error

	// AddDataWithCallback behaves like AddData and additionally invokes
	// Listener.OnAddData inside the buffer critical section.
	AddDataWithCallback(ctx context.Context, record block.Record, metadata any) error

	// SetSplitRatios replaces the split ratio table wholesale. The first
	// call switches the tick callback to the splitting buffer swap; the
	// switch is one-way.
	SetSplitRatios(ratios []float64)

	// Stop halts intake, flushes the active buffer, drains the hand-off
	// queue to completion and blocks until the drain worker has exited.
	Stop() error
}
