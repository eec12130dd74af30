// Package source defines the record source interface.
//
// A source connects to an upstream system (Kafka in this repository) and
// feeds opaque records into a receiver.
package source

import (
	"context"

	"github.com/jittakal/kafblockstore/pkg/block"
)

// Receiver accepts records from a source.
type Receiver interface {
	// Store ingests one record. It may block on the ingestion rate limit
	// or on buffer backpressure.
	Store(ctx context.Context, record block.Record) error
}

// Source streams records into a Receiver.
type Source interface {
	// Run consumes records and feeds them to the receiver until the
	// context is cancelled.
	Run(ctx context.Context, receiver Receiver) error

	// Close closes the source and releases resources.
	Close() error
}
