// Package coordinator defines the client interface toward the external
// coordinating authority.
//
// The coordinator tracks receivers and their stored blocks, and issues
// stop, cleanup and ratio/relocation commands back to the receiver over
// its control surface.
package coordinator

import (
	"context"

	"github.com/jittakal/kafblockstore/pkg/block"
)

// Client talks to the coordinator.
type Client interface {
	// RegisterReceiver announces this receiver for a stream.
	RegisterReceiver(ctx context.Context, stream int, host string) error

	// DeregisterReceiver withdraws this receiver, with a human-readable
	// reason.
	DeregisterReceiver(ctx context.Context, stream int, message string) error

	// AddBlock reports a stored block and waits for the coordinator's
	// acknowledgement.
	AddBlock(ctx context.Context, info block.Info) error

	// ReportError surfaces a receiver-side failure to the coordinator.
	ReportError(ctx context.Context, message string, cause error) error

	// ReportSize reports stored bytes against a host location. The call is
	// one-way: delivery is best effort and failures are only logged.
	ReportSize(ctx context.Context, sizeBytes int64, host string)
}
