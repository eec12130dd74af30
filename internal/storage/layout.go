// Package storage implements storage handlers for block payloads.
package storage

import (
	"fmt"
	"strings"

	"github.com/jittakal/kafblockstore/pkg/block"
)

// MetricsCollector defines metrics operations for storage handlers.
type MetricsCollector interface {
	IncBlocksStored(backend string, format string, status string)
	ObserveBlockSize(backend string, format string, size float64)
	ObserveStoreDuration(backend string, duration float64)
	IncStorageErrors(backend string, operation string)
	IncReallocations(backend string, status string)
}

// BlockKey returns the storage key for a block under a host location.
// Layout: prefix/host/stream-N/dt=YYYY-MM-DD/<blockID><ext>
//
// The key is a pure function of (host, id), so relocating a block to a
// different host is a deterministic key rewrite.
func BlockKey(prefix, host string, id block.ID, ext string) string {
	date := id.Time.UTC().Format("2006-01-02")

	parts := make([]string, 0, 4)
	if prefix != "" {
		parts = append(parts, strings.Trim(prefix, "/"))
	}
	if host != "" {
		parts = append(parts, host)
	}
	parts = append(parts,
		fmt.Sprintf("stream-%d", id.Stream),
		fmt.Sprintf("dt=%s", date),
		id.String()+ext,
	)
	return strings.Join(parts, "/")
}
