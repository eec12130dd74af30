// Package block defines the core types for block generation and storage.
//
// A Block is an immutable, uniquely identified, ordered batch of records
// produced from one buffer swap (or one slice of it when ratio splitting
// is active). Records are opaque to the pipeline; ordering within a block
// is insertion order.
package block

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record is a single opaque unit of ingested data.
type Record struct {
	Key       []byte
	Data      []byte
	Timestamp time.Time
}

// Size returns the approximate in-memory payload size of the record.
func (r Record) Size() int64 {
	return int64(len(r.Key) + len(r.Data))
}

// ID uniquely identifies a block as (stream, tick time, slice index).
// Slice is meaningful only when Split is true; unsplit blocks carry a
// single implicit slice covering the whole buffer.
type ID struct {
	Stream int
	Time   time.Time
	Slice  int
	Split  bool
}

// NewID creates an identifier for an unsplit block.
func NewID(stream int, t time.Time) ID {
	return ID{Stream: stream, Time: t}
}

// NewSliceID creates an identifier for one slice of a split block.
func NewSliceID(stream int, t time.Time, slice int) ID {
	return ID{Stream: stream, Time: t, Slice: slice, Split: true}
}

// String returns the wire form of the identifier:
// "block-<stream>-<unix_ms>" or "block-<stream>-<unix_ms>-<slice>".
func (id ID) String() string {
	if id.Split {
		return fmt.Sprintf("block-%d-%d-%d", id.Stream, id.Time.UnixMilli(), id.Slice)
	}
	return fmt.Sprintf("block-%d-%d", id.Stream, id.Time.UnixMilli())
}

// ParseID parses the wire form produced by ID.String.
func ParseID(s string) (ID, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 && len(parts) != 4 {
		return ID{}, fmt.Errorf("malformed block id %q", s)
	}
	if parts[0] != "block" {
		return ID{}, fmt.Errorf("malformed block id %q", s)
	}

	stream, err := strconv.Atoi(parts[1])
	if err != nil {
		return ID{}, fmt.Errorf("malformed stream in block id %q: %w", s, err)
	}
	ms, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("malformed time in block id %q: %w", s, err)
	}

	id := ID{Stream: stream, Time: time.UnixMilli(ms).UTC()}
	if len(parts) == 4 {
		slice, err := strconv.Atoi(parts[3])
		if err != nil {
			return ID{}, fmt.Errorf("malformed slice in block id %q: %w", s, err)
		}
		id.Slice = slice
		id.Split = true
	}
	return id, nil
}

// Block pairs an identifier with a finalized, ordered record sequence.
// Blocks are never mutated after creation.
type Block struct {
	ID      ID
	Records []Record
}

// StoreResult describes the outcome of storing one block.
type StoreResult struct {
	RecordCount int
	SizeBytes   int64
}

// Info is the block metadata reported to the coordinator after a
// successful store.
type Info struct {
	ID          ID
	RecordCount int
	SizeBytes   int64
	Host        string
	StoredAt    time.Time
}

// FileFormat identifies the on-disk payload format of a stored block.
type FileFormat string

const (
	FormatParquet FileFormat = "parquet"
	FormatAvro    FileFormat = "avro"
)
