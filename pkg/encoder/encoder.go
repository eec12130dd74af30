// Package encoder defines the interface for block payload encoders.
//
// Encoders serialize a block's record sequence into a file format suitable
// for durable storage (Avro OCF or Parquet).
package encoder

import (
	"github.com/jittakal/kafblockstore/pkg/block"
)

// Encoder serializes block records to a file.
type Encoder interface {
	// Encode writes records to filePath and returns the stored record
	// count and file size.
	Encode(filePath string, id block.ID, records []block.Record) (*block.StoreResult, error)

	// Format returns the file format identifier.
	Format() block.FileFormat

	// FileExtension returns the extension for files in this format,
	// including the leading dot.
	FileExtension() string
}
