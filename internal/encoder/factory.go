// Package encoder implements encoder factory for creating block payload encoders.
package encoder

import (
	"fmt"

	"github.com/jittakal/kafblockstore/pkg/block"
	"github.com/jittakal/kafblockstore/pkg/encoder"
)

// Factory creates encoders based on format and configuration.
type Factory struct {
	format      block.FileFormat
	compression string
}

// NewFactory creates a new encoder factory.
func NewFactory(format block.FileFormat, compression string) *Factory {
	return &Factory{
		format:      format,
		compression: compression,
	}
}

// CreateEncoder creates an encoder based on the configured format.
func (f *Factory) CreateEncoder() (encoder.Encoder, error) {
	switch f.format {
	case block.FormatParquet:
		return NewParquetEncoder(f.compression), nil
	case block.FormatAvro:
		return NewAvroEncoder(f.compression)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", f.format)
	}
}

// SupportedFormats returns a list of supported file formats.
func SupportedFormats() []block.FileFormat {
	return []block.FileFormat{
		block.FormatParquet,
		block.FormatAvro,
	}
}

// SupportedCompressions returns supported compression codecs for a given format.
func SupportedCompressions(format block.FileFormat) []string {
	switch format {
	case block.FormatParquet:
		return []string{"uncompressed", "snappy", "gzip", "lz4", "zstd"}
	case block.FormatAvro:
		return []string{"uncompressed", "gzip"}
	default:
		return []string{}
	}
}

// DefaultCompression returns the default compression for a format.
func DefaultCompression(format block.FileFormat) string {
	switch format {
	case block.FormatParquet:
		return "snappy"
	case block.FormatAvro:
		return "gzip"
	default:
		return "uncompressed"
	}
}
