// Package encoder implements block payload encoders.
package encoder

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/linkedin/goavro/v2"

	"github.com/jittakal/kafblockstore/pkg/block"
	"github.com/jittakal/kafblockstore/pkg/encoder"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*AvroEncoder)(nil)

// AvroEncoder implements encoder.Encoder for Apache Avro binary format.
// It supports optional gzip compression and produces OCF (Object Container
// File) output readable by standard Avro tooling.
type AvroEncoder struct {
	codec       *goavro.Codec
	compression string
}

// NewAvroEncoder creates a new Avro encoder with specified compression.
func NewAvroEncoder(compression string) (*AvroEncoder, error) {
	codec, err := goavro.NewCodec(avroSchema())
	if err != nil {
		return nil, fmt.Errorf("failed to create avro codec: %w", err)
	}

	return &AvroEncoder{
		codec:       codec,
		compression: compression,
	}, nil
}

// avroSchema returns the Avro schema for stored block records.
func avroSchema() string {
	return `{
		"type": "record",
		"name": "BlockRecord",
		"namespace": "com.kafka.block.store",
		"fields": [
			{"name": "block_id", "type": "string"},
			{"name": "record_index", "type": "long"},
			{"name": "key", "type": ["null", "bytes"], "default": null},
			{"name": "data", "type": "bytes"},
			{"name": "timestamp", "type": "string"}
		]
	}`
}

// Encode writes a block's records to an Avro OCF file.
func (e *AvroEncoder) Encode(filePath string, id block.ID, records []block.Record) (*block.StoreResult, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to encode")
	}

	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	var writer io.Writer = file
	var gzipWriter *gzip.Writer

	if e.compression == "gzip" || e.compression == "GZIP" {
		gzipWriter = gzip.NewWriter(file)
		writer = gzipWriter
		defer gzipWriter.Close()
	}

	if err := e.writeOCF(writer, id, records); err != nil {
		return nil, err
	}

	if gzipWriter != nil {
		if err := gzipWriter.Close(); err != nil {
			return nil, fmt.Errorf("failed to close gzip writer: %w", err)
		}
	}

	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return &block.StoreResult{
		RecordCount: len(records),
		SizeBytes:   fileInfo.Size(),
	}, nil
}

// EncodeToBytes encodes a block's records to an in-memory Avro OCF payload.
func (e *AvroEncoder) EncodeToBytes(id block.ID, records []block.Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to encode")
	}

	var buf bytes.Buffer
	var writer io.Writer = &buf

	var gzipWriter *gzip.Writer
	if e.compression == "gzip" || e.compression == "GZIP" {
		gzipWriter = gzip.NewWriter(&buf)
		writer = gzipWriter
	}

	if err := e.writeOCF(writer, id, records); err != nil {
		return nil, err
	}

	if gzipWriter != nil {
		if err := gzipWriter.Close(); err != nil {
			return nil, fmt.Errorf("failed to close gzip writer: %w", err)
		}
	}

	return buf.Bytes(), nil
}

func (e *AvroEncoder) writeOCF(writer io.Writer, id block.ID, records []block.Record) error {
	ocfWriter, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:     writer,
		Codec: e.codec,
	})
	if err != nil {
		return fmt.Errorf("failed to create OCF writer: %w", err)
	}

	for i, record := range records {
		if err := ocfWriter.Append([]interface{}{e.convertToAvroMap(id, i, record)}); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	return nil
}

// convertToAvroMap converts a Record to its Avro map representation.
func (e *AvroEncoder) convertToAvroMap(id block.ID, index int, record block.Record) map[string]interface{} {
	avroMap := map[string]interface{}{
		"block_id":     id.String(),
		"record_index": int64(index),
		"data":         record.Data,
		"timestamp":    record.Timestamp.UTC().Format(time.RFC3339Nano),
	}

	if len(record.Key) > 0 {
		avroMap["key"] = goavro.Union("bytes", record.Key)
	} else {
		avroMap["key"] = nil
	}

	return avroMap
}

// Format returns the file format.
func (e *AvroEncoder) Format() block.FileFormat {
	return block.FormatAvro
}

// FileExtension returns the file extension.
func (e *AvroEncoder) FileExtension() string {
	if e.compression == "gzip" || e.compression == "GZIP" {
		return ".avro.gz"
	}
	return ".avro"
}
