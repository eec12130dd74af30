// Package encoder provides block payload encoding to various file formats.
//
// This package implements encoders for converting a block's records into file
// formats suitable for storage and analytics, with configurable compression.
//
// # Supported Formats
//
// The package supports two file formats:
//
//   - Parquet: Columnar format optimized for analytics queries
//   - Avro: Row-based OCF format with embedded schema
//
// # Encoder Factory
//
// Use Factory to create encoder instances:
//
//	factory := encoder.NewFactory(block.FormatParquet, "snappy")
//	enc, err := factory.CreateEncoder()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Direct Encoder Creation
//
// Create encoders directly when format is known:
//
//	// Parquet with Snappy compression
//	parquetEnc := encoder.NewParquetEncoder("snappy")
//
//	// Avro with GZIP compression
//	avroEnc, err := encoder.NewAvroEncoder("gzip")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Encoding Blocks
//
// All encoders implement the pkg/encoder.Encoder interface. A block is encoded
// as one file; every row carries the block identifier and the record's position
// within the block:
//
//	result, err := enc.Encode(filePath, blockID, records)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("Encoded %d records, %d bytes\n",
//	    result.RecordCount, result.SizeBytes)
//
// # Parquet Encoder
//
// Produces columnar Parquet files:
//
//   - Snappy compression (default, fastest queries)
//   - GZIP, LZ4 and ZSTD compression
//   - Dictionary-encoded block identifier column
//   - Microsecond timestamp logical type
//
// # Avro Encoder
//
// Produces row-based Avro OCF files with embedded schema:
//
//   - GZIP compression (default)
//   - Nullable record key field
//
// # Compression Options
//
// Supported compression codecs:
//
//	Parquet: "snappy", "gzip", "lz4", "zstd", "uncompressed"
//	Avro:    "gzip", "uncompressed"
//
// # File Extensions
//
// Encoders provide appropriate file extensions:
//
//	parquetEnc.FileExtension()  // ".parquet"
//	avroEnc.FileExtension()     // ".avro.gz" (with gzip)
//
// # Thread Safety
//
// Encoder instances are safe for concurrent use. Factory.CreateEncoder()
// creates independent encoder instances.
package encoder
