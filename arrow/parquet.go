package arrow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

// DefaultCompressionLevel is the ZSTD level used when none is configured.
const DefaultCompressionLevel = 3

// ErrSinkClosed is returned when writing to a finalized sink.
var ErrSinkClosed = errors.New("sink is closed")

// ParquetOptions configures a ParquetSink.
type ParquetOptions struct {
	// CompressionLevel is the ZSTD level; zero selects DefaultCompressionLevel.
	CompressionLevel int
	// SplitColumns are column paths written with BYTE_STREAM_SPLIT.
	SplitColumns []string
	CreatedBy    string
}

// ParquetSink writes records to a Parquet file with pqarrow.
type ParquetSink struct {
	fw        *pqarrow.FileWriter
	metadata  map[string]string
	rowGroups int
	closed    bool
}

// WriterProperties builds the Parquet writer properties for opts: ZSTD
// compression, no dictionary encoding, BYTE_STREAM_SPLIT on the split columns.
func WriterProperties(opts ParquetOptions) *parquet.WriterProperties {
	level := opts.CompressionLevel
	if level == 0 {
		level = DefaultCompressionLevel
	}
	props := []parquet.WriterProperty{
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithCompressionLevel(level),
		parquet.WithDictionaryDefault(false),
	}
	for _, path := range opts.SplitColumns {
		props = append(props, parquet.WithEncodingFor(path, parquet.Encodings.ByteStreamSplit))
	}
	if opts.CreatedBy != "" {
		props = append(props, parquet.WithCreatedBy(opts.CreatedBy))
	}
	return parquet.NewWriterProperties(props...)
}

// NewParquetSink starts a Parquet file on w. The Arrow schema is stored in the
// file metadata so readers restore the exact types.
func NewParquetSink(w io.Writer, schema *arrow.Schema, opts ParquetOptions) (*ParquetSink, error) {
	fw, err := pqarrow.NewFileWriter(
		schema,
		writerOnly{w},
		WriterProperties(opts),
		pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	return &ParquetSink{fw: fw, metadata: make(map[string]string)}, nil
}

// Write writes record as one row group.
func (s *ParquetSink) Write(record arrow.Record) error {
	if s.closed {
		return ErrSinkClosed
	}
	if record.NumRows() == 0 {
		return nil
	}
	if err := s.fw.Write(record); err != nil {
		return fmt.Errorf("failed to write row group %d: %w", s.rowGroups, err)
	}
	s.rowGroups++
	return nil
}

// SetMetadata records a footer key-value pair. Later values replace earlier ones.
func (s *ParquetSink) SetMetadata(key, value string) {
	s.metadata[key] = value
}

// RowGroups returns the number of row groups written.
func (s *ParquetSink) RowGroups() int { return s.rowGroups }

// Close writes the metadata and the footer.
func (s *ParquetSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	keys := make([]string, 0, len(s.metadata))
	for k := range s.metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := s.fw.AppendKeyValueMetadata(k, s.metadata[k]); err != nil {
			return fmt.Errorf("failed to append metadata %s: %w", k, err)
		}
	}
	if err := s.fw.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

// FileInfo summarizes a finished mzparquet file.
type FileInfo struct {
	Rows      int64
	RowGroups int
	Metadata  map[string]string
	Schema    *arrow.Schema
}

// Complete reports whether the writer marked the file as complete.
func (i *FileInfo) Complete() bool {
	v, err := strconv.ParseBool(i.Metadata[MetaComplete])
	return err == nil && v
}

// ReadParquet reads a Parquet file and calls fn for each record. The record is
// only valid during the call.
func ReadParquet(ctx context.Context, r parquet.ReaderAtSeeker, batchSize int64, fn func(arrow.Record) error) (*FileInfo, error) {
	pf, err := file.NewParquetReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer pf.Close()

	info := &FileInfo{
		Rows:      pf.NumRows(),
		RowGroups: pf.NumRowGroups(),
		Metadata:  make(map[string]string),
	}
	kv := pf.MetaData().KeyValueMetadata()
	for i, k := range kv.Keys() {
		info.Metadata[k] = kv.Values()[i]
	}

	if batchSize <= 0 {
		batchSize = 1024
	}
	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: batchSize}, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("failed to create arrow reader: %w", err)
	}
	info.Schema, err = fr.Schema()
	if err != nil {
		return nil, fmt.Errorf("failed to read arrow schema: %w", err)
	}
	if fn == nil {
		return info, nil
	}

	rr, err := fr.GetRecordReader(ctx, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create record reader: %w", err)
	}
	defer rr.Release()

	for rr.Next() {
		if err := fn(rr.Record()); err != nil {
			return nil, err
		}
	}
	if err := rr.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	return info, nil
}
