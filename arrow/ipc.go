package arrow

import (
	"fmt"
	"io"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// IPCSink writes records as an Arrow IPC stream. The schema message is sent
// on the first Write, so only metadata set before then is carried in it.
type IPCSink struct {
	w         io.Writer
	schema    *arrow.Schema
	allocator memory.Allocator
	metadata  map[string]string
	writer    *ipc.Writer
	stream    *arrow.Schema
	rowGroups int
	closed    bool
}

// NewIPCSink creates an IPCSink over w.
func NewIPCSink(w io.Writer, schema *arrow.Schema) *IPCSink {
	return &IPCSink{
		w:         w,
		schema:    schema,
		allocator: memory.DefaultAllocator,
		metadata:  make(map[string]string),
	}
}

func (s *IPCSink) open() {
	keys := make([]string, 0, len(s.metadata))
	for k := range s.metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = s.metadata[k]
	}
	md := arrow.NewMetadata(keys, values)
	s.stream = arrow.NewSchema(s.schema.Fields(), &md)
	s.writer = ipc.NewWriter(s.w, ipc.WithSchema(s.stream), ipc.WithAllocator(s.allocator))
}

// Write writes record as one record batch message.
func (s *IPCSink) Write(record arrow.Record) error {
	if s.closed {
		return ErrSinkClosed
	}
	if record.NumRows() == 0 {
		return nil
	}
	if s.writer == nil {
		s.open()
	}
	// The stream schema carries metadata; rebuild the record against it.
	rec := array.NewRecord(s.stream, record.Columns(), record.NumRows())
	defer rec.Release()
	if err := s.writer.Write(rec); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	s.rowGroups++
	return nil
}

// SetMetadata records a key-value pair for the schema message.
func (s *IPCSink) SetMetadata(key, value string) {
	s.metadata[key] = value
}

// RowGroups returns the number of record batches written.
func (s *IPCSink) RowGroups() int { return s.rowGroups }

// Close writes the end-of-stream marker.
func (s *IPCSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.writer == nil {
		s.open()
	}
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	return nil
}

// ReadIPC reads an IPC stream and calls fn for each record. The record is
// only valid during the call. It returns the stream schema.
func ReadIPC(r io.Reader, fn func(arrow.Record) error) (*arrow.Schema, error) {
	reader, err := ipc.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create reader: %w", err)
	}
	defer reader.Release()

	for reader.Next() {
		if err := fn(reader.Record()); err != nil {
			return nil, err
		}
	}
	if reader.Err() != nil {
		return nil, reader.Err()
	}
	return reader.Schema(), nil
}
