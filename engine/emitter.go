package engine

import (
	"github.com/VanDung-dev/MzParquet-Engine/arrow"
	"github.com/VanDung-dev/MzParquet-Engine/data"
	"github.com/VanDung-dev/MzParquet-Engine/mzml"
)

// BatchOptions bounds the rows buffered before a flush.
type BatchOptions struct {
	// MaxRows flushes once this many rows are buffered.
	MaxRows int
	// MaxBytes flushes once the estimated buffered size reaches this many bytes.
	MaxBytes int
}

// DefaultBatchOptions returns the default batch bounds.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{
		MaxRows:  65536,
		MaxBytes: 64 << 20,
	}
}

func (o BatchOptions) withDefaults() BatchOptions {
	d := DefaultBatchOptions()
	if o.MaxRows <= 0 {
		o.MaxRows = d.MaxRows
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = d.MaxBytes
	}
	return o
}

// Emitter buffers spectra into rows and hands full batches to a sink.
// Rows reach the sink in the order they were emitted.
type Emitter struct {
	builder data.RowBuilder
	sink    arrow.Sink
	opts    BatchOptions

	bytes   int
	emitted int64
	pending int64
	written int64

	// onFlush is called after every successful flush with the batch size.
	onFlush func(rows, bytes int)
}

// NewEmitter creates an Emitter writing through builder into sink.
func NewEmitter(builder data.RowBuilder, sink arrow.Sink, opts BatchOptions) *Emitter {
	return &Emitter{
		builder: builder,
		sink:    sink,
		opts:    opts.withDefaults(),
	}
}

// Emit appends one spectrum and flushes when a batch bound is reached.
func (e *Emitter) Emit(s *mzml.Spectrum) error {
	e.bytes += e.builder.Append(s)
	e.emitted++
	e.pending++
	if e.builder.Len() >= e.opts.MaxRows || e.bytes >= e.opts.MaxBytes {
		return e.Flush()
	}
	return nil
}

// Flush writes the buffered rows, if any, as one record.
func (e *Emitter) Flush() error {
	rows := e.builder.Len()
	if rows == 0 {
		return nil
	}
	bytes, spectra := e.bytes, e.pending
	record := e.builder.NewRecord()
	defer record.Release()
	e.bytes, e.pending = 0, 0

	if err := e.sink.Write(record); err != nil {
		return &IOError{Op: "write batch", Err: err}
	}
	e.written += spectra
	if e.onFlush != nil {
		e.onFlush(rows, bytes)
	}
	return nil
}

// Emitted returns the number of spectra accepted so far.
func (e *Emitter) Emitted() int64 {
	return e.emitted
}

// Written returns the number of spectra handed to the sink.
func (e *Emitter) Written() int64 {
	return e.written
}

// Pending returns the number of buffered rows.
func (e *Emitter) Pending() int {
	return e.builder.Len()
}

// Close releases the row builder.
func (e *Emitter) Close() {
	e.builder.Release()
}
