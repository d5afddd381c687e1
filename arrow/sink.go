package arrow

import (
	"io"

	"github.com/apache/arrow-go/v18/arrow"
)

// Metadata keys written to every mzparquet file.
const (
	MetaVersion   = "mzparquet.version"
	MetaSource    = "mzparquet.source"
	MetaConverted = "mzparquet.converted"
	MetaSkipped   = "mzparquet.skipped"
	MetaComplete  = "mzparquet.complete"
)

// FormatVersion is the value written under MetaVersion.
const FormatVersion = "1"

// Format selects the output container.
type Format string

const (
	FormatParquet Format = "parquet"
	FormatIPC     Format = "ipc"
)

// Extension returns the file extension for outputs of the format.
func (f Format) Extension() string {
	if f == FormatIPC {
		return ".arrows"
	}
	return ".mzparquet"
}

// Sink receives flushed batches in order. Each Write produces one row group
// (Parquet) or one record batch message (IPC).
type Sink interface {
	Write(record arrow.Record) error
	// SetMetadata records a key-value pair for the file footer.
	SetMetadata(key, value string)
	// Close finalizes the container. The underlying writer is not closed.
	Close() error
	// RowGroups is the number of batches written so far.
	RowGroups() int
}

// writerOnly hides Close from writers that close their sink on finalize.
type writerOnly struct {
	io.Writer
}
