// Package arrow writes Arrow records to mzparquet containers.
// This package implements:
// - Parquet output through pqarrow, one row group per record
// - Arrow IPC stream output
// - Reading a finished file back for verification
package arrow
