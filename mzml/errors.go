package mzml

import (
	"errors"
	"fmt"
)

// Common errors for decoding operations
var (
	ErrUnsupportedCompression = errors.New("unsupported compression")
	ErrUnsupportedPrecision   = errors.New("unsupported numeric precision")
	ErrLengthMismatch         = errors.New("decoded element count mismatch")
	ErrTruncated              = errors.New("payload is not a multiple of the element width")
	ErrCorruptNumpress        = errors.New("corrupt numpress payload")
)

// ParseError reports malformed source markup. Offset is the byte offset in the
// input stream at which the problem was detected.
type ParseError struct {
	Offset int64
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("mzml: parse error at byte %d: %v", e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// DecodeError reports an unusable binary data array.
type DecodeError struct {
	// ScanID is filled in by the assembler once the owning spectrum is known.
	ScanID string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := "mzml: decode"
	if e.ScanID != "" {
		msg += fmt.Sprintf(" scan %q", e.ScanID)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ValidationError reports a completed spectrum that violates a required-field or
// length invariant.
type ValidationError struct {
	ScanID string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.ScanID == "" {
		return fmt.Sprintf("mzml: invalid spectrum: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("mzml: invalid spectrum %q: %s %s", e.ScanID, e.Field, e.Reason)
}

// IsRecoverable reports whether err only invalidates the spectrum it belongs to.
// Parse errors and anything else leave the stream position unusable.
func IsRecoverable(err error) bool {
	var de *DecodeError
	var ve *ValidationError
	return errors.As(err, &de) || errors.As(err, &ve)
}

// SkipReason classifies a recoverable error for skip accounting.
func SkipReason(err error) string {
	var de *DecodeError
	if errors.As(err, &de) {
		return "decode"
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return "validation:" + ve.Field
	}
	return "other"
}
