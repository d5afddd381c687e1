package mzml

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zlib"
)

// Precision is the declared numeric width of a binary data array.
type Precision int

const (
	PrecisionUnknown Precision = iota
	PrecisionFloat32
	PrecisionFloat64
	PrecisionInt32
	PrecisionInt64
)

// Width returns the element width in bytes, or 0 for an unknown precision.
func (p Precision) Width() int {
	switch p {
	case PrecisionFloat32, PrecisionInt32:
		return 4
	case PrecisionFloat64, PrecisionInt64:
		return 8
	default:
		return 0
	}
}

func (p Precision) String() string {
	switch p {
	case PrecisionFloat32:
		return "32-bit float"
	case PrecisionFloat64:
		return "64-bit float"
	case PrecisionInt32:
		return "32-bit integer"
	case PrecisionInt64:
		return "64-bit integer"
	default:
		return "unknown"
	}
}

// Compression is the closed set of array compression schemes.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionZlib
	CompressionNumpressLinear
	CompressionNumpressPic
	CompressionNumpressSlof
	CompressionNumpressLinearZlib
	CompressionNumpressPicZlib
	CompressionNumpressSlofZlib
	// CompressionUnsupported marks a declared scheme this decoder cannot handle.
	CompressionUnsupported
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZlib:
		return "zlib"
	case CompressionNumpressLinear:
		return "numpress-linear"
	case CompressionNumpressPic:
		return "numpress-pic"
	case CompressionNumpressSlof:
		return "numpress-slof"
	case CompressionNumpressLinearZlib:
		return "numpress-linear+zlib"
	case CompressionNumpressPicZlib:
		return "numpress-pic+zlib"
	case CompressionNumpressSlofZlib:
		return "numpress-slof+zlib"
	default:
		return "unsupported"
	}
}

// zlibFirst reports whether the payload must be inflated before anything else.
func (c Compression) zlibFirst() bool {
	switch c {
	case CompressionZlib, CompressionNumpressLinearZlib,
		CompressionNumpressPicZlib, CompressionNumpressSlofZlib:
		return true
	}
	return false
}

// Encoding describes how a binary data array was written.
type Encoding struct {
	Precision   Precision
	Compression Compression
	// Scheme holds the accession of an unsupported compression term, for diagnostics.
	Scheme string
}

// DecodeBinary turns base64 text into widened float64 values.
// expected is the declared element count, or a negative value when undeclared.
func DecodeBinary(text []byte, enc Encoding, expected int) ([]float64, error) {
	if enc.Compression == CompressionUnsupported {
		return nil, &DecodeError{
			Reason: fmt.Sprintf("compression %s", enc.Scheme),
			Err:    ErrUnsupportedCompression,
		}
	}

	raw, err := decodeBase64(text)
	if err != nil {
		return nil, &DecodeError{Reason: "base64", Err: err}
	}

	if enc.Compression.zlibFirst() && len(raw) > 0 {
		raw, err = inflate(raw)
		if err != nil {
			return nil, &DecodeError{Reason: "zlib", Err: err}
		}
	}

	var values []float64
	switch enc.Compression {
	case CompressionNone, CompressionZlib:
		values, err = widen(raw, enc.Precision)
	case CompressionNumpressLinear, CompressionNumpressLinearZlib:
		values, err = decodeNumpressLinear(raw)
	case CompressionNumpressPic, CompressionNumpressPicZlib:
		values, err = decodeNumpressPic(raw)
	case CompressionNumpressSlof, CompressionNumpressSlofZlib:
		values, err = decodeNumpressSlof(raw)
	default:
		err = ErrUnsupportedCompression
	}
	if err != nil {
		return nil, &DecodeError{Reason: enc.Compression.String(), Err: err}
	}

	if expected >= 0 && len(values) != expected {
		return nil, &DecodeError{
			Reason: fmt.Sprintf("expected %d values, decoded %d", expected, len(values)),
			Err:    ErrLengthMismatch,
		}
	}
	return values, nil
}

// decodeBase64 decodes standard base64, ignoring embedded whitespace.
func decodeBase64(text []byte) ([]byte, error) {
	text = stripSpace(text)
	out := make([]byte, base64.StdEncoding.DecodedLen(len(text)))
	n, err := base64.StdEncoding.Decode(out, text)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

func stripSpace(text []byte) []byte {
	clean := true
	for _, c := range text {
		if isSpace(c) {
			clean = false
			break
		}
	}
	if clean {
		return text
	}
	out := make([]byte, 0, len(text))
	for _, c := range text {
		if !isSpace(c) {
			out = append(out, c)
		}
	}
	return out
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t'
}

func inflate(raw []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// widen reinterprets little-endian fixed-width values as float64.
func widen(raw []byte, p Precision) ([]float64, error) {
	width := p.Width()
	if width == 0 {
		return nil, ErrUnsupportedPrecision
	}
	if len(raw)%width != 0 {
		return nil, fmt.Errorf("%w: %d bytes, width %d", ErrTruncated, len(raw), width)
	}

	n := len(raw) / width
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		b := raw[i*width : (i+1)*width]
		switch p {
		case PrecisionFloat32:
			values[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		case PrecisionFloat64:
			values[i] = math.Float64frombits(binary.LittleEndian.Uint64(b))
		case PrecisionInt32:
			values[i] = float64(int32(binary.LittleEndian.Uint32(b)))
		case PrecisionInt64:
			values[i] = float64(int64(binary.LittleEndian.Uint64(b)))
		}
	}
	return values, nil
}
