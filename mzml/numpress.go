package mzml

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MS-Numpress decoders. Integers are packed as half-byte (nibble) sequences whose
// first nibble is a header giving the count of leading zero (<= 8) or leading
// 0xf (> 8) nibbles that were elided.

// nibbleReader walks a byte slice one half-byte at a time.
type nibbleReader struct {
	data []byte
	pos  int
	half bool
}

func (r *nibbleReader) next() byte {
	var v byte
	if !r.half {
		v = r.data[r.pos] >> 4
	} else {
		v = r.data[r.pos] & 0xf
		r.pos++
	}
	r.half = !r.half
	return v
}

// padded reports whether the only remaining content is the zero padding nibble
// written when an encoder ends on a half byte.
func (r *nibbleReader) padded() bool {
	return r.pos == len(r.data)-1 && r.half && r.data[r.pos]&0xf == 0
}

func (r *nibbleReader) done() bool {
	return r.pos >= len(r.data)
}

func (r *nibbleReader) decodeInt() (uint32, error) {
	head := r.next()

	var res uint32
	var n int
	if head <= 8 {
		n = int(head)
	} else {
		n = int(head) - 8
		for i := 0; i < n; i++ {
			res |= 0xf0000000 >> (4 * i)
		}
	}
	if n == 8 {
		return res, nil
	}

	halfBit := 0
	if r.half {
		halfBit = 1
	}
	if r.pos+((8-n)-(1-halfBit))/2 >= len(r.data) {
		return 0, ErrCorruptNumpress
	}

	for i := n; i < 8; i++ {
		res |= uint32(r.next()) << ((i - n) * 4)
	}
	return res, nil
}

// fixedPoint reads the big-endian scaling factor that prefixes linear and slof data.
func fixedPoint(data []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(data[:8]))
}

func decodeNumpressLinear(data []byte) ([]float64, error) {
	if len(data) == 0 {
		return []float64{}, nil
	}
	if len(data) == 8 {
		return []float64{}, nil
	}
	if len(data) < 12 {
		return nil, fmt.Errorf("%w: linear payload of %d bytes", ErrCorruptNumpress, len(data))
	}

	fp := fixedPoint(data)
	if fp == 0 {
		return nil, fmt.Errorf("%w: zero fixed point", ErrCorruptNumpress)
	}

	var ints [3]int64
	ints[1] = int64(binary.LittleEndian.Uint32(data[8:12]))
	result := []float64{float64(ints[1]) / fp}
	if len(data) == 12 {
		return result, nil
	}
	if len(data) < 16 {
		return nil, fmt.Errorf("%w: linear payload of %d bytes", ErrCorruptNumpress, len(data))
	}
	ints[2] = int64(binary.LittleEndian.Uint32(data[12:16]))
	result = append(result, float64(ints[2])/fp)

	r := &nibbleReader{data: data, pos: 16}
	for !r.done() {
		if r.padded() {
			break
		}
		buff, err := r.decodeInt()
		if err != nil {
			return nil, err
		}
		ints[0] = ints[1]
		ints[1] = ints[2]
		ints[2] = int64(int32(buff))

		y := ints[1]*2 - ints[0] + ints[2]
		result = append(result, float64(y)/fp)
		ints[2] = y
	}
	return result, nil
}

func decodeNumpressPic(data []byte) ([]float64, error) {
	result := []float64{}
	r := &nibbleReader{data: data}
	for !r.done() {
		if r.padded() {
			break
		}
		buff, err := r.decodeInt()
		if err != nil {
			return nil, err
		}
		result = append(result, float64(buff))
	}
	return result, nil
}

func decodeNumpressSlof(data []byte) ([]float64, error) {
	if len(data) == 0 {
		return []float64{}, nil
	}
	if len(data) < 8 || (len(data)-8)%2 != 0 {
		return nil, fmt.Errorf("%w: slof payload of %d bytes", ErrCorruptNumpress, len(data))
	}

	fp := fixedPoint(data)
	if fp == 0 {
		return nil, fmt.Errorf("%w: zero fixed point", ErrCorruptNumpress)
	}

	result := make([]float64, 0, (len(data)-8)/2)
	for i := 8; i < len(data); i += 2 {
		x := binary.LittleEndian.Uint16(data[i : i+2])
		result = append(result, math.Exp(float64(x)/fp)-1)
	}
	return result, nil
}
