package data

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/VanDung-dev/MzParquet-Engine/mzml"
)

// peakRowSize approximates the encoded size of one long-layout row.
const peakRowSize = 44

// PeakBuilder builds records of the long layout, one row per peak. Spectra
// without peaks produce no rows but still take a scan ordinal.
type PeakBuilder struct {
	schema *arrow.Schema
	rb     *array.RecordBuilder
	rows   int

	scan      *array.Int32Builder
	level     *array.Int32Builder
	rt        *array.Float32Builder
	mz        *array.Float32Builder
	intensity *array.Float32Builder
	mobility  *array.Float32Builder
	isoLower  *array.Float32Builder
	isoUpper  *array.Float32Builder
	pscan     *array.Int32Builder
	pmz       *array.Float32Builder
	pcharge   *array.Int32Builder

	// scans maps a spectrum id to its ordinal; it outlives record boundaries.
	scans   map[string]int32
	written int32
}

// NewPeakBuilder creates a long-layout builder.
func NewPeakBuilder(mem memory.Allocator) *PeakBuilder {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	schema := PeakSchema()
	rb := array.NewRecordBuilder(mem, schema)
	return &PeakBuilder{
		schema:    schema,
		rb:        rb,
		scan:      rb.Field(0).(*array.Int32Builder),
		level:     rb.Field(1).(*array.Int32Builder),
		rt:        rb.Field(2).(*array.Float32Builder),
		mz:        rb.Field(3).(*array.Float32Builder),
		intensity: rb.Field(4).(*array.Float32Builder),
		mobility:  rb.Field(5).(*array.Float32Builder),
		isoLower:  rb.Field(6).(*array.Float32Builder),
		isoUpper:  rb.Field(7).(*array.Float32Builder),
		pscan:     rb.Field(8).(*array.Int32Builder),
		pmz:       rb.Field(9).(*array.Float32Builder),
		pcharge:   rb.Field(10).(*array.Int32Builder),
		scans:     make(map[string]int32),
	}
}

// Schema returns the long-layout schema.
func (b *PeakBuilder) Schema() *arrow.Schema { return b.schema }

// Len returns the number of peak rows accumulated.
func (b *PeakBuilder) Len() int { return b.rows }

// Append adds one row per peak of s. The first precursor supplies the
// precursor columns; isolation bounds are absolute m/z values.
func (b *PeakBuilder) Append(s *mzml.Spectrum) int {
	scan := b.written
	b.scans[s.ID] = scan
	b.written++

	n := s.NumPeaks()
	if n == 0 {
		return 0
	}

	var lower, upper, pmz *float64
	var pscan, pcharge *int32
	if len(s.Precursors) > 0 {
		p := s.Precursors[0]
		pmz = mzml.Float64(p.SelectedIonMz)
		pcharge = p.SelectedIonCharge
		if p.IsolationWindowLower != nil {
			lower = mzml.Float64(p.SelectedIonMz - *p.IsolationWindowLower)
		}
		if p.IsolationWindowUpper != nil {
			upper = mzml.Float64(p.SelectedIonMz + *p.IsolationWindowUpper)
		}
		if p.SpectrumRef != nil {
			if ord, ok := b.scans[*p.SpectrumRef]; ok {
				pscan = mzml.Int32(ord)
			}
		}
	}

	b.rb.Reserve(n)
	for i := 0; i < n; i++ {
		b.scan.Append(scan)
		b.level.Append(s.MsLevel)
		b.rt.Append(float32(s.ScanStartTime))
		b.mz.Append(float32(s.Mz[i]))
		b.intensity.Append(float32(s.Intensity[i]))
		appendFloat32(b.mobility, s.InverseIonMobility)
		appendFloat32(b.isoLower, lower)
		appendFloat32(b.isoUpper, upper)
		appendInt32(b.pscan, pscan)
		appendFloat32(b.pmz, pmz)
		appendInt32(b.pcharge, pcharge)
	}
	b.rows += n
	return n * peakRowSize
}

// NewRecord returns the accumulated rows and resets the column builders. Scan
// ordinals keep counting across records.
func (b *PeakBuilder) NewRecord() arrow.Record {
	b.rows = 0
	return b.rb.NewRecord()
}

// Release frees the builder's buffers.
func (b *PeakBuilder) Release() {
	b.rb.Release()
}

func appendInt32(b *array.Int32Builder, v *int32) {
	if v == nil {
		b.AppendNull()
		return
	}
	b.Append(*v)
}
