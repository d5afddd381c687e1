package data

import (
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/VanDung-dev/MzParquet-Engine/mzml"
)

// RowBuilder accumulates spectra into the columns of one layout.
type RowBuilder interface {
	Schema() *arrow.Schema
	// Append adds one spectrum and returns the estimated number of bytes it added.
	Append(s *mzml.Spectrum) int
	// Len is the number of rows accumulated since the last NewRecord.
	Len() int
	// NewRecord returns the accumulated rows and resets the builder.
	NewRecord() arrow.Record
	Release()
}

// rowOverhead approximates the fixed per-row cost of the scalar columns.
const rowOverhead = 48

// SpectrumBuilder builds records of the wide layout, one row per spectrum.
type SpectrumBuilder struct {
	schema *arrow.Schema
	rb     *array.RecordBuilder
	rows   int

	id        *array.StringBuilder
	msLevel   *array.Int32Builder
	centroid  *array.BooleanBuilder
	rt        *array.Float32Builder
	mobility  *array.Float32Builder
	injection *array.Float32Builder
	tic       *array.Float32Builder

	precursors  *array.ListBuilder
	precursor   *array.StructBuilder
	selMz       *array.Float32Builder
	selCharge   *array.Int32Builder
	selInt      *array.Float32Builder
	isoTarget   *array.Float32Builder
	isoLower    *array.Float32Builder
	isoUpper    *array.Float32Builder
	spectrumRef *array.StringBuilder

	mz        *array.ListBuilder
	mzValues  *array.Float32Builder
	intensity *array.ListBuilder
	intValues *array.Float32Builder

	cvParams    *array.ListBuilder
	cvParam     *array.StructBuilder
	cvAccession *array.StringBuilder
	cvValue     *array.StringBuilder

	scratch []float32
}

// NewSpectrumBuilder creates a wide-layout builder. A nil allocator selects the
// default Go allocator.
func NewSpectrumBuilder(mem memory.Allocator) *SpectrumBuilder {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	schema := SpectrumSchema()
	rb := array.NewRecordBuilder(mem, schema)

	b := &SpectrumBuilder{
		schema:    schema,
		rb:        rb,
		id:        rb.Field(0).(*array.StringBuilder),
		msLevel:   rb.Field(1).(*array.Int32Builder),
		centroid:  rb.Field(2).(*array.BooleanBuilder),
		rt:        rb.Field(3).(*array.Float32Builder),
		mobility:  rb.Field(4).(*array.Float32Builder),
		injection: rb.Field(5).(*array.Float32Builder),
		tic:       rb.Field(6).(*array.Float32Builder),
		mz:        rb.Field(8).(*array.ListBuilder),
		intensity: rb.Field(9).(*array.ListBuilder),
	}

	b.precursors = rb.Field(7).(*array.ListBuilder)
	b.precursor = b.precursors.ValueBuilder().(*array.StructBuilder)
	b.selMz = b.precursor.FieldBuilder(0).(*array.Float32Builder)
	b.selCharge = b.precursor.FieldBuilder(1).(*array.Int32Builder)
	b.selInt = b.precursor.FieldBuilder(2).(*array.Float32Builder)
	b.isoTarget = b.precursor.FieldBuilder(3).(*array.Float32Builder)
	b.isoLower = b.precursor.FieldBuilder(4).(*array.Float32Builder)
	b.isoUpper = b.precursor.FieldBuilder(5).(*array.Float32Builder)
	b.spectrumRef = b.precursor.FieldBuilder(6).(*array.StringBuilder)

	b.mzValues = b.mz.ValueBuilder().(*array.Float32Builder)
	b.intValues = b.intensity.ValueBuilder().(*array.Float32Builder)

	b.cvParams = rb.Field(10).(*array.ListBuilder)
	b.cvParam = b.cvParams.ValueBuilder().(*array.StructBuilder)
	b.cvAccession = b.cvParam.FieldBuilder(0).(*array.StringBuilder)
	b.cvValue = b.cvParam.FieldBuilder(1).(*array.StringBuilder)
	return b
}

// Schema returns the wide-layout schema.
func (b *SpectrumBuilder) Schema() *arrow.Schema { return b.schema }

// Len returns the number of spectra accumulated.
func (b *SpectrumBuilder) Len() int { return b.rows }

// Append adds one spectrum row.
func (b *SpectrumBuilder) Append(s *mzml.Spectrum) int {
	size := rowOverhead + len(s.ID)

	b.id.Append(s.ID)
	b.msLevel.Append(s.MsLevel)
	b.centroid.Append(s.Centroid)
	b.rt.Append(float32(s.ScanStartTime))
	appendFloat32(b.mobility, s.InverseIonMobility)
	b.injection.Append(float32(s.IonInjectionTime))
	b.tic.Append(float32(s.TotalIonCurrent))

	b.precursors.Append(true)
	for i := range s.Precursors {
		p := &s.Precursors[i]
		b.precursor.Append(true)
		b.selMz.Append(float32(p.SelectedIonMz))
		if p.SelectedIonCharge != nil {
			b.selCharge.Append(*p.SelectedIonCharge)
		} else {
			b.selCharge.AppendNull()
		}
		appendFloat32(b.selInt, p.SelectedIonIntensity)
		appendFloat32(b.isoTarget, p.IsolationWindowTarget)
		appendFloat32(b.isoLower, p.IsolationWindowLower)
		appendFloat32(b.isoUpper, p.IsolationWindowUpper)
		if p.SpectrumRef != nil {
			b.spectrumRef.Append(*p.SpectrumRef)
			size += len(*p.SpectrumRef)
		} else {
			b.spectrumRef.AppendNull()
		}
		size += 28
	}

	b.mz.Append(true)
	b.mzValues.AppendValues(b.narrow(s.Mz), nil)
	b.intensity.Append(true)
	b.intValues.AppendValues(b.narrow(s.Intensity), nil)
	size += 8 * len(s.Mz)

	b.cvParams.Append(true)
	for _, p := range s.CvParams {
		b.cvParam.Append(true)
		b.cvAccession.Append(p.Accession)
		b.cvValue.Append(p.Value)
		size += len(p.Accession) + len(p.Value) + 8
	}

	b.rows++
	return size
}

// NewRecord returns the accumulated rows as a record and resets the builder.
func (b *SpectrumBuilder) NewRecord() arrow.Record {
	b.rows = 0
	return b.rb.NewRecord()
}

// Release frees the builder's buffers.
func (b *SpectrumBuilder) Release() {
	b.rb.Release()
}

// narrow converts values to float32 in a reused buffer.
func (b *SpectrumBuilder) narrow(values []float64) []float32 {
	if cap(b.scratch) < len(values) {
		b.scratch = make([]float32, len(values))
	}
	out := b.scratch[:len(values)]
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}

func appendFloat32(b *array.Float32Builder, v *float64) {
	if v == nil {
		b.AppendNull()
		return
	}
	b.Append(float32(*v))
}

// NewRowBuilder returns the builder of the given layout.
func NewRowBuilder(layout Layout, mem memory.Allocator) (RowBuilder, error) {
	switch layout {
	case LayoutWide, "":
		return NewSpectrumBuilder(mem), nil
	case LayoutLong:
		return NewPeakBuilder(mem), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownLayout, layout)
	}
}

// RecordToSpectra reads wide-layout rows back into spectra. Values are widened
// from their stored float32 form.
func RecordToSpectra(record arrow.Record) ([]*mzml.Spectrum, error) {
	if record == nil || record.NumRows() == 0 {
		return nil, nil
	}
	if err := ValidateSchema(record, SpectrumSchema()); err != nil {
		return nil, err
	}

	idCol, ok := record.Column(0).(*array.String)
	if !ok {
		return nil, errors.New("column 0 (id) is not a String array")
	}
	levelCol, ok := record.Column(1).(*array.Int32)
	if !ok {
		return nil, errors.New("column 1 (ms_level) is not an Int32 array")
	}
	centroidCol, ok := record.Column(2).(*array.Boolean)
	if !ok {
		return nil, errors.New("column 2 (centroid) is not a Boolean array")
	}
	var floats [4]*array.Float32
	for i, col := range []int{3, 4, 5, 6} {
		if floats[i], ok = record.Column(col).(*array.Float32); !ok {
			return nil, fmt.Errorf("column %d (%s) is not a Float32 array", col, record.ColumnName(col))
		}
	}
	rtCol, mobilityCol, injectionCol, ticCol := floats[0], floats[1], floats[2], floats[3]

	var lists [4]*array.List
	for i, col := range []int{7, 8, 9, 10} {
		if lists[i], ok = record.Column(col).(*array.List); !ok {
			return nil, fmt.Errorf("column %d (%s) is not a List array", col, record.ColumnName(col))
		}
	}
	precursorCol, mzCol, intCol, cvCol := lists[0], lists[1], lists[2], lists[3]

	precursors := precursorCol.ListValues().(*array.Struct)
	mzValues := mzCol.ListValues().(*array.Float32)
	intValues := intCol.ListValues().(*array.Float32)
	cvValues := cvCol.ListValues().(*array.Struct)

	spectra := make([]*mzml.Spectrum, record.NumRows())
	for i := range spectra {
		s := &mzml.Spectrum{
			Index:            i,
			ID:               idCol.Value(i),
			MsLevel:          levelCol.Value(i),
			Centroid:         centroidCol.Value(i),
			ScanStartTime:    float64(rtCol.Value(i)),
			IonInjectionTime: float64(injectionCol.Value(i)),
			TotalIonCurrent:  float64(ticCol.Value(i)),
			Precursors:       []mzml.Precursor{},
			CvParams:         []mzml.CvParam{},
		}
		s.InverseIonMobility = optFloat(mobilityCol, i)

		if precursorCol.IsValid(i) {
			start, end := precursorCol.ValueOffsets(i)
			for j := int(start); j < int(end); j++ {
				s.Precursors = append(s.Precursors, readPrecursor(precursors, j))
			}
		}

		start, end := mzCol.ValueOffsets(i)
		s.Mz = widen(mzValues, int(start), int(end))
		start, end = intCol.ValueOffsets(i)
		s.Intensity = widen(intValues, int(start), int(end))

		if cvCol.IsValid(i) {
			acc := cvValues.Field(0).(*array.String)
			val := cvValues.Field(1).(*array.String)
			start, end := cvCol.ValueOffsets(i)
			for j := int(start); j < int(end); j++ {
				s.CvParams = append(s.CvParams, mzml.CvParam{Accession: acc.Value(j), Value: val.Value(j)})
			}
		}
		spectra[i] = s
	}
	return spectra, nil
}

func readPrecursor(st *array.Struct, j int) mzml.Precursor {
	p := mzml.Precursor{
		SelectedIonMz:         float64(st.Field(0).(*array.Float32).Value(j)),
		SelectedIonIntensity:  optFloat(st.Field(2).(*array.Float32), j),
		IsolationWindowTarget: optFloat(st.Field(3).(*array.Float32), j),
		IsolationWindowLower:  optFloat(st.Field(4).(*array.Float32), j),
		IsolationWindowUpper:  optFloat(st.Field(5).(*array.Float32), j),
	}
	if charge := st.Field(1).(*array.Int32); charge.IsValid(j) {
		p.SelectedIonCharge = mzml.Int32(charge.Value(j))
	}
	if ref := st.Field(6).(*array.String); ref.IsValid(j) {
		p.SpectrumRef = mzml.String(ref.Value(j))
	}
	return p
}

func optFloat(col *array.Float32, i int) *float64 {
	if col.IsNull(i) {
		return nil
	}
	return mzml.Float64(float64(col.Value(i)))
}

func widen(col *array.Float32, start, end int) []float64 {
	out := make([]float64, end-start)
	for j := start; j < end; j++ {
		out[j-start] = float64(col.Value(j))
	}
	return out
}

// ValidateSchema checks if a record matches the expected schema.
func ValidateSchema(record arrow.Record, expected *arrow.Schema) error {
	if record == nil {
		return errors.New("record is nil")
	}

	actual := record.Schema()
	if actual.NumFields() != expected.NumFields() {
		return fmt.Errorf("field count mismatch: got %d, expected %d",
			actual.NumFields(), expected.NumFields())
	}

	for i := 0; i < actual.NumFields(); i++ {
		actualField := actual.Field(i)
		expectedField := expected.Field(i)

		if actualField.Name != expectedField.Name {
			return fmt.Errorf("field %d name mismatch: got %s, expected %s",
				i, actualField.Name, expectedField.Name)
		}

		if !arrow.TypeEqual(actualField.Type, expectedField.Type) {
			return fmt.Errorf("field %s type mismatch: got %s, expected %s",
				actualField.Name, actualField.Type, expectedField.Type)
		}
	}

	return nil
}
