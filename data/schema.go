package data

import (
	"errors"

	"github.com/apache/arrow-go/v18/arrow"
)

// Column paths of the peak lists in the wide layout, as seen by the Parquet writer.
const (
	MzColumnPath        = "mz.list.element"
	IntensityColumnPath = "intensity.list.element"
)

// Layout selects the row shape of an mzparquet file.
type Layout string

const (
	LayoutWide Layout = "wide"
	LayoutLong Layout = "long"
)

// ErrUnknownLayout is returned for a layout other than wide or long.
var ErrUnknownLayout = errors.New("unknown layout")

// Valid reports whether l names a known layout. The empty layout means wide.
func (l Layout) Valid() bool {
	return l == LayoutWide || l == LayoutLong || l == ""
}

func listOf(t arrow.DataType) arrow.DataType {
	return arrow.ListOfField(arrow.Field{Name: "element", Type: t, Nullable: false})
}

// precursorFields returns the struct fields of one precursor entry.
func precursorFields() []arrow.Field {
	return []arrow.Field{
		{Name: "selected_ion_mz", Type: arrow.PrimitiveTypes.Float32, Nullable: false},
		{Name: "selected_ion_charge", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
		{Name: "selected_ion_intensity", Type: arrow.PrimitiveTypes.Float32, Nullable: true},
		{Name: "isolation_window_target", Type: arrow.PrimitiveTypes.Float32, Nullable: true},
		{Name: "isolation_window_lower", Type: arrow.PrimitiveTypes.Float32, Nullable: true},
		{Name: "isolation_window_upper", Type: arrow.PrimitiveTypes.Float32, Nullable: true},
		{Name: "spectrum_ref", Type: arrow.BinaryTypes.String, Nullable: true},
	}
}

func cvParamFields() []arrow.Field {
	return []arrow.Field{
		{Name: "accession", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "value", Type: arrow.BinaryTypes.String, Nullable: false},
	}
}

// SpectrumSchema returns the Arrow schema of the wide layout.
//
// Fields:
//   - id: string - native spectrum id
//   - ms_level: int32
//   - centroid: bool
//   - scan_start_time: float32 (minutes)
//   - inverse_ion_mobility: float32 (nullable)
//   - ion_injection_time: float32
//   - total_ion_current: float32
//   - precursors: list<struct> (nullable, written as an empty list)
//   - mz: list<float32>
//   - intensity: list<float32>
//   - cv_params: list<struct<accession, value>> (nullable, written as an empty list)
func SpectrumSchema() *arrow.Schema {
	return arrow.NewSchema(
		[]arrow.Field{
			{Name: "id", Type: arrow.BinaryTypes.String, Nullable: false},
			{Name: "ms_level", Type: arrow.PrimitiveTypes.Int32, Nullable: false},
			{Name: "centroid", Type: arrow.FixedWidthTypes.Boolean, Nullable: false},
			{Name: "scan_start_time", Type: arrow.PrimitiveTypes.Float32, Nullable: false},
			{Name: "inverse_ion_mobility", Type: arrow.PrimitiveTypes.Float32, Nullable: true},
			{Name: "ion_injection_time", Type: arrow.PrimitiveTypes.Float32, Nullable: false},
			{Name: "total_ion_current", Type: arrow.PrimitiveTypes.Float32, Nullable: false},
			{Name: "precursors", Type: listOf(arrow.StructOf(precursorFields()...)), Nullable: true},
			{Name: "mz", Type: listOf(arrow.PrimitiveTypes.Float32), Nullable: false},
			{Name: "intensity", Type: listOf(arrow.PrimitiveTypes.Float32), Nullable: false},
			{Name: "cv_params", Type: listOf(arrow.StructOf(cvParamFields()...)), Nullable: true},
		},
		nil,
	)
}

// PeakSchema returns the Arrow schema of the long layout.
// scan and precursor_scan are ordinals of spectra in the written file.
func PeakSchema() *arrow.Schema {
	return arrow.NewSchema(
		[]arrow.Field{
			{Name: "scan", Type: arrow.PrimitiveTypes.Int32, Nullable: false},
			{Name: "level", Type: arrow.PrimitiveTypes.Int32, Nullable: false},
			{Name: "rt", Type: arrow.PrimitiveTypes.Float32, Nullable: false},
			{Name: "mz", Type: arrow.PrimitiveTypes.Float32, Nullable: false},
			{Name: "intensity", Type: arrow.PrimitiveTypes.Float32, Nullable: false},
			{Name: "ion_mobility", Type: arrow.PrimitiveTypes.Float32, Nullable: true},
			{Name: "isolation_lower", Type: arrow.PrimitiveTypes.Float32, Nullable: true},
			{Name: "isolation_upper", Type: arrow.PrimitiveTypes.Float32, Nullable: true},
			{Name: "precursor_scan", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
			{Name: "precursor_mz", Type: arrow.PrimitiveTypes.Float32, Nullable: true},
			{Name: "precursor_charge", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
		},
		nil,
	)
}

// SchemaFor returns the schema of the given layout.
func SchemaFor(layout Layout) *arrow.Schema {
	if layout == LayoutLong {
		return PeakSchema()
	}
	return SpectrumSchema()
}

// ByteStreamSplitColumns returns the Parquet column paths of the peak values,
// which compress better with the BYTE_STREAM_SPLIT encoding.
func ByteStreamSplitColumns(layout Layout) []string {
	if layout == LayoutLong {
		return []string{"mz", "intensity"}
	}
	return []string{MzColumnPath, IntensityColumnPath}
}
