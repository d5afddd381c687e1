package data

import (
	"errors"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/go-cmp/cmp"

	"github.com/VanDung-dev/MzParquet-Engine/mzml"
)

// sampleSpectra returns an MS1 scan and an MS2 scan that references it. All
// values are exact in float32.
func sampleSpectra() []*mzml.Spectrum {
	return []*mzml.Spectrum{
		{
			Index:            0,
			ID:               "scan=1",
			MsLevel:          1,
			Centroid:         true,
			ScanStartTime:    0.5,
			IonInjectionTime: 10,
			TotalIonCurrent:  600,
			Precursors:       []mzml.Precursor{},
			Mz:               []float64{100.5, 200.25, 300.125},
			Intensity:        []float64{100, 200, 300},
			CvParams:         []mzml.CvParam{{Accession: "MS:1000130", Value: ""}},
		},
		{
			Index:              1,
			ID:                 "scan=2",
			MsLevel:            2,
			ScanStartTime:      0.75,
			InverseIonMobility: mzml.Float64(1.25),
			IonInjectionTime:   50,
			TotalIonCurrent:    30,
			Precursors: []mzml.Precursor{{
				SelectedIonMz:         267.5,
				SelectedIonCharge:     mzml.Int32(2),
				IsolationWindowTarget: mzml.Float64(267.5),
				IsolationWindowLower:  mzml.Float64(0.5),
				IsolationWindowUpper:  mzml.Float64(0.75),
				SpectrumRef:           mzml.String("scan=1"),
			}},
			Mz:        []float64{150.5, 250.5},
			Intensity: []float64{10, 20},
			CvParams:  []mzml.CvParam{{Accession: "MS:1000045", Value: "27"}},
		},
	}
}

func TestSpectrumBuilderRoundTrip(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b := NewSpectrumBuilder(mem)
	defer b.Release()

	want := sampleSpectra()
	for _, s := range want {
		if size := b.Append(s); size <= 0 {
			t.Errorf("Expected positive size estimate for %s, got %d", s.ID, size)
		}
	}
	if b.Len() != 2 {
		t.Errorf("Expected 2 rows, got %d", b.Len())
	}

	record := b.NewRecord()
	defer record.Release()

	if b.Len() != 0 {
		t.Errorf("Builder should be empty after NewRecord, got %d", b.Len())
	}
	if record.NumRows() != 2 {
		t.Fatalf("Expected 2 rows, got %d", record.NumRows())
	}
	if err := ValidateSchema(record, SpectrumSchema()); err != nil {
		t.Fatalf("Record does not match schema: %v", err)
	}

	got, err := RecordToSpectra(record)
	if err != nil {
		t.Fatalf("RecordToSpectra failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSpectrumBuilderEmptyListsAreNotNull(t *testing.T) {
	b := NewSpectrumBuilder(nil)
	defer b.Release()

	b.Append(&mzml.Spectrum{
		ID:         "empty",
		MsLevel:    1,
		Precursors: []mzml.Precursor{},
		Mz:         []float64{},
		Intensity:  []float64{},
	})
	record := b.NewRecord()
	defer record.Release()

	for _, col := range []int{7, 8, 9, 10} {
		if record.Column(col).IsNull(0) {
			t.Errorf("Column %s should be an empty list, not null", record.ColumnName(col))
		}
	}
}

func TestSpectrumBuilderNarrowsToFloat32(t *testing.T) {
	b := NewSpectrumBuilder(nil)
	defer b.Release()

	b.Append(&mzml.Spectrum{
		ID:            "s",
		MsLevel:       1,
		ScanStartTime: 0.1,
		Mz:            []float64{267.05},
		Intensity:     []float64{1e-3},
	})
	record := b.NewRecord()
	defer record.Release()

	got, err := RecordToSpectra(record)
	if err != nil {
		t.Fatalf("RecordToSpectra failed: %v", err)
	}
	if got[0].Mz[0] != float64(float32(267.05)) {
		t.Errorf("Expected float32-narrowed m/z, got %v", got[0].Mz[0])
	}
	if got[0].ScanStartTime != float64(float32(0.1)) {
		t.Errorf("Expected float32-narrowed rt, got %v", got[0].ScanStartTime)
	}
}

func TestPeakBuilder(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b := NewPeakBuilder(mem)
	defer b.Release()

	spectra := sampleSpectra()
	b.Append(spectra[0])
	first := b.NewRecord()
	defer first.Release()

	// The precursor reference must resolve across record boundaries.
	if size := b.Append(spectra[1]); size != 2*peakRowSize {
		t.Errorf("Unexpected size estimate %d", size)
	}
	if b.Len() != 2 {
		t.Errorf("Expected 2 peak rows, got %d", b.Len())
	}
	second := b.NewRecord()
	defer second.Release()

	if first.NumRows() != 3 || second.NumRows() != 2 {
		t.Fatalf("Expected 3 and 2 rows, got %d and %d", first.NumRows(), second.NumRows())
	}
	if err := ValidateSchema(second, PeakSchema()); err != nil {
		t.Fatalf("Record does not match schema: %v", err)
	}

	col := func(name string) int { return second.Schema().FieldIndices(name)[0] }
	type row struct {
		Scan, PrecursorScan, Charge int32
		Lower, Upper, PrecursorMz   float32
	}
	got := row{
		Scan:          second.Column(col("scan")).(*array.Int32).Value(1),
		PrecursorScan: second.Column(col("precursor_scan")).(*array.Int32).Value(1),
		Charge:        second.Column(col("precursor_charge")).(*array.Int32).Value(1),
		Lower:         second.Column(col("isolation_lower")).(*array.Float32).Value(1),
		Upper:         second.Column(col("isolation_upper")).(*array.Float32).Value(1),
		PrecursorMz:   second.Column(col("precursor_mz")).(*array.Float32).Value(1),
	}
	want := row{Scan: 1, PrecursorScan: 0, Charge: 2, Lower: 267, Upper: 268.25, PrecursorMz: 267.5}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("peak row mismatch (-want +got):\n%s", diff)
	}

	if !first.Column(col("precursor_mz")).IsNull(0) {
		t.Error("MS1 peaks should have null precursor columns")
	}
}

func TestPeakBuilderUnresolvedReference(t *testing.T) {
	b := NewPeakBuilder(nil)
	defer b.Release()

	s := sampleSpectra()[1]
	b.Append(s)
	record := b.NewRecord()
	defer record.Release()

	idx := record.Schema().FieldIndices("precursor_scan")[0]
	if !record.Column(idx).IsNull(0) {
		t.Error("Unknown spectrum reference should leave precursor_scan null")
	}
}

func TestNewRowBuilder(t *testing.T) {
	for _, layout := range []Layout{LayoutWide, LayoutLong} {
		b, err := NewRowBuilder(layout, nil)
		if err != nil {
			t.Fatalf("%s: %v", layout, err)
		}
		if !b.Schema().Equal(SchemaFor(layout)) {
			t.Errorf("%s: schema mismatch", layout)
		}
		b.Release()
	}
	if _, err := NewRowBuilder("columnar", nil); !errors.Is(err, ErrUnknownLayout) {
		t.Errorf("Expected ErrUnknownLayout, got %v", err)
	}
}

func TestValidateSchema(t *testing.T) {
	b := NewSpectrumBuilder(nil)
	defer b.Release()
	b.Append(sampleSpectra()[0])
	record := b.NewRecord()
	defer record.Release()

	if err := ValidateSchema(record, SpectrumSchema()); err != nil {
		t.Errorf("Validation should pass: %v", err)
	}
	if err := ValidateSchema(record, PeakSchema()); err == nil {
		t.Error("Validation should fail with wrong schema")
	}
	if err := ValidateSchema(nil, PeakSchema()); err == nil {
		t.Error("Validation should fail for nil record")
	}
	if _, err := RecordToSpectra(record); err != nil {
		t.Errorf("RecordToSpectra failed: %v", err)
	}
}
