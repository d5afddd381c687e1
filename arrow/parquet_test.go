package arrow

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/google/go-cmp/cmp"

	"github.com/VanDung-dev/MzParquet-Engine/data"
	"github.com/VanDung-dev/MzParquet-Engine/mzml"
)

func testSpectrum(id string, level int32, peaks int) *mzml.Spectrum {
	s := &mzml.Spectrum{
		ID:               id,
		MsLevel:          level,
		ScanStartTime:    1.5,
		IonInjectionTime: 20,
		TotalIonCurrent:  float64(peaks),
		Precursors:       []mzml.Precursor{},
		Mz:               make([]float64, peaks),
		Intensity:        make([]float64, peaks),
		CvParams:         []mzml.CvParam{},
	}
	for i := 0; i < peaks; i++ {
		s.Mz[i] = 100 + float64(i)
		s.Intensity[i] = 1
	}
	if level > 1 {
		s.Precursors = append(s.Precursors, mzml.Precursor{SelectedIonMz: 500.25, SelectedIonCharge: mzml.Int32(3)})
	}
	return s
}

func buildRecord(t *testing.T, spectra ...*mzml.Spectrum) arrow.Record {
	t.Helper()
	b := data.NewSpectrumBuilder(nil)
	defer b.Release()
	for _, s := range spectra {
		b.Append(s)
	}
	return b.NewRecord()
}

func TestParquetSinkRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	sink, err := NewParquetSink(&buf, data.SpectrumSchema(), ParquetOptions{
		SplitColumns: data.ByteStreamSplitColumns(data.LayoutWide),
		CreatedBy:    "mzparquet test",
	})
	if err != nil {
		t.Fatalf("NewParquetSink failed: %v", err)
	}

	want := []*mzml.Spectrum{
		testSpectrum("scan=1", 1, 3),
		testSpectrum("scan=2", 2, 2),
		testSpectrum("scan=3", 1, 0),
	}
	first := buildRecord(t, want[0], want[1])
	defer first.Release()
	second := buildRecord(t, want[2])
	defer second.Release()

	for _, rec := range []arrow.Record{first, second} {
		if err := sink.Write(rec); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	sink.SetMetadata(MetaVersion, FormatVersion)
	sink.SetMetadata(MetaComplete, "false")
	sink.SetMetadata(MetaComplete, "true")
	sink.SetMetadata(MetaConverted, "3")
	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if sink.RowGroups() != 2 {
		t.Errorf("Expected 2 row groups, got %d", sink.RowGroups())
	}
	if err := sink.Write(first); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("Expected ErrSinkClosed, got %v", err)
	}

	var got []*mzml.Spectrum
	info, err := ReadParquet(context.Background(), bytes.NewReader(buf.Bytes()), 2, func(rec arrow.Record) error {
		spectra, err := data.RecordToSpectra(rec)
		got = append(got, spectra...)
		return err
	})
	if err != nil {
		t.Fatalf("ReadParquet failed: %v", err)
	}

	if info.Rows != 3 || info.RowGroups != 2 {
		t.Errorf("Expected 3 rows in 2 row groups, got %d in %d", info.Rows, info.RowGroups)
	}
	if !info.Complete() {
		t.Error("Expected file to be marked complete")
	}
	if info.Metadata[MetaConverted] != "3" || info.Metadata[MetaVersion] != FormatVersion {
		t.Errorf("Unexpected metadata: %v", info.Metadata)
	}
	expected := data.SpectrumSchema()
	if info.Schema.NumFields() != expected.NumFields() {
		t.Fatalf("Stored schema has %d fields, want %d", info.Schema.NumFields(), expected.NumFields())
	}
	for i := 0; i < expected.NumFields(); i++ {
		if !arrow.TypeEqual(info.Schema.Field(i).Type, expected.Field(i).Type) {
			t.Errorf("Stored schema mismatch at %s: %s", expected.Field(i).Name, info.Schema.Field(i).Type)
		}
	}

	// Index is the ordinal within a read batch, so compare without it.
	ignoreIndex := cmp.FilterPath(func(p cmp.Path) bool {
		return p.Last().String() == ".Index"
	}, cmp.Ignore())
	if diff := cmp.Diff(want, got, ignoreIndex); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParquetSinkColumnProperties(t *testing.T) {
	var buf bytes.Buffer
	sink, err := NewParquetSink(&buf, data.SpectrumSchema(), ParquetOptions{
		SplitColumns: data.ByteStreamSplitColumns(data.LayoutWide),
	})
	if err != nil {
		t.Fatalf("NewParquetSink failed: %v", err)
	}
	rec := buildRecord(t, testSpectrum("scan=1", 1, 8))
	defer rec.Release()
	if err := sink.Write(rec); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	pf, err := file.NewParquetReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("NewParquetReader failed: %v", err)
	}
	defer pf.Close()

	rg := pf.MetaData().RowGroup(0)
	for _, path := range []string{data.MzColumnPath, data.IntensityColumnPath, "id"} {
		idx := pf.MetaData().Schema.ColumnIndexByName(path)
		if idx < 0 {
			t.Fatalf("Column %s not found", path)
		}
		cc, err := rg.ColumnChunk(idx)
		if err != nil {
			t.Fatalf("ColumnChunk(%s) failed: %v", path, err)
		}
		if cc.Compression() != compress.Codecs.Zstd {
			t.Errorf("%s: expected zstd, got %s", path, cc.Compression())
		}
		split := false
		for _, enc := range cc.Encodings() {
			if enc == parquet.Encodings.ByteStreamSplit {
				split = true
			}
			if enc == parquet.Encodings.RLEDict || enc == parquet.Encodings.PlainDict {
				t.Errorf("%s: dictionary encoding should be disabled", path)
			}
		}
		if wantSplit := path != "id"; split != wantSplit {
			t.Errorf("%s: byte stream split = %v, want %v", path, split, wantSplit)
		}
	}
}

func TestParquetSinkEmptyFile(t *testing.T) {
	var buf bytes.Buffer
	sink, err := NewParquetSink(&buf, data.SpectrumSchema(), ParquetOptions{})
	if err != nil {
		t.Fatalf("NewParquetSink failed: %v", err)
	}
	sink.SetMetadata(MetaComplete, "false")
	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	info, err := ReadParquet(context.Background(), bytes.NewReader(buf.Bytes()), 0, nil)
	if err != nil {
		t.Fatalf("ReadParquet failed: %v", err)
	}
	if info.Rows != 0 || info.RowGroups != 0 {
		t.Errorf("Expected empty file, got %d rows in %d row groups", info.Rows, info.RowGroups)
	}
	if info.Complete() {
		t.Error("File marked incomplete must not report complete")
	}
}

func TestReadParquetRejectsGarbage(t *testing.T) {
	if _, err := ReadParquet(context.Background(), bytes.NewReader([]byte("not parquet at all")), 0, nil); err == nil {
		t.Error("Expected error for non-parquet input")
	}
}
