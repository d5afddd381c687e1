package engine

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/VanDung-dev/MzParquet-Engine/data"
	"github.com/VanDung-dev/MzParquet-Engine/mzml"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func spectrumWithPeaks(id string, peaks int) *mzml.Spectrum {
	s := &mzml.Spectrum{
		ID:         id,
		MsLevel:    1,
		Precursors: []mzml.Precursor{},
		Mz:         make([]float64, peaks),
		Intensity:  make([]float64, peaks),
		CvParams:   []mzml.CvParam{},
	}
	for i := range s.Mz {
		s.Mz[i] = float64(100 + i)
	}
	return s
}

func TestEmitterFlushesOnRowBound(t *testing.T) {
	sink := newRecordingSink()
	defer sink.release()
	em := NewEmitter(data.NewSpectrumBuilder(nil), sink, BatchOptions{MaxRows: 3})
	defer em.Close()

	var flushed []int
	em.onFlush = func(rows, _ int) { flushed = append(flushed, rows) }

	for _, id := range []string{"a", "b", "c", "d"} {
		if err := em.Emit(spectrumWithPeaks(id, 1)); err != nil {
			t.Fatalf("Emit failed: %v", err)
		}
	}
	if em.Pending() != 1 {
		t.Errorf("Expected 1 pending row, got %d", em.Pending())
	}
	if err := em.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	// Flushing an empty batch is a no-op.
	if err := em.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if diff := cmp.Diff([]int{3, 1}, flushed); diff != "" {
		t.Errorf("flushes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b", "c", "d"}, sink.ids(t)); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	if em.Emitted() != 4 {
		t.Errorf("Expected 4 emitted, got %d", em.Emitted())
	}
}

func TestEmitterFlushesOnByteBound(t *testing.T) {
	sink := newRecordingSink()
	defer sink.release()
	// Each spectrum with 1000 peaks is estimated at well over 4 KiB.
	em := NewEmitter(data.NewSpectrumBuilder(nil), sink, BatchOptions{MaxRows: 1000, MaxBytes: 4096})
	defer em.Close()

	for _, id := range []string{"a", "b"} {
		if err := em.Emit(spectrumWithPeaks(id, 1000)); err != nil {
			t.Fatalf("Emit failed: %v", err)
		}
	}
	if diff := cmp.Diff([]int64{1, 1}, sink.batchSizes()); diff != "" {
		t.Errorf("batch sizes mismatch (-want +got):\n%s", diff)
	}
}

func TestEmitterWriteError(t *testing.T) {
	sink := newRecordingSink()
	sink.writeErr = errors.New("closed pipe")
	em := NewEmitter(data.NewSpectrumBuilder(nil), sink, BatchOptions{MaxRows: 1})
	defer em.Close()

	err := em.Emit(spectrumWithPeaks("a", 2))
	var ioErr *IOError
	if !errors.As(err, &ioErr) || !errors.Is(err, sink.writeErr) {
		t.Errorf("Expected *IOError wrapping the write error, got %v", err)
	}
	if em.Emitted() != 1 || em.Written() != 0 {
		t.Errorf("Expected 1 emitted and 0 written, got %d and %d", em.Emitted(), em.Written())
	}
}

func TestDefaultBatchOptions(t *testing.T) {
	got := BatchOptions{}.withDefaults()
	if diff := cmp.Diff(DefaultBatchOptions(), got); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
	custom := BatchOptions{MaxRows: 10}.withDefaults()
	if custom.MaxRows != 10 || custom.MaxBytes != DefaultBatchOptions().MaxBytes {
		t.Errorf("Unexpected options: %+v", custom)
	}
}
