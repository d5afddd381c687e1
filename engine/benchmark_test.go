package engine

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/VanDung-dev/MzParquet-Engine/internal/mzmltest"
)

// benchmarkDocument builds n MS1 scans of the given number of peaks.
func benchmarkDocument(n, peaks int) string {
	scans := make([]mzmltest.Scan, n)
	for i := range scans {
		mz := make([]float64, peaks)
		intensity := make([]float64, peaks)
		for j := range mz {
			mz[j] = 100 + float64(j)*0.01
			intensity[j] = float64(j % 997)
		}
		scans[i] = mzmltest.Scan{
			ID:        fmt.Sprintf("scan=%d", i+1),
			MsLevel:   1,
			Centroid:  true,
			RT:        float64(i) * 0.01,
			IIT:       10,
			TIC:       1,
			Zlib:      true,
			Mz:        mz,
			Intensity: intensity,
		}
	}
	return mzmltest.Document(scans...)
}

// BenchmarkConvert_100 benchmarks converting 100 spectra.
func BenchmarkConvert_100(b *testing.B) {
	benchmarkConvert(b, 100, false)
}

// BenchmarkConvert_1000 benchmarks converting 1000 spectra.
func BenchmarkConvert_1000(b *testing.B) {
	benchmarkConvert(b, 1000, false)
}

// BenchmarkConvert_1000_Concurrent benchmarks the two-goroutine pipeline.
func BenchmarkConvert_1000_Concurrent(b *testing.B) {
	benchmarkConvert(b, 1000, true)
}

func benchmarkConvert(b *testing.B, spectra int, concurrent bool) {
	doc := benchmarkDocument(spectra, 200)
	opts := DefaultOptions()
	opts.Logger = discardLogger()
	opts.Concurrent = concurrent

	b.SetBytes(int64(len(doc)))
	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		d := NewDriver(opts)
		sink, err := d.NewSink(io.Discard)
		if err != nil {
			b.Fatalf("NewSink failed: %v", err)
		}
		if _, err := d.Convert(context.Background(), strings.NewReader(doc), sink); err != nil {
			b.Fatalf("Convert failed: %v", err)
		}
	}

	b.ReportMetric(float64(spectra*b.N)/b.Elapsed().Seconds(), "spectra/sec")
}
