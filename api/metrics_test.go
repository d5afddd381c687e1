package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics("mzparquet")

	m.ConversionStarted()
	if got := testutil.ToFloat64(m.ActiveConversions); got != 1 {
		t.Errorf("Expected 1 active conversion, got %v", got)
	}

	m.RecordSpectrum()
	m.RecordSpectrum()
	m.RecordSkip("decode")
	m.RecordBatch(2, 1024)
	m.AddBytesRead(4096)
	m.ConversionFinished("closed", 2*time.Second)

	if got := testutil.ToFloat64(m.SpectraConverted); got != 2 {
		t.Errorf("Expected 2 converted spectra, got %v", got)
	}
	if got := testutil.ToFloat64(m.SpectraSkipped.WithLabelValues("decode")); got != 1 {
		t.Errorf("Expected 1 decode skip, got %v", got)
	}
	if got := testutil.ToFloat64(m.RowGroupsWritten); got != 1 {
		t.Errorf("Expected 1 row group, got %v", got)
	}
	if got := testutil.ToFloat64(m.BytesRead); got != 4096 {
		t.Errorf("Expected 4096 bytes read, got %v", got)
	}
	if got := testutil.ToFloat64(m.FilesTotal.WithLabelValues("closed")); got != 1 {
		t.Errorf("Expected 1 closed file, got %v", got)
	}
	if got := testutil.ToFloat64(m.ActiveConversions); got != 0 {
		t.Errorf("Expected 0 active conversions, got %v", got)
	}
}

func TestMetricsIndependentRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a := NewMetrics("mzparquet")
	b := NewMetrics("mzparquet")
	a.RecordSpectrum()
	if got := testutil.ToFloat64(b.SpectraConverted); got != 0 {
		t.Errorf("Expected independent counters, got %v", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ConversionStarted()
	m.RecordSpectrum()
	m.RecordSkip("validation:mz")
	m.RecordBatch(1, 1)
	m.AddBytesRead(1)
	m.UpdateQueueDepth(3)
	m.ConversionFinished("failed", time.Second)
}

func TestMetricsServerHandler(t *testing.T) {
	m := NewMetrics("mzparquet")
	m.RecordSkip("decode")
	srv := NewMetricsServer("127.0.0.1:0", m)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `mzparquet_spectra_skipped_total{reason="decode"} 1`) {
		t.Error("Expected skip counter in exposition")
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("Expected Go runtime metrics in exposition")
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("Unexpected health response %d %q", rec.Code, rec.Body.String())
	}
}
