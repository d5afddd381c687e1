package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/VanDung-dev/MzParquet-Engine/engine"
	"github.com/VanDung-dev/MzParquet-Engine/internal/mzmltest"
)

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return p
}

func TestConvertAndVerify(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "run1.mzML", mzmltest.TwoScans())
	out := filepath.Join(dir, "out", "nested")

	code, stdout, stderr := run(t, "convert", src, "-o", out, "--log-level", "error")
	if code != engine.ExitOK {
		t.Fatalf("convert exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "2 converted") {
		t.Errorf("Unexpected convert output: %s", stdout)
	}

	dst := filepath.Join(out, "run1.mzparquet")
	code, stdout, stderr = run(t, "verify", dst)
	if code != engine.ExitOK {
		t.Fatalf("verify exit %d: %s", code, stderr)
	}
	for _, want := range []string{"Spectra:    2", "Peaks:      5", "Complete:   true", "mzparquet.converted = 2"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("verify output missing %q:\n%s", want, stdout)
		}
	}
}

func TestConvertLongIPCNextToSource(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "run2.mzML", mzmltest.TwoScans())

	code, _, stderr := run(t, "convert", src, "--layout", "long", "--format", "ipc", "--log-level", "error")
	if code != engine.ExitOK {
		t.Fatalf("convert exit %d: %s", code, stderr)
	}

	code, stdout, stderr := run(t, "verify", filepath.Join(dir, "run2.arrows"))
	if code != engine.ExitOK {
		t.Fatalf("verify exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Layout:     long") || !strings.Contains(stdout, "Peaks:      5") {
		t.Errorf("Unexpected verify output:\n%s", stdout)
	}
}

func TestConvertPartialExitCode(t *testing.T) {
	dir := t.TempDir()
	scans := []mzmltest.Scan{
		{ID: "scan=1", MsLevel: 1, RT: 1, IIT: 5, TIC: 1, Mz: []float64{100}, Intensity: []float64{1}},
		{ID: "scan=2", MsLevel: 1, RT: 2, IIT: 5, TIC: 1, Mz: []float64{100}, Intensity: []float64{1}, MzText: "%%%%"},
	}
	src := writeFile(t, dir, "bad.mzML", mzmltest.Document(scans...))

	code, stdout, _ := run(t, "convert", src, "--log-level", "error")
	if code != engine.ExitPartial {
		t.Errorf("Expected exit code 3, got %d", code)
	}
	if !strings.Contains(stdout, "1 skipped") {
		t.Errorf("Unexpected output: %s", stdout)
	}

	code, _, _ = run(t, "convert", src, "--strict", "--log-level", "error")
	if code != engine.ExitInvalid {
		t.Errorf("Expected exit code 2 in strict mode, got %d", code)
	}
}

func TestVerifyKeptPartialStream(t *testing.T) {
	dir := t.TempDir()
	doc := mzmltest.TwoScans()
	src := writeFile(t, dir, "cut.mzML", doc[:strings.Index(doc, `<spectrum index="1"`)+40])

	code, _, _ := run(t, "convert", src, "--format", "ipc", "--keep-partial", "--log-level", "error")
	if code != engine.ExitInvalid {
		t.Fatalf("Expected exit code 2 for a truncated source, got %d", code)
	}

	partial := filepath.Join(dir, "cut.arrows.partial")
	code, stdout, stderr := run(t, "verify", partial)
	if code != engine.ExitPartial {
		t.Fatalf("Expected exit code 3 for a kept partial stream, got %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Complete:   false") || !strings.Contains(stdout, "Spectra:    1") {
		t.Errorf("Unexpected verify output:\n%s", stdout)
	}
}

func TestConvertConfigFile(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "run3.mzML", mzmltest.TwoScans())
	cfg := writeFile(t, dir, "mzparquet.yaml", "format: ipc\nlog_level: error\n")

	code, _, stderr := run(t, "--config", cfg, "convert", src)
	if code != engine.ExitOK {
		t.Fatalf("convert exit %d: %s", code, stderr)
	}
	if _, err := os.Stat(filepath.Join(dir, "run3.arrows")); err != nil {
		t.Errorf("Expected IPC output from config file: %v", err)
	}
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no inputs", []string{"convert"}, engine.ExitInvalid},
		{"bad layout", []string{"convert", "x.mzML", "--layout", "columnar"}, engine.ExitInvalid},
		{"unknown flag", []string{"convert", "--nope"}, engine.ExitInvalid},
		{"missing source", []string{"convert", "/nonexistent/run.mzML", "--log-level", "error"}, engine.ExitIO},
		{"verify missing", []string{"verify", "/nonexistent/run.mzparquet"}, engine.ExitIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _, _ := run(t, tt.args...); code != tt.want {
				t.Errorf("Expected exit code %d, got %d", tt.want, code)
			}
		})
	}
}

func TestVerifyGarbage(t *testing.T) {
	p := writeFile(t, t.TempDir(), "junk.mzparquet", "not parquet at all")
	if code, _, _ := run(t, "verify", p); code != engine.ExitInvalid {
		t.Errorf("Expected exit code 2, got %d", code)
	}
}
