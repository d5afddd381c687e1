package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VanDung-dev/MzParquet-Engine/arrow"
	"github.com/VanDung-dev/MzParquet-Engine/data"
	"github.com/VanDung-dev/MzParquet-Engine/engine"
	"github.com/VanDung-dev/MzParquet-Engine/internal/mzmltest"
)

// StressTestConfig holds configuration for the stress test.
type StressTestConfig struct {
	Concurrency int
	Spectra     int
	Peaks       int
	Duration    time.Duration
	Layout      string
	Format      string
	Pipelined   bool
	ReportFile  string
}

// StressTestResult holds the results of a stress test.
type StressTestResult struct {
	TotalConversions int64
	Successful       int64
	Failed           int64
	TotalSpectra     int64
	TotalDuration    time.Duration
	AvgLatency       time.Duration
	MinLatency       time.Duration
	MaxLatency       time.Duration
	SpectraPerSec    float64
	MBPerSec         float64
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func main() {
	config := parseFlags()

	fmt.Println("=== MzParquet Converter Stress Test ===")
	fmt.Printf("Document:    %d spectra x %d peaks\n", config.Spectra, config.Peaks)
	fmt.Printf("Concurrency: %d workers\n", config.Concurrency)
	fmt.Printf("Duration:    %v\n", config.Duration)
	fmt.Printf("Output:      %s / %s, pipelined=%v\n", config.Layout, config.Format, config.Pipelined)
	fmt.Println()

	doc := syntheticDocument(config.Spectra, config.Peaks)
	result := runStressTest(config, doc)

	printResults(result)

	if config.ReportFile != "" {
		saveReport(config, result)
	}
}

func parseFlags() StressTestConfig {
	config := StressTestConfig{}

	flag.IntVar(&config.Concurrency, "c", 4, "Number of concurrent workers")
	flag.IntVar(&config.Spectra, "n", 2000, "Spectra per synthetic document")
	flag.IntVar(&config.Peaks, "p", 500, "Peaks per spectrum")
	flag.DurationVar(&config.Duration, "d", 30*time.Second, "Duration of test")
	flag.StringVar(&config.Layout, "layout", string(data.LayoutWide), "Row layout: wide or long")
	flag.StringVar(&config.Format, "format", string(arrow.FormatParquet), "Output format: parquet or ipc")
	flag.BoolVar(&config.Pipelined, "pipelined", false, "Read and write on separate goroutines")
	flag.StringVar(&config.ReportFile, "o", "", "Output report file (JSON)")

	flag.Parse()

	return config
}

// syntheticDocument renders an mzML document with zlib-compressed arrays,
// every tenth scan an MS2 scan of the preceding MS1 scan.
func syntheticDocument(spectra, peaks int) string {
	scans := make([]mzmltest.Scan, spectra)
	lastMS1 := ""
	for i := range scans {
		mz := make([]float64, peaks)
		intensity := make([]float64, peaks)
		for j := range mz {
			mz[j] = 150 + float64(j)*1.5
			intensity[j] = float64((i*31 + j*17) % 10007)
		}
		s := mzmltest.Scan{
			ID:        fmt.Sprintf("scan=%d", i+1),
			MsLevel:   1,
			Centroid:  true,
			RT:        float64(i) * 0.005,
			IIT:       25,
			TIC:       float64(peaks),
			Zlib:      true,
			Mz:        mz,
			Intensity: intensity,
		}
		if i%10 == 9 && lastMS1 != "" && peaks > 0 {
			s.MsLevel = 2
			s.Precursors = []mzmltest.Precursor{{SpectrumRef: lastMS1, Mz: mz[peaks/2], Charge: 2}}
		} else {
			lastMS1 = s.ID
		}
		scans[i] = s
	}
	return mzmltest.Document(scans...)
}

func runStressTest(config StressTestConfig, doc string) StressTestResult {
	var (
		totalConv    int64
		successConv  int64
		failedConv   int64
		totalSpectra int64
		totalLatency int64
		minLatency   int64 = 1<<63 - 1
		maxLatency   int64
		wg           sync.WaitGroup
	)

	ctx, cancel := context.WithTimeout(context.Background(), config.Duration)
	defer cancel()

	startTime := time.Now()

	// Start workers
	for i := 0; i < config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				start := time.Now()
				converted, err := convertOnce(ctx, config, doc)
				atomic.AddInt64(&totalConv, 1)
				if err != nil {
					if ctx.Err() == nil {
						atomic.AddInt64(&failedConv, 1)
						log.Printf("conversion failed: %v", err)
					}
					continue
				}
				atomic.AddInt64(&successConv, 1)
				atomic.AddInt64(&totalSpectra, converted)

				lat := int64(time.Since(start))
				atomic.AddInt64(&totalLatency, lat)
				for {
					old := atomic.LoadInt64(&minLatency)
					if lat >= old || atomic.CompareAndSwapInt64(&minLatency, old, lat) {
						break
					}
				}
				for {
					old := atomic.LoadInt64(&maxLatency)
					if lat <= old || atomic.CompareAndSwapInt64(&maxLatency, old, lat) {
						break
					}
				}
			}
		}()
	}
	wg.Wait()

	duration := time.Since(startTime)
	success := atomic.LoadInt64(&successConv)

	var avgLatency time.Duration
	if success > 0 {
		avgLatency = time.Duration(atomic.LoadInt64(&totalLatency) / success)
	}
	minLat := atomic.LoadInt64(&minLatency)
	if success == 0 {
		minLat = 0
	}

	return StressTestResult{
		TotalConversions: atomic.LoadInt64(&totalConv),
		Successful:       success,
		Failed:           atomic.LoadInt64(&failedConv),
		TotalSpectra:     atomic.LoadInt64(&totalSpectra),
		TotalDuration:    duration,
		AvgLatency:       avgLatency,
		MinLatency:       time.Duration(minLat),
		MaxLatency:       time.Duration(atomic.LoadInt64(&maxLatency)),
		SpectraPerSec:    float64(atomic.LoadInt64(&totalSpectra)) / duration.Seconds(),
		MBPerSec:         float64(success) * float64(len(doc)) / (1 << 20) / duration.Seconds(),
	}
}

// convertOnce converts doc into a discarded sink and returns the spectra written.
func convertOnce(ctx context.Context, config StressTestConfig, doc string) (int64, error) {
	opts := engine.DefaultOptions()
	opts.Layout = data.Layout(config.Layout)
	opts.Format = arrow.Format(config.Format)
	opts.Concurrent = config.Pipelined
	opts.Logger = discardLogger

	d := engine.NewDriver(opts)
	sink, err := d.NewSink(io.Discard)
	if err != nil {
		return 0, err
	}
	res, err := d.Convert(ctx, strings.NewReader(doc), sink)
	if err != nil {
		return 0, err
	}
	return res.Converted, nil
}

func printResults(result StressTestResult) {
	fmt.Println("=== Results ===")
	fmt.Printf("Duration:        %v\n", result.TotalDuration.Round(time.Millisecond))
	fmt.Printf("Conversions:     %d\n", result.TotalConversions)
	if result.TotalConversions > 0 {
		fmt.Printf("Successful:      %d (%.2f%%)\n", result.Successful, float64(result.Successful)/float64(result.TotalConversions)*100)
	}
	fmt.Printf("Failed:          %d\n", result.Failed)
	fmt.Printf("Spectra:         %d\n", result.TotalSpectra)
	fmt.Printf("Spectra/sec:     %.2f\n", result.SpectraPerSec)
	fmt.Printf("Source MB/sec:   %.2f\n", result.MBPerSec)
	fmt.Printf("Avg Latency:     %v\n", result.AvgLatency.Round(time.Microsecond))
	fmt.Printf("Min Latency:     %v\n", result.MinLatency.Round(time.Microsecond))
	fmt.Printf("Max Latency:     %v\n", result.MaxLatency.Round(time.Microsecond))
}

func saveReport(config StressTestConfig, result StressTestResult) {
	report := map[string]interface{}{
		"config": map[string]interface{}{
			"concurrency": config.Concurrency,
			"spectra":     config.Spectra,
			"peaks":       config.Peaks,
			"layout":      config.Layout,
			"format":      config.Format,
			"pipelined":   config.Pipelined,
			"duration":    config.Duration.String(),
		},
		"results": map[string]interface{}{
			"conversions":     result.TotalConversions,
			"successful":      result.Successful,
			"failed":          result.Failed,
			"spectra":         result.TotalSpectra,
			"spectra_per_sec": result.SpectraPerSec,
			"mb_per_sec":      result.MBPerSec,
			"avg_latency_ms":  float64(result.AvgLatency.Microseconds()) / 1000,
			"min_latency_ms":  float64(result.MinLatency.Microseconds()) / 1000,
			"max_latency_ms":  float64(result.MaxLatency.Microseconds()) / 1000,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	}

	raw, _ := json.MarshalIndent(report, "", "  ")
	if err := os.WriteFile(config.ReportFile, raw, 0644); err != nil {
		log.Printf("Failed to write report: %v", err)
	} else {
		fmt.Printf("Report saved to: %s\n", config.ReportFile)
	}
}
