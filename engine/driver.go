package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/VanDung-dev/MzParquet-Engine/api"
	"github.com/VanDung-dev/MzParquet-Engine/arrow"
	"github.com/VanDung-dev/MzParquet-Engine/data"
	"github.com/VanDung-dev/MzParquet-Engine/mzml"
	"github.com/VanDung-dev/MzParquet-Engine/network"
	"github.com/VanDung-dev/MzParquet-Engine/storage"
)

// State is the lifecycle state of a Driver.
type State int

const (
	StateIdle State = iota
	StateSourceOpen
	StateStreaming
	StateFinalizing
	StateClosed
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSourceOpen:
		return "source_open"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Options configures a Driver.
type Options struct {
	Batch BatchOptions

	// Strict aborts on the first unusable spectrum instead of skipping it.
	Strict bool
	// KeepPartial finalizes a failed output under its partial name instead of
	// removing it.
	KeepPartial bool
	// Concurrent reads and emits on separate goroutines.
	Concurrent bool
	// QueueDepth bounds the completed spectra buffered between the goroutines.
	QueueDepth int
	// Jobs bounds the number of files ConvertAll converts at once.
	Jobs int

	Layout           data.Layout
	Format           arrow.Format
	CompressionLevel int
	// DeriveTIC sums the intensities of spectra without a total ion current.
	DeriveTIC bool
	// ProgressInterval is the number of spectra between progress events.
	ProgressInterval int

	Logger   *slog.Logger
	Metrics  *api.Metrics
	Notifier network.Notifier
	Store    *storage.Store
}

// DefaultOptions returns the default driver options.
func DefaultOptions() Options {
	return Options{
		Batch:            DefaultBatchOptions(),
		QueueDepth:       256,
		Jobs:             1,
		Layout:           data.LayoutWide,
		Format:           arrow.FormatParquet,
		CompressionLevel: arrow.DefaultCompressionLevel,
		ProgressInterval: 10000,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	o.Batch = o.Batch.withDefaults()
	if o.QueueDepth <= 0 {
		o.QueueDepth = d.QueueDepth
	}
	if o.Jobs <= 0 {
		o.Jobs = d.Jobs
	}
	if o.Layout == "" {
		o.Layout = d.Layout
	}
	if o.Format == "" {
		o.Format = d.Format
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = d.ProgressInterval
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Notifier == nil {
		o.Notifier = network.NopNotifier{}
	}
	return o
}

// Result summarizes one conversion.
type Result struct {
	Source      string
	Dest        string
	Converted   int64
	Skipped     int64
	SkipReasons map[string]int64
	State       State
	RowGroups   int
	Duration    time.Duration
}

// Driver converts one mzML source into one destination. A Driver runs once.
type Driver struct {
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	state State
	used  bool
}

// NewDriver creates a Driver.
func NewDriver(opts Options) *Driver {
	opts = opts.withDefaults()
	return &Driver{
		opts:   opts,
		logger: opts.Logger,
	}
}

// State returns the current lifecycle state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// recordSkip counts a skipped spectrum. It may run on the reading goroutine
// while progress events are built on the emitting one.
func (d *Driver) recordSkip(res *Result, err error) string {
	reason := mzml.SkipReason(err)
	d.mu.Lock()
	res.Skipped++
	res.SkipReasons[reason]++
	d.mu.Unlock()
	d.opts.Metrics.RecordSkip(reason)
	return reason
}

func (d *Driver) begin() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.used {
		return ErrDriverUsed
	}
	d.used = true
	d.state = StateSourceOpen
	return nil
}

// NewSink creates a sink of the configured format and layout on w.
func (d *Driver) NewSink(w io.Writer) (arrow.Sink, error) {
	if !d.opts.Layout.Valid() {
		return nil, fmt.Errorf("%w %q", data.ErrUnknownLayout, d.opts.Layout)
	}
	schema := data.SchemaFor(d.opts.Layout)
	switch d.opts.Format {
	case arrow.FormatParquet:
		return arrow.NewParquetSink(w, schema, arrow.ParquetOptions{
			CompressionLevel: d.opts.CompressionLevel,
			SplitColumns:     data.ByteStreamSplitColumns(d.opts.Layout),
			CreatedBy:        "mzparquet",
		})
	case arrow.FormatIPC:
		return arrow.NewIPCSink(w, schema), nil
	}
	return nil, ErrBadFormat
}

// Convert streams src into sink and closes sink. The caller owns src.
func (d *Driver) Convert(ctx context.Context, src io.Reader, sink arrow.Sink) (*Result, error) {
	if err := d.begin(); err != nil {
		return nil, err
	}
	res := d.newResult("", "")
	err := d.run(ctx, src, sink, res, d.logger)
	return res, err
}

// ConvertFile converts the file or gs:// object at srcPath into dstPath. The
// output is written under a partial name and renamed once it is complete.
func (d *Driver) ConvertFile(ctx context.Context, srcPath, dstPath string) (*Result, error) {
	if err := d.begin(); err != nil {
		return nil, err
	}
	res := d.newResult(srcPath, dstPath)
	logger := d.logger.With("source", srcPath, "dest", dstPath)

	store := d.opts.Store
	if store == nil {
		store = storage.New()
		defer store.Close()
	}

	in, err := store.Open(ctx, srcPath)
	if err != nil {
		return res, d.failEarly(res, &IOError{Op: "open", Path: srcPath, Err: err}, logger)
	}
	defer in.Close()

	target, err := store.Create(ctx, dstPath)
	if err != nil {
		return res, d.failEarly(res, &IOError{Op: "create", Path: dstPath, Err: err}, logger)
	}
	sink, err := d.NewSink(target)
	if err != nil {
		_ = target.Discard()
		return res, d.failEarly(res, err, logger)
	}

	if err := d.run(ctx, in, sink, res, logger); err != nil {
		if d.opts.KeepPartial {
			if kerr := target.Keep(); kerr != nil {
				logger.Warn("failed to keep partial output", "error", kerr)
			} else {
				logger.Info("partial output kept", "path", storage.PartialPath(dstPath))
			}
		} else if derr := target.Discard(); derr != nil {
			logger.Warn("failed to remove partial output", "error", derr)
		}
		return res, err
	}

	if err := target.Commit(); err != nil {
		res.State = StateFailed
		d.setState(StateFailed)
		err = &IOError{Op: "commit", Path: dstPath, Err: err}
		logger.Error("conversion failed", "error", err)
		d.notify(network.EventFailed, res, err)
		return res, err
	}
	return res, nil
}

func (d *Driver) newResult(src, dst string) *Result {
	return &Result{
		Source:      src,
		Dest:        dst,
		SkipReasons: make(map[string]int64),
		State:       StateSourceOpen,
	}
}

func (d *Driver) failEarly(res *Result, err error, logger *slog.Logger) error {
	res.State = StateFailed
	d.setState(StateFailed)
	logger.Error("conversion failed", "state", StateSourceOpen.String(), "error", err)
	d.notify(network.EventFailed, res, err)
	return err
}

// run drives the stream from SourceOpen to a final state and closes sink.
func (d *Driver) run(ctx context.Context, src io.Reader, sink arrow.Sink, res *Result, logger *slog.Logger) error {
	start := time.Now()
	d.opts.Metrics.ConversionStarted()
	defer func() {
		res.Duration = time.Since(start)
		d.opts.Metrics.ConversionFinished(res.State.String(), res.Duration)
	}()

	builder, err := data.NewRowBuilder(d.opts.Layout, nil)
	if err != nil {
		_ = sink.Close()
		return d.finish(res, StateFailed, err, logger)
	}
	em := NewEmitter(builder, sink, d.opts.Batch)
	defer em.Close()
	em.onFlush = func(rows, bytes int) {
		d.opts.Metrics.RecordBatch(rows, bytes)
		logger.Debug("batch flushed", "rows", rows, "bytes", bytes, "row_groups", sink.RowGroups())
	}

	// Streaming sinks fix their metadata at the first batch.
	sink.SetMetadata(arrow.MetaVersion, arrow.FormatVersion)
	if res.Source != "" {
		sink.SetMetadata(arrow.MetaSource, res.Source)
	}

	d.setState(StateStreaming)
	res.State = StateStreaming
	logger.Info("conversion started", "layout", string(d.opts.Layout), "format", string(d.opts.Format))
	d.notify(network.EventStarted, res, nil)

	source := &sourceReader{r: src, metrics: d.opts.Metrics}
	if d.opts.Concurrent {
		err = d.streamConcurrent(ctx, source, em, res, logger)
	} else {
		err = d.stream(ctx, source, func(s *mzml.Spectrum) error {
			return d.emit(em, s, res, logger)
		}, res, logger)
	}
	if err != nil {
		final := StateFailed
		if ctx.Err() != nil && errors.Is(err, ErrCancelled) {
			final = StateCancelled
		}
		d.abort(em, sink, res, final, logger)
		return d.finish(res, final, err, logger)
	}

	d.setState(StateFinalizing)
	res.State = StateFinalizing
	if err := em.Flush(); err != nil {
		d.abort(em, sink, res, StateFailed, logger)
		return d.finish(res, StateFailed, err, logger)
	}
	d.setConverted(res, em.Written())
	d.setMetadata(sink, res, true)
	if err := sink.Close(); err != nil {
		res.RowGroups = sink.RowGroups()
		return d.finish(res, StateFailed, &IOError{Op: "close", Path: res.Dest, Err: err}, logger)
	}
	res.RowGroups = sink.RowGroups()
	return d.finish(res, StateClosed, nil, logger)
}

// stream reads events, assembles spectra and passes each completed spectrum to
// emit. Unusable spectra are skipped unless the driver is strict.
func (d *Driver) stream(ctx context.Context, source *sourceReader, emit func(*mzml.Spectrum) error, res *Result, logger *slog.Logger) error {
	var asmOpts []mzml.AssemblerOption
	if d.opts.DeriveTIC {
		asmOpts = append(asmOpts, mzml.WithDerivedTIC())
	}
	reader := mzml.NewReader(source)
	asm := mzml.NewAssembler(asmOpts...)

	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}
	for {
		ev, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if source.err != nil {
				return &IOError{Op: "read", Path: res.Source, Err: source.err}
			}
			return err
		}

		if ev.Kind == mzml.EventSpectrumStart {
			if err := ctx.Err(); err != nil {
				return cancelled(err)
			}
		}

		s, err := asm.Handle(ev)
		if err != nil {
			if d.opts.Strict || !mzml.IsRecoverable(err) {
				return err
			}
			reason := d.recordSkip(res, err)
			logger.Warn("spectrum skipped", "reason", reason, "error", err)
			continue
		}
		if s != nil {
			if err := emit(s); err != nil {
				return err
			}
		}
	}
}

func (d *Driver) emit(em *Emitter, s *mzml.Spectrum, res *Result, logger *slog.Logger) error {
	if err := em.Emit(s); err != nil {
		return err
	}
	d.opts.Metrics.RecordSpectrum()
	if n := em.Emitted(); n%int64(d.opts.ProgressInterval) == 0 {
		skipped := d.setConverted(res, n)
		logger.Debug("conversion progress", "converted", n, "skipped", skipped)
		d.notify(network.EventProgress, res, nil)
	}
	return nil
}

// setConverted stores the converted count and returns the skip count, which
// the reading goroutine may be updating.
func (d *Driver) setConverted(res *Result, n int64) (skipped int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	res.Converted = n
	return res.Skipped
}

// abort finalizes sink after a failure. A cancelled conversion, or any failure
// with KeepPartial, flushes the buffered rows first. The converted count
// written to the sink is what actually reached it.
func (d *Driver) abort(em *Emitter, sink arrow.Sink, res *Result, final State, logger *slog.Logger) {
	if d.opts.KeepPartial || final == StateCancelled {
		if err := em.Flush(); err != nil {
			logger.Warn("failed to flush partial output", "error", err)
		}
	}
	d.setConverted(res, em.Written())
	d.setMetadata(sink, res, false)
	if err := sink.Close(); err != nil {
		logger.Debug("failed to close sink", "error", err)
	}
	res.RowGroups = sink.RowGroups()
}

func (d *Driver) setMetadata(sink arrow.Sink, res *Result, complete bool) {
	sink.SetMetadata(arrow.MetaVersion, arrow.FormatVersion)
	if res.Source != "" {
		sink.SetMetadata(arrow.MetaSource, res.Source)
	}
	sink.SetMetadata(arrow.MetaConverted, strconv.FormatInt(res.Converted, 10))
	sink.SetMetadata(arrow.MetaSkipped, strconv.FormatInt(res.Skipped, 10))
	sink.SetMetadata(arrow.MetaComplete, strconv.FormatBool(complete))
}

func (d *Driver) finish(res *Result, state State, err error, logger *slog.Logger) error {
	res.State = state
	d.setState(state)
	switch state {
	case StateClosed:
		logger.Info("conversion finished",
			"converted", res.Converted,
			"skipped", res.Skipped,
			"row_groups", res.RowGroups,
		)
		d.notify(network.EventFinished, res, nil)
	case StateCancelled:
		logger.Warn("conversion cancelled", "converted", res.Converted)
		d.notify(network.EventFailed, res, err)
	default:
		logger.Error("conversion failed", "converted", res.Converted, "error", err)
		d.notify(network.EventFailed, res, err)
	}
	return err
}

func (d *Driver) notify(typ string, res *Result, err error) {
	d.mu.Lock()
	ev := network.Event{
		Type:      typ,
		Source:    res.Source,
		Dest:      res.Dest,
		Converted: res.Converted,
		Skipped:   res.Skipped,
		RowGroups: res.RowGroups,
		State:     res.State.String(),
		Timestamp: time.Now(),
	}
	d.mu.Unlock()
	if err != nil {
		ev.Error = err.Error()
	}
	if nerr := d.opts.Notifier.Notify(ev); nerr != nil {
		d.logger.Debug("progress event dropped", "type", typ, "error", nerr)
	}
}

func cancelled(err error) error {
	return errors.Join(ErrCancelled, err)
}

// sourceReader counts bytes read and remembers the first read failure so it
// can be told apart from malformed markup.
type sourceReader struct {
	r       io.Reader
	n       int64
	err     error
	metrics *api.Metrics
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.n += int64(n)
	s.metrics.AddBytesRead(n)
	if err != nil && err != io.EOF && s.err == nil {
		s.err = err
	}
	return n, err
}
