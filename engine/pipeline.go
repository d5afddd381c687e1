package engine

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/VanDung-dev/MzParquet-Engine/mzml"
)

// streamConcurrent reads and assembles on one goroutine and emits on another.
// Completed spectra pass through a channel of QueueDepth entries, so rows keep
// their source order.
func (d *Driver) streamConcurrent(ctx context.Context, source *sourceReader, em *Emitter, res *Result, logger *slog.Logger) error {
	group, gctx := errgroup.WithContext(ctx)
	spectra := make(chan *mzml.Spectrum, d.opts.QueueDepth)

	group.Go(func() error {
		defer close(spectra)
		return d.stream(gctx, source, func(s *mzml.Spectrum) error {
			select {
			case spectra <- s:
				d.opts.Metrics.UpdateQueueDepth(len(spectra))
				return nil
			case <-gctx.Done():
				return cancelled(gctx.Err())
			}
		}, res, logger)
	})
	group.Go(func() error {
		for s := range spectra {
			if err := d.emit(em, s, res, logger); err != nil {
				return err
			}
		}
		return nil
	})

	err := group.Wait()
	d.opts.Metrics.UpdateQueueDepth(0)
	return err
}

// Job is one file to convert.
type Job struct {
	Src string
	Dst string
}

// JobResult is the outcome of one Job.
type JobResult struct {
	Job
	Result *Result
	Err    error
}

// ExitCode returns the exit code of the job.
func (r JobResult) ExitCode() int {
	return ExitCode(r.Result, r.Err)
}

// ConvertAll converts jobs with at most opts.Jobs conversions in flight. Each
// job gets its own Driver; a failing job does not stop the others. Results are
// returned in job order.
func ConvertAll(ctx context.Context, opts Options, jobs []Job) []JobResult {
	opts = opts.withDefaults()
	results := make([]JobResult, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Jobs)
	for i, job := range jobs {
		g.Go(func() error {
			res, err := NewDriver(opts).ConvertFile(gctx, job.Src, job.Dst)
			results[i] = JobResult{Job: job, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait() // errors captured in JobResult.Err
	return results
}

// ExitCodeAll combines the exit codes of results.
func ExitCodeAll(results []JobResult) int {
	codes := make([]int, len(results))
	for i, r := range results {
		codes[i] = r.ExitCode()
	}
	return CombineExitCodes(codes...)
}
