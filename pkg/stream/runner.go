// Package stream drives a streaming model over a channel of samples,
// scoring each sample before the model learns it.
package stream

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/hed1ad/streamguard/pkg/detectors"
	sgio "github.com/hed1ad/streamguard/pkg/io"
)

var log = logrus.WithField("component", "stream")

// Summary counts what a Run did.
type Summary struct {
	Processed int64
	Rejected  int64
}

// Runner scores then fits every sample it receives and forwards the results
// to a sink.
type Runner struct {
	model   detectors.Model
	sink    sgio.Writer
	metrics *Metrics
	log     logrus.FieldLogger
	now     func() time.Time

	index int64
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics sets the collectors updated on every sample.
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithLogger sets the logger used for rejected samples.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Runner) {
		r.log = l
	}
}

// WithClock sets the time source used to stamp results.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner creates a runner over model. A nil sink discards results.
func NewRunner(model detectors.Model, sink sgio.Writer, opts ...Option) *Runner {
	r := &Runner{
		model: model,
		sink:  sink,
		log:   log,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = NewMetrics(nil)
	}
	return r
}

// Run consumes input until it is closed or ctx is done. Samples with the
// wrong number of features are logged and skipped; any other model or sink
// error stops the run.
func (r *Runner) Run(ctx context.Context, input <-chan []float64) (Summary, error) {
	var summary Summary

	for {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		case sample, ok := <-input:
			if !ok {
				return summary, nil
			}

			index := r.index
			r.index++

			score, err := detectors.FitScorePartial(r.model, sample)
			if errors.Is(err, detectors.ErrDimensionMismatch) {
				summary.Rejected++
				r.metrics.rejected.Inc()
				r.log.WithError(err).WithField("index", index).Warn("rejecting sample")
				continue
			}
			if err != nil {
				return summary, errors.Wrapf(err, "sample %d", index)
			}

			summary.Processed++
			r.metrics.processed.Inc()
			r.metrics.scores.Observe(score)
			if ws, ok := r.model.(detectors.WindowSizer); ok {
				r.metrics.window.Set(float64(ws.Size()))
			}

			if r.sink == nil {
				continue
			}
			result := sgio.Result{
				Index:     index,
				Timestamp: r.now().UnixNano(),
				Score:     score,
				Features:  sample,
			}
			if err := r.sink.Write(result); err != nil {
				return summary, errors.Wrapf(err, "write result %d", index)
			}
		}
	}
}

// RunReader streams every sample of src through the runner.
func (r *Runner) RunReader(ctx context.Context, src sgio.Reader) (Summary, error) {
	input, err := src.Stream(ctx)
	if err != nil {
		return Summary{}, errors.Wrap(err, "open stream")
	}
	return r.Run(ctx, input)
}
