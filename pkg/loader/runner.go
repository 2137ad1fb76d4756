package loader

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/civicdata/registry-ingest/pkg/logging"
)

// DailyWindowDays is how far back the daily run reaches. Two days of overlap
// absorbs late amendments and answers landing on earlier sitting days;
// reruns are safe because indexing is idempotent.
const DailyWindowDays = 2

// Runner executes a set of loaders in sequence. One loader failing does not
// stop the others.
type Runner struct {
	loaders []Loader
	logger  zerolog.Logger
}

// NewRunner creates a Runner over the given loaders.
func NewRunner(loaders ...Loader) *Runner {
	return &Runner{
		loaders: loaders,
		logger:  logging.NewLogger("loader.runner"),
	}
}

// Run loads every source for the given window and returns the per-source
// reports. The error is the context's, if it was cancelled mid-run.
func (r *Runner) Run(ctx context.Context, window DateRange) ([]RunReport, error) {
	reports := make([]RunReport, 0, len(r.loaders))
	for _, l := range r.loaders {
		if err := ctx.Err(); err != nil {
			return reports, err
		}

		start := time.Now()
		report, err := l.Load(ctx, window)
		runDuration.WithLabelValues(l.Name()).Observe(time.Since(start).Seconds())

		switch {
		case err != nil:
			runsTotal.WithLabelValues(l.Name(), "error").Inc()
			r.logger.Error().Err(err).Str("source", l.Name()).Msg("Source load failed")
		case report.Partial():
			runsTotal.WithLabelValues(l.Name(), "partial").Inc()
		default:
			runsTotal.WithLabelValues(l.Name(), "ok").Inc()
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// RunDaily runs all sources over the rolling daily window ending at asOf.
func (r *Runner) RunDaily(ctx context.Context, asOf time.Time) ([]RunReport, error) {
	return r.Run(ctx, LastNDays(asOf, DailyWindowDays))
}
