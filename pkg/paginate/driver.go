// Package paginate walks an offset-paginated API endpoint: one count query
// up front, then a bounded worker pool fetching pages concurrently.
//
// A failed page is logged and counted, never fatal. The caller gets a
// Result saying how many pages were planned, how many failed and how many
// records came through, and decides whether a partial run is acceptable.
package paginate

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/civicdata/registry-ingest/pkg/logging"
)

const (
	// DefaultPageSize matches what the registry APIs hand out comfortably.
	DefaultPageSize = 50

	// DefaultConcurrency bounds in-flight pages. The shared rate limiter
	// spaces requests out anyway, this just caps queued work.
	DefaultConcurrency = 5
)

// CountFunc returns the total number of records the endpoint will serve for
// the current query. Implementations usually issue the search with take=1
// and skip=0 and read the endpoint's total-count field.
type CountFunc func(ctx context.Context) (int, error)

// PageFunc fetches and processes one page window. It returns how many
// records it handled. Errors are contained to the page.
type PageFunc func(ctx context.Context, skip, take int) (int, error)

// Result summarizes one pagination run.
type Result struct {
	Total        int
	PagesPlanned int
	PagesFailed  int
	Records      int
}

// Partial reports whether any page failed.
func (r Result) Partial() bool {
	return r.PagesFailed > 0
}

// Driver runs count-then-fan-out pagination.
type Driver struct {
	pageSize    int
	concurrency int
	logger      zerolog.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithPageSize sets the page window size.
func WithPageSize(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.pageSize = n
		}
	}
}

// WithConcurrency sets the number of page workers.
func WithConcurrency(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// NewDriver creates a Driver with the given options.
func NewDriver(opts ...Option) *Driver {
	d := &Driver{
		pageSize:    DefaultPageSize,
		concurrency: DefaultConcurrency,
		logger:      logging.NewLogger("paginate"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes one pagination pass for the named source. The count query
// decides the page plan; a total of zero means no page fetches at all.
// Records added upstream between the count and the page fetches are picked
// up by the next run.
func (d *Driver) Run(ctx context.Context, source string, count CountFunc, page PageFunc) (Result, error) {
	total, err := count(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("count for %s: %w", source, err)
	}
	if total <= 0 {
		d.logger.Info().Str("source", source).Msg("Nothing to fetch")
		return Result{}, nil
	}

	pages := (total + d.pageSize - 1) / d.pageSize
	result := Result{Total: total, PagesPlanned: pages}

	d.logger.Info().
		Str("source", source).
		Int("total", total).
		Int("pages", pages).
		Int("page_size", d.pageSize).
		Msg("Starting pagination")

	offsets := make(chan int)
	var mu sync.Mutex
	var wg sync.WaitGroup

	workers := d.concurrency
	if workers > pages {
		workers = pages
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for skip := range offsets {
				n, err := page(ctx, skip, d.pageSize)

				mu.Lock()
				if err != nil {
					result.PagesFailed++
					pagesTotal.WithLabelValues(source, "error").Inc()
					d.logger.Error().
						Err(err).
						Str("source", source).
						Int("skip", skip).
						Int("take", d.pageSize).
						Msg("Page fetch failed")
				} else {
					result.Records += n
					pagesTotal.WithLabelValues(source, "ok").Inc()
					recordsTotal.WithLabelValues(source).Add(float64(n))
				}
				mu.Unlock()
			}
		}()
	}

	for skip := 0; skip < total; skip += d.pageSize {
		select {
		case offsets <- skip:
		case <-ctx.Done():
			close(offsets)
			wg.Wait()
			return result, ctx.Err()
		}
	}
	close(offsets)
	wg.Wait()

	d.logger.Info().
		Str("source", source).
		Int("records", result.Records).
		Int("pages_failed", result.PagesFailed).
		Msg("Pagination finished")

	return result, nil
}
