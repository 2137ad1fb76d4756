package loader

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/civicdata/registry-ingest/pkg/fetch"
	"github.com/civicdata/registry-ingest/pkg/logging"
	"github.com/civicdata/registry-ingest/pkg/paginate"
	"github.com/civicdata/registry-ingest/pkg/records"
)

// contributionTypes are the four Hansard search endpoints, one per kind of
// contribution.
var contributionTypes = []string{"Spoken", "Written", "Corrections", "Petitions"}

// HansardConfig configures the debate contributions loader.
type HansardConfig struct {
	// BaseURL of the Hansard API, without trailing slash.
	BaseURL string

	// Collection the contributions land in.
	Collection string

	// Houses to ingest. Defaults to both chambers.
	Houses []string

	PageSize    int
	Concurrency int
}

// HansardLoader ingests debate contributions for a date window, attaching
// each contribution's debate ancestor chain before indexing.
type HansardLoader struct {
	cfg      HansardConfig
	fetcher  Fetcher
	indexer  Indexer
	resolver AncestorResolver
	logger   zerolog.Logger
}

// NewHansardLoader creates the loader.
func NewHansardLoader(cfg HansardConfig, fetcher Fetcher, indexer Indexer, resolver AncestorResolver) *HansardLoader {
	if cfg.Collection == "" {
		cfg.Collection = "contributions"
	}
	if len(cfg.Houses) == 0 {
		cfg.Houses = []string{"Commons", "Lords"}
	}
	return &HansardLoader{
		cfg:      cfg,
		fetcher:  fetcher,
		indexer:  indexer,
		resolver: resolver,
		logger:   logging.NewLogger("loader.hansard"),
	}
}

// Name implements Loader.
func (l *HansardLoader) Name() string { return "hansard" }

// Load implements Loader. Each house and contribution type is one paginated
// search; the searches run concurrently and a failed combination degrades
// the run instead of aborting it.
func (l *HansardLoader) Load(ctx context.Context, window DateRange) (RunReport, error) {
	start := time.Now()
	sink := &reportSink{report: RunReport{Source: l.Name()}}

	driver := paginate.NewDriver(
		paginate.WithPageSize(l.cfg.PageSize),
		paginate.WithConcurrency(l.cfg.Concurrency),
	)

	var wg sync.WaitGroup
	for _, house := range l.cfg.Houses {
		for _, ctype := range contributionTypes {
			house, ctype := house, ctype
			wg.Add(1)
			go func() {
				defer wg.Done()
				result, err := driver.Run(ctx,
					fmt.Sprintf("hansard/%s/%s", house, ctype),
					l.countFunc(house, ctype, window),
					l.pageFunc(house, ctype, window, sink),
				)

				sink.mu.Lock()
				defer sink.mu.Unlock()
				if err != nil {
					if ctx.Err() == nil {
						l.logger.Error().
							Err(err).
							Str("house", house).
							Str("type", ctype).
							Msg("Contribution search failed")
					}
					// A failed count leaves the whole combination unfetched.
					sink.report.PagesPlanned++
					sink.report.PagesFailed++
					return
				}
				sink.report.Total += result.Total
				sink.report.PagesPlanned += result.PagesPlanned
				sink.report.PagesFailed += result.PagesFailed
			}()
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return sink.report, err
	}
	sink.report.Duration = time.Since(start)
	if sink.report.failed() {
		return sink.report, fmt.Errorf("%s: %w", l.Name(), ErrAllPagesFailed)
	}
	l.logger.Info().
		Str("from", window.FromDate()).
		Str("to", window.ToDate()).
		Int("indexed", sink.report.Indexed).
		Int("pages_failed", sink.report.PagesFailed).
		Dur("duration", sink.report.Duration).
		Msg("Hansard load finished")
	return sink.report, nil
}

func (l *HansardLoader) searchRequest(house, ctype string, window DateRange, skip, take int) fetch.Request {
	return fetch.Request{
		URL: fmt.Sprintf("%s/search/contributions/%s.json", l.cfg.BaseURL, ctype),
		Query: url.Values{
			"house":     {house},
			"startDate": {window.FromDate()},
			"endDate":   {window.ToDate()},
			"orderBy":   {"SittingDateAsc"},
			"take":      {strconv.Itoa(take)},
			"skip":      {strconv.Itoa(skip)},
		},
	}
}

func (l *HansardLoader) countFunc(house, ctype string, window DateRange) paginate.CountFunc {
	return func(ctx context.Context) (int, error) {
		var page records.ContributionsPage
		if err := l.fetcher.GetJSON(ctx, l.searchRequest(house, ctype, window, 0, 1), &page); err != nil {
			return 0, err
		}
		return page.TotalResultCount, nil
	}
}

func (l *HansardLoader) pageFunc(house, ctype string, window DateRange, sink *reportSink) paginate.PageFunc {
	return func(ctx context.Context, skip, take int) (int, error) {
		var page records.ContributionsPage
		if err := l.fetcher.GetJSON(ctx, l.searchRequest(house, ctype, window, skip, take), &page); err != nil {
			return 0, err
		}

		batch := make([]records.Document, 0, len(page.Results))
		for i := range page.Results {
			c := &page.Results[i]
			// Procedural rows come back without text; they carry nothing
			// worth an ancestor lookup or an index slot.
			if c.ContributionTextFull == "" {
				continue
			}
			c.DebateParents = l.resolver.Ancestors(ctx,
				c.SittingDate.DateString(), c.House, c.DebateSectionExtID)
			batch = append(batch, c)
		}

		rep, err := l.indexer.Index(ctx, l.cfg.Collection, batch)
		sink.add(rep)
		if err != nil {
			return len(page.Results), err
		}
		return len(page.Results), nil
	}
}
