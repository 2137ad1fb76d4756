package loader

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"

	"github.com/civicdata/registry-ingest/pkg/fetch"
	"github.com/civicdata/registry-ingest/pkg/logging"
	"github.com/civicdata/registry-ingest/pkg/paginate"
	"github.com/civicdata/registry-ingest/pkg/records"
)

// QuestionsConfig configures the written questions loader.
type QuestionsConfig struct {
	// BaseURL of the questions API, without trailing slash.
	BaseURL string

	// Collection the questions land in.
	Collection string

	PageSize    int
	Concurrency int

	// EnrichWorkers bounds concurrent full-text fetches for questions the
	// list endpoint truncated.
	EnrichWorkers int
}

// QuestionsLoader ingests written questions. The window is queried twice,
// once by tabled date and once by answered date, so a question updated with
// its answer is re-indexed. Questions seen in the first pass are skipped in
// the second.
type QuestionsLoader struct {
	cfg     QuestionsConfig
	fetcher Fetcher
	indexer Indexer
	logger  zerolog.Logger

	mu   sync.Mutex
	seen map[int]bool
}

// NewQuestionsLoader creates the loader.
func NewQuestionsLoader(cfg QuestionsConfig, fetcher Fetcher, indexer Indexer) *QuestionsLoader {
	if cfg.Collection == "" {
		cfg.Collection = "questions"
	}
	if cfg.EnrichWorkers <= 0 {
		cfg.EnrichWorkers = 5
	}
	return &QuestionsLoader{
		cfg:     cfg,
		fetcher: fetcher,
		indexer: indexer,
		logger:  logging.NewLogger("loader.questions"),
	}
}

// Name implements Loader.
func (l *QuestionsLoader) Name() string { return "written-questions" }

// Load implements Loader.
func (l *QuestionsLoader) Load(ctx context.Context, window DateRange) (RunReport, error) {
	start := time.Now()
	sink := &reportSink{report: RunReport{Source: l.Name()}}

	l.mu.Lock()
	l.seen = make(map[int]bool)
	l.mu.Unlock()

	pool, err := ants.NewPool(l.cfg.EnrichWorkers)
	if err != nil {
		return sink.report, fmt.Errorf("enrichment pool: %w", err)
	}
	defer pool.Release()

	driver := paginate.NewDriver(
		paginate.WithPageSize(l.cfg.PageSize),
		paginate.WithConcurrency(l.cfg.Concurrency),
	)

	passes := []struct {
		name   string
		params url.Values
	}{
		{"tabled", url.Values{
			"tabledWhenFrom": {window.FromDate()},
			"tabledWhenTo":   {window.ToDate()},
		}},
		{"answered", url.Values{
			"answeredWhenFrom": {window.FromDate()},
			"answeredWhenTo":   {window.ToDate()},
		}},
	}

	for _, pass := range passes {
		result, err := driver.Run(ctx,
			"questions/"+pass.name,
			l.countFunc(pass.params),
			l.pageFunc(pass.params, pool, sink),
		)
		if err != nil {
			if ctx.Err() != nil {
				return sink.report, ctx.Err()
			}
			l.logger.Error().Err(err).Str("pass", pass.name).Msg("Question search failed")
			sink.mu.Lock()
			sink.report.PagesPlanned++
			sink.report.PagesFailed++
			sink.mu.Unlock()
			continue
		}

		sink.mu.Lock()
		sink.report.Total += result.Total
		sink.report.PagesPlanned += result.PagesPlanned
		sink.report.PagesFailed += result.PagesFailed
		sink.mu.Unlock()
	}

	sink.report.Duration = time.Since(start)
	if sink.report.failed() {
		return sink.report, fmt.Errorf("%s: %w", l.Name(), ErrAllPagesFailed)
	}
	l.logger.Info().
		Str("from", window.FromDate()).
		Str("to", window.ToDate()).
		Int("indexed", sink.report.Indexed).
		Int("duplicates", sink.report.Duplicates).
		Dur("duration", sink.report.Duration).
		Msg("Written questions load finished")
	return sink.report, nil
}

func (l *QuestionsLoader) listRequest(params url.Values, skip, take int) fetch.Request {
	query := url.Values{
		"expandMember": {"true"},
		"take":         {strconv.Itoa(take)},
		"skip":         {strconv.Itoa(skip)},
	}
	for k, vs := range params {
		query[k] = vs
	}
	return fetch.Request{
		URL:   l.cfg.BaseURL + "/api/writtenquestions/questions",
		Query: query,
	}
}

func (l *QuestionsLoader) countFunc(params url.Values) paginate.CountFunc {
	return func(ctx context.Context) (int, error) {
		var page records.QuestionsPage
		if err := l.fetcher.GetJSON(ctx, l.listRequest(params, 0, 1), &page); err != nil {
			return 0, err
		}
		return page.TotalResults, nil
	}
}

func (l *QuestionsLoader) pageFunc(params url.Values, pool *ants.Pool, sink *reportSink) paginate.PageFunc {
	return func(ctx context.Context, skip, take int) (int, error) {
		var page records.QuestionsPage
		if err := l.fetcher.GetJSON(ctx, l.listRequest(params, skip, take), &page); err != nil {
			return 0, err
		}

		fresh := make([]*records.WrittenQuestion, 0, len(page.Results))
		for _, q := range page.Questions() {
			q := q
			l.mu.Lock()
			dup := l.seen[q.ID]
			if !dup {
				l.seen[q.ID] = true
			}
			l.mu.Unlock()
			if dup {
				sink.mu.Lock()
				sink.report.Duplicates++
				sink.mu.Unlock()
				continue
			}
			fresh = append(fresh, &q)
		}

		l.enrichTruncated(ctx, pool, fresh)

		batch := make([]records.Document, 0, len(fresh))
		for _, q := range fresh {
			batch = append(batch, q)
		}
		rep, err := l.indexer.Index(ctx, l.cfg.Collection, batch)
		sink.add(rep)
		if err != nil {
			return len(page.Results), err
		}
		return len(page.Results), nil
	}
}

// enrichTruncated replaces clipped question or answer text with the full
// version from the single-question endpoint. Enrichment failures keep the
// truncated text; a clipped document still beats a missing one.
func (l *QuestionsLoader) enrichTruncated(ctx context.Context, pool *ants.Pool, questions []*records.WrittenQuestion) {
	var wg sync.WaitGroup
	for _, q := range questions {
		if !q.IsTruncated() {
			continue
		}
		q := q
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			var detail records.QuestionDetail
			err := l.fetcher.GetJSON(ctx, fetch.Request{
				URL: fmt.Sprintf("%s/api/writtenquestions/questions/%d", l.cfg.BaseURL, q.ID),
			}, &detail)
			if err != nil {
				l.logger.Warn().Err(err).Int("id", q.ID).Msg("Full text fetch failed, keeping truncated text")
				return
			}
			// The detail endpoint is fetched without member expansion, so
			// only the text fields are taken from it. Everything else,
			// expanded members included, stays from the list row.
			if detail.Value.QuestionText != "" {
				q.QuestionText = detail.Value.QuestionText
			}
			if detail.Value.AnswerText != "" {
				q.AnswerText = detail.Value.AnswerText
			}
		}); err != nil {
			wg.Done()
			l.logger.Warn().Err(err).Int("id", q.ID).Msg("Enrichment pool rejected task")
		}
	}
	wg.Wait()
}
