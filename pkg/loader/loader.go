// Package loader orchestrates the ingestion sources: each loader drives the
// pagination of one upstream API, enriches its records and hands them to the
// indexer. Loaders share the fetch client, so the upstream rate limit holds
// across all of them.
package loader

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/civicdata/registry-ingest/pkg/fetch"
	"github.com/civicdata/registry-ingest/pkg/index"
	"github.com/civicdata/registry-ingest/pkg/records"
)

// Fetcher is the slice of the fetch client the loaders use.
type Fetcher interface {
	GetJSON(ctx context.Context, req fetch.Request, v any) error
}

// Indexer writes record batches to the search store.
type Indexer interface {
	Index(ctx context.Context, collection string, batch []records.Document) (index.Report, error)
}

// AncestorResolver resolves debate section ancestor chains.
type AncestorResolver interface {
	Ancestors(ctx context.Context, date, chamber, leafExternalID string) []records.Node
}

// DateRange is an inclusive ingestion window.
type DateRange struct {
	From time.Time
	To   time.Time
}

// FromDate formats the window start the way the upstream APIs expect.
func (r DateRange) FromDate() string { return r.From.Format("2006-01-02") }

// ToDate formats the window end.
func (r DateRange) ToDate() string { return r.To.Format("2006-01-02") }

// LastNDays returns the window covering today and the n days before it.
func LastNDays(asOf time.Time, n int) DateRange {
	return DateRange{From: asOf.AddDate(0, 0, -n), To: asOf}
}

// ErrAllPagesFailed marks a run where every planned page failed. A partially
// degraded run is tolerated; a fully failed one is not.
var ErrAllPagesFailed = errors.New("all pages failed")

// RunReport summarizes one loader run.
type RunReport struct {
	Source       string
	Total        int
	PagesPlanned int
	PagesFailed  int
	Indexed      int
	Duplicates   int
	Invalid      int
	Duration     time.Duration
}

// Partial reports whether anything went missing during the run.
func (r RunReport) Partial() bool {
	return r.PagesFailed > 0 || r.Invalid > 0
}

// failed reports whether the run produced nothing at all despite having
// work planned.
func (r RunReport) failed() bool {
	return r.PagesPlanned > 0 && r.PagesFailed >= r.PagesPlanned
}

// Loader is one ingestion source.
type Loader interface {
	Name() string
	Load(ctx context.Context, window DateRange) (RunReport, error)
}

// reportSink accumulates index reports from concurrent page workers.
type reportSink struct {
	mu     sync.Mutex
	report RunReport
}

func (s *reportSink) add(rep index.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.Indexed += rep.Indexed
	s.report.Duplicates += rep.Duplicates
	s.report.Invalid += rep.Invalid
}
