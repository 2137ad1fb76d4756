package loader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/civicdata/registry-ingest/pkg/fetch"
	"github.com/civicdata/registry-ingest/pkg/index"
	"github.com/civicdata/registry-ingest/pkg/records"
	"github.com/civicdata/registry-ingest/pkg/store"
)

const (
	notFoundEnvelope = `{"Status": "FSR-API-04-01-11", "Message": "No search result found", "Data": null}`

	searchPage = `{"Status": "FSR-API-04-01-00", "Data": [
		{"Reference Number": "100", "Name": "Alpha Bank Plc", "Status": "Authorised"},
		{"Reference Number": "200", "Name": "Beta Insurance Ltd", "Status": "Authorised"}
	]}`

	firmDetails = `{"Status": "FSR-API-01-01-00", "Data": [
		{"Organisation Name": "Alpha Bank Plc", "Status": "Authorised",
		 "Business Type": "Regulated", "Companies House Number": "01234567"}
	]}`

	firmNames = `{"Status": "FSR-API-01-02-00", "Data": [
		{"Current Names": [{"Name": "Alpha Trading"}], "Previous Names": [{"Name": "Old Alpha"}]}
	]}`

	firmAddress = `{"Status": "FSR-API-01-03-00", "Data": [
		{"Address Line 1": "1 King Street", "Town": "London", "Postcode": "EC1A 1AA", "Country": "UNITED KINGDOM"}
	]}`

	firmPermissions = `{"Status": "FSR-API-01-05-00", "Data": {
		"Accepting Deposits": {}, "Advising on Investments": {}
	}}`
)

func firmsHandler(t *testing.T) func(req fetch.Request) (string, error) {
	return func(req fetch.Request) (string, error) {
		if req.Headers["X-Auth-Email"] != "ops@example.org" || req.Headers["X-Auth-Key"] == "" {
			t.Errorf("request %s missing auth headers: %v", req.URL, req.Headers)
		}

		switch req.URL {
		case "http://register.test/services/V0.1/Search":
			if req.Query.Get("pgnum") == "1" && req.Query.Get("q") == "bank" {
				return searchPage, nil
			}
			return notFoundEnvelope, nil
		case "http://register.test/services/V0.1/Firm/100",
			"http://register.test/services/V0.1/Firm/200":
			return firmDetails, nil
		case "http://register.test/services/V0.1/Firm/100/Names":
			return firmNames, nil
		case "http://register.test/services/V0.1/Firm/100/Address":
			return firmAddress, nil
		case "http://register.test/services/V0.1/Firm/100/Permissions":
			return firmPermissions, nil
		default:
			// Remaining sub-resources have nothing for these firms.
			return notFoundEnvelope, nil
		}
	}
}

func newFirmsConfig() FirmsConfig {
	return FirmsConfig{
		BaseURL:     "http://register.test",
		Email:       "ops@example.org",
		Key:         "test-key",
		SearchTerms: []string{"bank"},
	}
}

func TestFirmsLoader_Load(t *testing.T) {
	fetcher := &fakeFetcher{handler: firmsHandler(t)}
	indexer := newFakeIndexer()

	l := NewFirmsLoader(newFirmsConfig(), fetcher, indexer)
	report, err := l.Load(context.Background(), DateRange{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if report.Total != 2 || report.Indexed != 2 {
		t.Errorf("report = %+v", report)
	}

	var alpha *records.FirmProfile
	for _, doc := range indexer.documents("firms") {
		if p := doc.(*records.FirmProfile); p.FRN == "100" {
			alpha = p
		}
	}
	if alpha == nil {
		t.Fatal("firm 100 not indexed")
	}
	if alpha.FirmName != "Alpha Bank Plc" || alpha.CompaniesHouseNumber != "01234567" {
		t.Errorf("core fields = %+v", alpha)
	}
	if len(alpha.TradingNames) != 1 || alpha.TradingNames[0] != "Alpha Trading" {
		t.Errorf("TradingNames = %v", alpha.TradingNames)
	}
	if alpha.City != "London" || alpha.Postcode != "EC1A 1AA" {
		t.Errorf("address = %+v", alpha)
	}
	if len(alpha.Permissions) != 2 || alpha.Permissions[0] != "Accepting Deposits" {
		t.Errorf("Permissions = %v", alpha.Permissions)
	}
}

func TestFirmsLoader_SubResourceFailureTolerated(t *testing.T) {
	base := firmsHandler(t)
	fetcher := &fakeFetcher{handler: func(req fetch.Request) (string, error) {
		if req.URL == "http://register.test/services/V0.1/Firm/100/Address" {
			return "", errors.New("upstream 500")
		}
		return base(req)
	}}
	indexer := newFakeIndexer()

	l := NewFirmsLoader(newFirmsConfig(), fetcher, indexer)
	report, err := l.Load(context.Background(), DateRange{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if report.Indexed != 2 {
		t.Errorf("Indexed = %d, want 2", report.Indexed)
	}

	for _, doc := range indexer.documents("firms") {
		if p := doc.(*records.FirmProfile); p.FRN == "100" && p.City != "" {
			t.Errorf("address fields set despite failed fetch: %+v", p)
		}
	}
}

func TestFirmsLoader_CoreResourceFailureSkipsFirm(t *testing.T) {
	base := firmsHandler(t)
	fetcher := &fakeFetcher{handler: func(req fetch.Request) (string, error) {
		if req.URL == "http://register.test/services/V0.1/Firm/200" {
			return notFoundEnvelope, nil
		}
		return base(req)
	}}
	indexer := newFakeIndexer()

	l := NewFirmsLoader(newFirmsConfig(), fetcher, indexer)
	report, err := l.Load(context.Background(), DateRange{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if report.Indexed != 1 || report.PagesFailed != 1 {
		t.Errorf("report = %+v", report)
	}
	if !report.Partial() {
		t.Error("skipped firm not reflected in report")
	}
}

// partialIndexer rejects one document per batch the way the store reports
// a partially failed bulk write.
type partialIndexer struct {
	*fakeIndexer
}

func (p *partialIndexer) Index(ctx context.Context, collection string, batch []records.Document) (index.Report, error) {
	_, _ = p.fakeIndexer.Index(ctx, collection, batch)
	return index.Report{Received: len(batch)}, &store.PartialBulkFailure{
		Collection: collection,
		Succeeded:  len(batch) - 1,
		Failed:     1,
		FailedKeys: []string{batch[len(batch)-1].DocumentKey()},
	}
}

func TestFirmsLoader_PartialBulkFailureContained(t *testing.T) {
	fetcher := &fakeFetcher{handler: firmsHandler(t)}
	indexer := &partialIndexer{fakeIndexer: newFakeIndexer()}

	l := NewFirmsLoader(newFirmsConfig(), fetcher, indexer)
	report, err := l.Load(context.Background(), DateRange{})
	if err != nil {
		t.Fatalf("rejected subset aborted the run: %v", err)
	}
	if report.Indexed != 1 || report.PagesFailed != 1 {
		t.Errorf("report = %+v, want 1 indexed and 1 failed", report)
	}
	if !report.Partial() {
		t.Error("rejected subset not reflected in report")
	}
}

func TestFirmsLoader_FailedSearchTermSkipped(t *testing.T) {
	base := firmsHandler(t)
	fetcher := &fakeFetcher{handler: func(req fetch.Request) (string, error) {
		if strings.HasSuffix(req.URL, "/Search") && req.Query.Get("q") == "zzz" {
			return "", errors.New("upstream 500")
		}
		return base(req)
	}}
	indexer := newFakeIndexer()

	cfg := newFirmsConfig()
	cfg.SearchTerms = []string{"zzz", "bank"}
	l := NewFirmsLoader(cfg, fetcher, indexer)

	report, err := l.Load(context.Background(), DateRange{})
	if err != nil {
		t.Fatalf("one failed term aborted the run: %v", err)
	}
	if report.Total != 2 || report.Indexed != 2 {
		t.Errorf("report = %+v, want the healthy term's 2 firms", report)
	}
}

func TestFirmsLoader_AllSearchTermsFailed(t *testing.T) {
	fetcher := &fakeFetcher{handler: func(req fetch.Request) (string, error) {
		return "", errors.New("upstream 500")
	}}
	indexer := newFakeIndexer()

	cfg := newFirmsConfig()
	cfg.SearchTerms = []string{"bank", "credit"}
	l := NewFirmsLoader(cfg, fetcher, indexer)

	if _, err := l.Load(context.Background(), DateRange{}); !errors.Is(err, ErrAllPagesFailed) {
		t.Errorf("err = %v, want ErrAllPagesFailed", err)
	}
}

func TestFirmsLoader_SubResourcesConcurrent(t *testing.T) {
	singleHit := `{"Status": "FSR-API-04-01-00", "Data": [
		{"Reference Number": "100", "Name": "Alpha Bank Plc", "Status": "Authorised"}
	]}`

	var arrived atomic.Int32
	release := make(chan struct{})
	var once sync.Once

	fetcher := &fakeFetcher{handler: func(req fetch.Request) (string, error) {
		switch {
		case strings.HasSuffix(req.URL, "/Search"):
			if req.Query.Get("pgnum") == "1" {
				return singleHit, nil
			}
			return notFoundEnvelope, nil
		case strings.HasSuffix(req.URL, "/Firm/100"):
			return firmDetails, nil
		default:
			// Each sub-resource parks until all six are in flight at once.
			if arrived.Add(1) == 6 {
				once.Do(func() { close(release) })
			}
			select {
			case <-release:
			case <-time.After(5 * time.Second):
				t.Error("sub-resource fetches did not all overlap")
			}
			return notFoundEnvelope, nil
		}
	}}
	indexer := newFakeIndexer()

	l := NewFirmsLoader(newFirmsConfig(), fetcher, indexer)
	report, err := l.Load(context.Background(), DateRange{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if report.Indexed != 1 {
		t.Errorf("Indexed = %d, want 1", report.Indexed)
	}
}

func TestFirmsLoader_FirmBatchBound(t *testing.T) {
	hits := make([]string, 0, 7)
	for i := 1; i <= 7; i++ {
		hits = append(hits, fmt.Sprintf(`{"Reference Number": "%d00", "Name": "Firm %d"}`, i, i))
	}
	searchBody := `{"Status": "FSR-API-04-01-00", "Data": [` + strings.Join(hits, ",") + `]}`

	var inFlight, maxInFlight atomic.Int32

	fetcher := &fakeFetcher{handler: func(req fetch.Request) (string, error) {
		parts := strings.Split(req.URL, "/")
		switch {
		case strings.HasSuffix(req.URL, "/Search"):
			if req.Query.Get("pgnum") == "1" {
				return searchBody, nil
			}
			return notFoundEnvelope, nil
		case parts[len(parts)-2] == "Firm":
			cur := inFlight.Add(1)
			for {
				m := maxInFlight.Load()
				if cur <= m || maxInFlight.CompareAndSwap(m, cur) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inFlight.Add(-1)
			return firmDetails, nil
		default:
			return notFoundEnvelope, nil
		}
	}}
	indexer := newFakeIndexer()

	l := NewFirmsLoader(newFirmsConfig(), fetcher, indexer)
	report, err := l.Load(context.Background(), DateRange{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if report.Indexed != 7 {
		t.Errorf("Indexed = %d, want 7", report.Indexed)
	}
	if max := maxInFlight.Load(); max > firmBatchSize {
		t.Errorf("firms in flight peaked at %d, want at most %d", max, firmBatchSize)
	}
	if maxInFlight.Load() < 2 {
		t.Error("firms within a batch never overlapped")
	}
}

func TestFirmsLoader_DiscoveryDedup(t *testing.T) {
	fetcher := &fakeFetcher{handler: firmsHandler(t)}
	indexer := newFakeIndexer()

	cfg := newFirmsConfig()
	// Both terms resolve to the same search page, so the same firms.
	cfg.SearchTerms = []string{"bank", "bank"}
	l := NewFirmsLoader(cfg, fetcher, indexer)

	report, err := l.Load(context.Background(), DateRange{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if report.Total != 2 {
		t.Errorf("Total = %d, want 2 after dedup", report.Total)
	}
}
