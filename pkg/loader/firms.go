package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/civicdata/registry-ingest/pkg/fetch"
	"github.com/civicdata/registry-ingest/pkg/logging"
	"github.com/civicdata/registry-ingest/pkg/records"
	"github.com/civicdata/registry-ingest/pkg/store"
)

const (
	// firmBatchSize is how many firms are in flight at once. Each firm fans
	// out its core resource plus six sub-resources, so one batch keeps at
	// most 21 requests queued behind the shared limiter.
	firmBatchSize = 3

	// firmIndexBatch is how many profiles go to the store per bulk write.
	firmIndexBatch = 25
)

// DefaultFirmSearchTerms seed the register discovery when no terms are
// configured.
var DefaultFirmSearchTerms = []string{"bank", "insurance", "investment", "credit"}

// FirmsConfig configures the financial register loader.
type FirmsConfig struct {
	// BaseURL of the register API, without trailing slash.
	BaseURL string

	// Email and Key are the register API credentials, sent as headers.
	Email string
	Key   string

	// Collection the firm profiles land in.
	Collection string

	// SearchTerms drive firm discovery.
	SearchTerms []string
}

// FirmsLoader ingests firm profiles from the financial services register.
// Discovery runs search terms through the register's paged search; each
// discovered firm reference number then fans out into the core firm resource
// plus six sub-resources, merged into one profile document.
type FirmsLoader struct {
	cfg     FirmsConfig
	fetcher Fetcher
	indexer Indexer
	logger  zerolog.Logger
}

// NewFirmsLoader creates the loader.
func NewFirmsLoader(cfg FirmsConfig, fetcher Fetcher, indexer Indexer) *FirmsLoader {
	if cfg.Collection == "" {
		cfg.Collection = "firms"
	}
	if len(cfg.SearchTerms) == 0 {
		cfg.SearchTerms = DefaultFirmSearchTerms
	}
	return &FirmsLoader{
		cfg:     cfg,
		fetcher: fetcher,
		indexer: indexer,
		logger:  logging.NewLogger("loader.firms"),
	}
}

// Name implements Loader.
func (l *FirmsLoader) Name() string { return "firms-register" }

// Load implements Loader. The register is a snapshot source, so the date
// window is ignored.
func (l *FirmsLoader) Load(ctx context.Context, _ DateRange) (RunReport, error) {
	start := time.Now()
	report := RunReport{Source: l.Name()}

	frns, err := l.discover(ctx)
	if err != nil {
		return report, err
	}
	report.Total = len(frns)
	report.PagesPlanned = len(frns)
	l.logger.Info().Int("firms", len(frns)).Msg("Firm discovery finished")

	var batch []records.Document
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		rep, err := l.indexer.Index(ctx, l.cfg.Collection, batch)
		report.Indexed += rep.Indexed
		report.Duplicates += rep.Duplicates
		report.Invalid += rep.Invalid
		batch = batch[:0]

		// A rejected subset is reported and counted; the remaining firms
		// still get their turn.
		var partial *store.PartialBulkFailure
		if errors.As(err, &partial) {
			report.Indexed += partial.Succeeded
			report.PagesFailed += partial.Failed
			l.logger.Warn().
				Int("failed", partial.Failed).
				Strs("failed_keys", partial.FailedKeys).
				Msg("Bulk write rejected a subset of firm profiles")
			return nil
		}
		return err
	}

	for offset := 0; offset < len(frns); offset += firmBatchSize {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		end := offset + firmBatchSize
		if end > len(frns) {
			end = len(frns)
		}

		var mu sync.Mutex
		var wg sync.WaitGroup
		for _, frn := range frns[offset:end] {
			frn := frn
			wg.Add(1)
			go func() {
				defer wg.Done()
				profile, err := l.buildProfile(ctx, frn)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					report.PagesFailed++
					l.logger.Error().Err(err).Str("frn", frn).Msg("Firm profile failed")
					return
				}
				batch = append(batch, profile)
			}()
		}
		wg.Wait()

		if len(batch) >= firmIndexBatch {
			if err := flush(); err != nil {
				return report, err
			}
		}
	}
	if err := flush(); err != nil {
		return report, err
	}

	report.Duration = time.Since(start)
	l.logger.Info().
		Int("indexed", report.Indexed).
		Int("failed", report.PagesFailed).
		Dur("duration", report.Duration).
		Msg("Firms load finished")
	if report.failed() {
		return report, fmt.Errorf("%s: %w", l.Name(), ErrAllPagesFailed)
	}
	return report, nil
}

// discover walks the paged search for every configured term and returns the
// deduplicated firm reference numbers, in stable order. A term whose search
// fails is logged and skipped, keeping whatever its earlier pages already
// yielded; discovery itself fails only when every term failed and nothing
// was found.
func (l *FirmsLoader) discover(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	failed := 0
	for _, term := range l.cfg.SearchTerms {
		if err := l.searchTerm(ctx, term, seen); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failed++
			l.logger.Error().Err(err).Str("term", term).Msg("Search term failed")
		}
	}
	if failed == len(l.cfg.SearchTerms) && len(seen) == 0 {
		return nil, fmt.Errorf("firm discovery: %w", ErrAllPagesFailed)
	}

	frns := make([]string, 0, len(seen))
	for frn := range seen {
		frns = append(frns, frn)
	}
	sort.Strings(frns)
	return frns, nil
}

// searchTerm collects firm reference numbers from one term's paged search
// into seen.
func (l *FirmsLoader) searchTerm(ctx context.Context, term string, seen map[string]bool) error {
	for page := 1; ; page++ {
		var envelope records.RegisterEnvelope
		err := l.fetcher.GetJSON(ctx, l.request("/services/V0.1/Search", url.Values{
			"q":     {term},
			"type":  {"firm"},
			"pgnum": {strconv.Itoa(page)},
		}), &envelope)
		if err != nil {
			return fmt.Errorf("search %q page %d: %w", term, page, err)
		}
		if !envelope.HasData() {
			return nil
		}

		var hits []records.SearchHit
		if err := json.Unmarshal(envelope.Data, &hits); err != nil {
			return fmt.Errorf("search %q page %d: %w", term, page, err)
		}
		if len(hits) == 0 {
			return nil
		}
		for _, hit := range hits {
			if hit.ReferenceNumber != "" {
				seen[hit.ReferenceNumber] = true
			}
		}
	}
}

// buildProfile fetches the core firm resource and its sub-resources and
// merges them. The core resource is required; a failed sub-resource only
// leaves its fields empty.
func (l *FirmsLoader) buildProfile(ctx context.Context, frn string) (*records.FirmProfile, error) {
	base := "/services/V0.1/Firm/" + frn

	var envelope records.RegisterEnvelope
	if err := l.fetcher.GetJSON(ctx, l.request(base, nil), &envelope); err != nil {
		return nil, fmt.Errorf("firm %s: %w", frn, err)
	}
	if !envelope.HasData() {
		return nil, fmt.Errorf("firm %s: no data (status %s)", frn, envelope.Status)
	}
	var details []records.FirmDetails
	if err := json.Unmarshal(envelope.Data, &details); err != nil {
		return nil, fmt.Errorf("firm %s: %w", frn, err)
	}
	if len(details) == 0 {
		return nil, fmt.Errorf("firm %s: empty details", frn)
	}

	profile := &records.FirmProfile{
		FRN:                   frn,
		FirmName:              details[0].OrganisationName,
		Status:                details[0].Status,
		SubStatus:             details[0].SubStatus,
		BusinessType:          details[0].BusinessType,
		CompaniesHouseNumber:  details[0].CompaniesHouseNumber,
		ClientMoneyPermission: details[0].ClientMoneyPermission,
		PSDStatus:             details[0].PSDStatus,
		MLRsStatus:            details[0].MLRsStatus,
	}

	subResources := []struct {
		path  string
		apply func(data json.RawMessage)
	}{
		{base + "/Names", func(data json.RawMessage) { l.applyNames(profile, frn, data) }},
		{base + "/Address", func(data json.RawMessage) { l.applyAddress(profile, frn, data) }},
		{base + "/Individuals", func(data json.RawMessage) { l.applyIndividuals(profile, frn, data) }},
		{base + "/Permissions", func(data json.RawMessage) { l.applyPermissions(profile, frn, data) }},
		{base + "/Requirements", func(data json.RawMessage) { l.applyRequirements(profile, frn, data) }},
		{base + "/DisciplinaryHistory", func(data json.RawMessage) { l.applyDiscipline(profile, frn, data) }},
	}

	// All six sub-resources fetch concurrently. Each apply touches a
	// distinct field set, so the profile needs no lock, only the barrier.
	var wg sync.WaitGroup
	for _, sub := range subResources {
		sub := sub
		wg.Add(1)
		go func() {
			defer wg.Done()

			var env records.RegisterEnvelope
			if err := l.fetcher.GetJSON(ctx, l.request(sub.path, nil), &env); err != nil {
				l.logger.Warn().Err(err).Str("frn", frn).Str("resource", sub.path).Msg("Sub-resource fetch failed")
				return
			}
			if !env.HasData() {
				return
			}
			sub.apply(env.Data)
		}()
	}
	wg.Wait()

	return profile, nil
}

func (l *FirmsLoader) request(path string, query url.Values) fetch.Request {
	return fetch.Request{
		URL:   l.cfg.BaseURL + path,
		Query: query,
		Headers: map[string]string{
			"X-Auth-Email": l.cfg.Email,
			"X-Auth-Key":   l.cfg.Key,
		},
	}
}

func (l *FirmsLoader) applyNames(p *records.FirmProfile, frn string, data json.RawMessage) {
	var groups []records.FirmNameGroup
	if err := json.Unmarshal(data, &groups); err != nil {
		l.logger.Warn().Err(err).Str("frn", frn).Msg("Names decode failed")
		return
	}
	for _, group := range groups {
		for _, name := range group.Current {
			if name.Name != "" {
				p.TradingNames = append(p.TradingNames, name.Name)
			}
		}
	}
}

func (l *FirmsLoader) applyAddress(p *records.FirmProfile, frn string, data json.RawMessage) {
	var addresses []records.FirmAddress
	if err := json.Unmarshal(data, &addresses); err != nil {
		l.logger.Warn().Err(err).Str("frn", frn).Msg("Address decode failed")
		return
	}
	if len(addresses) == 0 {
		return
	}
	addr := addresses[0]
	p.AddressLine1 = addr.AddressLine1
	p.City = addr.Town
	p.County = addr.County
	p.Postcode = addr.Postcode
	p.Country = addr.Country
	p.Telephone = addr.PhoneNumber
	p.Website = addr.Website
}

func (l *FirmsLoader) applyIndividuals(p *records.FirmProfile, frn string, data json.RawMessage) {
	if err := json.Unmarshal(data, &p.KeyIndividuals); err != nil {
		l.logger.Warn().Err(err).Str("frn", frn).Msg("Individuals decode failed")
	}
}

func (l *FirmsLoader) applyPermissions(p *records.FirmProfile, frn string, data json.RawMessage) {
	var perms map[string]json.RawMessage
	if err := json.Unmarshal(data, &perms); err != nil {
		l.logger.Warn().Err(err).Str("frn", frn).Msg("Permissions decode failed")
		return
	}
	for name := range perms {
		p.Permissions = append(p.Permissions, name)
	}
	sort.Strings(p.Permissions)
}

func (l *FirmsLoader) applyRequirements(p *records.FirmProfile, frn string, data json.RawMessage) {
	var rows []struct {
		Requirement string `json:"Effective Requirement"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		l.logger.Warn().Err(err).Str("frn", frn).Msg("Requirements decode failed")
		return
	}
	for _, row := range rows {
		if row.Requirement != "" {
			p.Requirements = append(p.Requirements, row.Requirement)
		}
	}
}

func (l *FirmsLoader) applyDiscipline(p *records.FirmProfile, frn string, data json.RawMessage) {
	var actions []records.DisciplinaryAction
	if err := json.Unmarshal(data, &actions); err != nil {
		l.logger.Warn().Err(err).Str("frn", frn).Msg("Disciplinary history decode failed")
		return
	}
	for _, action := range actions {
		summary := action.ActionType
		if action.Description != "" {
			summary += ": " + action.Description
		}
		if action.EffectiveFrom != "" {
			summary += " (from " + action.EffectiveFrom + ")"
		}
		p.DisciplinaryHistory = append(p.DisciplinaryHistory, summary)
	}
}
