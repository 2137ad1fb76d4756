// Package hierarchy resolves a debate section's ancestor chain for a given
// sitting day and chamber.
//
// The upstream API returns the whole section forest for a (date, chamber)
// pair in one shot, so the resolver fetches and memoizes forests as a unit.
// Forests for past dates do not change, so entries are valid for the
// lifetime of the process. Resolution is best-effort: any failure yields an
// empty chain, never an error.
package hierarchy

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/civicdata/registry-ingest/pkg/fetch"
	"github.com/civicdata/registry-ingest/pkg/logging"
	"github.com/civicdata/registry-ingest/pkg/records"
)

// Fetcher is the slice of the fetch client the resolver needs.
type Fetcher interface {
	GetJSON(ctx context.Context, req fetch.Request, v any) error
}

// Resolver loads and memoizes section forests and walks ancestor chains.
type Resolver struct {
	fetcher Fetcher
	baseURL string
	logger  zerolog.Logger

	mu      sync.Mutex
	forests map[forestKey]*forestEntry
}

type forestKey struct {
	date    string
	chamber string
}

// forestEntry is a single-flight cell: the first caller loads, everyone else
// waits on ready.
type forestEntry struct {
	ready chan struct{}
	nodes map[string]records.Node
	err   error
}

// NewResolver creates a resolver against the given Hansard base URL.
func NewResolver(fetcher Fetcher, baseURL string) *Resolver {
	return &Resolver{
		fetcher: fetcher,
		baseURL: baseURL,
		logger:  logging.NewLogger("hierarchy"),
		forests: make(map[forestKey]*forestEntry),
	}
}

// Ancestors returns the ancestor chain of leafExternalID for the given
// sitting day and chamber, leaf first. Each node's parent is the next node
// in the chain; the chain ends at a root or at a lookup miss. Any failure
// returns an empty chain.
func (r *Resolver) Ancestors(ctx context.Context, date, chamber, leafExternalID string) []records.Node {
	if leafExternalID == "" {
		return nil
	}

	forest, err := r.forest(ctx, date, chamber)
	if err != nil {
		r.logger.Warn().
			Err(err).
			Str("date", date).
			Str("chamber", chamber).
			Str("leaf", leafExternalID).
			Msg("Forest load failed, returning empty chain")
		return nil
	}

	var chain []records.Node
	seen := make(map[string]bool)

	// External ids are the stable traversal key; local ids are accepted
	// because some upstream records reference them instead.
	key := leafExternalID
	for {
		if seen[key] {
			r.logger.Warn().Str("key", key).Msg("Cycle in section forest, truncating chain")
			break
		}
		seen[key] = true

		node, ok := forest[key]
		if !ok {
			break
		}
		chain = append(chain, node)

		if node.ParentLocalID == nil {
			break
		}
		key = strconv.Itoa(*node.ParentLocalID)
	}

	return chain
}

// forest returns the memoized node map for (date, chamber), loading it on
// first use. Concurrent first lookups collapse into one upstream load.
// Failed loads are not memoized, so a later lookup retries.
func (r *Resolver) forest(ctx context.Context, date, chamber string) (map[string]records.Node, error) {
	key := forestKey{date: date, chamber: chamber}

	r.mu.Lock()
	entry, ok := r.forests[key]
	if !ok {
		entry = &forestEntry{ready: make(chan struct{})}
		r.forests[key] = entry
		r.mu.Unlock()

		entry.nodes, entry.err = r.load(ctx, date, chamber)
		if entry.err != nil {
			r.mu.Lock()
			delete(r.forests, key)
			r.mu.Unlock()
		}
		close(entry.ready)
		return entry.nodes, entry.err
	}
	r.mu.Unlock()

	select {
	case <-entry.ready:
		return entry.nodes, entry.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// load fetches the day's top-level sections, then each section's full tree,
// and flattens all nodes into one map keyed by both local and external id.
func (r *Resolver) load(ctx context.Context, date, chamber string) (map[string]records.Node, error) {
	var sections []int
	err := r.fetcher.GetJSON(ctx, fetch.Request{
		URL:   r.baseURL + "/overview/sectionsforday.json",
		Query: url.Values{"house": {chamber}, "date": {date}},
	}, &sections)
	if err != nil {
		return nil, fmt.Errorf("sections for %s/%s: %w", date, chamber, err)
	}

	nodes := make(map[string]records.Node)
	for _, section := range sections {
		var trees []records.SectionTree
		err := r.fetcher.GetJSON(ctx, fetch.Request{
			URL: r.baseURL + "/overview/sectiontrees.json",
			Query: url.Values{
				"section": {strconv.Itoa(section)},
				"date":    {date},
				"house":   {chamber},
			},
		}, &trees)
		if err != nil {
			return nil, fmt.Errorf("section tree %d for %s/%s: %w", section, date, chamber, err)
		}

		for _, tree := range trees {
			for _, node := range tree.SectionTreeItems {
				nodes[node.LocalKey()] = node
				if node.ExternalID != "" {
					nodes[node.ExternalID] = node
				}
			}
		}
	}

	r.logger.Debug().
		Str("date", date).
		Str("chamber", chamber).
		Int("sections", len(sections)).
		Int("nodes", len(nodes)).
		Msg("Section forest loaded")

	return nodes, nil
}

// ForestSize returns the number of memoized forests (for testing).
func (r *Resolver) ForestSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.forests)
}
