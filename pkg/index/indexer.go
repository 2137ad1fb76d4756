// Package index turns typed records into store documents: validation,
// in-batch deduplication and the bulk write with retries.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/civicdata/registry-ingest/pkg/logging"
	"github.com/civicdata/registry-ingest/pkg/records"
	"github.com/civicdata/registry-ingest/pkg/store"
)

const (
	// maxBulkAttempts bounds retries of a failed bulk write.
	maxBulkAttempts = 3

	// bulkRetryBackoff is the pause between bulk write attempts.
	bulkRetryBackoff = 2 * time.Second
)

// Report summarizes one indexing batch.
type Report struct {
	Received   int
	Indexed    int
	Duplicates int
	Invalid    int
}

// Indexer writes record batches to a SearchStore.
type Indexer struct {
	store   store.SearchStore
	logger  zerolog.Logger
	backoff time.Duration
}

// NewIndexer creates an Indexer on the given store.
func NewIndexer(s store.SearchStore) *Indexer {
	if s == nil {
		panic("index: search store is required")
	}
	return &Indexer{
		store:   s,
		logger:  logging.NewLogger("index"),
		backoff: bulkRetryBackoff,
	}
}

// Index validates, deduplicates and writes one batch. Within a batch the
// first record for a key wins; later duplicates are dropped. Invalid records
// are dropped with a warn log. A *store.PartialBulkFailure passes through so
// the caller can decide whether a partial batch is acceptable.
func (ix *Indexer) Index(ctx context.Context, collection string, batch []records.Document) (Report, error) {
	report := Report{Received: len(batch)}
	if len(batch) == 0 {
		return report, nil
	}

	seen := make(map[string]bool, len(batch))
	docs := make([]store.Document, 0, len(batch))
	for _, rec := range batch {
		if err := rec.Validate(); err != nil {
			report.Invalid++
			docsTotal.WithLabelValues(collection, "invalid").Inc()
			ix.logger.Warn().
				Err(err).
				Str("collection", collection).
				Msg("Dropping invalid record")
			continue
		}

		key := rec.DocumentKey()
		if seen[key] {
			report.Duplicates++
			docsTotal.WithLabelValues(collection, "duplicate").Inc()
			continue
		}
		seen[key] = true

		body, err := json.Marshal(rec)
		if err != nil {
			return report, fmt.Errorf("marshal %s: %w", key, err)
		}
		docs = append(docs, store.Document{Key: key, Body: body})
	}

	if len(docs) == 0 {
		return report, nil
	}

	if err := ix.bulkWithRetry(ctx, collection, docs); err != nil {
		return report, err
	}

	report.Indexed = len(docs)
	docsTotal.WithLabelValues(collection, "indexed").Add(float64(len(docs)))
	ix.logger.Debug().
		Str("collection", collection).
		Int("indexed", report.Indexed).
		Int("duplicates", report.Duplicates).
		Int("invalid", report.Invalid).
		Msg("Batch indexed")
	return report, nil
}

// bulkWithRetry retries transport-level bulk failures. A partial failure is
// not retried: the failed documents would fail again for the same reason.
func (ix *Indexer) bulkWithRetry(ctx context.Context, collection string, docs []store.Document) error {
	var lastErr error
	for attempt := 1; attempt <= maxBulkAttempts; attempt++ {
		err := ix.store.BulkUpsert(ctx, collection, docs)
		if err == nil {
			return nil
		}

		var partial *store.PartialBulkFailure
		if errors.As(err, &partial) {
			return err
		}

		lastErr = err
		if attempt < maxBulkAttempts {
			ix.logger.Warn().
				Err(err).
				Str("collection", collection).
				Int("attempt", attempt).
				Msg("Bulk write failed, retrying")
			select {
			case <-time.After(ix.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("bulk write to %s after %d attempts: %w", collection, maxBulkAttempts, lastErr)
}
