// Package store is the boundary to the document search backend. Everything
// above it speaks in keyed JSON documents; the backend choice stays behind
// the SearchStore interface.
package store

import "context"

// Document is one keyed JSON document ready for the backend. Body must be a
// valid JSON object.
type Document struct {
	Key  string
	Body []byte
}

// Query is a free-text search over a collection.
type Query struct {
	Text  string
	Limit int
}

// Hit is one search result.
type Hit struct {
	Key    string
	Score  float64
	Source []byte
}

// SearchStore stores and searches keyed documents. Writing the same key
// twice replaces the document, so reruns are idempotent.
type SearchStore interface {
	// BulkUpsert writes the batch unordered. Individual write failures do
	// not abort the batch; they come back as a *PartialBulkFailure.
	BulkUpsert(ctx context.Context, collection string, docs []Document) error

	// Search runs a free-text query, best matches first.
	Search(ctx context.Context, collection string, q Query) ([]Hit, error)

	// EnsureCollection creates the collection and its text index. Safe to
	// call repeatedly.
	EnsureCollection(ctx context.Context, collection string) error

	// DropCollection removes the collection and everything in it.
	DropCollection(ctx context.Context, collection string) error
}
