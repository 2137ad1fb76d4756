// Package records defines the typed units the ingestion engine moves around:
// explicit per-endpoint response records with validation at the
// deserialization boundary, and content-stable document keys used for
// idempotent upsert into the search store.
//
// Every record type implements Document. A record whose key inputs are
// missing derives its key from a hash of its natural keys, so loading the
// same source twice never creates duplicates.
package records

// Document is the contract every indexable record satisfies.
type Document interface {
	// DocumentKey returns the content-stable primary key for upsert.
	// It is a pure function of record content.
	DocumentKey() string

	// Validate reports whether the record carries the fields the engine
	// requires. A failure means the record is dropped, never that the
	// page or run aborts.
	Validate() error
}
