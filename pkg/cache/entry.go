package cache

import (
	"net/http"
	"time"
)

// DefaultTTL is the fixed lifetime of a cached response. Registry data for a
// past date does not change fast enough to justify anything shorter, and the
// rate budget is too tight to justify anything longer being stale.
const DefaultTTL = 24 * time.Hour

// Entry represents a cached upstream response.
type Entry struct {
	// Data is the response body
	Data []byte `json:"data"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// Headers are the response headers
	Headers http.Header `json:"headers"`

	// FetchedAt is when the response was fetched upstream
	FetchedAt time.Time `json:"fetched_at"`

	// ExpiresAt is when the entry becomes stale (FetchedAt + TTL)
	ExpiresAt time.Time `json:"expires_at"`
}

// NewEntry creates a cache entry with the fixed TTL applied from now.
func NewEntry(statusCode int, headers http.Header, body []byte, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Data:       body,
		StatusCode: statusCode,
		Headers:    headers.Clone(),
		FetchedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
}

// IsExpired returns true if the cache entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.ExpiresAt)
	if ttl < 0 {
		return 0
	}
	return ttl
}
