package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key identifies a cacheable upstream request.
type Key struct {
	// Method is the HTTP method ("GET" for everything the engine does today).
	Method string

	// URL is the full request URL without query string.
	URL string

	// Query is the query parameter set.
	Query url.Values

	// Headers is the subset of request headers that affect the response
	// (e.g. the registry auth pair). Values are hashed into the key, never
	// stored in clear.
	Headers map[string]string
}

// String generates a deterministic cache key string.
// Format: fetch:METHOD:url:query1=val1:query2=val2:h=<header-hash>
//
// Example:
//
//	fetch:GET:https://hansard-api.parliament.uk/overview/sectionsforday.json:date=2024-01-15:house=Commons
func (k Key) String() string {
	parts := []string{"fetch", strings.ToUpper(k.Method), k.URL}

	// Add query params (sorted for determinism)
	if len(k.Query) > 0 {
		queryKeys := make([]string, 0, len(k.Query))
		for key := range k.Query {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			vals := append([]string(nil), k.Query[key]...)
			sort.Strings(vals)
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(vals, ",")))
		}
	}

	// Fold the header subset into one hash so credentials never land in Redis keys
	if len(k.Headers) > 0 {
		parts = append(parts, "h="+hashHeaders(k.Headers))
	}

	return strings.Join(parts, ":")
}

// hashHeaders produces a stable digest of the header subset.
func hashHeaders(headers map[string]string) string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		fmt.Fprintf(h, "%s=%s\n", strings.ToLower(name), headers[name])
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
