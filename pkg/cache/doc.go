// Package cache provides a Redis-backed store for upstream registry responses.
//
// Responses are keyed by the full request identity (method, URL, query
// parameters and a subset of headers) and expire after a fixed TTL regardless
// of use. The cache sits in front of the rate limiter in pkg/fetch: a hit
// returns without consuming a rate-limit token, so re-running an ingestion job
// does not re-burn the rate budget on pages that were already fetched.
//
// Example usage:
//
//	manager := cache.NewManager(redisClient)
//	key := cache.Key{
//		Method: "GET",
//		URL:    "https://hansard-api.parliament.uk/search/contributions/Spoken.json",
//		Query:  url.Values{"take": {"100"}, "skip": {"0"}},
//	}
//	entry, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// fetch upstream, then:
//		_ = manager.Set(ctx, key, cache.NewEntry(status, header, body, cache.DefaultTTL))
//	}
//
// The manager is safe for concurrent use; all coordination is delegated to
// Redis, so many in-flight page fetches may read and write entries at once.
package cache
