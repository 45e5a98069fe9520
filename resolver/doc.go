/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package resolver ties the rate limiter, the expiring LRU cache and the fetch coordinator together
// into a single "resolve an entity by identifier" operation.
//
// For every request the client is admitted by the rate limiter first, then the cache is consulted,
// and only on a miss the origin is asked via fetchpool.Coordinator, so concurrent requests for the same
// identifier share a single origin fetch. Successfully fetched values are cached (write-once),
// absence and failures are never cached.
package resolver
