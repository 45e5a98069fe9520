/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package fetchpool resolves keys to values through a fixed number of concurrent workers
// backed by an externally supplied fetch function.
//
// Work is dispatched in FIFO order, and at most one fetch per key is in flight at any time:
// concurrent callers asking for the same key join the pending fetch and receive the same outcome.
// A caller that stops waiting (its context is done) detaches without canceling the fetch for the others.
//
// The coordinator knows nothing about caching. It is the caller's job to remember fetched values.
package fetchpool
