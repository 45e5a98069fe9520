/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package lrucache provides in-memory cache with LRU eviction policy, write-once-until-expiry semantics,
// expiration mechanism, usage statistics and Prometheus metrics.
package lrucache
