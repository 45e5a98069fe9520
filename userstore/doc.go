/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package userstore provides origin stores of users that are served by the resolver:
// an in-memory store with simulated latency, a bbolt-backed store and a Redis-backed store.
package userstore
