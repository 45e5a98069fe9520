/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package httpclient builds HTTP clients for talking to upstream services.
// The transport of a client is a chain of round trippers (retries, request id propagation,
// user agent, client-side rate limiting, metrics and logging) configured with Config.
package httpclient
