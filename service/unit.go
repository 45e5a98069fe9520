/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package service runs long-living components (units) of a process and stops them on OS signals.
package service

// Unit is a component with its own lifecycle (an HTTP server, a background worker, etc.).
type Unit interface {
	// Start runs the unit. It may return right after initialization or block for the unit's whole life.
	// A unit that fails writes exactly one error to fatalErr; a unit that starts fine never writes to it.
	// The channel must not be used after Start returns.
	Start(fatalErr chan<- error)

	// Stop halts the unit, cleanly if gracefully is true.
	// It may be called before Start, after a failed Start, or more than once.
	Stop(gracefully bool) error
}

// MetricsRegisterer is implemented by units that own Prometheus metrics.
// Service registers them before the unit is started and unregisters them on exit.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}
