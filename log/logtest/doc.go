/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package logtest provides log.FieldLogger implementations for tests:
// a synchronous JSON logger and a Recorder that keeps entries for later assertions.
package logtest
