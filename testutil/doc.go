/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package testutil contains assertions and helpers shared by the tests of the module.
package testutil

type tHelper interface {
	Helper()
}

func helper(t interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
}
