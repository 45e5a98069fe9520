/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stretchr/testify/require"
)

// RequireNoErrorInChannel fails if the buffered channel holds a non-nil error. It doesn't block.
func RequireNoErrorInChannel(t require.TestingT, c <-chan error, msgAndArgs ...interface{}) {
	helper(t)
	select {
	case err := <-c:
		require.NoError(t, err, msgAndArgs...)
	default:
	}
}

// RequireErrorIsAny fails unless errors.Is(err, target) holds for one of the targets.
// Useful when the exact error depends on the platform (e.g. ECONNREFUSED vs ECONNRESET).
func RequireErrorIsAny(t require.TestingT, err error, targets []error, msgAndArgs ...interface{}) {
	helper(t)
	quoted := make([]string, 0, len(targets))
	for _, target := range targets {
		if errors.Is(err, target) {
			return
		}
		quoted = append(quoted, fmt.Sprintf("%q", target.Error()))
	}
	var chain []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%q", e.Error()))
	}
	require.FailNow(t, fmt.Sprintf("At least one target error should be in err chain:\nexpected: [%s]\nin chain: %s",
		strings.Join(quoted, "; "), strings.Join(chain, "\n\t")), msgAndArgs...)
}
