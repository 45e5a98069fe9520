/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package fetchpool

import (
	"bytes"
	"errors"
	"fmt"
	"runtime/debug"
)

// ErrNotFound is returned when the origin confirms that there is no value for the key.
// Fetch functions should return it (or an error wrapping it) to distinguish absence from failure.
var ErrNotFound = errors.New("not found")

// ErrFetch matches (via errors.Is) every *FetchError.
var ErrFetch = errors.New("fetch failed")

// ErrGoexit is used as a cause of FetchError when a fetch function calls runtime.Goexit.
var ErrGoexit = errors.New("runtime.Goexit was called")

// FetchError is an error that occurs when the origin fails to provide a value for the key.
// Transient and permanent failures are not distinguished.
type FetchError struct {
	Key interface{}
	Err error
}

// Error returns a string representation of FetchError.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %v: %v", e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is reports whether the target is ErrFetch.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}

// PanicError is an error that represents a panic value and stack trace.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("%v\n\n%s", p.Value, p.Stack)
}

// Unwrap returns the panic value if it is an error.
// A panic never reports absence, so a value matching ErrNotFound is not exposed.
func (p *PanicError) Unwrap() error {
	err, ok := p.Value.(error)
	if !ok || errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func newPanicError(v interface{}) error {
	stack := debug.Stack()

	// Waiters see the stack after the fetching goroutine has exited, so its "goroutine N [running]:" header is stale.
	if line := bytes.IndexByte(stack, '\n'); line >= 0 {
		stack = stack[line+1:]
	}
	return &PanicError{Value: v, Stack: stack}
}
