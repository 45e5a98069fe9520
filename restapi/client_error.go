/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"errors"
	"fmt"
	"net/url"
)

// ClientError is returned by DoRequestAndUnmarshalJSON when the request did not succeed.
// StatusCode is zero if no response was received.
type ClientError struct {
	Message    string
	Method     string
	URL        *url.URL
	StatusCode int
	Err        error
}

func (e *ClientError) Error() string {
	msg := fmt.Sprintf("method: [%s] url: [%s] status: [%d] message: %s", e.Method, e.URL, e.StatusCode, e.Message)
	if e.Err != nil {
		msg += " error: " + e.Err.Error()
	}
	return msg
}

func (e *ClientError) Is(target error) bool { return errors.Is(e.Err, target) }

func (e *ClientError) Unwrap() error { return e.Err }
