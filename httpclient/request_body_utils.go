/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/acronis/go-resolvekit/log"
)

// rewindFunc restores the body of req before a retry attempt.
type rewindFunc func(req *http.Request) error

// prepareBodyForRetries replaces req.Body with one that can be replayed and returns the rewind function.
// Sources are tried in order: req.GetBody, a seekable body, a copy buffered in memory.
func prepareBodyForRetries(req *http.Request) (rewindFunc, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return func(*http.Request) error { return nil }, nil
	}
	if body, ok := req.Body.(io.ReadSeeker); ok && req.GetBody == nil {
		start, err := body.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, fmt.Errorf("remember request body position: %w", err)
		}
		req.Body = io.NopCloser(body)
		return func(*http.Request) error {
			if _, err := body.Seek(start, io.SeekStart); err != nil {
				return fmt.Errorf("seek request body to %d: %w", start, err)
			}
			return nil
		}, nil
	}

	if req.GetBody != nil {
		fresh, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("get request body: %w", err)
		}
		req.Body = fresh
		return func(r *http.Request) error {
			b, err := r.GetBody()
			if err != nil {
				return fmt.Errorf("get request body for retry: %w", err)
			}
			r.Body = b
			return nil
		}, nil
	}

	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	return func(r *http.Request) error {
		r.Body = io.NopCloser(bytes.NewReader(data))
		return nil
	}, nil
}

// discardBody drains and closes the body of a response that is going to be retried,
// so that the connection can be reused.
func discardBody(resp *http.Response, logger log.FieldLogger) {
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		logger.Warn("failed to drain response body before retry", log.Error(err))
	}
	if err := resp.Body.Close(); err != nil {
		logger.Warn("failed to close response body before retry", log.Error(err))
	}
}
