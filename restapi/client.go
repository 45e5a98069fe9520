/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/acronis/go-resolvekit/log"
)

// maxErrorBodyInDebug is how much of a non-JSON error body is kept in Error.Debug.
const maxErrorBodyInDebug = 255

// DoRequest sends the request and logs its outcome.
func DoRequest(client *http.Client, req *http.Request, logger log.FieldLogger) (*http.Response, error) {
	reqFields := []log.Field{log.String("method", req.Method), log.String("uri", req.URL.String())}
	logger.AtLevel(log.LevelDebug, func(logFn log.LogFunc) { logFn("sent request", reqFields...) })

	resp, err := client.Do(req)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to do http request %s %s", req.Method, req.URL), append(reqFields, log.Error(err))...)
		return nil, fmt.Errorf("do request: %w", err)
	}

	logger.AtLevel(log.LevelDebug, func(logFn log.LogFunc) {
		logFn("got response", append(reqFields, log.Int("status", resp.StatusCode))...)
	})
	return resp, nil
}

// DoRequestAndUnmarshalJSON sends the request and decodes a 2xx JSON response into result (if not nil).
// Any other outcome is returned as *ClientError. For 4xx and 5xx responses, its Err is
// *ErrorResponseData decoded from the body, or built from the body when it is not JSON.
func DoRequestAndUnmarshalJSON(client *http.Client, req *http.Request, result interface{}, logger log.FieldLogger) error {
	resp, err := DoRequest(client, req, logger)
	if err != nil {
		return err
	}
	logger = logger.With(log.String("method", req.Method), log.String("uri", req.URL.String()),
		log.Int("status", resp.StatusCode))
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Error("failed to close response body after doing http request", log.Error(closeErr))
		}
	}()

	clientErr := &ClientError{Method: req.Method, URL: req.URL, StatusCode: resp.StatusCode}
	fail := func(msg string, err error) error {
		logger.Error("error "+msg, log.Error(err))
		clientErr.Message, clientErr.Err = msg, err
		return clientErr
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if result == nil {
			return nil
		}
		body, err := readBody(resp, clientErr, logger)
		if err != nil {
			return err
		}
		if err = json.Unmarshal(body, result); err != nil {
			return fail("unmarshaling response", err)
		}
		return nil

	case resp.StatusCode >= 400 && resp.StatusCode < 600:
		body, err := readBody(resp, clientErr, logger)
		if err != nil {
			return err
		}
		apiErr := &ErrorResponseData{}
		if mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mediaType != ContentTypeAppJSON {
			apiErr.Err = &Error{
				Code:    resp.Status,
				Message: http.StatusText(resp.StatusCode) + " received with unexpected Content-Type",
			}
			apiErr.Err.AddDebug("content-type", resp.Header.Get("Content-Type"))
			apiErr.Err.AddDebug("body", string(body[:min(len(body), maxErrorBodyInDebug)]))
		} else if err = json.Unmarshal(body, apiErr); err != nil {
			return fail("unmarshaling error response", err)
		}
		clientErr.Message, clientErr.Err = "error response", apiErr
		return clientErr

	default:
		clientErr.Message = "unexpected status code"
		return clientErr
	}
}

func readBody(resp *http.Response, clientErr *ClientError, logger log.FieldLogger) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Error("error reading response body", log.Error(err))
		clientErr.Message, clientErr.Err = "reading response body", err
		return nil, clientErr
	}
	if len(body) == 0 {
		logger.Error("empty response")
		clientErr.Message = "empty response"
		return nil, clientErr
	}
	return body, nil
}

// NewJSONRequest creates a POST, PUT or PATCH request with data encoded as JSON.
// Call WithContext on the result to bind it to a context.
func NewJSONRequest(method, url string, data interface{}) (*http.Request, error) {
	if data == nil {
		return nil, fmt.Errorf("data cannot be nil")
	}
	if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch {
		return nil, fmt.Errorf("method %s is not allowed for json request", method)
	}
	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", ContentTypeAppJSON)
	return req, nil
}
