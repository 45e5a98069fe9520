/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/acronis/go-resolvekit/log"
)

// ContentTypeAppJSON is the MIME type of JSON bodies.
const ContentTypeAppJSON = "application/json"

// ErrorResponseData is the envelope of an error response: {"error": {...}}.
type ErrorResponseData struct {
	Err *Error `json:"error"`
}

func (e *ErrorResponseData) Error() string {
	return fmt.Sprintf("HTTP error occurs: %v", e.Err)
}

// marshalJSON encodes v without HTML escaping and without the trailing newline.
func marshalJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// RespondJSON writes respData as JSON with the 200 status code.
func RespondJSON(rw http.ResponseWriter, respData interface{}, logger log.FieldLogger) {
	RespondCodeAndJSON(rw, http.StatusOK, respData, logger)
}

// RespondCodeAndJSON writes respData as JSON with the status code.
// Content-Type is set to application/json unless the handler has set it already.
// A nil respData produces an empty body.
func RespondCodeAndJSON(rw http.ResponseWriter, statusCode int, respData interface{}, logger log.FieldLogger) {
	if respData == nil {
		rw.WriteHeader(statusCode)
		return
	}
	body, err := marshalJSON(respData)
	if err != nil {
		logError(logger, "failed to marshal response body", err)
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	if rw.Header().Get("Content-Type") == "" {
		rw.Header().Set("Content-Type", ContentTypeAppJSON)
	}
	rw.WriteHeader(statusCode)
	if _, err = rw.Write(body); err != nil {
		logError(logger, "failed to write response body", err)
	}
}

// RespondError writes the error wrapped into ErrorResponseData.
// The error is logged and counted (see MustRegisterErrorMetrics).
func RespondError(rw http.ResponseWriter, httpStatusCode int, err *Error, logger log.FieldLogger) {
	if logger != nil {
		fields := []log.Field{log.String("error_code", err.Code), log.String("error_message", err.Message)}
		if len(err.Context) != 0 {
			keys := make([]string, 0, len(err.Context))
			for k := range err.Context {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			ctxLines := make([]string, len(keys))
			for i, k := range keys {
				ctxLines[i] = fmt.Sprintf("%s: %v", k, err.Context[k])
			}
			fields = append(fields, log.Strings("error_context", ctxLines))
		}
		logger.Error("error in response", fields...)
	}
	countResponseError(err)
	RespondCodeAndJSON(rw, httpStatusCode, ErrorResponseData{Err: err}, logger)
}

// RespondInternalError responds with 500 and the "internalError" code.
func RespondInternalError(rw http.ResponseWriter, domain string, logger log.FieldLogger) {
	RespondError(rw, http.StatusInternalServerError, NewInternalError(domain), logger)
}

// RespondTooManyRequests responds with 429.
// A positive retryAfter is sent in the Retry-After header as whole seconds, rounded up.
func RespondTooManyRequests(rw http.ResponseWriter, domain string, retryAfter time.Duration, logger log.FieldLogger) {
	if retryAfter > 0 {
		secs := (retryAfter + time.Second - 1) / time.Second
		rw.Header().Set("Retry-After", strconv.FormatInt(int64(secs), 10))
	}
	RespondError(rw, http.StatusTooManyRequests, NewError(domain, ErrCodeTooManyRequests, ErrMessageTooManyRequests), logger)
}

// RespondMalformedRequestError responds with the status of reqErr.
// The error code is derived from the status text, e.g. "badRequest".
func RespondMalformedRequestError(rw http.ResponseWriter, domain string, reqErr *MalformedRequestError, logger log.FieldLogger) {
	RespondError(rw, reqErr.HTTPStatusCode, NewError(domain, errorCodeForStatus(reqErr.HTTPStatusCode), reqErr.Message), logger)
}

// RespondMalformedRequestOrInternalError responds with RespondMalformedRequestError
// if err is a *MalformedRequestError, and with RespondInternalError otherwise.
func RespondMalformedRequestOrInternalError(rw http.ResponseWriter, domain string, err error, logger log.FieldLogger) {
	var reqErr *MalformedRequestError
	if errors.As(err, &reqErr) {
		RespondMalformedRequestError(rw, domain, reqErr, logger)
		return
	}
	RespondInternalError(rw, domain, logger)
}

func logError(logger log.FieldLogger, msg string, err error) {
	if logger != nil {
		logger.Error(msg, log.Error(err))
	}
}
