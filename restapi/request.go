/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"code.cloudfoundry.org/bytefmt"
)

// RequestBodyTooLargeError is returned when reading a request body limited by SetRequestMaxBodySize
// goes beyond the limit.
type RequestBodyTooLargeError struct {
	MaxSizeBytes uint64
	Err          error
}

func (e *RequestBodyTooLargeError) Error() string { return e.Err.Error() }

func (e *RequestBodyTooLargeError) Unwrap() error { return e.Err }

type limitedBody struct {
	io.ReadCloser
	limit uint64
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		err = &RequestBodyTooLargeError{MaxSizeBytes: b.limit, Err: err}
	}
	return n, err
}

// SetRequestMaxBodySize limits the request body. Reading past the limit fails with *RequestBodyTooLargeError.
func SetRequestMaxBodySize(w http.ResponseWriter, r *http.Request, maxSizeBytes uint64) {
	r.Body = &limitedBody{ReadCloser: http.MaxBytesReader(w, r.Body, int64(maxSizeBytes)), limit: maxSizeBytes}
}

// MalformedRequestError describes a request the handler cannot process.
// The message is safe to send back to the client.
type MalformedRequestError struct {
	HTTPStatusCode int
	Message        string
}

func (e *MalformedRequestError) Error() string { return e.Message }

func newBadRequestError(format string, args ...interface{}) *MalformedRequestError {
	return &MalformedRequestError{HTTPStatusCode: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// NewTooLargeMalformedRequestError creates the 413 MalformedRequestError for the body size limit.
func NewTooLargeMalformedRequestError(maxSizeBytes uint64) *MalformedRequestError {
	return &MalformedRequestError{
		HTTPStatusCode: http.StatusRequestEntityTooLarge,
		Message:        fmt.Sprintf("Request body must not be larger than %s.", bytefmt.ByteSize(maxSizeBytes)),
	}
}

// DecodeRequestJSON decodes a single JSON object from the request body into dst.
// Decoding problems are reported as *MalformedRequestError.
func DecodeRequestJSON(r *http.Request, dst interface{}) error {
	return DecodeRequestJSONStrict(r, dst, false)
}

// DecodeRequestJSONStrict is DecodeRequestJSON that may also reject unknown fields.
// A present Content-Type header must be application/json.
func DecodeRequestJSONStrict(r *http.Request, dst interface{}, disallowUnknownFields bool) error {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return &MalformedRequestError{http.StatusUnsupportedMediaType,
				fmt.Sprintf("failed to parse Content-Type header for request: %s", err)}
		}
		if mediaType != ContentTypeAppJSON {
			return &MalformedRequestError{http.StatusUnsupportedMediaType,
				fmt.Sprintf("Content-Type %q is not supported.", mediaType)}
		}
	}

	dec := json.NewDecoder(r.Body)
	if disallowUnknownFields {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(dst); err != nil {
		return convertDecodeError(err)
	}
	if dec.More() {
		return newBadRequestError("Request body must only contain a single JSON object.")
	}
	return nil
}

func convertDecodeError(err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var tooLargeErr *RequestBodyTooLargeError
	switch {
	case errors.Is(err, io.EOF):
		return newBadRequestError("Request body must not be empty.")
	case errors.Is(err, io.ErrUnexpectedEOF):
		return newBadRequestError("Request body contains badly-formed JSON.")
	case errors.As(err, &syntaxErr):
		return newBadRequestError("Request body contains badly-formed JSON (at position %d).", syntaxErr.Offset)
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return newBadRequestError("Request body contains an invalid value for the %q field (at position %d).",
			typeErr.Field, typeErr.Offset)
	case errors.As(err, &typeErr):
		return newBadRequestError("Request body contains an invalid value of type %q for the field of type %s.",
			typeErr.Value, typeErr.Type)
	case errors.As(err, &tooLargeErr):
		return NewTooLargeMalformedRequestError(tooLargeErr.MaxSizeBytes)
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		return newBadRequestError("Payload does not match the scheme")
	default:
		return err
	}
}
