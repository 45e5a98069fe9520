/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"net/http"
	"strings"
)

// Error is the body of an error response.
type Error struct {
	Domain  string                 `json:"domain"`
	Code    string                 `json:"code"`
	Message string                 `json:"message,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
	Debug   map[string]interface{} `json:"debug,omitempty"`
}

// Common error codes and messages.
// They are variables so a service may replace them with its own wording.
var (
	ErrCodeInternal         = "internalError"
	ErrCodeNotFound         = "notFound"
	ErrCodeMethodNotAllowed = "methodNotAllowed"
	ErrCodeTooManyRequests  = "tooManyRequests"

	ErrMessageInternal         = "Internal error."
	ErrMessageNotFound         = "Not found."
	ErrMessageMethodNotAllowed = "Method not allowed."
	ErrMessageTooManyRequests  = "Too many requests."
)

// NewError creates an Error.
func NewError(domain, code, message string) *Error {
	return &Error{Domain: domain, Code: code, Message: message}
}

// NewInternalError creates an "internalError" Error for the domain.
func NewInternalError(domain string) *Error {
	return NewError(domain, ErrCodeInternal, ErrMessageInternal)
}

// AddContext attaches a value that helps the API client to handle the error.
func (e *Error) AddContext(field string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = map[string]interface{}{}
	}
	e.Context[field] = value
	return e
}

// AddDebug attaches a value intended for humans investigating the error.
func (e *Error) AddDebug(field string, value interface{}) *Error {
	if e.Debug == nil {
		e.Debug = map[string]interface{}{}
	}
	e.Debug[field] = value
	return e
}

// errorCodeForStatus converts the status text to lower camel case: 413 -> "requestEntityTooLarge".
func errorCodeForStatus(status int) string {
	if status == http.StatusInternalServerError {
		return ErrCodeInternal
	}
	words := strings.FieldsFunc(http.StatusText(status), func(r rune) bool { return r == ' ' || r == '-' })
	for i, w := range words {
		w = strings.ToLower(w)
		if i > 0 && w != "" {
			w = strings.ToUpper(w[:1]) + w[1:]
		}
		words[i] = w
	}
	return strings.Join(words, "")
}
