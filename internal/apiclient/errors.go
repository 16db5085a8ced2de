package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
)

// ErrUnauthenticated is wrapped by the error of a request that needs a session
// when none is stored. Such requests are never sent.
var ErrUnauthenticated = errors.New("not authenticated")

// authDetails are the backend messages that mean the credentials are unusable
// regardless of status code.
var authDetails = map[string]bool{
	"Not authenticated":              true,
	"Could not validate credentials": true,
	"Inactive user":                  true,
}

// APIError is a non-2xx backend response.
type APIError struct {
	Status int
	Detail string
	Method string
	Path   string

	cause   error
	handled atomic.Bool
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap returns ErrUnauthenticated for requests refused before sending.
func (e *APIError) Unwrap() error {
	return e.cause
}

// noSession is the error for an authenticated request made without a token.
func noSession(method, path string) *APIError {
	return &APIError{
		Status: http.StatusUnauthorized,
		Detail: "Not authenticated",
		Method: method,
		Path:   path,
		cause:  ErrUnauthenticated,
	}
}

// markHandled reports whether this call is the first to handle the error.
func (e *APIError) markHandled() bool {
	return e.handled.CompareAndSwap(false, true)
}

// validationIssue is one entry of a 422 detail list.
type validationIssue struct {
	Loc  []interface{} `json:"loc"`
	Msg  string        `json:"msg"`
	Type string        `json:"type"`
}

// decodeError builds an APIError from a `{"detail": ...}` body, where detail
// is either a string or a list of validation issues.
func decodeError(status int, method, path string, body []byte) *APIError {
	e := &APIError{Status: status, Method: method, Path: path}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		e.Detail = strings.TrimSpace(string(body))
		return e
	}

	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err == nil {
		e.Detail = s
		return e
	}

	var issues []validationIssue
	if err := json.Unmarshal(envelope.Detail, &issues); err == nil {
		parts := make([]string, 0, len(issues))
		for _, is := range issues {
			loc := make([]string, 0, len(is.Loc))
			for _, l := range is.Loc {
				loc = append(loc, fmt.Sprint(l))
			}
			parts = append(parts, strings.Join(loc, ".")+": "+is.Msg)
		}
		e.Detail = strings.Join(parts, "; ")
		return e
	}

	e.Detail = string(envelope.Detail)
	return e
}

// IsAuthFailure reports whether err means the stored credentials are unusable.
func IsAuthFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnauthenticated) {
		return true
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return authDetails[apiErr.Detail]
}

// IsNotFound reports a 404 response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
