package apiclient

import (
	"errors"

	"stackctl/internal/logging"
)

// Navigator moves the user to another view.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// AuthErrorHandler is the single place auth failures are handled. On an auth
// failure it clears the stored token and navigates to the login view, once
// per error event: handling the same error again is a no-op.
type AuthErrorHandler struct {
	Session   Session
	Navigator Navigator
	LoginPath string

	// OnClear runs after the token is cleared, e.g. to drop cached queries.
	OnClear func()
}

// Handle reports whether err was an auth failure. Errors that are not auth
// failures pass through untouched. There is no retry.
func (h *AuthErrorHandler) Handle(err error) bool {
	if !IsAuthFailure(err) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && !apiErr.markHandled() {
		return true
	}

	logging.APIWarn("authentication failed, clearing session: %v", err)
	if h.Session != nil {
		if cerr := h.Session.Clear(); cerr != nil {
			logging.APIWarn("failed to clear session: %v", cerr)
		}
	}
	if h.OnClear != nil {
		h.OnClear()
	}
	if h.Navigator != nil {
		path := h.LoginPath
		if path == "" {
			path = "/login"
		}
		h.Navigator.Navigate(path)
	}
	return true
}
