package apiclient

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAuthFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"401", &APIError{Status: http.StatusUnauthorized}, true},
		{"403", &APIError{Status: http.StatusForbidden, Detail: "Not enough permissions"}, true},
		{"inactive user on 400", &APIError{Status: http.StatusBadRequest, Detail: "Inactive user"}, true},
		{"not found", &APIError{Status: http.StatusNotFound, Detail: "File not found"}, false},
		{"server error", &APIError{Status: http.StatusInternalServerError}, false},
		{"wrapped", fmt.Errorf("list: %w", &APIError{Status: http.StatusUnauthorized}), true},
		{"sentinel", fmt.Errorf("me: %w", ErrUnauthenticated), true},
		{"transport", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAuthFailure(tt.err))
		})
	}
}

func TestDecodeError(t *testing.T) {
	e := decodeError(401, "GET", "/users/me", []byte(`{"detail":"Not authenticated"}`))
	assert.Equal(t, "Not authenticated", e.Detail)
	assert.Equal(t, "GET /users/me: 401 Unauthorized: Not authenticated", e.Error())

	e = decodeError(422, "POST", "/functions/", []byte(`{"detail":[{"loc":["body","code"],"msg":"Field required","type":"missing"},{"loc":["query","limit",0],"msg":"bad","type":"x"}]}`))
	assert.Equal(t, "body.code: Field required; query.limit.0: bad", e.Detail)

	e = decodeError(502, "GET", "/files/", []byte("Bad Gateway\n"))
	assert.Equal(t, "Bad Gateway", e.Detail)
}

func TestHandlerIgnoresOtherErrors(t *testing.T) {
	s := NewMemorySession("tok")
	navigated := 0
	h := &AuthErrorHandler{Session: s, Navigator: NavigatorFunc(func(string) { navigated++ })}

	assert.False(t, h.Handle(&APIError{Status: http.StatusNotFound}))
	assert.False(t, h.Handle(nil))
	assert.Equal(t, "tok", s.Token())
	assert.Zero(t, navigated)

	assert.True(t, h.Handle(ErrUnauthenticated))
	assert.Empty(t, s.Token())
	assert.Equal(t, 1, navigated)
}
