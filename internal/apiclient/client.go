// Package apiclient is a client for the backend REST API. Every request
// carries the session's bearer token, every failure is routed through one
// AuthErrorHandler, and queries are served from a QueryCache that mutations
// invalidate by resource key.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stackctl/internal/logging"
)

// Client talks to the backend REST API.
type Client struct {
	base    *url.URL
	http    *http.Client
	session Session
	cache   *QueryCache
	auth    *AuthErrorHandler
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its transport is wrapped with the
// bearer interceptor.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = &http.Client{Timeout: hc.Timeout, Transport: hc.Transport}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithNavigator sets where auth failures send the user.
func WithNavigator(nav Navigator) Option {
	return func(c *Client) { c.auth.Navigator = nav }
}

// WithLoginPath sets the login view path (default /login).
func WithLoginPath(path string) Option {
	return func(c *Client) { c.auth.LoginPath = path }
}

// WithCache replaces the query cache.
func WithCache(qc *QueryCache) Option {
	return func(c *Client) { c.cache = qc }
}

// New returns a client for the API at baseURL (e.g. http://localhost:8000/api/v1).
func New(baseURL string, session Session, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api url %q", baseURL)
	}
	if session == nil {
		session = NewMemorySession("")
	}

	c := &Client{
		base:    u,
		http:    &http.Client{Timeout: 30 * time.Second},
		session: session,
		cache:   NewQueryCache(0),
		auth:    &AuthErrorHandler{Session: session, LoginPath: "/login"},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http.Transport = &bearerTransport{base: c.http.Transport, session: session}
	c.auth.OnClear = c.cache.Clear
	return c, nil
}

// Session returns the client's session store.
func (c *Client) Session() Session {
	return c.session
}

// Cache returns the client's query cache.
func (c *Client) Cache() *QueryCache {
	return c.cache
}

// AuthHandler returns the handler every failure goes through.
func (c *Client) AuthHandler() *AuthErrorHandler {
	return c.auth
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

// request is one backend call. Requests are authenticated unless public is
// set; body with contentType sends a prebuilt payload such as a multipart form.
type request struct {
	method      string
	path        string
	query       url.Values
	form        url.Values
	json        interface{}
	body        io.Reader
	contentType string
	public      bool
}

// send performs r and returns the response of a 2xx call. The caller closes
// the body. Authenticated calls without a stored token are not sent.
func (c *Client) send(ctx context.Context, r request, accept string) (*http.Response, error) {
	if !r.public && c.session.Token() == "" {
		return nil, noSession(r.method, r.path)
	}

	target := c.base.String() + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	body := r.body
	contentType := r.contentType
	switch {
	case r.form != nil:
		body = strings.NewReader(r.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case r.json != nil:
		data, err := json.Marshal(r.json)
		if err != nil {
			return nil, fmt.Errorf("%s %s: encode request: %w", r.method, r.path, err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	req.Header.Set("Accept", accept)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	logging.APIDebug("%s %s", r.method, r.path)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, decodeError(resp.StatusCode, r.method, r.path, data)
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, r request, out interface{}) error {
	resp, err := c.send(ctx, r, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", r.method, r.path, err)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", r.method, r.path, err)
	}
	return nil
}

// query serves key from the cache or fetches it. Failures go through the
// auth handler.
func query[T any](ctx context.Context, c *Client, key string, r request) (T, error) {
	if v, ok := c.cache.Get(key); ok {
		if typed, ok := v.(T); ok {
			logging.APIDebug("cache hit %s", key)
			return typed, nil
		}
	}

	var out T
	if err := c.do(ctx, r, &out); err != nil {
		c.auth.Handle(err)
		return out, err
	}
	c.cache.Set(key, out)
	return out, nil
}

// mutate performs a write and invalidates the given resource keys on
// success. Failures go through the auth handler.
func mutate[T any](ctx context.Context, c *Client, r request, invalidate ...string) (T, error) {
	var out T
	if err := c.do(ctx, r, &out); err != nil {
		c.auth.Handle(err)
		return out, err
	}
	for _, key := range invalidate {
		if n := c.cache.Invalidate(key); n > 0 {
			logging.APIDebug("invalidated %d cached %s queries", n, key)
		}
	}
	return out, nil
}
