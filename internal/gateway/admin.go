package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"stackctl/internal/logging"
)

// Kong error codes reported in admin API error bodies.
const (
	CodeUniqueViolation = 5
	CodeNotFound        = 6
)

// AdminError is a non-2xx admin API response decoded structurally.
type AdminError struct {
	Status  int               `json:"-"`
	Code    int               `json:"code"`
	Name    string            `json:"name"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"-"`
	Method  string            `json:"-"`
	Path    string            `json:"-"`
}

func (e *AdminError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("gateway admin %s %s: %d %s", e.Method, e.Path, e.Status, msg)
}

// IsUniqueViolation reports whether err is an admin API uniqueness conflict.
func IsUniqueViolation(err error) bool {
	var ae *AdminError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.Status == http.StatusConflict || ae.Code == CodeUniqueViolation
}

// IsNotFound reports whether err is an admin API 404.
func IsNotFound(err error) bool {
	var ae *AdminError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.Status == http.StatusNotFound || ae.Code == CodeNotFound
}

// EntityRef is a foreign key reference such as a route's service.
type EntityRef struct {
	ID string `json:"id"`
}

// ServiceEntity is a service as stored by the gateway.
type ServiceEntity struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Protocol string `json:"protocol"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Path     string `json:"path,omitempty"`
}

// RouteEntity is a route as stored by the gateway.
type RouteEntity struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Paths        []string   `json:"paths"`
	Hosts        []string   `json:"hosts"`
	Methods      []string   `json:"methods"`
	StripPath    bool       `json:"strip_path"`
	PreserveHost bool       `json:"preserve_host"`
	Service      *EntityRef `json:"service"`
}

// PluginEntity is a plugin as stored by the gateway.
type PluginEntity struct {
	ID      string                 `json:"id"`
	Name    string                 `json:"name"`
	Enabled bool                   `json:"enabled"`
	Config  map[string]interface{} `json:"config"`
	Service *EntityRef             `json:"service"`
}

type pluginPage struct {
	Data []PluginEntity `json:"data"`
	Next *string        `json:"next"`
}

// AdminClient talks to the gateway admin API. Writes are form-encoded.
type AdminClient struct {
	base *url.URL
	http *http.Client
}

// AdminOption configures an AdminClient.
type AdminOption func(*AdminClient)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) AdminOption {
	return func(a *AdminClient) { a.http = c }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) AdminOption {
	return func(a *AdminClient) { a.http = &http.Client{Timeout: d, Transport: a.http.Transport} }
}

// NewAdminClient returns a client for the admin API at baseURL.
func NewAdminClient(baseURL string, opts ...AdminOption) (*AdminClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid gateway admin url %q", baseURL)
	}
	c := &AdminClient{base: u, http: &http.Client{Timeout: 10 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the admin API base URL.
func (c *AdminClient) BaseURL() string {
	return c.base.String()
}

// Status returns the decoded /status document.
func (c *AdminClient) Status(ctx context.Context) (interface{}, error) {
	var doc interface{}
	if err := c.do(ctx, http.MethodGet, "/status", nil, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// GetService fetches a service by name.
func (c *AdminClient) GetService(ctx context.Context, name string) (*ServiceEntity, error) {
	var s ServiceEntity
	if err := c.do(ctx, http.MethodGet, "/services/"+url.PathEscape(name), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateService creates a service pointing at upstreamURL.
func (c *AdminClient) CreateService(ctx context.Context, name, upstreamURL string) (*ServiceEntity, error) {
	form := url.Values{}
	form.Set("name", name)
	form.Set("url", upstreamURL)

	var s ServiceEntity
	if err := c.do(ctx, http.MethodPost, "/services", form, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetRoute fetches a route by name under a service.
func (c *AdminClient) GetRoute(ctx context.Context, service, name string) (*RouteEntity, error) {
	var r RouteEntity
	path := "/services/" + url.PathEscape(service) + "/routes/" + url.PathEscape(name)
	if err := c.do(ctx, http.MethodGet, path, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRoute creates a route under a service.
func (c *AdminClient) CreateRoute(ctx context.Context, service string, route Route) (*RouteEntity, error) {
	form := url.Values{}
	form.Set("name", route.Name)
	for _, p := range route.Paths {
		form.Add("paths[]", p)
	}
	for _, h := range route.Hosts {
		form.Add("hosts[]", h)
	}
	for _, m := range route.Methods {
		form.Add("methods[]", m)
	}
	form.Set("strip_path", fmt.Sprint(route.StripPath))
	form.Set("preserve_host", fmt.Sprint(route.PreserveHost))

	var r RouteEntity
	if err := c.do(ctx, http.MethodPost, "/services/"+url.PathEscape(service)+"/routes", form, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListPlugins returns every plugin attached to a service, following pagination.
func (c *AdminClient) ListPlugins(ctx context.Context, service string) ([]PluginEntity, error) {
	var all []PluginEntity
	path := "/services/" + url.PathEscape(service) + "/plugins"
	for page := 0; path != ""; page++ {
		if page > 1000 {
			return nil, fmt.Errorf("plugin listing for %s did not terminate", service)
		}
		var p pluginPage
		if err := c.do(ctx, http.MethodGet, path, nil, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Data...)
		path = ""
		if p.Next != nil && *p.Next != "" {
			path = c.relative(*p.Next)
		}
	}
	return all, nil
}

// CreatePlugin attaches a plugin to a service.
func (c *AdminClient) CreatePlugin(ctx context.Context, service string, plugin Plugin) (*PluginEntity, error) {
	form := url.Values{}
	form.Set("name", plugin.Name)
	encodeConfig(form, "config", plugin.Config)

	var p PluginEntity
	if err := c.do(ctx, http.MethodPost, "/services/"+url.PathEscape(service)+"/plugins", form, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// relative strips the base URL from an absolute "next" link.
func (c *AdminClient) relative(next string) string {
	if u, err := url.Parse(next); err == nil && u.IsAbs() {
		if u.RawQuery != "" {
			return u.Path + "?" + u.RawQuery
		}
		return u.Path
	}
	return next
}

func (c *AdminClient) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("gateway admin %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	logging.GatewayDebug("%s %s", method, path)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway admin %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("gateway admin %s %s: read body: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAdminError(resp.StatusCode, method, path, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("gateway admin %s %s: decode response: %w", method, path, err)
	}
	return nil
}

func decodeAdminError(status int, method, path string, data []byte) error {
	ae := &AdminError{Status: status, Method: method, Path: path}
	var raw struct {
		Code    int                    `json:"code"`
		Name    string                 `json:"name"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields"`
	}
	if err := json.Unmarshal(data, &raw); err == nil {
		ae.Code = raw.Code
		ae.Name = raw.Name
		ae.Message = raw.Message
		if len(raw.Fields) > 0 {
			ae.Fields = make(map[string]string, len(raw.Fields))
			for k, v := range raw.Fields {
				ae.Fields[k] = fmt.Sprint(v)
			}
		}
	} else {
		ae.Message = strings.TrimSpace(string(data))
	}
	return ae
}

// encodeConfig flattens a plugin config into Kong's form notation:
// nested keys join with ".", arrays repeat the key with a "[]" suffix.
func encodeConfig(form url.Values, prefix string, cfg map[string]interface{}) {
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		key := prefix + "." + k
		switch v := cfg[k].(type) {
		case map[string]interface{}:
			encodeConfig(form, key, v)
		case []string:
			for _, item := range v {
				form.Add(key+"[]", item)
			}
		case []interface{}:
			for _, item := range v {
				form.Add(key+"[]", fmt.Sprint(item))
			}
		case nil:
		default:
			form.Set(key, fmt.Sprint(v))
		}
	}
}
