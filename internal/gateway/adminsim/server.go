// Package adminsim serves an in-process subset of the Kong admin API backed
// by an in-memory sqlite datastore. Entity names are UNIQUE in the datastore,
// so concurrent or repeated creates produce the same 409 conflicts a real
// control plane returns.
package adminsim

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"stackctl/internal/logging"
)

// Server is a simulated gateway admin API.
type Server struct {
	Router *chi.Mux

	store *store

	mu           sync.Mutex
	unreachable  bool
	notReadyLeft int
	requests     int
}

// Option configures a Server.
type Option func(*Server)

// WithUnreachableDatastore makes /status report the datastore as unreachable.
func WithUnreachableDatastore() Option {
	return func(s *Server) { s.unreachable = true }
}

// WithNotReadyPolls makes the first n /status calls report an unreachable datastore.
func WithNotReadyPolls(n int) Option {
	return func(s *Server) { s.notReadyLeft = n }
}

// New creates a Server with an empty datastore.
func New(opts ...Option) (*Server, error) {
	st, err := openStore(context.Background())
	if err != nil {
		return nil, err
	}
	s := &Server{Router: chi.NewRouter(), store: st}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s, nil
}

// Close releases the datastore.
func (s *Server) Close() error {
	return s.store.close()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests++
	s.mu.Unlock()
	s.Router.ServeHTTP(w, r)
}

// Requests returns the number of requests served.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// SetReachable toggles the datastore flag reported by /status.
func (s *Server) SetReachable(reachable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unreachable = !reachable
}

func (s *Server) routes() {
	s.Router.Use(middleware.RequestID)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(middleware.Timeout(30 * time.Second))

	s.Router.Get("/status", s.handleStatus)

	s.Router.Route("/services", func(r chi.Router) {
		r.Get("/", s.handleListServices)
		r.Post("/", s.handleCreateService)
		r.Route("/{service}", func(r chi.Router) {
			r.Get("/", s.handleGetService)
			r.Get("/routes", s.handleListRoutes)
			r.Post("/routes", s.handleCreateRoute)
			r.Get("/routes/{route}", s.handleGetRoute)
			r.Get("/plugins", s.handleListPlugins)
			r.Post("/plugins", s.handleCreatePlugin)
		})
	})
	s.Router.Get("/routes", s.handleListRoutes)
	s.Router.Get("/routes/{route}", s.handleGetRoute)
	s.Router.Get("/plugins", s.handleListPlugins)

	s.Router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not found"})
	})
	s.Router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "Method not allowed"})
	})
}

type statusResponse struct {
	Database struct {
		Reachable bool `json:"reachable"`
	} `json:"database"`
	Server struct {
		ConnectionsActive int `json:"connections_active"`
		TotalRequests     int `json:"total_requests"`
	} `json:"server"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	reachable := !s.unreachable
	if s.notReadyLeft > 0 {
		s.notReadyLeft--
		reachable = false
	}
	total := s.requests
	s.mu.Unlock()

	var resp statusResponse
	resp.Database.Reachable = reachable
	resp.Server.ConnectionsActive = 1
	resp.Server.TotalRequests = total
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	svcs, err := s.store.services(r.Context())
	if err != nil {
		writeInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page{Data: nonNil(svcs)})
}

func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.lookupService(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

func (s *Server) handleCreateService(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeSchemaViolation(w, map[string]string{"@entity": err.Error()})
		return
	}

	svc := serviceRow{Name: body.str("name")}
	if svc.Name == "" {
		writeSchemaViolation(w, map[string]string{"name": "required field missing"})
		return
	}
	if raw := body.str("url"); raw != "" {
		if err := applyURL(&svc, raw); err != nil {
			writeSchemaViolation(w, map[string]string{"url": err.Error()})
			return
		}
	} else {
		svc.Protocol = orDefault(body.str("protocol"), "http")
		svc.Host = body.str("host")
		port, err := strconv.Atoi(orDefault(body.str("port"), "80"))
		if err != nil {
			writeSchemaViolation(w, map[string]string{"port": "expected an integer"})
			return
		}
		if port < 0 || port > 65535 {
			writeSchemaViolation(w, map[string]string{"port": "value should be between 0 and 65535"})
			return
		}
		svc.Port = port
		svc.Path = body.str("path")
	}
	if svc.Host == "" {
		writeSchemaViolation(w, map[string]string{"host": "required field missing"})
		return
	}

	created, err := s.store.insertService(r.Context(), svc)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	logging.GatewayDebug("adminsim: created service %s", created.Name)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	serviceID := ""
	if chi.URLParam(r, "service") != "" {
		svc, ok := s.lookupService(w, r)
		if !ok {
			return
		}
		serviceID = svc.ID
	}
	routes, err := s.store.routes(r.Context(), serviceID)
	if err != nil {
		writeInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page{Data: nonNil(routes)})
}

func (s *Server) handleGetRoute(w http.ResponseWriter, r *http.Request) {
	serviceID := ""
	if chi.URLParam(r, "service") != "" {
		svc, ok := s.lookupService(w, r)
		if !ok {
			return
		}
		serviceID = svc.ID
	}
	route, err := s.store.route(r.Context(), serviceID, chi.URLParam(r, "route"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

func (s *Server) handleCreateRoute(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.lookupService(w, r)
	if !ok {
		return
	}
	body, err := decodeBody(r)
	if err != nil {
		writeSchemaViolation(w, map[string]string{"@entity": err.Error()})
		return
	}

	route := routeRow{
		Name:         body.str("name"),
		Service:      ref{ID: svc.ID},
		Paths:        body.strs("paths"),
		Hosts:        body.strs("hosts"),
		Methods:      body.strs("methods"),
		StripPath:    body.boolean("strip_path", true),
		PreserveHost: body.boolean("preserve_host", false),
	}
	if len(route.Paths) == 0 && len(route.Hosts) == 0 && len(route.Methods) == 0 {
		writeSchemaViolation(w, map[string]string{
			"@entity": "must set one of 'methods', 'hosts', 'headers', 'paths', 'snis' when 'protocols' is 'http'",
		})
		return
	}

	created, err := s.store.insertRoute(r.Context(), route)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	logging.GatewayDebug("adminsim: created route %s", created.Name)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	serviceID := ""
	if chi.URLParam(r, "service") != "" {
		svc, ok := s.lookupService(w, r)
		if !ok {
			return
		}
		serviceID = svc.ID
	}
	plugins, err := s.store.plugins(r.Context(), serviceID)
	if err != nil {
		writeInternal(w, err)
		return
	}

	size := intParam(r, "size", 100)
	offset := intParam(r, "offset", 0)
	if offset > len(plugins) {
		offset = len(plugins)
	}
	end := offset + size
	if end > len(plugins) {
		end = len(plugins)
	}

	resp := page{Data: nonNil(plugins[offset:end])}
	if end < len(plugins) {
		q := url.Values{}
		q.Set("offset", strconv.Itoa(end))
		q.Set("size", strconv.Itoa(size))
		next := r.URL.Path + "?" + q.Encode()
		resp.Next = &next
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreatePlugin(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.lookupService(w, r)
	if !ok {
		return
	}
	body, err := decodeBody(r)
	if err != nil {
		writeSchemaViolation(w, map[string]string{"@entity": err.Error()})
		return
	}

	plugin := pluginRow{
		Name:    body.str("name"),
		Service: ref{ID: svc.ID},
		Config:  body.object("config"),
		Enabled: body.boolean("enabled", true),
	}
	if plugin.Name == "" {
		writeSchemaViolation(w, map[string]string{"name": "required field missing"})
		return
	}

	created, err := s.store.insertPlugin(r.Context(), plugin)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	logging.GatewayDebug("adminsim: enabled plugin %s on %s", created.Name, svc.Name)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) lookupService(w http.ResponseWriter, r *http.Request) (serviceRow, bool) {
	svc, err := s.store.service(r.Context(), chi.URLParam(r, "service"))
	if err != nil {
		writeStoreError(w, err)
		return serviceRow{}, false
	}
	return svc, true
}

type page struct {
	Data interface{} `json:"data"`
	Next *string     `json:"next"`
}

func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}

type kongError struct {
	Code    int               `json:"code"`
	Name    string            `json:"name"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields"`
}

func writeStoreError(w http.ResponseWriter, err error) {
	var ue *uniqueError
	switch {
	case errors.Is(err, errNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not found"})
	case errors.As(err, &ue):
		fields := make(map[string]string, len(ue.fields))
		for k, v := range ue.fields {
			fields[k] = "already exists with value '" + v + "'"
		}
		writeJSON(w, http.StatusConflict, kongError{
			Code:    5,
			Name:    "unique constraint violation",
			Message: ue.Error(),
			Fields:  fields,
		})
	default:
		writeInternal(w, err)
	}
}

func writeSchemaViolation(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, http.StatusBadRequest, kongError{
		Code:    2,
		Name:    "schema violation",
		Message: "schema violation (" + describeFields(fields) + ")",
		Fields:  fields,
	})
}

func writeInternal(w http.ResponseWriter, err error) {
	logging.GatewayError("adminsim: %v", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "An unexpected error occurred"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func applyURL(svc *serviceRow, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Hostname() == "" {
		return errors.New("missing host in url")
	}
	svc.Protocol = u.Scheme
	svc.Host = u.Hostname()
	svc.Path = u.Path
	switch {
	case u.Port() != "":
		port, err := strconv.Atoi(u.Port())
		if err != nil {
			return errors.New("invalid port in url")
		}
		svc.Port = port
	case u.Scheme == "https":
		svc.Port = 443
	default:
		svc.Port = 80
	}
	return nil
}

func intParam(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	if key == "size" && v == 0 {
		return def
	}
	return v
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
