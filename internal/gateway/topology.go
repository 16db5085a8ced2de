// Package gateway drives the Kong admin API: it waits for the control plane to
// report a reachable datastore, then ensures a declared set of upstream
// services, routes and plugins exists. Bootstrap is create-if-absent and
// never updates in place, so running it repeatedly converges on the same set.
package gateway

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Route is a path/host match rule attached to a service.
type Route struct {
	Name         string   `yaml:"name" json:"name"`
	Paths        []string `yaml:"paths,omitempty" json:"paths,omitempty"`
	Hosts        []string `yaml:"hosts,omitempty" json:"hosts,omitempty"`
	Methods      []string `yaml:"methods,omitempty" json:"methods,omitempty"`
	StripPath    bool     `yaml:"strip_path" json:"strip_path"`
	PreserveHost bool     `yaml:"preserve_host" json:"preserve_host"`
}

// Plugin is a named plugin with its configuration.
type Plugin struct {
	Name   string                 `yaml:"name" json:"name"`
	Config map[string]interface{} `yaml:"config,omitempty" json:"config,omitempty"`
}

// Service is an upstream the gateway proxies to.
type Service struct {
	Name    string   `yaml:"name" json:"name"`
	URL     string   `yaml:"url" json:"url"`
	Routes  []Route  `yaml:"routes,omitempty" json:"routes,omitempty"`
	Plugins []Plugin `yaml:"plugins,omitempty" json:"plugins,omitempty"`
}

// Topology is the desired gateway configuration.
type Topology struct {
	Services []Service `yaml:"services" json:"services"`
}

// CORSOrigins are the browser origins allowed to call the API through the gateway.
var CORSOrigins = []string{
	"http://localhost",
	"http://localhost:5173",
	"http://localhost:8000",
	"http://dashboard.localhost",
}

// DefaultTopology returns the built-in topology for the scaffold's services.
func DefaultTopology() Topology {
	return Topology{Services: []Service{
		{
			Name: "backend",
			URL:  "http://backend:8000",
			Routes: []Route{
				{Name: "backend-api", Paths: []string{"/api"}},
				{Name: "backend-docs", Paths: []string{"/docs", "/redoc", "/openapi.json"}},
			},
			Plugins: []Plugin{{
				Name: "cors",
				Config: map[string]interface{}{
					"origins":         CORSOrigins,
					"methods":         []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
					"headers":         []string{"Accept", "Authorization", "Content-Type", "Origin"},
					"exposed_headers": []string{"Content-Disposition"},
					"credentials":     true,
					"max_age":         3600,
				},
			}},
		},
		{
			Name:   "frontend",
			URL:    "http://frontend:80",
			Routes: []Route{{Name: "frontend", Paths: []string{"/"}}},
		},
		{
			Name:   "storage",
			URL:    "http://minio:9000",
			Routes: []Route{{Name: "storage", Paths: []string{"/storage"}, StripPath: true}},
		},
		{
			Name:   "adminer",
			URL:    "http://adminer:8080",
			Routes: []Route{{Name: "adminer", Hosts: []string{"adminer.localhost"}}},
		},
		{
			Name:   "mailcatcher",
			URL:    "http://mailcatcher:1080",
			Routes: []Route{{Name: "mailcatcher", Hosts: []string{"mail.localhost"}}},
		},
	}}
}

// LoadTopology reads a YAML topology file and validates it.
func LoadTopology(path string) (Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Topology{}, fmt.Errorf("failed to read topology: %w", err)
	}
	var t Topology
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Topology{}, fmt.Errorf("failed to parse topology %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return Topology{}, fmt.Errorf("invalid topology %s: %w", path, err)
	}
	return t, nil
}

// Validate checks names are unique, URLs parse and every route matches something.
func (t Topology) Validate() error {
	if len(t.Services) == 0 {
		return fmt.Errorf("no services declared")
	}
	services := make(map[string]bool)
	routes := make(map[string]bool)
	for _, s := range t.Services {
		if s.Name == "" {
			return fmt.Errorf("service with url %q has no name", s.URL)
		}
		if services[s.Name] {
			return fmt.Errorf("duplicate service %q", s.Name)
		}
		services[s.Name] = true

		if s.URL == "" {
			return fmt.Errorf("service %q: url is required", s.Name)
		}
		u, err := url.Parse(s.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("service %q: invalid url %q", s.Name, s.URL)
		}

		for _, r := range s.Routes {
			if r.Name == "" {
				return fmt.Errorf("service %q: route without name", s.Name)
			}
			if routes[r.Name] {
				return fmt.Errorf("duplicate route %q", r.Name)
			}
			routes[r.Name] = true
			if len(r.Paths) == 0 && len(r.Hosts) == 0 {
				return fmt.Errorf("route %q: needs paths or hosts", r.Name)
			}
		}

		plugins := make(map[string]bool)
		for _, p := range s.Plugins {
			if p.Name == "" {
				return fmt.Errorf("service %q: plugin without name", s.Name)
			}
			if plugins[p.Name] {
				return fmt.Errorf("service %q: duplicate plugin %q", s.Name, p.Name)
			}
			plugins[p.Name] = true
		}
	}
	return nil
}

// Service returns the named service, if declared.
func (t Topology) Service(name string) (Service, bool) {
	for _, s := range t.Services {
		if s.Name == name {
			return s, true
		}
	}
	return Service{}, false
}
