// Package endpoints lists the stack's well-known endpoints and probes them.
package endpoints

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"stackctl/internal/logging"
)

// Endpoint is a published port of the stack.
type Endpoint struct {
	Name     string
	Port     int
	Path     string // probe path, "/" when empty
	Workflow bool   // only published with the workflow add-on
}

// URL returns the endpoint URL on host.
func (e Endpoint) URL(host string) string {
	path := e.Path
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("http://%s:%d%s", host, e.Port, path)
}

var defaults = []Endpoint{
	{Name: "Gateway", Port: 8000, Path: "/"},
	{Name: "Gateway admin API", Port: 8001, Path: "/status"},
	{Name: "Gateway UI", Port: 1337, Path: "/"},
	{Name: "Frontend (dev server)", Port: 5173, Path: "/"},
	{Name: "Database admin", Port: 8080, Path: "/"},
	{Name: "Mail catcher", Port: 1080, Path: "/"},
	{Name: "Workflow UI", Port: 9090, Path: "/health", Workflow: true},
	{Name: "Workflow monitor", Port: 5555, Path: "/", Workflow: true},
}

// Defaults returns the stack's endpoints, including the workflow add-on's
// when withWorkflow is set.
func Defaults(withWorkflow bool) []Endpoint {
	out := make([]Endpoint, 0, len(defaults))
	for _, e := range defaults {
		if e.Workflow && !withWorkflow {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Result is the outcome of probing one endpoint. Any HTTP response counts as
// up; Status carries its code.
type Result struct {
	Endpoint Endpoint
	Up       bool
	Status   int
	Latency  time.Duration
	Err      error
}

// Prober probes endpoints over HTTP.
type Prober struct {
	Client      *http.Client
	Concurrency int
}

// Probe checks every endpoint on host concurrently. Results keep the order
// of eps. Probe failures are reported per result, never as an error.
func Probe(ctx context.Context, host string, eps []Endpoint, timeout time.Duration) []Result {
	p := &Prober{Client: &http.Client{Timeout: timeout}}
	return p.Probe(ctx, host, eps)
}

// Probe checks every endpoint on host concurrently.
func (p *Prober) Probe(ctx context.Context, host string, eps []Endpoint) []Result {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	results := make([]Result, len(eps))

	eg, egCtx := errgroup.WithContext(ctx)
	if p.Concurrency > 0 {
		eg.SetLimit(p.Concurrency)
	}
	for i, ep := range eps {
		i, ep := i, ep
		eg.Go(func() error {
			results[i] = probeOne(egCtx, client, host, ep)
			return nil
		})
	}
	_ = eg.Wait()

	up := 0
	for _, r := range results {
		if r.Up {
			up++
		}
	}
	logging.ProbeDebug("probed %d endpoints on %s: %d up", len(eps), host, up)
	return results
}

func probeOne(ctx context.Context, client *http.Client, host string, ep Endpoint) Result {
	res := Result{Endpoint: ep}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.URL(host), nil)
	if err != nil {
		res.Err = err
		return res
	}

	start := time.Now()
	resp, err := client.Do(req)
	res.Latency = time.Since(start)
	if err != nil {
		res.Err = err
		logging.ProbeDebug("%s (%d) down: %v", ep.Name, ep.Port, err)
		return res
	}
	resp.Body.Close()

	res.Up = true
	res.Status = resp.StatusCode
	return res
}

// Markdown renders the endpoints on host as a markdown list.
func Markdown(host string, eps []Endpoint) string {
	var sb strings.Builder
	sb.WriteString("## Endpoints\n\n")
	for _, e := range eps {
		fmt.Fprintf(&sb, "- **%s**: %s\n", e.Name, e.URL(host))
	}
	return sb.String()
}
