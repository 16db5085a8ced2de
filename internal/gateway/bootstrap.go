package gateway

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"stackctl/internal/logging"
)

// Admin is the admin API surface the bootstrapper drives.
type Admin interface {
	GetService(ctx context.Context, name string) (*ServiceEntity, error)
	CreateService(ctx context.Context, name, upstreamURL string) (*ServiceEntity, error)
	GetRoute(ctx context.Context, service, name string) (*RouteEntity, error)
	CreateRoute(ctx context.Context, service string, route Route) (*RouteEntity, error)
	ListPlugins(ctx context.Context, service string) ([]PluginEntity, error)
	CreatePlugin(ctx context.Context, service string, plugin Plugin) (*PluginEntity, error)
}

// Outcome is the result of one ensure step.
type Outcome string

const (
	Created  Outcome = "created"
	Existing Outcome = "existing"
	Failed   Outcome = "failed"
)

// Kind names the entity type of a report entry.
type Kind string

const (
	KindService Kind = "service"
	KindRoute   Kind = "route"
	KindPlugin  Kind = "plugin"
)

// Entry records one ensure step.
type Entry struct {
	Kind    Kind
	Service string
	Name    string
	Outcome Outcome
	Err     error
}

// Report is the result of applying a topology. Failures do not abort the
// run, so a report with failures describes a legitimate partial topology.
type Report struct {
	Entries []Entry
}

// Count returns how many entries ended with o.
func (r Report) Count(o Outcome) int {
	n := 0
	for _, e := range r.Entries {
		if e.Outcome == o {
			n++
		}
	}
	return n
}

// Failures returns the failed entries.
func (r Report) Failures() []Entry {
	var out []Entry
	for _, e := range r.Entries {
		if e.Outcome == Failed {
			out = append(out, e)
		}
	}
	return out
}

// OK reports whether every step succeeded.
func (r Report) OK() bool {
	return r.Count(Failed) == 0
}

// Summary returns a one-line summary.
func (r Report) Summary() string {
	return fmt.Sprintf("%d created, %d existing, %d failed", r.Count(Created), r.Count(Existing), r.Count(Failed))
}

// Bootstrapper ensures a topology exists on the gateway.
type Bootstrapper struct {
	Admin Admin
}

// NewBootstrapper returns a Bootstrapper over admin.
func NewBootstrapper(admin Admin) *Bootstrapper {
	return &Bootstrapper{Admin: admin}
}

// EnsureService creates the service unless it already exists. A uniqueness
// conflict on create counts as existing.
func (b *Bootstrapper) EnsureService(ctx context.Context, name, upstreamURL string) (Outcome, error) {
	if _, err := b.Admin.GetService(ctx, name); err == nil {
		logging.GatewayDebug("service %s exists", name)
		return Existing, nil
	} else if !IsNotFound(err) {
		return Failed, fmt.Errorf("lookup service %s: %w", name, err)
	}

	if _, err := b.Admin.CreateService(ctx, name, upstreamURL); err != nil {
		if IsUniqueViolation(err) {
			logging.GatewayDebug("service %s created concurrently", name)
			return Existing, nil
		}
		return Failed, fmt.Errorf("create service %s: %w", name, err)
	}
	logging.Gateway("created service %s -> %s", name, upstreamURL)
	return Created, nil
}

// EnsureRoute creates the route under service unless a route with that name exists.
func (b *Bootstrapper) EnsureRoute(ctx context.Context, service string, route Route) (Outcome, error) {
	if _, err := b.Admin.GetRoute(ctx, service, route.Name); err == nil {
		logging.GatewayDebug("route %s exists", route.Name)
		return Existing, nil
	} else if !IsNotFound(err) {
		return Failed, fmt.Errorf("lookup route %s: %w", route.Name, err)
	}

	if _, err := b.Admin.CreateRoute(ctx, service, route); err != nil {
		if IsUniqueViolation(err) {
			logging.GatewayDebug("route %s created concurrently", route.Name)
			return Existing, nil
		}
		return Failed, fmt.Errorf("create route %s: %w", route.Name, err)
	}
	logging.Gateway("created route %s on %s (paths=%s hosts=%s)", route.Name, service,
		strings.Join(route.Paths, ","), strings.Join(route.Hosts, ","))
	return Created, nil
}

// EnsurePlugin creates the plugin on service unless one with the same name is
// attached. A present plugin with a different config is left untouched.
func (b *Bootstrapper) EnsurePlugin(ctx context.Context, service string, plugin Plugin) (Outcome, error) {
	plugins, err := b.Admin.ListPlugins(ctx, service)
	if err != nil {
		return Failed, fmt.Errorf("list plugins of %s: %w", service, err)
	}
	for _, p := range plugins {
		if p.Name != plugin.Name {
			continue
		}
		if !configSubset(plugin.Config, p.Config) {
			logging.GatewayDebug("plugin %s on %s present with a different config; leaving it", plugin.Name, service)
		}
		return Existing, nil
	}

	if _, err := b.Admin.CreatePlugin(ctx, service, plugin); err != nil {
		if IsUniqueViolation(err) {
			return Existing, nil
		}
		return Failed, fmt.Errorf("create plugin %s on %s: %w", plugin.Name, service, err)
	}
	logging.Gateway("enabled plugin %s on %s", plugin.Name, service)
	return Created, nil
}

// Apply ensures every service, route and plugin of t. Routes and plugins of
// a service that could not be ensured are skipped.
func (b *Bootstrapper) Apply(ctx context.Context, t Topology) Report {
	timer := logging.StartTimer(logging.CategoryGateway, "gateway bootstrap")
	defer timer.Stop()

	var report Report
	record := func(kind Kind, service, name string, o Outcome, err error) {
		if err != nil {
			logging.GatewayWarn("%s %s: %v", kind, name, err)
		}
		report.Entries = append(report.Entries, Entry{Kind: kind, Service: service, Name: name, Outcome: o, Err: err})
	}

	for _, svc := range t.Services {
		if ctx.Err() != nil {
			record(KindService, svc.Name, svc.Name, Failed, ctx.Err())
			continue
		}

		o, err := b.EnsureService(ctx, svc.Name, svc.URL)
		record(KindService, svc.Name, svc.Name, o, err)
		if o == Failed {
			continue
		}

		for _, r := range svc.Routes {
			o, err := b.EnsureRoute(ctx, svc.Name, r)
			record(KindRoute, svc.Name, r.Name, o, err)
		}
		for _, p := range svc.Plugins {
			o, err := b.EnsurePlugin(ctx, svc.Name, p)
			record(KindPlugin, svc.Name, p.Name, o, err)
		}
	}

	logging.Gateway("bootstrap finished: %s", report.Summary())
	return report
}

// configSubset reports whether every key in want has an equal value in got.
// Values are compared after normalizing through fmt so that []string and the
// decoded []interface{} compare equal.
func configSubset(want, got map[string]interface{}) bool {
	for k, w := range want {
		g, ok := got[k]
		if !ok {
			return false
		}
		wm, wIsMap := w.(map[string]interface{})
		gm, gIsMap := g.(map[string]interface{})
		if wIsMap && gIsMap {
			if !configSubset(wm, gm) {
				return false
			}
			continue
		}
		if reflect.DeepEqual(w, g) {
			continue
		}
		if fmt.Sprint(w) != fmt.Sprint(g) {
			return false
		}
	}
	return true
}
