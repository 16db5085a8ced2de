package adminsim

import (
	"context"
	"fmt"
	"sort"
)

// RouteState is a route as seen in a Snapshot.
type RouteState struct {
	Name      string
	Paths     []string
	Hosts     []string
	StripPath bool
}

// ServiceState is a service with its routes and plugin names.
type ServiceState struct {
	Name    string
	URL     string
	Routes  []RouteState
	Plugins []string
}

// Snapshot returns the datastore contents without ids or timestamps, sorted
// by name, so two snapshots of the same end state compare equal.
func (s *Server) Snapshot(ctx context.Context) ([]ServiceState, error) {
	svcs, err := s.store.services(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]ServiceState, 0, len(svcs))
	for _, svc := range svcs {
		state := ServiceState{Name: svc.Name, URL: serviceURL(svc)}

		routes, err := s.store.routes(ctx, svc.ID)
		if err != nil {
			return nil, err
		}
		for _, r := range routes {
			state.Routes = append(state.Routes, RouteState{
				Name:      r.Name,
				Paths:     r.Paths,
				Hosts:     r.Hosts,
				StripPath: r.StripPath,
			})
		}

		plugins, err := s.store.plugins(ctx, svc.ID)
		if err != nil {
			return nil, err
		}
		for _, p := range plugins {
			state.Plugins = append(state.Plugins, p.Name)
		}
		sort.Strings(state.Plugins)

		out = append(out, state)
	}
	return out, nil
}

func serviceURL(svc serviceRow) string {
	return fmt.Sprintf("%s://%s:%d%s", svc.Protocol, svc.Host, svc.Port, svc.Path)
}
