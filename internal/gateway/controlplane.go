package gateway

import (
	"context"

	"stackctl/internal/config"
	"stackctl/internal/logging"
)

// ControlPlane bundles the admin client, readiness gate and bootstrapper
// configured from stackctl.yaml.
type ControlPlane struct {
	Client       *AdminClient
	Readiness    *Readiness
	Bootstrapper *Bootstrapper

	// TopologyFile replaces DefaultTopology when set.
	TopologyFile string
}

// NewControlPlane builds a ControlPlane from configuration. Relative
// topology paths resolve against root.
func NewControlPlane(cfg *config.Config, root string) (*ControlPlane, error) {
	client, err := NewAdminClient(cfg.Gateway.AdminURL, WithTimeout(cfg.GetRequestTimeout()))
	if err != nil {
		return nil, err
	}
	return &ControlPlane{
		Client: client,
		Readiness: &Readiness{
			Client:   client,
			Attempts: cfg.Gateway.ReadyAttempts,
			Interval: cfg.GetReadyInterval(),
		},
		Bootstrapper: NewBootstrapper(client),
		TopologyFile: config.ResolvePath(root, cfg.Gateway.TopologyFile),
	}, nil
}

// WaitReady blocks until the datastore is reachable or attempts run out.
func (cp *ControlPlane) WaitReady(ctx context.Context) error {
	return cp.Readiness.Wait(ctx)
}

// Topology returns the configured topology.
func (cp *ControlPlane) Topology() (Topology, error) {
	if cp.TopologyFile == "" {
		return DefaultTopology(), nil
	}
	t, err := LoadTopology(cp.TopologyFile)
	if err != nil {
		return Topology{}, err
	}
	logging.GatewayDebug("using topology from %s", cp.TopologyFile)
	return t, nil
}

// Bootstrap applies the configured topology.
func (cp *ControlPlane) Bootstrap(ctx context.Context) (Report, error) {
	t, err := cp.Topology()
	if err != nil {
		return Report{}, err
	}
	return cp.Bootstrapper.Apply(ctx, t), nil
}
