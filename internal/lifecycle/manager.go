package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"stackctl/internal/compose"
	"stackctl/internal/config"
	"stackctl/internal/envfile"
	"stackctl/internal/gateway"
	"stackctl/internal/logging"
	"stackctl/internal/tactile"
)

// Gateway is the control plane step of a start.
type Gateway interface {
	WaitReady(ctx context.Context) error
	Bootstrap(ctx context.Context) (gateway.Report, error)
}

// GatewayFactory builds the control plane for a start. It is called only
// when bootstrap is not skipped.
type GatewayFactory func(cfg *config.Config, root string) (Gateway, error)

// DefaultGatewayFactory builds a gateway.ControlPlane from configuration.
func DefaultGatewayFactory(cfg *config.Config, root string) (Gateway, error) {
	return gateway.NewControlPlane(cfg, root)
}

// Manager runs lifecycle operations against the orchestrator.
type Manager struct {
	Config   *config.Config
	Root     string
	Executor tactile.Executor
	Gateways GatewayFactory // nil means DefaultGatewayFactory
	Stdout   io.Writer      // orchestrator output, optional

	mu       sync.Mutex
	machines map[envfile.Environment]*Machine
	observer TransitionFunc
}

// NewManager returns a Manager using the default gateway factory.
func NewManager(cfg *config.Config, root string, exec tactile.Executor) *Manager {
	return &Manager{
		Config:   cfg,
		Root:     root,
		Executor: exec,
		Gateways: DefaultGatewayFactory,
	}
}

// OnTransition registers an observer for every environment's machine.
func (m *Manager) OnTransition(fn TransitionFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = fn
	for _, mach := range m.machines {
		mach.OnTransition(fn)
	}
}

// Machine returns the state machine of env.
func (m *Manager) Machine(env envfile.Environment) *Machine {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.machines == nil {
		m.machines = make(map[envfile.Environment]*Machine)
	}
	mach, ok := m.machines[env]
	if !ok {
		mach = NewMachine(env)
		if m.observer != nil {
			mach.OnTransition(m.observer)
		}
		m.machines[env] = mach
	}
	return mach
}

// StartOptions controls Start.
type StartOptions struct {
	Env           envfile.Environment
	WithWorkflow  bool
	SkipBootstrap bool
}

// StartResult describes a completed start.
type StartResult struct {
	Env     envfile.Environment
	Project string
	Files   []string

	// Ready is false when the readiness gate timed out and bootstrap ran degraded.
	Ready  bool
	Report *gateway.Report
}

// StopOptions controls Stop.
type StopOptions struct {
	Env          envfile.Environment
	Clean        bool // also remove volumes
	WithWorkflow bool
}

// RestartOptions controls Restart.
type RestartOptions struct {
	Env          envfile.Environment
	Service      string // name or glob
	NoBuild      bool
	WithWorkflow bool
}

// prepare loads and exports the env file and resolves the compose files. It
// runs before any orchestrator call. File values replace values already set
// in the process environment.
func (m *Manager) prepare(env envfile.Environment, withWorkflow bool) (*compose.Orchestrator, error) {
	vars, err := envfile.Load(m.Root, env)
	if err != nil {
		return nil, err
	}
	if err := vars.Export(true); err != nil {
		return nil, err
	}

	var extraEnv []string
	if withWorkflow {
		uid, err := PrepareWorkflow(m.Root)
		if err != nil {
			return nil, err
		}
		extraEnv = append(extraEnv, uid)
	}

	files, err := m.composer().Files(env, withWorkflow)
	if err != nil {
		return nil, err
	}

	return &compose.Orchestrator{
		Executor:   m.Executor,
		Binary:     m.Config.Compose.Binary,
		Subcommand: m.Config.Compose.Subcommand,
		Project:    m.Config.ProjectName(string(env)),
		Files:      files,
		EnvFile:    envfile.Path(m.Root, env),
		Dir:        m.Root,
		Env:        extraEnv,
		Timeout:    m.Config.GetComposeTimeout(),
		Stdout:     m.Stdout,
	}, nil
}

func (m *Manager) composer() *compose.Composer {
	overrides := make(map[envfile.Environment]string, len(m.Config.Compose.Overrides))
	for k, v := range m.Config.Compose.Overrides {
		overrides[envfile.Environment(k)] = v
	}
	return &compose.Composer{
		Root:         m.Root,
		BaseFile:     m.Config.Compose.BaseFile,
		GatewayFile:  m.Config.Compose.GatewayFile,
		WorkflowFile: m.Config.Compose.WorkflowFile,
		Overrides:    overrides,
	}
}

// Start brings an environment up: tear down any previous stack of the same
// project, build and start, wait for the gateway, then bootstrap it.
func (m *Manager) Start(ctx context.Context, opts StartOptions) (*StartResult, error) {
	env, err := envfile.ParseEnvironment(string(opts.Env))
	if err != nil {
		return nil, err
	}
	mach := m.Machine(env)
	if err := mach.Transition(Starting); err != nil {
		return nil, err
	}

	res, err := m.start(ctx, env, opts)
	if err != nil {
		_ = mach.Transition(Stopped)
		return nil, err
	}
	if err := mach.Transition(Running); err != nil {
		return nil, err
	}
	return res, nil
}

func (m *Manager) start(ctx context.Context, env envfile.Environment, opts StartOptions) (*StartResult, error) {
	timer := logging.StartTimer(logging.CategoryLifecycle, "start "+string(env))
	defer timer.Stop()

	orch, err := m.prepare(env, opts.WithWorkflow)
	if err != nil {
		return nil, err
	}
	logging.Lifecycle("starting %s (project %s, %d compose files)", env, orch.Project, len(orch.Files))

	if err := orch.Down(ctx, compose.DownOptions{RemoveOrphans: true}); err != nil {
		logging.LifecycleWarn("teardown of previous %s stack failed, continuing: %v", env, err)
	}

	if err := orch.Up(ctx, compose.UpOptions{Detach: true, Build: true}); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", env, err)
	}

	res := &StartResult{Env: env, Project: orch.Project, Files: orch.Files, Ready: true}
	if opts.SkipBootstrap {
		return res, nil
	}

	factory := m.Gateways
	if factory == nil {
		factory = DefaultGatewayFactory
	}
	gw, err := factory(m.Config, m.Root)
	if err != nil {
		logging.LifecycleWarn("gateway bootstrap skipped: %v", err)
		res.Ready = false
		return res, nil
	}

	if err := gw.WaitReady(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.LifecycleWarn("gateway not ready, bootstrapping anyway: %v", err)
		res.Ready = false
	}

	report, err := gw.Bootstrap(ctx)
	if err != nil {
		logging.LifecycleWarn("gateway bootstrap skipped: %v", err)
		return res, nil
	}
	res.Report = &report
	if report.OK() {
		logging.Lifecycle("gateway bootstrap: %s", report.Summary())
	} else {
		logging.LifecycleWarn("gateway bootstrap incomplete: %s", report.Summary())
	}
	return res, nil
}

// Stop tears an environment down. Clean also removes its volumes.
func (m *Manager) Stop(ctx context.Context, opts StopOptions) error {
	env, err := envfile.ParseEnvironment(string(opts.Env))
	if err != nil {
		return err
	}

	orch, err := m.prepare(env, opts.WithWorkflow)
	if err != nil {
		return err
	}

	mach := m.Machine(env)
	if err := mach.Transition(Stopping); err != nil {
		return err
	}
	defer func() { _ = mach.Transition(Stopped) }()

	logging.Lifecycle("stopping %s (project %s, clean=%v)", env, orch.Project, opts.Clean)
	if err := orch.Down(ctx, compose.DownOptions{RemoveOrphans: true, Volumes: opts.Clean}); err != nil {
		return fmt.Errorf("failed to stop %s: %w", env, err)
	}
	return nil
}

// Restart rebuilds and restarts the services matching opts.Service without
// touching their dependencies. NoBuild restarts the running containers instead.
func (m *Manager) Restart(ctx context.Context, opts RestartOptions) ([]string, error) {
	env, err := envfile.ParseEnvironment(string(opts.Env))
	if err != nil {
		return nil, err
	}
	if opts.Service == "" {
		return nil, errors.New("service name required")
	}

	orch, err := m.prepare(env, opts.WithWorkflow)
	if err != nil {
		return nil, err
	}

	valid, err := orch.Services(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	services, err := compose.MatchServices(valid, opts.Service)
	if err != nil {
		return nil, err
	}

	logging.Lifecycle("restarting %v in %s (build=%v)", services, env, !opts.NoBuild)
	if opts.NoBuild {
		err = orch.Restart(ctx, services...)
	} else {
		err = orch.Up(ctx, compose.UpOptions{Detach: true, NoDeps: true, Build: true, Services: services})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to restart %v: %w", services, err)
	}
	return services, nil
}

// ParseRestartArgs parses `[env] <service>`.
func ParseRestartArgs(args []string) (envfile.Environment, string, error) {
	switch len(args) {
	case 1:
		if envfile.IsEnvironment(args[0]) {
			return "", "", fmt.Errorf("service name required after environment %q", args[0])
		}
		return envfile.Dev, args[0], nil
	case 2:
		env, err := envfile.ParseEnvironment(args[0])
		if err != nil {
			return "", "", err
		}
		return env, args[1], nil
	default:
		return "", "", errors.New("usage: restart [dev|staging|prod] <service>")
	}
}

// PS returns the orchestrator's container table for env.
func (m *Manager) PS(ctx context.Context, env envfile.Environment, withWorkflow bool) (string, error) {
	env, err := envfile.ParseEnvironment(string(env))
	if err != nil {
		return "", err
	}
	orch, err := m.prepare(env, withWorkflow)
	if err != nil {
		return "", err
	}
	return orch.PS(ctx)
}
