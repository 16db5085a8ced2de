package compose

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"stackctl/internal/logging"
	"stackctl/internal/tactile"
)

// Orchestrator issues Compose commands for one project through a tactile executor.
type Orchestrator struct {
	Executor   tactile.Executor
	Binary     string // docker, docker-compose
	Subcommand string // "compose" for the docker plugin
	Project    string
	Files      []string
	EnvFile    string
	Dir        string
	Env        []string      // extra KEY=VALUE pairs
	Timeout    time.Duration // per invocation, zero uses the executor default
	Stdout     io.Writer     // live output, optional
}

// CommandError is returned when the orchestrator exits non-zero or is killed.
type CommandError struct {
	Verb     string
	ExitCode int
	Reason   string
	Output   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("compose %s failed", e.Verb)
	if e.Reason != "" {
		msg += ": " + e.Reason
	} else {
		msg += fmt.Sprintf(" with exit code %d", e.ExitCode)
	}
	if tail := lastLines(e.Output, 5); tail != "" {
		msg += "\n" + tail
	}
	return msg
}

// DownOptions controls `down`.
type DownOptions struct {
	Volumes       bool
	RemoveOrphans bool
}

// UpOptions controls `up`.
type UpOptions struct {
	Build    bool
	Detach   bool
	NoDeps   bool
	Services []string
}

// Args builds the full argument list for a Compose verb.
func (o *Orchestrator) Args(verb ...string) []string {
	args := make([]string, 0, len(o.Files)*2+len(verb)+5)
	if o.Subcommand != "" {
		args = append(args, o.Subcommand)
	}
	if o.Project != "" {
		args = append(args, "-p", o.Project)
	}
	for _, f := range o.Files {
		args = append(args, "-f", f)
	}
	if o.EnvFile != "" {
		args = append(args, "--env-file", o.EnvFile)
	}
	return append(args, verb...)
}

// Down tears the project down.
func (o *Orchestrator) Down(ctx context.Context, opts DownOptions) error {
	verb := []string{"down"}
	if opts.RemoveOrphans {
		verb = append(verb, "--remove-orphans")
	}
	if opts.Volumes {
		verb = append(verb, "-v")
	}
	_, err := o.run(ctx, verb, o.Stdout)
	return err
}

// Up brings the project (or the listed services) up.
func (o *Orchestrator) Up(ctx context.Context, opts UpOptions) error {
	verb := []string{"up"}
	if opts.Detach {
		verb = append(verb, "-d")
	}
	if opts.NoDeps {
		verb = append(verb, "--no-deps")
	}
	if opts.Build {
		verb = append(verb, "--build")
	}
	verb = append(verb, opts.Services...)
	_, err := o.run(ctx, verb, o.Stdout)
	return err
}

// Restart restarts running containers without rebuilding.
func (o *Orchestrator) Restart(ctx context.Context, services ...string) error {
	_, err := o.run(ctx, append([]string{"restart"}, services...), o.Stdout)
	return err
}

// Services lists the services of the resolved configuration.
func (o *Orchestrator) Services(ctx context.Context) ([]string, error) {
	out, err := o.run(ctx, []string{"config", "--services"}, nil)
	if err != nil {
		return nil, err
	}
	return ParseServices(out), nil
}

// PS returns the `ps` table for the project.
func (o *Orchestrator) PS(ctx context.Context) (string, error) {
	return o.run(ctx, []string{"ps"}, nil)
}

func (o *Orchestrator) run(ctx context.Context, verb []string, stream io.Writer) (string, error) {
	cmd := tactile.Command{
		Binary:           o.Binary,
		Arguments:        o.Args(verb...),
		WorkingDirectory: o.Dir,
		Environment:      o.Env,
		Stream:           stream,
	}
	if o.Timeout > 0 {
		cmd.Limits = &tactile.ResourceLimits{TimeoutMs: o.Timeout.Milliseconds()}
	}

	logging.Compose("%s %s", o.Project, strings.Join(verb, " "))
	timer := logging.StartTimer(logging.CategoryCompose, "compose "+verb[0])
	defer timer.Stop()

	res, err := o.Executor.Execute(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("compose %s: %w", verb[0], err)
	}
	if res.IsError() {
		return "", fmt.Errorf("compose %s: %s", verb[0], res.Error)
	}
	if !res.OK() {
		return res.Stdout, &CommandError{
			Verb:     verb[0],
			ExitCode: res.ExitCode,
			Reason:   res.KillReason,
			Output:   res.Output(),
		}
	}
	return res.Stdout, nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
