package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"stackctl/cmd/stackctl/ui"
	"stackctl/internal/endpoints"
	"stackctl/internal/envfile"
	"stackctl/internal/gateway"
	"stackctl/internal/lifecycle"
)

var (
	withWorkflow  bool
	skipBootstrap bool
	cleanVolumes  bool
	noBuild       bool
)

// newManager is replaced in tests.
var newManager = func() *lifecycle.Manager {
	m := lifecycle.NewManager(cfg, workspace, newExecutor())
	m.Stdout = rootCmd.OutOrStdout()
	return m
}

var startCmd = &cobra.Command{
	Use:   "start [dev|staging|prod]",
	Short: "Build and start an environment",
	Long: `Tears down any previous stack of the same project, builds and starts the
services, waits for the gateway and bootstraps its services, routes and plugins.

The environment defaults to dev.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop [dev|staging|prod]",
	Short: "Stop an environment",
	Long: `Stops the environment's containers and removes orphans. With --clean the
named volumes are removed too, which deletes the databases.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStop,
}

var restartCmd = &cobra.Command{
	Use:   "restart [dev|staging|prod] <service>",
	Short: "Rebuild and restart one service",
	Long: `Rebuilds and restarts a service without touching its dependencies.
The service may be a glob such as "airflow-*".

Examples:
  stackctl restart backend
  stackctl restart prod frontend --no-build`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRestart,
}

func init() {
	startCmd.Flags().BoolVar(&withWorkflow, "with-airflow", false, "Include the Airflow add-on")
	startCmd.Flags().BoolVar(&skipBootstrap, "skip-bootstrap", false, "Do not bootstrap the gateway")

	stopCmd.Flags().BoolVar(&withWorkflow, "with-airflow", false, "Include the Airflow add-on")
	stopCmd.Flags().BoolVar(&cleanVolumes, "clean", false, "Also remove volumes")

	restartCmd.Flags().BoolVar(&withWorkflow, "with-airflow", false, "Include the Airflow add-on")
	restartCmd.Flags().BoolVar(&noBuild, "no-build", false, "Restart the running container instead of rebuilding")
}

func runStart(cmd *cobra.Command, args []string) error {
	env, err := parseEnvArg(cmd, args)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	styles := ui.DefaultStyles()
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, styles.Badge.Render(string(env))+" "+styles.Subtitle.Render("tearing down, building and starting"))

	res, err := newManager().Start(ctx, lifecycle.StartOptions{
		Env:           env,
		WithWorkflow:  withWorkflow,
		SkipBootstrap: skipBootstrap,
	})
	if err != nil {
		return configError(cmd, err)
	}

	if !res.Ready {
		fmt.Fprintln(out, styles.Warning.Render("gateway did not report ready; bootstrap ran degraded"))
	}
	if res.Report != nil {
		printReport(cmd, *res.Report)
	}
	fmt.Fprintln(out, styles.Success.Render(fmt.Sprintf("%s is running (project %s)", env, res.Project)))
	fmt.Fprintln(out, renderMarkdown(endpoints.Markdown("localhost", endpoints.Defaults(withWorkflow))))
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	env, err := parseEnvArg(cmd, args)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	if err := newManager().Stop(ctx, lifecycle.StopOptions{Env: env, Clean: cleanVolumes, WithWorkflow: withWorkflow}); err != nil {
		return configError(cmd, err)
	}
	styles := ui.DefaultStyles()
	msg := fmt.Sprintf("%s stopped", env)
	if cleanVolumes {
		msg += " and volumes removed"
	}
	fmt.Fprintln(cmd.OutOrStdout(), styles.Success.Render(msg))
	return nil
}

func runRestart(cmd *cobra.Command, args []string) error {
	env, service, err := lifecycle.ParseRestartArgs(args)
	if err != nil {
		return usageError(cmd, err)
	}
	ctx, cancel := signalContext()
	defer cancel()

	services, err := newManager().Restart(ctx, lifecycle.RestartOptions{
		Env:          env,
		Service:      service,
		NoBuild:      noBuild,
		WithWorkflow: withWorkflow,
	})
	if err != nil {
		return configError(cmd, err)
	}
	styles := ui.DefaultStyles()
	for _, s := range services {
		fmt.Fprintln(cmd.OutOrStdout(), styles.Success.Render(fmt.Sprintf("%s restarted in %s", s, env)))
	}
	return nil
}

// configError adds the usage line to configuration errors.
func configError(cmd *cobra.Command, err error) error {
	if errors.Is(err, envfile.ErrMissingEnvFile) || errors.Is(err, envfile.ErrInvalidEnvironment) {
		return usageError(cmd, err)
	}
	return err
}

// printReport prints a bootstrap report as a table plus its summary line.
func printReport(cmd *cobra.Command, r gateway.Report) {
	styles := ui.DefaultStyles()
	t := ui.NewSimpleTable("Gateway bootstrap", []string{"Kind", "Service", "Name", "Outcome"})
	for _, e := range r.Entries {
		outcome := string(e.Outcome)
		if e.Err != nil {
			outcome += ": " + e.Err.Error()
		}
		t.AddRow(string(e.Kind), e.Service, e.Name, outcome)
	}
	out := cmd.OutOrStdout()
	fmt.Fprint(out, t.View(styles))
	if r.OK() {
		fmt.Fprintln(out, styles.Success.Render(r.Summary()))
	} else {
		fmt.Fprintln(out, styles.Warning.Render(r.Summary()))
	}
}
