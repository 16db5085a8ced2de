package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"stackctl/cmd/stackctl/ui"
	"stackctl/internal/gateway"
	"stackctl/internal/gateway/adminsim"
	"stackctl/internal/logging"
)

var (
	watchTopology bool
	skipWait      bool
	listenAddr    string
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Gateway control plane commands",
}

var gatewayBootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Ensure the gateway's services, routes and plugins exist",
	Long: `Waits for the gateway admin API to report its datastore reachable, then
creates every missing service, route and plugin of the topology. Existing
entities are left unchanged, so running it twice is safe.

With --watch the topology file (gateway.topology_file) is re-applied on every change.`,
	Args: cobra.NoArgs,
	RunE: runGatewayBootstrap,
}

var gatewaySimulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Serve an in-memory gateway admin API for local testing",
	Args:  cobra.NoArgs,
	RunE:  runGatewaySimulate,
}

func init() {
	gatewayBootstrapCmd.Flags().BoolVar(&watchTopology, "watch", false, "Re-apply the topology file when it changes")
	gatewayBootstrapCmd.Flags().BoolVar(&skipWait, "skip-wait", false, "Do not wait for the datastore")
	gatewaySimulateCmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:8001", "Listen address")

	gatewayCmd.AddCommand(gatewayBootstrapCmd, gatewaySimulateCmd)
}

func runGatewayBootstrap(cmd *cobra.Command, args []string) error {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if watchTopology {
		ctx, cancel = interruptContext()
	} else {
		ctx, cancel = signalContext()
	}
	defer cancel()

	cp, err := gateway.NewControlPlane(cfg, workspace)
	if err != nil {
		return err
	}
	styles := ui.DefaultStyles()

	if !skipWait {
		if err := cp.WaitReady(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintln(cmd.OutOrStdout(), styles.Warning.Render(fmt.Sprintf("gateway not ready (%v), bootstrapping anyway", err)))
		}
	}

	report, err := cp.Bootstrap(ctx)
	if err != nil {
		return err
	}
	printReport(cmd, report)

	if !watchTopology {
		return nil
	}
	if cp.TopologyFile == "" {
		return errors.New("--watch needs gateway.topology_file in the config")
	}

	watcher, err := gateway.NewTopologyWatcher(cp.TopologyFile, func(ctx context.Context, t gateway.Topology) {
		printReport(cmd, cp.Bootstrapper.Apply(ctx, t))
	})
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), styles.Muted.Render("watching "+cp.TopologyFile+" (ctrl+c to stop)"))
	<-ctx.Done()
	watcher.Stop()

	stats := watcher.Stats()
	logging.Watch("applied %d of %d changes (%d invalid)", stats.Applied, stats.Events, stats.InvalidLoads)
	return nil
}

func runGatewaySimulate(cmd *cobra.Command, args []string) error {
	ctx, cancel := interruptContext()
	defer cancel()

	sim, err := adminsim.New()
	if err != nil {
		return err
	}
	defer sim.Close()

	srv := &http.Server{Addr: listenAddr, Handler: sim, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	fmt.Fprintf(cmd.OutOrStdout(), "gateway admin simulator listening on http://%s\n", listenAddr)
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logging.Gateway("simulator served %d requests", sim.Requests())
	return nil
}
