package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"stackctl/cmd/stackctl/ui"
	"stackctl/internal/endpoints"
	"stackctl/internal/envfile"
)

var (
	probeHost     string
	probeTimeout  time.Duration
	watchStatus   bool
	watchInterval time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status [dev|staging|prod]",
	Short: "Show containers and endpoint health",
	Long: `Lists the environment's containers (when its env file exists) and probes
every published endpoint. With --watch a live dashboard refreshes the probes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

var urlsCmd = &cobra.Command{
	Use:   "urls",
	Short: "List the stack's endpoint URLs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), renderMarkdown(endpoints.Markdown(probeHost, endpoints.Defaults(withWorkflow))))
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&probeHost, "host", "localhost", "Host the stack publishes on")
	statusCmd.Flags().DurationVar(&probeTimeout, "probe-timeout", 2*time.Second, "Per-endpoint probe timeout")
	statusCmd.Flags().BoolVar(&watchStatus, "watch", false, "Live dashboard")
	statusCmd.Flags().DurationVar(&watchInterval, "interval", 5*time.Second, "Dashboard refresh interval")
	statusCmd.Flags().BoolVar(&withWorkflow, "with-airflow", false, "Include the Airflow add-on")

	urlsCmd.Flags().StringVar(&probeHost, "host", "localhost", "Host the stack publishes on")
	urlsCmd.Flags().BoolVar(&withWorkflow, "with-airflow", false, "Include the Airflow add-on")
}

func runStatus(cmd *cobra.Command, args []string) error {
	env, err := parseEnvArg(cmd, args)
	if err != nil {
		return err
	}
	eps := endpoints.Defaults(withWorkflow)
	probe := func(ctx context.Context) []endpoints.Result {
		return endpoints.Probe(ctx, probeHost, eps, probeTimeout)
	}
	styles := ui.DefaultStyles()

	if watchStatus {
		p := tea.NewProgram(ui.NewStatusModel(probeHost, probe, watchInterval, styles), tea.WithAltScreen())
		_, err := p.Run()
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	out := cmd.OutOrStdout()

	if _, statErr := os.Stat(envfile.Path(workspace, env)); statErr == nil {
		ps, err := newManager().PS(ctx, env, withWorkflow)
		if err != nil {
			fmt.Fprintln(out, styles.Warning.Render(fmt.Sprintf("could not list containers: %v", err)))
		} else {
			fmt.Fprintln(out, styles.Title.Render(fmt.Sprintf("Containers (%s)", env)))
			fmt.Fprintln(out, ps)
		}
	}

	t := ui.EndpointTable(probe(ctx), probeHost, styles)
	t.Title = "Endpoints"
	fmt.Fprint(out, t.View(styles))
	return nil
}

// renderMarkdown renders md for the terminal, falling back to the raw text.
func renderMarkdown(md string) string {
	styleOpt := glamour.WithStylePath("light")
	if ui.DetectTheme().IsDark {
		styleOpt = glamour.WithAutoStyle()
	}
	r, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(80))
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}
