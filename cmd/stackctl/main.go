package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"stackctl/internal/config"
	"stackctl/internal/envfile"
	"stackctl/internal/logging"
	"stackctl/internal/tactile"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string
	timeout    time.Duration

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "stackctl",
	Short: "Run the full-stack development environment",
	Long: `stackctl starts, stops and restarts the application stack with Docker Compose
for the dev, staging and prod environments, bootstraps the Kong gateway, and
talks to the backend API.

Environment variables are read from .env.<environment> in the workspace root.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: <workspace>/"+config.DefaultFileName+")")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Operation timeout")

	rootCmd.AddCommand(startCmd, stopCmd, restartCmd)
	rootCmd.AddCommand(gatewayCmd, statusCmd, urlsCmd, envCmd, apiCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup resolves the workspace, loads configuration and installs the logger.
func setup() error {
	if workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to resolve workspace: %w", err)
		}
		workspace = wd
	}
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return fmt.Errorf("failed to resolve workspace: %w", err)
	}
	workspace = abs

	path := configPath
	if path == "" {
		path = filepath.Join(workspace, config.DefaultFileName)
	}
	cfg, err = config.Load(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}

	logger, err = buildLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := logging.Initialize(logger, logging.Options{
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return err
	}
	logging.BootDebug("workspace %s, config %s", workspace, path)
	return nil
}

// buildLogger returns a JSON production logger or a console logger on stderr.
// --verbose lowers the floor to debug.
func buildLogger(lc config.LoggingConfig) (*zap.Logger, error) {
	var zc zap.Config
	if lc.IsJSON() {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zc.DisableStacktrace = true
	}
	zc.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}

// signalContext returns a context canceled on SIGINT/SIGTERM or after the
// global timeout.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	return ctx, func() {
		stop()
		cancel()
	}
}

// newExecutor returns the orchestrator executor: os/exec behind the binary
// allowlist, with execution audited to the exec log category.
func newExecutor() tactile.Executor {
	audit := tactile.NewAuditLogger()
	exec := tactile.NewAllowlistExecutor(tactile.NewDirectExecutor(), cfg.Compose.Binary)
	exec.SetAuditCallback(audit.Log)
	return exec
}

// parseEnvArg validates the optional environment argument. Invalid tokens
// are usage errors.
func parseEnvArg(cmd *cobra.Command, args []string) (envfile.Environment, error) {
	token := ""
	if len(args) > 0 {
		token = args[0]
	}
	env, err := envfile.ParseEnvironment(token)
	if err != nil {
		return "", usageError(cmd, err)
	}
	return env, nil
}

func usageError(cmd *cobra.Command, err error) error {
	return fmt.Errorf("%w\nUsage: %s", err, cmd.UseLine())
}

// interruptContext is signalContext without the timeout, for commands that
// run until interrupted.
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
