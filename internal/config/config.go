package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up in the workspace root.
const DefaultFileName = "stackctl.yaml"

// Config holds all stackctl configuration.
type Config struct {
	// Project is the Compose project name prefix; the environment is appended.
	Project string `yaml:"project"`

	// Container orchestrator
	Compose ComposeConfig `yaml:"compose"`

	// Gateway control plane
	Gateway GatewayConfig `yaml:"gateway"`

	// REST client layer
	API APIConfig `yaml:"api"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ComposeConfig configures the orchestrator CLI and the compose file set.
type ComposeConfig struct {
	Binary       string            `yaml:"binary"`     // docker, docker-compose, podman
	Subcommand   string            `yaml:"subcommand"` // "compose" for the docker plugin, empty for docker-compose
	BaseFile     string            `yaml:"base_file"`
	GatewayFile  string            `yaml:"gateway_file"`
	WorkflowFile string            `yaml:"workflow_file"`
	Overrides    map[string]string `yaml:"overrides"` // environment -> override file
	Timeout      string            `yaml:"timeout"`   // per orchestrator invocation
}

// GatewayConfig configures the gateway admin API and bootstrap.
type GatewayConfig struct {
	AdminURL       string `yaml:"admin_url"`
	ProxyURL       string `yaml:"proxy_url"`
	ReadyAttempts  int    `yaml:"ready_attempts"`
	ReadyInterval  string `yaml:"ready_interval"`
	RequestTimeout string `yaml:"request_timeout"`
	TopologyFile   string `yaml:"topology_file"` // optional, replaces the built-in topology
}

// APIConfig configures the backend REST client.
type APIConfig struct {
	BaseURL     string `yaml:"base_url"`
	SessionFile string `yaml:"session_file"`
	LoginPath   string `yaml:"login_path"`
	Timeout     string `yaml:"timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Project: "fullstack",

		Compose: ComposeConfig{
			Binary:       "docker",
			Subcommand:   "compose",
			BaseFile:     "docker-compose.yml",
			GatewayFile:  "docker-compose.kong.yml",
			WorkflowFile: "docker-compose.airflow.yml",
			Overrides: map[string]string{
				"dev":     "docker-compose.override.yml",
				"staging": "docker-compose.staging.yml",
				"prod":    "docker-compose.prod.yml",
			},
			Timeout: "20m",
		},

		Gateway: GatewayConfig{
			AdminURL:       "http://localhost:8001",
			ProxyURL:       "http://localhost:8000",
			ReadyAttempts:  30,
			ReadyInterval:  "2s",
			RequestTimeout: "10s",
		},

		API: APIConfig{
			BaseURL:     "http://localhost:8000/api/v1",
			SessionFile: filepath.Join(".stackctl", "session.json"),
			LoginPath:   "/login",
			Timeout:     "30s",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("STACKCTL_PROJECT"); v != "" {
		c.Project = v
	}
	if v := os.Getenv("STACKCTL_COMPOSE_BINARY"); v != "" {
		// "docker-compose" has no subcommand; "docker compose" does.
		parts := strings.Fields(v)
		c.Compose.Binary = parts[0]
		c.Compose.Subcommand = ""
		if len(parts) > 1 {
			c.Compose.Subcommand = parts[1]
		}
	}
	if v := os.Getenv("KONG_ADMIN_URL"); v != "" {
		c.Gateway.AdminURL = v
	}
	if v := os.Getenv("KONG_PROXY_URL"); v != "" {
		c.Gateway.ProxyURL = v
	}
	if v := os.Getenv("STACKCTL_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("STACKCTL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// ProjectName returns the Compose project name for an environment.
func (c *Config) ProjectName(env string) string {
	return c.Project + "-" + env
}

// OverrideFile returns the environment-specific compose override, if any.
func (c *Config) OverrideFile(env string) string {
	return c.Compose.Overrides[env]
}

// GetComposeTimeout returns the orchestrator invocation timeout as a duration.
func (c *Config) GetComposeTimeout() time.Duration {
	d, err := time.ParseDuration(c.Compose.Timeout)
	if err != nil {
		return 20 * time.Minute
	}
	return d
}

// GetReadyInterval returns the gateway readiness poll interval as a duration.
func (c *Config) GetReadyInterval() time.Duration {
	d, err := time.ParseDuration(c.Gateway.ReadyInterval)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// GetRequestTimeout returns the gateway admin request timeout as a duration.
func (c *Config) GetRequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Gateway.RequestTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetAPITimeout returns the REST client timeout as a duration.
func (c *Config) GetAPITimeout() time.Duration {
	d, err := time.ParseDuration(c.API.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Project == "" {
		return fmt.Errorf("project name not configured")
	}
	if strings.ContainsAny(c.Project, " /\\:") {
		return fmt.Errorf("invalid project name %q", c.Project)
	}
	if c.Compose.Binary == "" {
		return fmt.Errorf("compose.binary not configured")
	}
	if c.Compose.BaseFile == "" {
		return fmt.Errorf("compose.base_file not configured")
	}
	if c.Gateway.AdminURL == "" {
		return fmt.Errorf("gateway.admin_url not configured")
	}
	if c.Gateway.ReadyAttempts < 1 {
		return fmt.Errorf("gateway.ready_attempts must be at least 1, got %d", c.Gateway.ReadyAttempts)
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url not configured")
	}
	return nil
}

// ResolvePath makes a config-relative path absolute against the workspace root.
func ResolvePath(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
