package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// =============================================================================
// UNIFIED CONFIG TESTS
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Project != "fullstack" {
		t.Errorf("expected Project=fullstack, got %s", cfg.Project)
	}
	if cfg.Compose.Binary != "docker" || cfg.Compose.Subcommand != "compose" {
		t.Errorf("expected docker compose, got %s %s", cfg.Compose.Binary, cfg.Compose.Subcommand)
	}
	if cfg.Gateway.ReadyAttempts != 30 {
		t.Errorf("expected ReadyAttempts=30, got %d", cfg.Gateway.ReadyAttempts)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	// Ensure no env vars interfere
	t.Setenv("STACKCTL_PROJECT", "")
	t.Setenv("KONG_ADMIN_URL", "")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, DefaultFileName)

	cfg := DefaultConfig()
	cfg.Project = "acme"
	cfg.Gateway.AdminURL = "http://kong:8001"
	cfg.Compose.Overrides["qa"] = "docker-compose.qa.yml"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Project != "acme" {
		t.Errorf("expected Project=acme, got %s", loaded.Project)
	}
	if loaded.Gateway.AdminURL != "http://kong:8001" {
		t.Errorf("expected AdminURL=http://kong:8001, got %s", loaded.Gateway.AdminURL)
	}
	if loaded.OverrideFile("qa") != "docker-compose.qa.yml" {
		t.Errorf("expected qa override to round-trip, got %q", loaded.OverrideFile("qa"))
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("STACKCTL_PROJECT", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Project != DefaultConfig().Project {
		t.Errorf("expected default project, got %s", cfg.Project)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	content := "project: shop\ngateway:\n  ready_attempts: 5\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Gateway.ReadyAttempts != 5 {
		t.Errorf("expected ReadyAttempts=5, got %d", cfg.Gateway.ReadyAttempts)
	}
	if cfg.Gateway.AdminURL != "http://localhost:8001" {
		t.Errorf("unset field lost its default: %s", cfg.Gateway.AdminURL)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	if err := os.WriteFile(path, []byte("project: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestDurationGetters_FallBackOnGarbage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Compose.Timeout = "soon"
	cfg.Gateway.ReadyInterval = ""
	cfg.Gateway.RequestTimeout = "5s"

	if got := cfg.GetComposeTimeout(); got != 20*time.Minute {
		t.Errorf("GetComposeTimeout = %s", got)
	}
	if got := cfg.GetReadyInterval(); got != 2*time.Second {
		t.Errorf("GetReadyInterval = %s", got)
	}
	if got := cfg.GetRequestTimeout(); got != 5*time.Second {
		t.Errorf("GetRequestTimeout = %s", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty project", func(c *Config) { c.Project = "" }},
		{"project with space", func(c *Config) { c.Project = "my app" }},
		{"no binary", func(c *Config) { c.Compose.Binary = "" }},
		{"no base file", func(c *Config) { c.Compose.BaseFile = "" }},
		{"no admin url", func(c *Config) { c.Gateway.AdminURL = "" }},
		{"zero attempts", func(c *Config) { c.Gateway.ReadyAttempts = 0 }},
		{"no api url", func(c *Config) { c.API.BaseURL = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestProjectNameAndResolvePath(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.ProjectName("staging"); got != "fullstack-staging" {
		t.Errorf("ProjectName = %s", got)
	}
	if got := ResolvePath("/ws", "kong/topology.yaml"); got != filepath.Join("/ws", "kong/topology.yaml") {
		t.Errorf("ResolvePath relative = %s", got)
	}
	if got := ResolvePath("/ws", "/etc/topology.yaml"); got != "/etc/topology.yaml" {
		t.Errorf("ResolvePath absolute = %s", got)
	}
}

func TestLoggingConfig_IsCategoryEnabled(t *testing.T) {
	c := LoggingConfig{Categories: map[string]bool{"api": false}}
	if c.IsCategoryEnabled("api") {
		t.Error("api should be disabled")
	}
	if !c.IsCategoryEnabled("gateway") {
		t.Error("unlisted category should be enabled")
	}
}
