// Package compose resolves the Compose file set for an environment and wraps
// the orchestrator CLI (docker compose / docker-compose) behind tactile.
package compose

import (
	"fmt"
	"os"
	"path/filepath"

	"stackctl/internal/envfile"
	"stackctl/internal/logging"
)

type composeFile struct {
	role string
	name string
}

// Composer resolves the ordered list of Compose files for an environment.
type Composer struct {
	Root         string
	BaseFile     string
	GatewayFile  string
	WorkflowFile string
	Overrides    map[envfile.Environment]string
}

// Files returns base, gateway, [workflow], override in that order.
// Base, gateway and (when requested) workflow files must exist; a missing
// environment override is skipped with a warning.
func (c *Composer) Files(env envfile.Environment, withWorkflow bool) ([]string, error) {
	required := []composeFile{
		{"base", c.BaseFile},
		{"gateway", c.GatewayFile},
	}
	if withWorkflow {
		required = append(required, composeFile{"workflow", c.WorkflowFile})
	}

	files := make([]string, 0, len(required)+1)
	for _, r := range required {
		if r.name == "" {
			return nil, fmt.Errorf("no %s compose file configured", r.role)
		}
		path := c.resolve(r.name)
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%s compose file %s: %w", r.role, path, err)
		}
		files = append(files, path)
	}

	if name := c.Overrides[env]; name != "" {
		path := c.resolve(name)
		if _, err := os.Stat(path); err != nil {
			logging.ComposeWarn("override file for %s not found, skipping: %s", env, path)
		} else {
			files = append(files, path)
		}
	}

	logging.ComposeDebug("compose files for %s: %v", env, files)
	return files, nil
}

func (c *Composer) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Root, name)
}
