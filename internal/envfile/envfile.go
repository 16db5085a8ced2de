// Package envfile loads the per-environment dotenv files (.env.dev,
// .env.staging, .env.prod) and exports them into the process environment
// before any orchestrator call.
package envfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"stackctl/internal/logging"
)

// Environment is a deployment target.
type Environment string

const (
	Dev     Environment = "dev"
	Staging Environment = "staging"
	Prod    Environment = "prod"
)

var (
	// ErrInvalidEnvironment is returned for any token outside dev|staging|prod.
	ErrInvalidEnvironment = errors.New("invalid environment")
	// ErrMissingEnvFile is wrapped by MissingFileError.
	ErrMissingEnvFile = errors.New("environment file not found")
)

// Environments returns the valid environments in promotion order.
func Environments() []Environment {
	return []Environment{Dev, Staging, Prod}
}

// ParseEnvironment validates an environment token. Empty means dev.
func ParseEnvironment(s string) (Environment, error) {
	if s == "" {
		return Dev, nil
	}
	for _, env := range Environments() {
		if string(env) == s {
			return env, nil
		}
	}
	return "", fmt.Errorf("%w %q: must be one of dev, staging, prod", ErrInvalidEnvironment, s)
}

// IsEnvironment reports whether s names a valid environment.
func IsEnvironment(s string) bool {
	_, err := ParseEnvironment(s)
	return err == nil && s != ""
}

func (e Environment) String() string { return string(e) }

// FileName returns ".env.<env>".
func (e Environment) FileName() string {
	return ".env." + string(e)
}

// Path returns the expected env file location for env under root.
func Path(root string, env Environment) string {
	return filepath.Join(root, env.FileName())
}

// MissingFileError reports the env file that was expected but not found.
type MissingFileError struct {
	Env  Environment
	Path string
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("environment file not found: %s (create it from .env.example for %q)", e.Path, e.Env)
}

func (e *MissingFileError) Unwrap() error {
	return ErrMissingEnvFile
}

// Vars holds the parsed key/value pairs of an env file.
type Vars map[string]string

// Load reads and parses the env file for env under root.
func Load(root string, env Environment) (Vars, error) {
	path := Path(root, env)

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &MissingFileError{Env: env, Path: path}
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	logging.Env("loaded %d variables from %s", len(values), path)
	return Vars(values), nil
}

// Keys returns the variable names sorted.
func (v Vars) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Environ returns the variables as sorted KEY=VALUE pairs.
func (v Vars) Environ() []string {
	out := make([]string, 0, len(v))
	for _, k := range v.Keys() {
		out = append(out, k+"="+v[k])
	}
	return out
}

// Export sets the variables in the process environment. Unless override is
// set, variables already present in the environment keep their value.
func (v Vars) Export(override bool) error {
	exported := 0
	for _, k := range v.Keys() {
		if _, exists := os.LookupEnv(k); exists && !override {
			logging.EnvDebug("keeping %s from the process environment", k)
			continue
		}
		if err := os.Setenv(k, v[k]); err != nil {
			return fmt.Errorf("failed to export %s: %w", k, err)
		}
		exported++
	}
	logging.EnvDebug("exported %d of %d variables", exported, len(v))
	return nil
}

var sensitiveMarkers = []string{"PASSWORD", "SECRET", "KEY", "TOKEN"}

// IsSensitive reports whether a variable name looks like a credential.
func IsSensitive(key string) bool {
	upper := strings.ToUpper(key)
	for _, m := range sensitiveMarkers {
		if strings.Contains(upper, m) {
			return true
		}
	}
	return false
}

// Masked returns the value of key, masked when the key looks sensitive.
func (v Vars) Masked(key string) string {
	val := v[key]
	if !IsSensitive(key) || val == "" {
		return val
	}
	return "********"
}
