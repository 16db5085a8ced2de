package compose

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrUnknownService is wrapped by UnknownServiceError.
var ErrUnknownService = errors.New("unknown service")

// UnknownServiceError names the requested service and the valid choices.
type UnknownServiceError struct {
	Name  string
	Valid []string
}

func (e *UnknownServiceError) Error() string {
	return fmt.Sprintf("unknown service %q; valid services: %s", e.Name, strings.Join(e.Valid, ", "))
}

func (e *UnknownServiceError) Unwrap() error {
	return ErrUnknownService
}

// ValidateService checks name against the services of the resolved configuration.
func ValidateService(valid []string, name string) error {
	for _, v := range valid {
		if v == name {
			return nil
		}
	}
	return &UnknownServiceError{Name: name, Valid: sortedCopy(valid)}
}

// MatchServices expands pattern against valid. A pattern without glob
// metacharacters must name a service exactly.
func MatchServices(valid []string, pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid service pattern %q", pattern)
	}
	var matched []string
	for _, v := range valid {
		ok, err := doublestar.Match(pattern, v)
		if err != nil {
			return nil, fmt.Errorf("invalid service pattern %q: %w", pattern, err)
		}
		if ok {
			matched = append(matched, v)
		}
	}
	if len(matched) == 0 {
		return nil, &UnknownServiceError{Name: pattern, Valid: sortedCopy(valid)}
	}
	sort.Strings(matched)
	return matched, nil
}

// ParseServices splits `config --services` output into service names.
func ParseServices(output string) []string {
	var services []string
	for _, line := range strings.Split(output, "\n") {
		if s := strings.TrimSpace(line); s != "" {
			services = append(services, s)
		}
	}
	sort.Strings(services)
	return services
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
