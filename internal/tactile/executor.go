package tactile

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// AllowlistExecutor only lets a fixed set of binaries through to the wrapped
// executor. stackctl only ever drives the container orchestrator CLI, so the
// default list holds those binaries and nothing else.
type AllowlistExecutor struct {
	inner   Executor
	allowed map[string]bool
	audit   func(AuditEvent)
}

// DefaultAllowedBinaries are the orchestrator CLIs stackctl may invoke.
var DefaultAllowedBinaries = []string{"docker", "docker-compose", "podman", "podman-compose"}

// NewAllowlistExecutor wraps inner so that only the named binaries can run.
// Binaries are matched on their base name.
func NewAllowlistExecutor(inner Executor, binaries ...string) *AllowlistExecutor {
	if len(binaries) == 0 {
		binaries = DefaultAllowedBinaries
	}
	allowed := make(map[string]bool, len(binaries))
	for _, b := range binaries {
		allowed[filepath.Base(b)] = true
	}
	return &AllowlistExecutor{inner: inner, allowed: allowed}
}

// SetAuditCallback receives blocked events; execution events come from the
// wrapped executor.
func (e *AllowlistExecutor) SetAuditCallback(callback func(AuditEvent)) {
	e.audit = callback
	if audited, ok := e.inner.(Auditable); ok {
		audited.SetAuditCallback(callback)
	}
}

// Allowed returns the sorted allowlist.
func (e *AllowlistExecutor) Allowed() []string {
	out := make([]string, 0, len(e.allowed))
	for b := range e.allowed {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// Validate checks the binary against the allowlist, then defers to the wrapped executor.
func (e *AllowlistExecutor) Validate(cmd Command) error {
	if !e.allowed[filepath.Base(cmd.Binary)] {
		return fmt.Errorf("binary %q is not allowed (allowed: %s)", cmd.Binary, strings.Join(e.Allowed(), ", "))
	}
	return e.inner.Validate(cmd)
}

// Execute runs cmd through the wrapped executor if it passes validation.
func (e *AllowlistExecutor) Execute(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	if err := e.Validate(cmd); err != nil {
		if e.audit != nil {
			e.audit(AuditEvent{
				Type:         AuditEventBlocked,
				Timestamp:    time.Now(),
				Command:      cmd,
				ExecutorName: "allowlist",
				BlockReason:  err.Error(),
			})
		}
		return nil, err
	}
	return e.inner.Execute(ctx, cmd)
}
