package tactile

import (
	"context"
)

// Executor runs commands. The orchestrator layer only depends on this.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (*ExecutionResult, error)

	// Validate returns why cmd cannot run, or nil.
	Validate(cmd Command) error
}

// Auditable executors report start, completion and failure events.
type Auditable interface {
	SetAuditCallback(callback func(AuditEvent))
}
