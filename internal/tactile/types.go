// Package tactile runs external programs, the container orchestrator CLI
// first of all, and reports exit code, timing, captured output and kill
// reason for each run. Which commands to run is decided by callers.
package tactile

import (
	"io"
	"strings"
	"time"
)

// Command is one program invocation.
type Command struct {
	Binary    string   `json:"binary"`
	Arguments []string `json:"arguments"`

	// WorkingDirectory defaults to the executor's.
	WorkingDirectory string `json:"working_directory,omitempty"`

	// Environment entries (KEY=VALUE) are added to the allowed process environment.
	Environment []string `json:"environment,omitempty"`

	Stdin string `json:"stdin,omitempty"`

	// Stream receives stdout and stderr as they are produced, in addition
	// to the captured copy.
	Stream io.Writer `json:"-"`

	Limits *ResourceLimits `json:"limits,omitempty"`

	// RequestID is assigned by the executor when empty.
	RequestID string `json:"request_id,omitempty"`
}

// CommandString renders the command line for logs.
func (c Command) CommandString() string {
	if len(c.Arguments) == 0 {
		return c.Binary
	}
	return c.Binary + " " + strings.Join(c.Arguments, " ")
}

// ResourceLimits bounds one run. Zero values take the executor defaults.
type ResourceLimits struct {
	TimeoutMs      int64 `json:"timeout_ms,omitempty"`
	MaxOutputBytes int64 `json:"max_output_bytes,omitempty"`
}

// ExecutionResult describes a finished run. Success is false only when the
// program could not be run at all; a non-zero exit still has Success set.
type ExecutionResult struct {
	Success  bool   `json:"success"`
	ExitCode int    `json:"exit_code"` // -1 when unknown
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	Combined string `json:"combined"`

	Duration   time.Duration `json:"duration"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`

	Killed     bool   `json:"killed"`
	KillReason string `json:"kill_reason,omitempty"`

	Truncated      bool  `json:"truncated"`
	TruncatedBytes int64 `json:"truncated_bytes,omitempty"`

	Error   string   `json:"error,omitempty"`
	Command *Command `json:"command,omitempty"`
}

// IsError reports an infrastructure failure.
func (r *ExecutionResult) IsError() bool {
	return !r.Success || r.Error != ""
}

// IsNonZeroExit reports a program that ran and exited non-zero.
func (r *ExecutionResult) IsNonZeroExit() bool {
	return r.Success && r.ExitCode != 0
}

// OK reports a clean run: infrastructure succeeded, exit code zero, not killed.
func (r *ExecutionResult) OK() bool {
	return r.Success && r.Error == "" && r.ExitCode == 0 && !r.Killed
}

// Output returns Combined if available, otherwise Stdout+Stderr.
func (r *ExecutionResult) Output() string {
	if r.Combined != "" {
		return r.Combined
	}
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventStart    AuditEventType = "start"
	AuditEventComplete AuditEventType = "complete"
	AuditEventKilled   AuditEventType = "killed"
	AuditEventError    AuditEventType = "error"
	AuditEventBlocked  AuditEventType = "blocked"
)

// AuditEvent is one execution event. Result is set for complete, killed and
// error events; BlockReason for blocked ones.
type AuditEvent struct {
	Type         AuditEventType   `json:"type"`
	Timestamp    time.Time        `json:"timestamp"`
	Command      Command          `json:"command"`
	Result       *ExecutionResult `json:"result,omitempty"`
	ExecutorName string           `json:"executor_name"`
	BlockReason  string           `json:"block_reason,omitempty"`
}

// ExecutorConfig holds executor defaults.
type ExecutorConfig struct {
	DefaultWorkingDir string        `json:"default_working_dir"`
	DefaultTimeout    time.Duration `json:"default_timeout"`

	// MaxTimeout caps every per-command timeout.
	MaxTimeout time.Duration `json:"max_timeout"`

	// AllowedEnvironment lists the variables passed through; "*" passes all.
	AllowedEnvironment []string `json:"allowed_environment"`

	DefaultLimits  *ResourceLimits `json:"default_limits,omitempty"`
	MaxOutputBytes int64           `json:"max_output_bytes"`
}

// DefaultExecutorConfig returns the defaults used for orchestrator calls.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		DefaultWorkingDir: ".",
		DefaultTimeout:    30 * time.Second,
		MaxTimeout:        time.Hour,
		MaxOutputBytes:    10 * 1024 * 1024, // 10MB
		// Orchestrator CLIs read DOCKER_*, COMPOSE_* and the exported .env
		// values from the process environment.
		AllowedEnvironment: []string{"*"},
		DefaultLimits: &ResourceLimits{
			TimeoutMs:      30000,
			MaxOutputBytes: 10 * 1024 * 1024,
		},
	}
}

// Merge fills unset command settings from the config and caps the timeout.
func (c ExecutorConfig) Merge(cmd Command) Command {
	result := cmd

	if result.WorkingDirectory == "" {
		result.WorkingDirectory = c.DefaultWorkingDir
	}

	if result.Limits == nil && c.DefaultLimits != nil {
		limitsCopy := *c.DefaultLimits
		result.Limits = &limitsCopy
	} else if result.Limits != nil && c.DefaultLimits != nil {
		limitsCopy := *result.Limits
		if limitsCopy.TimeoutMs == 0 {
			limitsCopy.TimeoutMs = c.DefaultLimits.TimeoutMs
		}
		if limitsCopy.MaxOutputBytes == 0 {
			limitsCopy.MaxOutputBytes = c.DefaultLimits.MaxOutputBytes
		}
		result.Limits = &limitsCopy
	}

	if result.Limits != nil && c.MaxTimeout > 0 {
		maxMs := int64(c.MaxTimeout / time.Millisecond)
		if result.Limits.TimeoutMs > maxMs {
			result.Limits.TimeoutMs = maxMs
		}
	}

	return result
}
