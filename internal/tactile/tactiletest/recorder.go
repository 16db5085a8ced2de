// Package tactiletest provides a recording tactile.Executor for tests.
package tactiletest

import (
	"context"
	"strings"
	"sync"
	"time"

	"stackctl/internal/tactile"
)

type rule struct {
	match  string
	result tactile.ExecutionResult
	err    error
}

// Recorder records every command instead of running it. Responses are picked
// by the first rule whose match string is contained in the command line;
// unmatched commands succeed with empty output.
type Recorder struct {
	mu    sync.Mutex
	calls []tactile.Command
	rules []rule
}

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{}
}

// On makes commands containing match print stdout and exit with exitCode.
func (r *Recorder) On(match, stdout string, exitCode int) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule{
		match: match,
		result: tactile.ExecutionResult{
			Success:  true,
			ExitCode: exitCode,
			Stdout:   stdout,
			Combined: stdout,
		},
	})
	return r
}

// Fail makes commands containing match return err from Execute.
func (r *Recorder) Fail(match string, err error) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule{match: match, err: err})
	return r
}

// Execute implements tactile.Executor.
func (r *Recorder) Execute(ctx context.Context, cmd tactile.Command) (*tactile.ExecutionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	line := cmd.CommandString()
	var matched *rule
	for i := range r.rules {
		if strings.Contains(line, r.rules[i].match) {
			matched = &r.rules[i]
			break
		}
	}
	r.mu.Unlock()

	now := time.Now()
	res := tactile.ExecutionResult{Success: true, StartedAt: now, FinishedAt: now}
	if matched != nil {
		if matched.err != nil {
			return nil, matched.err
		}
		res = matched.result
		res.StartedAt, res.FinishedAt = now, now
	}
	res.Command = &cmd
	if cmd.Stream != nil && res.Stdout != "" {
		_, _ = cmd.Stream.Write([]byte(res.Stdout))
	}
	return &res, nil
}

// Validate implements tactile.Executor.
func (r *Recorder) Validate(cmd tactile.Command) error {
	return nil
}

// Calls returns a copy of the recorded commands.
func (r *Recorder) Calls() []tactile.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]tactile.Command, len(r.calls))
	copy(out, r.calls)
	return out
}

// Lines returns the recorded command lines ("binary arg arg ...").
func (r *Recorder) Lines() []string {
	calls := r.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.CommandString()
	}
	return out
}
