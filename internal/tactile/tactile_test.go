package tactile

import (
	"context"
	"errors"
	"os"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("relies on POSIX shell utilities")
	}
}

func TestDirectExecutor_Execute(t *testing.T) {
	skipOnWindows(t)
	executor := NewDirectExecutor()

	cmd := Command{
		Binary:    "echo",
		Arguments: []string{"hello"},
	}

	result, err := executor.Execute(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if !result.Success {
		t.Errorf("Expected success, got failure: %s", result.Error)
	}

	if result.ExitCode != 0 {
		t.Errorf("Expected exit code 0, got %d", result.ExitCode)
	}

	if !strings.Contains(result.Output(), "hello") {
		t.Errorf("Expected output to contain 'hello', got: %s", result.Output())
	}

	if result.Command == nil || result.Command.RequestID == "" {
		t.Errorf("Expected a request id to be assigned")
	}
}

func TestDirectExecutor_Timeout(t *testing.T) {
	skipOnWindows(t)
	executor := NewDirectExecutor()

	cmd := Command{
		Binary:    "sleep",
		Arguments: []string{"10"},
		Limits: &ResourceLimits{
			TimeoutMs: 500,
		},
	}

	start := time.Now()
	result, err := executor.Execute(context.Background(), cmd)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if !result.Killed {
		t.Errorf("Expected command to be killed")
	}

	if !strings.Contains(result.KillReason, "timeout") {
		t.Errorf("Expected kill reason to mention timeout, got: %s", result.KillReason)
	}

	if result.OK() {
		t.Errorf("Killed command must not report OK")
	}

	if elapsed > 2*time.Second {
		t.Errorf("Timeout didn't work, elapsed: %v", elapsed)
	}
}

func TestDirectExecutor_NonZeroExit(t *testing.T) {
	skipOnWindows(t)
	executor := NewDirectExecutor()

	cmd := Command{
		Binary:    "sh",
		Arguments: []string{"-c", "exit 3"},
	}

	result, err := executor.Execute(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if !result.Success {
		t.Errorf("Expected success=true for non-zero exit, got: %s", result.Error)
	}

	if result.ExitCode != 3 {
		t.Errorf("Expected exit code 3, got %d", result.ExitCode)
	}

	if !result.IsNonZeroExit() {
		t.Errorf("Expected IsNonZeroExit")
	}
}

func TestDirectExecutor_InvalidCommand(t *testing.T) {
	executor := NewDirectExecutor()

	result, err := executor.Execute(context.Background(), Command{Binary: "nonexistent_command_12345"})
	if err != nil {
		t.Fatalf("Execute returned error instead of result: %v", err)
	}

	if result.Success {
		t.Errorf("Expected failure for invalid command")
	}

	if result.Error == "" {
		t.Errorf("Expected error message for invalid command")
	}
}

func TestDirectExecutor_WorkingDirectory(t *testing.T) {
	skipOnWindows(t)
	executor := NewDirectExecutor()

	tempDir := t.TempDir()
	result, err := executor.Execute(context.Background(), Command{
		Binary:           "pwd",
		WorkingDirectory: tempDir,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if !result.Success {
		t.Errorf("Expected success, got: %s", result.Error)
	}

	// macOS reports /private/var for /var temp dirs.
	output := strings.TrimSpace(result.Output())
	if !strings.HasSuffix(output, strings.TrimSuffix(tempDir, string(os.PathSeparator))) {
		t.Errorf("Expected output to end with %s, got: %s", tempDir, output)
	}
}

func TestDirectExecutor_OutputCapture(t *testing.T) {
	skipOnWindows(t)
	executor := NewDirectExecutor()

	result, err := executor.Execute(context.Background(), Command{
		Binary:    "sh",
		Arguments: []string{"-c", "echo stdout; echo stderr >&2"},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if !strings.Contains(result.Stdout, "stdout") {
		t.Errorf("Expected stdout to contain 'stdout', got: %s", result.Stdout)
	}
	if !strings.Contains(result.Stderr, "stderr") {
		t.Errorf("Expected stderr to contain 'stderr', got: %s", result.Stderr)
	}
}

func TestDirectExecutor_Stream(t *testing.T) {
	skipOnWindows(t)
	executor := NewDirectExecutor()

	var sb strings.Builder
	result, err := executor.Execute(context.Background(), Command{
		Binary:    "sh",
		Arguments: []string{"-c", "echo building; echo pulling >&2"},
		Stream:    &sb,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	streamed := sb.String()
	if !strings.Contains(streamed, "building") || !strings.Contains(streamed, "pulling") {
		t.Errorf("Expected both streams in live output, got: %q", streamed)
	}
	if !strings.Contains(result.Stdout, "building") {
		t.Errorf("Streaming must not replace capture, got stdout: %q", result.Stdout)
	}
}

func TestDirectExecutor_Environment(t *testing.T) {
	skipOnWindows(t)
	config := DefaultExecutorConfig()
	config.AllowedEnvironment = []string{"PATH"}
	executor := NewDirectExecutorWithConfig(config)

	result, err := executor.Execute(context.Background(), Command{
		Binary:      "sh",
		Arguments:   []string{"-c", "echo $AIRFLOW_UID"},
		Environment: []string{"AIRFLOW_UID=50000"},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if strings.TrimSpace(result.Stdout) != "50000" {
		t.Errorf("Expected command environment to be passed, got: %q", result.Stdout)
	}
}

func TestDirectExecutor_OutputTruncation(t *testing.T) {
	skipOnWindows(t)
	config := DefaultExecutorConfig()
	config.MaxOutputBytes = 50
	config.DefaultLimits.MaxOutputBytes = 50
	executor := NewDirectExecutorWithConfig(config)

	result, err := executor.Execute(context.Background(), Command{
		Binary:    "sh",
		Arguments: []string{"-c", "echo " + strings.Repeat("A", 100)},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if !result.Truncated {
		t.Errorf("Expected output to be truncated, got output of len=%d", len(result.Stdout))
	}

	if result.TruncatedBytes == 0 {
		t.Errorf("Expected truncated bytes > 0")
	}
}

func TestDirectExecutor_ContextCancellation(t *testing.T) {
	skipOnWindows(t)
	executor := NewDirectExecutor()

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	result, err := executor.Execute(ctx, Command{Binary: "sleep", Arguments: []string{"10"}})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if !result.Killed {
		t.Errorf("Expected command to be killed")
	}

	if !strings.Contains(result.KillReason, "canceled") {
		t.Errorf("Expected kill reason to mention canceled, got: %s", result.KillReason)
	}

	if elapsed > 2*time.Second {
		t.Errorf("Cancellation didn't work quickly, elapsed: %v", elapsed)
	}
}

func TestDirectExecutor_Validate(t *testing.T) {
	executor := NewDirectExecutor()

	if err := executor.Validate(Command{Binary: "docker"}); err != nil {
		t.Errorf("Expected valid command to pass validation: %v", err)
	}

	if err := executor.Validate(Command{Binary: ""}); err == nil {
		t.Errorf("Expected empty binary to fail validation")
	}
}

func TestDirectExecutor_AuditEvents(t *testing.T) {
	skipOnWindows(t)
	executor := NewDirectExecutor()

	var mu sync.Mutex
	var types []AuditEventType
	executor.SetAuditCallback(func(e AuditEvent) {
		mu.Lock()
		defer mu.Unlock()
		types = append(types, e.Type)
	})

	if _, err := executor.Execute(context.Background(), Command{Binary: "true"}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(types) != 2 || types[0] != AuditEventStart || types[1] != AuditEventComplete {
		t.Errorf("Expected [start complete], got %v", types)
	}
}

func TestCommand_CommandString(t *testing.T) {
	cmd := Command{
		Binary:    "docker",
		Arguments: []string{"compose", "-p", "fullstack-dev", "up", "-d"},
	}

	if got := cmd.CommandString(); got != "docker compose -p fullstack-dev up -d" {
		t.Errorf("Unexpected command string: %s", got)
	}

	if got := (Command{Binary: "docker"}).CommandString(); got != "docker" {
		t.Errorf("Unexpected command string without args: %s", got)
	}
}

func TestExecutionResult_Helpers(t *testing.T) {
	ok := &ExecutionResult{Success: true, ExitCode: 0}
	if ok.IsError() || ok.IsNonZeroExit() || !ok.OK() {
		t.Errorf("Clean result misclassified: %+v", ok)
	}

	nonZero := &ExecutionResult{Success: true, ExitCode: 1}
	if !nonZero.IsNonZeroExit() || nonZero.OK() {
		t.Errorf("Non-zero result misclassified: %+v", nonZero)
	}

	infra := &ExecutionResult{Success: false, Error: "exec: not found"}
	if !infra.IsError() || infra.OK() {
		t.Errorf("Infrastructure failure misclassified: %+v", infra)
	}

	split := &ExecutionResult{Stdout: "out", Stderr: "err"}
	if split.Output() != "out\nerr" {
		t.Errorf("Unexpected Output(): %q", split.Output())
	}
}

func TestExecutorConfig_Merge(t *testing.T) {
	config := DefaultExecutorConfig()
	config.DefaultWorkingDir = "/workspace"
	config.MaxTimeout = time.Minute

	merged := config.Merge(Command{Binary: "docker"})
	if merged.WorkingDirectory != "/workspace" {
		t.Errorf("Expected default working dir, got %s", merged.WorkingDirectory)
	}
	if merged.Limits == nil || merged.Limits.TimeoutMs != 30000 {
		t.Errorf("Expected default limits, got %+v", merged.Limits)
	}

	capped := config.Merge(Command{Binary: "docker", Limits: &ResourceLimits{TimeoutMs: int64(time.Hour / time.Millisecond)}})
	if capped.Limits.TimeoutMs != int64(time.Minute/time.Millisecond) {
		t.Errorf("Expected timeout capped at MaxTimeout, got %d", capped.Limits.TimeoutMs)
	}
	if capped.Limits.MaxOutputBytes != config.DefaultLimits.MaxOutputBytes {
		t.Errorf("Expected unset MaxOutputBytes filled from defaults, got %d", capped.Limits.MaxOutputBytes)
	}
}

type stubExecutor struct {
	calls int
}

func (s *stubExecutor) Execute(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	s.calls++
	return &ExecutionResult{Success: true}, nil
}

func (s *stubExecutor) Validate(cmd Command) error {
	if cmd.Binary == "" {
		return errors.New("binary is required")
	}
	return nil
}

func TestAllowlistExecutor(t *testing.T) {
	inner := &stubExecutor{}
	executor := NewAllowlistExecutor(inner)

	var blocked []AuditEvent
	executor.SetAuditCallback(func(e AuditEvent) {
		if e.Type == AuditEventBlocked {
			blocked = append(blocked, e)
		}
	})

	if _, err := executor.Execute(context.Background(), Command{Binary: "/usr/bin/docker", Arguments: []string{"compose", "ps"}}); err != nil {
		t.Fatalf("Expected docker to be allowed: %v", err)
	}

	_, err := executor.Execute(context.Background(), Command{Binary: "rm", Arguments: []string{"-rf", "/"}})
	if err == nil {
		t.Fatalf("Expected rm to be blocked")
	}
	if !strings.Contains(err.Error(), "docker-compose") {
		t.Errorf("Expected error to list allowed binaries, got: %v", err)
	}

	if inner.calls != 1 {
		t.Errorf("Expected exactly one call to reach the wrapped executor, got %d", inner.calls)
	}
	if len(blocked) != 1 || blocked[0].BlockReason == "" {
		t.Errorf("Expected one blocked audit event, got %+v", blocked)
	}
	if got := strings.Join(executor.Allowed(), ","); got != "docker,docker-compose,podman,podman-compose" {
		t.Errorf("Unexpected allowlist: %s", got)
	}
}

func TestAuditLogger(t *testing.T) {
	logger := NewAuditLogger()

	var events []AuditEvent
	logger.AddCallback(func(e AuditEvent) {
		events = append(events, e)
	})

	cmd := Command{Binary: "docker", RequestID: "req-1"}
	logger.Log(AuditEvent{Type: AuditEventStart, Timestamp: time.Now(), Command: cmd, ExecutorName: "test"})
	logger.Log(AuditEvent{
		Type:      AuditEventComplete,
		Timestamp: time.Now(),
		Command:   cmd,
		Result:    &ExecutionResult{Success: true, ExitCode: 1, Duration: 20 * time.Millisecond},
	})
	logger.Log(AuditEvent{Type: AuditEventBlocked, Timestamp: time.Now(), Command: Command{Binary: "rm"}, BlockReason: "not allowed"})

	if len(events) != 3 {
		t.Errorf("Expected 3 events, got: %d", len(events))
	}

	metrics := logger.GetMetrics()
	if metrics.TotalExecutions != 1 {
		t.Errorf("Expected 1 total execution, got: %d", metrics.TotalExecutions)
	}
	if metrics.FailedExecutions != 1 {
		t.Errorf("Expected non-zero exit to count as failed, got: %d", metrics.FailedExecutions)
	}
	if metrics.BlockedExecutions != 1 {
		t.Errorf("Expected 1 blocked execution, got: %d", metrics.BlockedExecutions)
	}
	if metrics.ExecutionsByBinary["docker"] != 1 {
		t.Errorf("Expected docker counted once, got: %v", metrics.ExecutionsByBinary)
	}
}
