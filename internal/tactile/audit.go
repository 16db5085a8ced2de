package tactile

import (
	"sync"
	"time"

	"stackctl/internal/logging"
)

// AuditLogger fans execution events out to callbacks and keeps running metrics.
type AuditLogger struct {
	mu sync.RWMutex

	// callbacks are functions to call for each event
	callbacks []func(AuditEvent)

	// metrics tracks execution statistics
	metrics *ExecutionMetrics
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger() *AuditLogger {
	return &AuditLogger{
		callbacks: make([]func(AuditEvent), 0),
		metrics:   NewExecutionMetrics(),
	}
}

// AddCallback adds a callback function for audit events.
func (l *AuditLogger) AddCallback(callback func(AuditEvent)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callbacks = append(l.callbacks, callback)
}

// Log records an audit event.
func (l *AuditLogger) Log(event AuditEvent) {
	l.mu.RLock()
	callbacks := l.callbacks
	metrics := l.metrics
	l.mu.RUnlock()

	metrics.RecordEvent(event)

	switch {
	case event.Type == AuditEventStart:
		logging.ExecDebug("audit start [%s] %s", event.Command.RequestID, event.Command.CommandString())
	case event.Type == AuditEventBlocked:
		logging.ExecWarn("audit blocked [%s] %s: %s", event.Command.RequestID, event.Command.Binary, event.BlockReason)
	case event.Result == nil:
	case event.Type == AuditEventKilled:
		logging.ExecWarn("audit killed [%s] %s: %s", event.Command.RequestID, event.Command.Binary, event.Result.KillReason)
	case event.Type == AuditEventError:
		logging.ExecError("audit error [%s] %s: %s", event.Command.RequestID, event.Command.Binary, event.Result.Error)
	case event.Type == AuditEventComplete:
		logging.ExecDebug("audit complete [%s] exit=%d in %s", event.Command.RequestID, event.Result.ExitCode, event.Result.Duration)
	}

	for _, cb := range callbacks {
		cb(event)
	}
}

// GetMetrics returns the current execution metrics.
func (l *AuditLogger) GetMetrics() ExecutionMetricsSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.metrics.Snapshot()
}

// ExecutionMetrics tracks aggregate execution statistics.
type ExecutionMetrics struct {
	mu sync.RWMutex

	totalExecutions      int64
	successfulExecutions int64
	failedExecutions     int64
	killedExecutions     int64
	blockedExecutions    int64
	totalDurationMs      int64

	executionsByBinary map[string]int64

	lastEventTime time.Time
}

// NewExecutionMetrics creates a new metrics tracker.
func NewExecutionMetrics() *ExecutionMetrics {
	return &ExecutionMetrics{
		executionsByBinary: make(map[string]int64),
	}
}

// RecordEvent updates metrics based on an audit event.
func (m *ExecutionMetrics) RecordEvent(event AuditEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastEventTime = event.Timestamp

	switch event.Type {
	case AuditEventStart:
		m.totalExecutions++
		m.executionsByBinary[event.Command.Binary]++

	case AuditEventComplete:
		if event.Result != nil {
			// An orchestrator exiting non-zero is a failed step for stackctl.
			if event.Result.OK() {
				m.successfulExecutions++
			} else {
				m.failedExecutions++
			}
			m.totalDurationMs += event.Result.Duration.Milliseconds()
		}

	case AuditEventKilled:
		m.killedExecutions++
		if event.Result != nil {
			m.totalDurationMs += event.Result.Duration.Milliseconds()
		}

	case AuditEventError:
		m.failedExecutions++

	case AuditEventBlocked:
		m.blockedExecutions++
	}
}

// ExecutionMetricsSnapshot is a point-in-time snapshot of metrics.
type ExecutionMetricsSnapshot struct {
	TotalExecutions      int64            `json:"total_executions"`
	SuccessfulExecutions int64            `json:"successful_executions"`
	FailedExecutions     int64            `json:"failed_executions"`
	KilledExecutions     int64            `json:"killed_executions"`
	BlockedExecutions    int64            `json:"blocked_executions"`
	TotalDurationMs      int64            `json:"total_duration_ms"`
	ExecutionsByBinary   map[string]int64 `json:"executions_by_binary"`
	LastEventTime        time.Time        `json:"last_event_time"`
	SuccessRate          float64          `json:"success_rate"`
	AvgDurationMs        float64          `json:"avg_duration_ms"`
}

// Snapshot returns a point-in-time copy of the metrics.
func (m *ExecutionMetrics) Snapshot() ExecutionMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byBinary := make(map[string]int64, len(m.executionsByBinary))
	for k, v := range m.executionsByBinary {
		byBinary[k] = v
	}

	successRate := float64(0)
	avgDuration := float64(0)
	completed := m.successfulExecutions + m.failedExecutions + m.killedExecutions
	if completed > 0 {
		successRate = float64(m.successfulExecutions) / float64(completed)
		avgDuration = float64(m.totalDurationMs) / float64(completed)
	}

	return ExecutionMetricsSnapshot{
		TotalExecutions:      m.totalExecutions,
		SuccessfulExecutions: m.successfulExecutions,
		FailedExecutions:     m.failedExecutions,
		KilledExecutions:     m.killedExecutions,
		BlockedExecutions:    m.blockedExecutions,
		TotalDurationMs:      m.totalDurationMs,
		ExecutionsByBinary:   byBinary,
		LastEventTime:        m.lastEventTime,
		SuccessRate:          successRate,
		AvgDurationMs:        avgDuration,
	}
}
