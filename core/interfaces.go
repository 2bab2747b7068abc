package core

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling job panics
// =============================================================================

// PanicHandler is called when a Job panics outside of task code (task code
// panics are converted into Error results by the ExecutionContext).
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a job panics.
	//
	// Parameters:
	// - ctx: The context of the worker that ran the job
	// - poolID: The ID of the thread pool where the panic occurred
	// - workerID: The ID of the worker
	// - panicInfo: The panic value recovered from the job
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, poolID string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler provides a basic panic handler that logs to stdout.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stdout.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, poolID string, workerID int, panicInfo any, stackTrace []byte) {
	fmt.Printf("[Worker %d @ %s] Panic: %v\nStack trace:\n%s", workerID, poolID, panicInfo, stackTrace)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting engine metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting task execution performance.
type Metrics interface {
	// RecordJobDuration records how long a Job took, priority being its stack depth.
	RecordJobDuration(poolID string, priority int, code ReturnCode, duration time.Duration)

	// RecordJobPanic records that a Job panicked outside of task code.
	RecordJobPanic(poolID string, panicInfo any)

	// RecordQueueDepth records the current number of queued Jobs.
	RecordQueueDepth(poolID string, depth int)

	// RecordJobRejected records that a Job was rejected (e.g., during shutdown).
	RecordJobRejected(poolID string, reason string)

	// RecordSplitDecision records the plan chosen for one parallel dispatch.
	RecordSplitDecision(signature string, plan SplitPlan)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordJobDuration(poolID string, priority int, code ReturnCode, duration time.Duration) {
}
func (m *NilMetrics) RecordJobPanic(poolID string, panicInfo any)          {}
func (m *NilMetrics) RecordQueueDepth(poolID string, depth int)            {}
func (m *NilMetrics) RecordJobRejected(poolID string, reason string)       {}
func (m *NilMetrics) RecordSplitDecision(signature string, plan SplitPlan) {}

// =============================================================================
// RejectedJobHandler: Interface for handling rejected jobs
// =============================================================================

// RejectedJobHandler is called when a Job is submitted to a stopped pool.
// The Job itself completes as Canceled so its waiter never hangs.
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedJobHandler interface {
	HandleRejectedJob(poolID string, jobName string, reason string)
}

// DefaultRejectedJobHandler logs rejected jobs through a Logger.
type DefaultRejectedJobHandler struct {
	Logger Logger
}

func (h *DefaultRejectedJobHandler) HandleRejectedJob(poolID string, jobName string, reason string) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Warn("job rejected", F("pool", poolID), F("job", jobName), F("reason", reason))
}

// =============================================================================
// PoolConfig: Configuration for ThreadPool
// =============================================================================

// PoolConfig holds configuration options for ThreadPool.
// All fields are optional; if not provided, default implementations will be used.
type PoolConfig struct {
	// PanicHandler is called when a job panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record pool metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedJobHandler is called when a job is rejected. Defaults to DefaultRejectedJobHandler.
	RejectedJobHandler RejectedJobHandler

	// Logger receives lifecycle messages. Defaults to NoOpLogger.
	Logger Logger

	// HistoryCapacity bounds RecentJobs. Defaults to 100.
	HistoryCapacity int
}

// DefaultPoolConfig returns a config with default handlers.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		PanicHandler:       &DefaultPanicHandler{},
		Metrics:            &NilMetrics{},
		RejectedJobHandler: &DefaultRejectedJobHandler{},
		Logger:             NewNoOpLogger(),
		HistoryCapacity:    defaultJobHistoryCapacity,
	}
}
