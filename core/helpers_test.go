package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

// newStartedPool returns a running pool stopped at test cleanup.
func newStartedPool(t *testing.T, workers int, config *PoolConfig) *ThreadPool {
	t.Helper()
	if config == nil {
		config = DefaultPoolConfig()
	}
	pool := NewThreadPoolWithConfig("test-pool", workers, config)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)
	return pool
}

// constLeaf returns a leaf producing value.
func constLeaf(name string, value any) *Task {
	return NewLeaf(name, func(ctx context.Context, input, supervision any) (any, error) {
		return value, nil
	})
}

// squareTask is a parallel task squaring every int of its []int input and
// summing the results.
func squareTask(name string, leafCalls *countingCounter) *Task {
	square := NewLeaf(name+".square", func(ctx context.Context, input, supervision any) (any, error) {
		if leafCalls != nil {
			leafCalls.inc()
		}
		v := input.(int)
		return v * v, nil
	})
	return NewParallel(name, ParallelFuncs{
		PrepareFunc: func(ctx context.Context, input, supervision any) (*TaskState, error) {
			values := input.([]int)
			subs := make([]SubTask, len(values))
			for i, v := range values {
				subs[i] = SubTask{Task: square, Input: v}
			}
			return NewTaskState(input, supervision, subs), nil
		},
		FinalizeFunc: func(ctx context.Context, state *TaskState) (any, error) {
			sum := 0
			for _, out := range state.Outputs() {
				sum += out.(int)
			}
			return sum, nil
		},
	})
}

func intsUpTo(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func sumOfSquares(n int) int {
	sum := 0
	for i := 0; i < n; i++ {
		sum += i * i
	}
	return sum
}

type countingCounter struct {
	mu sync.Mutex
	n  int
}

func (c *countingCounter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *countingCounter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// =============================================================================
// Test PanicHandler / Metrics mocks
// =============================================================================

type PanicCall struct {
	PoolID    string
	WorkerID  int
	PanicInfo any
}

// TestPanicHandler is a mock panic handler for testing
type TestPanicHandler struct {
	mu    sync.Mutex
	calls []PanicCall
}

func (h *TestPanicHandler) HandlePanic(ctx context.Context, poolID string, workerID int, panicInfo any, stackTrace []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, PanicCall{PoolID: poolID, WorkerID: workerID, PanicInfo: panicInfo})
}

func (h *TestPanicHandler) CallCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

// TestMetrics is a mock metrics collector for testing
type TestMetrics struct {
	mu         sync.Mutex
	durations  []ReturnCode
	panics     int
	depths     []int
	rejections []string
	splits     []SplitPlan
}

func (m *TestMetrics) RecordJobDuration(poolID string, priority int, code ReturnCode, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations = append(m.durations, code)
}

func (m *TestMetrics) RecordJobPanic(poolID string, panicInfo any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panics++
}

func (m *TestMetrics) RecordQueueDepth(poolID string, depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depths = append(m.depths, depth)
}

func (m *TestMetrics) RecordJobRejected(poolID string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections = append(m.rejections, reason)
}

func (m *TestMetrics) RecordSplitDecision(signature string, plan SplitPlan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.splits = append(m.splits, plan)
}

func (m *TestMetrics) Splits() []SplitPlan {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SplitPlan(nil), m.splits...)
}

func (m *TestMetrics) Rejections() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.rejections...)
}

func (m *TestMetrics) PanicCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.panics
}

// TestRejectedJobHandler records rejected job names.
type TestRejectedJobHandler struct {
	mu   sync.Mutex
	jobs []string
}

func (h *TestRejectedJobHandler) HandleRejectedJob(poolID string, jobName string, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.jobs = append(h.jobs, jobName)
}

func (h *TestRejectedJobHandler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.jobs)
}
