package taskengine

import (
	"context"
	"sync"

	"github.com/Swind/go-task-engine/core"
)

// =============================================================================
// Global Thread Pool Helper (Singleton)
// =============================================================================
//
// The global pool and timings cache serve small programs and examples.
// Libraries and services should create their own ThreadPool and pass it to
// core.NewPoolContext, with a shared TimingsCache in ContextOptions.Timings.

var (
	globalThreadPool *core.ThreadPool
	globalTimings    *core.TimingsCache
	globalMu         sync.Mutex
)

// InitGlobalThreadPool initializes the global thread pool with specified number of workers.
// It starts the pool immediately.
func InitGlobalThreadPool(workers int) {
	InitGlobalThreadPoolWithConfig(workers, core.DefaultPoolConfig())
}

// InitGlobalThreadPoolWithConfig is InitGlobalThreadPool with custom handlers.
func InitGlobalThreadPoolWithConfig(workers int, config *core.PoolConfig) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalThreadPool != nil {
		return // Already initialized
	}

	globalThreadPool = core.NewThreadPoolWithConfig("global-pool", workers, config)
	globalThreadPool.Start(context.Background())
	globalTimings = core.NewTimingsCache()
}

// GetGlobalThreadPool returns the global thread pool instance.
// It panics if InitGlobalThreadPool has not been called.
func GetGlobalThreadPool() *core.ThreadPool {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalThreadPool == nil {
		panic("GlobalThreadPool not initialized. Call InitGlobalThreadPool() first.")
	}
	return globalThreadPool
}

// GlobalTimings returns the TimingsCache shared by contexts created with
// NewContext, or nil before InitGlobalThreadPool.
func GlobalTimings() *core.TimingsCache {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalTimings
}

// ShutdownGlobalThreadPool stops the global thread pool.
func ShutdownGlobalThreadPool() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalThreadPool != nil {
		globalThreadPool.Stop()
		globalThreadPool = nil
		globalTimings = nil
	}
}

// NewContext creates an ExecutionContext on the global thread pool. Contexts
// created this way share one TimingsCache unless opts supplies another.
// This is the recommended way to get an ExecutionContext.
func NewContext(opts core.ContextOptions) *core.ExecutionContext {
	pool := GetGlobalThreadPool()
	if opts.Timings == nil {
		opts.Timings = GlobalTimings()
	}
	return core.NewPoolContext(pool, opts)
}

// NewSingleThreadedContext creates a context running everything on the caller.
func NewSingleThreadedContext(opts core.ContextOptions) *core.ExecutionContext {
	return core.NewSingleThreadedContext(opts)
}

// NewThreadPool creates a pool that is not started yet.
func NewThreadPool(id string, workers int) *core.ThreadPool {
	return core.NewThreadPool(id, workers)
}
