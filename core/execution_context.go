package core

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"
)

// ContextKind identifies how an ExecutionContext schedules parallel work.
type ContextKind int

const (
	// ContextSingleThreaded runs everything on the calling goroutine.
	ContextSingleThreaded ContextKind = iota

	// ContextPool dispatches to a ThreadPool and blocks the caller while waiting.
	ContextPool

	// ContextWorker is created per Job on a pool worker; it runs queued Jobs
	// while waiting on its own.
	ContextWorker

	// ContextJobThread runs a root task on a dedicated goroutine with its own
	// cancel flag (see LaunchJobThread).
	ContextJobThread
)

func (k ContextKind) String() string {
	switch k {
	case ContextSingleThreaded:
		return "single-threaded"
	case ContextPool:
		return "pool"
	case ContextWorker:
		return "worker"
	case ContextJobThread:
		return "job-thread"
	default:
		return fmt.Sprintf("ContextKind(%d)", int(k))
	}
}

// ContextOptions configures an ExecutionContext. All fields are optional.
type ContextOptions struct {
	// Timings is shared by every context of one engine. Defaults to a new cache.
	Timings *TimingsCache

	// Telemetry observes task runs. Defaults to NopTelemetry.
	Telemetry Telemetry

	// Logger receives split decisions. Defaults to the pool's logger, or NoOpLogger.
	Logger Logger

	// Metrics receives split decisions. Defaults to the pool's metrics, or NilMetrics.
	Metrics Metrics

	// Cancel is polled at every task entry. Defaults to never.
	Cancel CancelSource

	// BaseContext is passed to task code. Its cancellation also stops the run.
	BaseContext context.Context
}

// ExecutionContext runs tasks. It owns the ExecutionStack of one logical
// branch and is not safe for concurrent Run calls; use one context per
// goroutine, or Submit / LaunchJobThread for concurrent roots.
type ExecutionContext struct {
	kind     ContextKind
	pool     *ThreadPool
	ownsPool bool
	worker   int

	timings      *TimingsCache
	telemetry    Telemetry
	logger       Logger
	metrics      Metrics
	panicHandler PanicHandler

	// userCancel is inherited by every Job spawned from this context;
	// cancel adds the pool stop for worker contexts.
	userCancel CancelSource
	cancel     CancelSource

	stack     *ExecutionStack
	atomicJob bool

	baseCtx context.Context
	ctx     context.Context
}

func newExecutionContext(kind ContextKind, pool *ThreadPool, opts ContextOptions) *ExecutionContext {
	c := &ExecutionContext{
		kind:       kind,
		pool:       pool,
		worker:     -1,
		timings:    opts.Timings,
		telemetry:  opts.Telemetry,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		userCancel: AnyCancel(opts.Cancel),
		stack:      NewExecutionStack(),
		baseCtx:    opts.BaseContext,
	}
	if c.timings == nil {
		c.timings = NewTimingsCache()
	}
	if c.telemetry == nil {
		c.telemetry = NopTelemetry{}
	}
	if pool != nil {
		if c.logger == nil {
			c.logger = pool.scheduler.GetLogger()
		}
		if c.metrics == nil {
			c.metrics = pool.scheduler.GetMetrics()
		}
		c.panicHandler = pool.scheduler.GetPanicHandler()
	}
	if c.logger == nil {
		c.logger = NewNoOpLogger()
	}
	if c.metrics == nil {
		c.metrics = &NilMetrics{}
	}
	if c.panicHandler == nil {
		c.panicHandler = &DefaultPanicHandler{}
	}
	if c.baseCtx == nil {
		c.baseCtx = context.Background()
	} else {
		c.userCancel = AnyCancel(c.userCancel, CancelOnDone(c.baseCtx))
	}
	c.cancel = c.userCancel
	c.ctx = context.WithValue(c.baseCtx, executionContextKey, c)
	return c
}

// NewSingleThreadedContext runs every task on the calling goroutine.
// Parallel tasks always run their sub-tasks inline.
func NewSingleThreadedContext(opts ContextOptions) *ExecutionContext {
	return newExecutionContext(ContextSingleThreaded, nil, opts)
}

// NewPoolContext dispatches parallel work to pool. The pool must be started
// by the caller and outlive the context.
func NewPoolContext(pool *ThreadPool, opts ContextOptions) *ExecutionContext {
	if pool == nil {
		panic("NewPoolContext: pool must not be nil")
	}
	return newExecutionContext(ContextPool, pool, opts)
}

// NewOwningPoolContext creates and starts a dedicated pool; Close stops it.
func NewOwningPoolContext(id string, workers int, config *PoolConfig, opts ContextOptions) (*ExecutionContext, error) {
	if workers < 1 {
		return nil, fmt.Errorf("pool %q: %w (got %d)", id, ErrInvalidWorkers, workers)
	}
	pool := NewThreadPoolWithConfig(id, workers, config)
	base := opts.BaseContext
	if base == nil {
		base = context.Background()
	}
	pool.Start(base)

	c := newExecutionContext(ContextPool, pool, opts)
	c.ownsPool = true
	return c, nil
}

// newWorkerContext creates the context a Job runs on. It starts from a copy
// of the submitting branch's stack and inherits its atomic marking.
func newWorkerContext(job *Job, pool *ThreadPool, worker int) *ExecutionContext {
	origin := job.origin
	c := &ExecutionContext{
		kind:         ContextWorker,
		pool:         pool,
		worker:       worker,
		timings:      origin.timings,
		telemetry:    origin.telemetry,
		logger:       origin.logger,
		metrics:      origin.metrics,
		panicHandler: origin.panicHandler,
		userCancel:   origin.userCancel,
		cancel:       AnyCancel(origin.userCancel, CancelSourceFunc(pool.stopRequested)),
		stack:        job.stack.Clone(),
		atomicJob:    job.atomic,
		baseCtx:      origin.baseCtx,
	}
	c.ctx = context.WithValue(c.baseCtx, executionContextKey, c)
	return c
}

// newJobThreadContext creates a root context sharing parent's pool, timings
// and telemetry, stopped by either parent's cancel source or flag.
func newJobThreadContext(parent *ExecutionContext, flag *CancelFlag) *ExecutionContext {
	c := &ExecutionContext{
		kind:         ContextJobThread,
		pool:         parent.pool,
		worker:       -1,
		timings:      parent.timings,
		telemetry:    parent.telemetry,
		logger:       parent.logger,
		metrics:      parent.metrics,
		panicHandler: parent.panicHandler,
		userCancel:   AnyCancel(parent.userCancel, flag),
		stack:        NewExecutionStack(),
		baseCtx:      parent.baseCtx,
	}
	c.cancel = c.userCancel
	c.ctx = context.WithValue(c.baseCtx, executionContextKey, c)
	return c
}

func (c *ExecutionContext) Kind() ContextKind        { return c.kind }
func (c *ExecutionContext) Stack() *ExecutionStack   { return c.stack }
func (c *ExecutionContext) Timings() *TimingsCache   { return c.timings }
func (c *ExecutionContext) Pool() *ThreadPool        { return c.pool }
func (c *ExecutionContext) Logger() Logger           { return c.logger }
func (c *ExecutionContext) Context() context.Context { return c.ctx }
func (c *ExecutionContext) IsAtomicJob() bool        { return c.atomicJob }
func (c *ExecutionContext) StopRequested() bool      { return c.cancel.StopRequested() }

// NumWorkers returns the worker count used to size splits, 1 without a pool.
func (c *ExecutionContext) NumWorkers() int {
	if c.pool == nil {
		return 1
	}
	return c.pool.NumWorkers()
}

// Run executes task and returns its output and return code. The output is
// nil unless the code is Finished.
func (c *ExecutionContext) Run(task *Task, input, supervision any) (any, ReturnCode) {
	output, code, _ := c.run(task, input, supervision)
	return output, code
}

// Execute is Run with the outcome expressed as an error: nil when finished,
// a *TaskError on failure, an error wrapping ErrCanceled on cancellation.
func (c *ExecutionContext) Execute(task *Task, input, supervision any) (any, error) {
	output, code, err := c.run(task, input, supervision)
	return output, resultError(code, err)
}

func resultError(code ReturnCode, err error) error {
	switch code {
	case Finished:
		return nil
	case Canceled:
		if err != nil && errors.Is(err, ErrCanceled) {
			return err
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCanceled, err)
		}
		return ErrCanceled
	default:
		if err == nil {
			return errors.New("task failed without an error")
		}
		return err
	}
}

// Submit schedules task as one Job and returns immediately. Without a pool
// the task runs before Submit returns.
func (c *ExecutionContext) Submit(task *Task, input, supervision any) *JobHandle {
	group := NewJobGroup()
	job := newTaskJob(c, task, input, supervision, c.stack.Clone(), group)
	group.add(1)

	if c.pool == nil {
		job.execute(c)
		group.complete(job.code, job.err)
		return &JobHandle{job: job}
	}
	c.pool.Submit(job, c.stack.Depth())
	return &JobHandle{job: job}
}

// Wait blocks until h completes and returns its result. Worker contexts run
// other queued Jobs in the meantime.
func (c *ExecutionContext) Wait(h *JobHandle) (any, ReturnCode, error) {
	c.wait(h.job.group)
	return h.result()
}

func (c *ExecutionContext) wait(group *JobGroup) {
	switch {
	case c.pool == nil:
		group.Wait()
	case c.kind == ContextWorker:
		c.pool.helpUntil(c.worker, group)
	default:
		c.pool.WaitFor(group)
	}
}

// Close stops the pool if the context owns it.
func (c *ExecutionContext) Close() {
	if c.ownsPool {
		c.pool.Stop()
	}
}

// run is the dispatch shared by every context kind.
func (c *ExecutionContext) run(task *Task, input, supervision any) (any, ReturnCode, error) {
	if task == nil {
		return nil, Error, ErrNilTask
	}
	if c.cancel.StopRequested() {
		return nil, Canceled, nil
	}

	entry := c.stack.Push(task)
	frame := Frame{
		ID:    entry.ID,
		Task:  task,
		Depth: c.stack.Depth(),
		Path:  c.stack.String(),
		Kind:  c.kind,
	}
	if parent, ok := c.stack.Parent(); ok {
		frame.ParentID = parent.ID
	}
	c.telemetry.OnEnter(frame)
	startedAt := time.Now()

	output, code, err := c.dispatch(task, input, supervision)

	if code == Error {
		var te *TaskError
		if !errors.As(err, &te) {
			if err == nil {
				err = errors.New("task failed without an error")
			}
			err = &TaskError{Task: task.String(), Path: frame.Path, Err: err}
			c.telemetry.OnError(frame, err)
		}
	}
	if code != Finished {
		output = nil
	}

	c.telemetry.OnLeave(frame, Result{
		Output:   output,
		Code:     code,
		Err:      err,
		Duration: time.Since(startedAt),
	})
	c.stack.Pop()
	return output, code, err
}

func (c *ExecutionContext) dispatch(task *Task, input, supervision any) (any, ReturnCode, error) {
	switch task.kind {
	case KindLeaf:
		output, err := c.invoke(task, "leaf", func() (any, error) {
			return task.leaf(c.ctx, input, supervision)
		})
		return output, codeForError(err), err

	case KindSequential:
		current := input
		for _, child := range task.children {
			output, code, err := c.run(child, current, supervision)
			if code != Finished {
				return nil, code, err
			}
			current = output
		}
		return current, Finished, nil

	case KindDecorator:
		return c.runDecorator(task, input, supervision)

	case KindParallel:
		return c.runParallel(task, input, supervision)

	default:
		return nil, Error, fmt.Errorf("unknown task kind %v", task.kind)
	}
}

func (c *ExecutionContext) runDecorator(task *Task, input, supervision any) (any, ReturnCode, error) {
	hooks := task.hooks
	if hooks.Before != nil {
		var in, sup any
		_, err := c.invoke(task, "before hook", func() (any, error) {
			var err error
			in, sup, err = hooks.Before(c.ctx, input, supervision)
			return nil, err
		})
		if err != nil {
			return nil, codeForError(err), err
		}
		input, supervision = in, sup
	}

	output, code, err := c.run(task.inner, input, supervision)
	if code != Finished {
		return nil, code, err
	}

	if hooks.After != nil {
		output, err = c.invoke(task, "after hook", func() (any, error) {
			return hooks.After(c.ctx, input, supervision, output)
		})
		if err != nil {
			return nil, codeForError(err), err
		}
	}
	return output, Finished, nil
}

func (c *ExecutionContext) prepare(task *Task, input, supervision any) (*TaskState, error) {
	var state *TaskState
	_, err := c.invoke(task, "prepare", func() (any, error) {
		var err error
		state, err = task.parallel.Prepare(c.ctx, input, supervision)
		return nil, err
	})
	return state, err
}

func (c *ExecutionContext) finalize(task *Task, state *TaskState) (any, error) {
	return c.invoke(task, "finalize", func() (any, error) {
		return task.parallel.Finalize(c.ctx, state)
	})
}

// invoke calls task code, turning a panic into an error.
func (c *ExecutionContext) invoke(task *Task, stage string, fn func() (any, error)) (output any, err error) {
	defer func() {
		if r := recover(); r != nil {
			poolID := ""
			if c.pool != nil {
				poolID = c.pool.ID()
			}
			c.panicHandler.HandlePanic(c.ctx, poolID, c.worker, r, debug.Stack())
			c.metrics.RecordJobPanic(poolID, r)
			output = nil
			err = fmt.Errorf("%s of %s panicked: %v", stage, task, r)
		}
	}()
	return fn()
}
