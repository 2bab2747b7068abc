package core

import (
	"context"
	"sync"
)

// JobThread runs one root task on a dedicated goroutine. It shares the
// parent's pool, timings and telemetry but has its own stack and cancel flag.
type JobThread struct {
	id     JobID
	task   *Task
	ec     *ExecutionContext
	flag   *CancelFlag
	done   chan struct{}
	mu     sync.Mutex
	output any
	code   ReturnCode
	err    error
}

// LaunchJobThread starts task on a new goroutine and returns immediately.
func LaunchJobThread(parent *ExecutionContext, task *Task, input, supervision any) *JobThread {
	flag := NewCancelFlag()
	jt := &JobThread{
		id:   GenerateJobID(),
		task: task,
		ec:   newJobThreadContext(parent, flag),
		flag: flag,
		done: make(chan struct{}),
	}

	go func() {
		defer close(jt.done)
		output, code, err := jt.ec.run(task, input, supervision)

		jt.mu.Lock()
		jt.output, jt.code, jt.err = output, code, err
		jt.mu.Unlock()
	}()
	return jt
}

func (jt *JobThread) ID() JobID   { return jt.id }
func (jt *JobThread) Task() *Task { return jt.task }

// Cancel asks the thread to stop. Tasks not yet entered return Canceled;
// a leaf already running completes.
func (jt *JobThread) Cancel() {
	jt.flag.Cancel()
}

// Done is closed when the root task has returned.
func (jt *JobThread) Done() <-chan struct{} {
	return jt.done
}

// Wait blocks until the root task returns or ctx ends.
func (jt *JobThread) Wait(ctx context.Context) (any, ReturnCode, error) {
	select {
	case <-jt.done:
		return jt.Result()
	case <-ctx.Done():
		return nil, Canceled, ctx.Err()
	}
}

// Result returns the outcome. Before Done is closed it reports Canceled
// with a nil error.
func (jt *JobThread) Result() (any, ReturnCode, error) {
	select {
	case <-jt.done:
	default:
		return nil, Canceled, nil
	}
	jt.mu.Lock()
	defer jt.mu.Unlock()
	return jt.output, jt.code, jt.err
}

// Status returns the current execution path, empty once finished.
func (jt *JobThread) Status() string {
	return jt.ec.stack.String()
}

// Context returns the thread's ExecutionContext.
func (jt *JobThread) Context() *ExecutionContext {
	return jt.ec
}
