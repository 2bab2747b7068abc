package core

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// JobID uniquely identifies a Job or a JobThread.
type JobID = ulid.ULID

// GenerateJobID returns a new, lexically sortable JobID.
func GenerateJobID() JobID {
	return ulid.Make()
}

// =============================================================================
// JobGroup: Completion handle for a set of Jobs
// =============================================================================

// JobGroup counts the Jobs submitted under one handle and wakes the waiter
// once the last of them completes. A group is used for a single batch.
type JobGroup struct {
	remaining atomic.Int64
	done      chan struct{}

	mu       sync.Mutex
	worst    ReturnCode
	firstErr error
}

func NewJobGroup() *JobGroup {
	return &JobGroup{done: make(chan struct{})}
}

func (g *JobGroup) add(n int) {
	g.remaining.Add(int64(n))
}

// complete records the outcome of one Job.
func (g *JobGroup) complete(code ReturnCode, err error) {
	g.mu.Lock()
	if code != Finished && err != nil && (code > g.worst || g.firstErr == nil) {
		g.firstErr = err
	}
	g.worst = Worst(g.worst, code)
	g.mu.Unlock()

	if g.remaining.Add(-1) == 0 {
		close(g.done)
	}
}

// Done is closed once every Job of the group has completed.
func (g *JobGroup) Done() <-chan struct{} {
	return g.done
}

func (g *JobGroup) finished() bool {
	return g.remaining.Load() <= 0
}

// Pending returns the number of Jobs not yet completed.
func (g *JobGroup) Pending() int {
	return int(g.remaining.Load())
}

// Wait blocks until every Job of the group has completed.
func (g *JobGroup) Wait() {
	if g.finished() {
		return
	}
	<-g.done
}

// Result returns the worst return code observed and the error that produced it.
func (g *JobGroup) Result() (ReturnCode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.worst, g.firstErr
}

// =============================================================================
// Job: Schedulable unit of work
// =============================================================================

// Job wraps either a whole task run or a contiguous range of a parallel
// task's sub-tasks. A range Job owns the output slots of its range.
type Job struct {
	id       JobID
	name     string
	priority int

	// atomic forbids any further splitting inside this Job.
	atomic bool

	origin *ExecutionContext
	stack  *ExecutionStack
	group  *JobGroup

	// Range mode
	parent  *Task
	state   *TaskState
	rng     JobRange
	outputs []any

	// Single-task mode
	task        *Task
	input       any
	supervision any
	output      any

	code ReturnCode
	err  error
}

func newRangeJob(origin *ExecutionContext, parent *Task, state *TaskState, rng JobRange, atomic bool, stack *ExecutionStack, group *JobGroup) *Job {
	return &Job{
		id:      GenerateJobID(),
		name:    fmt.Sprintf("%s[%d:%d]", parent, rng.Begin, rng.End),
		atomic:  atomic,
		origin:  origin,
		stack:   stack,
		group:   group,
		parent:  parent,
		state:   state,
		rng:     rng,
		outputs: state.partition(rng.Begin, rng.End),
	}
}

func newTaskJob(origin *ExecutionContext, task *Task, input, supervision any, stack *ExecutionStack, group *JobGroup) *Job {
	return &Job{
		id:          GenerateJobID(),
		name:        task.String(),
		atomic:      origin.atomicJob,
		origin:      origin,
		stack:       stack,
		group:       group,
		task:        task,
		input:       input,
		supervision: supervision,
	}
}

func (j *Job) ID() JobID       { return j.id }
func (j *Job) Name() string    { return j.name }
func (j *Job) Priority() int   { return j.priority }
func (j *Job) IsAtomic() bool  { return j.atomic }
func (j *Job) Range() JobRange { return j.rng }

// execute runs the Job on ec and records its outcome.
func (j *Job) execute(ec *ExecutionContext) {
	if j.task != nil {
		j.output, j.code, j.err = ec.run(j.task, j.input, j.supervision)
		return
	}
	j.code, j.err = runSubTasks(ec, j.parent, j.state, j.rng, j.outputs)
}

// fail completes a Job that never ran.
func (j *Job) fail(code ReturnCode, err error) {
	j.code, j.err = code, err
	j.group.complete(code, err)
}

// runSubTasks runs sub-tasks [rng.Begin, rng.End) of parent on ec, writing
// each output into the owned slice out. It stops at the first sub-task that
// does not finish.
func runSubTasks(ec *ExecutionContext, parent *Task, state *TaskState, rng JobRange, out []any) (ReturnCode, error) {
	signature := parent.Signature()
	for i := rng.Begin; i < rng.End; i++ {
		sub := state.SubTasks[i]
		startedAt := time.Now()
		output, code, err := ec.run(sub.Task, sub.Input, sub.Supervision)
		if code == Canceled {
			return code, err
		}
		ec.timings.Record(signature, time.Since(startedAt))
		if code != Finished {
			return code, err
		}
		out[i-rng.Begin] = output
	}
	return Finished, nil
}

// =============================================================================
// JobHandle: Result of a fire-and-forget submission
// =============================================================================

// JobHandle tracks a task submitted with ExecutionContext.Submit.
type JobHandle struct {
	job *Job
}

func (h *JobHandle) ID() JobID { return h.job.id }

// Done is closed once the task has completed.
func (h *JobHandle) Done() <-chan struct{} {
	return h.job.group.Done()
}

// Wait blocks until the task completes and returns its result.
// From inside a running task use ExecutionContext.Wait instead, which keeps
// the worker busy while waiting.
func (h *JobHandle) Wait() (any, ReturnCode, error) {
	h.job.group.Wait()
	return h.result()
}

func (h *JobHandle) result() (any, ReturnCode, error) {
	code, err := h.job.group.Result()
	if code != Finished {
		return nil, code, err
	}
	return h.job.output, code, nil
}
