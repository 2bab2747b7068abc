package core

import (
	"context"
	"fmt"
)

// =============================================================================
// ReturnCode: Outcome tag attached to every task run
// =============================================================================

// ReturnCode is ordered by severity so that the worst of two codes is the larger one.
type ReturnCode int

const (
	// Finished: normal completion
	Finished ReturnCode = iota

	// Canceled: cooperative abort, not treated as a failure
	Canceled

	// Error: a leaf or a composition step failed
	Error
)

func (c ReturnCode) String() string {
	switch c {
	case Finished:
		return "finished"
	case Canceled:
		return "canceled"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("ReturnCode(%d)", int(c))
	}
}

// Worst returns the more severe of two return codes (Error > Canceled > Finished).
func Worst(a, b ReturnCode) ReturnCode {
	if a > b {
		return a
	}
	return b
}

// =============================================================================
// Task: Immutable node of the computation tree
// =============================================================================

type TaskKind int

const (
	KindLeaf TaskKind = iota
	KindSequential
	KindParallel
	KindDecorator
)

func (k TaskKind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindSequential:
		return "sequential"
	case KindParallel:
		return "parallel"
	case KindDecorator:
		return "decorator"
	default:
		return fmt.Sprintf("TaskKind(%d)", int(k))
	}
}

// LeafFunc is the compute function of a leaf task.
// ctx carries the running ExecutionContext (see CurrentExecutionContext).
// Returning an error that wraps ErrCanceled reports Canceled instead of Error.
type LeafFunc func(ctx context.Context, input, supervision any) (any, error)

// ParallelTask is implemented by the code that owns a parallel node.
//
// Prepare builds the TaskState holding one SubTask per independent unit of work.
// Finalize merges the sub-outputs once every sub-task has finished; it is never
// called for a branch that failed or was canceled.
type ParallelTask interface {
	Prepare(ctx context.Context, input, supervision any) (*TaskState, error)
	Finalize(ctx context.Context, state *TaskState) (any, error)
}

// ParallelFuncs adapts a pair of functions to the ParallelTask interface.
type ParallelFuncs struct {
	PrepareFunc  func(ctx context.Context, input, supervision any) (*TaskState, error)
	FinalizeFunc func(ctx context.Context, state *TaskState) (any, error)
}

func (p ParallelFuncs) Prepare(ctx context.Context, input, supervision any) (*TaskState, error) {
	return p.PrepareFunc(ctx, input, supervision)
}

func (p ParallelFuncs) Finalize(ctx context.Context, state *TaskState) (any, error) {
	if p.FinalizeFunc == nil {
		return state.Outputs(), nil
	}
	return p.FinalizeFunc(ctx, state)
}

// DecoratorHooks run around the wrapped task of a decorator node.
// Either hook may be nil.
type DecoratorHooks struct {
	Before func(ctx context.Context, input, supervision any) (any, any, error)
	After  func(ctx context.Context, input, supervision, output any) (any, error)
}

// Task describes one computation node. Tasks are assembled once and are
// read-only during execution, so the same tree may be run concurrently.
type Task struct {
	name     string
	kind     TaskKind
	leaf     LeafFunc
	children []*Task
	parallel ParallelTask
	hooks    DecoratorHooks
	inner    *Task
}

// NewLeaf creates a leaf task. Panics if fn is nil.
func NewLeaf(name string, fn LeafFunc) *Task {
	if fn == nil {
		panic("NewLeaf: fn must not be nil")
	}
	return &Task{name: name, kind: KindLeaf, leaf: fn}
}

// NewSequential creates a task running children in order, threading each
// output into the next child's input.
func NewSequential(name string, children ...*Task) *Task {
	for i, child := range children {
		if child == nil {
			panic(fmt.Sprintf("NewSequential: child %d of %q is nil", i, name))
		}
	}
	return &Task{name: name, kind: KindSequential, children: append([]*Task(nil), children...)}
}

// NewParallel creates a task whose sub-tasks may be spread over the thread pool.
// Timing statistics are keyed by Signature, so distinct parallel tasks should
// carry distinct names.
func NewParallel(name string, impl ParallelTask) *Task {
	if impl == nil {
		panic("NewParallel: impl must not be nil")
	}
	return &Task{name: name, kind: KindParallel, parallel: impl}
}

// NewDecorator wraps inner with before/after hooks.
func NewDecorator(name string, inner *Task, hooks DecoratorHooks) *Task {
	if inner == nil {
		panic("NewDecorator: inner must not be nil")
	}
	return &Task{name: name, kind: KindDecorator, inner: inner, hooks: hooks}
}

func (t *Task) Name() string   { return t.name }
func (t *Task) Kind() TaskKind { return t.kind }
func (t *Task) Inner() *Task   { return t.inner }

// Children returns a copy of the sequential children.
func (t *Task) Children() []*Task {
	return append([]*Task(nil), t.children...)
}

// Signature identifies the task in the TimingsCache.
func (t *Task) Signature() string {
	return t.kind.String() + ":" + t.name
}

func (t *Task) String() string {
	if t.name == "" {
		return t.kind.String()
	}
	return t.name
}

// =============================================================================
// TaskState: Working state of one parallel dispatch
// =============================================================================

// SubTask is one independent unit of a parallel dispatch.
type SubTask struct {
	Task        *Task
	Input       any
	Supervision any
}

// TaskState holds the parallel task's own input and the sub-task list.
// Every output slot is written once, by the single Job owning its index.
type TaskState struct {
	Input       any
	Supervision any
	SubTasks    []SubTask

	outputs []any
}

// NewTaskState creates a state with one empty output slot per sub-task.
func NewTaskState(input, supervision any, subTasks []SubTask) *TaskState {
	return &TaskState{
		Input:       input,
		Supervision: supervision,
		SubTasks:    subTasks,
		outputs:     make([]any, len(subTasks)),
	}
}

// Len returns the number of sub-tasks.
func (s *TaskState) Len() int {
	return len(s.SubTasks)
}

// Output returns the output of sub-task i. Only valid inside Finalize.
func (s *TaskState) Output(i int) any {
	return s.outputs[i]
}

// Outputs returns a copy of all sub-outputs in sub-task order.
func (s *TaskState) Outputs() []any {
	return append([]any(nil), s.outputs...)
}

// resetOutputs sizes the output slots to the sub-task list. States built as
// literals, or whose SubTasks grew after NewTaskState, get fresh slots here.
func (s *TaskState) resetOutputs() {
	if len(s.outputs) != len(s.SubTasks) {
		s.outputs = make([]any, len(s.SubTasks))
	}
}

// partition hands out the slots [begin, end). The capacity is clipped so the
// returned slice can never reach a neighbouring partition.
func (s *TaskState) partition(begin, end int) []any {
	return s.outputs[begin:end:end]
}

// =============================================================================
// Context Helper
// =============================================================================
type executionContextKeyType struct{}

var executionContextKey executionContextKeyType

// CurrentExecutionContext returns the ExecutionContext running the calling leaf, or nil.
func CurrentExecutionContext(ctx context.Context) *ExecutionContext {
	if v := ctx.Value(executionContextKey); v != nil {
		return v.(*ExecutionContext)
	}
	return nil
}
