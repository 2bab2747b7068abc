package taskengine

import "github.com/Swind/go-task-engine/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the taskengine package for most use cases.

// Task is one node of the computation tree
type Task = core.Task

// TaskState holds the sub-tasks and outputs of one parallel dispatch
type TaskState = core.TaskState

// SubTask is one independent unit of a parallel dispatch
type SubTask = core.SubTask

// ParallelTask is implemented by the owner of a parallel node
type ParallelTask = core.ParallelTask

// ParallelFuncs adapts two functions to ParallelTask
type ParallelFuncs = core.ParallelFuncs

// DecoratorHooks run around a decorated task
type DecoratorHooks = core.DecoratorHooks

// LeafFunc is the compute function of a leaf
type LeafFunc = core.LeafFunc

// ReturnCode is the outcome of a task run
type ReturnCode = core.ReturnCode

// ExecutionContext runs task trees
type ExecutionContext = core.ExecutionContext

// ContextOptions configures an ExecutionContext
type ContextOptions = core.ContextOptions

// ThreadPool is the worker pool Jobs run on
type ThreadPool = core.ThreadPool

// PoolConfig configures a ThreadPool
type PoolConfig = core.PoolConfig

// JobThread runs a root task on its own goroutine
type JobThread = core.JobThread

// CancelSource is polled at every task entry
type CancelSource = core.CancelSource

// Return codes
const (
	Finished = core.Finished
	Canceled = core.Canceled
	Error    = core.Error
)

// Task constructors
var (
	NewLeaf         = core.NewLeaf
	NewSequential   = core.NewSequential
	NewParallel     = core.NewParallel
	NewDecorator    = core.NewDecorator
	NewTaskState    = core.NewTaskState
	NewCancelFlag   = core.NewCancelFlag
	CancelOnDone    = core.CancelOnDone
	LaunchJobThread = core.LaunchJobThread
)

// CurrentExecutionContext retrieves the running ExecutionContext from a leaf's context
var CurrentExecutionContext = core.CurrentExecutionContext
