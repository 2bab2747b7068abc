// Package taskengine provides an adaptive parallel task-execution engine for Go.
//
// A computation is described as a tree of Tasks: leaves that compute, sequences
// that thread one output into the next input, decorators that wrap a task with
// hooks, and parallel nodes that fan out into independent sub-tasks. An
// ExecutionContext walks the tree and decides, per parallel node, whether to run
// the sub-tasks inline or to split them into Jobs for a fixed pool of worker
// goroutines. The decision adapts to the running mean duration of each parallel
// task's sub-tasks, aiming for about one second of work per Job.
//
// # Quick Start
//
// Initialize the global thread pool at application startup:
//
//	taskengine.InitGlobalThreadPool(4) // 4 workers
//	defer taskengine.ShutdownGlobalThreadPool()
//
// Outside small programs, prefer an owned pool and an injected timings cache
// over the globals:
//
//	pool := core.NewThreadPool("batch", 4)
//	pool.Start(ctx)
//	defer pool.Stop()
//	ec := core.NewPoolContext(pool, core.ContextOptions{Timings: timings})
//
// Build a task tree and run it:
//
//	square := taskengine.NewLeaf("square", func(ctx context.Context, in, sup any) (any, error) {
//		v := in.(int)
//		return v * v, nil
//	})
//	sum := taskengine.NewParallel("sum", taskengine.ParallelFuncs{
//		PrepareFunc: func(ctx context.Context, in, sup any) (*taskengine.TaskState, error) {
//			var subs []taskengine.SubTask
//			for _, v := range in.([]int) {
//				subs = append(subs, taskengine.SubTask{Task: square, Input: v})
//			}
//			return taskengine.NewTaskState(in, sup, subs), nil
//		},
//		FinalizeFunc: func(ctx context.Context, state *taskengine.TaskState) (any, error) {
//			total := 0
//			for _, out := range state.Outputs() {
//				total += out.(int)
//			}
//			return total, nil
//		},
//	})
//
//	ec := taskengine.NewContext(taskengine.ContextOptions{})
//	out, err := ec.Execute(sum, []int{1, 2, 3}, nil)
//
// # Key Concepts
//
// ReturnCode: every run ends Finished, Canceled or Error. Sequences and
// decorators stop at the first non-Finished child; a parallel node reports the
// worst code of its sub-tasks and only finalizes when all of them finished.
// Sibling Jobs of a failed Job are not canceled.
//
// ThreadPool: worker goroutines pulling Jobs from a priority queue. A Job's
// priority is the depth of the stack that created it, so started branches are
// completed before new ones are opened. A worker waiting on its own Jobs keeps
// running queued Jobs, so recursive fan-out cannot exhaust the pool.
//
// Cancellation: cooperative. A CancelSource is polled at every task entry; a
// leaf that already started always completes.
//
// # Observability
//
// Telemetry receives enter/leave/error events for every task run. The
// observability/prometheus package exports pool and split metrics, and the
// logadapter package plugs zerolog or logr into core.Logger.
//
// The cmd/taskengine command runs a synthetic workload configured from YAML
// (see the config package) and prints split decisions with "taskengine plan".
//
// For more details, see https://github.com/Swind/go-task-engine
package taskengine
