package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Swind/go-task-engine/config"
	"github.com/Swind/go-task-engine/core"
)

// buildWorkload returns a tree of Depth nested parallel levels with Items
// sub-tasks each. Leaves sleep for LeafCost and return 1, levels sum their
// children, so the result is Items^Depth.
func buildWorkload(w config.WorkloadConfig) *core.Task {
	task := workLeaf(w.LeafCost)
	for level := w.Depth; level >= 1; level-- {
		task = sumLevel(fmt.Sprintf("level-%d", level), task, w.Items)
	}
	return task
}

// expectedResult is the value buildWorkload's task produces.
func expectedResult(w config.WorkloadConfig) int {
	total := 1
	for i := 0; i < w.Depth; i++ {
		total *= w.Items
	}
	return total
}

func workLeaf(cost time.Duration) *core.Task {
	return core.NewLeaf("work", func(ctx context.Context, input, supervision any) (any, error) {
		if cost > 0 {
			timer := time.NewTimer(cost)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", core.ErrCanceled, ctx.Err())
			}
		}
		return 1, nil
	})
}

func sumLevel(name string, child *core.Task, items int) *core.Task {
	return core.NewParallel(name, core.ParallelFuncs{
		PrepareFunc: func(ctx context.Context, input, supervision any) (*core.TaskState, error) {
			subs := make([]core.SubTask, items)
			for i := range subs {
				subs[i] = core.SubTask{Task: child, Input: i}
			}
			return core.NewTaskState(input, supervision, subs), nil
		},
		FinalizeFunc: func(ctx context.Context, state *core.TaskState) (any, error) {
			total := 0
			for _, out := range state.Outputs() {
				total += out.(int)
			}
			return total, nil
		},
	})
}
