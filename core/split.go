package core

import (
	"fmt"
	"math"
	"strings"
)

// targetJobMs is the amount of work, in milliseconds, a single Job aims for.
const targetJobMs = 1000.0

// JobRange is the half-open sub-task interval [Begin, End) owned by one Job.
type JobRange struct {
	Begin int
	End   int
}

func (r JobRange) Len() int { return r.End - r.Begin }

func (r JobRange) String() string {
	return fmt.Sprintf("[%d:%d)", r.Begin, r.End)
}

// SplitPlan is the outcome of the split decision for one parallel dispatch.
type SplitPlan struct {
	N       int
	Workers int
	MeanMs  float64
	Step    int

	// Inline is set when every sub-task runs on the calling goroutine.
	Inline bool

	// ChildAtomic marks the created Jobs as non-splittable.
	ChildAtomic bool

	// Ranges is empty when Inline is set or N is zero.
	Ranges []JobRange
}

// JobCount returns the number of Jobs the plan creates.
func (p SplitPlan) JobCount() int {
	return len(p.Ranges)
}

func (p SplitPlan) String() string {
	if p.N == 0 {
		return "empty"
	}
	if p.Inline {
		return fmt.Sprintf("inline n=%d step=%d", p.N, p.Step)
	}
	parts := make([]string, len(p.Ranges))
	for i, r := range p.Ranges {
		parts[i] = r.String()
	}
	return fmt.Sprintf("jobs=%d n=%d step=%d atomic=%t %s",
		len(p.Ranges), p.N, p.Step, p.ChildAtomic, strings.Join(parts, " "))
}

// PlanSplit decides how n sub-tasks are spread over workers.
//
// With no timing data each worker gets an equal share. Once the mean duration
// of the parallel task's sub-tasks is known, ranges grow to roughly one second
// of work, never below the equal share and never above n. A dispatch running
// inside an atomic Job is never split again.
func PlanSplit(n, workers int, isAtomicJob bool, meanMs float64) SplitPlan {
	if workers < 1 {
		workers = 1
	}
	plan := SplitPlan{N: n, Workers: workers, MeanMs: meanMs}
	if n <= 0 {
		plan.N = 0
		return plan
	}

	step0 := max(1, n/workers)
	step := step0
	switch {
	case isAtomicJob:
		step = n
	case meanMs > 0:
		target := math.Floor(targetJobMs / meanMs)
		switch {
		case target >= float64(n):
			step = n
		case target <= float64(step0):
			step = step0
		default:
			step = int(target)
		}
	}

	plan.Step = step
	plan.ChildAtomic = n/step >= workers
	if step == n {
		plan.Inline = true
		return plan
	}

	plan.Ranges = make([]JobRange, 0, (n+step-1)/step)
	for begin := 0; begin < n; begin += step {
		plan.Ranges = append(plan.Ranges, JobRange{Begin: begin, End: min(begin+step, n)})
	}
	return plan
}

// runParallel executes a parallel task: prepare, split, run or dispatch the
// sub-tasks, then finalize once every sub-task has finished.
func (c *ExecutionContext) runParallel(task *Task, input, supervision any) (any, ReturnCode, error) {
	state, err := c.prepare(task, input, supervision)
	if err != nil {
		return nil, codeForError(err), err
	}
	if state == nil {
		return nil, Error, ErrNilState
	}
	state.resetOutputs()

	n := state.Len()
	if n > 0 {
		plan := PlanSplit(n, c.NumWorkers(), c.atomicJob, c.timings.MeanOf(task.Signature()))
		c.logger.Debug("parallel split",
			F("task", task.String()),
			F("depth", c.stack.Depth()),
			F("plan", plan.String()),
		)
		c.metrics.RecordSplitDecision(task.Signature(), plan)

		var code ReturnCode
		if plan.Inline {
			code, err = runSubTasks(c, task, state, JobRange{Begin: 0, End: n}, state.partition(0, n))
		} else {
			code, err = c.dispatchJobs(task, state, plan)
		}
		if code != Finished {
			return nil, code, err
		}
	}

	output, err := c.finalize(task, state)
	if err != nil {
		return nil, codeForError(err), err
	}
	return output, Finished, nil
}

// dispatchJobs submits one Job per planned range and waits for all of them.
func (c *ExecutionContext) dispatchJobs(task *Task, state *TaskState, plan SplitPlan) (ReturnCode, error) {
	stack := c.stack.Clone()
	priority := stack.Depth()
	group := NewJobGroup()

	jobs := make([]*Job, len(plan.Ranges))
	for i, rng := range plan.Ranges {
		jobs[i] = newRangeJob(c, task, state, rng, plan.ChildAtomic, stack, group)
	}
	group.add(len(jobs))
	c.pool.SubmitAll(jobs, priority)
	c.wait(group)
	return group.Result()
}
