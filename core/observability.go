package core

import "time"

// JobExecutionRecord captures a completed Job.
type JobExecutionRecord struct {
	JobID      JobID
	Name       string
	PoolID     string
	WorkerID   int
	Priority   int
	Range      JobRange
	Atomic     bool
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Code       ReturnCode
	Panicked   bool
}

// WorkerStatus is the activity of one worker goroutine.
type WorkerStatus struct {
	ID int

	// Job is the innermost Job the worker is running, empty when idle.
	Job string

	// Stack is the execution path of that Job's branch.
	Stack string

	// Nested counts the Jobs the worker picked up while waiting on its own.
	Nested int
}

// PoolStats represents runtime observability state for a thread pool.
type PoolStats struct {
	ID          string
	Workers     int
	Queued      int
	Active      int
	Waiting     int
	Outstanding int
	Running     bool
	Stopping    bool
	WorkerState []WorkerStatus
}
