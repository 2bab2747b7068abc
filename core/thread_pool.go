package core

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// workerSlot tracks the Jobs a worker is running. A worker that waits on its
// own Jobs runs others in the meantime, so the slot is a stack.
type workerSlot struct {
	mu   sync.Mutex
	jobs []*Job
}

func (s *workerSlot) push(job *Job) {
	s.mu.Lock()
	s.jobs = append(s.jobs, job)
	s.mu.Unlock()
}

func (s *workerSlot) pop() {
	s.mu.Lock()
	s.jobs[len(s.jobs)-1] = nil
	s.jobs = s.jobs[:len(s.jobs)-1]
	s.mu.Unlock()
}

func (s *workerSlot) status(id int) WorkerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := WorkerStatus{ID: id}
	if n := len(s.jobs); n > 0 {
		top := s.jobs[n-1]
		st.Job = top.Name()
		st.Stack = top.stack.String()
		st.Nested = n - 1
	}
	return st
}

// ThreadPool manages a fixed set of worker goroutines pulling Jobs from a
// priority queue. Deeper Jobs are serviced first.
type ThreadPool struct {
	id        string
	workers   int
	scheduler *JobScheduler
	history   *jobHistory
	slots     []workerSlot
	waiting   atomic.Int32
	logger    Logger

	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	running   bool
	runningMu sync.RWMutex
}

// NewThreadPool creates a ThreadPool with default handlers.
func NewThreadPool(id string, workers int) *ThreadPool {
	return NewThreadPoolWithConfig(id, workers, DefaultPoolConfig())
}

// NewThreadPoolWithConfig creates a ThreadPool. Panics if workers < 1.
func NewThreadPoolWithConfig(id string, workers int, config *PoolConfig) *ThreadPool {
	if workers < 1 {
		panic(fmt.Sprintf("NewThreadPool %q: %v (got %d)", id, ErrInvalidWorkers, workers))
	}
	if config == nil {
		config = DefaultPoolConfig()
	}
	scheduler := NewJobScheduler(id, workers, config)
	return &ThreadPool{
		id:        id,
		workers:   workers,
		scheduler: scheduler,
		history:   newJobHistory(config.HistoryCapacity),
		slots:     make([]workerSlot, workers),
		logger:    scheduler.GetLogger(),
	}
}

// Start starts all worker goroutines
func (p *ThreadPool) Start(ctx context.Context) {
	p.runningMu.Lock()
	defer p.runningMu.Unlock()

	if p.running || p.scheduler.IsStopped() {
		return
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.running = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.workerLoop(i, p.ctx)
	}
	p.logger.Info("thread pool started", F("pool", p.id), F("workers", p.workers))
}

// Stop stops the pool. Queued Jobs complete as Canceled; Jobs already
// running finish first.
func (p *ThreadPool) Stop() {
	// Always drain the scheduler so waiters are released even if the pool
	// was never started
	drained := p.scheduler.Shutdown()

	p.runningMu.Lock()
	if !p.running {
		p.runningMu.Unlock()
		return
	}
	p.runningMu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	p.Join()

	p.runningMu.Lock()
	p.running = false
	p.runningMu.Unlock()

	p.logger.Info("thread pool stopped", F("pool", p.id), F("canceled_jobs", drained))
}

// StopGraceful stops accepting external submissions and waits for every
// outstanding Job, including the Jobs they spawn, before stopping.
// Returns error if timeout is exceeded before Jobs complete.
func (p *ThreadPool) StopGraceful(timeout time.Duration) error {
	p.runningMu.RLock()
	running := p.running
	p.runningMu.RUnlock()

	if !running {
		p.Stop()
		return nil
	}

	err := p.scheduler.ShutdownGraceful(timeout)
	if p.cancel != nil {
		p.cancel()
	}
	p.Join()

	p.runningMu.Lock()
	p.running = false
	p.runningMu.Unlock()

	if err != nil {
		p.logger.Warn("thread pool graceful stop timed out", F("pool", p.id), F("error", err))
		return err
	}
	p.logger.Info("thread pool stopped gracefully", F("pool", p.id))
	return nil
}

// ID returns the ID of the thread pool
func (p *ThreadPool) ID() string {
	return p.id
}

// IsRunning returns whether the thread pool is running
func (p *ThreadPool) IsRunning() bool {
	p.runningMu.RLock()
	defer p.runningMu.RUnlock()
	return p.running
}

// NumWorkers returns the configured number of workers.
func (p *ThreadPool) NumWorkers() int {
	return p.workers
}

// Join waits for all worker goroutines to finish
func (p *ThreadPool) Join() {
	p.wg.Wait()
}

func (p *ThreadPool) QueuedJobCount() int      { return p.scheduler.QueuedJobCount() }
func (p *ThreadPool) ActiveJobCount() int      { return p.scheduler.ActiveJobCount() }
func (p *ThreadPool) OutstandingJobCount() int { return p.scheduler.OutstandingJobCount() }

// Submit enqueues job at priority without blocking.
func (p *ThreadPool) Submit(job *Job, priority int) {
	p.SubmitAll([]*Job{job}, priority)
}

// SubmitAll enqueues jobs at the same priority, preserving their order.
// After Stop the Jobs are completed as Canceled instead.
func (p *ThreadPool) SubmitAll(jobs []*Job, priority int) {
	if len(jobs) == 0 {
		return
	}
	internal := jobs[0].origin != nil && jobs[0].origin.kind == ContextWorker
	p.scheduler.PostJobs(jobs, priority, internal)
}

// WaitFor blocks until every Job of group has completed. Use it from
// goroutines that are not pool workers; workers wait through their
// ExecutionContext so they keep running Jobs meanwhile.
func (p *ThreadPool) WaitFor(group *JobGroup) {
	group.Wait()
}

// helpUntil runs queued Jobs on behalf of worker until group completes.
func (p *ThreadPool) helpUntil(worker int, group *JobGroup) {
	p.waiting.Add(1)
	defer p.waiting.Add(-1)

	for !group.finished() {
		if job, ok := p.scheduler.TryGetWork(); ok {
			p.runJob(p.ctx, worker, job)
			continue
		}
		select {
		case <-group.Done():
		case <-p.scheduler.signal:
		}
	}

	// A wakeup consumed here may have been meant for an idle worker
	if !p.scheduler.queue.IsEmpty() {
		p.scheduler.notify()
	}
}

// WaitIdle blocks until no Job is queued or running, or ctx ends.
func (p *ThreadPool) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		if p.scheduler.OutstandingJobCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// workerLoop is the main loop for each worker
func (p *ThreadPool) workerLoop(id int, ctx context.Context) {
	defer p.wg.Done()
	stopCh := ctx.Done()

	for {
		job, ok := p.scheduler.GetWork(stopCh)
		if !ok {
			// The start context ended without Stop: queued Jobs would
			// otherwise never complete
			p.scheduler.Shutdown()
			return
		}
		p.runJob(ctx, id, job)
	}
}

// runJob executes one Job on a fresh worker context and completes its group.
func (p *ThreadPool) runJob(ctx context.Context, worker int, job *Job) {
	if ctx == nil {
		ctx = context.Background()
	}
	slot := &p.slots[worker]
	slot.push(job)
	p.scheduler.OnJobStart()

	startedAt := time.Now()
	panicked := false

	defer func() {
		if r := recover(); r != nil {
			panicked = true
			job.code = Error
			job.err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
			p.scheduler.GetPanicHandler().HandlePanic(ctx, p.id, worker, r, debug.Stack())
			p.scheduler.GetMetrics().RecordJobPanic(p.id, r)
			p.logger.Error("job panicked", F("pool", p.id), F("worker", worker), F("job", job.Name()), F("panic", r))
		}

		finishedAt := time.Now()
		p.history.Add(JobExecutionRecord{
			JobID:      job.ID(),
			Name:       job.Name(),
			PoolID:     p.id,
			WorkerID:   worker,
			Priority:   job.Priority(),
			Range:      job.Range(),
			Atomic:     job.IsAtomic(),
			StartedAt:  startedAt,
			FinishedAt: finishedAt,
			Duration:   finishedAt.Sub(startedAt),
			Code:       job.code,
			Panicked:   panicked,
		})
		p.scheduler.GetMetrics().RecordJobDuration(p.id, job.Priority(), job.code, finishedAt.Sub(startedAt))

		slot.pop()
		job.group.complete(job.code, job.err)
		p.scheduler.OnJobEnd()
	}()

	job.execute(newWorkerContext(job, p, worker))
}

// stopRequested reports whether Stop has been called.
func (p *ThreadPool) stopRequested() bool {
	return p.scheduler.IsStopped()
}

// Stats returns a snapshot of the pool state.
func (p *ThreadPool) Stats() PoolStats {
	stats := PoolStats{
		ID:          p.id,
		Workers:     p.workers,
		Queued:      p.scheduler.QueuedJobCount(),
		Active:      p.scheduler.ActiveJobCount(),
		Waiting:     int(p.waiting.Load()),
		Outstanding: p.scheduler.OutstandingJobCount(),
		Running:     p.IsRunning(),
		Stopping:    !p.scheduler.IsAccepting(),
		WorkerState: make([]WorkerStatus, p.workers),
	}
	for i := range p.slots {
		stats.WorkerState[i] = p.slots[i].status(i)
	}
	return stats
}

// RecentJobs returns up to limit completed Jobs, newest first.
func (p *ThreadPool) RecentJobs(limit int) []JobExecutionRecord {
	return p.history.Recent(limit)
}

// LastJob returns the most recently completed Job.
func (p *ThreadPool) LastJob() (JobExecutionRecord, bool) {
	return p.history.Last()
}

// WriteState prints the pool state, one line per worker, followed by the
// queued Jobs in dequeue order.
func (p *ThreadPool) WriteState(w io.Writer) error {
	stats := p.Stats()

	var b strings.Builder
	fmt.Fprintf(&b, "pool %s: workers=%d running=%t stopping=%t queued=%d active=%d waiting=%d outstanding=%d\n",
		stats.ID, stats.Workers, stats.Running, stats.Stopping, stats.Queued, stats.Active, stats.Waiting, stats.Outstanding)
	for _, ws := range stats.WorkerState {
		if ws.Job == "" {
			fmt.Fprintf(&b, "  worker %d: idle\n", ws.ID)
			continue
		}
		fmt.Fprintf(&b, "  worker %d: %s at [%s]", ws.ID, ws.Job, ws.Stack)
		if ws.Nested > 0 {
			fmt.Fprintf(&b, " (+%d waiting)", ws.Nested)
		}
		b.WriteString("\n")
	}

	queued := p.scheduler.queue.Snapshot()
	fmt.Fprintf(&b, "  queue (%d):\n", len(queued))
	for _, q := range queued {
		fmt.Fprintf(&b, "    [priority %d] %s\n", q.Priority, q.Name)
	}

	_, err := io.WriteString(w, b.String())
	return err
}
