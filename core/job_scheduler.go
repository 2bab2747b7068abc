package core

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const (
	schedulerRunning int32 = iota
	// schedulerDraining rejects external submissions but still accepts
	// Jobs posted by running Jobs, so in-flight branches can complete.
	schedulerDraining
	schedulerStopped
)

// JobScheduler owns the Job queue of a ThreadPool and the wakeup channel its
// workers block on.
type JobScheduler struct {
	poolID      string
	workerCount int
	queue       *JobQueue
	signal      chan struct{}

	metricQueued int32 // atomic
	metricActive int32 // atomic
	outstanding  int64 // atomic: submitted and not yet completed

	// submitMu orders Shutdown after every in-progress PostJobs, so a Job is
	// either drained or rejected, never lost.
	submitMu sync.RWMutex
	state    int32 // atomic

	panicHandler       PanicHandler
	metrics            Metrics
	rejectedJobHandler RejectedJobHandler
	logger             Logger
}

func NewJobScheduler(poolID string, workerCount int, config *PoolConfig) *JobScheduler {
	if config == nil {
		config = DefaultPoolConfig()
	}
	s := &JobScheduler{
		poolID:             poolID,
		workerCount:        workerCount,
		queue:              NewJobQueue(),
		signal:             make(chan struct{}, workerCount*2),
		panicHandler:       config.PanicHandler,
		metrics:            config.Metrics,
		rejectedJobHandler: config.RejectedJobHandler,
		logger:             config.Logger,
	}

	if s.panicHandler == nil {
		s.panicHandler = &DefaultPanicHandler{}
	}
	if s.metrics == nil {
		s.metrics = &NilMetrics{}
	}
	if s.logger == nil {
		s.logger = NewNoOpLogger()
	}
	if s.rejectedJobHandler == nil {
		s.rejectedJobHandler = &DefaultRejectedJobHandler{Logger: s.logger}
	}
	return s
}

// PostJobs enqueues jobs at priority. It reports false when the scheduler no
// longer accepts them, in which case every Job has been completed as Canceled.
func (s *JobScheduler) PostJobs(jobs []*Job, priority int, internal bool) bool {
	if len(jobs) == 0 {
		return true
	}

	s.submitMu.RLock()
	state := atomic.LoadInt32(&s.state)
	if state == schedulerStopped || (state == schedulerDraining && !internal) {
		s.submitMu.RUnlock()
		s.reject(jobs, "shutting down")
		return false
	}

	for _, job := range jobs {
		job.priority = priority
	}
	atomic.AddInt64(&s.outstanding, int64(len(jobs)))
	s.queue.PushAll(jobs, priority)
	depth := atomic.AddInt32(&s.metricQueued, int32(len(jobs)))
	s.submitMu.RUnlock()

	s.metrics.RecordQueueDepth(s.poolID, int(depth))
	for range jobs {
		if !s.notify() {
			break
		}
	}
	return true
}

func (s *JobScheduler) reject(jobs []*Job, reason string) {
	for _, job := range jobs {
		s.rejectedJobHandler.HandleRejectedJob(s.poolID, job.Name(), reason)
		s.metrics.RecordJobRejected(s.poolID, reason)
		job.fail(Canceled, fmt.Errorf("job %s: %w", job.Name(), ErrPoolStopped))
	}
}

// notify wakes one waiting worker. It reports false when the signal channel
// is full; the queued Job is still picked up by a worker already awake.
func (s *JobScheduler) notify() bool {
	select {
	case s.signal <- struct{}{}:
		return true
	default:
		return false
	}
}

// GetWork (Called by Worker)
func (s *JobScheduler) GetWork(stopCh <-chan struct{}) (*Job, bool) {
	for {
		if job, ok := s.TryGetWork(); ok {
			return job, true
		}

		select {
		case <-s.signal:
			continue
		case <-stopCh:
			return nil, false
		}
	}
}

// TryGetWork pops the highest priority Job without blocking.
func (s *JobScheduler) TryGetWork() (*Job, bool) {
	job, ok := s.queue.Pop()
	if !ok {
		return nil, false
	}
	atomic.AddInt32(&s.metricQueued, -1)
	return job, true
}

// Shutdown stops accepting Jobs and completes every queued Job as Canceled.
// It returns the number of Jobs drained from the queue.
func (s *JobScheduler) Shutdown() int {
	s.submitMu.Lock()
	atomic.StoreInt32(&s.state, schedulerStopped)
	drained := s.queue.Drain()
	atomic.AddInt32(&s.metricQueued, -int32(len(drained)))
	s.submitMu.Unlock()

	for _, job := range drained {
		job.fail(Canceled, fmt.Errorf("job %s: %w", job.Name(), ErrPoolStopped))
		s.OnJobDone()
	}
	s.metrics.RecordQueueDepth(s.poolID, s.QueuedJobCount())
	return len(drained)
}

// ShutdownGraceful waits for all queued and active Jobs to complete.
// Jobs posted by running Jobs are still accepted while draining.
// Returns error if timeout is exceeded before Jobs complete.
func (s *JobScheduler) ShutdownGraceful(timeout time.Duration) error {
	s.submitMu.Lock()
	atomic.CompareAndSwapInt32(&s.state, schedulerRunning, schedulerDraining)
	s.submitMu.Unlock()

	deadline := time.After(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if s.OutstandingJobCount() == 0 {
			s.Shutdown()
			return nil
		}
		select {
		case <-deadline:
			// Timeout exceeded, cancel what is still queued
			n := s.Shutdown()
			return fmt.Errorf("shutdown graceful timeout after %v, %d queued jobs canceled", timeout, n)
		case <-ticker.C:
		}
	}
}

// IsAccepting reports whether external submissions are accepted.
func (s *JobScheduler) IsAccepting() bool {
	return atomic.LoadInt32(&s.state) == schedulerRunning
}

// IsStopped reports whether Shutdown has run.
func (s *JobScheduler) IsStopped() bool {
	return atomic.LoadInt32(&s.state) == schedulerStopped
}

// Metrics
func (s *JobScheduler) WorkerCount() int         { return s.workerCount }
func (s *JobScheduler) QueuedJobCount() int      { return int(atomic.LoadInt32(&s.metricQueued)) }
func (s *JobScheduler) ActiveJobCount() int      { return int(atomic.LoadInt32(&s.metricActive)) }
func (s *JobScheduler) OutstandingJobCount() int { return int(atomic.LoadInt64(&s.outstanding)) }

func (s *JobScheduler) OnJobStart() {
	atomic.AddInt32(&s.metricActive, 1)
}

func (s *JobScheduler) OnJobEnd() {
	atomic.AddInt32(&s.metricActive, -1)
	s.OnJobDone()
}

// OnJobDone marks one submitted Job as completed, whether it ran or not.
func (s *JobScheduler) OnJobDone() {
	atomic.AddInt64(&s.outstanding, -1)
}

func (s *JobScheduler) GetPanicHandler() PanicHandler {
	return s.panicHandler
}

func (s *JobScheduler) GetMetrics() Metrics {
	return s.metrics
}

func (s *JobScheduler) GetLogger() Logger {
	return s.logger
}
