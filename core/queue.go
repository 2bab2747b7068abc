package core

import (
	"container/heap"
	"sync"
)

const defaultQueueCap = 16

// QueuedJob describes a waiting Job for state dumps.
type QueuedJob struct {
	Name     string
	Priority int
}

// =============================================================================
// JobQueue: Max-Heap on priority with Stability (FIFO for same priority)
// =============================================================================

type queueItem struct {
	job      *Job
	priority int
	sequence uint64 // For stability
	index    int    // For heap
}

// jobHeap implements heap.Interface
type jobHeap []*queueItem

func (h jobHeap) Len() int { return len(h) }

// Less: deeper stack first, then earlier sequence first (FIFO)
func (h jobHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].sequence < h[j].sequence
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x any) {
	n := len(*h)
	item := x.(*queueItem)
	item.index = n
	*h = append(*h, item)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // Avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

// JobQueue orders Jobs by descending priority. Priority is the stack depth of
// the submitting branch, so already-started branches are finished before new
// ones are widened, which bounds the number of open TaskState objects.
type JobQueue struct {
	mu           sync.Mutex
	pq           jobHeap
	nextSequence uint64
}

func NewJobQueue() *JobQueue {
	return &JobQueue{
		pq: make(jobHeap, 0, defaultQueueCap),
	}
}

func (q *JobQueue) Push(job *Job, priority int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := &queueItem{
		job:      job,
		priority: priority,
		sequence: q.nextSequence,
	}
	q.nextSequence++

	heap.Push(&q.pq, item)
}

// PushAll enqueues jobs under a single lock acquisition, keeping their order.
func (q *JobQueue) PushAll(jobs []*Job, priority int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, job := range jobs {
		heap.Push(&q.pq, &queueItem{job: job, priority: priority, sequence: q.nextSequence})
		q.nextSequence++
	}
}

func (q *JobQueue) Pop() (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pq) == 0 {
		return nil, false
	}

	item := heap.Pop(&q.pq).(*queueItem)
	return item.job, true
}

func (q *JobQueue) PeekPriority() (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pq) == 0 {
		return 0, false
	}
	return q.pq[0].priority, true
}

func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pq)
}

func (q *JobQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Drain removes every queued Job and returns them in dequeue order.
func (q *JobQueue) Drain() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*Job, 0, len(q.pq))
	for len(q.pq) > 0 {
		out = append(out, heap.Pop(&q.pq).(*queueItem).job)
	}
	q.pq = make(jobHeap, 0, defaultQueueCap)
	return out
}

// Snapshot lists the queued Jobs in dequeue order without removing them.
func (q *JobQueue) Snapshot() []QueuedJob {
	q.mu.Lock()
	items := make(jobHeap, len(q.pq))
	for i, it := range q.pq {
		cp := *it
		items[i] = &cp
	}
	q.mu.Unlock()

	out := make([]QueuedJob, 0, len(items))
	for len(items) > 0 {
		it := heap.Pop(&items).(*queueItem)
		out = append(out, QueuedJob{Name: it.job.Name(), Priority: it.priority})
	}
	return out
}
