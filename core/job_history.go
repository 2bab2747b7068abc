package core

import "sync"

const defaultJobHistoryCapacity = 100

// jobHistory is a fixed-size ring of the most recent JobExecutionRecords.
type jobHistory struct {
	mu    sync.Mutex
	items []JobExecutionRecord
	head  int
	count int
}

func newJobHistory(capacity int) *jobHistory {
	if capacity < 1 {
		capacity = defaultJobHistoryCapacity
	}
	return &jobHistory{items: make([]JobExecutionRecord, capacity)}
}

func (h *jobHistory) Add(record JobExecutionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.items[h.head] = record
	h.head = (h.head + 1) % len(h.items)
	if h.count < len(h.items) {
		h.count++
	}
}

// Recent returns up to limit records, newest first. limit <= 0 returns all.
func (h *jobHistory) Recent(limit int) []JobExecutionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return nil
	}

	if limit <= 0 || limit > h.count {
		limit = h.count
	}

	out := make([]JobExecutionRecord, 0, limit)
	for i := range limit {
		idx := (h.head - 1 - i + len(h.items)) % len(h.items)
		out = append(out, h.items[idx])
	}
	return out
}

func (h *jobHistory) Last() (JobExecutionRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return JobExecutionRecord{}, false
	}

	idx := (h.head - 1 + len(h.items)) % len(h.items)
	return h.items[idx], true
}
