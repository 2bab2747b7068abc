package core

import (
	"sync"
	"time"
)

// TimingStats is the running mean for one task signature.
type TimingStats struct {
	Count  int64
	MeanMs float64
}

// TimingsCache keeps a running mean execution duration per task signature.
// It feeds the split decision of every parallel dispatch.
//
// Updates are O(1) and rare compared to task execution time, so one coarse
// lock guards the whole map.
type TimingsCache struct {
	mu      sync.Mutex
	entries map[string]*TimingStats
}

func NewTimingsCache() *TimingsCache {
	return &TimingsCache{entries: make(map[string]*TimingStats)}
}

// Record adds one duration sample for signature.
func (c *TimingsCache) Record(signature string, d time.Duration) {
	c.RecordMs(signature, float64(d)/float64(time.Millisecond))
}

// RecordMs adds one sample expressed in milliseconds.
func (c *TimingsCache) RecordMs(signature string, ms float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[signature]
	if !ok {
		e = &TimingStats{}
		c.entries[signature] = e
	}
	e.Count++
	e.MeanMs += (ms - e.MeanMs) / float64(e.Count)
}

// MeanOf returns the mean duration in milliseconds, or 0 when no sample exists.
func (c *TimingsCache) MeanOf(signature string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[signature]; ok {
		return e.MeanMs
	}
	return 0
}

// Count returns the number of samples recorded for signature.
func (c *TimingsCache) Count(signature string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[signature]; ok {
		return e.Count
	}
	return 0
}

// Snapshot returns a copy of every entry.
func (c *TimingsCache) Snapshot() map[string]TimingStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]TimingStats, len(c.entries))
	for k, v := range c.entries {
		out[k] = *v
	}
	return out
}

func (c *TimingsCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Reset forgets every sample.
func (c *TimingsCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*TimingStats)
}
