package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-task-engine/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// PoolSnapshotProvider provides current pool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

// TimingsSnapshotProvider provides the running means of a TimingsCache.
type TimingsSnapshotProvider interface {
	Snapshot() map[string]core.TimingStats
}

// SnapshotPoller periodically exports pool Stats() and TimingsCache snapshots
// into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	poolsMu sync.RWMutex
	pools   map[string]PoolSnapshotProvider

	timingsMu sync.RWMutex
	timings   map[string]TimingsSnapshotProvider

	poolQueued      *prom.GaugeVec
	poolActive      *prom.GaugeVec
	poolWaiting     *prom.GaugeVec
	poolOutstanding *prom.GaugeVec
	poolWorkers     *prom.GaugeVec
	poolRunning     *prom.GaugeVec

	timingMeanMs  *prom.GaugeVec
	timingSamples *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	poolQueued := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskengine",
		Name:      "pool_queued",
		Help:      "Queued jobs per pool.",
	}, []string{"pool"})
	poolActive := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskengine",
		Name:      "pool_active",
		Help:      "Running jobs per pool, including jobs run while waiting.",
	}, []string{"pool"})
	poolWaiting := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskengine",
		Name:      "pool_waiting",
		Help:      "Workers waiting on their own jobs per pool.",
	}, []string{"pool"})
	poolOutstanding := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskengine",
		Name:      "pool_outstanding",
		Help:      "Submitted and not yet completed jobs per pool.",
	}, []string{"pool"})
	poolWorkers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskengine",
		Name:      "pool_workers",
		Help:      "Worker count per pool.",
	}, []string{"pool"})
	poolRunning := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskengine",
		Name:      "pool_running",
		Help:      "Pool running state (1=running, 0=stopped).",
	}, []string{"pool"})
	timingMeanMs := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskengine",
		Name:      "timing_mean_ms",
		Help:      "Running mean sub-task duration per task signature.",
	}, []string{"cache", "task"})
	timingSamples := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskengine",
		Name:      "timing_samples",
		Help:      "Number of duration samples per task signature.",
	}, []string{"cache", "task"})

	var err error
	if poolQueued, err = registerCollector(reg, poolQueued); err != nil {
		return nil, err
	}
	if poolActive, err = registerCollector(reg, poolActive); err != nil {
		return nil, err
	}
	if poolWaiting, err = registerCollector(reg, poolWaiting); err != nil {
		return nil, err
	}
	if poolOutstanding, err = registerCollector(reg, poolOutstanding); err != nil {
		return nil, err
	}
	if poolWorkers, err = registerCollector(reg, poolWorkers); err != nil {
		return nil, err
	}
	if poolRunning, err = registerCollector(reg, poolRunning); err != nil {
		return nil, err
	}
	if timingMeanMs, err = registerCollector(reg, timingMeanMs); err != nil {
		return nil, err
	}
	if timingSamples, err = registerCollector(reg, timingSamples); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:        interval,
		pools:           make(map[string]PoolSnapshotProvider),
		timings:         make(map[string]TimingsSnapshotProvider),
		poolQueued:      poolQueued,
		poolActive:      poolActive,
		poolWaiting:     poolWaiting,
		poolOutstanding: poolOutstanding,
		poolWorkers:     poolWorkers,
		poolRunning:     poolRunning,
		timingMeanMs:    timingMeanMs,
		timingSamples:   timingSamples,
	}, nil
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "pool")
	p.poolsMu.Lock()
	p.pools[name] = provider
	p.poolsMu.Unlock()
}

// AddTimings adds or replaces a timings snapshot provider by name.
func (p *SnapshotPoller) AddTimings(name string, provider TimingsSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "timings")
	p.timingsMu.Lock()
	p.timings[name] = provider
	p.timingsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx, p.done)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.CollectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CollectOnce()
		}
	}
}

// CollectOnce refreshes every gauge from the registered providers.
func (p *SnapshotPoller) CollectOnce() {
	p.poolsMu.RLock()
	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolQueued.WithLabelValues(name).Set(float64(stats.Queued))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
		p.poolWaiting.WithLabelValues(name).Set(float64(stats.Waiting))
		p.poolOutstanding.WithLabelValues(name).Set(float64(stats.Outstanding))
		p.poolWorkers.WithLabelValues(name).Set(float64(stats.Workers))
		if stats.Running {
			p.poolRunning.WithLabelValues(name).Set(1)
		} else {
			p.poolRunning.WithLabelValues(name).Set(0)
		}
	}
	p.poolsMu.RUnlock()

	p.timingsMu.RLock()
	for name, provider := range p.timings {
		for signature, stats := range provider.Snapshot() {
			p.timingMeanMs.WithLabelValues(name, signature).Set(stats.MeanMs)
			p.timingSamples.WithLabelValues(name, signature).Set(float64(stats.Count))
		}
	}
	p.timingsMu.RUnlock()
}
