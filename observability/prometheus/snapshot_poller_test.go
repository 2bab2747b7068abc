package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/Swind/go-task-engine/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type poolStub struct {
	stats core.PoolStats
}

func (s poolStub) Stats() core.PoolStats { return s.stats }

func TestSnapshotPoller_CollectsPoolStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddPool("pool-a", poolStub{stats: core.PoolStats{
		Queued:      4,
		Active:      2,
		Waiting:     1,
		Outstanding: 6,
		Workers:     8,
		Running:     true,
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		queued := testutil.ToFloat64(poller.poolQueued.WithLabelValues("pool-a"))
		active := testutil.ToFloat64(poller.poolActive.WithLabelValues("pool-a"))
		return queued == 4 && active == 2
	})

	if got := testutil.ToFloat64(poller.poolWaiting.WithLabelValues("pool-a")); got != 1 {
		t.Fatalf("pool waiting gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.poolOutstanding.WithLabelValues("pool-a")); got != 6 {
		t.Fatalf("pool outstanding gauge = %v, want 6", got)
	}
	if got := testutil.ToFloat64(poller.poolWorkers.WithLabelValues("pool-a")); got != 8 {
		t.Fatalf("pool workers gauge = %v, want 8", got)
	}
	if got := testutil.ToFloat64(poller.poolRunning.WithLabelValues("pool-a")); got != 1 {
		t.Fatalf("pool running gauge = %v, want 1", got)
	}
}

// TestSnapshotPoller_CollectsTimings verifies the running means are exported
// Given: A TimingsCache with two samples for one signature
// When: CollectOnce runs
// Then: The mean and sample count gauges carry the cache values
func TestSnapshotPoller_CollectsTimings(t *testing.T) {
	// Arrange
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, time.Second)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}
	timings := core.NewTimingsCache()
	timings.RecordMs("leaf:square", 2)
	timings.RecordMs("leaf:square", 4)
	poller.AddTimings("global", timings)

	// Act
	poller.CollectOnce()

	// Assert
	if got := testutil.ToFloat64(poller.timingMeanMs.WithLabelValues("global", "leaf:square")); got != 3 {
		t.Errorf("timing mean = %v, want 3", got)
	}
	if got := testutil.ToFloat64(poller.timingSamples.WithLabelValues("global", "leaf:square")); got != 2 {
		t.Errorf("timing samples = %v, want 2", got)
	}
}

func TestSnapshotPoller_RealPool(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, time.Second)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}
	pool := core.NewThreadPool("poller-pool", 3)
	poller.AddPool("", pool)

	poller.CollectOnce()

	if got := testutil.ToFloat64(poller.poolWorkers.WithLabelValues("pool")); got != 3 {
		t.Errorf("pool workers gauge = %v, want 3", got)
	}
	if got := testutil.ToFloat64(poller.poolRunning.WithLabelValues("pool")); got != 0 {
		t.Errorf("pool running gauge = %v, want 0 before Start", got)
	}
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
