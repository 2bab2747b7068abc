package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/Swind/go-task-engine/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("taskengine", reg, ExporterOptions{MaxDepthLabel: 4})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordJobDuration("pool-a", 2, core.Finished, 250*time.Millisecond)
	exporter.RecordJobDuration("pool-a", 9, core.Error, time.Millisecond)
	exporter.RecordJobPanic("pool-a", "panic")
	exporter.RecordQueueDepth("pool-a", 7)
	exporter.RecordJobRejected("pool-a", "shutting down")

	panicTotal := testutil.ToFloat64(exporter.jobPanicTotal.WithLabelValues("pool-a"))
	if panicTotal != 1 {
		t.Fatalf("panic total = %v, want 1", panicTotal)
	}

	queueDepth := testutil.ToFloat64(exporter.queueDepth.WithLabelValues("pool-a"))
	if queueDepth != 7 {
		t.Fatalf("queue depth = %v, want 7", queueDepth)
	}

	rejected := testutil.ToFloat64(exporter.jobRejectedTotal.WithLabelValues("pool-a", "shutting down"))
	if rejected != 1 {
		t.Fatalf("rejected total = %v, want 1", rejected)
	}

	histCount, err := histogramSampleCount(exporter.jobDurationSeconds.WithLabelValues("pool-a", "2", "finished"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 1 {
		t.Fatalf("duration sample count = %d, want 1", histCount)
	}

	// depth 9 is capped to the max depth label
	capped, err := histogramSampleCount(exporter.jobDurationSeconds.WithLabelValues("pool-a", "4", "error"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if capped != 1 {
		t.Fatalf("capped depth sample count = %d, want 1", capped)
	}
}

func TestMetricsExporter_SplitDecisions(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordSplitDecision("parallel:sum", core.PlanSplit(100, 4, false, 5))
	exporter.RecordSplitDecision("parallel:sum", core.PlanSplit(100, 4, false, 50))
	exporter.RecordSplitDecision("parallel:sum", core.PlanSplit(100, 4, false, 0))

	if got := testutil.ToFloat64(exporter.splitTotal.WithLabelValues("parallel:sum", "inline")); got != 1 {
		t.Errorf("inline decisions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.splitTotal.WithLabelValues("parallel:sum", "jobs")); got != 2 {
		t.Errorf("job decisions = %v, want 2", got)
	}
	count, err := histogramSampleCount(exporter.splitJobs.WithLabelValues("parallel:sum"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if count != 2 {
		t.Errorf("split_jobs samples = %d, want 2", count)
	}
}

// TestMetricsExporter_WiredToPool verifies the exporter receives engine events
// Given: A pool configured with the exporter
// When: A parallel task is dispatched over 2 Jobs
// Then: Two Job durations and one split decision are recorded
func TestMetricsExporter_WiredToPool(t *testing.T) {
	// Arrange
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("wired", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}
	cfg := core.DefaultPoolConfig()
	cfg.Metrics = exporter
	ec, err := core.NewOwningPoolContext("wired-pool", 2, cfg, core.ContextOptions{})
	if err != nil {
		t.Fatalf("NewOwningPoolContext failed: %v", err)
	}
	defer ec.Close()

	leaf := core.NewLeaf("id", func(ctx context.Context, input, supervision any) (any, error) { return input, nil })
	task := core.NewParallel("ids", core.ParallelFuncs{
		PrepareFunc: func(ctx context.Context, input, supervision any) (*core.TaskState, error) {
			subs := make([]core.SubTask, 4)
			for i := range subs {
				subs[i] = core.SubTask{Task: leaf, Input: i}
			}
			return core.NewTaskState(input, supervision, subs), nil
		},
	})

	// Act
	if _, code := ec.Run(task, nil, nil); code != core.Finished {
		t.Fatalf("code = %v, want finished", code)
	}
	if err := ec.Pool().WaitIdle(context.Background()); err != nil {
		t.Fatalf("WaitIdle failed: %v", err)
	}

	// Assert
	count, err := histogramSampleCount(exporter.jobDurationSeconds.WithLabelValues("wired-pool", "1", "finished"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if count != 2 {
		t.Errorf("job duration samples = %d, want 2", count)
	}
	if got := testutil.ToFloat64(exporter.splitTotal.WithLabelValues("parallel:ids", "jobs")); got != 1 {
		t.Errorf("split decisions = %v, want 1", got)
	}
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("taskengine", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("taskengine", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordJobPanic("pool-a", nil)
	second.RecordJobPanic("pool-a", nil)

	got := testutil.ToFloat64(first.jobPanicTotal.WithLabelValues("pool-a"))
	if got != 2 {
		t.Fatalf("shared panic counter = %v, want 2", got)
	}
}

func TestMetricsExporter_NilSafe(t *testing.T) {
	var m *MetricsExporter
	m.RecordJobDuration("p", 0, core.Finished, time.Second)
	m.RecordJobPanic("p", nil)
	m.RecordQueueDepth("p", 1)
	m.RecordJobRejected("p", "r")
	m.RecordSplitDecision("s", core.SplitPlan{})
}

func histogramSampleCount(observer prom.Observer) (uint64, error) {
	collector, ok := observer.(prom.Collector)
	if !ok {
		return 0, nil
	}

	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), nil
		}
	}
	return 0, nil
}
