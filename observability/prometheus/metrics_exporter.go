package prometheus

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Swind/go-task-engine/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64

	// MaxDepthLabel caps the "depth" label; deeper Jobs are reported as this value.
	MaxDepthLabel int
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	jobDurationSeconds *prom.HistogramVec
	jobPanicTotal      *prom.CounterVec
	jobRejectedTotal   *prom.CounterVec
	queueDepth         *prom.GaugeVec
	splitTotal         *prom.CounterVec
	splitJobs          *prom.HistogramVec
	maxDepthLabel      int
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "taskengine"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}
	maxDepth := opts.MaxDepthLabel
	if maxDepth <= 0 {
		maxDepth = 16
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Job execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"pool", "depth", "code"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "job_panic_total",
		Help:      "Total number of recovered panics.",
	}, []string{"pool"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "job_rejected_total",
		Help:      "Total number of rejected jobs.",
	}, []string{"pool", "reason"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Current queue depth.",
	}, []string{"pool"})
	splitVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "split_decisions_total",
		Help:      "Parallel dispatches by outcome (inline or jobs).",
	}, []string{"task", "mode"})
	splitJobsVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "split_jobs",
		Help:      "Number of Jobs created per dispatched parallel task.",
		Buckets:   prom.ExponentialBuckets(1, 2, 10),
	}, []string{"task"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if splitVec, err = registerCollector(reg, splitVec); err != nil {
		return nil, err
	}
	if splitJobsVec, err = registerCollector(reg, splitJobsVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		jobDurationSeconds: durationVec,
		jobPanicTotal:      panicVec,
		jobRejectedTotal:   rejectedVec,
		queueDepth:         queueDepthVec,
		splitTotal:         splitVec,
		splitJobs:          splitJobsVec,
		maxDepthLabel:      maxDepth,
	}, nil
}

// RecordJobDuration records Job execution duration.
func (m *MetricsExporter) RecordJobDuration(poolID string, priority int, code core.ReturnCode, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDurationSeconds.WithLabelValues(
		normalizeLabel(poolID, "unknown"),
		m.depthLabel(priority),
		code.String(),
	).Observe(duration.Seconds())
}

// RecordJobPanic records recovered panics.
func (m *MetricsExporter) RecordJobPanic(poolID string, panicInfo any) {
	if m == nil {
		return
	}
	m.jobPanicTotal.WithLabelValues(normalizeLabel(poolID, "unknown")).Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(poolID string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(poolID, "unknown")).Set(float64(depth))
}

// RecordJobRejected records Job rejection events.
func (m *MetricsExporter) RecordJobRejected(poolID string, reason string) {
	if m == nil {
		return
	}
	m.jobRejectedTotal.WithLabelValues(normalizeLabel(poolID, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

// RecordSplitDecision counts inline and dispatched parallel runs per task.
func (m *MetricsExporter) RecordSplitDecision(signature string, plan core.SplitPlan) {
	if m == nil {
		return
	}
	task := normalizeLabel(signature, "unknown")
	if plan.Inline {
		m.splitTotal.WithLabelValues(task, "inline").Inc()
		return
	}
	m.splitTotal.WithLabelValues(task, "jobs").Inc()
	m.splitJobs.WithLabelValues(task).Observe(float64(plan.JobCount()))
}

func (m *MetricsExporter) depthLabel(depth int) string {
	if depth > m.maxDepthLabel {
		depth = m.maxDepthLabel
	}
	return strconv.Itoa(depth)
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
