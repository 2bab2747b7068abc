package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Swind/go-task-engine/config"
	"github.com/Swind/go-task-engine/core"
	"github.com/Swind/go-task-engine/logadapter"
	promexp "github.com/Swind/go-task-engine/observability/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type runOptions struct {
	workers int
	items   int
	depth   int
	runs    int
	metrics bool
	hold    bool
	state   bool
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a synthetic workload on the thread pool",
		Long: `Run a tree of nested parallel tasks several times and report how the
split decisions and durations change as the timings cache warms up.
With metrics enabled the engine is exported on /metrics while it runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd, &opts, cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWorkload(ctx, cfg, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Number of pool workers (overrides config)")
	cmd.Flags().IntVarP(&opts.items, "items", "n", 0, "Sub-tasks per parallel level (overrides config)")
	cmd.Flags().IntVarP(&opts.depth, "depth", "d", 0, "Nested parallel levels (overrides config)")
	cmd.Flags().IntVarP(&opts.runs, "runs", "r", 0, "Number of workload runs (overrides config)")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "Serve Prometheus metrics (overrides config)")
	cmd.Flags().BoolVar(&opts.hold, "hold", false, "Keep serving metrics after the workload until interrupted")
	cmd.Flags().BoolVar(&opts.state, "state", false, "Print the pool state after the last run")
	return cmd
}

// applyRunFlags writes explicitly set flags over the loaded configuration.
func applyRunFlags(cmd *cobra.Command, opts *runOptions, cfg *config.Config) error {
	flags := cmd.Flags()
	pool := map[string]any{}
	workload := map[string]any{}
	metrics := map[string]any{}
	if flags.Changed("workers") {
		pool["workers"] = opts.workers
	}
	if flags.Changed("items") {
		workload["items"] = opts.items
	}
	if flags.Changed("depth") {
		workload["depth"] = opts.depth
	}
	if flags.Changed("runs") {
		workload["runs"] = opts.runs
	}
	if flags.Changed("metrics") {
		metrics["enabled"] = opts.metrics
	}

	overrides := map[string]any{}
	for section, values := range map[string]map[string]any{"pool": pool, "workload": workload, "metrics": metrics} {
		if len(values) > 0 {
			overrides[section] = values
		}
	}
	return cfg.Override(overrides)
}

func newZerolog(cfg *config.Config, w io.Writer) zerolog.Logger {
	out := w
	if cfg.Log.Format == "console" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).
		Level(logadapter.ZerologLevel(cfg.LogLevel())).
		With().Timestamp().Str("pool", cfg.Pool.ID).
		Logger()
}

func runWorkload(ctx context.Context, cfg *config.Config, opts runOptions, stdout, stderr io.Writer) error {
	logger := logadapter.NewZerolog(newZerolog(cfg, stderr))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	exporter, err := promexp.NewMetricsExporter(cfg.Metrics.Namespace, reg, promexp.ExporterOptions{})
	if err != nil {
		return fmt.Errorf("metrics exporter: %w", err)
	}
	poller, err := promexp.NewSnapshotPoller(reg, cfg.Metrics.PollInterval)
	if err != nil {
		return fmt.Errorf("snapshot poller: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	runCtx := gctx
	if cfg.Workload.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(gctx, cfg.Workload.Timeout)
		defer cancel()
	}

	poolCfg := core.DefaultPoolConfig()
	poolCfg.Logger = logger
	poolCfg.Metrics = exporter
	poolCfg.RejectedJobHandler = &core.DefaultRejectedJobHandler{Logger: logger}
	poolCfg.HistoryCapacity = cfg.Pool.HistoryCapacity

	timings := core.NewTimingsCache()
	ec, err := core.NewOwningPoolContext(cfg.Pool.ID, cfg.Pool.Workers, poolCfg, core.ContextOptions{
		Timings:     timings,
		Telemetry:   core.NewLoggingTelemetry(logger),
		Logger:      logger,
		BaseContext: runCtx,
	})
	if err != nil {
		return err
	}
	defer ec.Close()

	poller.AddPool(cfg.Pool.ID, ec.Pool())
	poller.AddTimings("engine", timings)

	var srv *http.Server
	if cfg.Metrics.Enabled {
		poller.Start(gctx)
		defer poller.Stop()

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		srv = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("metrics server listening", core.F("addr", cfg.Metrics.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		if srv != nil {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		if err := executeRuns(ec, cfg.Workload, stdout); err != nil {
			return err
		}
		if opts.state {
			if err := ec.Pool().WriteState(stdout); err != nil {
				return err
			}
		}
		if srv != nil && opts.hold {
			logger.Info("workload done, serving metrics until interrupted")
			<-gctx.Done()
		}
		return nil
	})

	return g.Wait()
}

// executeRuns runs the workload cfg.Runs times and prints one line per run.
func executeRuns(ec *core.ExecutionContext, w config.WorkloadConfig, out io.Writer) error {
	task := buildWorkload(w)
	want := expectedResult(w)

	for run := 1; run <= w.Runs; run++ {
		startedAt := time.Now()
		result, err := ec.Execute(task, nil, nil)
		if err != nil {
			return fmt.Errorf("run %d: %w", run, err)
		}
		if result != want {
			return fmt.Errorf("run %d: result = %v, want %d", run, result, want)
		}
		fmt.Fprintf(out, "run %d: result=%v duration=%s plan=%s\n",
			run, result, time.Since(startedAt).Round(time.Microsecond), topPlan(ec, task, w))
	}
	return nil
}

// topPlan is the split the next run would use for the root task.
func topPlan(ec *core.ExecutionContext, task *core.Task, w config.WorkloadConfig) string {
	if w.Depth == 0 {
		return "leaf"
	}
	mean := ec.Timings().MeanOf(task.Signature())
	return core.PlanSplit(w.Items, ec.NumWorkers(), false, mean).String()
}
