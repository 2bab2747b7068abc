package main

import (
	"fmt"

	"github.com/Swind/go-task-engine/core"
	"github.com/spf13/cobra"
)

type planOptions struct {
	items   int
	workers int
	atomic  bool
	meanMs  float64
}

func newPlanCmd() *cobra.Command {
	opts := planOptions{}
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the split decision for a parallel dispatch",
		Long: `Print how a parallel task with the given number of sub-tasks would be
spread over the pool, for a given mean sub-task duration. A zero mean
means no timing data has been recorded yet.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.workers < 1 {
				return fmt.Errorf("--workers: %w (got %d)", core.ErrInvalidWorkers, opts.workers)
			}
			if opts.items < 0 {
				return fmt.Errorf("--items must not be negative (got %d)", opts.items)
			}
			plan := core.PlanSplit(opts.items, opts.workers, opts.atomic, opts.meanMs)
			fmt.Fprintln(cmd.OutOrStdout(), plan.String())
			return nil
		},
	}
	cmd.Flags().IntVarP(&opts.items, "items", "n", 100, "Number of sub-tasks")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 4, "Number of pool workers")
	cmd.Flags().BoolVar(&opts.atomic, "atomic", false, "Dispatch from inside an atomic Job")
	cmd.Flags().Float64Var(&opts.meanMs, "mean-ms", 0, "Mean sub-task duration in milliseconds")
	return cmd
}
