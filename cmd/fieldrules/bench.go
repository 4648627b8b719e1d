package main

import (
	"fmt"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/spf13/cobra"

	"github.com/lemonberrylabs/fieldrules/pkg/constraint"
)

func newBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench VALUE CONSTRAINT",
		Short: "Measure evaluation latency of a compiled constraint",
		Args:  cobra.ExactArgs(2),
		RunE:  bench,
	}
	cmd.Flags().Int("iterations", 100000, "Number of evaluations to time")
	return cmd
}

func bench(cmd *cobra.Command, args []string) error {
	iterations, _ := cmd.Flags().GetInt("iterations")
	if iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", iterations)
	}

	prog, err := constraint.Compile(args[1])
	if err != nil {
		return err
	}

	// 1ns to 1s at 3 significant figures.
	h := hdrhistogram.New(1, int64(time.Second), 3)
	var (
		valid   bool
		evalErr error
	)
	for i := 0; i < iterations; i++ {
		start := time.Now()
		valid, evalErr = prog.Eval(args[0])
		if err := h.RecordValue(min(max(int64(time.Since(start)), 1), h.HighestTrackableValue())); err != nil {
			return fmt.Errorf("recording latency: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "constraint: %s\n", prog.String())
	fmt.Fprintf(out, "valid: %t\n", valid)
	if evalErr != nil {
		fmt.Fprintf(out, "error: %v\n", evalErr)
	}
	fmt.Fprintf(out, "iterations: %d\n", h.TotalCount())
	fmt.Fprintf(out, "mean: %s\n", time.Duration(h.Mean()))
	for _, q := range []float64{50, 90, 99} {
		fmt.Fprintf(out, "p%g: %s\n", q, time.Duration(h.ValueAtQuantile(q)))
	}
	fmt.Fprintf(out, "max: %s\n", time.Duration(h.Max()))
	return nil
}
