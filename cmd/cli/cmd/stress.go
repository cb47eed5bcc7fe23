package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dumpster/internal/stress"
	"github.com/dumpster/pkg/dumpster"
	"github.com/dumpster/pkg/pprof"
	"github.com/dumpster/pkg/writer"
)

var (
	stressWorkers    int
	stressOps        int
	stressNodes      int
	stressFanout     int
	stressSeed       int64
	stressLockRatio  float64
	stressManual     bool
	stressTiming     bool
	stressTimeout    time.Duration
	stressProgressIv time.Duration
	stressOutput     string
	stressProfileDir string
	stressProfiles   string
)

// stressCmd represents the stress command
var stressCmd = &cobra.Command{
	Use:   "stress",
	Short: "Mutate a shared graph concurrently and verify reclamation",
	Long: `Run the stress harness.

Workers create nodes, re-wire edges, walk paths and drop handles at random
while collection passes run. After the run every root is released and the
collector drained; the command fails if any node was reached after it was
finalized, finalized twice, or never finalized.

Flags override the stress and collector sections of the config file.`,
	RunE: runStress,
}

func init() {
	f := stressCmd.Flags()
	f.IntVarP(&stressWorkers, "workers", "w", 0, "Number of concurrent workers")
	f.IntVarP(&stressOps, "ops", "n", 0, "Operations per worker")
	f.IntVar(&stressNodes, "nodes", 0, "Size of the shared root table")
	f.IntVar(&stressFanout, "fanout", 0, "Maximum edges per node")
	f.Int64Var(&stressSeed, "seed", 0, "Random seed")
	f.Float64Var(&stressLockRatio, "lock-ratio", 0, "Share of nodes guarded by a read-write lock")
	f.BoolVar(&stressManual, "manual", false, "Disable automatic collection passes")
	f.BoolVar(&stressTiming, "timing", false, "Record per-phase timing of every pass")
	f.DurationVar(&stressTimeout, "timeout", 0, "Stop the workers after this long (0 = no limit)")
	f.DurationVar(&stressProgressIv, "progress", 2*time.Second, "Progress report interval")
	f.StringVarP(&stressOutput, "output", "o", "", "Write the report as JSON to this file (.gz or .zst to compress)")
	f.StringVar(&stressProfileDir, "profile-dir", "", "Capture runtime profiles of the run into this directory")
	f.StringVar(&stressProfiles, "profiles", "", "Comma-separated profiles to capture (cpu,heap,goroutine,block,mutex,allocs)")

	rootCmd.AddCommand(stressCmd)
}

func runStress(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Stress.Workers = stressWorkers
	}
	if flags.Changed("ops") {
		cfg.Stress.Operations = stressOps
	}
	if flags.Changed("nodes") {
		cfg.Stress.Nodes = stressNodes
	}
	if flags.Changed("fanout") {
		cfg.Stress.Fanout = stressFanout
	}
	if flags.Changed("seed") {
		cfg.Stress.Seed = stressSeed
	}
	if flags.Changed("lock-ratio") {
		cfg.Stress.LockRatio = stressLockRatio
	}
	if stressManual {
		cfg.Collector.Automatic = false
	}
	if stressTiming {
		cfg.Collector.Timing = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if stressTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, stressTimeout)
		defer cancel()
	}

	c := dumpster.NewCollector(collectorOptions()...)
	opts := stress.OptionsFromConfig(cfg.Stress)
	opts.ProgressInterval = stressProgressIv
	opts.Progress = func(completed, total int64) {
		logger.Info("Progress: %d/%d operations, %d live, %d passes",
			completed, total, c.Stats().Live, c.Stats().Passes)
	}

	var session *pprof.Session
	if stressProfileDir != "" {
		types, perr := pprof.ParseProfileTypes(stressProfiles)
		if perr != nil {
			return perr
		}
		pcfg := pprof.DefaultConfig(stressProfileDir)
		pcfg.Profiles = types
		if session, perr = pprof.Start(pcfg); perr != nil {
			return perr
		}
	}

	logger.Info("Starting stress run: %d workers x %d operations over %d nodes",
		opts.Workers, opts.Operations, opts.Nodes)
	report, err := stress.NewRunner(c, opts, logger).Run(ctx)

	if session != nil {
		files, perr := session.Stop()
		if perr != nil {
			logger.Warn("Profiling: %v", perr)
		}
		for pt, path := range files {
			logger.Info("Wrote %s profile to %s", pt, path)
		}
	}
	if report != nil {
		printReport(cmd, report)
		if stressOutput != "" {
			if werr := writer.ForPath[*stress.Report](stressOutput).WriteToFile(report, stressOutput); werr != nil {
				return werr
			}
			logger.Info("Report written to %s", stressOutput)
		}
	}
	return err
}

func printReport(cmd *cobra.Command, r *stress.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nStress run finished in %s\n", r.Duration)
	fmt.Fprintln(out, "Operations:")
	for _, name := range r.OperationNames() {
		fmt.Fprintf(out, "  %-8s %d\n", name, r.Operations[name])
	}
	fmt.Fprintf(out, "Nodes:       %d created, %d finalized, %d finalized twice\n",
		r.Created, r.Finalized, r.DoubleFinalized)
	fmt.Fprintf(out, "Violations:  %d\n", r.Violations)
	fmt.Fprintf(out, "Passes:      %d (%d during teardown)\n", r.Stats.Passes, r.DrainPasses)
	fmt.Fprintf(out, "Probed:      %d candidates, %d nodes, %d edges\n",
		r.Stats.Candidates, r.Stats.Visited, r.Stats.Edges)
	fmt.Fprintf(out, "Reclaimed:   %d by passes, %d groups spared\n", r.Stats.Collected, r.Stats.Aborted)
	for reason, n := range r.Stats.Conservative {
		fmt.Fprintf(out, "  kept (%s): %d\n", reason, n)
	}
	if err := r.Err(); err != nil {
		fmt.Fprintf(out, "FAILED: %v\n", err)
		return
	}
	fmt.Fprintln(out, "OK")
}
