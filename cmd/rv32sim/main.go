// Command rv32sim runs RV32IM workloads on the 5-stage pipeline
// simulator, either one at a time ("run") or concurrently across many
// workloads ("batch"), mirroring the teacher's cmd/m2sim entry point
// generalized from a single flag.Bool CLI to a cobra command tree.
package main

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/rs/xid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/rv32pipe/config"
	"github.com/sarchlab/rv32pipe/loader"
	"github.com/sarchlab/rv32pipe/memory"
	"github.com/sarchlab/rv32pipe/pipeline"
	"github.com/sarchlab/rv32pipe/regfile"
	"github.com/sarchlab/rv32pipe/trace"
)

// newDiagLogger builds the stderr logr.Logger used for secondary
// diagnostics (decode-miss warnings, the fatal memory-out-of-range
// message) that are not part of the cycle-trace wire contract.
func newDiagLogger() logr.Logger {
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintf(os.Stderr, "%s: %s\n", prefix, args)
			return
		}
		fmt.Fprintln(os.Stderr, args)
	}, funcr.Options{})
}

func main() {
	v := viper.New()
	root := &cobra.Command{
		Use:   "rv32sim",
		Short: "Cycle-accurate RV32IM 5-stage pipeline simulator",
	}

	root.AddCommand(newRunCmd(v), newBatchCmd(v))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCmd(v *viper.Viper) *cobra.Command {
	var traceOut bool

	cmd := &cobra.Command{
		Use:   "run <workload-dir> <name>",
		Short: "Run a single workload to completion, tracing to stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = v.BindPFlags(cmd.Flags())
			cfg := config.Load(v)

			runID := xid.New()
			exitCode, err := runWorkload(cfg, args[0], args[1], runID.String(), traceOut)
			if err != nil {
				return err
			}

			os.Exit(int(exitCode))
			return nil
		},
	}

	cmd.Flags().BoolVar(&traceOut, "trace", false, "write a cycle-by-cycle trace to stdout")
	config.BindFlags(cmd.Flags(), v)

	return cmd
}

func newBatchCmd(v *viper.Viper) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "batch <workload-dir> <name...>",
		Short: "Run several workloads concurrently and report per-workload exit codes",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = v.BindPFlags(cmd.Flags())
			cfg := config.Load(v)

			srcDir := args[0]
			names := args[1:]

			// Each workload's own error (including a recovered panic
			// from runWorkload) is recorded, not returned from g.Go:
			// one workload failing must not cancel the others or
			// suppress the final per-workload report.
			g, _ := errgroup.WithContext(cmd.Context())
			g.SetLimit(concurrency)

			results := make([]int32, len(names))
			failures := make([]error, len(names))
			for i, name := range names {
				i, name := i, name
				g.Go(func() error {
					runID := xid.New()
					exitCode, err := runWorkload(cfg, srcDir, name, runID.String(), false)
					results[i] = exitCode
					failures[i] = err
					return nil
				})
			}
			_ = g.Wait()

			anyFailed := false
			for i, name := range names {
				if failures[i] != nil {
					anyFailed = true
					fmt.Printf("%s: exit=%d error=%v\n", name, results[i], failures[i])
					continue
				}
				fmt.Printf("%s: exit=%d\n", name, results[i])
			}
			if anyFailed {
				return fmt.Errorf("one or more workloads failed")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "maximum concurrently running workloads")
	config.BindFlags(cmd.Flags(), v)

	return cmd
}

func runWorkload(cfg config.Config, srcDir, name, runID string, traceOut bool) (exitCode int32, err error) {
	diagLogger := newDiagLogger().WithValues("workload", name)

	workDir, err := os.MkdirTemp("", "rv32sim-"+runID)
	if err != nil {
		return 0, fmt.Errorf("creating work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	wl, err := loader.LoadWorkload(srcDir, workDir, name)
	if err != nil {
		return 0, err
	}

	icache := memory.New(memory.WithWordBits(cfg.MemoryWordBits), memory.WithLogger(diagLogger))
	dcache := memory.New(memory.WithWordBits(cfg.MemoryWordBits), memory.WithLogger(diagLogger))
	icache.LoadProgram(wl.Text)
	if len(wl.Data) > 0 {
		dcache.LoadProgram(wl.Data)
	}

	rf := &regfile.RegFile{}
	rf.Write(2, cfg.StackTop) // x2/sp

	opts := []pipeline.PipelineOption{
		pipeline.WithBTBEntries(cfg.BTBEntries),
		pipeline.WithPredictorConfig(cfg.PredictorConfig),
		pipeline.WithLogger(diagLogger),
	}

	var tw *trace.Writer
	if traceOut {
		tw = trace.NewWriter(os.Stdout)
		opts = append(opts, pipeline.WithTracer(tw))
	}

	p := pipeline.NewPipeline(rf, icache, dcache, opts...)

	// A memory out-of-range access or a structural-misuse assertion
	// panics from inside the pipeline. Recovered here so one workload's
	// crash reports as a failed run instead of taking down every other
	// workload running concurrently in the same batch.
	defer func() {
		if r := recover(); r != nil {
			diagLogger.Error(fmt.Errorf("%v", r), "workload terminated abnormally")
			exitCode, err = -1, fmt.Errorf("%s: %v", name, r)
		}
	}()

	timedOut := false
	if cfg.MaxCycles > 0 {
		timedOut = p.RunCycles(cfg.MaxCycles)
	} else {
		p.Run()
	}

	if tw != nil {
		_ = tw.Flush()
	}

	if timedOut {
		return 1, fmt.Errorf("%s: cycle cap reached after %d cycles without EBREAK", name, p.Stats().Cycles)
	}

	return p.ExitCode(), nil
}
