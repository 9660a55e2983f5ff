// gqflow - re-derives generated quantities from an existing posterior
// sample without re-running inference.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// CLI flags
var (
	programPath   string
	dataPath      string
	drawFiles     []string
	outputPath    string
	jobs          int
	drawTimeout   time.Duration
	failThreshold float64
	seed          int64
	scratchDir    string
	resumeID      string
	verbose       bool
	otlpEndpoint  string

	// Watch flags
	watchDir string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gqflow",
	Short: "gqflow - Generated quantities from existing posterior draws",
	Long: `gqflow evaluates a compiled generative program's generated-quantities
method once per draw of a previously produced posterior sample, and writes
a combined sample aligned 1:1 with the input draws.

The sampling run itself is never repeated: only the generated quantities
are computed, one isolated program invocation per draw.`,
	Version: fmt.Sprintf("%s (%s)", version, commit),
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate generated quantities over a set of draws",
	Long: `Run the compiled program's generated-quantities method for every draw
in the given sample files and write the combined sample.

Examples:
  gqflow run -p ./bernoulli -d data.json --draws fit_1.csv -o gq.csv
  gqflow run -p ./model --draws fit_1.csv --draws fit_2.csv -o gq.csv --jobs 8
  gqflow run -p ./model --draws fit.csv -o gq.csv --timeout 30s --fail-threshold 0.05
  gqflow run -p ./model --draws fit.csv -o gq.csv --resume nightly-2026-08-31`,
	RunE: runGenerate,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [sample-file...]",
	Short: "Display schema and draw counts of sample files",
	Long:  `Parse one or more sample files and display their variables, shapes, and draw counts.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runInspect,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a directory and run generated quantities on new sample files",
	Long: `Monitor a directory for newly completed sample files and evaluate the
program's generated quantities for each one as it appears. Output is
written next to the input as <name>_gq.csv.

Example:
  gqflow watch -p ./model -d data.json --dir ./runs`,
	RunE: runWatch,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	runCmd.Flags().StringVarP(&programPath, "program", "p", "", "Path to the compiled program (required)")
	runCmd.Flags().StringVarP(&dataPath, "data", "d", "", "Path to the model data file (JSON or R dump)")
	runCmd.Flags().StringArrayVar(&drawFiles, "draws", nil, "Input draw file (repeatable, concatenated in order)")
	runCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output sample file path (required)")
	runCmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "Worker pool size (0 = number of CPUs)")
	runCmd.Flags().DurationVar(&drawTimeout, "timeout", 0, "Per-draw wall-clock timeout")
	runCmd.Flags().Float64Var(&failThreshold, "fail-threshold", -1, "Fraction of draws allowed to fail before aborting; 0 forbids any failure (default 1.0)")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "Base RNG seed; draw i runs with seed+i")
	runCmd.Flags().StringVar(&scratchDir, "scratch-dir", "", "Root directory for per-draw scratch workspaces")
	runCmd.Flags().StringVar(&resumeID, "resume", "", "Checkpoint ID; resume a prior interrupted run")
	runCmd.Flags().StringVar(&otlpEndpoint, "otlp-endpoint", "", "OTLP gRPC endpoint for trace export")
	runCmd.MarkFlagRequired("program")
	runCmd.MarkFlagRequired("draws")
	runCmd.MarkFlagRequired("output")

	watchCmd.Flags().StringVarP(&programPath, "program", "p", "", "Path to the compiled program (required)")
	watchCmd.Flags().StringVarP(&dataPath, "data", "d", "", "Path to the model data file")
	watchCmd.Flags().StringVar(&watchDir, "dir", ".", "Directory to watch for new sample files")
	watchCmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "Worker pool size (0 = number of CPUs)")
	watchCmd.Flags().DurationVar(&drawTimeout, "timeout", 0, "Per-draw wall-clock timeout")
	watchCmd.Flags().Int64Var(&seed, "seed", 0, "Base RNG seed")
	watchCmd.MarkFlagRequired("program")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(watchCmd)
}
