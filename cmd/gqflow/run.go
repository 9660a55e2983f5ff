package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gqflow/gqflow/internal/model"
	"github.com/gqflow/gqflow/pkg/assembler"
	"github.com/gqflow/gqflow/pkg/checkpoint"
	"github.com/gqflow/gqflow/pkg/config"
	"github.com/gqflow/gqflow/pkg/datafile"
	"github.com/gqflow/gqflow/pkg/drawset"
	"github.com/gqflow/gqflow/pkg/invoker"
	"github.com/gqflow/gqflow/pkg/runner"
	"github.com/gqflow/gqflow/pkg/telemetry"
	"github.com/gqflow/gqflow/pkg/tui"
)

// jobOptions is the merged configuration surface for one run: config file
// defaults overridden by flags.
type jobOptions struct {
	program       string
	data          string
	drawFiles     []string
	output        string
	jobs          int
	timeout       time.Duration
	failThreshold float64
	seed          int64
	scratchDir    string
	checkpointDir string
	resumeID      string
	otlpEndpoint  string
}

// mergeOptions layers CLI flags over the loaded configuration.
func mergeOptions(cfg *config.Config) jobOptions {
	opts := jobOptions{
		program:       programPath,
		data:          dataPath,
		drawFiles:     drawFiles,
		output:        outputPath,
		jobs:          cfg.Run.Jobs,
		timeout:       cfg.Run.Timeout,
		failThreshold: cfg.Run.FailureThreshold,
		seed:          cfg.Run.Seed,
		scratchDir:    cfg.Scratch.Dir,
		checkpointDir: cfg.Scratch.CheckpointDir,
		resumeID:      resumeID,
		otlpEndpoint:  otlpEndpoint,
	}
	if jobs > 0 {
		opts.jobs = jobs
	}
	if drawTimeout > 0 {
		opts.timeout = drawTimeout
	}
	// Zero is a valid, strict threshold; only the -1 sentinel means
	// "flag not given".
	if failThreshold >= 0 {
		opts.failThreshold = failThreshold
	}
	if seed != 0 {
		opts.seed = seed
	}
	if scratchDir != "" {
		opts.scratchDir = scratchDir
	}
	if opts.otlpEndpoint == "" && cfg.Telemetry.Enabled {
		opts.otlpEndpoint = cfg.Telemetry.Endpoint
	}
	return opts
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if err := config.Global().Load(); err != nil {
		return err
	}
	opts := mergeOptions(config.Global().Get())

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.otlpEndpoint != "" {
		tcfg := telemetry.DefaultConfig("gqflow")
		tcfg.Endpoint = opts.otlpEndpoint
		tcfg.ServiceVersion = version
		shutdown, err := telemetry.Init(ctx, tcfg)
		if err != nil {
			logger.Warn("telemetry disabled", zap.Error(err))
		} else {
			defer shutdown(context.Background())
		}
	}

	tui.PrintHeader(version)

	sample, metrics, err := executeRun(ctx, opts, logger, true)
	if sample != nil {
		// A partial sample from an aborted run is still written:
		// completed and failed rows are marked, never dropped.
		if werr := assembler.WriteFile(opts.output, sample); werr != nil {
			if err == nil {
				err = werr
			} else {
				logger.Error("failed to write partial output", zap.Error(werr))
			}
		}
	}
	if err != nil {
		tui.PrintError(err)
		return err
	}

	tui.PrintSuccess(sample.Len(), sample.FailureCount(), metrics.Duration())
	return nil
}

// effectiveJobs resolves the auto worker-pool default for display.
func effectiveJobs(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// executeRun wires one full run: draws, invoker, checkpoint, orchestrator.
func executeRun(ctx context.Context, opts jobOptions, logger *zap.Logger, withProgress bool) (*model.CombinedSample, *runner.Metrics, error) {
	ctx, span := telemetry.StartSpan(ctx, "gqflow.run")
	defer span.End()

	draws, err := drawset.Load(opts.drawFiles...)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, nil, err
	}

	dataPath, cleanupData, err := datafile.Resolve(opts.data, opts.scratchDir)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, nil, err
	}
	defer cleanupData()

	inv, err := invoker.New(invoker.Config{
		Program:     opts.program,
		DataPath:    dataPath,
		Columns:     draws.Columns,
		BaseSeed:    opts.seed,
		Timeout:     opts.timeout,
		ScratchRoot: opts.scratchDir,
	}, logger)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, nil, err
	}

	rcfg := runner.Config{
		Jobs:             opts.jobs,
		FailureThreshold: opts.failThreshold,
	}
	if withProgress {
		tui.PrintRunInfo(opts.program, draws.Len(), effectiveJobs(rcfg.Jobs), opts.output)
		bar := tui.ShowProgress(int64(draws.Len()), "evaluating draws")
		rcfg.Progress = func(done, failed, total int) {
			bar.Set(done)
		}
	}

	r := runner.New(rcfg, inv, draws, logger)

	if opts.resumeID != "" {
		mgr, err := checkpoint.NewManager(opts.checkpointDir)
		if err != nil {
			return nil, nil, err
		}
		ckpt := mgr.LoadOrCreate(opts.resumeID, opts.program, opts.drawFiles, draws.Len())
		r.WithCheckpoint(ckpt)
	}

	sample, err := r.Run(ctx)
	if err != nil {
		telemetry.RecordError(ctx, err)
		logger.Error("run aborted",
			zap.String("state", r.State().String()),
			zap.Error(err))
		return sample, r.Metrics(), err
	}

	return sample, r.Metrics(), nil
}
