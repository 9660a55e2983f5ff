// Package runner drives a generated-quantities run: it validates the
// program schema once, fans per-draw evaluations out across a bounded
// worker pool, applies the failure policy, and hands ordered results to
// the assembler.
package runner

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gqflow/gqflow/internal/model"
	"github.com/gqflow/gqflow/pkg/assembler"
	"github.com/gqflow/gqflow/pkg/checkpoint"
	gqerrors "github.com/gqflow/gqflow/pkg/errors"
	"github.com/gqflow/gqflow/pkg/schema"
)

// Evaluator is the per-draw invocation boundary. Implementations must be
// safe for concurrent Evaluate calls; draws are independent by contract.
type Evaluator interface {
	// Probe returns the program's self-reported schema. Called exactly
	// once, before any draw is dispatched.
	Probe(ctx context.Context) (*schema.ProgramSchema, error)

	// Bind fixes the validated output schema for later evaluations.
	Bind(ps *schema.ProgramSchema)

	// Evaluate runs one draw. Recoverable per-draw failures come back
	// as a failure-marked row with nil error; a non-nil error is fatal
	// and aborts the run.
	Evaluate(ctx context.Context, draw model.Draw) (model.Row, error)
}

// ProgressFunc reports terminal results as they arrive.
type ProgressFunc func(done, failed, total int)

// Config holds orchestration options.
type Config struct {
	// Jobs bounds the number of concurrent evaluations. Defaults to the
	// number of available processing units.
	Jobs int

	// FailureThreshold is the fraction of input draws in [0,1] allowed
	// to fail before the whole run aborts. Checked continuously as
	// terminal results arrive. Zero aborts on the first failure; a
	// negative value means unset and defaults to 1.0, which tolerates
	// any failure rate. The combined sample always makes failures
	// visible either way.
	FailureThreshold float64

	// Progress, when set, is called after every terminal result.
	Progress ProgressFunc
}

// Metrics collects run statistics.
type Metrics struct {
	StartTime time.Time
	EndTime   time.Time
	Total     int
	Succeeded atomic.Int64
	Failed    atomic.Int64
	Resumed   atomic.Int64
}

// Duration returns the run duration.
func (m *Metrics) Duration() time.Duration {
	if m.EndTime.IsZero() {
		return time.Since(m.StartTime)
	}
	return m.EndTime.Sub(m.StartTime)
}

// Runner orchestrates one run over a fixed draw set and evaluator.
type Runner struct {
	cfg    Config
	eval   Evaluator
	draws  *model.DrawSet
	logger *zap.Logger

	// ckpt, when set, lets an interrupted run resume.
	ckpt *checkpoint.Run

	state   atomic.Int32
	metrics Metrics
}

// New creates a runner.
func New(cfg Config, eval Evaluator, draws *model.DrawSet, logger *zap.Logger) *Runner {
	if cfg.Jobs <= 0 {
		cfg.Jobs = runtime.NumCPU()
	}
	if cfg.FailureThreshold < 0 {
		cfg.FailureThreshold = 1.0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, eval: eval, draws: draws, logger: logger}
}

// WithCheckpoint attaches a checkpoint for resume support.
func (r *Runner) WithCheckpoint(ckpt *checkpoint.Run) *Runner {
	r.ckpt = ckpt
	return r
}

// State returns the current lifecycle state.
func (r *Runner) State() State {
	return State(r.state.Load())
}

// Metrics returns the run metrics.
func (r *Runner) Metrics() *Metrics {
	return &r.metrics
}

func (r *Runner) setState(s State) {
	r.state.Store(int32(s))
}

// Run executes the full pipeline. The returned sample is well-defined in
// every terminal state: on abort it carries the rows that reached a
// terminal result, with all others marked failed, so callers can always
// tell which draws have no valid generated quantities.
func (r *Runner) Run(ctx context.Context) (*model.CombinedSample, error) {
	if r.State() != StateIdle {
		return nil, gqerrors.New(gqerrors.CodeUnknown, "runner already started")
	}

	r.metrics.StartTime = time.Now()
	r.metrics.Total = r.draws.Len()
	defer func() { r.metrics.EndTime = time.Now() }()

	r.setState(StateValidating)
	asm, err := r.validate(ctx)
	if err != nil {
		r.setState(StateAborted)
		return nil, err
	}

	r.setState(StateRunning)
	runErr := r.dispatch(ctx, asm)

	sample := asm.Finalize()
	if runErr != nil {
		r.setState(StateAborted)
		return sample, runErr
	}

	if r.ckpt != nil {
		if err := r.ckpt.Complete(); err != nil {
			r.logger.Warn("failed to finalize checkpoint", zap.Error(err))
		}
	}
	r.setState(StateCompleted)
	return sample, nil
}

// validate probes the program schema and reconciles it against the draw
// schema. Runs exactly once; schemas are invariant across draws.
func (r *Runner) validate(ctx context.Context) (*assembler.Assembler, error) {
	drawVars, err := schema.ParseColumns(r.draws.Columns)
	if err != nil {
		return nil, err
	}

	ps, err := r.eval.Probe(ctx)
	if err != nil {
		return nil, err
	}

	if err := schema.Validate(ps, drawVars); err != nil {
		return nil, err
	}

	r.eval.Bind(ps)
	r.logger.Info("program schema validated",
		zap.Int("draws", r.draws.Len()),
		zap.Int("parameters", len(ps.Parameters)),
		zap.Int("generated_quantities", len(ps.GeneratedQuantities)))

	return assembler.New(r.draws, ps.OutputColumns()), nil
}

// dispatch fans draws out across the worker pool and records terminal
// results. Results arrive in completion order; index accounting lives in
// the assembler, which reorders at finalization.
func (r *Runner) dispatch(ctx context.Context, asm *assembler.Assembler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Jobs)

	// A replayed checkpoint row can breach the failure threshold while
	// workers for earlier draws are already in flight. Those workers
	// must wind down under the group before the run returns.
	var replayErr error

	total := r.draws.Len()
	for i := 0; i < total; i++ {
		if gctx.Err() != nil {
			break
		}

		// Resume: draws with a checkpointed terminal result are
		// replayed, not re-executed.
		if r.ckpt != nil {
			if row, ok := r.ckpt.Row(i); ok {
				r.metrics.Resumed.Add(1)
				if err := r.record(asm, row, false); err != nil {
					replayErr = err
					cancel()
					break
				}
				continue
			}
		}

		draw := r.draws.Draw(i)
		g.Go(func() error {
			row, err := r.eval.Evaluate(gctx, draw)
			if err != nil {
				return err
			}
			return r.record(asm, row, true)
		})
	}

	err := g.Wait()
	if replayErr != nil {
		return replayErr
	}
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return gqerrors.ContextCanceled("run")
	}
	return nil
}

// record registers one terminal result: assembly, checkpoint, metrics,
// progress, and the continuous failure-threshold check.
func (r *Runner) record(asm *assembler.Assembler, row model.Row, checkpointIt bool) error {
	if err := asm.Add(row); err != nil {
		return err
	}
	if r.ckpt != nil && checkpointIt {
		r.ckpt.Record(row)
	}

	var failed int64
	if row.Failed {
		failed = r.metrics.Failed.Add(1)
		r.logger.Warn("draw failed",
			zap.Int("draw", row.DrawIndex),
			zap.String("diagnostic", row.Diagnostic))
	} else {
		r.metrics.Succeeded.Add(1)
		failed = r.metrics.Failed.Load()
	}
	done := r.metrics.Succeeded.Load() + r.metrics.Failed.Load()

	if r.cfg.Progress != nil {
		r.cfg.Progress(int(done), int(failed), r.metrics.Total)
	}

	if rate := float64(failed) / float64(r.metrics.Total); rate > r.cfg.FailureThreshold {
		return gqerrors.New(gqerrors.CodeThreshold, "failure rate exceeded threshold").
			WithContext("failed", failed).
			WithContext("total", r.metrics.Total).
			WithContext("threshold", r.cfg.FailureThreshold)
	}
	return nil
}
