// Package invoker wraps a single compiled generative program and evaluates
// its generated-quantities method for one draw at a time.
//
// The program is expected to follow the sampler invocation convention:
//
//	<program> info [data file=<path>]
//	<program> generate_quantities fitted_params=<csv> [data file=<path>]
//	    output file=<csv> random seed=<n>
//
// "info" is the lightweight metadata probe: the program prints its schema
// as key = value lines (optionally '#'-prefixed), e.g.
//
//	parameters = theta,beta.1,beta.2
//	generated_quantities = y_rep.1,y_rep.2
//
// "generate_quantities" evaluates the method once for the single draw in
// the fitted_params file and writes a one-row sample file.
//
// Every invocation is stateless and runs in a private, draw-scoped scratch
// directory that is removed on all exit paths.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gqflow/gqflow/internal/model"
	"github.com/gqflow/gqflow/internal/pool"
	gqerrors "github.com/gqflow/gqflow/pkg/errors"
	"github.com/gqflow/gqflow/pkg/schema"
	"github.com/gqflow/gqflow/pkg/stancsv"
)

// bufPool recycles the stdout/stderr capture buffers across the many
// short-lived invocations of a run.
var bufPool = pool.NewBufferPool(4 * 1024)

// Config holds the fixed per-run invocation parameters.
type Config struct {
	// Program is the path to the compiled executable.
	Program string

	// DataPath is the model data file supplied to every invocation.
	// Empty when the program takes no data.
	DataPath string

	// Columns are the draw parameter column names, used to write the
	// per-draw fitted-params file.
	Columns []string

	// BaseSeed seeds the program's RNG; draw i runs with BaseSeed+i so
	// stochastic quantities are decorrelated across rows yet reruns are
	// reproducible.
	BaseSeed int64

	// Timeout bounds each invocation's wall clock, probe included.
	Timeout time.Duration

	// ScratchRoot is the directory under which per-invocation scratch
	// directories are created. Defaults to os.TempDir().
	ScratchRoot string
}

// DefaultTimeout bounds invocations when no timeout is configured.
const DefaultTimeout = 5 * time.Minute

// Invoker evaluates the generated-quantities method of one compiled
// program. Safe for concurrent use: each evaluation owns a private
// scratch directory and shares only read-only state.
type Invoker struct {
	cfg    Config
	logger *zap.Logger

	// outputColumns is fixed by Bind after schema validation.
	outputColumns []string
}

// New checks that the program is present and runnable and returns an
// Invoker. A missing or non-executable program is a fatal launch error:
// no draw could succeed.
func New(cfg Config, logger *zap.Logger) (*Invoker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ScratchRoot == "" {
		cfg.ScratchRoot = os.TempDir()
	}

	info, err := os.Stat(cfg.Program)
	if err != nil {
		return nil, gqerrors.ProcessLaunch(cfg.Program, err)
	}
	if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return nil, gqerrors.ProcessLaunch(cfg.Program, errors.New("not an executable file"))
	}

	return &Invoker{cfg: cfg, logger: logger}, nil
}

// Probe asks the program for its self-reported schema. Runs once per run,
// before any draw is dispatched.
func (iv *Invoker) Probe(ctx context.Context) (*schema.ProgramSchema, error) {
	args := []string{"info"}
	if iv.cfg.DataPath != "" {
		args = append(args, "data", "file="+iv.cfg.DataPath)
	}

	ctx, cancel := context.WithTimeout(ctx, iv.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, iv.cfg.Program, args...)
	stdout := bufPool.Get()
	stderr := bufPool.Get()
	defer bufPool.Put(stdout)
	defer bufPool.Put(stderr)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		switch {
		case ctx.Err() == context.DeadlineExceeded:
			return nil, gqerrors.Wrap(err, gqerrors.CodeProcessTimeout, "schema probe timed out").
				WithContext("timeout", iv.cfg.Timeout.String())
		case ctx.Err() != nil:
			return nil, gqerrors.ContextCanceled("probe")
		}
		if launchErr := classifyLaunch(iv.cfg.Program, err); launchErr != nil {
			return nil, launchErr
		}
		return nil, gqerrors.Wrap(err, gqerrors.CodeSchemaMismatch, "schema probe failed").
			WithContext("stderr", tail(string(stderr.Bytes()), 512))
	}

	ps, err := parseProbeOutput(string(stdout.Bytes()))
	if err != nil {
		return nil, err
	}

	iv.logger.Debug("schema probe complete",
		zap.Int("parameters", len(ps.Parameters)),
		zap.Int("generated_quantities", len(ps.GeneratedQuantities)))
	return ps, nil
}

// Bind fixes the validated output schema the invoker parses results
// against. Must be called before Evaluate.
func (iv *Invoker) Bind(ps *schema.ProgramSchema) {
	iv.outputColumns = ps.OutputColumns()
}

// OutputColumns returns the bound output column names.
func (iv *Invoker) OutputColumns() []string {
	return iv.outputColumns
}

// Evaluate runs the program for one draw and parses its output row.
//
// Recoverable per-draw failures (timeout, non-zero exit, unparseable
// output) come back as a failure-marked Row with a nil error so sibling
// draws keep running. The error return is reserved for fatal conditions:
// a program that cannot launch, or caller cancellation.
func (iv *Invoker) Evaluate(ctx context.Context, draw model.Draw) (model.Row, error) {
	if iv.outputColumns == nil {
		return model.Row{}, gqerrors.New(gqerrors.CodeSchemaMismatch, "output schema not bound")
	}

	scratch := filepath.Join(iv.cfg.ScratchRoot, "gq-"+uuid.NewString())
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return model.Row{}, gqerrors.Wrap(err, gqerrors.CodeProcessLaunch, "failed to create scratch dir")
	}
	defer os.RemoveAll(scratch)

	fittedPath := filepath.Join(scratch, "fitted_params.csv")
	if err := iv.writeFittedParams(fittedPath, draw); err != nil {
		return model.Row{}, err
	}
	outPath := filepath.Join(scratch, "output.csv")

	args := []string{"generate_quantities", "fitted_params=" + fittedPath}
	if iv.cfg.DataPath != "" {
		args = append(args, "data", "file="+iv.cfg.DataPath)
	}
	args = append(args,
		"output", "file="+outPath,
		"random", "seed="+strconv.FormatInt(iv.cfg.BaseSeed+int64(draw.Index), 10),
	)

	runCtx, cancel := context.WithTimeout(ctx, iv.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, iv.cfg.Program, args...)
	cmd.Dir = scratch
	stderr := bufPool.Get()
	defer bufPool.Put(stderr)
	cmd.Stderr = stderr

	err := cmd.Run()

	switch {
	case err == nil:
		// fall through to output parsing

	case runCtx.Err() == context.DeadlineExceeded:
		ferr := gqerrors.DrawTimeout(draw.Index, iv.cfg.Timeout.String())
		iv.logger.Warn("draw evaluation timed out",
			zap.Int("draw", draw.Index),
			zap.Duration("timeout", iv.cfg.Timeout))
		return model.FailedRow(draw.Index, ferr.Error()), nil

	case ctx.Err() != nil:
		return model.Row{}, gqerrors.ContextCanceled("evaluate")

	default:
		if launchErr := classifyLaunch(iv.cfg.Program, err); launchErr != nil {
			return model.Row{}, launchErr
		}
		diag := fmt.Sprintf("program exited with error: %v; stderr: %s",
			err, tail(string(stderr.Bytes()), 512))
		iv.logger.Warn("draw evaluation failed",
			zap.Int("draw", draw.Index),
			zap.Error(err),
			zap.String("stderr", tail(string(stderr.Bytes()), 256)))
		return model.FailedRow(draw.Index, diag), nil
	}

	values, perr := iv.parseOutput(outPath, draw.Index)
	if perr != nil {
		iv.logger.Warn("draw output rejected",
			zap.Int("draw", draw.Index),
			zap.Error(perr))
		return model.FailedRow(draw.Index, perr.Error()), nil
	}

	return model.Row{DrawIndex: draw.Index, Values: values}, nil
}

// writeFittedParams writes a one-draw sample file holding the draw's
// parameter values, the program's expected input convention.
func (iv *Invoker) writeFittedParams(path string, draw model.Draw) error {
	f, err := os.Create(path)
	if err != nil {
		return gqerrors.Wrap(err, gqerrors.CodeProcessLaunch, "failed to write fitted params")
	}
	defer f.Close()

	w := stancsv.NewWriter(f)
	if err := w.WriteColumns(iv.cfg.Columns); err != nil {
		return gqerrors.Wrap(err, gqerrors.CodeProcessLaunch, "failed to write fitted params")
	}
	if err := w.WriteRow(draw.Values); err != nil {
		return gqerrors.Wrap(err, gqerrors.CodeProcessLaunch, "failed to write fitted params")
	}
	return w.Flush()
}

// parseOutput reads the one-row output file and checks it against the
// bound schema.
func (iv *Invoker) parseOutput(path string, drawIndex int) ([]float64, error) {
	s, err := stancsv.ReadFile(path)
	if err != nil {
		return nil, gqerrors.Wrap(err, gqerrors.CodeOutputParse, "unreadable program output").
			WithContext("draw", drawIndex)
	}
	if len(s.Values) != 1 {
		return nil, gqerrors.OutputParse(drawIndex,
			fmt.Sprintf("expected 1 output row, found %d", len(s.Values)))
	}
	if len(s.Columns) != len(iv.outputColumns) {
		return nil, gqerrors.OutputParse(drawIndex,
			fmt.Sprintf("expected %d output columns, found %d",
				len(iv.outputColumns), len(s.Columns)))
	}
	for i, col := range s.Columns {
		if col != iv.outputColumns[i] {
			return nil, gqerrors.OutputParse(drawIndex,
				fmt.Sprintf("output column %d is %q, declared schema has %q",
					i, col, iv.outputColumns[i]))
		}
	}
	return s.Values[0], nil
}

// parseProbeOutput parses the info probe's key = value lines.
func parseProbeOutput(text string) (*schema.ProgramSchema, error) {
	entries := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, " #\t"))
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		entries[strings.TrimSpace(key)] = strings.TrimSpace(val)
	}

	ps := &schema.ProgramSchema{}
	if raw, ok := entries["parameters"]; ok && raw != "" {
		vars, err := schema.ParseColumns(splitList(raw))
		if err != nil {
			return nil, gqerrors.Wrap(err, gqerrors.CodeSchemaMismatch, "bad parameter declaration in probe")
		}
		ps.Parameters = vars
	}
	raw, ok := entries["generated_quantities"]
	if !ok {
		return nil, gqerrors.New(gqerrors.CodeSchemaMismatch, "probe output missing generated_quantities")
	}
	if raw != "" {
		vars, err := schema.ParseColumns(splitList(raw))
		if err != nil {
			return nil, gqerrors.Wrap(err, gqerrors.CodeSchemaMismatch, "bad output declaration in probe")
		}
		ps.GeneratedQuantities = vars
	}
	return ps, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// classifyLaunch returns a fatal launch error when err means the program
// could not start at all, nil otherwise.
func classifyLaunch(program string, err error) *gqerrors.Error {
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return gqerrors.ProcessLaunch(program, err)
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		return gqerrors.ProcessLaunch(program, err)
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
