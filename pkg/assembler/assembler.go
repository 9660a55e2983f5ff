// Package assembler merges per-draw generated-quantities rows with the
// original parameter draws into one combined, order-preserving sample.
package assembler

import (
	"os"
	"sync"

	"github.com/gqflow/gqflow/internal/model"
	gqerrors "github.com/gqflow/gqflow/pkg/errors"
	"github.com/gqflow/gqflow/pkg/stancsv"
)

// FailureColumn is the implicit per-row marker column appended to the
// output when any row failed. The double-underscore suffix keeps it out of
// the model's own namespace, like the sampler's lp__ column.
const FailureColumn = "gq_failed__"

// Assembler collects rows keyed by draw index in any arrival order and
// finalizes them into a CombinedSample in strictly ascending index order.
// Safe for concurrent Add calls.
type Assembler struct {
	mu   sync.Mutex
	rows map[int]model.Row

	draws         *model.DrawSet
	outputColumns []string
}

// New creates an assembler for the given draw set and validated output
// columns.
func New(draws *model.DrawSet, outputColumns []string) *Assembler {
	return &Assembler{
		rows:          make(map[int]model.Row, draws.Len()),
		draws:         draws,
		outputColumns: outputColumns,
	}
}

// Add records one terminal result. Duplicate or out-of-range indices are
// programming errors upstream and rejected.
func (a *Assembler) Add(row model.Row) error {
	if row.DrawIndex < 0 || row.DrawIndex >= a.draws.Len() {
		return gqerrors.New(gqerrors.CodeUnknown, "row index out of range").
			WithContext("draw", row.DrawIndex)
	}
	if !row.Failed && len(row.Values) != len(a.outputColumns) {
		return gqerrors.OutputParse(row.DrawIndex, "row width does not match output schema")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, dup := a.rows[row.DrawIndex]; dup {
		return gqerrors.New(gqerrors.CodeUnknown, "duplicate row for draw").
			WithContext("draw", row.DrawIndex)
	}
	a.rows[row.DrawIndex] = row
	return nil
}

// Len returns the number of terminal results recorded so far.
func (a *Assembler) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.rows)
}

// Finalize materializes the combined sample in draw-index order. Every
// input draw yields exactly one output row: draws without a recorded
// result (an aborted run) are marked failed rather than dropped, so the
// 1:1 draw-to-row mapping holds in all terminal states.
func (a *Assembler) Finalize() *model.CombinedSample {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := a.draws.Len()
	cs := &model.CombinedSample{
		Columns:   append(append([]string{}, a.draws.Columns...), a.outputColumns...),
		Config:    a.draws.Config,
		Values:    make([][]float64, n),
		Failed:    make([]bool, n),
		NumParams: len(a.draws.Columns),
	}

	for i := 0; i < n; i++ {
		row, ok := a.rows[i]
		combined := make([]float64, 0, len(cs.Columns))
		combined = append(combined, a.draws.Values[i]...)
		if ok && !row.Failed {
			combined = append(combined, row.Values...)
		} else {
			for range a.outputColumns {
				combined = append(combined, model.NaN)
			}
			cs.Failed[i] = true
		}
		cs.Values[i] = combined
	}

	return cs
}

// WriteFile persists the combined sample using the same structured-output
// convention the draw sources read, so the result re-ingests through the
// same pipeline. The failure marker column is appended only when at least
// one row failed.
func WriteFile(path string, cs *model.CombinedSample) error {
	f, err := os.Create(path)
	if err != nil {
		return gqerrors.Wrap(err, gqerrors.CodeWriteFailed, "failed to create output file").
			WithContext("path", path)
	}
	defer f.Close()

	w := stancsv.NewWriter(f)
	if err := w.WriteComment("method = generate_quantities"); err != nil {
		return gqerrors.Wrap(err, gqerrors.CodeWriteFailed, "failed to write header")
	}
	if err := w.WriteConfig(cs.Config); err != nil {
		return gqerrors.Wrap(err, gqerrors.CodeWriteFailed, "failed to write header")
	}

	withMarker := cs.HasFailures()
	columns := cs.Columns
	if withMarker {
		columns = append(append([]string{}, cs.Columns...), FailureColumn)
	}
	if err := w.WriteColumns(columns); err != nil {
		return gqerrors.Wrap(err, gqerrors.CodeWriteFailed, "failed to write columns")
	}

	row := make([]float64, 0, len(columns))
	for i, values := range cs.Values {
		row = row[:0]
		row = append(row, values...)
		if withMarker {
			marker := 0.0
			if cs.Failed[i] {
				marker = 1.0
			}
			row = append(row, marker)
		}
		if err := w.WriteRow(row); err != nil {
			return gqerrors.Wrap(err, gqerrors.CodeWriteFailed, "failed to write row").
				WithContext("draw", i)
		}
	}

	if err := w.Flush(); err != nil {
		return gqerrors.Wrap(err, gqerrors.CodeWriteFailed, "failed to flush output")
	}
	return f.Sync()
}
