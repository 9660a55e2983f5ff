// Package model defines core data structures for gqflow.
package model

import "math"

// Draw is one parameter draw from a prior sampling run. Values are in
// column order of the owning DrawSet and immutable once read.
type Draw struct {
	// Index is the position of this draw in the concatenated input,
	// zero-based. It is threaded through every evaluation and result.
	Index int

	// Values holds the flattened numeric values, one per column.
	Values []float64
}

// DrawSet is an ordered sequence of draws sharing one parameter schema.
type DrawSet struct {
	// Columns are the flattened parameter column names, in file order.
	Columns []string

	// Config holds non-default key=value entries captured from the
	// sample file comment headers.
	Config map[string]string

	// Values holds one row per draw; every row has len(Columns) entries.
	Values [][]float64
}

// Len returns the number of draws.
func (ds *DrawSet) Len() int {
	return len(ds.Values)
}

// Draw returns the draw at index i. The returned value slice aliases the
// set's storage; callers must not mutate it.
func (ds *DrawSet) Draw(i int) Draw {
	return Draw{Index: i, Values: ds.Values[i]}
}

// Row is one generated-quantities evaluation result, tagged with the
// originating draw index. Failed rows carry a diagnostic instead of values.
type Row struct {
	DrawIndex int

	// Values holds one entry per declared output column. Nil when Failed.
	Values []float64

	// Failed marks a recoverable per-draw failure (timeout, non-zero
	// exit, unparseable output).
	Failed bool

	// Diagnostic retains the underlying failure detail for reporting.
	Diagnostic string
}

// FailedRow builds a failure-marked row for a draw.
func FailedRow(drawIndex int, diagnostic string) Row {
	return Row{DrawIndex: drawIndex, Failed: true, Diagnostic: diagnostic}
}

// CombinedSample is the final artifact: for each input draw, the union of
// its parameter values and its generated-quantities values.
type CombinedSample struct {
	// Columns is the ordered union: parameter columns first, then
	// generated-quantities columns in declaration order.
	Columns []string

	// Config is echoed into the output header.
	Config map[string]string

	// Values holds one row per input draw, in draw-index order. Failed
	// rows hold NaN in every generated-quantities position.
	Values [][]float64

	// Failed marks rows with no valid generated quantities.
	Failed []bool

	// NumParams is the number of leading parameter columns.
	NumParams int
}

// Len returns the number of rows.
func (cs *CombinedSample) Len() int {
	return len(cs.Values)
}

// HasFailures reports whether any row is marked failed.
func (cs *CombinedSample) HasFailures() bool {
	for _, f := range cs.Failed {
		if f {
			return true
		}
	}
	return false
}

// FailureCount returns the number of failed rows.
func (cs *CombinedSample) FailureCount() int {
	n := 0
	for _, f := range cs.Failed {
		if f {
			n++
		}
	}
	return n
}

// NaN is the placeholder written into generated columns of failed rows.
var NaN = math.NaN()
