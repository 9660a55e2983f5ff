// Package schema models the variable schemas declared by sample files and
// compiled programs, and reconciles them before any draw is executed.
//
// Flattened column names follow the dot-separated one-based convention:
// a scalar "theta" occupies one column, a vector "beta" of length 2 the
// columns "beta.1" and "beta.2", and a 2x2 matrix "Sigma" the columns
// "Sigma.1.1" through "Sigma.2.2" in column-major order.
package schema

import (
	"strconv"
	"strings"

	gqerrors "github.com/gqflow/gqflow/pkg/errors"
)

// Variable is one declared variable: a name plus its dimensions.
// A scalar has no dimensions.
type Variable struct {
	Name string
	Dims []int
}

// Elements returns the number of flattened columns the variable occupies.
func (v Variable) Elements() int {
	n := 1
	for _, d := range v.Dims {
		n *= d
	}
	return n
}

// String renders the variable with its dimensions, e.g. "Sigma[2,2]".
func (v Variable) String() string {
	if len(v.Dims) == 0 {
		return v.Name
	}
	var sb strings.Builder
	sb.WriteString(v.Name)
	sb.WriteByte('[')
	for i, d := range v.Dims {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(d))
	}
	sb.WriteByte(']')
	return sb.String()
}

// SameShape reports whether two variables have identical dimensions.
func (v Variable) SameShape(o Variable) bool {
	if len(v.Dims) != len(o.Dims) {
		return false
	}
	for i := range v.Dims {
		if v.Dims[i] != o.Dims[i] {
			return false
		}
	}
	return true
}

// ProgramSchema is a compiled program's self-reported schema: the
// parameter variables it reads per draw, and the generated-quantities
// variables it declares it will produce.
type ProgramSchema struct {
	Parameters          []Variable
	GeneratedQuantities []Variable
}

// OutputColumns returns the flattened column names of the declared
// generated quantities, in declaration order.
func (ps *ProgramSchema) OutputColumns() []string {
	return FlattenColumns(ps.GeneratedQuantities)
}

// ParseColumns groups flattened column names into variables. Columns of a
// multi-element variable must be contiguous and complete: a variable seen
// with maximum index [2,3] must occupy exactly 6 columns.
func ParseColumns(columns []string) ([]Variable, error) {
	var vars []Variable
	seen := make(map[string]int) // name -> index into vars

	for _, col := range columns {
		name, idx := splitIndexedName(col)
		vi, ok := seen[name]
		if !ok {
			seen[name] = len(vars)
			vars = append(vars, Variable{Name: name, Dims: idx})
			continue
		}
		v := &vars[vi]
		if len(idx) != len(v.Dims) {
			return nil, gqerrors.New(gqerrors.CodeColumnMismatch, "inconsistent dimensionality").
				WithContext("variable", name).
				WithContext("column", col)
		}
		for i, d := range idx {
			if d > v.Dims[i] {
				v.Dims[i] = d
			}
		}
	}

	// Completeness: the flattened expansion must reproduce the input.
	total := 0
	for _, v := range vars {
		total += v.Elements()
	}
	if total != len(columns) {
		return nil, gqerrors.New(gqerrors.CodeColumnMismatch, "incomplete variable columns").
			WithContext("expected", total).
			WithContext("found", len(columns))
	}

	return vars, nil
}

// FlattenColumns expands variables into flattened column names, inverse of
// ParseColumns.
func FlattenColumns(vars []Variable) []string {
	var cols []string
	for _, v := range vars {
		if len(v.Dims) == 0 {
			cols = append(cols, v.Name)
			continue
		}
		idx := make([]int, len(v.Dims))
		for i := range idx {
			idx[i] = 1
		}
		for n := v.Elements(); n > 0; n-- {
			var sb strings.Builder
			sb.WriteString(v.Name)
			for _, d := range idx {
				sb.WriteByte('.')
				sb.WriteString(strconv.Itoa(d))
			}
			cols = append(cols, sb.String())

			// Column-major: leftmost index varies fastest.
			for i := 0; i < len(idx); i++ {
				idx[i]++
				if idx[i] <= v.Dims[i] {
					break
				}
				idx[i] = 1
			}
		}
	}
	return cols
}

// splitIndexedName splits "Sigma.2.3" into ("Sigma", [2,3]). Trailing
// dot-separated segments count as indices only if every one is a positive
// integer; "my.var" stays a scalar name.
func splitIndexedName(col string) (string, []int) {
	parts := strings.Split(col, ".")
	if len(parts) == 1 {
		return col, nil
	}
	for split := 1; split < len(parts); split++ {
		idx := make([]int, 0, len(parts)-split)
		ok := true
		for _, p := range parts[split:] {
			n, err := strconv.Atoi(p)
			if err != nil || n < 1 {
				ok = false
				break
			}
			idx = append(idx, n)
		}
		if ok {
			return strings.Join(parts[:split], "."), idx
		}
	}
	return col, nil
}
