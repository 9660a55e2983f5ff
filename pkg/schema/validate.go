package schema

import (
	gqerrors "github.com/gqflow/gqflow/pkg/errors"
)

// Validate reconciles a program's self-reported schema against the draw
// schema. It runs exactly once per run, before any draw is dispatched:
// schemas are invariant across draws for a fixed program and dataset.
//
// Checks, in order:
//   - the program declares at least one generated-quantities output;
//   - declared output names contain no duplicates;
//   - every parameter the program reads is present in the draw schema
//     with an identical shape.
func Validate(prog *ProgramSchema, draws []Variable) error {
	if len(prog.GeneratedQuantities) == 0 {
		return gqerrors.New(gqerrors.CodeNoOutputs, "program declares no generated quantities")
	}

	seen := make(map[string]bool, len(prog.GeneratedQuantities))
	for _, gq := range prog.GeneratedQuantities {
		if seen[gq.Name] {
			return gqerrors.New(gqerrors.CodeDuplicateOutput, "duplicate generated quantity").
				WithContext("field", gq.Name)
		}
		seen[gq.Name] = true
	}

	byName := make(map[string]Variable, len(draws))
	for _, v := range draws {
		byName[v.Name] = v
	}

	for _, p := range prog.Parameters {
		dv, ok := byName[p.Name]
		if !ok {
			return gqerrors.SchemaMismatch(p.Name, "parameter not present in draws")
		}
		if !p.SameShape(dv) {
			return gqerrors.SchemaMismatch(p.Name, "parameter shape mismatch").
				WithContext("program", p.String()).
				WithContext("draws", dv.String())
		}
	}

	return nil
}
