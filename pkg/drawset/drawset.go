// Package drawset ingests parameter draws from one or more sample files
// produced by a prior sampling run.
package drawset

import (
	"github.com/gqflow/gqflow/internal/model"
	gqerrors "github.com/gqflow/gqflow/pkg/errors"
	"github.com/gqflow/gqflow/pkg/schema"
	"github.com/gqflow/gqflow/pkg/stancsv"
)

// Load reads draws from the given sample files and concatenates them in
// file-list order, preserving each file's internal row order. All files
// must declare the same columns; the first file's comment-header config is
// carried on the result. Load is a pure read: the returned set is
// immutable by convention.
func Load(paths ...string) (*model.DrawSet, error) {
	if len(paths) == 0 {
		return nil, gqerrors.New(gqerrors.CodeEmptyInput, "no draw files given")
	}

	ds := &model.DrawSet{}
	for _, path := range paths {
		s, err := stancsv.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if ds.Columns == nil {
			ds.Columns = s.Columns
			ds.Config = s.Config
			ds.Values = s.Values
			continue
		}
		if !sameColumns(ds.Columns, s.Columns) {
			return nil, gqerrors.New(gqerrors.CodeColumnMismatch, "draw files disagree on columns").
				WithContext("path", path).
				WithContext("expected", len(ds.Columns)).
				WithContext("found", len(s.Columns))
		}
		ds.Values = append(ds.Values, s.Values...)
	}

	return ds, nil
}

// Schema parses the set's flattened columns into variables.
func Schema(ds *model.DrawSet) ([]schema.Variable, error) {
	return schema.ParseColumns(ds.Columns)
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
