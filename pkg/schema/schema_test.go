package schema

import (
	"reflect"
	"testing"

	gqerrors "github.com/gqflow/gqflow/pkg/errors"
)

func TestParseColumns(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		want    []Variable
	}{
		{
			name:    "scalars",
			columns: []string{"theta", "mu"},
			want: []Variable{
				{Name: "theta"},
				{Name: "mu"},
			},
		},
		{
			name:    "vector",
			columns: []string{"beta.1", "beta.2", "beta.3"},
			want: []Variable{
				{Name: "beta", Dims: []int{3}},
			},
		},
		{
			name:    "matrix column major",
			columns: []string{"Sigma.1.1", "Sigma.2.1", "Sigma.1.2", "Sigma.2.2"},
			want: []Variable{
				{Name: "Sigma", Dims: []int{2, 2}},
			},
		},
		{
			name:    "mixed",
			columns: []string{"lp__", "theta", "y_rep.1", "y_rep.2"},
			want: []Variable{
				{Name: "lp__"},
				{Name: "theta"},
				{Name: "y_rep", Dims: []int{2}},
			},
		},
		{
			name:    "dotted scalar name",
			columns: []string{"my.var"},
			want: []Variable{
				{Name: "my.var"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseColumns(tt.columns)
			if err != nil {
				t.Fatalf("ParseColumns: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseColumnsIncomplete(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
	}{
		{"missing element", []string{"beta.1", "beta.3"}},
		{"duplicate scalar", []string{"theta", "beta.1", "theta"}},
		{"inconsistent dims", []string{"Sigma.1.1", "Sigma.2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseColumns(tt.columns)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if gqerrors.CodeOf(err) != gqerrors.CodeColumnMismatch {
				t.Errorf("code = %s, want %s", gqerrors.CodeOf(err), gqerrors.CodeColumnMismatch)
			}
		})
	}
}

func TestFlattenColumnsRoundTrip(t *testing.T) {
	vars := []Variable{
		{Name: "theta"},
		{Name: "beta", Dims: []int{3}},
		{Name: "Sigma", Dims: []int{2, 2}},
	}

	cols := FlattenColumns(vars)
	want := []string{
		"theta",
		"beta.1", "beta.2", "beta.3",
		"Sigma.1.1", "Sigma.2.1", "Sigma.1.2", "Sigma.2.2",
	}
	if !reflect.DeepEqual(cols, want) {
		t.Fatalf("FlattenColumns = %v, want %v", cols, want)
	}

	back, err := ParseColumns(cols)
	if err != nil {
		t.Fatalf("ParseColumns: %v", err)
	}
	if !reflect.DeepEqual(back, vars) {
		t.Errorf("round trip = %v, want %v", back, vars)
	}
}

func TestVariableString(t *testing.T) {
	tests := []struct {
		v    Variable
		want string
	}{
		{Variable{Name: "theta"}, "theta"},
		{Variable{Name: "beta", Dims: []int{3}}, "beta[3]"},
		{Variable{Name: "Sigma", Dims: []int{2, 2}}, "Sigma[2,2]"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	draws := []Variable{
		{Name: "lp__"},
		{Name: "theta"},
		{Name: "beta", Dims: []int{2}},
	}

	tests := []struct {
		name     string
		prog     *ProgramSchema
		wantCode gqerrors.Code
	}{
		{
			name: "ok",
			prog: &ProgramSchema{
				Parameters:          []Variable{{Name: "theta"}, {Name: "beta", Dims: []int{2}}},
				GeneratedQuantities: []Variable{{Name: "y_rep", Dims: []int{5}}},
			},
		},
		{
			name: "no outputs",
			prog: &ProgramSchema{
				Parameters: []Variable{{Name: "theta"}},
			},
			wantCode: gqerrors.CodeNoOutputs,
		},
		{
			name: "duplicate output",
			prog: &ProgramSchema{
				Parameters:          []Variable{{Name: "theta"}},
				GeneratedQuantities: []Variable{{Name: "y_rep"}, {Name: "y_rep"}},
			},
			wantCode: gqerrors.CodeDuplicateOutput,
		},
		{
			name: "missing parameter",
			prog: &ProgramSchema{
				Parameters:          []Variable{{Name: "sigma"}},
				GeneratedQuantities: []Variable{{Name: "y_rep"}},
			},
			wantCode: gqerrors.CodeSchemaMismatch,
		},
		{
			name: "shape mismatch",
			prog: &ProgramSchema{
				Parameters:          []Variable{{Name: "beta", Dims: []int{3}}},
				GeneratedQuantities: []Variable{{Name: "y_rep"}},
			},
			wantCode: gqerrors.CodeSchemaMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.prog, draws)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if gqerrors.CodeOf(err) != tt.wantCode {
				t.Errorf("code = %s, want %s", gqerrors.CodeOf(err), tt.wantCode)
			}
		})
	}
}
