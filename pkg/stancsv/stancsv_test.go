package stancsv

import (
	"bytes"
	"math"
	"path/filepath"
	"reflect"
	"testing"

	gqerrors "github.com/gqflow/gqflow/pkg/errors"
)

const sampleFile = `# stan_version_major = 2
# method = sample (Default)
# num_samples = 250
# seed = 42
lp__,theta,beta.1,beta.2
-7.3,0.25,1.1,2.2
-7.1,0.31,1.2,2.3
# Adaptation terminated
# Step size = 0.8
-6.9,0.28,1.3,2.4
#  Elapsed Time: 0.01 seconds
`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(sampleFile))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	wantCols := []string{"lp__", "theta", "beta.1", "beta.2"}
	if !reflect.DeepEqual(s.Columns, wantCols) {
		t.Errorf("Columns = %v, want %v", s.Columns, wantCols)
	}

	if len(s.Values) != 3 {
		t.Fatalf("len(Values) = %d, want 3", len(s.Values))
	}
	want := [][]float64{
		{-7.3, 0.25, 1.1, 2.2},
		{-7.1, 0.31, 1.2, 2.3},
		{-6.9, 0.28, 1.3, 2.4},
	}
	if !reflect.DeepEqual(s.Values, want) {
		t.Errorf("Values = %v, want %v", s.Values, want)
	}
}

func TestParseConfig(t *testing.T) {
	s, err := Parse([]byte(sampleFile))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	tests := []struct {
		key, want string
	}{
		{"stan_version_major", "2"},
		{"num_samples", "250"},
		{"seed", "42"},
	}
	for _, tt := range tests {
		if got := s.Config[tt.key]; got != tt.want {
			t.Errorf("Config[%q] = %q, want %q", tt.key, got, tt.want)
		}
	}

	// Entries left at their defaults carry no information.
	if _, ok := s.Config["method"]; ok {
		t.Error("default-suffixed entry should be dropped")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantCode gqerrors.Code
	}{
		{"empty file", "", gqerrors.CodeEmptyInput},
		{"comments only", "# seed = 1\n# chain = 2\n", gqerrors.CodeEmptyInput},
		{"header without draws", "lp__,theta\n", gqerrors.CodeEmptyInput},
		{"short row", "lp__,theta\n-7.3\n", gqerrors.CodeColumnMismatch},
		{"long row", "lp__,theta\n-7.3,0.2,0.3\n", gqerrors.CodeColumnMismatch},
		{"non-numeric field", "lp__,theta\n-7.3,abc\n", gqerrors.CodeNonNumeric},
		{"empty column name", "lp__,,theta\n-7.3,0.1,0.2\n", gqerrors.CodeMalformedInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if gqerrors.CodeOf(err) != tt.wantCode {
				t.Errorf("code = %s, want %s", gqerrors.CodeOf(err), tt.wantCode)
			}
		})
	}
}

func TestParseCRLF(t *testing.T) {
	input := "# seed = 7\r\nlp__,theta\r\n-7.3,0.25\r\n"
	s, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(s.Values) != 1 || s.Values[0][1] != 0.25 {
		t.Errorf("Values = %v", s.Values)
	}
	if s.Config["seed"] != "7" {
		t.Errorf("Config[seed] = %q, want 7", s.Config["seed"])
	}
}

func TestWriterRoundTrip(t *testing.T) {
	in := &Sample{
		Config:  map[string]string{"seed": "42", "method": "generate_quantities"},
		Columns: []string{"y_rep.1", "y_rep.2"},
		Values: [][]float64{
			{1.5, -0.25},
			{math.NaN(), 3e-8},
		},
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteConfig(in.Config); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	if err := w.WriteColumns(in.Columns); err != nil {
		t.Fatalf("WriteColumns: %v", err)
	}
	for _, row := range in.Values {
		if err := w.WriteRow(row); err != nil {
			t.Fatalf("WriteRow: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	out, err := Parse(buf.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !reflect.DeepEqual(out.Columns, in.Columns) {
		t.Errorf("Columns = %v, want %v", out.Columns, in.Columns)
	}
	if !reflect.DeepEqual(out.Config, in.Config) {
		t.Errorf("Config = %v, want %v", out.Config, in.Config)
	}
	if len(out.Values) != 2 {
		t.Fatalf("len(Values) = %d, want 2", len(out.Values))
	}
	if out.Values[0][0] != 1.5 || out.Values[0][1] != -0.25 {
		t.Errorf("row 0 = %v", out.Values[0])
	}
	if !math.IsNaN(out.Values[1][0]) {
		t.Errorf("row 1 col 0 = %v, want NaN", out.Values[1][0])
	}
	if out.Values[1][1] != 3e-8 {
		t.Errorf("row 1 col 1 = %v, want 3e-08", out.Values[1][1])
	}
}

func TestWriteFileReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	in := &Sample{
		Config:  map[string]string{"seed": "1"},
		Columns: []string{"theta"},
		Values:  [][]float64{{0.5}, {0.75}},
	}
	if err := WriteFile(path, in); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	out, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !reflect.DeepEqual(out.Values, in.Values) {
		t.Errorf("Values = %v, want %v", out.Values, in.Values)
	}
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "absent.csv"))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if gqerrors.CodeOf(err) != gqerrors.CodeMalformedInput {
		t.Errorf("code = %s, want %s", gqerrors.CodeOf(err), gqerrors.CodeMalformedInput)
	}
}
