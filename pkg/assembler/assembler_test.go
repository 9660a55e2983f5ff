package assembler

import (
	"math"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/gqflow/gqflow/internal/model"
	"github.com/gqflow/gqflow/pkg/stancsv"
)

func testDraws(n int) *model.DrawSet {
	ds := &model.DrawSet{
		Columns: []string{"lp__", "theta"},
		Config:  map[string]string{"seed": "42"},
	}
	for i := 0; i < n; i++ {
		ds.Values = append(ds.Values, []float64{-7.0 - float64(i), 0.1 * float64(i)})
	}
	return ds
}

func TestAssembleOutOfOrder(t *testing.T) {
	asm := New(testDraws(3), []string{"y_rep"})

	// Arrival order is completion order, not draw order.
	for _, idx := range []int{2, 0, 1} {
		row := model.Row{DrawIndex: idx, Values: []float64{float64(idx) * 10}}
		if err := asm.Add(row); err != nil {
			t.Fatalf("Add(%d): %v", idx, err)
		}
	}
	if asm.Len() != 3 {
		t.Errorf("Len() = %d, want 3", asm.Len())
	}

	cs := asm.Finalize()
	if cs.Len() != 3 {
		t.Fatalf("rows = %d, want 3", cs.Len())
	}
	wantCols := []string{"lp__", "theta", "y_rep"}
	if !reflect.DeepEqual(cs.Columns, wantCols) {
		t.Errorf("Columns = %v, want %v", cs.Columns, wantCols)
	}
	for i := 0; i < 3; i++ {
		want := []float64{-7.0 - float64(i), 0.1 * float64(i), float64(i) * 10}
		if !reflect.DeepEqual(cs.Values[i], want) {
			t.Errorf("row %d = %v, want %v", i, cs.Values[i], want)
		}
		if cs.Failed[i] {
			t.Errorf("row %d marked failed", i)
		}
	}
	if cs.NumParams != 2 {
		t.Errorf("NumParams = %d, want 2", cs.NumParams)
	}
}

func TestAssembleFailedAndMissing(t *testing.T) {
	asm := New(testDraws(3), []string{"y_rep"})

	if err := asm.Add(model.Row{DrawIndex: 0, Values: []float64{5}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := asm.Add(model.FailedRow(1, "exit status 1")); err != nil {
		t.Fatalf("Add failed row: %v", err)
	}
	// Draw 2 never reports: aborted before dispatch.

	cs := asm.Finalize()
	if cs.FailureCount() != 2 {
		t.Errorf("FailureCount() = %d, want 2", cs.FailureCount())
	}
	if cs.Failed[0] || !cs.Failed[1] || !cs.Failed[2] {
		t.Errorf("Failed = %v", cs.Failed)
	}
	for _, i := range []int{1, 2} {
		if !math.IsNaN(cs.Values[i][2]) {
			t.Errorf("row %d generated column = %v, want NaN", i, cs.Values[i][2])
		}
		// Parameter columns survive even on failed rows.
		if cs.Values[i][0] != -7.0-float64(i) {
			t.Errorf("row %d parameter column = %v", i, cs.Values[i][0])
		}
	}
}

func TestAddRejects(t *testing.T) {
	asm := New(testDraws(2), []string{"y_rep"})

	if err := asm.Add(model.Row{DrawIndex: 5, Values: []float64{1}}); err == nil {
		t.Error("out-of-range index accepted")
	}
	if err := asm.Add(model.Row{DrawIndex: -1, Values: []float64{1}}); err == nil {
		t.Error("negative index accepted")
	}
	if err := asm.Add(model.Row{DrawIndex: 0, Values: []float64{1, 2}}); err == nil {
		t.Error("wrong row width accepted")
	}
	if err := asm.Add(model.Row{DrawIndex: 0, Values: []float64{1}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := asm.Add(model.Row{DrawIndex: 0, Values: []float64{2}}); err == nil {
		t.Error("duplicate index accepted")
	}
}

func TestWriteFileNoFailures(t *testing.T) {
	asm := New(testDraws(2), []string{"y_rep"})
	for i := 0; i < 2; i++ {
		if err := asm.Add(model.Row{DrawIndex: i, Values: []float64{float64(i)}}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	cs := asm.Finalize()

	path := filepath.Join(t.TempDir(), "out.csv")
	if err := WriteFile(path, cs); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s, err := stancsv.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	// A clean run carries no marker column.
	want := []string{"lp__", "theta", "y_rep"}
	if !reflect.DeepEqual(s.Columns, want) {
		t.Errorf("Columns = %v, want %v", s.Columns, want)
	}
	if s.Config["method"] != "generate_quantities" {
		t.Errorf("Config[method] = %q", s.Config["method"])
	}
	if s.Config["seed"] != "42" {
		t.Errorf("Config[seed] = %q, want 42", s.Config["seed"])
	}
}

func TestWriteFileWithFailures(t *testing.T) {
	asm := New(testDraws(2), []string{"y_rep"})
	if err := asm.Add(model.Row{DrawIndex: 0, Values: []float64{7}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := asm.Add(model.FailedRow(1, "timeout")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	cs := asm.Finalize()

	path := filepath.Join(t.TempDir(), "out.csv")
	if err := WriteFile(path, cs); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s, err := stancsv.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := []string{"lp__", "theta", "y_rep", FailureColumn}
	if !reflect.DeepEqual(s.Columns, want) {
		t.Errorf("Columns = %v, want %v", s.Columns, want)
	}
	if s.Values[0][3] != 0 {
		t.Errorf("row 0 marker = %v, want 0", s.Values[0][3])
	}
	if s.Values[1][3] != 1 {
		t.Errorf("row 1 marker = %v, want 1", s.Values[1][3])
	}
	if !math.IsNaN(s.Values[1][2]) {
		t.Errorf("row 1 y_rep = %v, want NaN", s.Values[1][2])
	}
}
