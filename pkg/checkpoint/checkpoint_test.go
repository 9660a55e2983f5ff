package checkpoint

import (
	"testing"

	"github.com/gqflow/gqflow/internal/model"
)

func TestCreateAndLoad(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	run := m.Create("run1", "/bin/model", []string{"chain1.csv"}, 100)
	run.Record(model.Row{DrawIndex: 3, Values: []float64{1.5}})
	run.Record(model.FailedRow(7, "exit status 1"))
	if err := run.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	loaded, err := m.Load("run1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Program != "/bin/model" || loaded.NumDraws != 100 {
		t.Errorf("loaded = %+v", loaded)
	}

	if !loaded.Has(3) || !loaded.Has(7) || loaded.Has(5) {
		t.Error("Has() does not reflect recorded results")
	}

	row, ok := loaded.Row(3)
	if !ok || row.DrawIndex != 3 || row.Values[0] != 1.5 {
		t.Errorf("Row(3) = %+v, %v", row, ok)
	}
	row, ok = loaded.Row(7)
	if !ok || !row.Failed || row.Diagnostic != "exit status 1" {
		t.Errorf("Row(7) = %+v, %v", row, ok)
	}
}

func TestLoadMissing(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := m.Load("absent"); err == nil {
		t.Error("expected error for missing checkpoint")
	}
}

func TestLoadOrCreate(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	run := m.Create("run1", "/bin/model", nil, 50)
	run.Record(model.Row{DrawIndex: 0, Values: []float64{1}})
	if err := run.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	// Same inputs: resume.
	resumed := m.LoadOrCreate("run1", "/bin/model", nil, 50)
	if !resumed.Has(0) {
		t.Error("matching checkpoint was not resumed")
	}

	// Different draw count: fresh checkpoint, prior results dropped.
	fresh := m.LoadOrCreate("run1", "/bin/model", nil, 60)
	if fresh.Has(0) {
		t.Error("mismatched checkpoint was resumed")
	}
}

func TestComplete(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	run := m.Create("run1", "/bin/model", nil, 1)
	if err := run.Complete(); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	loaded, err := m.Load("run1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.CompletedAt == nil {
		t.Error("CompletedAt not persisted")
	}
}

func TestRemove(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	m.Create("run1", "/bin/model", nil, 1)
	if err := m.Remove("run1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := m.Load("run1"); err == nil {
		t.Error("checkpoint still loadable after Remove")
	}

	// Removing twice is not an error.
	if err := m.Remove("run1"); err != nil {
		t.Errorf("second Remove: %v", err)
	}
}
