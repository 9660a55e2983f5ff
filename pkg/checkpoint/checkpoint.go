// Package checkpoint provides resume capability for interrupted runs.
// A run records every terminal per-draw result; restarting with the same
// checkpoint ID re-dispatches only draws without a terminal result.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gqflow/gqflow/internal/model"
)

// Result is one terminal per-draw outcome persisted for resume.
type Result struct {
	DrawIndex  int       `json:"draw_index"`
	Failed     bool      `json:"failed,omitempty"`
	Diagnostic string    `json:"diagnostic,omitempty"`
	Values     []float64 `json:"values,omitempty"`
}

// Run tracks one generated-quantities run's progress.
type Run struct {
	ID        string   `json:"id"`
	Program   string   `json:"program"`
	DrawFiles []string `json:"draw_files"`
	NumDraws  int      `json:"num_draws"`

	StartedAt   time.Time  `json:"started_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Results map[int]Result `json:"results"`

	// Internal
	path     string
	interval time.Duration
	lastSave time.Time
	mu       sync.Mutex
}

// Manager handles checkpoint persistence.
type Manager struct {
	dir      string
	interval time.Duration
}

// NewManager creates a manager writing checkpoints under dir.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &Manager{dir: dir, interval: 5 * time.Second}, nil
}

// Create starts a new checkpoint for a run.
func (m *Manager) Create(id, program string, drawFiles []string, numDraws int) *Run {
	run := &Run{
		ID:        id,
		Program:   program,
		DrawFiles: drawFiles,
		NumDraws:  numDraws,
		StartedAt: time.Now(),
		UpdatedAt: time.Now(),
		Results:   make(map[int]Result),
		path:      filepath.Join(m.dir, id+".checkpoint"),
		interval:  m.interval,
	}
	run.Flush()
	return run
}

// Load loads an existing checkpoint by ID.
func (m *Manager) Load(id string) (*Run, error) {
	path := filepath.Join(m.dir, id+".checkpoint")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, err
	}
	run.path = path
	run.interval = m.interval
	if run.Results == nil {
		run.Results = make(map[int]Result)
	}
	return &run, nil
}

// LoadOrCreate resumes an existing checkpoint when its inputs match,
// otherwise starts a fresh one.
func (m *Manager) LoadOrCreate(id, program string, drawFiles []string, numDraws int) *Run {
	run, err := m.Load(id)
	if err == nil && run.Program == program && run.NumDraws == numDraws {
		return run
	}
	return m.Create(id, program, drawFiles, numDraws)
}

// Remove deletes a checkpoint file.
func (m *Manager) Remove(id string) error {
	err := os.Remove(filepath.Join(m.dir, id+".checkpoint"))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Record saves one terminal result and persists the checkpoint at most
// once per save interval.
func (r *Run) Record(row model.Row) {
	r.mu.Lock()
	r.Results[row.DrawIndex] = Result{
		DrawIndex:  row.DrawIndex,
		Failed:     row.Failed,
		Diagnostic: row.Diagnostic,
		Values:     row.Values,
	}
	r.UpdatedAt = time.Now()
	due := time.Since(r.lastSave) >= r.interval
	r.mu.Unlock()

	if due {
		r.Flush()
	}
}

// Has reports whether draw i already has a terminal result.
func (r *Run) Has(i int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.Results[i]
	return ok
}

// Row rebuilds the recorded result for draw i.
func (r *Run) Row(i int) (model.Row, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.Results[i]
	if !ok {
		return model.Row{}, false
	}
	return model.Row{
		DrawIndex:  res.DrawIndex,
		Values:     res.Values,
		Failed:     res.Failed,
		Diagnostic: res.Diagnostic,
	}, true
}

// Complete marks the run finished and persists.
func (r *Run) Complete() error {
	r.mu.Lock()
	now := time.Now()
	r.CompletedAt = &now
	r.mu.Unlock()
	return r.Flush()
}

// Flush persists the checkpoint atomically (write temp, rename).
func (r *Run) Flush() error {
	r.mu.Lock()
	data, err := json.MarshalIndent(r, "", "  ")
	r.lastSave = time.Now()
	path := r.path
	r.mu.Unlock()
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
