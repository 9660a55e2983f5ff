package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestWatchNewSample(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()
	if err := w.Watch(dir); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	w.debounce = 50 * time.Millisecond

	var mu sync.Mutex
	var got []string
	fired := make(chan struct{}, 8)
	w.OnSample = func(path string) error {
		mu.Lock()
		got = append(got, filepath.Base(path))
		mu.Unlock()
		fired <- struct{}{}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	if err := os.WriteFile(filepath.Join(dir, "chain1.csv"), []byte("theta\n0.5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Non-sample files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("OnSample never fired")
	}

	mu.Lock()
	if len(got) != 1 || got[0] != "chain1.csv" {
		t.Errorf("samples = %v, want [chain1.csv]", got)
	}
	mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}

func TestWatchDebouncesWriteBurst(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()
	if err := w.Watch(dir); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	w.debounce = 200 * time.Millisecond

	var mu sync.Mutex
	calls := 0
	w.OnSample = func(path string) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// A sampler streaming rows: several writes in quick succession.
	path := filepath.Join(dir, "stream.csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("theta\n")
	for i := 0; i < 5; i++ {
		f.WriteString("0.5\n")
		f.Sync()
		time.Sleep(10 * time.Millisecond)
	}
	f.Close()

	time.Sleep(600 * time.Millisecond)

	mu.Lock()
	if calls != 1 {
		t.Errorf("OnSample fired %d times for one write burst, want 1", calls)
	}
	mu.Unlock()
}

func TestWatchNotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "f.csv")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if err := w.Watch(file); err == nil {
		t.Error("expected error for non-directory path")
	}
	if err := w.Watch(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("expected error for missing directory")
	}
}
