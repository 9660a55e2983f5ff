// Package watch monitors a directory for newly completed sample files and
// triggers a generated-quantities run per file.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors a directory for new sample files.
type Watcher struct {
	watcher  *fsnotify.Watcher
	seen     map[string]time.Time
	mu       sync.Mutex
	debounce time.Duration

	// OnSample is called with the path of each newly written sample
	// file after it has settled.
	OnSample func(path string) error

	// OnError reports watch failures without stopping the loop.
	OnError func(path string, err error)
}

// NewWatcher creates a new directory watcher.
func NewWatcher() (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		watcher:  fsWatcher,
		seen:     make(map[string]time.Time),
		debounce: 500 * time.Millisecond,
	}, nil
}

// Watch registers a directory to monitor for *.csv sample files.
func (w *Watcher) Watch(dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	stat, err := os.Stat(absDir)
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !stat.IsDir() {
		return fmt.Errorf("not a directory: %s", absDir)
	}

	return w.watcher.Add(absDir)
}

// Run starts the watch loop. Blocks until the context is cancelled.
// Write bursts are debounced so a sampler still streaming rows into a
// file does not trigger a run per write.
func (w *Watcher) Run(ctx context.Context) error {
	debounceTimers := make(map[string]*time.Timer)
	var timerMu sync.Mutex

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".csv") {
				continue
			}

			absPath, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}

			timerMu.Lock()
			if timer, exists := debounceTimers[absPath]; exists {
				timer.Stop()
			}
			debounceTimers[absPath] = time.AfterFunc(w.debounce, func() {
				w.handleSample(absPath)
			})
			timerMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			if w.OnError != nil {
				w.OnError("", err)
			}
		}
	}
}

// handleSample fires OnSample once per settled file state.
func (w *Watcher) handleSample(path string) {
	stat, err := os.Stat(path)
	if err != nil {
		if w.OnError != nil {
			w.OnError(path, err)
		}
		return
	}

	w.mu.Lock()
	if last, ok := w.seen[path]; ok && stat.ModTime().Equal(last) {
		w.mu.Unlock()
		return
	}
	w.seen[path] = stat.ModTime()
	w.mu.Unlock()

	if w.OnSample != nil {
		if err := w.OnSample(path); err != nil {
			if w.OnError != nil {
				w.OnError(path, err)
			}
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
