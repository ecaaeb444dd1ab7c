// Package watch reloads environment files when they change on disk.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mockenv/mockenv/pkg/logging"
)

// DefaultDebounce is the quiet period before a reload fires.
const DefaultDebounce = 200 * time.Millisecond

// Watcher calls a reload function when any of a set of files changes.
// Editors often replace files instead of writing them in place, so the
// parent directories are watched and events filtered by name.
type Watcher struct {
	files    map[string]bool
	debounce time.Duration
	log      *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// New returns a watcher for files.
func New(files []string, debounce time.Duration, log *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = logging.Nop()
	}
	w := &Watcher{
		files:    make(map[string]bool, len(files)),
		debounce: debounce,
		log:      logging.Component(log, "watch"),
	}
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", f, err)
		}
		w.files[abs] = true
	}
	return w, nil
}

// Run watches until ctx is done. onChange receives the changed file and is
// called at most once per debounce window.
func (w *Watcher) Run(ctx context.Context, onChange func(path string) error) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	dirs := map[string]bool{}
	for f := range w.files {
		dirs[filepath.Dir(f)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	w.log.Info("watching environment files", "files", len(w.files))

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			w.log.Debug("file event", "path", event.Name, "op", event.Op.String())
			w.schedule(event.Name, onChange)
		case err, ok := <-fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.log.Error("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return w.files[abs]
}

func (w *Watcher) schedule(path string, onChange func(string) error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.log.Info("reloading after change", "path", path)
		if err := onChange(path); err != nil {
			w.log.Error("reload failed", "path", path, "error", err)
		}
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}
