// Package filewatch watches the project and user tool directories for
// changes and triggers a reconcile callback, debounced so a burst of saves
// from an editor collapses into a single reload.
package filewatch

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow is the quiet period that must follow the last matching event
// before a reconcile is dispatched; every new event restarts it.
const debounceWindow = 100 * time.Millisecond

// Watcher watches one or more directories, non-recursively, for changes to
// files with a configured extension and calls Reconcile once per burst of
// events, debounceWindow after the last of them.
type Watcher struct {
	watcher   *fsnotify.Watcher
	extension string
	reconcile func(ctx context.Context)
	log       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	timer *time.Timer
}

// New creates a Watcher over dirs, restricted to files with the given
// extension (e.g. ".lb.ts"). reconcile is invoked on a background goroutine
// whenever a matching file changes; it must not block indefinitely.
func New(dirs []string, extension string, reconcile func(ctx context.Context), log *slog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := w.Add(dir); err != nil {
			log.Warn("filewatch: failed to watch directory", "dir", dir, "error", err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		watcher:   w,
		extension: extension,
		reconcile: reconcile,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start begins the watch loop on a background goroutine. Calling Start more
// than once is not supported.
func (w *Watcher) Start() {
	go w.loop()
}

// Close stops the watch loop and releases the underlying OS watch handles.
func (w *Watcher) Close() error {
	w.cancel()
	return w.watcher.Close()
}

// AddDir registers an additional directory to watch, e.g. after the user
// tool dir is created at runtime.
func (w *Watcher) AddDir(dir string) error {
	return w.watcher.Add(dir)
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.matches(ev.Name) {
				continue
			}
			w.log.Debug("filewatch: change detected", "path", ev.Name, "op", ev.Op.String())
			w.schedule()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("filewatch: watcher error", "error", err)
		}
	}
}

func (w *Watcher) matches(name string) bool {
	if w.extension == "" {
		return true
	}
	return strings.HasSuffix(filepath.Base(name), w.extension)
}

// schedule (re)starts the debounce timer, collapsing a burst of events into
// one reconcile call dispatched debounceWindow after the last of them.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceWindow, func() {
		if w.ctx.Err() == nil {
			w.reconcile(w.ctx)
		}
	})
}
