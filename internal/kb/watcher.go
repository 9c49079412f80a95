package kb

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"agentkb/internal/core"
	"agentkb/internal/logging"
)

// ReloadFunc receives the engine built after a change, or the error that
// prevented building it. The previous engine stays valid on error.
type ReloadFunc func(e *core.Engine, files []*File, err error)

// Watcher rebuilds an engine from a set of KB files whenever one of them
// changes. It watches the parent directories so editors that save by
// rename are seen.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	loader      *Loader
	paths       []string
	watched     map[string]bool
	debounceDur time.Duration
	pending     map[string]time.Time
	onReload    ReloadFunc
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats WatcherStats
}

// WatcherStats tracks watcher activity.
type WatcherStats struct {
	Events        int
	Reloads       int
	Errors        int
	LastEventPath string
	LastReload    time.Time
}

// NewWatcher creates a watcher for paths. onReload is called from the
// watcher goroutine.
func NewWatcher(loader *Loader, paths []string, debounce time.Duration, onReload ReloadFunc) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}

	w := &Watcher{
		watcher:     fw,
		loader:      loader,
		watched:     make(map[string]bool),
		debounceDur: debounce,
		pending:     make(map[string]time.Time),
		onReload:    onReload,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fw.Close()
			return nil, err
		}
		w.paths = append(w.paths, abs)
		w.watched[abs] = true
	}
	return w, nil
}

// Start begins watching. It is non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	dirs := make(map[string]bool)
	for _, p := range w.paths {
		dir := filepath.Dir(p)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := w.watcher.Add(dir); err != nil {
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return err
		}
		logging.KB("Watcher: watching directory: %s", dir)
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit. A reload in
// progress finishes first.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.KBError("Watcher: error closing watcher: %v", err)
	}
	logging.KB("Watcher: stopped")
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounceDur / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.KBDebug("Watcher: context cancelled")
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.KBError("Watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.processPending(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	path, err := filepath.Abs(event.Name)
	if err != nil || !w.watched[path] {
		return
	}
	logging.KBDebug("Watcher: %s on %s", event.Op, path)

	w.mu.Lock()
	w.stats.Events++
	w.stats.LastEventPath = path
	w.pending[path] = time.Now()
	w.mu.Unlock()
}

// processPending reloads once every pending change has settled.
func (w *Watcher) processPending(ctx context.Context) {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	now := time.Now()
	for _, at := range w.pending {
		if now.Sub(at) < w.debounceDur {
			w.mu.Unlock()
			return
		}
	}
	w.pending = make(map[string]time.Time)
	w.mu.Unlock()

	w.Reload(ctx)
}

// Reload rebuilds the engine now and hands it to the callback.
func (w *Watcher) Reload(ctx context.Context) {
	e, files, err := w.loader.Build(ctx, w.paths...)

	w.mu.Lock()
	if err != nil {
		w.stats.Errors++
	} else {
		w.stats.Reloads++
		w.stats.LastReload = time.Now()
	}
	w.mu.Unlock()

	log := logging.Get(logging.CategoryKB).With("watched", len(w.paths))
	if err != nil {
		log.Warn("Watcher: reload failed: %v", err)
	} else {
		log.Info("Watcher: reloaded %d files", len(files))
	}
	if w.onReload != nil {
		w.onReload(e, files, err)
	}
}

// Stats returns a copy of the watcher statistics.
func (w *Watcher) Stats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Paths returns the absolute paths being watched.
func (w *Watcher) Paths() []string {
	out := make([]string, len(w.paths))
	copy(out, w.paths)
	return out
}
