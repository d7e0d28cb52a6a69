// Package watcher reports changes to the files a stack is resolved from,
// so that `start --watch` can re-apply the stack after an edit.
package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"devstack/pkg/logging"
)

const subsystem = "Watcher"

const (
	// DefaultDebounceInterval is the quiet period after the last change
	// before OnChange fires.
	DefaultDebounceInterval = 500 * time.Millisecond

	// DefaultPollInterval is used when fsnotify is unavailable.
	DefaultPollInterval = 2 * time.Second
)

// Config holds configuration for the file watcher.
type Config struct {
	// Files are the paths to watch. Files that do not exist yet are
	// picked up once they are created.
	Files []string

	// PollInterval is the fallback polling interval.
	PollInterval time.Duration

	// Debounce coalesces bursts of writes into one OnChange call.
	Debounce time.Duration

	// ForcePolling skips fsnotify.
	ForcePolling bool

	// OnChange receives the paths that changed since the last call.
	OnChange func(changed []string)
}

// Watcher monitors a set of files with fsnotify and falls back to polling
// their modification times when fsnotify cannot be used.
type Watcher struct {
	mu sync.Mutex

	config  Config
	files   map[string]bool
	running bool
	stopCh  chan struct{}

	fsWatcher    *fsnotify.Watcher
	lastModTimes map[string]time.Time
	primed       bool

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
	pending       map[string]bool
}

// New creates a watcher for config.Files.
func New(config Config) *Watcher {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounceInterval
	}
	files := make(map[string]bool, len(config.Files))
	for _, f := range config.Files {
		if f == "" {
			continue
		}
		if abs, err := filepath.Abs(f); err == nil {
			f = abs
		}
		files[filepath.Clean(f)] = true
	}
	return &Watcher{
		config:       config,
		files:        files,
		lastModTimes: make(map[string]time.Time),
		pending:      make(map[string]bool),
	}
}

// Files returns the absolute paths being watched.
func (w *Watcher) Files() []string {
	out := make([]string, 0, len(w.files))
	for f := range w.files {
		out = append(out, f)
	}
	return out
}

// Start begins watching. It is a no-op when already running.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}
	w.stopCh = make(chan struct{})
	w.running = true

	if w.config.ForcePolling {
		w.startPolling()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn(subsystem, "fsnotify not available, falling back to polling: %v", err)
		w.startPolling()
		return nil
	}

	// Directories are watched rather than files so that editors that
	// replace a file by rename keep being observed.
	for _, dir := range w.dirs() {
		if err := watcher.Add(dir); err != nil {
			logging.Warn(subsystem, "Failed to watch directory %s, falling back to polling: %v", dir, err)
			watcher.Close()
			w.startPolling()
			return nil
		}
	}
	w.fsWatcher = watcher

	go w.processEvents(watcher.Events, watcher.Errors)

	logging.Info(subsystem, "Watching %d file(s) for changes", len(w.files))
	return nil
}

func (w *Watcher) dirs() []string {
	seen := map[string]bool{}
	var out []string
	for f := range w.files {
		d := filepath.Dir(f)
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

func (w *Watcher) processEvents(eventsCh <-chan fsnotify.Event, errorsCh <-chan error) {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			logging.Error(subsystem, err, "fsnotify error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	name := filepath.Clean(event.Name)
	if !w.files[name] {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}
	logging.Debug(subsystem, "File changed: %s (%s)", name, event.Op)
	w.triggerDebounced(name)
}

// triggerDebounced records name and restarts the debounce timer.
func (w *Watcher) triggerDebounced(name string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	w.pending[name] = true
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.config.Debounce, w.fire)
}

func (w *Watcher) fire() {
	w.debounceMu.Lock()
	changed := make([]string, 0, len(w.pending))
	for f := range w.pending {
		changed = append(changed, f)
	}
	w.pending = make(map[string]bool)
	w.debounceMu.Unlock()

	w.mu.Lock()
	running := w.running
	callback := w.config.OnChange
	w.mu.Unlock()

	if running && callback != nil && len(changed) > 0 {
		callback(changed)
	}
}

// startPolling records the current modification times before the
// polling goroutine starts, so that writes after Start are observed.
func (w *Watcher) startPolling() {
	w.checkForChanges()
	go w.pollForChanges()
}

func (w *Watcher) pollForChanges() {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	logging.Info(subsystem, "Polling %d file(s) every %s", len(w.files), w.config.PollInterval)

	for {
		select {
		case <-w.stopCh:
			return

		case <-ticker.C:
			for _, f := range w.checkForChanges() {
				logging.Debug(subsystem, "File changed (poll): %s", f)
				w.triggerDebounced(f)
			}
		}
	}
}

// checkForChanges returns files whose modification time moved, or which
// appeared or disappeared, since the previous check. The first call only
// records the current state.
func (w *Watcher) checkForChanges() []string {
	var changed []string
	for f := range w.files {
		last, seen := w.lastModTimes[f]
		info, err := os.Stat(f)
		if err != nil {
			if seen {
				delete(w.lastModTimes, f)
				changed = append(changed, f)
			}
			continue
		}
		if w.primed && (!seen || !info.ModTime().Equal(last)) {
			changed = append(changed, f)
		}
		w.lastModTimes[f] = info.ModTime()
	}
	w.primed = true
	return changed
}

// Stop stops the watcher and cancels a pending notification.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false
	close(w.stopCh)

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.pending = make(map[string]bool)
	w.debounceMu.Unlock()

	if w.fsWatcher != nil {
		if err := w.fsWatcher.Close(); err != nil {
			logging.Warn(subsystem, "Error closing fsnotify watcher: %v", err)
		}
		w.fsWatcher = nil
	}

	logging.Info(subsystem, "Stopped watching")
	return nil
}

// IsRunning returns whether the watcher is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
