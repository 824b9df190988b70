package config

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vyrodovalexey/msgxform/internal/observability"
)

// ReloadFunc is called once per debounced burst of spec or profile changes.
type ReloadFunc func(ctx context.Context) error

// ErrorCallback is called when a watch or reload error occurs.
type ErrorCallback func(error)

// Watcher watches the spec directory and the profile file and triggers a
// reload after changes settle.
type Watcher struct {
	specsDir      string
	profilePath   string
	watcher       *fsnotify.Watcher
	reload        ReloadFunc
	errorCallback ErrorCallback
	logger        observability.Logger
	debounceDelay time.Duration
	mu            sync.Mutex
	stopCh        chan struct{}
	stoppedCh     chan struct{}
	running       bool
}

// WatcherOption is a functional option for configuring the watcher.
type WatcherOption func(*Watcher)

// WithDebounceDelay sets the debounce delay for file changes.
func WithDebounceDelay(delay time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDelay = delay
	}
}

// WithLogger sets the logger for the watcher.
func WithLogger(logger observability.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithErrorCallback sets the error callback for the watcher.
func WithErrorCallback(callback ErrorCallback) WatcherOption {
	return func(w *Watcher) {
		w.errorCallback = callback
	}
}

// NewWatcher creates a watcher for specsDir and, when set, profilePath.
func NewWatcher(specsDir, profilePath string, reload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	absDir, err := filepath.Abs(specsDir)
	if err != nil {
		return nil, err
	}
	absProfile := ""
	if profilePath != "" {
		if absProfile, err = filepath.Abs(profilePath); err != nil {
			return nil, err
		}
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		specsDir:      absDir,
		profilePath:   absProfile,
		watcher:       fsWatcher,
		reload:        reload,
		debounceDelay: DefaultWatchDebounce,
		logger:        observability.NopLogger(),
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start begins watching. It returns once the directories are registered.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	if err := w.watcher.Add(w.specsDir); err != nil {
		return err
	}
	if w.profilePath != "" {
		if dir := filepath.Dir(w.profilePath); dir != w.specsDir {
			if err := w.watcher.Add(dir); err != nil {
				return err
			}
		}
	}

	w.mu.Lock()
	w.running = true
	w.mu.Unlock()

	w.logger.Info("started watching transform specs",
		observability.String("specs_dir", w.specsDir),
		observability.String("profile", w.profilePath),
	)

	go w.watch(ctx)

	return nil
}

// Stop stops watching and waits for the watch loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.stoppedCh

	return w.watcher.Close()
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.stoppedCh)

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("spec watcher stopped due to context cancellation")
			return

		case <-w.stopCh:
			w.logger.Info("spec watcher stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			debounceTimer, debounceCh = w.handleFileEvent(event, debounceTimer, debounceCh)

		case <-debounceCh:
			debounceCh = nil
			w.triggerReload(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.handleWatchError(err)
		}
	}
}

func (w *Watcher) handleFileEvent(
	event fsnotify.Event,
	debounceTimer *time.Timer,
	debounceCh <-chan time.Time,
) (timer *time.Timer, ch <-chan time.Time) {
	if !w.relevant(event.Name) {
		return debounceTimer, debounceCh
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return debounceTimer, debounceCh
	}

	w.logger.Debug("spec file changed",
		observability.String("path", event.Name),
		observability.String("op", event.Op.String()),
	)

	if debounceTimer != nil {
		debounceTimer.Stop()
	}
	debounceTimer = time.NewTimer(w.debounceDelay)
	return debounceTimer, debounceTimer.C
}

// relevant reports whether name is the profile or a YAML file directly in
// the spec directory.
func (w *Watcher) relevant(name string) bool {
	name = filepath.Clean(name)
	if w.profilePath != "" && name == w.profilePath {
		return true
	}
	if filepath.Dir(name) != w.specsDir {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func (w *Watcher) handleWatchError(err error) {
	w.logger.Error("spec watcher error",
		observability.Error(err),
	)
	if w.errorCallback != nil {
		w.errorCallback(err)
	}
}

func (w *Watcher) triggerReload(ctx context.Context) {
	w.logger.Info("reloading transform specs",
		observability.String("specs_dir", w.specsDir),
	)
	if err := w.reload(ctx); err != nil {
		w.logger.Error("spec reload failed, keeping previous specs",
			observability.Error(err),
		)
		if w.errorCallback != nil {
			w.errorCallback(err)
		}
	}
}
