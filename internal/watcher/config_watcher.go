// Package watcher reports edits to the configuration file.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lance13c/roster/internal/logging"
)

// ConfigWatcher monitors one configuration file and reports settled changes
type ConfigWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	changes chan struct{}

	debounce time.Duration

	mu         sync.Mutex
	isWatching bool
	stopped    bool
	pendingAt  time.Time
}

// NewConfigWatcher creates a watcher for path. Changes are reported once no further event
// has arrived for debounce.
func NewConfigWatcher(path string, debounce time.Duration) (*ConfigWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	return &ConfigWatcher{
		path:     abs,
		watcher:  watcher,
		changes:  make(chan struct{}, 1),
		debounce: debounce,
	}, nil
}

// Changes delivers one value per settled burst of edits. Bursts arriving while a value is
// still unread are merged into it.
func (cw *ConfigWatcher) Changes() <-chan struct{} {
	return cw.changes
}

// Start watches until ctx is done. The file's directory is watched so editors that replace
// the file by rename are still seen.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	cw.mu.Lock()
	if cw.stopped {
		cw.mu.Unlock()
		return fmt.Errorf("watcher is stopped")
	}
	if cw.isWatching {
		cw.mu.Unlock()
		return fmt.Errorf("watcher is already running")
	}
	cw.isWatching = true
	cw.mu.Unlock()
	defer cw.Stop()

	if err := cw.watcher.Add(filepath.Dir(cw.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(cw.path), err)
	}

	tick := cw.debounce / 4
	if tick < time.Millisecond {
		tick = time.Millisecond
	}
	debounceTicker := time.NewTicker(tick)
	defer debounceTicker.Stop()

	logging.Debug("Watching %s for changes (debounce: %v)", cw.path, cw.debounce)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !cw.relevant(event) {
				continue
			}
			cw.mu.Lock()
			cw.pendingAt = time.Now()
			cw.mu.Unlock()

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			logging.Warn("Config watcher error: %v", err)

		case <-debounceTicker.C:
			cw.flush()
		}
	}
}

// Stop releases the underlying watcher. It may be called before, during or after Start, and
// more than once; a stopped watcher cannot be started again.
func (cw *ConfigWatcher) Stop() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if !cw.stopped {
		cw.watcher.Close()
		cw.stopped = true
	}
	cw.isWatching = false
}

func (cw *ConfigWatcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != cw.path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

// flush reports a pending change once it has settled
func (cw *ConfigWatcher) flush() {
	cw.mu.Lock()
	if cw.pendingAt.IsZero() || time.Since(cw.pendingAt) < cw.debounce {
		cw.mu.Unlock()
		return
	}
	cw.pendingAt = time.Time{}
	cw.mu.Unlock()

	logging.Info("Configuration %s changed", cw.path)
	select {
	case cw.changes <- struct{}{}:
	default:
	}
}
