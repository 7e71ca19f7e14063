package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/teranos/strata/logger"
)

// FileWatcher watches a single file for changes and triggers reload callbacks.
// The daemon uses one to hot-reload the schedule document; the config
// subsystem reuses it for strata.toml.
type FileWatcher struct {
	path            string
	watcher         *fsnotify.Watcher
	callbacks       []ChangeCallback
	mu              sync.RWMutex
	debounceTimer   *time.Timer
	debouncePeriod  time.Duration
	isOwnWrite      bool // Flag to prevent reload loops
	isOwnWriteMutex sync.Mutex
}

// ChangeCallback is called after the watched file settles following a change
type ChangeCallback func(path string) error

// globalWatcher holds the watcher observing the user config file, if any
var (
	globalWatcher   *FileWatcher
	globalWatcherMu sync.Mutex
)

// NewFileWatcher creates a watcher for the given file
func NewFileWatcher(path string) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch file %s: %w", path, err)
	}

	fw := &FileWatcher{
		path:           path,
		watcher:        watcher,
		callbacks:      make([]ChangeCallback, 0),
		debouncePeriod: 500 * time.Millisecond, // Debounce rapid file changes
	}

	return fw, nil
}

// OnChange registers a callback to be called when the file changes
func (fw *FileWatcher) OnChange(callback ChangeCallback) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.callbacks = append(fw.callbacks, callback)
}

// MarkOwnWrite marks the next write as coming from us (prevents reload loops)
func (fw *FileWatcher) MarkOwnWrite() {
	fw.isOwnWriteMutex.Lock()
	defer fw.isOwnWriteMutex.Unlock()
	fw.isOwnWrite = true
}

// checkOwnWrite checks and clears the own-write flag
func (fw *FileWatcher) checkOwnWrite() bool {
	fw.isOwnWriteMutex.Lock()
	defer fw.isOwnWriteMutex.Unlock()

	if fw.isOwnWrite {
		fw.isOwnWrite = false
		return true
	}
	return false
}

// Start begins watching for file changes
func (fw *FileWatcher) Start() {
	go fw.watchLoop()
}

// watchLoop monitors file system events
func (fw *FileWatcher) watchLoop() {
	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			// Only reload on Write or Create events
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				// Ignore editor backups and our own backup rotation
				if isBackupFile(event.Name) {
					continue
				}

				// Check if this is our own write
				if fw.checkOwnWrite() {
					logger.Debugw("File watcher ignoring own write",
						"file", event.Name)
					continue
				}

				logger.Infow("File watcher detected change",
					"file", event.Name,
					"op", event.Op.String())
				fw.scheduleReload()
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnw("File watcher error",
				"error", err)
		}
	}
}

// scheduleReload debounces rapid file changes and triggers the callbacks
func (fw *FileWatcher) scheduleReload() {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	// Cancel existing timer if any
	if fw.debounceTimer != nil {
		fw.debounceTimer.Stop()
	}

	// Notify after the debounce period
	fw.debounceTimer = time.AfterFunc(fw.debouncePeriod, func() {
		if err := fw.notify(); err != nil {
			logger.Errorw("File reload failed",
				"file", fw.path,
				"error", err)
		}
	})
}

// notify calls all registered callbacks
func (fw *FileWatcher) notify() error {
	fw.mu.RLock()
	callbacks := make([]ChangeCallback, len(fw.callbacks))
	copy(callbacks, fw.callbacks)
	fw.mu.RUnlock()

	for _, callback := range callbacks {
		if err := callback(fw.path); err != nil {
			logger.Warnw("File change callback error",
				"file", fw.path,
				"error", err)
			// Continue calling other callbacks even if one fails
		}
	}

	return nil
}

// Stop stops watching for changes
func (fw *FileWatcher) Stop() error {
	return fw.watcher.Close()
}

// isBackupFile checks for rotation backups (.back1, .back2, .back3) and
// common editor temp suffixes.
func isBackupFile(path string) bool {
	base := filepath.Base(path)
	for _, suffix := range []string{".back1", ".back2", ".back3", ".swp", ".tmp", "~"} {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}

// WatchConfig creates and starts a watcher on the user config file that
// resets and reloads the cached configuration on change. Callers may add
// further callbacks via OnChange on the returned watcher.
func WatchConfig(path string) (*FileWatcher, error) {
	fw, err := NewFileWatcher(path)
	if err != nil {
		return nil, err
	}

	fw.OnChange(func(string) error {
		Reset()
		if _, err := Load(); err != nil {
			return fmt.Errorf("failed to reload config: %w", err)
		}
		logger.Infow("Config reloaded successfully", "path", path)
		return nil
	})

	SetGlobalWatcher(fw)
	fw.Start()
	return fw, nil
}

// SetGlobalWatcher sets the global watcher instance (used to prevent reload loops)
func SetGlobalWatcher(watcher *FileWatcher) {
	globalWatcherMu.Lock()
	defer globalWatcherMu.Unlock()
	globalWatcher = watcher
}

// GetGlobalWatcher returns the global watcher instance
func GetGlobalWatcher() *FileWatcher {
	globalWatcherMu.Lock()
	defer globalWatcherMu.Unlock()
	return globalWatcher
}
