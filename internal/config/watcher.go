package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceDelay is the default delay for coalescing rapid writes.
const DefaultDebounceDelay = 100 * time.Millisecond

// Watcher reloads configuration when the config file changes on disk.
// A re-parse that fails validation keeps the last good config.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	updates chan *Config
	errors  chan error
	done    chan struct{}

	mu            sync.Mutex
	current       *Config
	debounceDelay time.Duration
	debounceTimer *time.Timer
	closed        bool
}

// NewWatcher starts watching the given config file. The initial config is
// loaded immediately; subsequent valid changes are delivered on Updates().
func NewWatcher(path string) (*Watcher, error) {
	initial, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the containing directory so editor rename-and-replace saves
	// are still observed.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		watcher:       fw,
		path:          filepath.Clean(path),
		updates:       make(chan *Config, 1),
		errors:        make(chan error, 10),
		done:          make(chan struct{}),
		current:       initial,
		debounceDelay: DefaultDebounceDelay,
	}

	go w.processEvents()

	return w, nil
}

// Current returns the most recently loaded valid configuration.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Updates returns the channel on which new valid configurations arrive.
func (w *Watcher) Updates() <-chan *Config {
	return w.updates
}

// Errors returns the channel for watch and reload errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.done:
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
			select {
			case w.errors <- err:
			default:
				// Error channel full, drop the error
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	// Debounce rapid consecutive writes.
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceDelay, w.reload)
	w.mu.Unlock()
}

func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		select {
		case w.errors <- err:
		default:
		}
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.current = cfg
	w.mu.Unlock()

	// Replace any undelivered update with the newest config.
	select {
	case w.updates <- cfg:
	default:
		select {
		case <-w.updates:
		default:
		}
		select {
		case w.updates <- cfg:
		default:
		}
	}
}

// SetDebounceDelay sets the debounce delay for coalescing rapid writes.
// This should only be called before the watcher starts receiving events.
func (w *Watcher) SetDebounceDelay(delay time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounceDelay = delay
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.mu.Unlock()

	close(w.done)
	return w.watcher.Close()
}
