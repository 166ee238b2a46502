package planner

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/harrison/autopilot/internal/logger"
)

const playbookDebounceDelay = 200 * time.Millisecond

// PlaybookWatcher reloads the playbook library when markdown files in
// its directory change. Rapid consecutive writes are coalesced.
type PlaybookWatcher struct {
	watcher *fsnotify.Watcher
	library *PlaybookLibrary
	log     logger.Logger
	done    chan struct{}

	mu            sync.Mutex
	debounceDelay time.Duration
	debounceTimer *time.Timer
	closed        bool
}

// NewPlaybookWatcher starts watching the library's directory. The
// directory must exist.
func NewPlaybookWatcher(library *PlaybookLibrary, log logger.Logger) (*PlaybookWatcher, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(library.Dir()); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch playbook directory: %w", err)
	}

	w := &PlaybookWatcher{
		watcher:       fw,
		library:       library,
		log:           log,
		done:          make(chan struct{}),
		debounceDelay: playbookDebounceDelay,
	}
	go w.processEvents()
	return w, nil
}

// SetDebounceDelay adjusts the coalescing delay. Call before events
// start arriving.
func (w *PlaybookWatcher) SetDebounceDelay(delay time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounceDelay = delay
}

func (w *PlaybookWatcher) processEvents() {
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
			w.log.LogWarn(fmt.Sprintf("Playbook watch error: %v", err))
		}
	}
}

func (w *PlaybookWatcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".md") {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

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

func (w *PlaybookWatcher) reload() {
	if err := w.library.Load(); err != nil {
		w.log.LogWarn(fmt.Sprintf("Playbook reload failed: %v", err))
		return
	}
	w.log.LogInfo(fmt.Sprintf("Reloaded %d playbooks from %s", w.library.Len(), w.library.Dir()))
}

// Close stops the watcher.
func (w *PlaybookWatcher) Close() error {
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
