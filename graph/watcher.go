package graph

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherConfig configures the graph file watcher.
type WatcherConfig struct {
	// Path is the graph document to watch.
	Path string

	// DebounceDelay is how long to wait for more writes before reloading.
	// Scanners typically rewrite the whole file, which fsnotify reports as
	// several write events in quick succession.
	DebounceDelay time.Duration

	// Logger for watch events.
	Logger *slog.Logger
}

// ReloadEvent is emitted after the watched graph document changed on disk and
// was reloaded into the store.
type ReloadEvent struct {
	// Path is the watched graph file.
	Path string

	// Graph is the freshly installed snapshot (nil when Err is set).
	Graph *Graph

	// Err is the load failure, if the new document did not validate.
	Err error
}

// Watcher reloads a Store whenever its backing graph document changes on
// disk. External scanners own the file; the watcher keeps in-process readers
// current without them polling.
type Watcher struct {
	config  WatcherConfig
	store   *Store
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	pendingMu sync.Mutex
	pending   bool

	// events is closed by processEvents on exit, never by Stop: the watch
	// loop is the only sender.
	events   chan ReloadEvent
	done     chan struct{}
	loopDone chan struct{}
	started  atomic.Bool
	stopOnce sync.Once
}

// NewWatcher creates a watcher for the store's graph document.
func NewWatcher(store *Store, config WatcherConfig) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.DebounceDelay == 0 {
		config.DebounceDelay = 250 * time.Millisecond
	}

	return &Watcher{
		config:   config,
		store:    store,
		watcher:  fsw,
		logger:   logger,
		events:   make(chan ReloadEvent, 16),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}, nil
}

// Events returns the channel of reload events.
func (w *Watcher) Events() <-chan ReloadEvent {
	return w.events
}

// Start begins watching. Watching the parent directory rather than the file
// itself survives the rename-over-write pattern most scanners use.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.config.Path)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	w.started.Store(true)
	go w.processEvents(ctx)

	w.logger.Info("graph watcher started",
		"path", w.config.Path,
		"debounce", w.config.DebounceDelay)
	return nil
}

// Stop stops the watcher and waits for the watch loop to exit. The events
// channel is closed once no more events can be delivered. Safe to call more
// than once.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() { close(w.done) })
	err := w.watcher.Close()
	if w.started.Load() {
		<-w.loopDone
	}
	return err
}

// processEvents handles fsnotify events with debouncing.
func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.loopDone)
	defer close(w.events)

	ticker := time.NewTicker(w.config.DebounceDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("graph watcher error", "error", err)

		case <-ticker.C:
			w.flushPending()
		}
	}
}

// handleFSEvent marks a reload pending when the watched file was written.
func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.config.Path) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	w.pendingMu.Lock()
	w.pending = true
	w.pendingMu.Unlock()

	w.logger.Debug("graph file changed", "op", event.Op.String())
}

// flushPending reloads the store if a change is pending.
func (w *Watcher) flushPending() {
	w.pendingMu.Lock()
	pending := w.pending
	w.pending = false
	w.pendingMu.Unlock()

	if !pending {
		return
	}
	if _, err := os.Stat(w.config.Path); os.IsNotExist(err) {
		// Scanner is mid-rewrite; the follow-up create event re-arms us.
		return
	}

	event := ReloadEvent{Path: w.config.Path}
	if err := w.store.LoadFile(w.config.Path); err != nil {
		event.Err = err
		w.logger.Warn("graph reload failed", "error", err)
	} else {
		event.Graph, _ = w.store.Snapshot()
	}
	w.sendEvent(event)
}

// sendEvent delivers a reload event without blocking the watch loop.
func (w *Watcher) sendEvent(event ReloadEvent) {
	select {
	case w.events <- event:
	default:
		w.logger.Warn("reload event channel full, dropping event")
	}
}
