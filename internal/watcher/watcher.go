// Package watcher observes the component and page source trees and turns
// raw filesystem event bursts into single debounced change notifications.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/glazeware/glaze/internal/logging"
)

// ChangeEvent represents one qualifying file change.
type ChangeEvent struct {
	Type EventType
	Path string
}

// EventType represents the kind of file change.
type EventType int

const (
	EventCreated EventType = iota
	EventModified
	EventDeleted
	EventRenamed
)

// String returns the string representation of the EventType.
func (e EventType) String() string {
	switch e {
	case EventCreated:
		return "created"
	case EventModified:
		return "modified"
	case EventDeleted:
		return "deleted"
	case EventRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Filter reports whether a path qualifies for change handling.
type Filter func(path string) bool

// Handler receives one debounced batch of change events.
type Handler func(events []ChangeEvent)

// FileWatcher watches directory trees with debouncing, so an editor save
// that produces several raw notifications yields one handler call.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *debouncer
	logger    logging.Logger
	mu        sync.RWMutex
	filters   []Filter
	handlers  []Handler
}

// debouncer coalesces rapid events into batches separated by a quiet
// window.
type debouncer struct {
	delay   time.Duration
	events  chan ChangeEvent
	output  chan []ChangeEvent
	mu      sync.Mutex
	timer   *time.Timer
	pending []ChangeEvent
}

// New creates a file watcher with the given debounce window.
func New(debounce time.Duration, logger logging.Logger) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &FileWatcher{
		watcher: w,
		logger:  logger.WithSubsystem("watcher"),
		debouncer: &debouncer{
			delay:  debounce,
			events: make(chan ChangeEvent, 256),
			output: make(chan []ChangeEvent, 8),
		},
	}, nil
}

// AddFilter adds a path filter. All filters must accept a path for it to
// qualify.
func (fw *FileWatcher) AddFilter(f Filter) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.filters = append(fw.filters, f)
}

// AddHandler adds a debounced change handler.
func (fw *FileWatcher) AddHandler(h Handler) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.handlers = append(fw.handlers, h)
}

// AddRecursive watches root and every current subdirectory. An unreadable
// subtree is skipped with a logged warning; the rest keeps being watched.
func (fw *FileWatcher) AddRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			fw.logger.Warn(context.Background(), err, "skipping unwatchable subtree", "path", path)
			return nil
		}
		if info.IsDir() {
			if err := fw.watcher.Add(path); err != nil {
				fw.logger.Warn(context.Background(), err, "cannot watch directory", "path", path)
			}
		}
		return nil
	})
}

// Start launches the watch, debounce, and dispatch loops.
func (fw *FileWatcher) Start(ctx context.Context) {
	go fw.debouncer.run(ctx)
	go fw.dispatch(ctx)
	go fw.watch(ctx)
}

// Stop closes the underlying watcher.
func (fw *FileWatcher) Stop() error {
	fw.debouncer.mu.Lock()
	if fw.debouncer.timer != nil {
		fw.debouncer.timer.Stop()
	}
	fw.debouncer.mu.Unlock()
	return fw.watcher.Close()
}

func (fw *FileWatcher) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn(ctx, err, "file watcher error")
		}
	}
}

func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	fw.mu.RLock()
	filters := fw.filters
	fw.mu.RUnlock()

	for _, f := range filters {
		if !f(event.Name) {
			return
		}
	}

	// A new directory must be watched so nested component edits are seen.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := fw.watcher.Add(event.Name); err != nil {
				fw.logger.Warn(context.Background(), err, "cannot watch new directory", "path", event.Name)
			}
		}
	}

	var t EventType
	switch {
	case event.Op&fsnotify.Create != 0:
		t = EventCreated
	case event.Op&fsnotify.Write != 0:
		t = EventModified
	case event.Op&fsnotify.Remove != 0:
		t = EventDeleted
	case event.Op&fsnotify.Rename != 0:
		t = EventRenamed
	default:
		t = EventModified
	}

	select {
	case fw.debouncer.events <- ChangeEvent{Type: t, Path: event.Name}:
	default:
		// Event channel full; the pending rebuild covers this change too.
	}
}

func (fw *FileWatcher) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case events := <-fw.debouncer.output:
			fw.mu.RLock()
			handlers := fw.handlers
			fw.mu.RUnlock()
			for _, h := range handlers {
				h(events)
			}
		}
	}
}

func (d *debouncer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.events:
			d.add(event)
		}
	}
}

func (d *debouncer) add(event ChangeEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = append(d.pending, event)
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

func (d *debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.pending) == 0 {
		return
	}

	// Deduplicate by path, keeping the last event type seen.
	byPath := make(map[string]ChangeEvent, len(d.pending))
	order := make([]string, 0, len(d.pending))
	for _, e := range d.pending {
		if _, ok := byPath[e.Path]; !ok {
			order = append(order, e.Path)
		}
		byPath[e.Path] = e
	}
	events := make([]ChangeEvent, 0, len(order))
	for _, p := range order {
		events = append(events, byPath[p])
	}

	select {
	case d.output <- events:
	default:
	}

	d.pending = d.pending[:0]
}

// SourceFilter accepts the template and script files that should trigger
// a rebuild, plus directories (so new component directories get watched).
func SourceFilter(path string) bool {
	switch filepath.Ext(path) {
	case ".html", ".js":
		return true
	case "":
		return true
	default:
		return false
	}
}

// NoHiddenFilter rejects dotfile paths such as .git internals and editor
// swap directories.
func NoHiddenFilter(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if len(part) > 1 && strings.HasPrefix(part, ".") {
			return false
		}
	}
	return true
}
