// Package watcher implements the producer's directory monitor: it
// watches a single directory for entries that have been fully moved in
// (a completed torrent landing after an out-of-band download), debounces
// bursts of filesystem activity on the same entry, and reports a
// top-level name each time its activity settles. A name that sees new
// activity after being reported is reported again.
package watcher

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors scanPath for top-level entries (files or directories)
// that appear and then settle, and reports their names on NewEntries.
type Watcher struct {
	fsWatcher    *fsnotify.Watcher
	scanPath     string
	NewEntries   chan string
	debounceTime time.Duration

	mu      sync.Mutex
	pending map[string]time.Time

	stopChan chan struct{}
	doneChan chan struct{}
}

// NewWatcher creates a watcher over scanPath. NewEntries is buffered so a
// burst of simultaneous arrivals never blocks the debounce loop.
func NewWatcher(scanPath string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: create fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsWatcher:    fsWatcher,
		scanPath:     scanPath,
		NewEntries:   make(chan string, 64),
		debounceTime: 10 * time.Second,
		pending:      make(map[string]time.Time),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}, nil
}

// Start begins watching scanPath. Entries already present when Start is
// called are not reported; the caller is expected to have rehydrated its
// own known-set from persistent state before calling Start.
func (w *Watcher) Start() error {
	if err := w.fsWatcher.Add(w.scanPath); err != nil {
		return fmt.Errorf("watcher: watch %s: %w", w.scanPath, err)
	}

	log.Printf("Directory monitor watching %s", w.scanPath)
	go w.processEvents()
	go w.processPending()
	return nil
}

// Stop removes the watch and releases the monitor's goroutines.
func (w *Watcher) Stop() {
	close(w.stopChan)
	w.fsWatcher.Close()
	<-w.doneChan
	log.Println("Directory monitor stopped")
}

func (w *Watcher) processEvents() {
	defer close(w.doneChan)
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Printf("watcher: fsnotify error: %v", err)
		case <-w.stopChan:
			return
		}
	}
}

// handleEvent records activity against a top-level entry under scanPath.
// Nested paths (writes happening inside a directory still being moved
// in) reset the same entry's debounce timer rather than being treated as
// separate arrivals.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	isRelevant := event.Op&fsnotify.Create == fsnotify.Create ||
		event.Op&fsnotify.Rename == fsnotify.Rename ||
		event.Op&fsnotify.Write == fsnotify.Write
	if !isRelevant {
		return
	}

	rel, err := filepath.Rel(w.scanPath, event.Name)
	if err != nil || rel == "." {
		return
	}
	topLevel := firstPathComponent(rel)

	w.mu.Lock()
	w.pending[topLevel] = time.Now()
	w.mu.Unlock()
}

func firstPathComponent(rel string) string {
	if idx := indexOfSeparator(rel); idx >= 0 {
		return rel[:idx]
	}
	return rel
}

func indexOfSeparator(path string) int {
	for i, r := range path {
		if r == filepath.Separator {
			return i
		}
	}
	return -1
}

// processPending promotes entries that have gone quiet for debounceTime
// onto NewEntries, treating silence as "fully moved in".
func (w *Watcher) processPending() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.flushSettled()
		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) flushSettled() {
	now := time.Now()
	w.mu.Lock()
	var settled []string
	for name, last := range w.pending {
		if now.Sub(last) >= w.debounceTime {
			settled = append(settled, name)
			delete(w.pending, name)
		}
	}
	w.mu.Unlock()

	for _, name := range settled {
		select {
		case w.NewEntries <- name:
		default:
			log.Printf("watcher: NewEntries channel full, dropping %s", name)
		}
	}
}
