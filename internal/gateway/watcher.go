package gateway

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"stackctl/internal/logging"
)

// ApplyFunc receives every successfully loaded topology.
type ApplyFunc func(ctx context.Context, t Topology)

// TopologyWatcher re-applies a topology file whenever it changes on disk.
// It watches the file's directory so editor rename-and-replace saves are seen.
type TopologyWatcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	path        string
	apply       ApplyFunc
	pending     bool
	lastEvent   time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats WatcherStats
}

// WatcherStats tracks watcher activity.
type WatcherStats struct {
	Events        int
	Applied       int
	InvalidLoads  int
	Errors        int
	LastEventTime time.Time
}

// NewTopologyWatcher creates a watcher for path that calls apply on change.
func NewTopologyWatcher(path string, apply ApplyFunc) (*TopologyWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &TopologyWatcher{
		watcher:     watcher,
		path:        abs,
		apply:       apply,
		debounceDur: 300 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// SetDebounce changes the settle time before a change is applied.
func (tw *TopologyWatcher) SetDebounce(d time.Duration) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.debounceDur = d
}

// Start begins watching. It is non-blocking.
func (tw *TopologyWatcher) Start(ctx context.Context) error {
	tw.mu.Lock()
	if tw.running {
		tw.mu.Unlock()
		return nil
	}
	tw.running = true
	tw.mu.Unlock()

	dir := filepath.Dir(tw.path)
	if err := tw.watcher.Add(dir); err != nil {
		tw.mu.Lock()
		tw.running = false
		tw.mu.Unlock()
		return err
	}
	logging.Watch("watching topology %s", tw.path)

	go tw.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (tw *TopologyWatcher) Stop() {
	tw.mu.Lock()
	if !tw.running {
		tw.mu.Unlock()
		_ = tw.watcher.Close()
		return
	}
	tw.running = false
	tw.mu.Unlock()

	close(tw.stopCh)
	<-tw.doneCh

	if err := tw.watcher.Close(); err != nil {
		logging.WatchError("error closing watcher: %v", err)
	}
	logging.Watch("topology watcher stopped")
}

// Stats returns a copy of the watcher statistics.
func (tw *TopologyWatcher) Stats() WatcherStats {
	tw.mu.RLock()
	defer tw.mu.RUnlock()
	return tw.stats
}

func (tw *TopologyWatcher) run(ctx context.Context) {
	defer close(tw.doneCh)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-tw.stopCh:
			return

		case event, ok := <-tw.watcher.Events:
			if !ok {
				return
			}
			tw.handleEvent(event)

		case err, ok := <-tw.watcher.Errors:
			if !ok {
				return
			}
			logging.WatchError("watcher error: %v", err)
			tw.mu.Lock()
			tw.stats.Errors++
			tw.mu.Unlock()

		case <-ticker.C:
			tw.processSettled(ctx)
		}
	}
}

func (tw *TopologyWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != tw.path {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}
	logging.WatchDebug("%s %s", event.Op, event.Name)

	tw.mu.Lock()
	tw.pending = true
	tw.lastEvent = time.Now()
	tw.stats.Events++
	tw.stats.LastEventTime = tw.lastEvent
	tw.mu.Unlock()
}

func (tw *TopologyWatcher) processSettled(ctx context.Context) {
	tw.mu.Lock()
	if !tw.pending || time.Since(tw.lastEvent) < tw.debounceDur {
		tw.mu.Unlock()
		return
	}
	tw.pending = false
	tw.mu.Unlock()

	t, err := LoadTopology(tw.path)
	if err != nil {
		logging.WatchError("keeping previous topology: %v", err)
		tw.mu.Lock()
		tw.stats.InvalidLoads++
		tw.mu.Unlock()
		return
	}

	logging.Watch("topology changed, re-applying %d services", len(t.Services))
	tw.apply(ctx, t)

	tw.mu.Lock()
	tw.stats.Applied++
	tw.mu.Unlock()
}
