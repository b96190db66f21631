package fs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/fsnotify/fsnotify"
)

// debouncer collapses a burst of calls into one, fired after the burst has
// been quiet for delay.
type debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	stopped bool
	wg      sync.WaitGroup
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{delay: delay}
}

func (d *debouncer) trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil && d.timer.Stop() {
		d.wg.Done() // the pending call will never run
	}
	d.wg.Add(1)
	d.timer = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()
		fn()
	})
}

// stop cancels the pending call, if any, and waits for a running one.
func (d *debouncer) stop() {
	d.mu.Lock()
	d.stopped = true
	if d.timer != nil && d.timer.Stop() {
		d.wg.Done()
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// startWatcher starts the fsnotify loop once. Any note file change in the
// vault wakes every subscription.
func (r *Repository) startWatcher() error {
	var startErr error
	r.watchOnce.Do(func() {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			startErr = fmt.Errorf("create watcher: %w", err)
			return
		}
		if err := r.addDirs(watcher); err != nil {
			_ = watcher.Close()
			startErr = err
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		r.mu.Lock()
		r.watchCancel = cancel
		r.watchDone = done
		r.watcherActive = true
		r.mu.Unlock()

		lifecycle.Go(ctx, func(ctx context.Context) error {
			defer close(done)
			return r.watch(ctx, watcher)
		}, lifecycle.WithErrorHandler(func(err error) {
			r.config.Logger.Error("watcher stopped", "error", err)
		}))
	})
	return startErr
}

// addDirs watches the vault root and every collection directory.
func (r *Repository) addDirs(watcher *fsnotify.Watcher) error {
	if err := watcher.Add(r.Path); err != nil {
		return fmt.Errorf("watch %s: %w", r.Path, err)
	}
	entries, err := os.ReadDir(r.Path)
	if err != nil {
		return fmt.Errorf("read vault: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() || validName(e.Name()) != nil {
			continue
		}
		if err := watcher.Add(filepath.Join(r.Path, e.Name())); err != nil {
			return fmt.Errorf("watch %s: %w", e.Name(), err)
		}
	}
	return nil
}

func (r *Repository) watch(ctx context.Context, watcher *fsnotify.Watcher) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("watcher panic: %v", recovered)
			if r.config.Logger.Enabled(ctx, slog.LevelDebug) {
				r.config.Logger.Error("watcher panic", "error", err, "stack", string(debug.Stack()))
			}
		}
	}()

	deb := newDebouncer(r.config.Debounce)
	defer func() {
		deb.stop()
		_ = watcher.Close()
		r.mu.Lock()
		r.watcherActive = false
		r.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher events channel closed")
			}
			if !r.relevant(watcher, event) {
				continue
			}
			r.config.Logger.Debug("vault changed", "path", event.Name, "op", event.Op.String())
			deb.trigger(func() {
				r.recordReconcile()
				r.hub.NotifyAll()
			})

		case wErr, ok := <-watcher.Errors:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher errors channel closed")
			}
			r.config.Logger.Error("fsnotify error", "error", wErr)
		}
	}
}

// relevant filters watcher events down to note files. New collection
// directories are added to the watch list on the way.
func (r *Repository) relevant(watcher *fsnotify.Watcher, event fsnotify.Event) bool {
	rel, err := filepath.Rel(r.Path, event.Name)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)

	if event.Has(fsnotify.Create) && validName(rel) == nil {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := watcher.Add(event.Name); err != nil {
				r.config.Logger.Warn("cannot watch new collection", "path", rel, "error", err)
			}
			return true
		}
	}
	if event.Op == fsnotify.Chmod {
		return false
	}
	return !r.ignored(rel)
}
