package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
)

// DefaultRefreshSchedule reloads open tables once a week.
const DefaultRefreshSchedule = "@weekly"

// refreshTarget is what the Refresher drives; TableService implements it.
type refreshTarget interface {
	RefreshAll(ctx context.Context) RefreshResult
}

// Refresher reloads loaded sessions on a cron schedule and whenever one of the watched
// files changes (for example a SQLite store written by another process).
type Refresher struct {
	target   refreshTarget
	schedule string
	paths    []string
	debounce time.Duration

	mu          sync.Mutex
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewRefresher creates a Refresher. An empty schedule disables the cron trigger.
func NewRefresher(target refreshTarget, schedule string, paths []string) *Refresher {
	return &Refresher{target: target, schedule: schedule, paths: paths, debounce: 500 * time.Millisecond}
}

// Start tears down any running triggers and installs them again.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()

	// ── Cron ──
	if r.schedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(r.schedule, func() {
			res := r.target.RefreshAll(ctx)
			slog.Info("refresh cron: done", "refreshed", res.Refreshed, "skipped", res.Skipped, "failed", res.Failed)
		}); err != nil {
			return fmt.Errorf("refresh schedule %q: %w", r.schedule, err)
		}
		c.Start()
		r.cronSched = c
		slog.Info("refresh cron: scheduled", "schedule", r.schedule)
	}

	// ── File watchers ──
	if len(r.paths) == 0 {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	r.watcher = watcher

	watched := make(map[string]bool)
	watchedDirs := make(map[string]bool)
	for _, p := range r.paths {
		absPath, err := filepath.Abs(p)
		if err != nil {
			slog.Warn("refresh watcher: bad path", "path", p, "err", err)
			continue
		}
		watched[absPath] = true

		// Watch the directory so editors that replace the file are still seen.
		dir := filepath.Dir(absPath)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				slog.Warn("refresh watcher: cannot watch dir", "dir", dir, "err", err)
			} else {
				watchedDirs[dir] = true
			}
		}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	r.watchCancel = cancel

	go func() {
		var timer *time.Timer
		for {
			select {
			case <-watchCtx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				absPath, _ := filepath.Abs(event.Name)
				if !watched[absPath] {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(r.debounce, func() {
					res := r.target.RefreshAll(watchCtx)
					slog.Info("refresh watcher: file changed", "path", absPath,
						"refreshed", res.Refreshed, "skipped", res.Skipped, "failed", res.Failed)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("refresh watcher: error", "err", err)
			}
		}
	}()

	slog.Info("refresh watcher: watching", "files", len(watched))
	return nil
}

// Reschedule swaps the schedule and watched paths and restarts the triggers.
func (r *Refresher) Reschedule(ctx context.Context, schedule string, paths []string) error {
	r.mu.Lock()
	r.schedule, r.paths = schedule, paths
	r.mu.Unlock()
	return r.Start(ctx)
}

// Stop tears down the schedule and watchers.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *Refresher) stopLocked() {
	if r.watchCancel != nil {
		r.watchCancel()
		r.watchCancel = nil
	}
	if r.watcher != nil {
		r.watcher.Close()
		r.watcher = nil
	}
	if r.cronSched != nil {
		r.cronSched.Stop()
		r.cronSched = nil
	}
}
