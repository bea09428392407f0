// Package watch turns filesystem writes to a single file into coalesced change signals.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/julianstephens/streakline/internal/logger"
)

// DefaultDelay is how long a burst of writes is collected before one signal is sent.
const DefaultDelay = 150 * time.Millisecond

// File watches path until ctx is done and sends one value per burst of changes.
// The parent directory is watched so atomic renames and SQLite WAL/SHM sidecar
// files (path-wal, path-shm) are seen too. The channel is closed when ctx ends.
func File(ctx context.Context, path string, delay time.Duration) (<-chan struct{}, error) {
	if delay <= 0 {
		delay = DefaultDelay
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("watch: ensure dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch: %s: %w", dir, err)
	}

	out := make(chan struct{}, 1)
	base := filepath.Base(path)

	go func() {
		defer close(out)
		defer func() {
			if err := watcher.Close(); err != nil {
				logger.Warn("Failed to close file watcher", "path", path, "error", err)
			}
		}()

		// only this goroutine sends on out; the timer callback hands off through due
		due := make(chan struct{}, 1)
		throttle := newThrottle(delay, func() {
			select {
			case due <- struct{}{}:
			default:
			}
		})
		defer throttle.stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-due:
				select {
				case out <- struct{}{}:
				default:
					// a signal is already pending
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Debug("File watcher error", "path", path, "error", err)
				throttle.enqueue()
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if evt.Op == fsnotify.Chmod {
					continue
				}
				if strings.HasPrefix(filepath.Base(evt.Name), base) {
					throttle.enqueue()
				}
			}
		}
	}()

	return out, nil
}

type throttle struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
	delay   time.Duration
	fire    func()
}

func newThrottle(delay time.Duration, fire func()) *throttle {
	return &throttle{delay: delay, fire: fire}
}

func (t *throttle) enqueue() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.timer != nil {
		return
	}
	t.timer = time.AfterFunc(t.delay, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.timer = nil
		if t.stopped {
			return
		}
		t.fire()
	})
}

// stop cancels a pending signal. fire is never called once stop returns.
func (t *throttle) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
