package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-errors/errors"
)

// Watcher reloads a config file when it changes on disk.
type Watcher struct {
	path     string
	onChange func(*Config)
	logger   *slog.Logger

	watcher *fsnotify.Watcher
	modTime time.Time
	stopCh  chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewWatcher watches path's directory, since editors often replace the file
// rather than write it in place. onChange receives every successfully
// validated reload; invalid files are logged and ignored.
func NewWatcher(path string, onChange func(*Config), logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WrapPrefix(err, "config watcher", 0)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, errors.WrapPrefix(err, "watch "+dir, 0)
	}

	cw := &Watcher{
		path:     path,
		onChange: onChange,
		logger:   logger.With("component", "config"),
		watcher:  w,
		modTime:  statModTime(path),
		stopCh:   make(chan struct{}),
	}
	cw.wg.Add(1)
	go cw.watchLoop()
	return cw, nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.stopCh)
		w.watcher.Close()
		w.wg.Wait()
	})
}

func (w *Watcher) watchLoop() {
	defer w.wg.Done()

	// Also poll periodically in case fsnotify misses events
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.check()
			}

		case <-ticker.C:
			w.check()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "err", err)
		}
	}
}

// check reloads the file if its modification time moved.
func (w *Watcher) check() {
	mt := statModTime(w.path)
	if mt.IsZero() || mt.Equal(w.modTime) {
		return
	}
	w.modTime = mt

	cfg, err := LoadFile(w.path)
	if err != nil {
		w.logger.Warn("config reload failed", "path", w.path, "err", err)
		return
	}
	w.logger.Info("config reloaded", "path", w.path)
	w.onChange(cfg)
}

func statModTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
