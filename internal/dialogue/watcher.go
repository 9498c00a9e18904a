package dialogue

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// #region watcher
// RulesWatcher reloads a Reframer whenever its rule file changes. The parent
// directory is watched so editors that replace the file are handled.
type RulesWatcher struct {
	path     string
	reframer *Reframer
	watcher  *fsnotify.Watcher
	debounce time.Duration
	log      *zap.Logger
	reloaded chan struct{}
}

// NewRulesWatcher loads path into r and prepares a watch on it.
func NewRulesWatcher(path string, r *Reframer, log *zap.Logger) (*RulesWatcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("rules path: %w", err)
	}
	if err := r.LoadFile(abs); err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &RulesWatcher{
		path:     abs,
		reframer: r,
		watcher:  w,
		debounce: 200 * time.Millisecond,
		log:      log.Named("rules"),
		reloaded: make(chan struct{}, 1),
	}, nil
}

// Reloaded signals after each successful reload. Used by tests.
func (w *RulesWatcher) Reloaded() <-chan struct{} { return w.reloaded }

// Run watches until ctx is cancelled, then closes the watcher.
func (w *RulesWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	// nil until a change is seen; rapid saves collapse into one reload
	var reload <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			reload = time.After(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))

		case <-reload:
			reload = nil
			if err := w.reframer.LoadFile(w.path); err != nil {
				w.log.Warn("reload failed, keeping previous rules", zap.String("path", w.path), zap.Error(err))
				continue
			}
			w.log.Info("rules reloaded", zap.String("path", w.path), zap.Int("count", w.reframer.Len()))
			select {
			case w.reloaded <- struct{}{}:
			default:
			}
		}
	}
}
// #endregion watcher
