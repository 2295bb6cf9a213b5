// Package watcher reloads the shared corpus when its file changes, using fsnotify with debouncing.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hyperjump/minaoshi/internal/corpus"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Loader reads and validates a corpus file.
type Loader func(ctx context.Context, path string) (*corpus.Corpus, error)

// Watcher watches one corpus file and publishes each valid new version into a holder.
// A version that fails to load is logged and the current corpus keeps serving.
type Watcher struct {
	path     string
	load     Loader
	holder   *corpus.Holder
	debounce time.Duration
	onReload func(*corpus.Corpus)
	logger   *zap.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	timer    *time.Timer
	ctx      context.Context
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long the file must be quiet before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithOnReload registers a callback run after each successful swap.
func WithOnReload(fn func(*corpus.Corpus)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// NewWatcher creates a watcher for the corpus file at path.
func NewWatcher(path string, load Loader, holder *corpus.Holder, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		path:     filepath.Clean(path),
		load:     load,
		holder:   holder,
		debounce: defaultDebounce,
		logger:   zap.NewNop(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	return w
}

// Start watches the directory containing the corpus file, since writers may replace the file
// rather than modify it in place. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return err
	}
	w.watcher = fw
	w.ctx = ctx
	w.started = true
	w.logger.Debug("corpus watcher starting", zap.String("path", w.path))
	go w.run(ctx, fw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if filepath.Clean(ev.Name) != w.path {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		w.timer = nil
		ctx := w.ctx
		w.mu.Unlock()
		if ctx == nil {
			ctx = context.Background()
		}
		_ = w.Reload(ctx)
	})
}

// Reload loads the corpus file now and swaps it in if it is valid. On error the current corpus
// is kept. The replaced corpus is not closed because in-flight requests may still read it.
func (w *Watcher) Reload(ctx context.Context) error {
	c, err := w.load(ctx, w.path)
	if err != nil {
		w.logger.Error("corpus reload failed, keeping current corpus", zap.String("path", w.path), zap.Error(err))
		return err
	}
	w.holder.Swap(c)
	w.logger.Info("corpus reloaded", zap.String("path", w.path), zap.Int("snippets", c.Size()))
	if w.onReload != nil {
		w.onReload(c)
	}
	return nil
}

// Stop stops watching. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		if w.watcher != nil {
			_ = w.watcher.Close()
			w.watcher = nil
		}
	})
}
