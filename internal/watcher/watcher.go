// Package watcher reloads a table file when it changes on disk.
//
// The parent directory is watched rather than the file so that editors which
// save by writing a temporary file and renaming it over the target are seen.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const DefaultDebounce = 50 * time.Millisecond

type Options struct {
	Debounce time.Duration
	// FailFast makes Run return the first reload error instead of logging it.
	FailFast bool
}

// Watcher invokes a reload callback at most once per burst of changes to
// one file.
type Watcher struct {
	target  string
	dir     string
	reload  func() error
	opts    Options
	logger  *zap.Logger
	reloads atomic.Uint64
	ready   chan struct{}
}

func New(target string, reload func() error, opts Options, logger *zap.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(target)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", target, err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	return &Watcher{
		target: filepath.Clean(abs),
		dir:    filepath.Dir(abs),
		reload: reload,
		opts:   opts,
		logger: logger,
		ready:  make(chan struct{}),
	}, nil
}

// Target returns the absolute path of the watched file
func (w *Watcher) Target() string {
	return w.target
}

// Ready is closed once the directory watch is installed.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Reloads returns how many reloads the watcher has triggered
func (w *Watcher) Reloads() uint64 {
	return w.reloads.Load()
}

// Run watches until ctx is cancelled. It returns nil on cancellation and an
// error if the watch cannot be set up or, with FailFast, a reload fails.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	close(w.ready)

	w.logger.Info("Watching table file",
		zap.String("file", w.target),
		zap.Duration("debounce", w.opts.Debounce))

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		matched bool
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if w.matches(ev.Name) {
				matched = true
			}
			if timerC == nil {
				timer = time.NewTimer(w.opts.Debounce)
				timerC = timer.C
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", zap.Error(err))

		case <-timerC:
			timerC = nil
			if !matched {
				continue
			}
			matched = false

			if err := w.fire(); err != nil && w.opts.FailFast {
				return err
			}
		}
	}
}

func (w *Watcher) fire() error {
	w.reloads.Add(1)

	if err := w.reload(); err != nil {
		w.logger.Error("Reload failed",
			zap.String("file", w.target),
			zap.Bool("fail_fast", w.opts.FailFast),
			zap.Error(err))
		return fmt.Errorf("reload %s: %w", w.target, err)
	}
	return nil
}

func (w *Watcher) matches(name string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	return filepath.Clean(abs) == w.target
}
