// Package watch re-indexes the documents directory when its files change.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vitaelabs/vitae/internal/docs"
)

const defaultDebounce = 2 * time.Second

// Watcher observes one directory (non-recursive, matching discovery) and
// calls trigger after a quiet period following changes to supported files.
// Editors produce bursts of writes, renames, and temp files per save; the
// debounce window collapses each burst into one re-index.
type Watcher struct {
	dir      string
	debounce time.Duration
	trigger  func(ctx context.Context)
	logger   *slog.Logger
}

func New(dir string, debounce time.Duration, trigger func(ctx context.Context), logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		trigger:  trigger,
		logger:   logger,
	}
}

// Run watches until ctx is canceled. It returns an error only when the
// watch cannot be established; runtime watch errors are logged and the
// watcher keeps going.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info("watching documents directory", "dir", w.dir, "debounce", w.debounce)

	w.loop(ctx, fw.Events, fw.Errors)
	return nil
}

// loop is the debounce core, separated from fsnotify setup so it can be
// driven by hand-fed channels.
func (w *Watcher) loop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) {
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	pending := 0
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			if !relevant(ev) {
				continue
			}
			pending++
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)

		case err, ok := <-errs:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)

		case <-timer.C:
			if pending == 0 {
				continue
			}
			w.logger.Info("documents changed, re-indexing", "events", pending)
			pending = 0
			w.trigger(ctx)
		}
	}
}

// relevant keeps events that can change the corpus: creations, writes,
// removals, and renames of supported document files.
func relevant(ev fsnotify.Event) bool {
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) &&
		!ev.Op.Has(fsnotify.Remove) && !ev.Op.Has(fsnotify.Rename) {
		return false
	}
	return docs.IsSupported(ev.Name)
}
