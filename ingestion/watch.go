package ingestion

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period Watch waits for before re-running.
const DefaultDebounce = 2 * time.Second

// Watch runs ingestion once, then again each time the source tree has been
// quiet for debounce after a change. onReport, if set, receives the outcome
// of every run. Watch returns when ctx is done.
func (o *Orchestrator) Watch(ctx context.Context, sourceDir string, debounce time.Duration, onReport func(*Report, error)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := addTree(watcher, sourceDir); err != nil {
		return fmt.Errorf("%w: %w", ErrSourceDir, err)
	}

	run := func() {
		report, err := o.Run(ctx, sourceDir)
		if onReport != nil {
			onReport(report, err)
		}
	}
	run()

	timer := time.NewTimer(debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevantEvent(event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addTree(watcher, event.Name); err != nil {
						o.logger.Warn("unable to watch new directory", "path", event.Name, "err", err)
					}
				}
			}
			o.logger.Debug("source change detected", "path", event.Name, "op", event.Op.String())
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			o.logger.Warn("watcher error", "err", err)

		case <-timer.C:
			run()
		}
	}
}

// addTree watches root and every non-hidden directory below it.
func addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && skipEntry(d.Name()) {
			return filepath.SkipDir
		}
		return watcher.Add(p)
	})
}

func relevantEvent(event fsnotify.Event) bool {
	if skipEntry(filepath.Base(event.Name)) {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}
