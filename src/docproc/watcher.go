package docproc

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors a course-document folder and invokes a callback for each
// created or rewritten document so it can be re-ingested.
type Watcher struct {
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// NewWatcher opens an fsnotify watcher. Callers own the lifecycle via
// Watch and Stop.
func NewWatcher(logger *slog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{watcher: w, logger: logger}, nil
}

// Watch monitors dir until ctx is done, calling onChange for every supported
// document that is created or written. Events for other files are dropped.
func (w *Watcher) Watch(ctx context.Context, dir string, onChange func(path string)) error {
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !SupportedFile(event.Name) {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				w.logger.Info("course document changed", "path", event.Name, "op", event.Op.String())
				onChange(event.Name)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("document watcher error", "error", err)
			}
		}
	}()
	return nil
}

// Stop closes the underlying watcher and ends the watch goroutine.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}
