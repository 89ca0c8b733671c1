package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"leaflens/internal/logging"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher reloads the catalog file into a Holder when it changes on disk.
type Watcher struct {
	path     string
	holder   *Holder
	logger   *slog.Logger
	debounce time.Duration
	// reloaded, when set, is signalled after each successful swap.
	reloaded chan<- *Snapshot
}

// NewWatcher builds a watcher for path.
func NewWatcher(path string, holder *Holder, logger *slog.Logger) *Watcher {
	return &Watcher{
		path:     path,
		holder:   holder,
		logger:   logging.NewComponentLogger(logger, "catalog-watcher"),
		debounce: defaultDebounce,
	}
}

// SetDebounce overrides the quiet period before reloading.
func (w *Watcher) SetDebounce(d time.Duration) { w.debounce = d }

// Notify registers a channel that receives every newly published snapshot.
func (w *Watcher) Notify(ch chan<- *Snapshot) { w.reloaded = ch }

// Run blocks until ctx is cancelled. The parent directory is watched so
// editors that replace the file by rename are still observed.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create catalog watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch catalog directory %s: %w", dir, err)
	}
	target := filepath.Clean(w.path)

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			w.reload()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(w.logger, "catalog watcher error", "catalog_watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "catalog changes may not be picked up until restart"))
		}
	}
}

func (w *Watcher) reload() {
	snap, err := w.holder.Reload(w.path)
	if err != nil {
		logging.WarnWithContext(w.logger, "catalog reload failed; keeping previous snapshot", "catalog_reload_failed",
			logging.String("path", w.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run leaflens catalog validate on the file"),
			logging.String(logging.FieldImpact, "matching continues against the previous catalog"))
		return
	}
	w.logger.Info("catalog reloaded",
		logging.String(logging.FieldEventType, "catalog_reloaded"),
		logging.String("path", w.path),
		logging.Int("entries", snap.Len()))
	if w.reloaded != nil {
		select {
		case w.reloaded <- snap:
		default:
		}
	}
}
