package staging

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"leaflens/internal/logging"
)

// Removal reasons reported by Sweep.
const (
	ReasonOrphaned = "orphaned"
	ReasonStale    = "stale"
)

// Removal is one staging directory Sweep deleted.
type Removal struct {
	ScanID string
	Path   string
	Reason string
	Bytes  int64
}

// SweepError pairs a directory path with the error that kept it on disk.
type SweepError struct {
	Path string
	Err  error
}

// SweepResult is the outcome of one Sweep.
type SweepResult struct {
	Removed []Removal
	Errors  []SweepError
}

// Reclaimed returns the total bytes freed.
func (r SweepResult) Reclaimed() int64 {
	var total int64
	for _, rm := range r.Removed {
		total += rm.Bytes
	}
	return total
}

// SweepOptions selects which scan directories survive a Sweep.
type SweepOptions struct {
	// Active holds directory names (see Area.Dir) of scans that still need
	// their raw images. Everything else is orphaned.
	Active map[string]struct{}
	// MaxAge removes directories last modified before now-MaxAge even when
	// active. Zero keeps active directories regardless of age.
	MaxAge time.Duration
}

// Sweep removes orphaned and stale scan directories in one pass over the
// staging root. Loose files at the root are left alone.
func (a *Area) Sweep(ctx context.Context, opts SweepOptions, logger *slog.Logger) SweepResult {
	var result SweepResult
	if a == nil || a.root == "" {
		return result
	}
	entries, err := os.ReadDir(a.root)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, SweepError{Path: a.root, Err: err})
		}
		return result
	}

	var cutoff time.Time
	if opts.MaxAge > 0 {
		cutoff = time.Now().Add(-opts.MaxAge)
	}
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(a.root, entry.Name())
		reason, err := sweepReason(entry, opts.Active, cutoff)
		if err != nil {
			result.Errors = append(result.Errors, SweepError{Path: path, Err: err})
			continue
		}
		if reason == "" {
			continue
		}

		size := dirSize(path)
		if err := os.RemoveAll(path); err != nil {
			result.Errors = append(result.Errors, SweepError{Path: path, Err: err})
			logging.WarnWithContext(logger, "failed to remove staging directory", "staging_cleanup_failed",
				logging.String("path", path),
				logging.String("reason", reason),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, Removal{ScanID: entry.Name(), Path: path, Reason: reason, Bytes: size})
		if logger != nil {
			logger.Debug("removed staging directory",
				logging.String(logging.FieldScanID, entry.Name()),
				logging.String("reason", reason),
				logging.Int64("bytes", size),
				logging.String(logging.FieldEventType, "staging_cleanup"),
			)
		}
	}
	return result
}

func sweepReason(entry fs.DirEntry, active map[string]struct{}, cutoff time.Time) (string, error) {
	if _, ok := active[entry.Name()]; !ok {
		return ReasonOrphaned, nil
	}
	if cutoff.IsZero() {
		return "", nil
	}
	info, err := entry.Info()
	if err != nil {
		return "", err
	}
	if info.ModTime().Before(cutoff) {
		return ReasonStale, nil
	}
	return "", nil
}

// dirSize is best effort; unreadable entries count as zero.
func dirSize(path string) int64 {
	var size int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
		}
		return nil
	})
	return size
}
