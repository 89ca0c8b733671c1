package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// RetentionTarget specifies a directory and filename pattern to prune.
// KeepNewest, when positive, also caps the number of matching files kept
// regardless of age; per-run daemon logs accumulate one file per start.
type RetentionTarget struct {
	Dir        string
	Pattern    string
	Exclude    []string
	KeepNewest int
}

type logCandidate struct {
	path    string
	modTime time.Time
}

// CleanupOldLogs removes files matching the provided targets that are older
// than retentionDays, or beyond a target's KeepNewest cap. A retentionDays
// value of 0 disables age pruning. It returns the number of files removed.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	var cutoff time.Time
	if retentionDays > 0 {
		cutoff = time.Now().AddDate(0, 0, -retentionDays)
	}

	exclusions := make(map[string]struct{})
	for _, target := range targets {
		for _, path := range target.Exclude {
			if trimmed := strings.TrimSpace(path); trimmed != "" {
				if abs, err := filepath.Abs(trimmed); err == nil {
					exclusions[abs] = struct{}{}
				}
			}
		}
	}

	removed := 0
	for _, target := range targets {
		candidates := matchingLogs(target)
		// Newest first so the KeepNewest window is a prefix.
		slices.SortFunc(candidates, func(a, b logCandidate) int { return b.modTime.Compare(a.modTime) })

		kept := 0
		for _, c := range candidates {
			if _, skip := exclusions[c.path]; skip {
				kept++
				continue
			}
			expired := !cutoff.IsZero() && c.modTime.Before(cutoff)
			overCap := target.KeepNewest > 0 && kept >= target.KeepNewest
			if !expired && !overCap {
				kept++
				continue
			}
			if err := os.Remove(c.path); err != nil {
				WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
					String("path", c.path),
					Error(err),
					String(FieldErrorHint, "check file permissions and paths.log_dir ownership"),
					String(FieldImpact, "old log file remains on disk"),
				)
				kept++
				continue
			}
			removed++
			if logger != nil {
				logger.Info("log pruned",
					String("path", c.path),
					String(FieldEventType, "log_pruned"),
				)
			}
		}
	}
	return removed
}

func matchingLogs(target RetentionTarget) []logCandidate {
	dir := strings.TrimSpace(target.Dir)
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	pattern := strings.TrimSpace(target.Pattern)
	var out []logCandidate
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if pattern != "" {
			if matched, err := filepath.Match(pattern, name); err != nil || !matched {
				continue
			}
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, name)
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		out = append(out, logCandidate{path: path, modTime: info.ModTime()})
	}
	return out
}
