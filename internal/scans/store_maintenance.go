package scans

import (
	"context"
	"fmt"
	"strings"
	"time"

	"leaflens/internal/config"
)

// UpdateHeartbeat refreshes the heartbeat of an in-flight record.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := formatTime(time.Now())
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE scan_records SET last_heartbeat = ? WHERE id = ? AND status IN (?, ?, ?)`,
		now, id, string(StatusUploading), string(StatusAnalyzing), string(StatusMatching),
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// rollbackCase builds the CASE expression and args that move in-flight
// statuses back to their preceding completed status.
func rollbackCase() (string, []any) {
	var b strings.Builder
	b.WriteString("CASE status")
	var args []any
	for _, status := range []Status{StatusUploading, StatusAnalyzing, StatusMatching} {
		b.WriteString(" WHEN ? THEN ?")
		args = append(args, string(status), string(rollback[status]))
	}
	b.WriteString(" ELSE status END")
	return b.String(), args
}

func inFlightArgs() []any {
	return []any{string(StatusUploading), string(StatusAnalyzing), string(StatusMatching)}
}

// ResetInFlight rolls every in-flight record back to its last completed
// status. The daemon calls it at startup, when no stage can be running.
func (s *Store) ResetInFlight(ctx context.Context) (int64, error) {
	expr, args := rollbackCase()
	args = append(args, formatTime(time.Now()))
	args = append(args, inFlightArgs()...)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE scan_records SET status = `+expr+`, last_heartbeat = NULL, updated_at = ?
         WHERE status IN (?, ?, ?)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("reset in-flight scans: %w", err)
	}
	return res.RowsAffected()
}

// ReclaimStale rolls back in-flight records whose heartbeat is older than cutoff.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	expr, args := rollbackCase()
	args = append(args, formatTime(time.Now()))
	args = append(args, inFlightArgs()...)
	args = append(args, formatTime(cutoff))
	res, err := s.execWithRetry(
		ctx,
		`UPDATE scan_records SET status = `+expr+`, last_heartbeat = NULL, updated_at = ?
         WHERE status IN (?, ?, ?) AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale scans: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailure removes the recorded failure so the pipeline resumes the
// record from its persisted status. Records without a failure are untouched.
func (s *Store) ClearFailure(ctx context.Context, ids ...string) (int64, error) {
	now := formatTime(time.Now())
	if len(ids) == 0 {
		res, err := s.execWithRetry(ctx,
			`UPDATE scan_records SET failure_json = NULL, updated_at = ? WHERE failure_json IS NOT NULL`, now)
		if err != nil {
			return 0, fmt.Errorf("clear failures: %w", err)
		}
		return res.RowsAffected()
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, now)
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE scan_records SET failure_json = NULL, updated_at = ?
         WHERE id IN (`+makePlaceholders(len(ids))+`) AND failure_json IS NOT NULL`, args...)
	if err != nil {
		return 0, fmt.Errorf("clear selected failures: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of records grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.query(ctx, `SELECT status, COUNT(1) FROM scan_records GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("scan stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}

// Health aggregates record state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	var failed int
	if err := s.queryRow(ctx, `SELECT COUNT(1) FROM scan_records WHERE failure_json IS NOT NULL`).Scan(&failed); err != nil {
		return HealthSummary{}, fmt.Errorf("count failed scans: %w", err)
	}
	health := HealthSummary{Failed: failed}
	for status, count := range stats {
		health.Total += count
		switch {
		case status.IsInFlight():
			health.InFlight += count
		case status.IsTerminal():
			health.Terminal += count
		default:
			health.Pending += count
		}
	}
	health.Pending = max(0, health.Pending-failed)
	return health, nil
}

// CheckHealth returns diagnostic information about the scan database.
func (s *Store) CheckHealth(ctx context.Context) DatabaseHealth {
	health := DatabaseHealth{Driver: s.driver, Location: s.location}
	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health
	}
	health.Reachable = true

	if err := s.queryRow(connCtx, "SELECT version FROM schema_version LIMIT 1").Scan(&health.SchemaVersion); err != nil {
		health.Error = err.Error()
		return health
	}
	if err := s.queryRow(connCtx, "SELECT COUNT(*) FROM scan_records").Scan(&health.TotalRecords); err != nil {
		health.Error = err.Error()
		return health
	}

	if s.driver != config.DriverSQLite {
		health.IntegrityCheck = true
		return health
	}
	var integrity string
	if err := s.queryRow(connCtx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = err.Error()
		return health
	}
	health.IntegrityCheck = strings.EqualFold(integrity, "ok")
	return health
}
