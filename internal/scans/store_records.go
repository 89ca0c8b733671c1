package scans

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"leaflens/internal/services"
)

// Create inserts rec in the created state. An empty ID is assigned.
func (s *Store) Create(ctx context.Context, rec *Record) error {
	if rec == nil {
		return errors.New("record is nil")
	}
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rec.Status = StatusCreated
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.LastHeartbeat = nil

	args, err := recordArgs(rec)
	if err != nil {
		return err
	}
	insertArgs := append([]any{rec.ID, rec.OwnerID, string(rec.Status)}, args...)
	insertArgs = append(insertArgs, formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO scan_records (
            id, owner_id, status, sources_json, image_refs_json, composite_json, candidates_json,
            suggestions_json, matched_candidate_id, selected_entry_id, failure_json, image_failures_json,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		insertArgs...,
	); err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

// Get fetches a record by id. A missing record returns nil without error.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.queryRow(ctx, `SELECT `+recordColumns+` FROM scan_records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scan: %w", err)
	}
	return rec, nil
}

// Update persists the stage results on rec. Status and heartbeat are owned by
// Transition and UpdateHeartbeat and are not written here.
func (s *Store) Update(ctx context.Context, rec *Record) error {
	if rec == nil {
		return errors.New("record is nil")
	}
	rec.UpdatedAt = time.Now().UTC()
	args, err := recordArgs(rec)
	if err != nil {
		return err
	}
	args = append(args, formatTime(rec.UpdatedAt), rec.ID)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE scan_records
         SET sources_json = ?, image_refs_json = ?, composite_json = ?, candidates_json = ?,
             suggestions_json = ?, matched_candidate_id = ?, selected_entry_id = ?, failure_json = ?,
             image_failures_json = ?, updated_at = ?
         WHERE id = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("update scan: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return services.Wrap(services.ErrNotFound, "", "update scan", rec.ID, nil)
	}
	return nil
}

// Transition moves rec from its current status to next when the persisted
// status still equals the current one. Entering an in-flight status stamps
// the heartbeat; leaving clears it.
func (s *Store) Transition(ctx context.Context, rec *Record, next Status) error {
	if rec == nil {
		return errors.New("record is nil")
	}
	from := rec.Status
	if !CanTransition(from, next) {
		return services.Wrap(services.ErrInvalidTransition, string(from), "transition", fmt.Sprintf("%s -> %s not permitted", from, next), nil)
	}
	now := time.Now().UTC()
	var heartbeat *time.Time
	if next.IsInFlight() {
		heartbeat = &now
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE scan_records SET status = ?, last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(next),
		nullableTime(heartbeat),
		formatTime(now),
		rec.ID,
		string(from),
	)
	if err != nil {
		return fmt.Errorf("transition scan: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return s.statusMismatch(ctx, rec.ID, from, "transition")
	}
	rec.Status = next
	rec.LastHeartbeat = heartbeat
	rec.UpdatedAt = now
	return nil
}

// Rollback returns an in-flight rec to the completed status before it and
// clears the heartbeat. Completed records are left alone.
func (s *Store) Rollback(ctx context.Context, rec *Record) error {
	if rec == nil {
		return errors.New("record is nil")
	}
	prev, ok := rec.Status.Previous()
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE scan_records SET status = ?, last_heartbeat = NULL, updated_at = ? WHERE id = ? AND status = ?`,
		string(prev),
		formatTime(now),
		rec.ID,
		string(rec.Status),
	); err != nil {
		return fmt.Errorf("rollback scan: %w", err)
	}
	rec.Status = prev
	rec.LastHeartbeat = nil
	rec.UpdatedAt = now
	return nil
}

// Select records a manual catalog choice and moves rec to manually_matched
// in one statement. rec is unchanged when the persisted status moved on.
func (s *Store) Select(ctx context.Context, rec *Record, entryID string) error {
	if rec == nil {
		return errors.New("record is nil")
	}
	from := rec.Status
	if !CanTransition(from, StatusManuallyMatched) {
		return services.Wrap(services.ErrInvalidTransition, string(from), "select",
			fmt.Sprintf("%s -> %s not permitted", from, StatusManuallyMatched), nil)
	}
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE scan_records SET status = ?, selected_entry_id = ?, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(StatusManuallyMatched),
		entryID,
		formatTime(now),
		rec.ID,
		string(from),
	)
	if err != nil {
		return fmt.Errorf("select entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return s.statusMismatch(ctx, rec.ID, from, "select")
	}
	rec.Status = StatusManuallyMatched
	rec.SelectedEntryID = entryID
	rec.LastHeartbeat = nil
	rec.UpdatedAt = now
	return nil
}

// statusMismatch explains a compare-and-set update that matched no row.
func (s *Store) statusMismatch(ctx context.Context, id string, expected Status, op string) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return services.Wrap(services.ErrNotFound, string(expected), op, id, nil)
	}
	return services.Wrap(services.ErrInvalidTransition, string(expected), op,
		fmt.Sprintf("record is %s, expected %s", current.Status, expected), nil)
}

// ListOptions filters List.
type ListOptions struct {
	Statuses []Status
	OwnerID  string
	Limit    int
}

// List returns records newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM scan_records`
	var (
		where []string
		args  []any
	)
	if len(opts.Statuses) > 0 {
		where = append(where, `status IN (`+makePlaceholders(len(opts.Statuses))+`)`)
		args = append(args, statusArgs(opts.Statuses)...)
	}
	if owner := strings.TrimSpace(opts.OwnerID); owner != "" {
		where = append(where, `owner_id = ?`)
		args = append(args, owner)
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}

// NextResumable returns the oldest record the automated pipeline can pick up.
func (s *Store) NextResumable(ctx context.Context) (*Record, error) {
	statuses := []Status{StatusCreated, StatusUploaded, StatusAnalyzed}
	query := `SELECT ` + recordColumns + ` FROM scan_records
        WHERE status IN (` + makePlaceholders(len(statuses)) + `) AND failure_json IS NULL
        ORDER BY created_at LIMIT 1`
	rec, err := scanRecord(s.queryRow(ctx, query, statusArgs(statuses)...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next resumable scan: %w", err)
	}
	return rec, nil
}

func collect(rows *sql.Rows) ([]*Record, error) {
	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// recordArgs returns the mutable columns in Update order without updated_at.
func recordArgs(rec *Record) ([]any, error) {
	sources, err := encodeColumn(rec.Sources, len(rec.Sources) == 0)
	if err != nil {
		return nil, fmt.Errorf("encode sources: %w", err)
	}
	refs, err := encodeColumn(rec.ImageRefs, len(rec.ImageRefs) == 0)
	if err != nil {
		return nil, fmt.Errorf("encode image refs: %w", err)
	}
	composite, err := encodeColumn(rec.Composite, rec.Composite == nil)
	if err != nil {
		return nil, fmt.Errorf("encode composite: %w", err)
	}
	candidates, err := encodeColumn(rec.Candidates, rec.Candidates == nil)
	if err != nil {
		return nil, fmt.Errorf("encode candidates: %w", err)
	}
	suggestions, err := encodeColumn(rec.Suggestions, len(rec.Suggestions) == 0)
	if err != nil {
		return nil, fmt.Errorf("encode suggestions: %w", err)
	}
	failure, err := encodeColumn(rec.Failure, rec.Failure == nil)
	if err != nil {
		return nil, fmt.Errorf("encode failure: %w", err)
	}
	imageFailures, err := encodeColumn(rec.ImageFailures, len(rec.ImageFailures) == 0)
	if err != nil {
		return nil, fmt.Errorf("encode image failures: %w", err)
	}
	return []any{
		sources,
		refs,
		composite,
		candidates,
		suggestions,
		nullableString(rec.MatchedCandidateID),
		nullableString(rec.SelectedEntryID),
		failure,
		imageFailures,
	}, nil
}
