package scans

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const recordColumns = "id, owner_id, status, sources_json, image_refs_json, composite_json, candidates_json, suggestions_json, matched_candidate_id, selected_entry_id, failure_json, image_failures_json, created_at, updated_at, last_heartbeat"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		id               string
		ownerID          sql.NullString
		statusStr        string
		sourcesJSON      sql.NullString
		refsJSON         sql.NullString
		compositeJSON    sql.NullString
		candidatesJSON   sql.NullString
		suggestionsJSON  sql.NullString
		matchedID        sql.NullString
		selectedID       sql.NullString
		failureJSON      sql.NullString
		imageFailsJSON   sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
		lastHeartbeatRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&ownerID,
		&statusStr,
		&sourcesJSON,
		&refsJSON,
		&compositeJSON,
		&candidatesJSON,
		&suggestionsJSON,
		&matchedID,
		&selectedID,
		&failureJSON,
		&imageFailsJSON,
		&createdRaw,
		&updatedRaw,
		&lastHeartbeatRaw,
	); err != nil {
		return nil, err
	}

	rec := &Record{
		ID:                 id,
		OwnerID:            ownerID.String,
		Status:             Status(statusStr),
		MatchedCandidateID: matchedID.String,
		SelectedEntryID:    selectedID.String,
	}
	fields := []struct {
		name string
		raw  sql.NullString
		dst  any
	}{
		{"sources", sourcesJSON, &rec.Sources},
		{"image refs", refsJSON, &rec.ImageRefs},
		{"composite", compositeJSON, &rec.Composite},
		{"candidates", candidatesJSON, &rec.Candidates},
		{"suggestions", suggestionsJSON, &rec.Suggestions},
		{"failure", failureJSON, &rec.Failure},
		{"image failures", imageFailsJSON, &rec.ImageFailures},
	}
	for _, field := range fields {
		if err := decodeColumn(field.raw, field.dst); err != nil {
			return nil, fmt.Errorf("decode %s for scan %s: %w", field.name, id, err)
		}
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		rec.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		rec.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			rec.LastHeartbeat = &heartbeat
		}
	}
	return rec, nil
}

func decodeColumn(raw sql.NullString, dst any) error {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw.String), dst)
}

// encodeColumn stores empty slices and nil pointers as NULL.
func encodeColumn[T any](value T, empty bool) (any, error) {
	if empty {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

// timeLayout is fixed width so stored timestamps order lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func statusArgs(statuses []Status) []any {
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = string(status)
	}
	return args
}
