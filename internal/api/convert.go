package api

import (
	"slices"
	"time"

	"leaflens/internal/annotation"
	"leaflens/internal/catalog"
	"leaflens/internal/match"
	"leaflens/internal/scans"
	"leaflens/internal/workflow"
)

// FromRecord converts a scan record to its API representation.
func FromRecord(rec *scans.Record) Scan {
	if rec == nil {
		return Scan{}
	}

	dto := Scan{
		ID:                 rec.ID,
		OwnerID:            rec.OwnerID,
		Status:             string(rec.Status),
		Images:             images(rec),
		Candidates:         FromCandidates(rec.Candidates),
		Suggestions:        fromSuggestions(rec.Suggestions),
		MatchedCandidateID: rec.MatchedCandidateID,
		SelectedEntryID:    rec.SelectedEntryID,
		CreatedAt:          formatTime(rec.CreatedAt),
		UpdatedAt:          formatTime(rec.UpdatedAt),
	}
	if rec.Composite != nil {
		c := fromComposite(*rec.Composite)
		dto.Composite = &c
	}
	if rec.Failure != nil {
		dto.Failure = &Failure{
			Stage:   rec.Failure.Stage,
			Kind:    string(rec.Failure.Kind),
			Message: rec.Failure.Message,
			At:      formatTime(rec.Failure.At),
		}
	}
	for _, note := range rec.ImageFailures {
		dto.ImageFailures = append(dto.ImageFailures, ImageFailure{
			Index:   note.Index,
			Stage:   note.Stage,
			Kind:    string(note.Kind),
			Message: note.Message,
		})
	}
	return dto
}

// FromRecords converts a slice of scan records into API DTOs.
func FromRecords(recs []*scans.Record) []Scan {
	out := make([]Scan, 0, len(recs))
	for _, rec := range recs {
		out = append(out, FromRecord(rec))
	}
	return out
}

// ProcessResult builds the process(scanId) outcome for a finished record.
func ProcessResult(rec *scans.Record) ProcessResponse {
	if rec == nil {
		return ProcessResponse{}
	}
	resp := ProcessResponse{ID: rec.ID, Status: string(rec.Status)}
	if rec.Status == scans.StatusUnmatched {
		resp.Suggestions = fromSuggestions(rec.Suggestions)
		return resp
	}
	resp.Candidates = FromCandidates(rec.Candidates)
	return resp
}

// FromCandidates converts match candidates, preserving rank order.
func FromCandidates(cands []match.Candidate) []Candidate {
	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		out = append(out, Candidate{
			CatalogEntryID: c.CatalogEntryID,
			Name:           c.Name,
			Confidence:     c.Confidence,
			Reasoning:      c.Reasoning,
			LowConfidence:  c.LowConfidence,
		})
	}
	return out
}

// FromEntries converts catalog search hits.
func FromEntries(query string, entries []catalog.Entry) SearchResponse {
	resp := SearchResponse{Query: query, Entries: make([]CatalogEntry, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, CatalogEntry{ID: e.ID, Name: e.Name, Aliases: slices.Clone(e.Aliases)})
	}
	return resp
}

// FromStatusSummary converts workflow diagnostics.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		Running:     summary.Running,
		Workers:     summary.Workers,
		ActiveScans: slices.Sorted(slices.Values(summary.ActiveScans)),
		ScanStats:   make(map[string]int, len(summary.ScanStats)),
		LastError:   summary.LastError,
	}
	for s, count := range summary.ScanStats {
		status.ScanStats[string(s)] = count
	}
	if summary.LastScan != nil {
		last := FromRecord(summary.LastScan)
		status.LastScan = &last
	}
	return status
}

// FromDatabaseHealth converts store diagnostics.
func FromDatabaseHealth(h scans.DatabaseHealth) DatabaseStatus {
	return DatabaseStatus{
		Driver:        h.Driver,
		Location:      h.Location,
		Reachable:     h.Reachable,
		SchemaVersion: h.SchemaVersion,
		TotalRecords:  h.TotalRecords,
		Error:         h.Error,
	}
}

// FromSnapshot describes a catalog snapshot.
func FromSnapshot(snap *catalog.Snapshot, watching bool) CatalogStatus {
	status := CatalogStatus{Watching: watching}
	if snap == nil {
		return status
	}
	status.Source = snap.Source()
	status.Entries = snap.Len()
	status.LoadedAt = formatTime(snap.LoadedAt())
	return status
}

func images(rec *scans.Record) []Image {
	out := make([]Image, 0, len(rec.Sources))
	refs := make(map[int]scans.ImageRef, len(rec.ImageRefs))
	for _, ref := range rec.ImageRefs {
		refs[ref.Index] = ref
	}
	for _, src := range rec.Sources {
		img := Image{Index: src.Index, Filename: src.Filename, ContentType: src.ContentType, Size: src.Size}
		if ref, ok := refs[src.Index]; ok {
			img.Strategy = ref.Strategy
			img.Bucket = ref.Bucket
			img.Path = ref.Path
		}
		out = append(out, img)
	}
	return out
}

func fromSuggestions(in []scans.Suggestion) []Suggestion {
	if len(in) == 0 {
		return nil
	}
	out := make([]Suggestion, 0, len(in))
	for _, s := range in {
		out = append(out, Suggestion{ID: s.ID, Name: s.Name})
	}
	return out
}

func fromComposite(c annotation.Composite) Composite {
	return Composite{
		Labels:      fromFeatures(c.Labels),
		WebEntities: fromFeatures(c.WebEntities),
		Text:        c.Text,
		Sources:     c.Sources,
	}
}

func fromFeatures(in []annotation.CompositeFeature) []Feature {
	out := make([]Feature, 0, len(in))
	for _, f := range in {
		out = append(out, Feature{Description: f.Description, Score: f.Score, Occurrences: f.Occurrences})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// ParseTime reads an API timestamp back for display formatting.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}
