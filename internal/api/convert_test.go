package api_test

import (
	"testing"
	"time"

	"leaflens/internal/annotation"
	"leaflens/internal/api"
	"leaflens/internal/match"
	"leaflens/internal/scans"
	"leaflens/internal/services"
	"leaflens/internal/upload"
	"leaflens/internal/workflow"
)

func sampleRecord() *scans.Record {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &scans.Record{
		ID:      "scan-1",
		OwnerID: "owner-1",
		Status:  scans.StatusMatched,
		Sources: []scans.Source{
			{Index: 0, Filename: "leaf.jpg", ContentType: "image/jpeg", Size: 1200},
			{Index: 1, Filename: "bark.jpg", ContentType: "image/jpeg", Size: 900},
		},
		ImageRefs: []scans.ImageRef{
			{Index: 1, Ref: upload.Ref{Bucket: "b", Path: "owner-1/scan-1/1-bark.jpg", Strategy: upload.NameDelegated}},
		},
		Composite: &annotation.Composite{
			Labels:  []annotation.CompositeFeature{{Key: "oak", Description: "Oak", Score: 0.95, Occurrences: 2}},
			Sources: 2,
		},
		Candidates: []match.Candidate{
			{CatalogEntryID: "quercus-robur", Name: "Quercus robur", Confidence: 92, Reasoning: "label oak"},
			{CatalogEntryID: "acer-rubrum", Name: "Acer rubrum", Confidence: 31, LowConfidence: true},
		},
		MatchedCandidateID: "quercus-robur",
		ImageFailures: []scans.ImageFailure{
			{Index: 0, Stage: "uploading", Kind: services.KindUploadFailed, Message: "rejected"},
		},
		CreatedAt: created,
		UpdatedAt: created.Add(time.Minute),
	}
}

func TestFromRecordPairsImagesWithRefs(t *testing.T) {
	dto := api.FromRecord(sampleRecord())

	if dto.ID != "scan-1" || dto.Status != "matched" {
		t.Fatalf("unexpected identity: %+v", dto)
	}
	if len(dto.Images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(dto.Images))
	}
	if dto.Images[0].Path != "" {
		t.Fatalf("image 0 never uploaded, got path %q", dto.Images[0].Path)
	}
	if dto.Images[1].Strategy != upload.NameDelegated || dto.Images[1].Path != "owner-1/scan-1/1-bark.jpg" {
		t.Fatalf("image 1 should carry its ref, got %+v", dto.Images[1])
	}
	if dto.Composite == nil || dto.Composite.Labels[0].Occurrences != 2 {
		t.Fatalf("expected composite labels, got %+v", dto.Composite)
	}
	if len(dto.ImageFailures) != 1 || dto.ImageFailures[0].Kind != "upload_failed" {
		t.Fatalf("expected upload failure note, got %+v", dto.ImageFailures)
	}
	if dto.CreatedAt != "2026-03-01T12:00:00.000Z" {
		t.Fatalf("unexpected createdAt %q", dto.CreatedAt)
	}
	if !api.ParseTime(dto.UpdatedAt).Equal(time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)) {
		t.Fatalf("ParseTime did not read back %q", dto.UpdatedAt)
	}
}

func TestProcessResultUnmatchedCarriesSuggestions(t *testing.T) {
	rec := sampleRecord()
	rec.Status = scans.StatusUnmatched
	rec.MatchedCandidateID = ""
	rec.Suggestions = []scans.Suggestion{{ID: "ficus-carica", Name: "Ficus carica"}}

	resp := api.ProcessResult(rec)
	if resp.Status != "unmatched" {
		t.Fatalf("unexpected status %q", resp.Status)
	}
	if len(resp.Candidates) != 0 {
		t.Fatalf("unmatched result should not carry candidates, got %+v", resp.Candidates)
	}
	if len(resp.Suggestions) != 1 || resp.Suggestions[0].ID != "ficus-carica" {
		t.Fatalf("unexpected suggestions %+v", resp.Suggestions)
	}

	matched := api.ProcessResult(sampleRecord())
	if len(matched.Candidates) != 2 || matched.Candidates[0].Confidence != 92 {
		t.Fatalf("matched result should list candidates in rank order, got %+v", matched.Candidates)
	}
}

func TestFromStatusSummarySortsActiveScans(t *testing.T) {
	status := api.FromStatusSummary(workflow.StatusSummary{
		Running:     true,
		Workers:     2,
		ActiveScans: []string{"b", "a"},
		ScanStats:   map[scans.Status]int{scans.StatusCreated: 3},
		LastScan:    sampleRecord(),
	})
	if status.ActiveScans[0] != "a" || status.ActiveScans[1] != "b" {
		t.Fatalf("expected sorted active scans, got %v", status.ActiveScans)
	}
	if status.ScanStats["created"] != 3 {
		t.Fatalf("unexpected stats %v", status.ScanStats)
	}
	if status.LastScan == nil || status.LastScan.ID != "scan-1" {
		t.Fatalf("expected last scan, got %+v", status.LastScan)
	}
}
