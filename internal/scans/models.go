package scans

import (
	"slices"
	"strings"
	"time"

	"leaflens/internal/annotation"
	"leaflens/internal/match"
	"leaflens/internal/services"
	"leaflens/internal/upload"
)

// Status represents the lifecycle of a scan record.
type Status string

const (
	StatusCreated         Status = "created"
	StatusUploading       Status = "uploading"
	StatusUploaded        Status = "uploaded"
	StatusAnalyzing       Status = "analyzing"
	StatusAnalyzed        Status = "analyzed"
	StatusMatching        Status = "matching"
	StatusMatched         Status = "matched"
	StatusUnmatched       Status = "unmatched"
	StatusManuallyMatched Status = "manually_matched"
)

var allStatuses = []Status{
	StatusCreated,
	StatusUploading,
	StatusUploaded,
	StatusAnalyzing,
	StatusAnalyzed,
	StatusMatching,
	StatusMatched,
	StatusUnmatched,
	StatusManuallyMatched,
}

// transitions lists the permitted moves. Pipeline stages move forward one
// step at a time; manual selection is the only move out of a terminal state.
var transitions = map[Status][]Status{
	StatusCreated:   {StatusUploading},
	StatusUploading: {StatusUploaded},
	StatusUploaded:  {StatusAnalyzing},
	StatusAnalyzing: {StatusAnalyzed},
	StatusAnalyzed:  {StatusMatching},
	StatusMatching:  {StatusMatched, StatusUnmatched},
	StatusMatched:   {StatusManuallyMatched},
	StatusUnmatched: {StatusManuallyMatched},

	StatusManuallyMatched: {StatusManuallyMatched},
}

// rollback maps each in-flight status to the completed status before it.
var rollback = map[Status]Status{
	StatusUploading: StatusCreated,
	StatusAnalyzing: StatusUploaded,
	StatusMatching:  StatusAnalyzed,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	return slices.Clone(allStatuses)
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	return normalized, slices.Contains(allStatuses, normalized)
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// IsInFlight reports whether a stage is running for the status.
func (s Status) IsInFlight() bool {
	_, ok := rollback[s]
	return ok
}

// IsTerminal reports whether the automated pipeline is finished.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusMatched, StatusUnmatched, StatusManuallyMatched:
		return true
	default:
		return false
	}
}

// Previous returns the completed status an in-flight status rolls back to.
func (s Status) Previous() (Status, bool) {
	prev, ok := rollback[s]
	return prev, ok
}

// Source describes one raw image staged for a scan.
type Source struct {
	Index       int    `json:"index"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
}

// ImageRef is a stored image reference tagged with its photo index.
type ImageRef struct {
	Index int `json:"index"`
	upload.Ref
}

// ImageFailure notes one photo that dropped out of a stage.
type ImageFailure struct {
	Index   int                  `json:"index"`
	Stage   string               `json:"stage"`
	Kind    services.FailureKind `json:"kind"`
	Message string               `json:"message"`
}

// Failure records why a stage stopped the scan.
type Failure struct {
	Stage   string               `json:"stage"`
	Kind    services.FailureKind `json:"kind"`
	Message string               `json:"message"`
	At      time.Time            `json:"at"`
}

// Suggestion is a keyword search result offered when no candidate is
// confident.
type Suggestion struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Record is the persistent scan entity.
type Record struct {
	ID                 string                `json:"id"`
	OwnerID            string                `json:"ownerId"`
	Status             Status                `json:"status"`
	Sources            []Source              `json:"sources"`
	ImageRefs          []ImageRef            `json:"imageRefs"`
	Composite          *annotation.Composite `json:"compositeAnnotation,omitempty"`
	Candidates         []match.Candidate     `json:"candidates"`
	Suggestions        []Suggestion          `json:"suggestions,omitempty"`
	MatchedCandidateID string                `json:"matchedCandidateId,omitempty"`
	SelectedEntryID    string                `json:"selectedEntryId,omitempty"`
	Failure            *Failure              `json:"failure,omitempty"`
	ImageFailures      []ImageFailure        `json:"imageFailures,omitempty"`
	CreatedAt          time.Time             `json:"createdAt"`
	UpdatedAt          time.Time             `json:"updatedAt"`
	LastHeartbeat      *time.Time            `json:"lastHeartbeat,omitempty"`
}

// Resumable reports whether the automated pipeline can pick the record up.
// A recorded failure holds the record until a retry clears it.
func (r *Record) Resumable() bool {
	if r == nil || r.Failure != nil {
		return false
	}
	switch r.Status {
	case StatusCreated, StatusUploaded, StatusAnalyzed:
		return true
	default:
		return false
	}
}

// SetFailed records a scan-level failure without moving the status.
func (r *Record) SetFailed(stage string, err error) {
	r.Failure = &Failure{
		Stage:   stage,
		Kind:    services.KindOf(err),
		Message: err.Error(),
		At:      time.Now().UTC(),
	}
}

// NoteImageFailure appends a per-image failure, replacing an earlier note
// for the same index and stage.
func (r *Record) NoteImageFailure(index int, stage string, err error) {
	note := ImageFailure{Index: index, Stage: stage, Kind: services.KindOf(err), Message: err.Error()}
	for i, existing := range r.ImageFailures {
		if existing.Index == index && existing.Stage == stage {
			r.ImageFailures[i] = note
			return
		}
	}
	r.ImageFailures = append(r.ImageFailures, note)
}

// TopCandidate returns the first ranked candidate, if any.
func (r *Record) TopCandidate() (match.Candidate, bool) {
	if r == nil || len(r.Candidates) == 0 {
		return match.Candidate{}, false
	}
	return r.Candidates[0], true
}

// HealthSummary describes aggregated record counts.
type HealthSummary struct {
	Total    int
	InFlight int
	Pending  int
	Failed   int
	Terminal int
}

// DatabaseHealth captures diagnostic information about the scan database.
type DatabaseHealth struct {
	Driver         string
	Location       string
	Reachable      bool
	SchemaVersion  int
	TotalRecords   int
	IntegrityCheck bool
	Error          string
}
