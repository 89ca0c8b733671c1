package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Scan describes a scan record in a transport-friendly format.
type Scan struct {
	ID                 string         `json:"id"`
	OwnerID            string         `json:"ownerId"`
	Status             string         `json:"status"`
	Images             []Image        `json:"images"`
	Candidates         []Candidate    `json:"candidates"`
	Suggestions        []Suggestion   `json:"suggestions,omitempty"`
	MatchedCandidateID string         `json:"matchedCandidateId,omitempty"`
	SelectedEntryID    string         `json:"selectedEntryId,omitempty"`
	Composite          *Composite     `json:"compositeAnnotation,omitempty"`
	Failure            *Failure       `json:"failure,omitempty"`
	ImageFailures      []ImageFailure `json:"imageFailures,omitempty"`
	CreatedAt          string         `json:"createdAt,omitempty"`
	UpdatedAt          string         `json:"updatedAt,omitempty"`
}

// Image pairs a submitted photo with its stored reference, if uploaded.
type Image struct {
	Index       int    `json:"index"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
	Strategy    string `json:"strategy,omitempty"`
	Bucket      string `json:"bucket,omitempty"`
	Path        string `json:"path,omitempty"`
}

// Candidate is one ranked catalog match.
type Candidate struct {
	CatalogEntryID string `json:"catalogEntryId"`
	Name           string `json:"name"`
	Confidence     int    `json:"confidence"`
	Reasoning      string `json:"reasoning"`
	LowConfidence  bool   `json:"lowConfidence"`
}

// Suggestion is a keyword search result offered for unmatched scans.
type Suggestion struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Composite summarizes the merged annotation.
type Composite struct {
	Labels      []Feature `json:"labels"`
	WebEntities []Feature `json:"webEntities"`
	Text        string    `json:"text,omitempty"`
	Sources     int       `json:"sources"`
}

// Feature is one merged label or web entity.
type Feature struct {
	Description string  `json:"description"`
	Score       float64 `json:"score"`
	Occurrences int     `json:"occurrences"`
}

// Failure is the scan-level failure note.
type Failure struct {
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	At      string `json:"at,omitempty"`
}

// ImageFailure notes one photo that dropped out of a stage.
type ImageFailure struct {
	Index   int    `json:"index"`
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// CreateScanRequest is the JSON body accepted by createScan.
type CreateScanRequest struct {
	OwnerID string        `json:"ownerId"`
	Images  []ImageUpload `json:"images"`
}

// ImageUpload carries one base64-encoded photo.
type ImageUpload struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Base64      string `json:"base64"`
}

// CreateScanResponse acknowledges a persisted scan.
type CreateScanResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ProcessResponse is the outcome of running the pipeline for one scan.
type ProcessResponse struct {
	ID          string       `json:"id"`
	Status      string       `json:"status"`
	Candidates  []Candidate  `json:"candidates,omitempty"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
}

// RetryResponse reports whether retry cleared a recorded failure.
type RetryResponse struct {
	Cleared bool `json:"cleared"`
	Scan    Scan `json:"scan"`
}

// SelectionRequest is the body of saveSelectedMatch.
type SelectionRequest struct {
	CatalogEntryID string `json:"catalogEntryId"`
}

// ErrorResponse is the typed failure payload. Scan is set when the failure
// belongs to a persisted record.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Stage string `json:"stage,omitempty"`
	Scan  *Scan  `json:"scan,omitempty"`
}

// ScanListResponse wraps a collection of scans.
type ScanListResponse struct {
	Scans []Scan `json:"scans"`
}

// CatalogEntry is one catalog search hit.
type CatalogEntry struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
}

// SearchResponse wraps catalog search results.
type SearchResponse struct {
	Query   string         `json:"query"`
	Entries []CatalogEntry `json:"entries"`
}

// WorkflowStatus summarizes background processing.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	Workers     int            `json:"workers"`
	ActiveScans []string       `json:"activeScans,omitempty"`
	ScanStats   map[string]int `json:"scanStats"`
	LastError   string         `json:"lastError,omitempty"`
	LastScan    *Scan          `json:"lastScan,omitempty"`
}

// DatabaseStatus mirrors scan database diagnostics.
type DatabaseStatus struct {
	Driver        string `json:"driver"`
	Location      string `json:"location"`
	Reachable     bool   `json:"reachable"`
	SchemaVersion int    `json:"schemaVersion"`
	TotalRecords  int    `json:"totalRecords"`
	Error         string `json:"error,omitempty"`
}

// CatalogStatus describes the live catalog snapshot.
type CatalogStatus struct {
	Source   string `json:"source,omitempty"`
	Entries  int    `json:"entries"`
	LoadedAt string `json:"loadedAt,omitempty"`
	Watching bool   `json:"watching"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	LockFilePath string         `json:"lockFilePath"`
	Workflow     WorkflowStatus `json:"workflow"`
	Database     DatabaseStatus `json:"database"`
	Catalog      CatalogStatus  `json:"catalog"`
}
