package catalog

import (
	"context"
	"time"
)

// Entry is one identifiable reference in the catalog.
type Entry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Aliases   []string  `json:"aliases,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Document is the on-disk catalog file.
type Document struct {
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}

// Searcher is the catalog read API used as the keyword fallback when matching
// finds no confident candidate.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Entry, error)
}
