// Package catalogapi queries a remote catalog search endpoint. It backs the
// keyword fallback when a deployment keeps its catalog behind an API instead
// of a local snapshot file.
package catalogapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"leaflens/internal/catalog"
	"leaflens/internal/services"
	"leaflens/internal/services/httpclient"
)

// Config configures the search client.
type Config struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
}

// Client implements catalog.Searcher over HTTP.
type Client struct {
	http *httpclient.Client
}

type searchResponse struct {
	Entries []catalog.Entry `json:"entries"`
}

// New constructs a search client.
func New(cfg Config, opts ...httpclient.Option) *Client {
	return &Client{http: httpclient.New(httpclient.Config{
		Name:           "catalog",
		BaseURL:        cfg.BaseURL,
		APIKey:         cfg.APIKey,
		TimeoutSeconds: cfg.TimeoutSeconds,
	}, opts...)}
}

// Search implements catalog.Searcher. A blank query returns no entries
// without a request.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]catalog.Entry, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit == 0 {
		return nil, nil
	}
	params := url.Values{"q": []string{query}}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var resp searchResponse
	if err := c.http.DoJSON(ctx, http.MethodGet, "search", params, nil, &resp); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrExternalTool, "matching", "catalog search", "", err)
	}
	entries := resp.Entries[:0:0]
	for _, entry := range resp.Entries {
		if strings.TrimSpace(entry.ID) == "" {
			continue
		}
		entries = append(entries, entry)
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
