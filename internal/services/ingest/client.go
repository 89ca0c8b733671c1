// Package ingest is the HTTP client for the optional lightweight ingestion
// endpoint used by the delegated upload strategy.
package ingest

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"leaflens/internal/services"
	"leaflens/internal/services/httpclient"
	"leaflens/internal/upload"
)

// Config configures the ingestion client.
type Config struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
}

// Client posts base64 objects to the ingestion endpoint.
type Client struct {
	http *httpclient.Client
}

// New constructs an ingestion client.
func New(cfg Config, opts ...httpclient.Option) *Client {
	return &Client{http: httpclient.New(httpclient.Config{
		Name:           "ingest",
		BaseURL:        cfg.BaseURL,
		APIKey:         cfg.APIKey,
		TimeoutSeconds: cfg.TimeoutSeconds,
	}, opts...)}
}

// Configured reports whether a base URL is set.
func (c *Client) Configured() bool { return c != nil && c.http.Configured() }

// Ingest posts req and returns the assigned id.
func (c *Client) Ingest(ctx context.Context, req upload.Base64Request) (upload.Stored, error) {
	var stored upload.Stored
	if err := c.http.DoJSON(ctx, http.MethodPost, "ingest", nil, req, &stored); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return upload.Stored{}, err
		}
		if httpclient.StatusCode(err) == http.StatusNotImplemented {
			return upload.Stored{}, errors.Join(upload.ErrUnsupported, err)
		}
		return upload.Stored{}, services.Wrap(services.ErrExternalTool, "upload", "ingest", "", err)
	}
	if strings.TrimSpace(stored.ID) == "" {
		return upload.Stored{}, services.Wrap(services.ErrExternalTool, "upload", "ingest", "response missing id", nil)
	}
	return stored, nil
}
