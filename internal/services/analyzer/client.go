// Package analyzer is the analysis backend for a generic HTTP annotation
// service. The service receives the stored reference and returns labels, web
// entities, and detected text as JSON.
package analyzer

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"leaflens/internal/analysis"
	"leaflens/internal/annotation"
	"leaflens/internal/services"
	"leaflens/internal/services/httpclient"
	"leaflens/internal/upload"
)

// Config configures the analyzer client.
type Config struct {
	BaseURL string
	APIKey  string
}

// Request is the body posted to <base>/analyze.
type Request struct {
	ID       string `json:"id,omitempty"`
	Bucket   string `json:"bucket,omitempty"`
	Path     string `json:"path,omitempty"`
	Token    string `json:"token,omitempty"`
	Strategy string `json:"strategy,omitempty"`
}

// Backend posts stored references to the analyzer.
type Backend struct {
	http *httpclient.Client
}

// New builds a Backend. The invoker owns timeouts and retries, so the
// transport makes one attempt per call and never applies its own deadline.
func New(cfg Config, opts ...httpclient.Option) *Backend {
	base := []httpclient.Option{
		httpclient.WithRetryMaxAttempts(1),
		httpclient.WithHTTPClient(&http.Client{}),
	}
	return &Backend{http: httpclient.New(httpclient.Config{
		Name:    "analyzer",
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
	}, append(base, opts...)...)}
}

// Name implements analysis.Backend.
func (b *Backend) Name() string { return "http" }

// Annotate implements analysis.Backend.
func (b *Backend) Annotate(ctx context.Context, ref upload.Ref) (annotation.Set, error) {
	if !b.http.Configured() {
		return annotation.Set{}, services.Wrap(services.ErrConfiguration, "analysis", "analyzer", "analyzer.url not set", nil)
	}
	req := Request{ID: ref.ID, Bucket: ref.Bucket, Path: ref.Path, Token: ref.Token, Strategy: ref.Strategy}
	var payload analysis.Payload
	if err := b.http.DoJSON(ctx, http.MethodPost, "analyze", nil, req, &payload); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return annotation.Set{}, err
		}
		if code := httpclient.StatusCode(err); code != 0 {
			return annotation.Set{}, analysis.NewServiceError(strconv.Itoa(code), err)
		}
		return annotation.Set{}, analysis.NewServiceError("", err)
	}
	return payload.Set(), nil
}
