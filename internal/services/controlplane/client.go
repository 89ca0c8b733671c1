package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"leaflens/internal/services"
	"leaflens/internal/services/httpclient"
	"leaflens/internal/upload"
)

// ErrPayloadTooLarge reports an inline upload rejected for size.
var ErrPayloadTooLarge = errors.New("inline payload too large")

// Config configures the control-plane client.
type Config struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
}

// Client talks to the primary control-plane API: upload credentials,
// finalize, and inline uploads.
type Client struct {
	http *httpclient.Client
}

// New constructs a control-plane client.
func New(cfg Config, opts ...httpclient.Option) *Client {
	return &Client{http: httpclient.New(httpclient.Config{
		Name:           "control-plane",
		BaseURL:        cfg.BaseURL,
		APIKey:         cfg.APIKey,
		TimeoutSeconds: cfg.TimeoutSeconds,
	}, opts...)}
}

// Configured reports whether a base URL is set.
func (c *Client) Configured() bool { return c != nil && c.http.Configured() }

// IssueCredential requests a short-lived credential scoped to req.Path.
// A 501, or a 4xx whose body names the path as unsupported, is reported as
// upload.ErrUnsupported.
func (c *Client) IssueCredential(ctx context.Context, req upload.CredentialRequest) (upload.Credential, error) {
	var cred upload.Credential
	if err := c.http.DoJSON(ctx, http.MethodPost, "v1/uploads/credentials", nil, req, &cred); err != nil {
		if unsupported(err) {
			return upload.Credential{}, fmt.Errorf("%w: %w", upload.ErrUnsupported, err)
		}
		return upload.Credential{}, classify("issue credential", err)
	}
	if strings.TrimSpace(cred.URL) == "" {
		return upload.Credential{}, services.Wrap(services.ErrExternalTool, "upload", "issue credential", "response missing url", nil)
	}
	return cred, nil
}

// Finalize converts an uploaded object into a stable reference.
func (c *Client) Finalize(ctx context.Context, req upload.FinalizeRequest) (upload.Stored, error) {
	var stored upload.Stored
	if err := c.http.DoJSON(ctx, http.MethodPost, "v1/uploads/finalize", nil, req, &stored); err != nil {
		return upload.Stored{}, classify("finalize", err)
	}
	return stored, nil
}

// UploadInline posts a base64 object through the control plane.
func (c *Client) UploadInline(ctx context.Context, req upload.Base64Request) (upload.Stored, error) {
	var stored upload.Stored
	if err := c.http.DoJSON(ctx, http.MethodPost, "v1/uploads/inline", nil, req, &stored); err != nil {
		if httpclient.StatusCode(err) == http.StatusRequestEntityTooLarge {
			return upload.Stored{}, fmt.Errorf("%w: %w", ErrPayloadTooLarge, err)
		}
		return upload.Stored{}, classify("inline upload", err)
	}
	return stored, nil
}

func unsupported(err error) bool {
	var statusErr *httpclient.StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	if statusErr.StatusCode == http.StatusNotImplemented {
		return true
	}
	if statusErr.StatusCode < 400 || statusErr.StatusCode >= 500 {
		return false
	}
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if json.Unmarshal([]byte(statusErr.Body), &body) == nil {
		return strings.EqualFold(body.Code, "unsupported") || strings.EqualFold(body.Error, "unsupported")
	}
	return strings.Contains(strings.ToLower(statusErr.Body), "unsupported")
}

func classify(op string, err error) error {
	switch code := httpclient.StatusCode(err); {
	case code == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "control-plane", op, "", err)
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return services.Wrap(services.ErrValidation, "control-plane", op, "", err)
	case code == http.StatusConflict:
		return services.Wrap(services.ErrInvalidTransition, "control-plane", op, "", err)
	case errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return services.Wrap(services.ErrExternalTool, "control-plane", op, "", err)
	}
}
