package analysis

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"leaflens/internal/services"
	"leaflens/internal/services/httpclient"
	"leaflens/internal/upload"
)

// maxImageBytes caps downloads of stored images.
const maxImageBytes = 20 << 20

// URLFetcher reads stored images over HTTP from <base>/<bucket>/<path>,
// passing the access token as a query parameter when present.
type URLFetcher struct {
	base string
	hc   *http.Client
}

// NewURLFetcher builds a fetcher rooted at base.
func NewURLFetcher(base string, hc *http.Client) *URLFetcher {
	return &URLFetcher{base: strings.TrimRight(strings.TrimSpace(base), "/"), hc: hc}
}

// URL returns the public address of ref.
func (f *URLFetcher) URL(ref upload.Ref) (string, error) {
	if f.base == "" {
		return "", services.Wrap(services.ErrConfiguration, "analysis", "resolve image", "analysis.image_base_url not set", nil)
	}
	segments := append([]string{ref.Bucket}, strings.Split(ref.Path, "/")...)
	endpoint, err := url.JoinPath(f.base, segments...)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "analysis", "resolve image", ref.String(), err)
	}
	if ref.Token != "" {
		endpoint += "?" + url.Values{"token": []string{ref.Token}}.Encode()
	}
	return endpoint, nil
}

// Fetch implements ImageFetcher.
func (f *URLFetcher) Fetch(ctx context.Context, ref upload.Ref) ([]byte, string, error) {
	endpoint, err := f.URL(ref)
	if err != nil {
		return nil, "", err
	}
	return httpclient.Download(ctx, f.hc, endpoint, maxImageBytes)
}
