package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"leaflens/internal/api"
	"leaflens/internal/lifecycle"
	"leaflens/internal/scans"
	"leaflens/internal/services/httpclient"
)

// scanBackend is the set of scan operations the CLI drives. Failures that
// belong to a stored scan return that scan alongside the error.
type scanBackend interface {
	Mode() string
	Create(ctx context.Context, owner string, images []lifecycle.Image, wait bool) (api.Scan, error)
	Get(ctx context.Context, id string) (api.Scan, error)
	List(ctx context.Context, opts scans.ListOptions) ([]api.Scan, error)
	Process(ctx context.Context, id string) (api.Scan, error)
	Select(ctx context.Context, id, entryID string) (api.Scan, error)
	Retry(ctx context.Context, id string) (api.Scan, bool, error)
}

type localBackend struct {
	controller *lifecycle.Controller
}

func (b *localBackend) Mode() string { return "local" }

func (b *localBackend) Create(ctx context.Context, owner string, images []lifecycle.Image, wait bool) (api.Scan, error) {
	rec, err := b.controller.CreateScan(ctx, owner, images)
	if err != nil {
		return api.Scan{}, err
	}
	if !wait {
		return api.FromRecord(rec), nil
	}
	return b.Process(ctx, rec.ID)
}

func (b *localBackend) Get(ctx context.Context, id string) (api.Scan, error) {
	rec, err := b.controller.GetScan(ctx, id)
	if err != nil {
		return api.Scan{}, err
	}
	return api.FromRecord(rec), nil
}

func (b *localBackend) List(ctx context.Context, opts scans.ListOptions) ([]api.Scan, error) {
	recs, err := b.controller.ListScans(ctx, opts)
	if err != nil {
		return nil, err
	}
	return api.FromRecords(recs), nil
}

func (b *localBackend) Process(ctx context.Context, id string) (api.Scan, error) {
	rec, err := b.controller.Process(ctx, id)
	return fromMaybeRecord(rec), err
}

func (b *localBackend) Select(ctx context.Context, id, entryID string) (api.Scan, error) {
	rec, err := b.controller.SaveSelectedMatch(ctx, id, entryID)
	return fromMaybeRecord(rec), err
}

func (b *localBackend) Retry(ctx context.Context, id string) (api.Scan, bool, error) {
	rec, cleared, err := b.controller.Retry(ctx, id)
	return fromMaybeRecord(rec), cleared, err
}

func fromMaybeRecord(rec *scans.Record) api.Scan {
	if rec == nil {
		return api.Scan{}
	}
	return api.FromRecord(rec)
}

// remoteBackend drives a running daemon over its HTTP API.
type remoteBackend struct {
	http *httpclient.Client
}

func newRemoteBackend(baseURL, token string) *remoteBackend {
	return &remoteBackend{http: httpclient.New(httpclient.Config{
		Name:    "leaflens daemon",
		BaseURL: baseURL,
		APIKey:  token,
		// Synchronous processing waits on analysis; match the daemon's write timeout.
		TimeoutSeconds: 300,
	}, httpclient.WithRetryMaxAttempts(1))}
}

func (b *remoteBackend) Mode() string { return "daemon " + b.http.BaseURL() }

func (b *remoteBackend) Create(ctx context.Context, owner string, images []lifecycle.Image, wait bool) (api.Scan, error) {
	req := api.CreateScanRequest{OwnerID: owner, Images: make([]api.ImageUpload, 0, len(images))}
	for _, img := range images {
		req.Images = append(req.Images, api.ImageUpload{
			Filename:    img.Filename,
			ContentType: img.ContentType,
			Base64:      base64.StdEncoding.EncodeToString(img.Data),
		})
	}
	var query url.Values
	if wait {
		query = url.Values{"process": []string{"sync"}}
	}
	var created api.CreateScanResponse
	if err := b.http.DoJSON(ctx, http.MethodPost, "api/scans", query, req, &created); err != nil {
		return b.fail(err)
	}
	return b.Get(ctx, created.ID)
}

func (b *remoteBackend) Get(ctx context.Context, id string) (api.Scan, error) {
	var scan api.Scan
	if err := b.http.DoJSON(ctx, http.MethodGet, scanPath(id), nil, nil, &scan); err != nil {
		return b.fail(err)
	}
	return scan, nil
}

func (b *remoteBackend) List(ctx context.Context, opts scans.ListOptions) ([]api.Scan, error) {
	query := url.Values{}
	if len(opts.Statuses) > 0 {
		names := make([]string, 0, len(opts.Statuses))
		for _, status := range opts.Statuses {
			names = append(names, string(status))
		}
		query.Set("status", strings.Join(names, ","))
	}
	if opts.OwnerID != "" {
		query.Set("owner", opts.OwnerID)
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	var resp api.ScanListResponse
	if err := b.http.DoJSON(ctx, http.MethodGet, "api/scans", query, nil, &resp); err != nil {
		_, err = b.fail(err)
		return nil, err
	}
	return resp.Scans, nil
}

func (b *remoteBackend) Process(ctx context.Context, id string) (api.Scan, error) {
	if err := b.http.DoJSON(ctx, http.MethodPost, scanPath(id)+"/process", nil, nil, nil); err != nil {
		return b.fail(err)
	}
	return b.Get(ctx, id)
}

func (b *remoteBackend) Select(ctx context.Context, id, entryID string) (api.Scan, error) {
	var scan api.Scan
	req := api.SelectionRequest{CatalogEntryID: entryID}
	if err := b.http.DoJSON(ctx, http.MethodPut, scanPath(id)+"/selection", nil, req, &scan); err != nil {
		return b.fail(err)
	}
	return scan, nil
}

func (b *remoteBackend) Retry(ctx context.Context, id string) (api.Scan, bool, error) {
	var resp api.RetryResponse
	if err := b.http.DoJSON(ctx, http.MethodPost, scanPath(id)+"/retry", nil, nil, &resp); err != nil {
		scan, err := b.fail(err)
		return scan, false, err
	}
	return resp.Scan, resp.Cleared, nil
}

// fail unwraps the daemon's typed failure body so the CLI reports the same
// kind and message the API returned.
func (b *remoteBackend) fail(err error) (api.Scan, error) {
	var statusErr *httpclient.StatusError
	if !errors.As(err, &statusErr) {
		return api.Scan{}, err
	}
	var resp api.ErrorResponse
	if json.Unmarshal([]byte(statusErr.Body), &resp) != nil || resp.Error == "" {
		return api.Scan{}, err
	}
	var scan api.Scan
	if resp.Scan != nil {
		scan = *resp.Scan
	}
	if resp.Stage != "" {
		return scan, fmt.Errorf("%s failed (%s): %s", resp.Stage, resp.Kind, resp.Error)
	}
	return scan, fmt.Errorf("%s: %s", resp.Kind, resp.Error)
}

func scanPath(id string) string {
	return "api/scans/" + url.PathEscape(id)
}
