// Package vision adapts Google Cloud Vision label, web, and text detection
// to the analysis backend contract.
package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	visionapi "google.golang.org/api/vision/v1"

	"leaflens/internal/analysis"
	"leaflens/internal/annotation"
	"leaflens/internal/services"
	"leaflens/internal/upload"
)

const defaultMaxResults = 10

// Backend annotates images with Cloud Vision.
type Backend struct {
	svc        *visionapi.Service
	fetcher    analysis.ImageFetcher
	maxResults int64
}

// Config selects credentials and request sizing.
type Config struct {
	APIKey          string
	CredentialsFile string
	MaxResults      int
	// Fetcher, when set, sends image bytes in the request instead of a gs:// URI.
	Fetcher analysis.ImageFetcher
}

// New builds a Backend. Extra client options are appended after the
// credential options, which lets tests point the client at a local endpoint.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Backend, error) {
	var clientOpts []option.ClientOption
	switch {
	case strings.TrimSpace(cfg.APIKey) != "":
		clientOpts = append(clientOpts, option.WithAPIKey(strings.TrimSpace(cfg.APIKey)))
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(strings.TrimSpace(cfg.CredentialsFile)))
	}
	clientOpts = append(clientOpts, opts...)
	svc, err := visionapi.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "analysis", "vision client", "cannot create cloud vision client", err)
	}
	maxResults := int64(cfg.MaxResults)
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &Backend{svc: svc, fetcher: cfg.Fetcher, maxResults: maxResults}, nil
}

// Name implements analysis.Backend.
func (b *Backend) Name() string { return "vision" }

// Annotate implements analysis.Backend.
func (b *Backend) Annotate(ctx context.Context, ref upload.Ref) (annotation.Set, error) {
	image, err := b.image(ctx, ref)
	if err != nil {
		return annotation.Set{}, err
	}
	req := &visionapi.BatchAnnotateImagesRequest{
		Requests: []*visionapi.AnnotateImageRequest{{
			Image: image,
			Features: []*visionapi.Feature{
				{Type: "LABEL_DETECTION", MaxResults: b.maxResults},
				{Type: "WEB_DETECTION", MaxResults: b.maxResults},
				{Type: "TEXT_DETECTION"},
			},
		}},
	}
	resp, err := b.svc.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		return annotation.Set{}, classify(err)
	}
	if len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return annotation.Set{}, nil
	}
	result := resp.Responses[0]
	if result.Error != nil && result.Error.Code != 0 {
		return annotation.Set{}, analysis.NewServiceError(strconv.FormatInt(result.Error.Code, 10), errors.New(result.Error.Message))
	}
	return convert(result), nil
}

func (b *Backend) image(ctx context.Context, ref upload.Ref) (*visionapi.Image, error) {
	if b.fetcher != nil {
		data, _, err := b.fetcher.Fetch(ctx, ref)
		if err != nil {
			return nil, analysis.NewServiceError("fetch", err)
		}
		return &visionapi.Image{Content: base64.StdEncoding.EncodeToString(data)}, nil
	}
	if ref.Bucket == "" || ref.Path == "" {
		return nil, services.Wrap(services.ErrValidation, "analysis", "vision image", "stored reference has no bucket path", nil)
	}
	uri := fmt.Sprintf("gs://%s/%s", ref.Bucket, strings.TrimLeft(ref.Path, "/"))
	return &visionapi.Image{Source: &visionapi.ImageSource{ImageUri: uri}}, nil
}

func convert(resp *visionapi.AnnotateImageResponse) annotation.Set {
	set := annotation.Set{}
	for _, label := range resp.LabelAnnotations {
		if label == nil || strings.TrimSpace(label.Description) == "" {
			continue
		}
		set.Labels = append(set.Labels, annotation.Feature{Description: label.Description, Score: clamp(label.Score)})
	}
	if resp.WebDetection != nil {
		for _, entity := range resp.WebDetection.WebEntities {
			if entity == nil || strings.TrimSpace(entity.Description) == "" {
				continue
			}
			set.WebEntities = append(set.WebEntities, annotation.Feature{Description: entity.Description, Score: clamp(entity.Score)})
		}
	}
	switch {
	case resp.FullTextAnnotation != nil && strings.TrimSpace(resp.FullTextAnnotation.Text) != "":
		set.Text = strings.TrimSpace(resp.FullTextAnnotation.Text)
	case len(resp.TextAnnotations) > 0 && resp.TextAnnotations[0] != nil:
		set.Text = strings.TrimSpace(resp.TextAnnotations[0].Description)
	}
	return set
}

// clamp bounds scores to [0,1]; web entity scores are not normalized upstream.
func clamp(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 504 {
			return fmt.Errorf("%w: %w", services.ErrTimeout, err)
		}
		return analysis.NewServiceError(strconv.Itoa(apiErr.Code), err)
	}
	return analysis.NewServiceError("", err)
}
