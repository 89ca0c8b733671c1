// Package gemini asks a Gemini multimodal model for label, entity, and text
// annotations and returns them through the analysis backend contract.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"leaflens/internal/analysis"
	"leaflens/internal/annotation"
	"leaflens/internal/services"
	"leaflens/internal/services/httpclient"
	"leaflens/internal/upload"
)

const instruction = `You annotate photographs of plants for a botanical catalog matcher.
Return only JSON with this shape:
{"labels":[{"description":string,"score":number}],"web_entities":[{"description":string,"score":number}],"text":string}
labels are generic visual concepts (leaf, flower, succulent). web_entities are specific
taxa or common plant names you recognise. Scores are confidences between 0 and 1.
text is any legible text in the image such as a plant tag, or an empty string.
List at most %d labels and %d web_entities. Do not add commentary.`

// Backend annotates images with a Gemini model.
type Backend struct {
	client     *genai.Client
	model      string
	fetcher    analysis.ImageFetcher
	maxResults int
}

// Config selects the model and credentials.
type Config struct {
	APIKey     string
	Model      string
	MaxResults int
	Fetcher    analysis.ImageFetcher
}

// New builds a Backend. The fetcher is required because Gemini receives the
// image bytes inline.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Backend, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "analysis", "gemini client", "gemini.api_key not set", nil)
	}
	if cfg.Fetcher == nil {
		return nil, services.Wrap(services.ErrConfiguration, "analysis", "gemini client", "no image fetcher configured", nil)
	}
	clientOpts := append([]option.ClientOption{option.WithAPIKey(strings.TrimSpace(cfg.APIKey))}, opts...)
	client, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "analysis", "gemini client", "cannot create gemini client", err)
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}
	return &Backend{client: client, model: strings.TrimSpace(cfg.Model), fetcher: cfg.Fetcher, maxResults: maxResults}, nil
}

// Close releases the underlying client.
func (b *Backend) Close() error { return b.client.Close() }

// Name implements analysis.Backend.
func (b *Backend) Name() string { return "gemini" }

// Annotate implements analysis.Backend.
func (b *Backend) Annotate(ctx context.Context, ref upload.Ref) (annotation.Set, error) {
	data, contentType, err := b.fetcher.Fetch(ctx, ref)
	if err != nil {
		return annotation.Set{}, analysis.NewServiceError("fetch", err)
	}
	if contentType == "" || !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(data)
	}

	model := b.client.GenerativeModel(b.model)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptr(float32(0)),
		ResponseMIMEType: "application/json",
	}
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(fmt.Sprintf(instruction, b.maxResults, b.maxResults))},
	}

	resp, err := model.GenerateContent(ctx,
		genai.Text("Annotate this plant photo."),
		genai.Blob{MIMEType: contentType, Data: data},
	)
	if err != nil {
		return annotation.Set{}, classify(err)
	}
	return decode(firstText(resp))
}

func decode(text string) (annotation.Set, error) {
	if strings.TrimSpace(text) == "" {
		return annotation.Set{}, nil
	}
	var payload analysis.Payload
	if err := httpclient.DecodeModelJSON(text, &payload); err != nil {
		return annotation.Set{}, analysis.NewServiceError("bad_json", err)
	}
	return payload.Set(), nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return analysis.NewServiceError(strconv.Itoa(apiErr.Code), err)
	}
	return analysis.NewServiceError("", err)
}

func ptr[T any](v T) *T { return &v }
