package upload

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"

	"leaflens/internal/config"
	"leaflens/internal/imaging"
	"leaflens/internal/logging"
	"leaflens/internal/services/httpclient"
)

// Strategy names as used in upload.strategies.
const (
	NameSigned    = config.StrategySigned
	NameDelegated = config.StrategyDelegated
	NameInline    = config.StrategyInline
)

// Signed requests a single-use credential, writes the bytes straight to
// storage, then finalizes the object.
type Signed struct {
	issuer CredentialIssuer
	bucket string
	hc     *http.Client
}

// NewSigned builds the signed-transfer strategy.
func NewSigned(issuer CredentialIssuer, bucket string, hc *http.Client) *Signed {
	return &Signed{issuer: issuer, bucket: bucket, hc: hc}
}

func (s *Signed) Name() string { return NameSigned }

func (s *Signed) Viable(imaging.CompressedImage, Hint) bool { return s.issuer != nil }

func (s *Signed) Attempt(ctx context.Context, image imaging.CompressedImage, hint Hint) (Ref, error) {
	path := ObjectPath(hint)
	cred, err := s.issuer.IssueCredential(ctx, CredentialRequest{
		Bucket:      s.bucket,
		Path:        path,
		ContentType: image.ContentType,
		Size:        image.Size(),
	})
	if err != nil {
		return Ref{}, fmt.Errorf("request upload credential: %w", err)
	}
	headers := map[string]string{"Content-Type": image.ContentType}
	for k, v := range cred.Headers {
		headers[k] = v
	}
	if err := httpclient.Transfer(ctx, s.hc, cred.Method, cred.URL, headers, image.Data); err != nil {
		return Ref{}, fmt.Errorf("transfer to storage: %w", err)
	}
	stored, err := s.issuer.Finalize(ctx, FinalizeRequest{
		Bucket: s.bucket,
		Path:   path,
		Token:  cred.Token,
		Size:   image.Size(),
	})
	if err != nil {
		return Ref{}, fmt.Errorf("finalize upload: %w", err)
	}
	return stored.ref(s.bucket, path), nil
}

// Delegated posts the whole object base64-encoded to the ingestion endpoint.
// It only takes objects small enough that the encoding overhead is tolerable.
type Delegated struct {
	ingestor Ingestor
	bucket   string
	maxBytes int
}

// NewDelegated builds the delegated small-object strategy.
func NewDelegated(ingestor Ingestor, bucket string, maxBytes int) *Delegated {
	return &Delegated{ingestor: ingestor, bucket: bucket, maxBytes: maxBytes}
}

func (d *Delegated) Name() string { return NameDelegated }

func (d *Delegated) Viable(image imaging.CompressedImage, _ Hint) bool {
	return d.ingestor != nil && (d.maxBytes <= 0 || image.Size() <= d.maxBytes)
}

func (d *Delegated) Attempt(ctx context.Context, image imaging.CompressedImage, hint Hint) (Ref, error) {
	path := ObjectPath(hint)
	stored, err := d.ingestor.Ingest(ctx, base64Request(image, hint, d.bucket, path))
	if err != nil {
		return Ref{}, fmt.Errorf("delegated ingest: %w", err)
	}
	return stored.ref(d.bucket, path), nil
}

// Recompressor shrinks an image to a tighter target.
type Recompressor interface {
	Compress(raw imaging.RawImage, targetBytes int) (imaging.CompressedImage, error)
}

// Inline posts the object base64-encoded to the primary control plane. The
// encoded payload must fit the ceiling; oversized images are recompressed
// with a tighter target, shrinking 10% per retry, within the attempt budget.
type Inline struct {
	uploader   InlineUploader
	compressor Recompressor
	bucket     string
	ceiling    int
	budget     int
	logger     *slog.Logger
}

// NewInline builds the inline fallback strategy.
func NewInline(uploader InlineUploader, compressor Recompressor, bucket string, ceiling, budget int, logger *slog.Logger) *Inline {
	if budget <= 0 {
		budget = 1
	}
	return &Inline{
		uploader:   uploader,
		compressor: compressor,
		bucket:     bucket,
		ceiling:    ceiling,
		budget:     budget,
		logger:     logging.NewComponentLogger(logger, "upload-inline"),
	}
}

func (i *Inline) Name() string { return NameInline }

func (i *Inline) Viable(imaging.CompressedImage, Hint) bool { return i.uploader != nil }

func (i *Inline) Attempt(ctx context.Context, image imaging.CompressedImage, hint Hint) (Ref, error) {
	fitted, err := i.fit(image)
	if err != nil {
		return Ref{}, err
	}
	path := ObjectPath(hint)
	stored, err := i.uploader.UploadInline(ctx, base64Request(fitted, hint, i.bucket, path))
	if err != nil {
		return Ref{}, fmt.Errorf("inline upload: %w", err)
	}
	ref := stored.ref(i.bucket, path)
	ref.Size = fitted.Size()
	ref.ContentType = fitted.ContentType
	return ref, nil
}

// fit returns image unchanged when its encoded form fits the ceiling, otherwise
// recompresses toward floor(ceiling*3/4) and then 10% smaller per retry.
func (i *Inline) fit(image imaging.CompressedImage) (imaging.CompressedImage, error) {
	if i.ceiling <= 0 || EncodedLen(image.Size()) <= i.ceiling {
		return image, nil
	}
	if i.compressor == nil {
		return imaging.CompressedImage{}, fmt.Errorf("inline payload %d bytes exceeds ceiling %d", EncodedLen(image.Size()), i.ceiling)
	}
	target := i.ceiling * 3 / 4
	current := image
	for attempt := 1; attempt <= i.budget; attempt++ {
		next, err := i.compressor.Compress(imaging.RawImage{
			Data:        current.Data,
			ContentType: current.ContentType,
			Size:        current.Size(),
		}, target)
		if err != nil {
			return imaging.CompressedImage{}, fmt.Errorf("recompress for inline ceiling: %w", err)
		}
		i.logger.Debug("recompressed for inline ceiling",
			logging.Int("attempt", attempt),
			logging.Int("target", target),
			logging.Int("size", next.Size()))
		if EncodedLen(next.Size()) <= i.ceiling {
			return next, nil
		}
		current = next
		target = target * 9 / 10
	}
	return imaging.CompressedImage{}, &imaging.CompressionExhaustedError{
		TargetBytes:   i.ceiling * 3 / 4,
		SmallestBytes: current.Size(),
		Attempts:      i.budget,
	}
}

func base64Request(image imaging.CompressedImage, hint Hint, bucket, path string) Base64Request {
	contentType := image.ContentType
	if contentType == "" {
		contentType = hint.ContentType
	}
	return Base64Request{
		Filename:    hint.Filename,
		ContentType: contentType,
		Base64:      base64.StdEncoding.EncodeToString(image.Data),
		OwnerID:     hint.OwnerID,
		Bucket:      bucket,
		Path:        path,
	}
}

func (s Stored) ref(bucket, path string) Ref {
	ref := Ref{ID: s.ID, Bucket: s.Bucket, Path: s.Path, Token: s.Token}
	if ref.Bucket == "" {
		ref.Bucket = bucket
	}
	if ref.Path == "" {
		ref.Path = path
	}
	return ref
}
