package upload

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"leaflens/internal/imaging"
	"leaflens/internal/services"
	"leaflens/internal/textutil"
)

// ErrUnsupported is returned by collaborators that explicitly decline a
// transfer path. The broker moves to the next strategy without retrying.
var ErrUnsupported = errors.New("upload path unsupported")

// Ref identifies a durably persisted image. It is immutable once returned.
type Ref struct {
	Bucket      string `json:"bucket"`
	Path        string `json:"path"`
	Token       string `json:"token,omitempty"`
	ID          string `json:"id,omitempty"`
	Strategy    string `json:"strategy"`
	ContentType string `json:"contentType,omitempty"`
	Size        int    `json:"size,omitempty"`
}

// Valid reports whether the ref names a stored object.
func (r Ref) Valid() bool {
	return strings.TrimSpace(r.Bucket) != "" && strings.TrimSpace(r.Path) != ""
}

func (r Ref) String() string {
	return r.Bucket + "/" + r.Path
}

// Hint carries the caller-supplied metadata for one upload.
type Hint struct {
	Filename    string
	ContentType string
	OwnerID     string
	ScanID      string
	Index       int
}

// ObjectPath lays objects out as <owner>/<scan>/<index>-<filename>.
func ObjectPath(h Hint) string {
	owner := textutil.SanitizeToken(h.OwnerID)
	scan := textutil.SanitizeToken(h.ScanID)
	name := textutil.SanitizeFileName(h.Filename, "image.jpg")
	return owner + "/" + scan + "/" + strconv.Itoa(h.Index) + "-" + name
}

// Strategy is one transport in the broker chain.
type Strategy interface {
	Name() string
	// Viable reports whether the strategy can take this image at all. A
	// non-viable strategy is skipped without counting as a failure.
	Viable(image imaging.CompressedImage, hint Hint) bool
	Attempt(ctx context.Context, image imaging.CompressedImage, hint Hint) (Ref, error)
}

// Credential is a short-lived, single-use grant to write one object.
type Credential struct {
	URL       string            `json:"url"`
	Method    string            `json:"method,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Token     string            `json:"token,omitempty"`
	ExpiresAt time.Time         `json:"expiresAt,omitempty"`
}

// CredentialRequest scopes a credential to one destination.
type CredentialRequest struct {
	Bucket      string `json:"bucket"`
	Path        string `json:"path"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
}

// FinalizeRequest converts an uploaded object into a stable reference.
type FinalizeRequest struct {
	Bucket string `json:"bucket"`
	Path   string `json:"path"`
	Token  string `json:"token,omitempty"`
	Size   int    `json:"size"`
}

// Stored is a collaborator's acknowledgement of a persisted object. Empty
// fields fall back to the values the broker requested.
type Stored struct {
	ID     string `json:"id"`
	Bucket string `json:"bucket,omitempty"`
	Path   string `json:"path,omitempty"`
	Token  string `json:"token,omitempty"`
}

// CredentialIssuer is the signed-transfer control plane.
type CredentialIssuer interface {
	IssueCredential(ctx context.Context, req CredentialRequest) (Credential, error)
	Finalize(ctx context.Context, req FinalizeRequest) (Stored, error)
}

// Base64Request is the body of delegated and inline uploads.
type Base64Request struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Base64      string `json:"base64"`
	OwnerID     string `json:"ownerId"`
	Bucket      string `json:"bucket,omitempty"`
	Path        string `json:"path,omitempty"`
}

// Ingestor is the lightweight out-of-band ingestion endpoint.
type Ingestor interface {
	Ingest(ctx context.Context, req Base64Request) (Stored, error)
}

// InlineUploader is the primary control-plane inline upload.
type InlineUploader interface {
	UploadInline(ctx context.Context, req Base64Request) (Stored, error)
}

// StrategyError records one strategy's failure inside a FailedError.
type StrategyError struct {
	Strategy string
	Err      error
}

// FailedError is returned when every strategy failed. Err is the last concrete
// cause so callers can tell network, policy, and size rejections apart.
type FailedError struct {
	Attempts []StrategyError
	Err      error
}

func (e *FailedError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("upload failed: %v", e.Err)
	}
	last := e.Attempts[len(e.Attempts)-1]
	return fmt.Sprintf("upload failed after %d strategies: %s: %v", len(e.Attempts), last.Strategy, e.Err)
}

func (e *FailedError) Unwrap() error { return e.Err }

func (e *FailedError) Is(target error) bool { return target == services.ErrExternalTool }

// FailureKind reports upload_failed, except for deadline expiry which surfaces
// as a timeout and size rejection which keeps its compression kind.
func (e *FailedError) FailureKind() services.FailureKind {
	var exhausted *imaging.CompressionExhaustedError
	switch {
	case errors.Is(e.Err, context.DeadlineExceeded):
		return services.KindTimeout
	case errors.Is(e.Err, context.Canceled):
		return services.KindCanceled
	case errors.As(e.Err, &exhausted):
		return services.KindCompressionExhausted
	default:
		return services.KindUploadFailed
	}
}

// EncodedLen is the base64 length of n bytes.
func EncodedLen(n int) int {
	return 4 * ((n + 2) / 3)
}
