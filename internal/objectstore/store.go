package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"leaflens/internal/config"
	"leaflens/internal/logging"
	"leaflens/internal/services"
	"leaflens/internal/upload"
)

const defaultPresignTTL = 5 * time.Minute

// Store issues pre-signed single-use PUT credentials against an S3-compatible
// bucket and finalizes uploads by checking the object landed with the
// expected size. It also reads objects back for analysis backends that need
// the bytes.
type Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	ttl     time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]pendingGrant
	now     func() time.Time
}

type pendingGrant struct {
	bucket  string
	path    string
	expires time.Time
}

// New builds a Store from object store settings.
func New(ctx context.Context, cfg config.ObjectStore, logger *slog.Logger) (*Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               endpoint,
				HostnameImmutable: true,
				Source:            aws.EndpointSourceCustom,
			}, nil
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "objectstore", "load aws config", "", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})

	ttl := time.Duration(cfg.PresignTTL) * time.Second
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}
	return &Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		ttl:     ttl,
		logger:  logging.NewComponentLogger(logger, "objectstore"),
		pending: map[string]pendingGrant{},
		now:     time.Now,
	}, nil
}

// Bucket returns the default bucket.
func (s *Store) Bucket() string { return s.bucket }

// Ping checks that the bucket is reachable.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "objectstore", "head bucket", s.bucket, err)
	}
	return nil
}

// IssueCredential presigns a PUT for req.Path. The returned token must be
// presented to Finalize exactly once before the grant expires.
func (s *Store) IssueCredential(ctx context.Context, req upload.CredentialRequest) (upload.Credential, error) {
	bucket := s.bucketFor(req.Bucket)
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(req.Path),
	}
	if req.ContentType != "" {
		input.ContentType = aws.String(req.ContentType)
	}
	signed, err := s.presign.PresignPutObject(ctx, input, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return upload.Credential{}, services.Wrap(services.ErrExternalTool, "objectstore", "presign put", req.Path, err)
	}

	headers := make(map[string]string, len(signed.SignedHeader))
	for key, values := range signed.SignedHeader {
		if strings.EqualFold(key, "Host") || len(values) == 0 {
			continue
		}
		headers[key] = values[0]
	}

	token := uuid.NewString()
	expires := s.now().Add(s.ttl)
	s.mu.Lock()
	s.sweepLocked()
	s.pending[token] = pendingGrant{bucket: bucket, path: req.Path, expires: expires}
	s.mu.Unlock()

	return upload.Credential{
		URL:       signed.URL,
		Method:    signed.Method,
		Headers:   headers,
		Token:     token,
		ExpiresAt: expires,
	}, nil
}

// Finalize consumes the grant and verifies the object exists with the
// expected size.
func (s *Store) Finalize(ctx context.Context, req upload.FinalizeRequest) (upload.Stored, error) {
	s.mu.Lock()
	grant, ok := s.pending[req.Token]
	if ok {
		delete(s.pending, req.Token)
	}
	s.mu.Unlock()
	if !ok {
		return upload.Stored{}, services.Wrap(services.ErrValidation, "objectstore", "finalize", "unknown or already used upload token", nil)
	}
	if s.now().After(grant.expires) {
		return upload.Stored{}, services.Wrap(services.ErrValidation, "objectstore", "finalize", "upload token expired", nil)
	}
	if grant.path != req.Path {
		return upload.Stored{}, services.Wrap(services.ErrValidation, "objectstore", "finalize",
			fmt.Sprintf("token issued for %q, not %q", grant.path, req.Path), nil)
	}

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(grant.bucket),
		Key:    aws.String(grant.path),
	})
	if err != nil {
		if isNotFound(err) {
			return upload.Stored{}, services.Wrap(services.ErrNotFound, "objectstore", "finalize", grant.path, err)
		}
		return upload.Stored{}, services.Wrap(services.ErrExternalTool, "objectstore", "head object", grant.path, err)
	}
	if req.Size > 0 && head.ContentLength != nil && *head.ContentLength != int64(req.Size) {
		return upload.Stored{}, services.Wrap(services.ErrValidation, "objectstore", "finalize",
			fmt.Sprintf("stored size %d does not match %d", *head.ContentLength, req.Size), nil)
	}

	id := grant.bucket + "/" + grant.path
	if head.ETag != nil {
		if etag := strings.Trim(*head.ETag, `"`); etag != "" {
			id = etag
		}
	}
	s.logger.Debug("upload finalized", logging.String("path", grant.path), logging.String("id", id))
	return upload.Stored{ID: id, Bucket: grant.bucket, Path: grant.path}, nil
}

// Fetch reads an object back, returning its bytes and content type.
func (s *Store) Fetch(ctx context.Context, ref upload.Ref) ([]byte, string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketFor(ref.Bucket)),
		Key:    aws.String(ref.Path),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, "", services.Wrap(services.ErrNotFound, "objectstore", "get object", ref.Path, err)
		}
		return nil, "", services.Wrap(services.ErrExternalTool, "objectstore", "get object", ref.Path, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read object %s: %w", ref.Path, err)
	}
	contentType := ref.ContentType
	if out.ContentType != nil && *out.ContentType != "" {
		contentType = *out.ContentType
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

func (s *Store) bucketFor(requested string) string {
	if b := strings.TrimSpace(requested); b != "" {
		return b
	}
	return s.bucket
}

func (s *Store) sweepLocked() {
	now := s.now()
	for token, grant := range s.pending {
		if now.After(grant.expires) {
			delete(s.pending, token)
		}
	}
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return true
		}
	}
	return false
}
