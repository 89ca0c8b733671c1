package analysis

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"leaflens/internal/annotation"
	"leaflens/internal/config"
	"leaflens/internal/logging"
	"leaflens/internal/services"
	"leaflens/internal/services/httpclient"
	"leaflens/internal/upload"
)

const (
	// DefaultTimeout bounds one analysis submission.
	DefaultTimeout = 60 * time.Second
	// timeoutAttempts is the first try plus one automatic retry on timeout.
	timeoutAttempts = 2
)

// Backend submits a stored image reference to an analysis service.
type Backend interface {
	Name() string
	Annotate(ctx context.Context, ref upload.Ref) (annotation.Set, error)
}

// ImageFetcher resolves a stored reference to bytes for backends that need
// the image inline.
type ImageFetcher interface {
	Fetch(ctx context.Context, ref upload.Ref) ([]byte, string, error)
}

// Invoker wraps a Backend with the bounded wait, the single timeout retry,
// and a submission rate limit shared by every image in flight.
type Invoker struct {
	backend Backend
	timeout time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option customizes an Invoker.
type Option func(*Invoker)

// WithTimeout overrides the per-submission wait.
func WithTimeout(d time.Duration) Option {
	return func(i *Invoker) {
		if d > 0 {
			i.timeout = d
		}
	}
}

// NewInvoker builds an Invoker from analysis settings.
func NewInvoker(backend Backend, cfg config.Analysis, logger *slog.Logger, opts ...Option) *Invoker {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limit := rate.Inf
	burst := max(1, cfg.Burst)
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	inv := &Invoker{
		backend: backend,
		timeout: timeout,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logging.NewComponentLogger(logger, "analysis"),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Backend returns the configured backend name.
func (i *Invoker) Backend() string { return i.backend.Name() }

// Analyze returns the annotations for ref. A successful empty set is not an
// error. Timeouts are retried once and then surface as *TimeoutError; any
// other failure is a *ServiceError and is not retried here.
func (i *Invoker) Analyze(ctx context.Context, ref upload.Ref) (annotation.Set, error) {
	logger := logging.WithContext(ctx, i.logger)
	var lastErr error
	for attempt := 1; attempt <= timeoutAttempts; attempt++ {
		if err := i.limiter.Wait(ctx); err != nil {
			return annotation.Set{}, i.parentError(ctx, attempt-1, err)
		}

		started := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, i.timeout)
		set, err := i.backend.Annotate(callCtx, ref)
		callErr := callCtx.Err()
		cancel()

		if err == nil {
			logger.Debug("analysis complete",
				logging.String("backend", i.backend.Name()),
				logging.Int("labels", len(set.Labels)),
				logging.Int("web_entities", len(set.WebEntities)),
				logging.Bool("empty", set.Empty()),
				logging.Duration("elapsed", time.Since(started)))
			return set, nil
		}
		if ctx.Err() != nil {
			return annotation.Set{}, i.parentError(ctx, attempt, err)
		}
		if !isTimeout(err, callErr) {
			return annotation.Set{}, asServiceError(err)
		}

		lastErr = err
		if attempt < timeoutAttempts {
			logging.WarnWithContext(logger, "analysis timed out; retrying once", "analysis_retry",
				logging.String("backend", i.backend.Name()),
				logging.Duration("timeout", i.timeout),
				logging.String("ref", ref.String()),
				logging.String(logging.FieldImpact, "one more submission against the analysis service"))
		}
	}
	return annotation.Set{}, &TimeoutError{Timeout: i.timeout, Attempts: timeoutAttempts, Err: lastErr}
}

// parentError converts a caller-side cancellation. A caller deadline is still
// a typed timeout, including a limiter refusal because the wait would outlast
// the deadline while ctx is still live.
func (i *Invoker) parentError(ctx context.Context, attempts int, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
		return ctxErr
	}
	return &TimeoutError{Timeout: i.timeout, Attempts: max(1, attempts), Err: err}
}

func isTimeout(err, callErr error) bool {
	if errors.Is(callErr, context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, services.ErrTimeout) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return httpclient.StatusCode(err) == 504
}

func asServiceError(err error) error {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	if code := httpclient.StatusCode(err); code != 0 {
		return NewServiceError(strconv.Itoa(code), err)
	}
	return NewServiceError("", err)
}
