package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"leaflens/internal/analysis"
	"leaflens/internal/annotation"
	"leaflens/internal/catalog"
	"leaflens/internal/config"
	"leaflens/internal/imaging"
	"leaflens/internal/lifecycle"
	"leaflens/internal/logging"
	"leaflens/internal/match"
	"leaflens/internal/notifications"
	"leaflens/internal/objectstore"
	"leaflens/internal/scans"
	"leaflens/internal/services"
	"leaflens/internal/services/analyzer"
	"leaflens/internal/services/catalogapi"
	"leaflens/internal/services/controlplane"
	"leaflens/internal/services/gemini"
	"leaflens/internal/services/ingest"
	"leaflens/internal/services/vision"
	"leaflens/internal/staging"
	"leaflens/internal/upload"
	"leaflens/internal/workflow"
)

// Runtime holds every component built from one configuration.
type Runtime struct {
	Config     *config.Config
	Logger     *slog.Logger
	Store      *scans.Store
	Staging    *staging.Area
	Catalog    *catalog.Holder
	Watcher    *catalog.Watcher
	Searcher   catalog.Searcher
	Broker     *upload.Broker
	Invoker    *analysis.Invoker
	Notifier   notifications.Service
	Controller *lifecycle.Controller
	Workflow   *workflow.Manager

	closers []func() error
}

// collaborators are the remote clients shared by upload and analysis.
type collaborators struct {
	controlPlane *controlplane.Client
	ingest       *ingest.Client
	objectStore  *objectstore.Store
}

// Build assembles the runtime. The caller owns Close.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	rt := &Runtime{Config: cfg, Logger: logger}

	store, err := scans.Open(cfg)
	if err != nil {
		return nil, err
	}
	rt.Store = store
	rt.closers = append(rt.closers, store.Close)

	fail := func(err error) (*Runtime, error) {
		_ = rt.Close()
		return nil, err
	}

	rt.Staging = staging.New(cfg.Paths.StagingDir)
	compressor := imaging.New(cfg.Compression)

	remote, err := newCollaborators(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	strategies, err := buildStrategies(cfg, remote, compressor, logger)
	if err != nil {
		return fail(err)
	}
	rt.Broker = upload.NewBroker(logger, strategies...)

	backend, closeBackend, err := buildBackend(ctx, cfg, remote)
	if err != nil {
		return fail(err)
	}
	if closeBackend != nil {
		rt.closers = append(rt.closers, closeBackend)
	}
	rt.Invoker = analysis.NewInvoker(backend, cfg.Analysis, logger)

	holder, err := loadCatalog(cfg, logger)
	if err != nil {
		return fail(err)
	}
	rt.Catalog = holder
	if cfg.Catalog.Watch {
		rt.Watcher = catalog.NewWatcher(cfg.Catalog.Path, holder, logger)
	}
	rt.Searcher = NewSearcher(cfg, holder)
	rt.Notifier = notifications.NewService(cfg)

	controller, err := lifecycle.New(cfg, lifecycle.Deps{
		Store:      store,
		Staging:    rt.Staging,
		Compressor: compressor,
		Uploader:   rt.Broker,
		Analyzer:   rt.Invoker,
		Merger:     annotation.NewMerger(cfg.Matching.RepetitionBonus),
		Engine:     match.NewEngine(cfg.Matching),
		Catalog:    holder,
		Searcher:   rt.Searcher,
		Notifier:   rt.Notifier,
	}, logger)
	if err != nil {
		return fail(err)
	}
	rt.Controller = controller
	rt.Workflow = workflow.NewManager(cfg, store, controller, rt.Staging, logger)
	return rt, nil
}

// Close releases clients and the store in reverse build order.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func newCollaborators(ctx context.Context, cfg *config.Config, logger *slog.Logger) (collaborators, error) {
	var c collaborators
	if strings.TrimSpace(cfg.ControlPlane.URL) != "" {
		c.controlPlane = controlplane.New(controlplane.Config{
			BaseURL:        cfg.ControlPlane.URL,
			APIKey:         cfg.ControlPlane.APIKey,
			TimeoutSeconds: cfg.Upload.RequestTimeout,
		})
	}
	if strings.TrimSpace(cfg.Ingest.URL) != "" {
		c.ingest = ingest.New(ingest.Config{
			BaseURL:        cfg.Ingest.URL,
			APIKey:         cfg.Ingest.APIKey,
			TimeoutSeconds: cfg.Upload.RequestTimeout,
		})
	}
	if cfg.ObjectStore.Enabled {
		store, err := objectstore.New(ctx, cfg.ObjectStore, logger)
		if err != nil {
			return c, err
		}
		c.objectStore = store
	}
	return c, nil
}

// buildStrategies returns the configured strategy order, keeping only the
// strategies whose collaborator is configured.
func buildStrategies(cfg *config.Config, remote collaborators, compressor *imaging.Compressor, logger *slog.Logger) ([]upload.Strategy, error) {
	available := map[string]upload.Strategy{}
	transfer := &http.Client{Timeout: cfg.UploadTimeout()}

	switch {
	case remote.objectStore != nil:
		available[upload.NameSigned] = upload.NewSigned(remote.objectStore, cfg.Upload.Bucket, transfer)
	case remote.controlPlane != nil:
		available[upload.NameSigned] = upload.NewSigned(remote.controlPlane, cfg.Upload.Bucket, transfer)
	}
	if remote.ingest != nil {
		available[upload.NameDelegated] = upload.NewDelegated(remote.ingest, cfg.Upload.Bucket, cfg.Upload.DelegatedMaxBytes)
	}
	if remote.controlPlane != nil {
		available[upload.NameInline] = upload.NewInline(remote.controlPlane, compressor, cfg.Upload.Bucket,
			cfg.Upload.InlineCeilingBytes, cfg.Compression.MaxAttempts, logger)
	}

	chain := upload.Chain(cfg.Upload.Strategies, available)
	if len(chain) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "upload", "build strategies",
			"no configured strategy has a collaborator; set control_plane.url, ingest.url, or object_store", nil)
	}
	return chain, nil
}

// buildBackend selects the analysis backend. The returned close func may be nil.
func buildBackend(ctx context.Context, cfg *config.Config, remote collaborators) (analysis.Backend, func() error, error) {
	var fetcher analysis.ImageFetcher
	switch {
	case remote.objectStore != nil:
		fetcher = remote.objectStore
	case strings.TrimSpace(cfg.Analysis.ImageBaseURL) != "":
		fetcher = analysis.NewURLFetcher(cfg.Analysis.ImageBaseURL, nil)
	}

	switch cfg.Analysis.Provider {
	case config.ProviderGemini:
		backend, err := gemini.New(ctx, gemini.Config{
			APIKey:     cfg.Gemini.APIKey,
			Model:      cfg.Gemini.Model,
			MaxResults: cfg.Analysis.MaxResults,
			Fetcher:    fetcher,
		})
		if err != nil {
			return nil, nil, err
		}
		return backend, backend.Close, nil
	case config.ProviderHTTP:
		return analyzer.New(analyzer.Config{BaseURL: cfg.Analyzer.URL, APIKey: cfg.Analyzer.APIKey}), nil, nil
	case config.ProviderVision:
		backend, err := vision.New(ctx, vision.Config{
			APIKey:          cfg.Vision.APIKey,
			CredentialsFile: cfg.Vision.CredentialsFile,
			MaxResults:      cfg.Analysis.MaxResults,
			Fetcher:         fetcher,
		})
		if err != nil {
			return nil, nil, err
		}
		return backend, nil, nil
	default:
		return nil, nil, services.Wrap(services.ErrConfiguration, "analysis", "build backend",
			fmt.Sprintf("unknown provider %q", cfg.Analysis.Provider), nil)
	}
}

// loadCatalog reads the configured catalog. A missing file starts an empty
// catalog; an invalid one is a configuration error.
func loadCatalog(cfg *config.Config, logger *slog.Logger) (*catalog.Holder, error) {
	snap, err := catalog.Load(cfg.Catalog.Path)
	switch {
	case errors.Is(err, services.ErrNotFound):
		logging.WarnWithContext(logger, "catalog file missing; matching starts empty", "catalog_missing",
			logging.String("path", cfg.Catalog.Path),
			logging.String(logging.FieldErrorHint, "import a catalog with leaflens catalog validate and copy it to catalog.path"),
			logging.String(logging.FieldImpact, "every scan ends unmatched"),
		)
		return catalog.NewHolder(snap), nil
	case err != nil:
		return nil, services.Wrap(services.ErrConfiguration, "catalog", "load", cfg.Catalog.Path, err)
	}
	logger.Info("catalog loaded",
		logging.String(logging.FieldEventType, "catalog_loaded"),
		logging.String("path", cfg.Catalog.Path),
		logging.Int("entries", snap.Len()),
	)
	return catalog.NewHolder(snap), nil
}

// NewSearcher returns the remote catalog search client when catalog.search_url
// is set, else a local search over holder.
func NewSearcher(cfg *config.Config, holder *catalog.Holder) catalog.Searcher {
	if strings.TrimSpace(cfg.Catalog.SearchURL) == "" {
		return catalog.NewLocalSearcher(holder)
	}
	return catalogapi.New(catalogapi.Config{
		BaseURL:        cfg.Catalog.SearchURL,
		APIKey:         cfg.Catalog.SearchAPIKey,
		TimeoutSeconds: cfg.Upload.RequestTimeout,
	})
}
