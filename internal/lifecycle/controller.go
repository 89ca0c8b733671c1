package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/im7mortal/kmutex"

	"leaflens/internal/annotation"
	"leaflens/internal/catalog"
	"leaflens/internal/config"
	"leaflens/internal/imaging"
	"leaflens/internal/logging"
	"leaflens/internal/match"
	"leaflens/internal/notifications"
	"leaflens/internal/scans"
	"leaflens/internal/services"
	"leaflens/internal/staging"
	"leaflens/internal/upload"
)

// Compressor shrinks a raw photo to a byte budget.
type Compressor interface {
	Compress(raw imaging.RawImage, targetBytes int) (imaging.CompressedImage, error)
}

// Uploader persists a compressed photo and returns a stable reference.
type Uploader interface {
	Store(ctx context.Context, image imaging.CompressedImage, hint upload.Hint) (upload.Ref, error)
}

// Analyzer annotates one stored photo.
type Analyzer interface {
	Analyze(ctx context.Context, ref upload.Ref) (annotation.Set, error)
}

// Deps are the collaborators a Controller drives. Searcher and Notifier are
// optional.
type Deps struct {
	Store      *scans.Store
	Staging    *staging.Area
	Compressor Compressor
	Uploader   Uploader
	Analyzer   Analyzer
	Merger     *annotation.Merger
	Engine     *match.Engine
	Catalog    *catalog.Holder
	Searcher   catalog.Searcher
	Notifier   notifications.Service
}

// Image is one photo submitted with createScan.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Controller runs the scan lifecycle.
type Controller struct {
	cfg    *config.Config
	deps   Deps
	locks  *kmutex.Kmutex
	logger *slog.Logger
}

// New builds a controller. Store, Staging, Compressor, Uploader, Analyzer and
// Catalog are required.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Controller, error) {
	switch {
	case cfg == nil:
		return nil, fmt.Errorf("lifecycle: config is nil")
	case deps.Store == nil, deps.Staging == nil:
		return nil, fmt.Errorf("lifecycle: store and staging area are required")
	case deps.Compressor == nil, deps.Uploader == nil, deps.Analyzer == nil:
		return nil, fmt.Errorf("lifecycle: compressor, uploader and analyzer are required")
	case deps.Catalog == nil:
		return nil, fmt.Errorf("lifecycle: catalog holder is required")
	}
	if deps.Merger == nil {
		deps.Merger = annotation.NewMerger(cfg.Matching.RepetitionBonus)
	}
	if deps.Engine == nil {
		deps.Engine = match.NewEngine(cfg.Matching)
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(nil)
	}
	return &Controller{
		cfg:    cfg,
		deps:   deps,
		locks:  kmutex.New(),
		logger: logging.NewComponentLogger(logger, "lifecycle"),
	}, nil
}

func (c *Controller) lock(id string) func() {
	c.locks.Lock(id)
	return func() { c.locks.Unlock(id) }
}

// CreateScan stages the photos and persists a created record.
func (c *Controller) CreateScan(ctx context.Context, ownerID string, images []Image) (*scans.Record, error) {
	maxImages := c.cfg.Workflow.MaxImages
	if len(images) == 0 {
		return nil, services.Wrap(services.ErrValidation, "created", "create scan", "at least one image is required", nil)
	}
	if maxImages > 0 && len(images) > maxImages {
		return nil, services.Wrap(services.ErrValidation, "created", "create scan",
			fmt.Sprintf("%d images submitted, at most %d allowed", len(images), maxImages), nil)
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		ownerID = c.cfg.Upload.OwnerID
	}

	rec := &scans.Record{ID: uuid.NewString(), OwnerID: ownerID}
	for i, img := range images {
		if len(img.Data) == 0 {
			return nil, services.Wrap(services.ErrValidation, "created", "create scan",
				fmt.Sprintf("image %d is empty", i), nil)
		}
		filename := strings.TrimSpace(img.Filename)
		if filename == "" {
			filename = fmt.Sprintf("image-%d.jpg", i)
		}
		if _, err := c.deps.Staging.Put(rec.ID, i, filename, img.Data); err != nil {
			_ = c.deps.Staging.Remove(rec.ID)
			return nil, err
		}
		rec.Sources = append(rec.Sources, scans.Source{
			Index:       i,
			Filename:    filename,
			ContentType: strings.TrimSpace(img.ContentType),
			Size:        len(img.Data),
		})
	}

	if err := c.deps.Store.Create(ctx, rec); err != nil {
		_ = c.deps.Staging.Remove(rec.ID)
		return nil, err
	}
	logging.WithContext(services.WithScanID(ctx, rec.ID), c.logger).Info("scan created",
		logging.String(logging.FieldEventType, "scan_created"),
		logging.String("owner_id", ownerID),
		logging.Int("images", len(rec.Sources)))
	return rec, nil
}

// GetScan returns the record or an ErrNotFound error.
func (c *Controller) GetScan(ctx context.Context, id string) (*scans.Record, error) {
	rec, err := c.deps.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "get scan", fmt.Sprintf("scan %s not found", id), nil)
	}
	return rec, nil
}

// ListScans returns records newest first.
func (c *Controller) ListScans(ctx context.Context, opts scans.ListOptions) ([]*scans.Record, error) {
	return c.deps.Store.List(ctx, opts)
}

// SaveSelectedMatch records a human choice. The entry must be one of the
// scan's candidates or suggestions, or exist in the current catalog.
func (c *Controller) SaveSelectedMatch(ctx context.Context, id, entryID string) (*scans.Record, error) {
	entryID = strings.TrimSpace(entryID)
	if entryID == "" {
		return nil, services.Wrap(services.ErrValidation, "", "select match", "catalogEntryId is required", nil)
	}
	unlock := c.lock(id)
	defer unlock()

	rec, err := c.GetScan(ctx, id)
	if err != nil {
		return nil, err
	}
	if !scans.CanTransition(rec.Status, scans.StatusManuallyMatched) {
		return rec, services.Wrap(services.ErrInvalidTransition, string(rec.Status), "select match",
			fmt.Sprintf("scan %s is %s; selection needs a processed scan", rec.ID, rec.Status), nil)
	}
	if !c.knownEntry(rec, entryID) {
		return rec, services.Wrap(services.ErrNotFound, string(rec.Status), "select match",
			fmt.Sprintf("catalog entry %s not found", entryID), nil)
	}

	previous := rec.SelectedEntryID
	if err := c.deps.Store.Select(ctx, rec, entryID); err != nil {
		return rec, err
	}
	logging.WithContext(services.WithScanID(ctx, rec.ID), c.logger).Info("match selected",
		logging.String(logging.FieldEventType, "scan_manually_matched"),
		logging.String("catalog_entry_id", entryID),
		logging.String("previous_entry_id", previous))
	return rec, nil
}

func (c *Controller) knownEntry(rec *scans.Record, entryID string) bool {
	for _, cand := range rec.Candidates {
		if cand.CatalogEntryID == entryID {
			return true
		}
	}
	for _, s := range rec.Suggestions {
		if s.ID == entryID {
			return true
		}
	}
	if snap := c.deps.Catalog.Current(); snap != nil {
		if _, ok := snap.Get(entryID); ok {
			return true
		}
	}
	return false
}

// Retry clears a recorded failure so the record resumes from its persisted
// status. It reports whether a failure was cleared.
func (c *Controller) Retry(ctx context.Context, id string) (*scans.Record, bool, error) {
	unlock := c.lock(id)
	defer unlock()

	rec, err := c.GetScan(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if rec.Failure == nil {
		return rec, false, nil
	}
	if _, err := c.deps.Store.ClearFailure(ctx, rec.ID); err != nil {
		return rec, false, err
	}
	logging.WithContext(services.WithScanID(ctx, rec.ID), c.logger).Info("scan failure cleared",
		logging.String(logging.FieldEventType, "scan_retry"),
		logging.String("failed_stage", rec.Failure.Stage),
		logging.String("failure_kind", string(rec.Failure.Kind)))
	rec.Failure = nil
	rec.UpdatedAt = time.Now().UTC()
	return rec, true, nil
}
