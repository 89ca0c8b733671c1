package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"leaflens/internal/annotation"
	"leaflens/internal/imaging"
	"leaflens/internal/logging"
	"leaflens/internal/scans"
	"leaflens/internal/services"
	"leaflens/internal/upload"
)

const (
	stageUploading = string(scans.StatusUploading)
	stageAnalyzing = string(scans.StatusAnalyzing)
	stageMatching  = string(scans.StatusMatching)
)

// Process runs or resumes the pipeline for the scan and returns the record in
// its final state. A terminal record is returned unchanged. A stage failure
// returns the rolled-back record together with a *StageError.
func (c *Controller) Process(ctx context.Context, id string) (*scans.Record, error) {
	unlock := c.lock(id)
	defer unlock()

	rec, err := c.GetScan(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status.IsTerminal() {
		return rec, nil
	}
	if rec.Failure != nil {
		return rec, recordedFailure(rec)
	}
	if rec.Status.IsInFlight() {
		return rec, services.Wrap(services.ErrInvalidTransition, string(rec.Status), "process",
			fmt.Sprintf("scan %s is already %s", rec.ID, rec.Status), nil)
	}

	ctx = services.WithScanID(ctx, rec.ID)
	logger := logging.WithContext(ctx, c.logger)

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go c.heartbeat(hbCtx, &hbWG, rec.ID)
	defer func() {
		stopHeartbeat()
		hbWG.Wait()
	}()

	started := time.Now()
	if rec.Status == scans.StatusCreated || rec.Status == scans.StatusUploaded {
		if err := c.runImages(ctx, logger, rec); err != nil {
			return rec, err
		}
	}
	if rec.Status == scans.StatusAnalyzed {
		if err := c.runMatch(ctx, logger, rec); err != nil {
			return rec, err
		}
	}
	logger.Debug("scan processed",
		logging.String("status", string(rec.Status)),
		logging.Duration("elapsed", time.Since(started)))
	return rec, nil
}

type imageEvent struct {
	index int
	stage string
	ref   upload.Ref
	set   annotation.Set
	err   error
}

// runImages moves rec through uploading and analyzing. Each photo runs its
// own compress, upload and analyze chain; this goroutine is the only writer
// and advances the record as the per-photo results arrive.
func (c *Controller) runImages(ctx context.Context, logger *slog.Logger, rec *scans.Record) error {
	workCtx, cancel := context.WithCancel(ctx)
	var group errgroup.Group
	defer func() {
		cancel()
		_ = group.Wait()
	}()

	pendingUploads := 0
	pendingAnalyses := 0
	events := make(chan imageEvent, 2*(len(rec.Sources)+len(rec.ImageRefs)))

	if rec.Status == scans.StatusCreated {
		if err := c.enter(ctx, logger, rec, scans.StatusUploading); err != nil {
			return err
		}
		rec.ImageRefs = nil
		dropNotes(rec, stageUploading, stageAnalyzing)
		for _, src := range rec.Sources {
			pendingUploads++
			group.Go(func() error {
				c.imageChain(workCtx, rec.ID, rec.OwnerID, src, nil, events)
				return nil
			})
		}
	} else {
		if err := c.enter(ctx, logger, rec, scans.StatusAnalyzing); err != nil {
			return err
		}
		dropNotes(rec, stageAnalyzing)
		for _, ref := range rec.ImageRefs {
			group.Go(func() error {
				c.imageChain(workCtx, rec.ID, rec.OwnerID, scans.Source{Index: ref.Index}, &ref, events)
				return nil
			})
		}
	}
	pendingAnalyses = len(rec.ImageRefs)

	sets := make(map[int]annotation.Set)
	uploadsDone := rec.Status != scans.StatusUploading
	if !uploadsDone && pendingUploads == 0 {
		return c.fail(ctx, logger, rec, stageUploading, services.Wrap(services.ErrValidation, stageUploading, "upload images", "scan has no staged images", nil))
	}
	for pendingUploads > 0 || pendingAnalyses > 0 {
		var ev imageEvent
		select {
		case ev = <-events:
		case <-ctx.Done():
			return c.interrupted(ctx, logger, rec, sets)
		}

		switch ev.stage {
		case stageUploading:
			pendingUploads--
			if ev.err != nil {
				c.noteImage(logger, rec, ev)
			} else {
				rec.ImageRefs = append(rec.ImageRefs, scans.ImageRef{Index: ev.index, Ref: ev.ref})
				pendingAnalyses++
			}
		case stageAnalyzing:
			pendingAnalyses--
			if ev.err != nil {
				c.noteImage(logger, rec, ev)
			} else {
				sets[ev.index] = ev.set
			}
		}

		if !uploadsDone && pendingUploads == 0 {
			uploadsDone = true
			if len(rec.ImageRefs) == 0 {
				return c.fail(ctx, logger, rec, stageUploading, lastImageError(rec, stageUploading))
			}
			if err := c.completeUploads(ctx, logger, rec); err != nil {
				return err
			}
		}
	}

	if ctx.Err() != nil {
		return c.interrupted(ctx, logger, rec, sets)
	}
	if len(sets) == 0 {
		return c.fail(ctx, logger, rec, stageAnalyzing, lastImageError(rec, stageAnalyzing))
	}
	return c.completeAnalyses(ctx, logger, rec, sets)
}

// interrupted fails the running stage once the caller's context is done,
// keeping whatever annotations the photos already returned.
func (c *Controller) interrupted(ctx context.Context, logger *slog.Logger, rec *scans.Record, sets map[int]annotation.Set) error {
	if rec.Status == scans.StatusAnalyzing && len(sets) > 0 {
		c.keepPartialComposite(ctx, logger, rec, sets)
	}
	return c.fail(ctx, logger, rec, currentStage(rec), ctx.Err())
}

// imageChain runs one photo to completion, reporting each stage result.
func (c *Controller) imageChain(ctx context.Context, scanID, ownerID string, src scans.Source, ref *scans.ImageRef, events chan<- imageEvent) {
	ctx = services.WithImageIndex(ctx, src.Index)
	if ref == nil {
		stored, err := c.uploadImage(ctx, scanID, ownerID, src)
		events <- imageEvent{index: src.Index, stage: stageUploading, ref: stored, err: err}
		if err != nil {
			return
		}
		ref = &scans.ImageRef{Index: src.Index, Ref: stored}
	}
	set, err := c.deps.Analyzer.Analyze(services.WithStage(ctx, stageAnalyzing), ref.Ref)
	events <- imageEvent{index: ref.Index, stage: stageAnalyzing, set: set, err: err}
}

func (c *Controller) uploadImage(ctx context.Context, scanID, ownerID string, src scans.Source) (upload.Ref, error) {
	data, err := c.deps.Staging.Read(scanID, src.Index, src.Filename)
	if err != nil {
		return upload.Ref{}, err
	}
	compressed, err := c.deps.Compressor.Compress(imaging.RawImage{
		Data:        data,
		ContentType: src.ContentType,
		Size:        len(data),
	}, c.cfg.Compression.TargetBytes)
	if err != nil {
		return upload.Ref{}, err
	}
	return c.deps.Uploader.Store(services.WithStage(ctx, stageUploading), compressed, upload.Hint{
		Filename:    src.Filename,
		ContentType: compressed.ContentType,
		OwnerID:     ownerID,
		ScanID:      scanID,
		Index:       src.Index,
	})
}

func (c *Controller) completeUploads(ctx context.Context, logger *slog.Logger, rec *scans.Record) error {
	sort.Slice(rec.ImageRefs, func(i, j int) bool { return rec.ImageRefs[i].Index < rec.ImageRefs[j].Index })
	if err := c.deps.Store.Update(context.WithoutCancel(ctx), rec); err != nil {
		return c.fail(ctx, logger, rec, stageUploading, err)
	}
	if err := c.advance(ctx, logger, rec, stageUploading, scans.StatusUploaded); err != nil {
		return err
	}
	if err := c.deps.Staging.Remove(rec.ID); err != nil {
		logger.Warn("staged images not removed", logging.Error(err))
	}
	return c.enter(ctx, logger, rec, scans.StatusAnalyzing)
}

func (c *Controller) completeAnalyses(ctx context.Context, logger *slog.Logger, rec *scans.Record, sets map[int]annotation.Set) error {
	composite := c.mergeSets(rec, sets)
	if err := c.deps.Store.Update(context.WithoutCancel(ctx), rec); err != nil {
		return c.fail(ctx, logger, rec, stageAnalyzing, err)
	}
	return c.advance(ctx, logger, rec, stageAnalyzing, scans.StatusAnalyzed,
		logging.Int("analyzed_images", len(sets)),
		logging.Int("labels", len(composite.Labels)),
		logging.Int("web_entities", len(composite.WebEntities)))
}

// mergeSets folds the per-photo annotations in index order into rec.Composite.
func (c *Controller) mergeSets(rec *scans.Record, sets map[int]annotation.Set) annotation.Composite {
	indexes := make([]int, 0, len(sets))
	for idx := range sets {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	ordered := make([]annotation.Set, 0, len(indexes))
	for _, idx := range indexes {
		ordered = append(ordered, sets[idx])
	}
	composite := c.deps.Merger.Merge(ordered)
	rec.Composite = &composite
	return composite
}

// keepPartialComposite persists what the photos answered before the caller
// gave up, so the failed record still shows the gathered annotations.
func (c *Controller) keepPartialComposite(ctx context.Context, logger *slog.Logger, rec *scans.Record, sets map[int]annotation.Set) {
	composite := c.mergeSets(rec, sets)
	if err := c.deps.Store.Update(context.WithoutCancel(ctx), rec); err != nil {
		logger.Warn("partial composite not persisted", logging.Error(err))
		return
	}
	logger.Debug("partial composite kept",
		logging.Int("analyzed_images", len(sets)),
		logging.Int("sources", composite.Sources))
}

func (c *Controller) noteImage(logger *slog.Logger, rec *scans.Record, ev imageEvent) {
	rec.NoteImageFailure(ev.index, ev.stage, ev.err)
	logging.WarnWithContext(logger, "image dropped from scan", "image_failure",
		logging.Stage(ev.stage),
		logging.ImageIndex(ev.index),
		logging.Kind(ev.err),
		logging.Error(ev.err),
		logging.String(logging.FieldImpact, "scan continues with the remaining images"))
}

// enter moves rec into an in-flight status. The stage work notices an
// expired ctx and fails the stage from there.
func (c *Controller) enter(ctx context.Context, logger *slog.Logger, rec *scans.Record, next scans.Status) error {
	if err := c.deps.Store.Transition(context.WithoutCancel(ctx), rec, next); err != nil {
		return err
	}
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Stage(string(next)))
	return nil
}

// advance moves rec out of an in-flight status once the stage result is
// persisted.
func (c *Controller) advance(ctx context.Context, logger *slog.Logger, rec *scans.Record, stage string, next scans.Status, attrs ...logging.Attr) error {
	if err := c.deps.Store.Transition(context.WithoutCancel(ctx), rec, next); err != nil {
		return c.fail(ctx, logger, rec, stage, err)
	}
	attrs = append([]logging.Attr{
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Stage(stage),
		logging.String("status", string(next)),
	}, attrs...)
	logger.Info("stage completed", logging.Args(attrs...)...)
	return nil
}

// fail records the stage failure, rolls rec back to its last completed status
// and returns the typed error for the caller. The writes outlive ctx so an
// expired or cancelled caller never leaves the record in flight.
func (c *Controller) fail(ctx context.Context, logger *slog.Logger, rec *scans.Record, stage string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	if cause == nil {
		cause = errors.New("stage produced no result")
	}
	stageErr := stageError(rec, stage, cause)
	if errors.Is(cause, context.Canceled) {
		logger.Debug("stage interrupted", logging.Stage(stage))
		if err := c.deps.Store.Rollback(ctx, rec); err != nil {
			logger.Warn("rollback after interruption failed", logging.Error(err))
		}
		return stageErr
	}

	if err := c.deps.Store.Rollback(ctx, rec); err != nil {
		logger.Error("failed to roll back scan", logging.Error(err))
	}
	rec.SetFailed(stage, cause)
	if err := c.deps.Store.Update(ctx, rec); err != nil {
		logger.Error("failed to persist stage failure", logging.Error(err))
	}

	logging.ErrorWithContext(logger, "stage failed", "stage_failure", cause,
		logging.Stage(stage),
		logging.FailureKind(stageErr.FailureKind()),
		logging.String("resolved_status", string(rec.Status)),
		logging.String(logging.FieldErrorHint, failureHint(stageErr.FailureKind())),
		logging.String(logging.FieldImpact, "scan held until retried"))

	c.publishFailure(ctx, logger, rec, stage, cause)
	return stageErr
}

// dropNotes forgets per-image failures from an earlier run of the stages.
func dropNotes(rec *scans.Record, stages ...string) {
	kept := rec.ImageFailures[:0]
	for _, f := range rec.ImageFailures {
		if !slices.Contains(stages, f.Stage) {
			kept = append(kept, f)
		}
	}
	rec.ImageFailures = kept
}

func currentStage(rec *scans.Record) string {
	if rec.Status.IsInFlight() {
		return string(rec.Status)
	}
	prev := map[scans.Status]string{
		scans.StatusCreated:  stageUploading,
		scans.StatusUploaded: stageAnalyzing,
		scans.StatusAnalyzed: stageMatching,
	}
	return prev[rec.Status]
}

// lastImageError joins the per-image causes for stage into one error.
func lastImageError(rec *scans.Record, stage string) error {
	var kind services.FailureKind
	messages := make([]string, 0, len(rec.ImageFailures))
	for _, f := range rec.ImageFailures {
		if f.Stage != stage {
			continue
		}
		kind = f.Kind
		messages = append(messages, fmt.Sprintf("image %d: %s", f.Index, f.Message))
	}
	if len(messages) == 0 {
		return errors.New("no images to process")
	}
	return &allImagesError{kind: kind, msg: strings.Join(messages, "; ")}
}

// allImagesError is a stage failure where every photo failed; it carries the
// kind of the last photo's failure.
type allImagesError struct {
	kind services.FailureKind
	msg  string
}

func (e *allImagesError) Error() string { return "every image failed: " + e.msg }

func (e *allImagesError) FailureKind() services.FailureKind { return e.kind }

func (e *allImagesError) Is(target error) bool {
	switch e.kind {
	case services.KindDecode, services.KindCompressionExhausted, services.KindValidation:
		return target == services.ErrValidation
	case services.KindAnalysisTimeout, services.KindTimeout:
		return target == services.ErrTimeout
	case services.KindNotFound:
		return target == services.ErrNotFound
	default:
		return target == services.ErrExternalTool
	}
}

func failureHint(kind services.FailureKind) string {
	switch kind {
	case services.KindDecode:
		return "submit JPEG, PNG, GIF or WebP photos"
	case services.KindCompressionExhausted:
		return "retake the photo or raise compression.target_bytes"
	case services.KindUploadFailed:
		return "check control_plane, ingest and object_store settings"
	case services.KindAnalysisTimeout, services.KindTimeout:
		return "analysis service is slow; retry the scan"
	case services.KindAnalysisService:
		return "check analysis provider credentials"
	case services.KindConfiguration:
		return "run leaflens config validate"
	case services.KindNotFound:
		return "staged images are gone; create a new scan"
	default:
		return "retry the scan"
	}
}
