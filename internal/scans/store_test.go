package scans_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"leaflens/internal/annotation"
	"leaflens/internal/match"
	"leaflens/internal/scans"
	"leaflens/internal/services"
	"leaflens/internal/testsupport"
	"leaflens/internal/upload"
)

func TestCreateAndGetRoundTripsStructuredFields(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	rec := testsupport.NewScan(t, store, "owner-1", scans.Source{Index: 0, Filename: "leaf.jpg", ContentType: "image/jpeg", Size: 42})
	if rec.ID == "" || rec.Status != scans.StatusCreated {
		t.Fatalf("unexpected created record %+v", rec)
	}

	rec.ImageRefs = []scans.ImageRef{{Index: 0, Ref: upload.Ref{Bucket: "scans", Path: "owner-1/x/0-leaf.jpg", Strategy: upload.NameSigned}}}
	rec.Composite = &annotation.Composite{
		Labels:      []annotation.CompositeFeature{{Key: "leaf", Description: "Leaf", Score: 0.9, MeanScore: 0.9, Occurrences: 1}},
		WebEntities: []annotation.CompositeFeature{},
		Text:        "monstera",
		Sources:     1,
	}
	rec.Candidates = []match.Candidate{{CatalogEntryID: "monstera", Name: "Monstera", Confidence: 88}}
	rec.NoteImageFailure(1, "analyzing", errors.New("boom"))
	if err := store.Update(ctx, rec); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	fetched, err := store.Get(ctx, rec.ID)
	if err != nil || fetched == nil {
		t.Fatalf("Get failed: %v %v", fetched, err)
	}
	if fetched.OwnerID != "owner-1" || len(fetched.Sources) != 1 || fetched.Sources[0].Filename != "leaf.jpg" {
		t.Fatalf("unexpected sources %+v", fetched)
	}
	if len(fetched.ImageRefs) != 1 || fetched.ImageRefs[0].Path != "owner-1/x/0-leaf.jpg" || fetched.ImageRefs[0].Index != 0 {
		t.Fatalf("unexpected refs %+v", fetched.ImageRefs)
	}
	if fetched.Composite == nil || fetched.Composite.Text != "monstera" || len(fetched.Composite.Labels) != 1 {
		t.Fatalf("unexpected composite %+v", fetched.Composite)
	}
	if top, ok := fetched.TopCandidate(); !ok || top.CatalogEntryID != "monstera" {
		t.Fatalf("unexpected candidates %+v", fetched.Candidates)
	}
	if len(fetched.ImageFailures) != 1 || fetched.ImageFailures[0].Kind != services.KindInternal {
		t.Fatalf("unexpected image failures %+v", fetched.ImageFailures)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	rec, err := store.Get(context.Background(), "nope")
	if err != nil || rec != nil {
		t.Fatalf("expected nil record, got %+v %v", rec, err)
	}
}

func TestTransitionEnforcesStateMachine(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	rec := testsupport.NewScan(t, store, "o")

	if err := store.Transition(ctx, rec, scans.StatusAnalyzing); !errors.Is(err, services.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition skipping stages, got %v", err)
	}
	if err := store.Transition(ctx, rec, scans.StatusUploading); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if rec.LastHeartbeat == nil {
		t.Fatal("expected heartbeat stamped when entering in-flight status")
	}

	stale := &scans.Record{ID: rec.ID, Status: scans.StatusCreated}
	if err := store.Transition(ctx, stale, scans.StatusUploading); !errors.Is(err, services.ErrInvalidTransition) {
		t.Fatalf("expected compare-and-set failure for stale copy, got %v", err)
	}

	if err := store.Transition(ctx, rec, scans.StatusUploaded); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	fetched, _ := store.Get(ctx, rec.ID)
	if fetched.Status != scans.StatusUploaded || fetched.LastHeartbeat != nil {
		t.Fatalf("unexpected persisted state %+v", fetched)
	}
}

func TestTransitionMissingRecord(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	err := store.Transition(context.Background(), &scans.Record{ID: "ghost", Status: scans.StatusCreated}, scans.StatusUploading)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func advance(t *testing.T, store *scans.Store, rec *scans.Record, path ...scans.Status) {
	t.Helper()
	for _, next := range path {
		if err := store.Transition(context.Background(), rec, next); err != nil {
			t.Fatalf("Transition to %s: %v", next, err)
		}
	}
}

func TestSelectWritesEntryAndStatusTogether(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	rec := testsupport.NewScan(t, store, "o")

	if err := store.Select(ctx, rec, "acer-rubrum"); !errors.Is(err, services.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition before matching, got %v", err)
	}
	advance(t, store, rec, scans.StatusUploading, scans.StatusUploaded, scans.StatusAnalyzing,
		scans.StatusAnalyzed, scans.StatusMatching, scans.StatusUnmatched)

	stale := &scans.Record{ID: rec.ID, Status: scans.StatusMatched}
	if err := store.Select(ctx, stale, "acer-rubrum"); !errors.Is(err, services.ErrInvalidTransition) {
		t.Fatalf("expected compare-and-set failure for stale copy, got %v", err)
	}
	if stale.SelectedEntryID != "" || stale.Status != scans.StatusMatched {
		t.Fatalf("stale copy modified: %+v", stale)
	}
	fetched, _ := store.Get(ctx, rec.ID)
	if fetched.SelectedEntryID != "" || fetched.Status != scans.StatusUnmatched {
		t.Fatalf("failed selection left a write behind: %+v", fetched)
	}

	if err := store.Select(ctx, rec, "acer-rubrum"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	fetched, _ = store.Get(ctx, rec.ID)
	if fetched.SelectedEntryID != "acer-rubrum" || fetched.Status != scans.StatusManuallyMatched {
		t.Fatalf("unexpected persisted selection %+v", fetched)
	}
	if err := store.Select(ctx, rec, "quercus-robur"); err != nil {
		t.Fatalf("reselect: %v", err)
	}
	if rec.SelectedEntryID != "quercus-robur" {
		t.Fatalf("expected reselection applied, got %q", rec.SelectedEntryID)
	}
}

func TestReclaimStaleRollsBackInFlight(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	uploading := testsupport.NewScan(t, store, "o")
	advance(t, store, uploading, scans.StatusUploading)
	analyzing := testsupport.NewScan(t, store, "o")
	advance(t, store, analyzing, scans.StatusUploading, scans.StatusUploaded, scans.StatusAnalyzing)
	matching := testsupport.NewScan(t, store, "o")
	advance(t, store, matching, scans.StatusUploading, scans.StatusUploaded, scans.StatusAnalyzing, scans.StatusAnalyzed, scans.StatusMatching)

	if n, err := store.ReclaimStale(ctx, time.Now().Add(-time.Hour)); err != nil || n != 0 {
		t.Fatalf("expected fresh heartbeats to survive, got %d %v", n, err)
	}
	n, err := store.ReclaimStale(ctx, time.Now().Add(time.Second))
	if err != nil || n != 3 {
		t.Fatalf("expected 3 reclaimed, got %d %v", n, err)
	}

	want := map[string]scans.Status{
		uploading.ID: scans.StatusCreated,
		analyzing.ID: scans.StatusUploaded,
		matching.ID:  scans.StatusAnalyzed,
	}
	for id, status := range want {
		rec, _ := store.Get(ctx, id)
		if rec.Status != status || rec.LastHeartbeat != nil {
			t.Fatalf("record %s: got %s heartbeat=%v, want %s", id, rec.Status, rec.LastHeartbeat, status)
		}
	}
}

func TestResetInFlightIgnoresCompleted(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	inFlight := testsupport.NewScan(t, store, "o")
	advance(t, store, inFlight, scans.StatusUploading)
	done := testsupport.NewScan(t, store, "o")
	advance(t, store, done, scans.StatusUploading, scans.StatusUploaded)

	n, err := store.ResetInFlight(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected one reset, got %d %v", n, err)
	}
	rec, _ := store.Get(ctx, done.ID)
	if rec.Status != scans.StatusUploaded {
		t.Fatalf("completed stage changed to %s", rec.Status)
	}
}

func TestRollbackReturnsToCompletedStatus(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	rec := testsupport.NewScan(t, store, "o")
	advance(t, store, rec, scans.StatusUploading, scans.StatusUploaded, scans.StatusAnalyzing)
	if err := store.Rollback(ctx, rec); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if rec.Status != scans.StatusUploaded || rec.LastHeartbeat != nil {
		t.Fatalf("unexpected in-memory state %s %v", rec.Status, rec.LastHeartbeat)
	}
	stored, _ := store.Get(ctx, rec.ID)
	if stored.Status != scans.StatusUploaded {
		t.Fatalf("persisted status = %s, want uploaded", stored.Status)
	}
	if err := store.Rollback(ctx, rec); err != nil || rec.Status != scans.StatusUploaded {
		t.Fatalf("rollback of completed status should be a no-op, got %s %v", rec.Status, err)
	}
}

func TestNextResumableSkipsFailed(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	failed := testsupport.NewScan(t, store, "o")
	failed.SetFailed("uploading", services.Wrap(services.ErrExternalTool, "uploading", "store", "all strategies failed", nil))
	if err := store.Update(ctx, failed); err != nil {
		t.Fatalf("Update: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	ready := testsupport.NewScan(t, store, "o")

	next, err := store.NextResumable(ctx)
	if err != nil || next == nil || next.ID != ready.ID {
		t.Fatalf("expected %s, got %+v %v", ready.ID, next, err)
	}

	if n, err := store.ClearFailure(ctx, failed.ID); err != nil || n != 1 {
		t.Fatalf("ClearFailure: %d %v", n, err)
	}
	next, _ = store.NextResumable(ctx)
	if next == nil || next.ID != failed.ID {
		t.Fatalf("expected cleared record to be picked first, got %+v", next)
	}
}

func TestListFiltersAndHealth(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	a := testsupport.NewScan(t, store, "alice")
	advance(t, store, a, scans.StatusUploading)
	testsupport.NewScan(t, store, "bob")
	testsupport.NewScan(t, store, "alice")

	all, err := store.List(ctx, scans.ListOptions{})
	if err != nil || len(all) != 3 {
		t.Fatalf("expected 3 records, got %d %v", len(all), err)
	}
	alice, _ := store.List(ctx, scans.ListOptions{OwnerID: "alice", Limit: 1})
	if len(alice) != 1 || alice[0].OwnerID != "alice" {
		t.Fatalf("unexpected owner filter %+v", alice)
	}
	uploading, _ := store.List(ctx, scans.ListOptions{Statuses: []scans.Status{scans.StatusUploading}})
	if len(uploading) != 1 || uploading[0].ID != a.ID {
		t.Fatalf("unexpected status filter %+v", uploading)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 3 || health.InFlight != 1 || health.Pending != 2 {
		t.Fatalf("unexpected health %+v", health)
	}
	db := store.CheckHealth(ctx)
	if !db.Reachable || db.SchemaVersion != 1 || db.TotalRecords != 3 || !db.IntegrityCheck {
		t.Fatalf("unexpected db health %+v", db)
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, err := scans.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rec := testsupport.NewScan(t, first, "o")
	_ = first.Close()

	second := testsupport.MustOpenStore(t, cfg)
	if got, _ := second.Get(context.Background(), rec.ID); got == nil {
		t.Fatal("expected record after reopen")
	}
}

func TestStatusHelpers(t *testing.T) {
	if !scans.CanTransition(scans.StatusUnmatched, scans.StatusManuallyMatched) {
		t.Fatal("expected manual selection from unmatched")
	}
	if scans.CanTransition(scans.StatusAnalyzed, scans.StatusManuallyMatched) {
		t.Fatal("manual selection must wait for the pipeline to finish")
	}
	if prev, ok := scans.StatusMatching.Previous(); !ok || prev != scans.StatusAnalyzed {
		t.Fatalf("unexpected rollback %s", prev)
	}
	if _, ok := scans.ParseStatus(" MATCHED "); !ok {
		t.Fatal("expected ParseStatus to normalize")
	}
}
