package catalog_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"leaflens/internal/catalog"
	"leaflens/internal/logging"
	"leaflens/internal/services"
)

func sampleEntries() []catalog.Entry {
	return []catalog.Entry{
		{ID: "monstera-deliciosa", Name: "Monstera deliciosa", Aliases: []string{"Swiss cheese plant"}, Tags: []string{"split leaf", "Araceae", "vine"}, UpdatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "ficus-lyrata", Name: "Ficus lyrata", Aliases: []string{"Fiddle-leaf fig"}, Tags: []string{"broad leaf", "Moraceae"}, UpdatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "urtica-dioica", Name: "Urtica dioica", Aliases: []string{"Stinging nettle"}, Tags: []string{"serrated leaf", "herb"}, UpdatedAt: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)},
	}
}

func TestBuildIndexesPhrases(t *testing.T) {
	snap := catalog.Build(sampleEntries(), "test")
	if snap.Len() != 3 {
		t.Fatalf("Len = %d", snap.Len())
	}
	tagged := snap.ByTag("serrated leaf")
	if len(tagged) != 1 || snap.At(tagged[0]).Entry.ID != "urtica-dioica" {
		t.Fatalf("unexpected tag lookup %v", tagged)
	}
	refs := snap.ByPhrase("fiddle leaf fig")
	if len(refs) != 1 || !refs[0].Alias || snap.At(refs[0].Index).Entry.ID != "ficus-lyrata" {
		t.Fatalf("unexpected alias lookup %+v", refs)
	}
	if snap.MaxPhraseTokens() != 3 {
		t.Fatalf("MaxPhraseTokens = %d, want 3", snap.MaxPhraseTokens())
	}
	if _, ok := snap.Get("missing"); ok {
		t.Fatal("expected missing id lookup to fail")
	}
}

func TestBuildOrdersByIDAndDeduplicates(t *testing.T) {
	entries := append(sampleEntries(), catalog.Entry{ID: "ficus-lyrata", Name: "Ficus replaced"})
	snap := catalog.Build(entries, "")
	got := snap.Entries()
	if got[0].ID != "ficus-lyrata" || got[2].ID != "urtica-dioica" {
		t.Fatalf("unexpected order %v", got)
	}
	if e, _ := snap.Get("ficus-lyrata"); e.Name != "Ficus replaced" {
		t.Fatalf("expected last duplicate to win, got %q", e.Name)
	}
}

func TestSnapshotSearchRanksByHitsThenRecency(t *testing.T) {
	snap := catalog.Build(sampleEntries(), "")
	got := snap.Search("leaf", 5)
	if len(got) != 3 {
		t.Fatalf("expected three leaf hits, got %v", got)
	}
	if got[0].ID != "monstera-deliciosa" || got[1].ID != "ficus-lyrata" {
		t.Fatalf("equal hits should rank newest first, got %v", got)
	}

	got = snap.Search("serrated leaf nettle", 2)
	if len(got) != 2 || got[0].ID != "urtica-dioica" {
		t.Fatalf("expected nettle first, got %v", got)
	}
	if snap.Search("cactus", 5) != nil {
		t.Fatal("expected no results")
	}
}

func TestLocalSearcherHonorsContext(t *testing.T) {
	searcher := catalog.NewLocalSearcher(catalog.NewHolder(catalog.Build(sampleEntries(), "")))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := searcher.Search(ctx, "leaf", 3); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	got, err := searcher.Search(context.Background(), "fig", 3)
	if err != nil || len(got) != 1 {
		t.Fatalf("unexpected search result %v err=%v", got, err)
	}
}

func TestLoadValidatesSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	if err := os.WriteFile(path, []byte(`{"entries":[{"id":"x"}]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := catalog.Load(path); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing name, got %v", err)
	}

	if err := os.WriteFile(path, []byte(`{"entries":[{"id":"x","name":"a"},{"id":"x","name":"b"}]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := catalog.Load(path); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected duplicate id rejection, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	snap, err := catalog.Load(filepath.Join(t.TempDir(), "absent.json"))
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if snap == nil || snap.Len() != 0 {
		t.Fatal("expected empty snapshot alongside not-found error")
	}
}

func TestWriteLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	if err := catalog.Write(path, sampleEntries()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	snap, err := catalog.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.Len() != 3 || snap.Source() != path {
		t.Fatalf("unexpected snapshot: len=%d source=%q", snap.Len(), snap.Source())
	}
}

func TestHolderReloadKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	if err := catalog.Write(path, sampleEntries()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	holder := catalog.NewHolder(nil)
	if _, err := holder.Reload(path); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	previous := holder.Current()

	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := holder.Reload(path); err == nil {
		t.Fatal("expected reload error")
	}
	if holder.Current() != previous {
		t.Fatal("expected previous snapshot to remain published")
	}
}

func TestWatcherSwapsSnapshotOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	if err := catalog.Write(path, sampleEntries()[:1]); err != nil {
		t.Fatalf("Write: %v", err)
	}
	holder := catalog.NewHolder(nil)
	if _, err := holder.Reload(path); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	before := holder.Current()

	watcher := catalog.NewWatcher(path, holder, logging.NewNop())
	watcher.SetDebounce(10 * time.Millisecond)
	reloaded := make(chan *catalog.Snapshot, 1)
	watcher.Notify(reloaded)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	// Give the watcher time to register before the write.
	time.Sleep(50 * time.Millisecond)
	if err := catalog.Write(path, sampleEntries()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case snap := <-reloaded:
		if snap.Len() != 3 {
			t.Fatalf("reloaded snapshot has %d entries", snap.Len())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
	if before.Len() != 1 {
		t.Fatal("previous snapshot must not be mutated by reload")
	}
	if holder.Current().Len() != 3 {
		t.Fatal("holder should publish the new snapshot")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}
