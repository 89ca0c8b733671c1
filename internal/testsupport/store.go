package testsupport

import (
	"context"
	"testing"

	"leaflens/internal/catalog"
	"leaflens/internal/config"
	"leaflens/internal/scans"
)

// MustOpenStore opens a scans.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *scans.Store {
	t.Helper()

	store, err := scans.Open(cfg)
	if err != nil {
		t.Fatalf("scans.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewScan inserts a created record for tests using the provided store.
func NewScan(t testing.TB, store *scans.Store, owner string, sources ...scans.Source) *scans.Record {
	t.Helper()

	rec := &scans.Record{OwnerID: owner, Sources: sources}
	if err := store.Create(context.Background(), rec); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return rec
}

// MustLoadCatalog writes entries to cfg.Catalog.Path and returns a holder
// serving the loaded snapshot.
func MustLoadCatalog(t testing.TB, cfg *config.Config, entries ...catalog.Entry) *catalog.Holder {
	t.Helper()

	if err := catalog.Write(cfg.Catalog.Path, entries); err != nil {
		t.Fatalf("catalog.Write: %v", err)
	}
	snap, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	return catalog.NewHolder(snap)
}
