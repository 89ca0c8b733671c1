package staging

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"leaflens/internal/logging"
	"leaflens/internal/services"
)

func TestAreaPutReadRemove(t *testing.T) {
	area := New(t.TempDir())

	path, err := area.Put("Scan-1", 2, "My Leaf.JPG", []byte("raw"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if filepath.Base(path) != "2-My-Leaf.jpg" || filepath.Base(filepath.Dir(path)) != "scan-1" {
		t.Fatalf("unexpected staged path %s", path)
	}
	data, err := area.Read("Scan-1", 2, "My Leaf.JPG")
	if err != nil || string(data) != "raw" {
		t.Fatalf("Read: %q %v", data, err)
	}

	if err := area.Remove("Scan-1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := area.Read("Scan-1", 2, "My Leaf.JPG"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found after remove, got %v", err)
	}
}

func TestAreaRequiresRoot(t *testing.T) {
	if _, err := New(" ").Put("s", 0, "a.jpg", nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestSweepWithoutRoot(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := New(dir).Sweep(context.Background(), SweepOptions{MaxAge: time.Hour}, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q, got %+v", dir, result)
		}
	}
}

func TestSweepRemovesOrphanedAndStale(t *testing.T) {
	area := New(t.TempDir())
	for _, id := range []string{"pending", "old-pending", "finished"} {
		if _, err := area.Put(id, 0, "leaf.jpg", []byte("12345")); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(area.Dir("old-pending"), past, past); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	loose := filepath.Join(area.Root(), "notes.txt")
	if err := os.WriteFile(loose, []byte("x"), 0o644); err != nil {
		t.Fatalf("write loose file: %v", err)
	}

	active := map[string]struct{}{"pending": {}, "old-pending": {}}
	result := area.Sweep(context.Background(), SweepOptions{Active: active, MaxAge: time.Hour}, logging.NewNop())

	reasons := map[string]string{}
	for _, rm := range result.Removed {
		reasons[rm.ScanID] = rm.Reason
	}
	if len(reasons) != 2 || reasons["finished"] != ReasonOrphaned || reasons["old-pending"] != ReasonStale {
		t.Fatalf("unexpected removals %+v", result.Removed)
	}
	if result.Reclaimed() != 10 {
		t.Fatalf("Reclaimed = %d, want 10", result.Reclaimed())
	}
	if _, err := os.Stat(area.Dir("pending")); err != nil {
		t.Fatalf("pending scan directory should remain: %v", err)
	}
	if _, err := os.Stat(loose); err != nil {
		t.Fatalf("loose files are not staging directories: %v", err)
	}
}

func TestSweepZeroMaxAgeKeepsActive(t *testing.T) {
	area := New(t.TempDir())
	if _, err := area.Put("pending", 0, "leaf.jpg", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	past := time.Now().Add(-48 * time.Hour)
	_ = os.Chtimes(area.Dir("pending"), past, past)

	result := area.Sweep(context.Background(), SweepOptions{Active: map[string]struct{}{"pending": {}}}, logging.NewNop())
	if len(result.Removed) != 0 {
		t.Fatalf("expected nothing removed, got %+v", result.Removed)
	}
}

func TestSweepStopsOnCancel(t *testing.T) {
	area := New(t.TempDir())
	if _, err := area.Put("orphan", 0, "leaf.jpg", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if result := area.Sweep(ctx, SweepOptions{}, logging.NewNop()); len(result.Removed) != 0 {
		t.Fatalf("expected no work after cancel, got %v", result.Removed)
	}
	if _, err := os.Stat(area.Dir("orphan")); err != nil {
		t.Fatalf("directory removed after cancel: %v", err)
	}
}
