package export_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"leaflens/internal/export"
	"leaflens/internal/logging"
	"leaflens/internal/match"
	"leaflens/internal/scans"
	"leaflens/internal/services"
)

type stubLister struct {
	recs []*scans.Record
	err  error
	opts scans.ListOptions
}

func (s *stubLister) List(_ context.Context, opts scans.ListOptions) ([]*scans.Record, error) {
	s.opts = opts
	return s.recs, s.err
}

func sampleRecords() []*scans.Record {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []*scans.Record{
		{
			ID:      "scan-1",
			OwnerID: "owner-1",
			Status:  scans.StatusMatched,
			Sources: []scans.Source{{Index: 0}, {Index: 1}},
			Candidates: []match.Candidate{
				{CatalogEntryID: "quercus-robur", Name: "Quercus robur", Confidence: 91},
			},
			ImageFailures: []scans.ImageFailure{{Index: 1, Stage: "analyzing", Kind: services.KindAnalysisTimeout}},
			CreatedAt:     created,
			UpdatedAt:     created.Add(time.Minute),
		},
		{
			ID:      "scan-2",
			OwnerID: "owner-2",
			Status:  scans.StatusUploaded,
			Sources: []scans.Source{{Index: 0}},
			Failure: &scans.Failure{Stage: "analyzing", Kind: services.KindAnalysisService, Message: "backend unavailable"},
		},
	}
}

func TestXLSXWritesOneRowPerScan(t *testing.T) {
	lister := &stubLister{recs: sampleRecords()}
	svc := export.NewService(lister, logging.NewNop())

	data, rows, err := svc.XLSX(context.Background(), scans.ListOptions{OwnerID: "owner-1"})
	if err != nil {
		t.Fatalf("XLSX: %v", err)
	}
	if rows != 2 {
		t.Fatalf("expected 2 rows, got %d", rows)
	}
	if lister.opts.OwnerID != "owner-1" {
		t.Fatalf("expected list options forwarded, got %+v", lister.opts)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	got, err := f.GetRows(export.SheetName)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(got))
	}
	if got[0][0] != "Scan ID" || len(got[0]) != len(export.Headers) {
		t.Fatalf("unexpected header row %v", got[0])
	}
	first := got[1]
	if first[0] != "scan-1" || first[2] != "matched" || first[3] != "2" || first[4] != "Quercus robur" || first[5] != "91" {
		t.Fatalf("unexpected first row %v", first)
	}
	if first[7] != "image 1 analyzing/analysis_timeout" {
		t.Fatalf("expected per-image failure note, got %q", first[7])
	}
	if first[8] != "2026-03-01T12:00:00Z" {
		t.Fatalf("unexpected created cell %q", first[8])
	}
	second := got[2]
	if second[4] != "" || second[7] != "analyzing/analysis_service_error: backend unavailable" {
		t.Fatalf("unexpected second row %v", second)
	}
}

func TestWriteFileCreatesWorkbook(t *testing.T) {
	svc := export.NewService(&stubLister{recs: sampleRecords()[:1]}, nil)
	path := filepath.Join(t.TempDir(), "scans.xlsx")

	rows, err := svc.WriteFile(context.Background(), path, scans.ListOptions{})
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected 1 row, got %d", rows)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open exported file: %v", err)
	}
	defer f.Close()
	if name := f.GetSheetName(0); name != export.SheetName {
		t.Fatalf("expected sheet %q, got %q", export.SheetName, name)
	}
}

func TestXLSXPropagatesListError(t *testing.T) {
	svc := export.NewService(&stubLister{err: errors.New("db down")}, nil)
	if _, _, err := svc.XLSX(context.Background(), scans.ListOptions{}); err == nil {
		t.Fatal("expected list error")
	}
}
