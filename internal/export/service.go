// Package export renders scan history as an XLSX workbook.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"leaflens/internal/logging"
	"leaflens/internal/scans"
)

// SheetName is the worksheet holding one row per scan.
const SheetName = "Scans"

// Headers are the column titles in order.
var Headers = []string{
	"Scan ID",
	"Owner",
	"Status",
	"Images",
	"Top Candidate",
	"Confidence",
	"Selected Entry",
	"Failure",
	"Created",
	"Updated",
}

// Lister is the slice of the scan store the export reads.
type Lister interface {
	List(ctx context.Context, opts scans.ListOptions) ([]*scans.Record, error)
}

// Service produces XLSX exports of stored scans.
type Service struct {
	store  Lister
	logger *slog.Logger
}

// NewService builds an export service over store.
func NewService(store Lister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{store: store, logger: logging.NewComponentLogger(logger, "export")}
}

// XLSX returns the workbook bytes for every scan matching opts.
func (s *Service) XLSX(ctx context.Context, opts scans.ListOptions) ([]byte, int, error) {
	start := time.Now()
	recs, err := s.store.List(ctx, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("query scans: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()
	// New files start with Sheet1; rename it rather than leave it empty.
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, 0, fmt.Errorf("name sheet: %w", err)
	}

	for i, h := range Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		end, _ := excelize.CoordinatesToCellName(len(Headers), 1)
		_ = f.SetCellStyle(SheetName, "A1", end, style)
	}

	for i, rec := range recs {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(SheetName, cell, v)
		}
		write(1, rec.ID)
		write(2, rec.OwnerID)
		write(3, string(rec.Status))
		write(4, len(rec.Sources))
		if top, ok := rec.TopCandidate(); ok {
			write(5, top.Name)
			write(6, top.Confidence)
		}
		write(7, rec.SelectedEntryID)
		write(8, truncate(failureText(rec), 140))
		write(9, formatTime(rec.CreatedAt))
		write(10, formatTime(rec.UpdatedAt))
	}

	_ = f.SetColWidth(SheetName, "A", "A", 38)
	_ = f.SetColWidth(SheetName, "B", "C", 16)
	_ = f.SetColWidth(SheetName, "E", "E", 28)
	_ = f.SetColWidth(SheetName, "G", "G", 22)
	_ = f.SetColWidth(SheetName, "H", "H", 48)
	_ = f.SetColWidth(SheetName, "I", "J", 22)
	_ = f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("scan export written",
		logging.String(logging.FieldEventType, "export_written"),
		logging.Int("rows", len(recs)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return buf.Bytes(), len(recs), nil
}

// WriteFile writes the workbook to path and returns the row count.
func (s *Service) WriteFile(ctx context.Context, path string, opts scans.ListOptions) (int, error) {
	data, rows, err := s.XLSX(ctx, opts)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("write export: %w", err)
	}
	return rows, nil
}

func failureText(rec *scans.Record) string {
	var parts []string
	if rec.Failure != nil {
		parts = append(parts, fmt.Sprintf("%s/%s: %s", rec.Failure.Stage, rec.Failure.Kind, rec.Failure.Message))
	}
	for _, f := range rec.ImageFailures {
		parts = append(parts, fmt.Sprintf("image %d %s/%s", f.Index, f.Stage, f.Kind))
	}
	return strings.Join(parts, "; ")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
