package main

import (
	"fmt"
	"strconv"
	"strings"

	"leaflens/internal/api"
)

func renderScanTable(list []api.Scan, pretty bool) string {
	rows := make([][]string, 0, len(list))
	for _, scan := range list {
		top, confidence := "", ""
		if len(scan.Candidates) > 0 {
			top = scan.Candidates[0].Name
			confidence = strconv.Itoa(scan.Candidates[0].Confidence)
		}
		rows = append(rows, []string{
			scan.ID,
			scan.OwnerID,
			scanStatusLabel(scan),
			strconv.Itoa(len(scan.Images)),
			top,
			confidence,
			scan.UpdatedAt,
		})
	}
	return renderTable(
		[]string{"ID", "Owner", "Status", "Images", "Top Candidate", "Conf", "Updated"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft},
		pretty,
	)
}

func scanStatusLabel(scan api.Scan) string {
	if scan.Failure != nil {
		return scan.Status + " (failed)"
	}
	return scan.Status
}

func scanStatusKind(scan api.Scan) statusKind {
	switch {
	case scan.Failure != nil:
		return statusError
	case scan.Status == "matched" || scan.Status == "manually_matched":
		return statusOK
	case scan.Status == "unmatched" || len(scan.ImageFailures) > 0:
		return statusWarn
	default:
		return statusInfo
	}
}

func renderScanDetail(scan api.Scan, colorize bool) string {
	var lines []string
	lines = append(lines, renderSectionHeader("Scan "+scan.ID, colorize)...)
	lines = append(lines,
		renderStatusLine("Status", scanStatusKind(scan), scan.Status, colorize),
		renderStatusLine("Owner", statusInfo, scan.OwnerID, colorize),
		renderStatusLine("Created", statusInfo, scan.CreatedAt, colorize),
		renderStatusLine("Updated", statusInfo, scan.UpdatedAt, colorize),
	)
	if scan.MatchedCandidateID != "" {
		lines = append(lines, renderStatusLine("Matched", statusOK, scan.MatchedCandidateID, colorize))
	}
	if scan.SelectedEntryID != "" {
		lines = append(lines, renderStatusLine("Selected", statusOK, scan.SelectedEntryID, colorize))
	}
	if scan.Failure != nil {
		detail := fmt.Sprintf("%s at %s: %s", scan.Failure.Kind, scan.Failure.Stage, scan.Failure.Message)
		lines = append(lines, renderStatusLine("Failure", statusError, detail, colorize))
	}
	for _, f := range scan.ImageFailures {
		detail := fmt.Sprintf("%s at %s: %s", f.Kind, f.Stage, f.Message)
		lines = append(lines, renderStatusLine(fmt.Sprintf("Image %d", f.Index), statusWarn, detail, colorize))
	}

	if len(scan.Images) > 0 {
		lines = append(lines, "")
		rows := make([][]string, 0, len(scan.Images))
		for _, img := range scan.Images {
			rows = append(rows, []string{strconv.Itoa(img.Index), img.Filename, strconv.Itoa(img.Size), img.Strategy, img.Path})
		}
		lines = append(lines, renderTable(
			[]string{"#", "File", "Bytes", "Strategy", "Object"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft},
			colorize,
		))
	}

	if len(scan.Candidates) > 0 {
		lines = append(lines, "")
		rows := make([][]string, 0, len(scan.Candidates))
		for _, c := range scan.Candidates {
			conf := strconv.Itoa(c.Confidence)
			if c.LowConfidence {
				conf += " (low)"
			}
			rows = append(rows, []string{c.CatalogEntryID, c.Name, conf, c.Reasoning})
		}
		lines = append(lines, renderTable(
			[]string{"Entry", "Name", "Confidence", "Reasoning"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			colorize,
		))
	}

	if len(scan.Suggestions) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Suggestions", colorize)...)
		for _, s := range scan.Suggestions {
			lines = append(lines, fmt.Sprintf("%s%s (%s)", statusIndent, s.Name, s.ID))
		}
	}
	return strings.Join(lines, "\n")
}
