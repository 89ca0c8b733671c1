package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"leaflens/internal/preflight"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 24
	statusIndent     = "  "
)

var statusStyles = map[statusKind]struct {
	tag   string
	color string
}{
	statusInfo:  {"INFO", ansiBlue},
	statusOK:    {"OK", ansiGreen},
	statusWarn:  {"WARN", ansiYellow},
	statusError: {"ERROR", ansiRed},
}

// paint wraps text in the kind's color when colorize is set.
func (k statusKind) paint(text string, colorize bool) string {
	style, ok := statusStyles[k]
	if !colorize || !ok {
		return text
	}
	return style.color + text + ansiReset
}

func (k statusKind) tag() string {
	if style, ok := statusStyles[k]; ok {
		return style.tag
	}
	return statusStyles[statusInfo].tag
}

// renderStatusLine renders "  Label:   [TAG] message" padded to a common
// label column.
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	var b strings.Builder
	b.WriteString(statusIndent)
	fmt.Fprintf(&b, "%-*s ", statusLabelWidth, label+":")
	b.WriteString("[" + kind.tag() + "]")
	if message != "" {
		b.WriteString(" " + message)
	}
	return kind.paint(b.String(), colorize)
}

func renderSectionHeader(title string, colorize bool) []string {
	line := "== " + strings.TrimSpace(title) + " =="
	return []string{
		statusInfo.paint(line, colorize),
		statusInfo.paint(strings.Repeat("-", len(line)), colorize),
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// preflightLines renders a summary line followed by one line per check.
func preflightLines(results []preflight.Result, colorize bool) []string {
	failed := len(preflight.Failed(results))
	summary := statusOK
	if failed > 0 {
		summary = statusError
	}
	lines := make([]string, 0, len(results)+1)
	lines = append(lines, renderStatusLine("Summary", summary,
		fmt.Sprintf("%d/%d checks passed", len(results)-failed, len(results)), colorize))
	for _, r := range results {
		lines = append(lines, renderStatusLine(r.Name, boolKind(r.Passed), r.Detail, colorize))
	}
	return lines
}
