package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleHandler writes one human-readable line per record:
//
//	2026-01-02T15:04:05Z INFO upload: scan 1a2b3c4d (uploading, image 2): message key=value
//
// The component, scan id, stage, and image index are lifted out of the
// attribute list into the subject prefix.
type consoleHandler struct {
	mu        *sync.Mutex
	writer    io.Writer
	level     *slog.LevelVar
	attrs     []slog.Attr
	groups    []string
	addSource bool
	color     bool
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource, color bool) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, writer: w, level: lvl, addSource: addSource, color: color}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	if record.Level < h.level.Level() {
		return nil
	}

	fields := make([]field, 0, record.NumAttrs()+len(h.attrs))
	for _, attr := range h.attrs {
		fields = appendField(fields, h.groups, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendField(fields, h.groups, attr)
		return true
	})
	subj, rest := liftSubject(fields)

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var buf bytes.Buffer
	buf.Grow(128 + len(rest)*24)
	buf.WriteString(ts.UTC().Format(time.RFC3339))
	buf.WriteByte(' ')
	buf.WriteString(h.levelLabel(record.Level))
	buf.WriteByte(' ')
	if prefix := subj.String(); prefix != "" {
		buf.WriteString(prefix)
		buf.WriteString(": ")
	}
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}
	buf.WriteString(msg)

	if h.addSource {
		if src := record.Source(); src != nil {
			fmt.Fprintf(&buf, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	for _, f := range rest {
		buf.WriteByte(' ')
		buf.WriteString(f.key)
		buf.WriteByte('=')
		buf.WriteString(formatValue(f.value))
	}
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.writer.Write(buf.Bytes())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

var levelStyles = []struct {
	min   slog.Level
	label string
	code  string
}{
	{slog.LevelError, "ERROR", "31"},
	{slog.LevelWarn, "WARN", "33"},
	{slog.LevelInfo, "INFO", "36"},
}

func (h *consoleHandler) levelLabel(level slog.Level) string {
	label, code := "DEBUG", "90"
	for _, style := range levelStyles {
		if level >= style.min {
			label, code = style.label, style.code
			break
		}
	}
	if !h.color {
		return label
	}
	return "\x1b[" + code + "m" + label + "\x1b[0m"
}

// subject identifies what a line is about.
type subject struct {
	component string
	scanID    string
	stage     string
	image     string
}

func (s subject) String() string {
	var parts []string
	if s.component != "" {
		parts = append(parts, s.component)
	}
	if s.scanID != "" {
		scan := "scan " + shortID(s.scanID)
		var detail []string
		if s.stage != "" {
			detail = append(detail, s.stage)
		}
		if s.image != "" {
			detail = append(detail, "image "+s.image)
		}
		if len(detail) > 0 {
			scan += " (" + strings.Join(detail, ", ") + ")"
		}
		parts = append(parts, scan)
	}
	return strings.Join(parts, ": ")
}

// liftSubject moves the first occurrence of each subject key out of fields.
// Stage and image index stay inline when the line carries no scan id.
func liftSubject(fields []field) (subject, []field) {
	var s subject
	slots := map[string]*string{
		FieldComponent:  &s.component,
		FieldScanID:     &s.scanID,
		FieldStage:      &s.stage,
		FieldImageIndex: &s.image,
	}
	rest := fields[:0]
	for _, f := range fields {
		if slot, ok := slots[f.key]; ok && *slot == "" {
			*slot = plainValue(f.value)
			continue
		}
		rest = append(rest, f)
	}
	if s.scanID == "" {
		if s.stage != "" {
			rest = append(rest, field{key: FieldStage, value: slog.StringValue(s.stage)})
		}
		if s.image != "" {
			rest = append(rest, field{key: FieldImageIndex, value: slog.StringValue(s.image)})
		}
		s.stage, s.image = "", ""
	}
	return s, rest
}

func shortID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type field struct {
	key   string
	value slog.Value
}

// appendField flattens groups into dotted keys.
func appendField(dst []field, prefix []string, attr slog.Attr) []field {
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		next := prefix
		if attr.Key != "" {
			next = append(append([]string(nil), prefix...), attr.Key)
		}
		for _, member := range attr.Value.Group() {
			dst = appendField(dst, next, member)
		}
		return dst
	}
	if attr.Key == "" {
		return dst
	}
	key := attr.Key
	if len(prefix) > 0 {
		key = strings.Join(prefix, ".") + "." + key
	}
	return append(dst, field{key: key, value: attr.Value})
}

func plainValue(v slog.Value) string {
	if v.Kind() == slog.KindString {
		return strings.TrimSpace(v.String())
	}
	return formatValue(v)
}

func formatValue(v slog.Value) string {
	v = v.Resolve()
	var s string
	switch v.Kind() {
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = fmt.Sprint(v.Any())
		}
	default:
		s = v.String()
	}
	if s == "" || strings.ContainsAny(s, " \t\n\r=\"") || strings.IndexFunc(s, func(r rune) bool { return r < ' ' }) >= 0 {
		return strconv.Quote(s)
	}
	return s
}
