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

const (
	consoleTimeLayout = "2006-01-02 15:04:05"
	maxValueLen       = 200
)

// consoleHandler writes one header line per record:
//
//	2026-03-01 09:30:00 WARN  [sheets-csv] csv 1AbCdEfG…/0: export failed status=403
//	    hint: share the sheet as "anyone with the link"
//	    impact: tab skipped
//
// Sheet, gid and transport fold into the subject; hint and impact get their
// own indented lines.
type consoleHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	level     slog.Leveler
	addSource bool
	attrs     []slog.Attr
	groups    []string
}

func newConsoleHandler(w io.Writer, level slog.Leveler, addSource bool) *consoleHandler {
	return &consoleHandler{mu: &sync.Mutex{}, w: w, level: level, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), qualify(h.groups, attrs)...)
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	fields := make([]slog.Attr, 0, len(h.attrs)+record.NumAttrs())
	fields = append(fields, h.attrs...)
	record.Attrs(func(a slog.Attr) bool {
		fields = append(fields, qualify(h.groups, []slog.Attr{a})...)
		return true
	})

	var (
		component, transport, sheetID, gid string
		hint, impact                       string
		inline                             []slog.Attr
	)
	for _, a := range dedupe(fields) {
		switch a.Key {
		case FieldComponent:
			component = a.Value.String()
		case FieldTransport:
			transport = a.Value.String()
		case FieldSheetID:
			sheetID = a.Value.String()
		case FieldGID:
			gid = a.Value.String()
		case FieldErrorHint:
			hint = a.Value.String()
		case FieldImpact:
			impact = a.Value.String()
		case FieldCorrelationID:
			if record.Level < slog.LevelInfo {
				inline = append(inline, a)
			}
		default:
			inline = append(inline, a)
		}
	}

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var buf bytes.Buffer
	buf.WriteString(ts.In(time.Local).Format(consoleTimeLayout))
	buf.WriteByte(' ')
	fmt.Fprintf(&buf, "%-5s", levelLabel(record.Level))
	if component != "" {
		buf.WriteString(" [" + component + "]")
	}
	if subject := formatSubject(transport, sheetID, gid); subject != "" {
		buf.WriteString(" " + subject + ":")
	}
	buf.WriteByte(' ')
	buf.WriteString(strings.TrimSpace(record.Message))
	for _, a := range inline {
		buf.WriteByte(' ')
		buf.WriteString(a.Key)
		buf.WriteByte('=')
		buf.WriteString(formatValue(a.Key, a.Value))
	}
	if h.addSource && record.PC != 0 {
		if src := record.Source(); src != nil && src.File != "" {
			buf.WriteString(" (" + filepath.Base(src.File) + ":" + strconv.Itoa(src.Line) + ")")
		}
	}
	buf.WriteByte('\n')
	if hint != "" {
		buf.WriteString("    hint: " + hint + "\n")
	}
	if impact != "" {
		buf.WriteString("    impact: " + impact + "\n")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

// qualify resolves values, flattens groups and prefixes keys with the open
// group path.
func qualify(groups []string, attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		a.Value = a.Value.Resolve()
		if a.Equal(slog.Attr{}) {
			continue
		}
		if a.Value.Kind() == slog.KindGroup {
			path := groups
			if a.Key != "" {
				path = append(append([]string(nil), groups...), a.Key)
			}
			out = append(out, qualify(path, a.Value.Group())...)
			continue
		}
		if len(groups) > 0 {
			a.Key = strings.Join(groups, ".") + "." + a.Key
		}
		out = append(out, a)
	}
	return out
}

// dedupe keeps the first position of each key with its last value.
func dedupe(attrs []slog.Attr) []slog.Attr {
	index := make(map[string]int, len(attrs))
	out := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		if i, ok := index[a.Key]; ok {
			out[i].Value = a.Value
			continue
		}
		index[a.Key] = len(out)
		out = append(out, a)
	}
	return out
}

func formatSubject(transport, sheetID, gid string) string {
	var parts []string
	if t := strings.TrimSpace(transport); t != "" {
		parts = append(parts, strings.ToLower(t))
	}
	target := shortSheetID(strings.TrimSpace(sheetID))
	if g := strings.TrimSpace(gid); g != "" {
		target += "/" + g
	}
	if target != "" {
		parts = append(parts, target)
	}
	return strings.Join(parts, " ")
}

func shortSheetID(id string) string {
	if len(id) <= 10 {
		return id
	}
	return id[:8] + "…"
}

func formatValue(key string, v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindDuration:
		return humanDuration(v.Duration())
	case slog.KindTime:
		return v.Time().In(time.Local).Format(consoleTimeLayout)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = fmt.Sprint(v.Any())
		}
	default:
		s = v.String()
	}
	if key == "error" && len(s) > maxValueLen {
		s = s[:maxValueLen] + "…"
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

func humanDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
	case d < time.Minute:
		return strconv.FormatFloat(d.Seconds(), 'f', 1, 64) + "s"
	default:
		return d.Round(time.Second).String()
	}
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
