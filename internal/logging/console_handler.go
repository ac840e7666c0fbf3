package logging

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// prettyHandler renders one human-readable line per record:
//
//	2026-01-02 15:04:05 INFO [workflow] proj-1 · chapter #3 – message key=value
//
// The component, project, stage and unit attributes move into the header;
// everything else trails the message in first-seen order, last value wins.
type prettyHandler struct {
	mu        *sync.Mutex
	writer    io.Writer
	level     *slog.LevelVar
	addSource bool
	groups    []string
	preset    fieldSet
}

func newPrettyHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &prettyHandler{mu: &sync.Mutex{}, writer: w, level: lvl, addSource: addSource}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, record slog.Record) error {
	if !h.Enabled(context.Background(), record.Level) {
		return nil
	}
	fields := h.preset.clone()
	record.Attrs(func(attr slog.Attr) bool {
		fields.add(h.groups, attr)
		return true
	})

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var b strings.Builder
	b.WriteString(ts.Local().Format("2006-01-02 15:04:05"))
	b.WriteByte(' ')
	b.WriteString(levelLabel(record.Level))
	if component := fields.take(FieldComponent); component != "" {
		fmt.Fprintf(&b, " [%s]", component)
	}
	if subject := fields.subject(); subject != "" {
		b.WriteByte(' ')
		b.WriteString(subject)
	}
	b.WriteString(" – ")
	b.WriteString(cmp.Or(strings.TrimSpace(record.Message), "(no message)"))
	if h.addSource {
		if src := record.Source(); src != nil {
			fmt.Fprintf(&b, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	for i, key := range fields.keys {
		b.WriteByte(' ')
		b.WriteString(key)
		b.WriteByte('=')
		if isSecretKey(key) {
			b.WriteString(redacted)
		} else {
			b.WriteString(formatValue(fields.values[i]))
		}
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, b.String())
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.preset = h.preset.clone()
	for _, attr := range attrs {
		next.preset.add(h.groups, attr)
	}
	return &next
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(slices.Clip(h.groups), name)
	return &next
}

// fieldSet is an insertion-ordered attribute map keyed by dotted group path.
type fieldSet struct {
	keys   []string
	values []slog.Value
}

func (f fieldSet) clone() fieldSet {
	return fieldSet{keys: slices.Clone(f.keys), values: slices.Clone(f.values)}
}

func (f *fieldSet) add(groups []string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		inner := groups
		if attr.Key != "" {
			inner = append(slices.Clip(groups), attr.Key)
		}
		for _, member := range value.Group() {
			f.add(inner, member)
		}
		return
	}
	if attr.Key == "" {
		return
	}
	key := strings.Join(append(slices.Clip(groups), attr.Key), ".")
	if i := slices.Index(f.keys, key); i >= 0 {
		f.values[i] = value
		return
	}
	f.keys = append(f.keys, key)
	f.values = append(f.values, value)
}

// take removes key and returns its trimmed string form.
func (f *fieldSet) take(key string) string {
	i := slices.Index(f.keys, key)
	if i < 0 {
		return ""
	}
	value := strings.TrimSpace(attrString(f.values[i]))
	f.keys = slices.Delete(f.keys, i, i+1)
	f.values = slices.Delete(f.values, i, i+1)
	return value
}

// subject takes the project, stage and unit fields and renders
// "project · stage #unit", omitting absent parts.
func (f *fieldSet) subject() string {
	project := f.take(FieldProjectID)
	stage := f.take(FieldStage)
	if unit := f.take(FieldUnit); unit != "" && unit != "0" {
		stage = cmp.Or(stage, "unit") + " #" + unit
	}
	var parts []string
	for _, part := range []string{project, stage} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, " · ")
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}
