package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

// jsonHandler writes aum.log: one JSON object per line. Records logged with
// a bare logger still get run_id, file, and job position from ctx, so every
// line of a batch can be joined on run_id.
type jsonHandler struct {
	inner   slog.Handler
	keys    map[string]struct{}
	grouped bool
}

func newJSONHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) (slog.Handler, error) {
	inner := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   addSource,
		ReplaceAttr: replaceJSONAttr,
	})
	return &jsonHandler{inner: inner}, nil
}

// replaceJSONAttr renders ts in UTC, levels in lower case, sources as
// file:line, and durations as Go duration strings ("1.5s").
func replaceJSONAttr(groups []string, attr slog.Attr) slog.Attr {
	if attr.Value.Kind() == slog.KindDuration {
		attr.Value = slog.StringValue(attr.Value.Duration().Round(time.Millisecond).String())
		return attr
	}
	if len(groups) > 0 {
		return attr
	}
	switch attr.Key {
	case slog.TimeKey:
		attr.Key = "ts"
		if attr.Value.Kind() == slog.KindTime {
			attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339Nano))
		}
	case slog.LevelKey:
		attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
	case slog.SourceKey:
		if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
			attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
		}
	}
	return attr
}

func (h *jsonHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *jsonHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.grouped {
		return h.inner.Handle(ctx, record)
	}
	var missing []slog.Attr
	for _, field := range ContextFields(ctx) {
		if _, ok := h.keys[field.Key]; ok || recordHas(record, field.Key) {
			continue
		}
		missing = append(missing, field)
	}
	if len(missing) > 0 {
		record = record.Clone()
		record.AddAttrs(missing...)
	}
	return h.inner.Handle(ctx, record)
}

func (h *jsonHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &jsonHandler{inner: h.inner.WithAttrs(attrs), keys: h.keys, grouped: h.grouped}
	if !h.grouped && len(attrs) > 0 {
		next.keys = make(map[string]struct{}, len(h.keys)+len(attrs))
		for key := range h.keys {
			next.keys[key] = struct{}{}
		}
		for _, attr := range attrs {
			next.keys[attr.Key] = struct{}{}
		}
	}
	return next
}

func (h *jsonHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &jsonHandler{inner: h.inner.WithGroup(name), keys: h.keys, grouped: true}
}

func recordHas(record slog.Record, key string) bool {
	found := false
	record.Attrs(func(attr slog.Attr) bool {
		found = attr.Key == key
		return !found
	})
	return found
}
