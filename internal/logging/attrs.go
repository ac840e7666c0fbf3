package logging

import (
	"log/slog"
	"slices"
	"time"
)

type Attr = slog.Attr

func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Int64(key string, value int64) Attr { return slog.Int64(key, value) }

func String(key string, value string) Attr { return slog.String(key, value) }

// Alert marks an anomaly worth surfacing in dashboards.
func Alert(value string) Attr { return slog.String(FieldAlert, value) }

// Project tags a line with the project it concerns.
func Project(id string) Attr { return slog.String(FieldProjectID, id) }

// Stage tags a line with a workflow stage name.
func Stage(stage string) Attr { return slog.String(FieldStage, stage) }

// Event sets the event_type used to filter log lines.
func Event(eventType string) Attr { return slog.String(FieldEventType, eventType) }

// Hint attaches an operator-facing remedy.
func Hint(hint string) Attr { return slog.String(FieldErrorHint, hint) }

func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// Args adapts attrs to the variadic ...any form slog.Logger methods take.
func Args(attrs ...Attr) []any {
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	return args
}

func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// NewComponentLogger tags logger (or a discarding logger when nil) with a
// component name.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

// withDefaults appends each fallback whose key attrs does not already carry.
func withDefaults(attrs []Attr, fallbacks ...Attr) []Attr {
	for _, fb := range fallbacks {
		if !slices.ContainsFunc(attrs, func(a Attr) bool { return a.Key == fb.Key }) {
			attrs = append(attrs, fb)
		}
	}
	return attrs
}

// WarnWithContext logs a warning that always carries event_type, error_hint
// and impact, so operators see cause, consequence and next step.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	attrs = withDefaults(attrs,
		Event(eventType),
		Hint("check logs for details"),
		String(FieldImpact, "operation completed with warnings"),
	)
	logger.Warn(msg, Args(attrs...)...)
}

// ErrorWithContext logs an error that always carries event_type and error_hint.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	attrs = withDefaults(attrs, Event(eventType), Hint("check logs for details"))
	logger.Error(msg, Args(attrs...)...)
}
