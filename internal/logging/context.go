package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const fieldsKey contextKey = "log_fields"

// Fields are attached to every record logged with a context that carries
// them. Later calls to WithFields override non-empty values.
type Fields struct {
	AppID     string
	ReportID  string
	ActorID   string
	Component string
}

func WithFields(ctx context.Context, f Fields) context.Context {
	merged := FieldsFrom(ctx)
	if f.AppID != "" {
		merged.AppID = f.AppID
	}
	if f.ReportID != "" {
		merged.ReportID = f.ReportID
	}
	if f.ActorID != "" {
		merged.ActorID = f.ActorID
	}
	if f.Component != "" {
		merged.Component = f.Component
	}
	return context.WithValue(ctx, fieldsKey, merged)
}

func FieldsFrom(ctx context.Context) Fields {
	if f, ok := ctx.Value(fieldsKey).(Fields); ok {
		return f
	}
	return Fields{}
}

// ContextHandler copies Fields from the record's context into its attrs.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	f := FieldsFrom(ctx)
	if f.AppID != "" {
		r.AddAttrs(slog.String("app_id", f.AppID))
	}
	if f.ReportID != "" {
		r.AddAttrs(slog.String("report_id", f.ReportID))
	}
	if f.ActorID != "" {
		r.AddAttrs(slog.String("actor_id", f.ActorID))
	}
	if f.Component != "" {
		r.AddAttrs(slog.String("component", f.Component))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name)}
}
