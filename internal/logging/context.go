package logging

import (
	"context"
	"log/slog"

	"mltscript/internal/services"
)

// Structured keys shared by every component.
const (
	FieldComponent     = "component"
	FieldSheetID       = "sheet_id"
	FieldGID           = "gid"
	FieldTransport     = "transport"
	FieldCorrelationID = "correlation_id"
	FieldEventType     = "event_type"
	FieldErrorHint     = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields lifts the sheet, gid, transport and request ID stored on ctx
// into attributes.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	add := func(key string, value string, ok bool) {
		if ok && value != "" {
			fields = append(fields, slog.String(key, value))
		}
	}
	id, ok := services.SheetIDFromContext(ctx)
	add(FieldSheetID, id, ok)
	gid, ok := services.GIDFromContext(ctx)
	add(FieldGID, gid, ok)
	transport, ok := services.TransportFromContext(ctx)
	add(FieldTransport, transport, ok)
	rid, ok := services.RequestIDFromContext(ctx)
	add(FieldCorrelationID, rid, ok)
	return fields
}

// WithContext returns logger tagged with ContextFields(ctx).
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
