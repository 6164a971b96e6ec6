package services

import "context"

type contextKey string

const (
	sheetIDKey   contextKey = "sheet_id"
	transportKey contextKey = "transport"
	gidKey       contextKey = "gid"
	requestIDKey contextKey = "request_id"
)

// WithSheetID annotates context with the spreadsheet identifier being read.
func WithSheetID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sheetIDKey, id)
}

// SheetIDFromContext extracts the spreadsheet identifier if present.
func SheetIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(sheetIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithTransport annotates context with the active transport name (api/csv).
func WithTransport(ctx context.Context, transport string) context.Context {
	if transport == "" {
		return ctx
	}
	return context.WithValue(ctx, transportKey, transport)
}

// TransportFromContext returns the transport name if present.
func TransportFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(transportKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithGID annotates context with the sheet tab identifier being attempted.
func WithGID(ctx context.Context, gid string) context.Context {
	if gid == "" {
		return ctx
	}
	return context.WithValue(ctx, gidKey, gid)
}

// GIDFromContext returns the tab identifier if present.
func GIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(gidKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
