package services_test

import (
	"context"
	"testing"

	"mltscript/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithSheetID(ctx, "sheet-1")
	ctx = services.WithTransport(ctx, "csv")
	ctx = services.WithGID(ctx, "0")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.SheetIDFromContext(ctx); !ok || id != "sheet-1" {
		t.Fatalf("unexpected sheet id: %v %v", id, ok)
	}
	if transport, ok := services.TransportFromContext(ctx); !ok || transport != "csv" {
		t.Fatalf("unexpected transport: %v %v", transport, ok)
	}
	if gid, ok := services.GIDFromContext(ctx); !ok || gid != "0" {
		t.Fatalf("unexpected gid: %v %v", gid, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestTransportBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithTransport(ctx, "")
	if _, ok := services.TransportFromContext(ctx); ok {
		t.Fatal("expected no transport value")
	}
}
