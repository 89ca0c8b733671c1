package services_test

import (
	"context"
	"testing"

	"leaflens/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithScanID(ctx, "scan-42")
	ctx = services.WithStage(ctx, "uploading")
	ctx = services.WithImageIndex(ctx, 0)
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.ScanIDFromContext(ctx); !ok || id != "scan-42" {
		t.Fatalf("unexpected scan id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "uploading" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if idx, ok := services.ImageIndexFromContext(ctx); !ok || idx != 0 {
		t.Fatalf("unexpected image index: %v %v", idx, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithScanID(ctx, "")
	ctx = services.WithImageIndex(ctx, -1)
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected blank stage to be ignored")
	}
	if _, ok := services.ScanIDFromContext(ctx); ok {
		t.Fatal("expected blank scan id to be ignored")
	}
	if _, ok := services.ImageIndexFromContext(ctx); ok {
		t.Fatal("expected negative index to be ignored")
	}
}
