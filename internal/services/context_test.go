package services_test

import (
	"context"
	"testing"

	"aum/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, "run-123")
	ctx = services.WithFile(ctx, "track.ncm")
	ctx = services.WithJobPosition(ctx, 2, 5)

	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-123" {
		t.Fatalf("unexpected run id: %v %v", id, ok)
	}
	if name, ok := services.FileFromContext(ctx); !ok || name != "track.ncm" {
		t.Fatalf("unexpected file: %v %v", name, ok)
	}
	index, count, ok := services.JobPositionFromContext(ctx)
	if !ok || index != 2 || count != 5 {
		t.Fatalf("unexpected position: %d/%d %v", index, count, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithFile(ctx, "")
	ctx = services.WithRunID(ctx, "")
	ctx = services.WithJobPosition(ctx, 0, 3)
	if _, ok := services.FileFromContext(ctx); ok {
		t.Fatal("expected no file value")
	}
	if _, ok := services.RunIDFromContext(ctx); ok {
		t.Fatal("expected no run id value")
	}
	if _, _, ok := services.JobPositionFromContext(ctx); ok {
		t.Fatal("expected no job position")
	}
}
