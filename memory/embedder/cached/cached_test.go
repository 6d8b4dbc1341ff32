package cached_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/dslachut/hawat/memory/embedder/cached"
	"github.com/dslachut/hawat/memory/embedder/mock"
)

// countingEmbedder counts calls to the wrapped mock.
type countingEmbedder struct {
	*mock.MockEmbedder
	calls atomic.Int32
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.MockEmbedder.Embed(ctx, text)
}

func TestEmbedder_CachesHits(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{MockEmbedder: mock.New()}

	e, err := cached.New(inner, cached.Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	first, err := e.Embed(ctx, "trip budget")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	e.Wait()

	second, err := e.Embed(ctx, "trip budget")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if inner.calls.Load() != 1 {
		t.Errorf("expected 1 inner call, got %d", inner.calls.Load())
	}
	if len(first) != len(second) || first[0] != second[0] {
		t.Error("cached vector differs from computed vector")
	}
	if e.Dimensions() != inner.Dimensions() {
		t.Errorf("Dimensions = %d", e.Dimensions())
	}
}

func TestEmbedder_DoesNotCacheFailuresOrEmpty(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{MockEmbedder: mock.New(), err: errors.New("offline")}

	e, err := cached.New(inner, cached.Config{MaxBytes: 1 << 20})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	for i := 0; i < 2; i++ {
		if _, err := e.Embed(ctx, "hello"); err == nil {
			t.Fatal("expected error")
		}
		e.Wait()
	}

	inner.err = nil
	for i := 0; i < 2; i++ {
		if v, _ := e.Embed(ctx, ""); v != nil {
			t.Fatalf("expected nil vector for empty text, got %d dims", len(v))
		}
		e.Wait()
	}

	if got := inner.calls.Load(); got != 4 {
		t.Errorf("expected 4 inner calls, got %d", got)
	}
}
