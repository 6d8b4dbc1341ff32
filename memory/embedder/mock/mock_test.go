package mock_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/dslachut/hawat/core"
	"github.com/dslachut/hawat/memory/embedder/mock"
)

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	ctx := context.Background()
	e := mock.New()

	a, _ := e.Embed(ctx, "Planning a trip budget")
	b, _ := e.Embed(ctx, "planning a TRIP budget!")
	if len(a) != core.EmbeddingDimensions || e.Dimensions() != core.EmbeddingDimensions {
		t.Fatalf("unexpected dimensions: %d", len(a))
	}
	if math.Abs(dot(a, b)-1) > 1e-5 {
		t.Errorf("expected identical embeddings, cosine=%f", dot(a, b))
	}
	if math.Abs(dot(a, a)-1) > 1e-5 {
		t.Errorf("expected unit vector, norm^2=%f", dot(a, a))
	}
}

func TestMockEmbedder_SharedWordsAreCloser(t *testing.T) {
	ctx := context.Background()
	e := mock.New()

	query, _ := e.Embed(ctx, "trip budget")
	trip, _ := e.Embed(ctx, "The user is planning a trip budget for Japan")
	cooking, _ := e.Embed(ctx, "The user asked about pasta recipes")

	if dot(query, trip) <= dot(query, cooking) {
		t.Errorf("expected trip summary closer: trip=%f cooking=%f", dot(query, trip), dot(query, cooking))
	}
}

func TestMockEmbedder_EmptyAndFailing(t *testing.T) {
	ctx := context.Background()

	emb, err := mock.New().Embed(ctx, "  ...  ")
	if err != nil || emb != nil {
		t.Errorf("expected nil embedding for wordless text, got %v %v", emb, err)
	}

	boom := errors.New("boom")
	if _, err := mock.Failing(boom).Embed(ctx, "hi"); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}
