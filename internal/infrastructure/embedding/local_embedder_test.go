package embedding

import (
	"context"
	"math"
	"testing"
)

func TestLocalEmbedder_Dimension(t *testing.T) {
	if got := NewLocalEmbedder(128).Dimension(); got != 128 {
		t.Errorf("expected dimension 128, got %d", got)
	}
	if got := NewLocalEmbedder(0).Dimension(); got != 256 {
		t.Errorf("expected default dimension 256, got %d", got)
	}
}

func TestLocalEmbedder_Deterministic(t *testing.T) {
	e := NewLocalEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "fresh bread every morning")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	b, _ := e.Embed(ctx, "fresh bread every morning")
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same text must embed to the same vector")
		}
	}
}

func TestLocalEmbedder_Normalized(t *testing.T) {
	e := NewLocalEmbedder(64)
	vec, err := e.Embed(context.Background(), "opening hours and catering services")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("expected unit vector, squared norm %f", norm)
	}
}

func TestLocalEmbedder_EmptyTextIsZeroVector(t *testing.T) {
	e := NewLocalEmbedder(32)
	vec, err := e.Embed(context.Background(), "   ")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	for _, v := range vec {
		if v != 0 {
			t.Fatal("blank text should embed to the zero vector")
		}
	}
}

func TestLocalEmbedder_LexicalOverlapScoresHigher(t *testing.T) {
	e := NewLocalEmbedder(256)
	ctx := context.Background()

	query, _ := e.Embed(ctx, "what are your opening hours")
	similar, _ := e.Embed(ctx, "our opening hours are 9am to 6pm")
	unrelated, _ := e.Embed(ctx, "plumbing repair and drain cleaning")

	if cos(query, similar) <= cos(query, unrelated) {
		t.Errorf("overlapping text should score higher: similar=%f unrelated=%f",
			cos(query, similar), cos(query, unrelated))
	}
}

func TestLocalEmbedder_EmbedBatch(t *testing.T) {
	e := NewLocalEmbedder(64)
	texts := []string{"one", "two", "three"}

	vectors, err := e.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("batch embed failed: %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vectors))
	}

	single, _ := e.Embed(context.Background(), "two")
	for i := range single {
		if vectors[1][i] != single[i] {
			t.Fatal("batch embedding must match single embedding")
		}
	}
}

func TestLocalEmbedder_CancelledContext(t *testing.T) {
	e := NewLocalEmbedder(64)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.Embed(ctx, "text"); err == nil {
		t.Error("expected error for cancelled context")
	}
	if _, err := e.EmbedBatch(ctx, []string{"text"}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func cos(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
