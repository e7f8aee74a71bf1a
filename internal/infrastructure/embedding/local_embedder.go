package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// LocalEmbedder is a deterministic, dependency-free embedding provider for
// deployments without an embedding service (dev, tests, air-gapped installs).
// It hashes word n-grams into a fixed-size vector and L2-normalizes the
// result, so cosine similarity still reflects lexical overlap.
// Implements knowledge.EmbeddingProvider.
type LocalEmbedder struct {
	dimension int
}

// NewLocalEmbedder creates a local hashing embedder with a fixed dimension.
func NewLocalEmbedder(dimension int) *LocalEmbedder {
	if dimension <= 0 {
		dimension = 256
	}
	return &LocalEmbedder{dimension: dimension}
}

// Embed generates an embedding vector for a single text.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.embed(text), nil
}

// EmbedBatch generates embedding vectors for multiple texts.
func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors = append(vectors, e.embed(text))
	}
	return vectors, nil
}

// Dimension returns the configured vector dimension.
func (e *LocalEmbedder) Dimension() int {
	return e.dimension
}

func (e *LocalEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dimension)
	tokens := tokenize(text)

	// Unigrams plus adjacent bigrams; bigrams keep a little word order.
	for i, tok := range tokens {
		e.bump(vec, tok)
		if i+1 < len(tokens) {
			e.bump(vec, tok+" "+tokens[i+1])
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

// bump hashes a token into a bucket; a second hash bit picks the sign so
// collisions tend to cancel instead of accumulating.
func (e *LocalEmbedder) bump(vec []float32, token string) {
	h := fnv.New64a()
	h.Write([]byte(token))
	sum := h.Sum64()

	bucket := int(sum % uint64(e.dimension))
	if (sum>>63)&1 == 1 {
		vec[bucket]--
	} else {
		vec[bucket]++
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
