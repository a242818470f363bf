package indexer

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"github.com/ChamsBouzaiene/codepair/internal/engine"
)

// Embedder turns texts into vectors. Implementations return one vector
// per input, in order, together with the tokens consumed.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, int, error)
	Dimension() int
}

var identRegex = regexp.MustCompile(`[A-Za-z][a-z0-9]*|[0-9]+`)

// HashEmbedder is a local embedder based on feature hashing of
// identifier fragments. It needs no network access and is used when no
// embedding provider is configured.
type HashEmbedder struct {
	dimension int
}

// NewHashEmbedder creates a hash embedder with the given dimension.
func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 256
	}
	return &HashEmbedder{dimension: dimension}
}

// Embed implements Embedder.
func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, int, error) {
	vectors := make([][]float32, len(texts))
	tokens := 0
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		vectors[i] = e.vector(text)
		tokens += engine.EstimateTokens(text)
	}
	return vectors, tokens, nil
}

// Dimension implements Embedder.
func (e *HashEmbedder) Dimension() int {
	return e.dimension
}

func (e *HashEmbedder) vector(text string) []float32 {
	vec := make([]float32, e.dimension)
	for _, tok := range identRegex.FindAllString(text, -1) {
		tok = strings.ToLower(tok)
		if len(tok) < 2 {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		idx := int(sum % uint32(e.dimension))
		if sum&(1<<31) != 0 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
