package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// HashProvider is a deterministic, dependency-free embedder. Each token is
// hashed into a bucket of a fixed-size bag-of-words vector, which is then
// L2-normalized. Texts sharing words produce similar vectors, which is enough
// for goal and tag matching without a model server.
type HashProvider struct {
	dimension int
}

// NewHashProvider creates a HashProvider with the given dimension.
func NewHashProvider(dimension int) *HashProvider {
	if dimension <= 0 {
		dimension = 384
	}
	return &HashProvider{dimension: dimension}
}

// Embed hashes text into a normalized bag-of-words vector.
func (p *HashProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}
	return p.embedOne(text), nil
}

func (p *HashProvider) embedOne(text string) []float32 {
	vec := make([]float32, p.dimension)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(word))
		sum := h.Sum32()
		bucket := int(sum % uint32(p.dimension))
		// Sign bit from the hash spreads tokens across both directions.
		if sum&0x80000000 != 0 {
			vec[bucket] -= 1
		} else {
			vec[bucket] += 1
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}

// Dimension returns the fixed vector dimension.
func (p *HashProvider) Dimension() int {
	return p.dimension
}
