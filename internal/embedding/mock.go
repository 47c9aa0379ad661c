package embedding

import (
	"context"
	"math/rand"
)

// MockEncoder produces deterministic pseudo-random vectors from a per-text
// seeded PRNG. Two calls with the same text always yield the same vector,
// which the cache layer and tests rely on, and unrelated texts come out
// near-orthogonal in high dimensions so similarity search stays meaningful
// without a model runtime.
type MockEncoder struct {
	dimension int
}

// NewMockEncoder creates a mock encoder with the given dimension; values <= 0
// fall back to DefaultDimension.
func NewMockEncoder(dimension int) *MockEncoder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &MockEncoder{dimension: dimension}
}

// Name identifies the encoder mode.
func (m *MockEncoder) Name() string { return "mock" }

// Dimension returns the vector size.
func (m *MockEncoder) Dimension() int { return m.dimension }

// Encode generates one seeded vector per text. Each component is drawn
// independently from the text's PRNG; independent draws keep distinct texts
// close to orthogonal instead of trivially correlated.
func (m *MockEncoder) Encode(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		r := rand.New(rand.NewSource(textHash(text)))
		vec := make([]float64, m.dimension)
		for d := range vec {
			vec[d] = r.Float64()*2 - 1
		}
		out[i] = vec
	}
	return out, nil
}

// textHash is a 32-bit string hash folded to a non-negative value. It only
// needs to be stable, not well distributed; the PRNG does the spreading.
func textHash(s string) int64 {
	var h int32
	for _, c := range s {
		h = (h << 5) - h + int32(c)
	}
	if h < 0 {
		return -int64(h)
	}
	return int64(h)
}
