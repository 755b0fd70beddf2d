// Package embedding maps text to fixed-dimension vectors.
//
// Every Embedder is expected to be deterministic for a fixed model. Changing
// the model (or its dimension) invalidates persisted vector indexes, which
// then have to be cleared and rebuilt.
package embedding

import (
	"context"
	"fmt"
	"math"
)

// DefaultDimensions matches all-MiniLM-L6-v2.
const DefaultDimensions = 384

// Embedder turns text into a vector of Dims() floats.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dims() int
}

// DimensionError reports a vector whose length differs from the embedder's.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding has %d dimensions, want %d", e.Got, e.Want)
}

// Normalize returns vec scaled to unit length. The zero vector is returned as is.
func Normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}

	norm = math.Sqrt(norm)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
