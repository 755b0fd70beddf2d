package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// HashEmbedder derives a pseudo-random unit vector from an FNV hash of the
// text. Identical texts map to identical vectors and nothing else is
// implied, so it only supports exact-match recall. It needs no model and is
// the default when nothing else is configured.
type HashEmbedder struct {
	dims int
}

func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &HashEmbedder{dims: dims}
}

func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f := fnv.New64a()
	f.Write([]byte(text))
	seed := f.Sum64()

	vec := make([]float32, h.dims)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return Normalize(vec), nil
}

func (h *HashEmbedder) Dims() int {
	return h.dims
}
