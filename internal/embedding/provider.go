package embedding

import (
	"context"
	"fmt"
)

// Source is the embedding half of a generation provider.
type Source interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Name() string
}

// ProviderEmbedder delegates to a remote provider (OpenAI, Ollama, Gemini)
// and enforces the configured dimension.
type ProviderEmbedder struct {
	src  Source
	dims int
}

func NewProviderEmbedder(src Source, dims int) *ProviderEmbedder {
	return &ProviderEmbedder{src: src, dims: dims}
}

func (p *ProviderEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := p.src.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%s embed: %w", p.src.Name(), err)
	}
	if p.dims > 0 && len(vec) != p.dims {
		return nil, &DimensionError{Want: p.dims, Got: len(vec)}
	}
	return vec, nil
}

func (p *ProviderEmbedder) Dims() int {
	return p.dims
}
