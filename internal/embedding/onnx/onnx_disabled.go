//go:build !onnx

package onnx

import (
	"context"
	"errors"
)

// ErrDisabled is returned when the binary was built without -tags onnx.
var ErrDisabled = errors.New("onnx embedder not compiled in; rebuild with -tags onnx")

type Embedder struct{}

func New(cfg Config) (*Embedder, error) {
	return nil, ErrDisabled
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrDisabled
}

func (e *Embedder) Dims() int {
	return 0
}

func (e *Embedder) Close() error {
	return nil
}
