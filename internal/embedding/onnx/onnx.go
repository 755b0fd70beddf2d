//go:build onnx

// Package onnx runs a sentence-transformer (all-MiniLM-L6-v2 by default)
// locally through ONNX Runtime. Build with -tags onnx and point LibraryPath
// at libonnxruntime.
package onnx

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/felixgeelhaar/mnemo/internal/embedding"
)

const maxSeqLen = 128

var initOnce sync.Once
var initErr error

type Embedder struct {
	mu        sync.Mutex
	session   *ort.DynamicAdvancedSession
	tokenizer *tokenizer
	dims      int
}

func New(cfg Config) (*Embedder, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("onnx: model path is required")
	}
	if cfg.TokenizerPath == "" {
		return nil, fmt.Errorf("onnx: tokenizer path is required")
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = embedding.DefaultDimensions
	}

	initOnce.Do(func() {
		if cfg.LibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.LibraryPath)
		}
		initErr = ort.InitializeEnvironment()
	})
	if initErr != nil {
		return nil, fmt.Errorf("onnx: initialize runtime: %w", initErr)
	}

	tok, err := loadTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: load tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: create session: %w", err)
	}

	return &Embedder{session: session, tokenizer: tok, dims: cfg.Dimensions}, nil
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, mask := e.tokenizer.encode(text, maxSeqLen)
	typeIDs := make([]int64, maxSeqLen)

	shape := ort.NewShape(1, maxSeqLen)
	idsT, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, fmt.Errorf("onnx: input_ids tensor: %w", err)
	}
	defer idsT.Destroy()
	maskT, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, fmt.Errorf("onnx: attention_mask tensor: %w", err)
	}
	defer maskT.Destroy()
	typeT, err := ort.NewTensor(shape, typeIDs)
	if err != nil {
		return nil, fmt.Errorf("onnx: token_type_ids tensor: %w", err)
	}
	defer typeT.Destroy()

	outputs := []ort.Value{nil}

	e.mu.Lock()
	err = e.session.Run([]ort.Value{idsT, maskT, typeT}, outputs)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("onnx: inference: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("onnx: unexpected output tensor type")
	}

	vec, err := meanPool(out.GetData(), out.GetShape(), mask, e.dims)
	if err != nil {
		return nil, err
	}
	return embedding.Normalize(vec), nil
}

func (e *Embedder) Dims() int {
	return e.dims
}

func (e *Embedder) Close() error {
	if e.session == nil {
		return nil
	}
	return e.session.Destroy()
}

// meanPool averages the hidden states of attended tokens. An already pooled
// [1, dims] output is returned unchanged.
func meanPool(data []float32, shape ort.Shape, mask []int64, dims int) ([]float32, error) {
	switch len(shape) {
	case 2:
		if len(data) < dims {
			return nil, &embedding.DimensionError{Want: dims, Got: len(data)}
		}
		out := make([]float32, dims)
		copy(out, data[:dims])
		return out, nil
	case 3:
		if shape[0] != 1 {
			return nil, fmt.Errorf("onnx: expected batch size 1, got %d", shape[0])
		}
		if int(shape[2]) != dims {
			return nil, &embedding.DimensionError{Want: dims, Got: int(shape[2])}
		}
		out := make([]float32, dims)
		var attended float32
		for i := 0; i < int(shape[1]); i++ {
			if mask[i] == 0 {
				continue
			}
			attended++
			row := data[i*dims : (i+1)*dims]
			for j, v := range row {
				out[j] += v
			}
		}
		if attended > 0 {
			for j := range out {
				out[j] /= attended
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("onnx: unexpected output shape %v", shape)
	}
}
