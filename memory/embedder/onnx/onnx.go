//go:build onnx

// Package onnx embeds text locally with all-MiniLM-L6-v2 through ONNX
// Runtime. It needs the onnxruntime shared library and is only built with
// the onnx tag.
package onnx

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/dslachut/hawat/core"
	"github.com/dslachut/hawat/memory"
)

var _ memory.Embedder = (*ONNXEmbedder)(nil)

// maxSequenceLength is the standard sequence length for MiniLM.
const maxSequenceLength = 128

var (
	inputNames  = []string{"input_ids", "attention_mask", "token_type_ids"}
	outputNames = []string{"last_hidden_state"}
)

// Config configures the ONNX embedder.
type Config struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string

	// TokenizerPath is the path to the tokenizer.json file.
	TokenizerPath string

	// LibraryPath is the onnxruntime shared library. Empty uses the
	// onnxruntime_go default lookup.
	LibraryPath string

	// Dimensions is the embedding vector size (default: 384 for all-MiniLM-L6-v2).
	Dimensions int
}

// ONNXEmbedder generates embeddings using ONNX Runtime. Embed calls are
// serialized on the session.
type ONNXEmbedder struct {
	mu         sync.Mutex
	session    *ort.DynamicAdvancedSession
	tokenizer  *wordPiece
	dimensions int
}

// New loads the tokenizer and model and initializes the runtime.
func New(cfg Config) (*ONNXEmbedder, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("ModelPath is required")
	}
	if cfg.TokenizerPath == "" {
		return nil, fmt.Errorf("TokenizerPath is required")
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = core.EmbeddingDimensions
	}

	tokenizer, err := loadWordPiece(cfg.TokenizerPath)
	if err != nil {
		return nil, err
	}

	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("initialize onnx runtime: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputNames, outputNames, nil)
	if err != nil {
		_ = ort.DestroyEnvironment()
		return nil, fmt.Errorf("create onnx session for %s: %w", cfg.ModelPath, err)
	}

	log.Printf("[EMBED] Loaded ONNX model %s (%d dims, %d vocab entries)",
		cfg.ModelPath, cfg.Dimensions, len(tokenizer.vocab))
	return &ONNXEmbedder{
		session:    session,
		tokenizer:  tokenizer,
		dimensions: cfg.Dimensions,
	}, nil
}

// Embed converts text to a unit-length vector. Empty text yields a nil vector
// without running the model.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, mask := e.tokenizer.Encode(text, maxSequenceLength)
	typeIDs := make([]int64, maxSequenceLength)

	shape := ort.NewShape(1, maxSequenceLength)
	inputs := make([]ort.Value, 0, len(inputNames))
	defer func() {
		for _, v := range inputs {
			_ = v.Destroy()
		}
	}()
	for _, data := range [][]int64{ids, mask, typeIDs} {
		tensor, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("create input tensor: %w", err)
		}
		inputs = append(inputs, tensor)
	}

	outputs := []ort.Value{nil}
	e.mu.Lock()
	err := e.session.Run(inputs, outputs)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	defer func() {
		if outputs[0] != nil {
			_ = outputs[0].Destroy()
		}
	}()

	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}

	pooled, err := meanPool(hidden.GetData(), hidden.GetShape(), mask, e.dimensions)
	if err != nil {
		return nil, err
	}
	return normalize(pooled), nil
}

// Dimensions returns the embedding vector size.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close releases the session and the runtime environment.
func (e *ONNXEmbedder) Close() error {
	if e.session != nil {
		if err := e.session.Destroy(); err != nil {
			return err
		}
	}
	return ort.DestroyEnvironment()
}

// meanPool averages token vectors over attended positions. A [1, dims] output
// is already pooled and is copied as is.
func meanPool(data []float32, shape ort.Shape, mask []int64, dims int) ([]float32, error) {
	out := make([]float32, dims)
	switch len(shape) {
	case 2:
		if shape[1] != int64(dims) || len(data) < dims {
			return nil, fmt.Errorf("pooled output shape %v, expected [1 %d]", shape, dims)
		}
		copy(out, data[:dims])
		return out, nil
	case 3:
		if shape[0] != 1 || shape[2] != int64(dims) {
			return nil, fmt.Errorf("hidden state shape %v, expected [1 n %d]", shape, dims)
		}
		var attended float32
		for pos := 0; pos < int(shape[1]) && pos < len(mask); pos++ {
			if mask[pos] == 0 {
				continue
			}
			attended++
			row := data[pos*dims : (pos+1)*dims]
			for j, v := range row {
				out[j] += v
			}
		}
		if attended == 0 {
			return nil, fmt.Errorf("no attended tokens")
		}
		for j := range out {
			out[j] /= attended
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}
}

// normalize scales vec to unit length. Zero vectors are returned unchanged.
func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
