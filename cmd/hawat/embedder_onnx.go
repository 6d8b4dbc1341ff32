//go:build onnx

package main

import (
	"log"

	"github.com/dslachut/hawat/config"
	"github.com/dslachut/hawat/memory"
	"github.com/dslachut/hawat/memory/embedder/onnx"
)

func newONNXEmbedder(cfg *config.Config) (memory.Embedder, func(), error) {
	e, err := onnx.New(onnx.Config{
		ModelPath:     cfg.ONNXModelPath,
		TokenizerPath: cfg.ONNXTokenizerPath,
		LibraryPath:   cfg.ONNXLibraryPath,
	})
	if err != nil {
		return nil, nil, err
	}
	return e, func() {
		if err := e.Close(); err != nil {
			log.Printf("[EMBED] Close onnx embedder: %v", err)
		}
	}, nil
}
