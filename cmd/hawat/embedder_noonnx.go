//go:build !onnx

package main

import (
	"errors"

	"github.com/dslachut/hawat/config"
	"github.com/dslachut/hawat/memory"
)

func newONNXEmbedder(*config.Config) (memory.Embedder, func(), error) {
	return nil, nil, errors.New("hawat was built without onnx support (rebuild with -tags onnx or set EMBEDDER=remote)")
}
