// Package cached wraps an Embedder with an in-process ristretto cache keyed
// by the exact input text.
package cached

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/dslachut/hawat/memory"
)

var _ memory.Embedder = (*Embedder)(nil)

// Config sizes the cache.
type Config struct {
	// MaxBytes bounds the total size of cached vectors. Default: 64 MiB.
	MaxBytes int64

	// NumCounters is the number of keys tracked for admission.
	// Default: 10x the expected number of entries at 384 dimensions.
	NumCounters int64
}

// Embedder is a caching memory.Embedder.
type Embedder struct {
	inner memory.Embedder
	cache *ristretto.Cache
}

// New wraps inner with a cache.
func New(inner memory.Embedder, cfg Config) (*Embedder, error) {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 64 << 20
	}
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = 10 * cfg.MaxBytes / int64(4*inner.Dimensions()+1)
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Embedder{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector for text, computing it on a miss.
// Failed and empty embeddings are not cached.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		return v.([]float32), nil
	}

	embedding, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(embedding) > 0 {
		e.cache.Set(text, embedding, int64(4*len(embedding)))
	}
	return embedding, nil
}

// Dimensions returns the wrapped embedder's vector size.
func (e *Embedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Wait blocks until pending cache writes are applied.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

// Close stops the cache's background goroutines.
func (e *Embedder) Close() {
	e.cache.Close()
}
