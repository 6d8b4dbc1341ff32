// Package chromem provides an in-process cosine-similarity index over
// int64-keyed vectors, backed by chromem-go.
//
// The sqlite store keeps one Index for message embeddings and one for
// conversation summary embeddings; rows stay in sqlite and only vectors live
// here.
package chromem

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// Match is a single query hit.
type Match struct {
	ID         int64
	Similarity float32
}

// Index wraps one chromem-go collection.
// chromem-go is a pure Go, embedded vector database.
type Index struct {
	name       string
	dimensions int

	db  *chromem.DB
	col *chromem.Collection
	mu  sync.RWMutex
}

// New creates an empty index accepting vectors of the given size.
func New(name string, dimensions int) (*Index, error) {
	db := chromem.NewDB()

	col, err := db.CreateCollection(
		name,
		nil, // No metadata
		nil, // No embedding func (we provide embeddings)
	)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &Index{
		name:       name,
		dimensions: dimensions,
		db:         db,
		col:        col,
	}, nil
}

// Add stores or replaces the vector for id. Vectors that cannot take part in
// cosine similarity (empty, all-zero, wrong size) are skipped and reported
// with ok=false.
func (x *Index) Add(ctx context.Context, id int64, embedding []float32) (bool, error) {
	if !x.usable(embedding) {
		return false, nil
	}

	doc := chromem.Document{
		ID:        strconv.FormatInt(id, 10),
		Embedding: embedding,
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.col.AddDocument(ctx, doc); err != nil {
		return false, fmt.Errorf("add document %d: %w", id, err)
	}
	return true, nil
}

// Remove drops the vector for id, if any.
func (x *Index) Remove(ctx context.Context, id int64) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.col.Delete(ctx, nil, nil, strconv.FormatInt(id, 10)); err != nil {
		return fmt.Errorf("delete document %d: %w", id, err)
	}
	return nil
}

// Query returns up to limit ids nearest to embedding, most similar first.
// Ties are broken by ascending id.
func (x *Index) Query(ctx context.Context, embedding []float32, limit int) ([]Match, error) {
	if limit <= 0 || !x.usable(embedding) {
		return nil, nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	// chromem-go requires nResults <= collection size
	n := x.col.Count()
	if n == 0 {
		return nil, nil
	}
	if limit > n {
		limit = n
	}

	results, err := x.col.QueryEmbedding(ctx, embedding, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			log.Printf("[CHROMEM] %s: skipping result with bad id %q", x.name, r.ID)
			continue
		}
		matches = append(matches, Match{ID: id, Similarity: r.Similarity})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity == matches[j].Similarity {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches, nil
}

// Count returns the number of indexed vectors.
func (x *Index) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.col.Count()
}

// Reset drops every vector.
func (x *Index) Reset() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.db.DeleteCollection(x.name); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	col, err := x.db.CreateCollection(x.name, nil, nil)
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	x.col = col
	return nil
}

func (x *Index) usable(embedding []float32) bool {
	if len(embedding) == 0 {
		return false
	}
	if x.dimensions > 0 && len(embedding) != x.dimensions {
		return false
	}
	for _, v := range embedding {
		if v != 0 {
			return true
		}
	}
	return false
}
