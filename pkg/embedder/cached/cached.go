// Package cached wraps an embedder with an in-process ristretto cache.
//
// Turns often repeat phrases the engine has already embedded (re-stated
// preferences, identical queries), so caching saves a backend round trip.
package cached

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/halldyll/recall-go/pkg/embedder"
)

// Embedder caches vectors by exact text.
type Embedder struct {
	inner embedder.Provider
	cache *ristretto.Cache
}

// New wraps inner with a cache holding up to maxEntries vectors.
func New(inner embedder.Provider, maxEntries int64) (*Embedder, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("cached embedder: maxEntries must be positive, got %d", maxEntries)
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("cached embedder: %w", err)
	}
	return &Embedder{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector or computes and stores it.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if v, ok := e.get(text); ok {
		return v, nil
	}
	v, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.put(text, v)
	return clone(v), nil
}

// EmbedBatch forwards only the cache misses to the inner provider.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	var missTexts []string
	var missIdx []int
	for i, t := range texts {
		if v, ok := e.get(t); ok {
			out[i] = v
			continue
		}
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := e.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("cached embedder: got %d vectors for %d texts", len(vecs), len(missTexts))
	}
	for j, v := range vecs {
		e.put(missTexts[j], v)
		out[missIdx[j]] = clone(v)
	}
	return out, nil
}

func (e *Embedder) get(text string) ([]float64, bool) {
	v, ok := e.cache.Get(text)
	if !ok {
		return nil, false
	}
	return clone(v.([]float64)), true
}

// put stores a copy and waits for the write so the next call sees it.
func (e *Embedder) put(text string, v []float64) {
	e.cache.Set(text, clone(v), 1)
	e.cache.Wait()
}

// Dimensions returns the inner provider's dimension.
func (e *Embedder) Dimensions() int { return e.inner.Dimensions() }

// Close closes the cache and the inner provider.
func (e *Embedder) Close() error {
	e.cache.Close()
	return e.inner.Close()
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}
