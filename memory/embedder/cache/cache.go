// Package cache wraps a core.Embedder with an in-memory call cache keyed on
// exact text, so repeated distillation passes over overlapping context
// windows don't re-embed the same sentence twice in one process lifetime.
package cache

import (
	"context"
	"sync"

	"github.com/pragnyanramtha/longmem/core"
)

// Embedder memoizes Embed by exact input text. It does not persist across
// restarts; the underlying embedder is still the source of truth.
type Embedder struct {
	inner core.Embedder

	mu    sync.RWMutex
	cache map[string][]float32
}

// Wrap returns inner decorated with an in-memory cache.
func Wrap(inner core.Embedder) *Embedder {
	return &Embedder{inner: inner, cache: make(map[string][]float32)}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if vec, ok := e.cache[text]; ok {
		e.mu.RUnlock()
		return vec, nil
	}
	e.mu.RUnlock()

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[text] = vec
	e.mu.Unlock()
	return vec, nil
}

func (e *Embedder) Dimensions() int { return e.inner.Dimensions() }
