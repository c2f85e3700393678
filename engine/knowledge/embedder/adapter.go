// Package embedder adapts the external embedding service behind a narrow
// query-embedding contract with a local vector cache.
package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

const vectorCacheSize = 512

// Embedder turns query text into a vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Adapter wraps a langchaingo embedder and caches vectors by content hash so
// repeated queries skip the provider round-trip.
type Adapter struct {
	model   string
	impl    embeddings.Embedder
	cacheMu sync.Mutex
	cache   *lru.Cache[string, []float32]
}

// NewOpenAI builds an adapter backed by the OpenAI embeddings API.
func NewOpenAI(apiKey, model string) (*Adapter, error) {
	if apiKey == "" {
		return nil, errors.New("embedder: api key is required")
	}
	client, err := openai.New(openai.WithToken(apiKey), openai.WithEmbeddingModel(model))
	if err != nil {
		return nil, fmt.Errorf("embedder: failed to create client: %w", err)
	}
	impl, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("embedder: failed to create embedder: %w", err)
	}
	return NewFromImpl(impl, model)
}

// NewFromImpl wraps an existing langchaingo embedder; used by tests.
func NewFromImpl(impl embeddings.Embedder, model string) (*Adapter, error) {
	if impl == nil {
		return nil, errors.New("embedder: implementation is required")
	}
	cache, err := lru.New[string, []float32](vectorCacheSize)
	if err != nil {
		return nil, fmt.Errorf("embedder: failed to create vector cache: %w", err)
	}
	return &Adapter{model: model, impl: impl, cache: cache}, nil
}

func (a *Adapter) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := a.cacheKey(text)
	a.cacheMu.Lock()
	if vector, ok := a.cache.Get(key); ok {
		a.cacheMu.Unlock()
		return vector, nil
	}
	a.cacheMu.Unlock()

	vector, err := a.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedder: query embedding failed: %w", err)
	}
	a.cacheMu.Lock()
	a.cache.Add(key, vector)
	a.cacheMu.Unlock()
	return vector, nil
}

func (a *Adapter) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(a.model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Disabled stands in when no provider credentials are configured; every query
// errors, which sends retrieval down its fallback branch.
type Disabled struct{}

func (Disabled) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedder: no provider configured")
}
