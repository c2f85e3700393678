package knowledge

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/paylane/concierge/engine/knowledge/embedder"
	"github.com/paylane/concierge/engine/knowledge/index"
	"github.com/paylane/concierge/pkg/config"
	"github.com/paylane/concierge/pkg/logger"
)

// ContextFilter drops retrieved chunks that must not reach generation.
// Satisfied by the guardrail service.
type ContextFilter interface {
	ShouldFilterContext(text string) bool
}

// Service is the retrieval engine: cache lookup, embedding similarity search,
// heuristic rerank and top-K selection with a fallback branch.
type Service struct {
	cfg      config.KnowledgeConfig
	embedder embedder.Embedder
	store    index.Store
	reranker *Reranker
	cache    QueryCache
	web      WebSearchClient
	filter   ContextFilter
	group    singleflight.Group
}

// NewService wires the retrieval engine. web and filter may be nil.
func NewService(
	cfg config.KnowledgeConfig,
	emb embedder.Embedder,
	store index.Store,
	cache QueryCache,
	web WebSearchClient,
	filter ContextFilter,
) *Service {
	if web == nil {
		web = NoopWebSearchClient{}
	}
	return &Service{
		cfg:      cfg,
		embedder: emb,
		store:    store,
		reranker: NewReranker(cfg.Rerank),
		cache:    cache,
		web:      web,
		filter:   filter,
	}
}

// Retrieve returns the ranked, citable chunk selection for a query. Cache
// hits skip scoring entirely; misses for the same key are collapsed, and a
// redundant recompute can only overwrite the entry with identical content.
func (s *Service) Retrieve(ctx context.Context, query string) (*Result, error) {
	normalized := NormalizeQuery(query)
	key := CacheKey(normalized)
	log := logger.FromContext(ctx)

	if cached, ok := s.cache.Get(ctx, key); ok {
		log.Debug("Retrieval cache hit", "key", key[:12])
		return &Result{
			Chunks:   cached.Chunks,
			AvgScore: cached.AvgScore,
			Context:  cached.Context,
			CacheHit: true,
		}, nil
	}

	value, err, _ := s.group.Do(key, func() (any, error) {
		return s.retrieveUncached(ctx, normalized, key)
	})
	if err != nil {
		return nil, err
	}
	return value.(*Result), nil
}

func (s *Service) retrieveUncached(ctx context.Context, normalized, key string) (*Result, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	selected := s.selectChunks(ctx, normalized)
	if len(selected) == 0 {
		return s.fallbackResult(ctx, normalized), nil
	}

	selection := &CachedSelection{
		Chunks:    selected,
		AvgScore:  averageScore(selected),
		Context:   buildContext(selected, s.cfg.MaxContextChars),
		CreatedAt: time.Now(),
	}
	s.cache.Set(ctx, key, selection)
	log.Info("Retrieval executed",
		"results", len(selected),
		"avg_score", selection.AvgScore,
		"duration_ms", time.Since(start).Milliseconds())
	return &Result{
		Chunks:   selection.Chunks,
		AvgScore: selection.AvgScore,
		Context:  selection.Context,
	}, nil
}

// selectChunks embeds the query, searches the index and applies rerank,
// threshold and top-K. Provider failures yield an empty selection so the
// caller takes the fallback branch.
func (s *Service) selectChunks(ctx context.Context, normalized string) []Chunk {
	log := logger.FromContext(ctx)
	tokens := QueryTokens(normalized)
	if len(tokens) == 0 {
		return nil
	}

	embedCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	vector, err := s.embedder.EmbedQuery(embedCtx, normalized)
	if err != nil {
		log.Warn("Query embedding failed, taking fallback branch", "error", err)
		return nil
	}
	// Over-fetch so rerank can promote candidates past the raw top-K.
	candidates, err := s.store.Search(ctx, vector, s.cfg.TopK*4)
	if err != nil {
		log.Warn("Index search failed, taking fallback branch", "error", err)
		return nil
	}
	if len(candidates) == 0 {
		return nil
	}

	chunks := make([]Chunk, 0, len(candidates))
	for i := range candidates {
		if s.filter != nil && s.filter.ShouldFilterContext(candidates[i].Text) {
			continue
		}
		chunks = append(chunks, Chunk{
			ID:        candidates[i].ID,
			SourceURL: candidates[i].SourceURL,
			Title:     candidates[i].Title,
			Text:      candidates[i].Text,
			Order:     candidates[i].Order,
			BaseScore: candidates[i].Score,
		})
	}
	chunks = s.reranker.Rerank(normalized, chunks)

	selected := make([]Chunk, 0, s.cfg.TopK)
	for i := range chunks {
		if len(selected) == s.cfg.TopK {
			break
		}
		if chunks[i].AdjustedScore < s.cfg.MinScore {
			continue
		}
		selected = append(selected, chunks[i])
	}
	return selected
}

// fallbackResult handles the no-evidence branch: optional external search,
// never cached, never a fabricated citation.
func (s *Service) fallbackResult(ctx context.Context, normalized string) *Result {
	result := &Result{FallbackUsed: true}
	if !s.cfg.WebSearchEnabled {
		return result
	}
	external, err := s.web.Search(ctx, normalized, 3)
	if err != nil {
		logger.FromContext(ctx).Warn("Web search fallback failed", "error", err)
		return result
	}
	result.WebResults = external
	result.WebUsed = len(external) > 0
	return result
}

// buildContext concatenates chunk texts up to the configured cap.
func buildContext(chunks []Chunk, maxChars int) string {
	var builder strings.Builder
	for i := range chunks {
		text := strings.TrimSpace(chunks[i].Text)
		if text == "" {
			continue
		}
		if maxChars > 0 && builder.Len()+len(text)+2 > maxChars {
			break
		}
		if builder.Len() > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(text)
	}
	return builder.String()
}
