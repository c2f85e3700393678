package knowledge

import (
	"math"
	"sort"
	"strings"

	"github.com/paylane/concierge/pkg/config"
)

// preferredChunkLength is the passage size the length penalty is anchored on:
// shorter or longer chunks drift away from the most citable form.
const preferredChunkLength = 800

// Reranker adjusts base similarity scores with deterministic heuristic
// boosts. Weights are injected at construction time.
type Reranker struct {
	cfg config.RerankConfig
}

func NewReranker(cfg config.RerankConfig) *Reranker {
	return &Reranker{cfg: cfg}
}

// Rerank computes adjusted scores and returns chunks in descending adjusted
// order. The sort is stable; ties keep ascending chunk ID order so identical
// inputs always produce identical orderings.
func (r *Reranker) Rerank(normalizedQuery string, chunks []Chunk) []Chunk {
	tokens := QueryTokens(normalizedQuery)
	reranked := make([]Chunk, len(chunks))
	copy(reranked, chunks)
	for i := range reranked {
		reranked[i].AdjustedScore = r.score(tokens, &reranked[i])
	}
	sort.SliceStable(reranked, func(i, j int) bool {
		if reranked[i].AdjustedScore == reranked[j].AdjustedScore {
			return reranked[i].ID < reranked[j].ID
		}
		return reranked[i].AdjustedScore > reranked[j].AdjustedScore
	})
	return reranked
}

func (r *Reranker) score(tokens []string, chunk *Chunk) float64 {
	score := chunk.BaseScore
	if len(tokens) == 0 {
		return score
	}
	if chunk.Title != "" {
		loweredTitle := strings.ToLower(chunk.Title)
		for _, token := range tokens {
			if strings.Contains(loweredTitle, token) {
				score += r.cfg.TitleBoost
			}
		}
	}
	loweredText := strings.ToLower(chunk.Text)
	for _, token := range tokens {
		if strings.Contains(loweredText, " "+token+" ") {
			score += r.cfg.ExactTermBoost
		}
	}
	deviation := math.Abs(float64(len(chunk.Text))-preferredChunkLength) / preferredChunkLength
	score -= r.cfg.LengthPenalty * deviation
	return score
}
