// Package knowledge implements the retrieval-and-rerank engine that grounds
// generated answers in citations, with TTL query caching.
package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var queryWhitespace = regexp.MustCompile(`\s+`)

// Chunk is a scored segment of an indexed source document. Chunks are owned
// by the external index; the engine only reads and scores them.
type Chunk struct {
	ID            string  `json:"id"`
	SourceURL     string  `json:"source_url"`
	Title         string  `json:"title"`
	Text          string  `json:"text"`
	Order         int     `json:"order"`
	BaseScore     float64 `json:"base_score"`
	AdjustedScore float64 `json:"adjusted_score"`
}

// Result is the outcome of one retrieval.
type Result struct {
	Chunks       []Chunk
	AvgScore     float64
	CacheHit     bool
	FallbackUsed bool
	WebUsed      bool
	WebResults   []WebResult
	Context      string
}

// NormalizeQuery lowercases and collapses whitespace for deterministic cache
// keys and token extraction.
func NormalizeQuery(query string) string {
	return strings.TrimSpace(strings.ToLower(queryWhitespace.ReplaceAllString(query, " ")))
}

// QueryTokens returns the match tokens of a normalized query; single-rune
// tokens carry no signal and are dropped.
func QueryTokens(normalized string) []string {
	fields := strings.Fields(normalized)
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		if len([]rune(field)) > 1 {
			tokens = append(tokens, field)
		}
	}
	return tokens
}

// CacheKey hashes the normalized query.
func CacheKey(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func averageScore(chunks []Chunk) float64 {
	if len(chunks) == 0 {
		return 0
	}
	total := 0.0
	for i := range chunks {
		total += chunks[i].AdjustedScore
	}
	return total / float64(len(chunks))
}
