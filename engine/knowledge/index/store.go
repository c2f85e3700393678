// Package index defines the contract with the externally maintained chunk
// index. The engine only reads and scores chunks; ingestion lives elsewhere.
package index

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
)

// Chunk is one indexed segment of a source document.
type Chunk struct {
	ID        string
	SourceURL string
	Title     string
	Text      string
	Order     int
}

// Candidate pairs a chunk with its base similarity score.
type Candidate struct {
	Chunk
	Score float64
}

// Store exposes similarity search over the chunk corpus.
type Store interface {
	Search(ctx context.Context, vector []float32, topK int) ([]Candidate, error)
}

// Record is a chunk plus its embedding, as persisted by the ingestion job.
type Record struct {
	Chunk
	Embedding []float32
}

// MemoryStore is an in-process Store used by tests and single-node setups.
// Scores are cosine similarity against the query vector.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Upsert replaces records sharing an ID and appends the rest.
func (s *MemoryStore) Upsert(records ...Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range records {
		replaced := false
		for i := range s.records {
			if s.records[i].ID == record.ID {
				s.records[i] = record
				replaced = true
				break
			}
		}
		if !replaced {
			s.records = append(s.records, record)
		}
	}
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) Search(ctx context.Context, vector []float32, topK int) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, errors.New("index: query vector is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	candidates := make([]Candidate, 0, len(s.records))
	for i := range s.records {
		score := cosineSimilarity(vector, s.records[i].Embedding)
		candidates = append(candidates, Candidate{Chunk: s.records[i].Chunk, Score: score})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score == candidates[j].Score {
			return candidates[i].ID < candidates[j].ID
		}
		return candidates[i].Score > candidates[j].Score
	})
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
