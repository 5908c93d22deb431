package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pdfqa/internal/domain"
	"pdfqa/internal/embedding"
	"pdfqa/internal/vectorstore"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	order     []string
	chunks    map[string]domain.Chunk
	vectors   map[string][]float64
}

func NewStorage() *Storage {
	return &Storage{
		chunks:  make(map[string]domain.Chunk),
		vectors: make(map[string][]float64),
	}
}

// Exists reports whether anything has been stored.
func (s *Storage) Exists(ctx context.Context) (bool, error) {
	n, err := s.Count(ctx)
	return n > 0, err
}

func (s *Storage) Open(ctx context.Context) error { return nil }

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("chunk %s has an empty vector", chunks[i].ID)
		}
		if s.dimension == 0 {
			s.dimension = len(v)
		}
		if len(v) != s.dimension {
			return fmt.Errorf("vector dimension mismatch: got %d, want %d", len(v), s.dimension)
		}
	}
	for i, ch := range chunks {
		if _, ok := s.chunks[ch.ID]; !ok {
			s.order = append(s.order, ch.ID)
		}
		s.chunks[ch.ID] = ch
		s.vectors[ch.ID] = vectors[i]
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := vectorstore.CheckDimension(len(vector), s.dimension); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 5
	}
	results := make([]domain.SearchResult, 0, len(s.order))
	for _, id := range s.order {
		v := s.vectors[id]
		results = append(results, domain.SearchResult{
			Chunk:  s.chunks[id],
			Score:  embedding.Cosine(vector, v),
			Vector: v,
		})
	}
	vectorstore.SortByScore(results)
	return vectorstore.TopK(results, topK), nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order), nil
}

// Drop discards every stored entry.
func (s *Storage) Drop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = 0
	s.order = nil
	s.chunks = make(map[string]domain.Chunk)
	s.vectors = make(map[string][]float64)
	return nil
}

func (s *Storage) Close() error { return nil }
