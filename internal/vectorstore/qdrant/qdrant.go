package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pdfqa/internal/domain"
	"pdfqa/internal/logging"
	"pdfqa/internal/vectorstore"
)

// pointNamespace derives stable point UUIDs from chunk IDs, since Qdrant
// only accepts unsigned integers or UUIDs as point IDs.
var pointNamespace = uuid.MustParse("6f0c4d1e-9a55-4b2a-8f57-3e2b51d0a7c4")

// Storage is a minimal REST client to Qdrant.
// It assumes cosine distance and creates the collection on first upsert.
type Storage struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
	logger     *zap.Logger
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
	Logger     *zap.Logger
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
		logger:     logging.OrNop(cfg.Logger),
	}
}

// PointID maps a chunk ID to its Qdrant point UUID.
func PointID(collection, chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(collection+"/"+chunkID)).String()
}

// Exists reports whether the collection is present on the server.
func (s *Storage) Exists(ctx context.Context) (bool, error) {
	var resp struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(), nil, &resp)
	if status == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.dimension = resp.Result.Config.Params.Vectors.Size
	return true, nil
}

// Open checks connectivity. The collection itself is created lazily.
func (s *Storage) Open(ctx context.Context) error {
	_, err := s.Exists(ctx)
	return err
}

func (s *Storage) ensureCollection(ctx context.Context, dimension int) error {
	if s.dimension != 0 {
		if s.dimension != dimension {
			return fmt.Errorf("vector dimension mismatch: got %d, want %d", dimension, s.dimension)
		}
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if _, err := s.do(ctx, http.MethodPut, s.collectionURL(), body, nil); err != nil {
		return err
	}
	s.dimension = dimension
	s.logger.Info("created qdrant collection",
		zap.String("collection", s.collection),
		zap.Int("dimension", dimension))
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	if len(chunks) == 0 {
		return nil
	}
	if len(vectors[0]) == 0 {
		return errors.New("empty vector")
	}
	if err := s.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}
	points := make([]map[string]any, len(chunks))
	for i, ch := range chunks {
		if len(vectors[i]) != s.dimension {
			return fmt.Errorf("chunk %s: vector dimension %d, want %d", ch.ID, len(vectors[i]), s.dimension)
		}
		points[i] = map[string]any{
			"id":     PointID(s.collection, ch.ID),
			"vector": vectors[i],
			"payload": map[string]any{
				"chunk_id":    ch.ID,
				"text":        ch.Text,
				"source":      ch.Source,
				"page":        ch.Page,
				"section":     ch.Section,
				"index":       ch.Index,
				"start_index": ch.StartIndex,
			},
		}
	}
	body := map[string]any{"points": points}
	_, err := s.do(ctx, http.MethodPut, s.collectionURL()+"/points?wait=true", body, nil)
	return err
}

type payload struct {
	ChunkID    string `json:"chunk_id"`
	Text       string `json:"text"`
	Source     string `json:"source"`
	Page       int    `json:"page"`
	Section    string `json:"section"`
	Index      int    `json:"index"`
	StartIndex int    `json:"start_index"`
}

func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	if err := vectorstore.CheckDimension(len(vector), s.dimension); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  true,
	}
	var resp struct {
		Result []struct {
			Score   float64   `json:"score"`
			Payload payload   `json:"payload"`
			Vector  []float64 `json:"vector"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/search", req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		p := r.Payload
		results = append(results, domain.SearchResult{
			Chunk: domain.Chunk{
				ID:         p.ChunkID,
				Text:       p.Text,
				Source:     p.Source,
				Page:       p.Page,
				Section:    p.Section,
				Index:      p.Index,
				StartIndex: p.StartIndex,
			},
			Score:  r.Score,
			Vector: r.Vector,
		})
	}
	return results, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/count", map[string]any{"exact": true}, &resp)
	if status == http.StatusNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Drop deletes the collection. A missing collection is not an error.
func (s *Storage) Drop(ctx context.Context) error {
	status, err := s.do(ctx, http.MethodDelete, s.collectionURL(), nil, nil)
	if err != nil && status != http.StatusNotFound {
		return err
	}
	s.dimension = 0
	return nil
}

func (s *Storage) Close() error { return nil }

func (s *Storage) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", s.url, s.collection)
}

// do sends a JSON request and decodes the response into out when non-nil.
// The status code is returned even when err is set.
func (s *Storage) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encoding qdrant request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s: %s", method, url, resp.Status, bytes.TrimSpace(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding qdrant response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
