package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfqa/internal/domain"
	"pdfqa/internal/vectorstore"
)

var _ vectorstore.Storage = (*Storage)(nil)

// fakeQdrant serves the handful of endpoints the client uses.
type fakeQdrant struct {
	mu      sync.Mutex
	created map[string]any
	points  []map[string]any
	deleted bool
	apiKeys []string
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/collections/docs":
		if f.created == nil {
			http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"result":{"config":{"params":{"vectors":{"size":2,"distance":"Cosine"}}}}}`))
	case r.Method == http.MethodPut && r.URL.Path == "/collections/docs":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.created = body
		_, _ = w.Write([]byte(`{"result":true}`))
	case r.Method == http.MethodPut && r.URL.Path == "/collections/docs/points":
		var body struct {
			Points []map[string]any `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.points = append(f.points, body.Points...)
		_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
	case r.Method == http.MethodPost && r.URL.Path == "/collections/docs/points/search":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["with_vector"] != true {
			http.Error(w, "vectors required", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"result":[{"score":0.9,"vector":[1,0],"payload":{
			"chunk_id":"doc_3","text":"hello","source":"a.pdf","page":2,
			"section":"1 Intro","index":1,"start_index":800}}]}`))
	case r.Method == http.MethodPost && r.URL.Path == "/collections/docs/points/count":
		_, _ = w.Write([]byte(`{"result":{"count":7}}`))
	case r.Method == http.MethodDelete && r.URL.Path == "/collections/docs":
		f.deleted = true
		f.created = nil
		_, _ = w.Write([]byte(`{"result":true}`))
	default:
		http.NotFound(w, r)
	}
}

func TestStorage_LifecycleAgainstFakeServer(t *testing.T) {
	ctx := context.Background()
	fake := &fakeQdrant{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, APIKey: "secret", Collection: "docs"})

	exists, err := s.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
	require.NoError(t, s.Open(ctx))

	chunks := []domain.Chunk{{ID: "doc_0", Text: "a"}, {ID: "doc_1", Text: "b"}}
	require.NoError(t, s.Upsert(ctx, chunks, [][]float64{{1, 0}, {0, 1}}))

	require.NotNil(t, fake.created)
	vectors := fake.created["vectors"].(map[string]any)
	assert.Equal(t, float64(2), vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
	require.Len(t, fake.points, 2)
	assert.Equal(t, PointID("docs", "doc_0"), fake.points[0]["id"])
	assert.Equal(t, "doc_1", fake.points[1]["payload"].(map[string]any)["chunk_id"])

	exists, err = s.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	res, err := s.Search(ctx, []float64{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, domain.Chunk{
		ID: "doc_3", Text: "hello", Source: "a.pdf", Page: 2,
		Section: "1 Intro", Index: 1, StartIndex: 800,
	}, res[0].Chunk)
	assert.Equal(t, []float64{1, 0}, res[0].Vector)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	require.NoError(t, s.Drop(ctx))
	assert.True(t, fake.deleted)

	for _, k := range fake.apiKeys {
		assert.Equal(t, "secret", k)
	}
}

func TestStorage_DimensionMismatch(t *testing.T) {
	fake := &fakeQdrant{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, Collection: "docs"})
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{{ID: "a"}}, [][]float64{{1, 0}}))
	assert.Error(t, s.Upsert(ctx, []domain.Chunk{{ID: "b"}}, [][]float64{{1, 0, 0}}))

	_, err := s.Search(ctx, []float64{1, 0, 0}, 3)
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}

func TestPointID_Stable(t *testing.T) {
	assert.Equal(t, PointID("docs", "doc_1"), PointID("docs", "doc_1"))
	assert.NotEqual(t, PointID("docs", "doc_1"), PointID("docs", "doc_2"))
	assert.NotEqual(t, PointID("a", "doc_1"), PointID("b", "doc_1"))
}
