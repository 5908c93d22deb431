package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfqa/internal/domain"
	"pdfqa/internal/vectorstore"
)

var _ vectorstore.Storage = (*Storage)(nil)

func sampleChunks() ([]domain.Chunk, [][]float64) {
	chunks := []domain.Chunk{
		{ID: "doc_0", Text: "alpha", Source: "a.pdf", Page: 0, Section: "1 Intro", Index: 0, StartIndex: 0},
		{ID: "doc_1", Text: "beta", Source: "a.pdf", Page: 1, Section: "Unknown Section", Index: 0, StartIndex: 0},
		{ID: "doc_2", Text: "gamma", Source: "b.pdf", Page: 0, Section: "2 Body", Index: 1, StartIndex: 812},
	}
	vectors := [][]float64{{1, 0, 0}, {0, 1, 0}, {0.6, 0.8, 0}}
	return chunks, vectors
}

func TestStorage_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "index")

	s := NewStorage(dir, "protocols_docs", nil)
	exists, err := s.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.Open(ctx))
	chunks, vectors := sampleChunks()
	require.NoError(t, s.Upsert(ctx, chunks, vectors))
	require.NoError(t, s.Close())

	reopened := NewStorage(dir, "protocols_docs", nil)
	exists, err = reopened.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, reopened.Open(ctx))
	defer reopened.Close()

	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	res, err := reopened.Search(ctx, []float64{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, chunks[0], res[0].Chunk)
	assert.InDelta(t, 1.0, res[0].Score, 1e-9)
	assert.Equal(t, []float64{1, 0, 0}, res[0].Vector)
	assert.Equal(t, chunks[2], res[1].Chunk)
	assert.InDelta(t, 0.6, res[1].Score, 1e-9)

	// dimension survives the reopen
	assert.Error(t, reopened.Upsert(ctx, []domain.Chunk{{ID: "doc_9"}}, [][]float64{{1, 2}}))
}

func TestStorage_UpsertOverwritesSameID(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(t.TempDir(), "c", nil)
	require.NoError(t, s.Open(ctx))
	defer s.Close()

	require.NoError(t, s.Upsert(ctx, []domain.Chunk{{ID: "doc_0", Text: "old"}}, [][]float64{{1, 0}}))
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{{ID: "doc_0", Text: "new"}}, [][]float64{{0, 1}}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res, err := s.Search(ctx, []float64{0, 1}, 5)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "new", res[0].Chunk.Text)
}

func TestStorage_CollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	a := NewStorage(dir, "a", nil)
	require.NoError(t, a.Open(ctx))
	require.NoError(t, a.Upsert(ctx, []domain.Chunk{{ID: "doc_0"}}, [][]float64{{1}}))
	require.NoError(t, a.Close())

	b := NewStorage(dir, "b", nil)
	require.NoError(t, b.Open(ctx))
	defer b.Close()
	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStorage_Drop(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "index")
	s := NewStorage(dir, "c", nil)
	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{{ID: "doc_0"}}, [][]float64{{1}}))

	require.NoError(t, s.Drop(ctx))
	exists, err := s.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.Open(ctx))
	defer s.Close()
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{{ID: "doc_0"}}, [][]float64{{1, 2}}))
}

func TestStorage_DropKeepsUnrelatedFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	pdf := filepath.Join(dir, "manual.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4"), 0o644))

	s := NewStorage(dir, "c", nil)
	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{{ID: "doc_0"}}, [][]float64{{1}}))
	require.NoError(t, s.Drop(ctx))

	assert.FileExists(t, pdf)
	assert.NoFileExists(t, s.Path())
	assert.NoFileExists(t, s.Path()+"-wal")
	assert.NoFileExists(t, s.Path()+"-shm")
	exists, err := s.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStorage_DropRemovesEmptyDirectory(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "index")
	s := NewStorage(dir, "c", nil)
	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.Drop(ctx))

	assert.NoDirExists(t, dir)
	// dropping an index that was never created is fine
	require.NoError(t, NewStorage(filepath.Join(t.TempDir(), "missing"), "c", nil).Drop(ctx))
}

func TestStorage_SearchRejectsForeignDimension(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "index")
	s := NewStorage(dir, "c", nil)
	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{{ID: "doc_0"}, {ID: "doc_1"}},
		[][]float64{{1, 0, 0, 0}, {0, 1, 0, 0}}))
	require.NoError(t, s.Close())

	// the stored dimension survives a reopen with a different embedder
	reopened := NewStorage(dir, "c", nil)
	require.NoError(t, reopened.Open(ctx))
	defer reopened.Close()
	res, err := reopened.Search(ctx, []float64{1, 0}, 2)
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
	assert.Empty(t, res)

	res, err = reopened.Search(ctx, []float64{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, res, 2)
}

func TestStorage_NotOpen(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(t.TempDir(), "", nil)

	_, err := s.Search(ctx, []float64{1}, 1)
	assert.Error(t, err)
	_, err = s.Count(ctx)
	assert.Error(t, err)
	assert.Error(t, s.Upsert(ctx, []domain.Chunk{{ID: "x"}}, [][]float64{{1}}))
	assert.NoError(t, s.Close())
}

func TestFloat64Blob(t *testing.T) {
	v := []float64{0, -1.5, 3.25, 1e-300}
	assert.Equal(t, v, bytesToFloat64Slice(float64SliceToBytes(v)))
}
