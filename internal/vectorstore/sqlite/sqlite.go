// Package sqlite implements the persisted on-disk vector index.
//
// Each index directory holds a single index.db file. Entries are keyed by
// (collection, chunk id); embeddings are stored as little-endian float64
// blobs and searched by brute-force cosine similarity.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"pdfqa/internal/domain"
	"pdfqa/internal/embedding"
	"pdfqa/internal/logging"
	"pdfqa/internal/vectorstore"
)

const dbFile = "index.db"

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	collection  TEXT NOT NULL,
	id          TEXT NOT NULL,
	text        TEXT NOT NULL,
	source      TEXT NOT NULL,
	page        INTEGER NOT NULL,
	section     TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	start_index INTEGER NOT NULL,
	embedding   BLOB NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE TABLE IF NOT EXISTS meta (
	collection TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	PRIMARY KEY (collection, key)
);`

// Storage is a SQLite-backed vector store rooted at a directory.
type Storage struct {
	dir        string
	collection string
	db         *sql.DB
	dimension  int
	logger     *zap.Logger
}

// NewStorage creates a store for dir/collection. Nothing touches disk until Open.
func NewStorage(dir, collection string, logger *zap.Logger) *Storage {
	if collection == "" {
		collection = "default"
	}
	return &Storage{dir: dir, collection: collection, logger: logging.OrNop(logger)}
}

// Path returns the database file path.
func (s *Storage) Path() string {
	return filepath.Join(s.dir, dbFile)
}

// Exists reports whether a persisted index file is present.
func (s *Storage) Exists(ctx context.Context) (bool, error) {
	_, err := os.Stat(s.Path())
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("checking index: %w", err)
}

// Open creates or opens the database and its schema.
func (s *Storage) Open(ctx context.Context) error {
	if s.db != nil {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	db, err := sql.Open("sqlite", s.Path()+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return fmt.Errorf("creating schema: %w", err)
	}
	var dim string
	err = db.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE collection = ? AND key = 'dimension'`, s.collection).Scan(&dim)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		db.Close()
		return fmt.Errorf("reading dimension: %w", err)
	default:
		if s.dimension, err = strconv.Atoi(dim); err != nil {
			db.Close()
			return fmt.Errorf("corrupt dimension %q: %w", dim, err)
		}
	}
	s.db = db
	s.logger.Debug("opened sqlite index",
		zap.String("path", s.Path()),
		zap.String("collection", s.collection),
		zap.Int("dimension", s.dimension))
	return nil
}

// Upsert inserts chunks, overwriting any entry that already has the same ID.
func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if s.db == nil {
		return errors.New("sqlite index is not open")
	}
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	if len(chunks) == 0 {
		return nil
	}
	dim := s.dimension
	for i, v := range vectors {
		if dim == 0 {
			dim = len(v)
		}
		if len(v) == 0 || len(v) != dim {
			return fmt.Errorf("chunk %s: vector dimension %d, want %d", chunks[i].ID, len(v), dim)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if s.dimension == 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO meta (collection, key, value) VALUES (?, 'dimension', ?)`,
			s.collection, strconv.Itoa(dim)); err != nil {
			return fmt.Errorf("saving dimension: %w", err)
		}
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (collection, id, text, source, page, section, chunk_index, start_index, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			text = excluded.text,
			source = excluded.source,
			page = excluded.page,
			section = excluded.section,
			chunk_index = excluded.chunk_index,
			start_index = excluded.start_index,
			embedding = excluded.embedding`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()
	for i, ch := range chunks {
		if _, err := stmt.ExecContext(ctx, s.collection, ch.ID, ch.Text, ch.Source, ch.Page,
			ch.Section, ch.Index, ch.StartIndex, float64SliceToBytes(vectors[i])); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", ch.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.dimension = dim
	return nil
}

// Search scores every entry of the collection against vector.
func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	if s.db == nil {
		return nil, errors.New("sqlite index is not open")
	}
	if err := vectorstore.CheckDimension(len(vector), s.dimension); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 5
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, source, page, section, chunk_index, start_index, embedding
		FROM chunks WHERE collection = ? ORDER BY rowid`, s.collection)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var results []domain.SearchResult
	for rows.Next() {
		var ch domain.Chunk
		var blob []byte
		if err := rows.Scan(&ch.ID, &ch.Text, &ch.Source, &ch.Page, &ch.Section,
			&ch.Index, &ch.StartIndex, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		v := bytesToFloat64Slice(blob)
		results = append(results, domain.SearchResult{Chunk: ch, Score: embedding.Cosine(vector, v), Vector: v})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	vectorstore.SortByScore(results)
	return vectorstore.TopK(results, topK), nil
}

// Count returns the number of entries in the collection.
func (s *Storage) Count(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, errors.New("sqlite index is not open")
	}
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks WHERE collection = ?`, s.collection).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// Drop closes the database and deletes the index files. The directory is
// removed too when nothing else is left in it.
func (s *Storage) Drop(ctx context.Context) error {
	if err := s.Close(); err != nil {
		return err
	}
	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		if err := os.Remove(s.Path() + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing index: %w", err)
		}
	}
	s.dimension = 0

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading index directory: %w", err)
	}
	if len(entries) == 0 {
		if err := os.Remove(s.dir); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing index directory: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func float64SliceToBytes(floats []float64) []byte {
	buf := make([]byte, len(floats)*8)
	for i, f := range floats {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func bytesToFloat64Slice(data []byte) []float64 {
	floats := make([]float64, len(data)/8)
	for i := range floats {
		floats[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return floats
}
