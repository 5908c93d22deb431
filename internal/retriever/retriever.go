// Package retriever turns a question into a diverse set of relevant chunks.
package retriever

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"pdfqa/internal/domain"
	"pdfqa/internal/logging"
)

const (
	DefaultK      = 8
	DefaultFetchK = 30
)

// Options control the candidate pool and the relevance/diversity blend.
// Zero K and FetchK fall back to DefaultK and DefaultFetchK. LambdaMult is
// taken as given: 1 ranks by similarity alone and 0, the zero value, by
// diversity alone. The configured default of 0.7 is applied by the config
// package.
type Options struct {
	K          int
	FetchK     int
	LambdaMult float64
}

func (o Options) withDefaults() Options {
	if o.K <= 0 {
		o.K = DefaultK
	}
	if o.FetchK <= 0 {
		o.FetchK = DefaultFetchK
	}
	if o.FetchK < o.K {
		o.FetchK = o.K
	}
	return o
}

// Retriever over-fetches by similarity and re-ranks with MMR.
type Retriever struct {
	embedder domain.Embedder
	store    domain.VectorStore
	opts     Options
	logger   *zap.Logger
}

func New(embedder domain.Embedder, store domain.VectorStore, opts Options, logger *zap.Logger) (*Retriever, error) {
	if embedder == nil || store == nil {
		return nil, errors.New("retriever needs an embedder and a store")
	}
	if opts.LambdaMult < 0 || opts.LambdaMult > 1 {
		return nil, fmt.Errorf("lambda_mult %v outside [0, 1]", opts.LambdaMult)
	}
	return &Retriever{
		embedder: embedder,
		store:    store,
		opts:     opts.withDefaults(),
		logger:   logging.OrNop(logger),
	}, nil
}

// Options returns the effective options.
func (r *Retriever) Options() Options { return r.opts }

// Retrieve returns at most K chunks in selection order.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]domain.Chunk, error) {
	results, err := r.RetrieveResults(ctx, query)
	if err != nil {
		return nil, err
	}
	chunks := make([]domain.Chunk, len(results))
	for i, res := range results {
		chunks[i] = res.Chunk
	}
	return chunks, nil
}

// RetrieveResults is Retrieve keeping each chunk's similarity to the query.
func (r *Retriever) RetrieveResults(ctx context.Context, query string) ([]domain.SearchResult, error) {
	qv, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	candidates, err := r.store.Search(ctx, qv, r.opts.FetchK)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	vectors := make([][]float64, len(candidates))
	for i, c := range candidates {
		vectors[i] = c.Vector
	}
	picks := MMR(qv, vectors, r.opts.K, r.opts.LambdaMult)

	out := make([]domain.SearchResult, len(picks))
	for i, idx := range picks {
		out[i] = candidates[idx]
	}
	r.logger.Debug("retrieved chunks",
		zap.Int("candidates", len(candidates)),
		zap.Int("selected", len(out)))
	return out, nil
}
