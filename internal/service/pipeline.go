// Package service wires loading, indexing, retrieval and answering into a
// single pipeline with an explicit open, serve, close lifecycle.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"pdfqa/internal/answer"
	"pdfqa/internal/domain"
	"pdfqa/internal/logging"
	"pdfqa/internal/retriever"
	"pdfqa/internal/textnorm"
)

const (
	DefaultBatchSize     = 100
	DefaultMinPageLength = 50
)

// DocumentLoader reads the raw pages of every document in a directory.
type DocumentLoader interface {
	Load(ctx context.Context, dir string) ([]domain.Document, error)
}

// Components are the pluggable parts of the pipeline. Completer may be nil
// for pipelines that only index or retrieve.
type Components struct {
	Loader    DocumentLoader
	Chunker   domain.Chunker
	Embedder  domain.Embedder
	Store     domain.VectorStore
	Completer domain.Completer
}

type Options struct {
	DocumentsDir  string
	MinPageLength int
	BatchSize     int
	Retriever     retriever.Options
	Logger        *zap.Logger
}

// Answer is a model answer together with the chunks it was grounded on.
type Answer struct {
	Question string
	Text     string
	Sources  []domain.Chunk
}

// Pipeline answers questions over an indexed PDF corpus.
type Pipeline struct {
	c         Components
	opts      Options
	retriever *retriever.Retriever
	composer  *answer.Composer
	logger    *zap.Logger

	ready   bool
	openErr error
}

func New(c Components, opts Options) (*Pipeline, error) {
	if c.Loader == nil || c.Chunker == nil || c.Embedder == nil || c.Store == nil {
		return nil, errors.New("pipeline needs a loader, chunker, embedder and store")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MinPageLength <= 0 {
		opts.MinPageLength = DefaultMinPageLength
	}
	logger := logging.OrNop(opts.Logger)

	r, err := retriever.New(c.Embedder, c.Store, opts.Retriever, logger.Named("retriever"))
	if err != nil {
		return nil, err
	}
	p := &Pipeline{c: c, opts: opts, retriever: r, logger: logger}
	if c.Completer != nil {
		if p.composer, err = answer.NewComposer(c.Completer, logger.Named("answer")); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Open makes the index available. With rebuild the persisted index is
// deleted first. An existing index is reused as is; otherwise the corpus is
// loaded, split and embedded. A failed open leaves the pipeline refusing
// queries with domain.ErrNotInitialized.
func (p *Pipeline) Open(ctx context.Context, rebuild bool) error {
	p.ready, p.openErr = false, nil
	if err := p.open(ctx, rebuild); err != nil {
		p.openErr = err
		p.logger.Error("failed to initialize vector store", zap.Error(err))
		return err
	}
	p.ready = true
	p.logger.Info("RAG system initialized successfully")
	return nil
}

func (p *Pipeline) open(ctx context.Context, rebuild bool) error {
	store := p.c.Store
	if rebuild {
		p.logger.Warn("removing existing index")
		if err := store.Drop(ctx); err != nil {
			return fmt.Errorf("dropping index: %w", err)
		}
	}

	exists, err := store.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		p.logger.Info("loading existing vector store")
		return store.Open(ctx)
	}

	p.logger.Info("index not found, creating new vector store")
	chunks, err := p.prepareChunks(ctx)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return domain.ErrEmptyCorpus
	}
	if err := store.Open(ctx); err != nil {
		return err
	}
	if err := p.index(ctx, chunks); err != nil {
		// a partial index would be reused by the next run
		return multierr.Append(err, store.Drop(context.WithoutCancel(ctx)))
	}
	p.logger.Info("vector store created successfully", zap.Int("chunks", len(chunks)))
	return nil
}

func (p *Pipeline) prepareChunks(ctx context.Context) ([]domain.Chunk, error) {
	raw, err := p.c.Loader.Load(ctx, p.opts.DocumentsDir)
	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		// per-file failures were already logged by the loader
		p.logger.Warn("some documents could not be loaded",
			zap.Int("failed", len(multierr.Errors(err))),
			zap.Int("pages_loaded", len(raw)))
	}
	pages := textnorm.Normalize(raw, p.opts.MinPageLength)
	p.logger.Info("total documents loaded",
		zap.Int("pages", len(raw)),
		zap.Int("kept", len(pages)))
	return p.c.Chunker.SplitDocuments(pages), nil
}

func (p *Pipeline) index(ctx context.Context, chunks []domain.Chunk) error {
	size := p.opts.BatchSize
	batches := (len(chunks)-1)/size + 1
	for b := 0; b < batches; b++ {
		batch := chunks[b*size : min((b+1)*size, len(chunks))]
		p.logger.Info("adding batch", zap.Int("batch", b+1), zap.Int("of", batches))

		vectors := make([][]float64, len(batch))
		for i, ch := range batch {
			v, err := p.c.Embedder.Embed(ctx, ch.Text)
			if err != nil {
				return fmt.Errorf("embedding %s: %w", ch.ID, err)
			}
			vectors[i] = v
		}
		if err := p.c.Store.Upsert(ctx, batch, vectors); err != nil {
			return fmt.Errorf("storing batch %d/%d: %w", b+1, batches, err)
		}
	}
	return nil
}

// Ready reports whether the last Open succeeded.
func (p *Pipeline) Ready() bool { return p.ready }

func (p *Pipeline) notReady() error {
	if p.openErr != nil {
		return fmt.Errorf("%w: %w", domain.ErrNotInitialized, p.openErr)
	}
	return domain.ErrNotInitialized
}

// Retrieve returns the chunks selected for query, with their similarity scores.
func (p *Pipeline) Retrieve(ctx context.Context, query string) ([]domain.SearchResult, error) {
	if !p.ready {
		return nil, p.notReady()
	}
	res, err := p.retriever.RetrieveResults(ctx, query)
	if err != nil {
		return nil, &domain.QueryError{Stage: domain.StageRetrieve, Err: err}
	}
	return res, nil
}

// Ask retrieves context for question and composes an answer from it.
func (p *Pipeline) Ask(ctx context.Context, question string) (Answer, error) {
	if !p.ready {
		return Answer{}, p.notReady()
	}
	chunks, err := p.retriever.Retrieve(ctx, question)
	if err != nil {
		return Answer{}, &domain.QueryError{Stage: domain.StageRetrieve, Err: err}
	}
	if p.composer == nil {
		return Answer{}, &domain.QueryError{Stage: domain.StageComplete, Err: errors.New("no language model configured")}
	}
	text, err := p.composer.Answer(ctx, question, chunks)
	if err != nil {
		return Answer{}, &domain.QueryError{Stage: domain.StageComplete, Err: err}
	}
	return Answer{Question: question, Text: text, Sources: chunks}, nil
}

// Count returns the number of indexed chunks.
func (p *Pipeline) Count(ctx context.Context) (int, error) {
	if !p.ready {
		return 0, p.notReady()
	}
	return p.c.Store.Count(ctx)
}

func (p *Pipeline) Close() error {
	p.ready = false
	return p.c.Store.Close()
}
