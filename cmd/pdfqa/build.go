package main

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"pdfqa/internal/chunker"
	"pdfqa/internal/config"
	"pdfqa/internal/domain"
	"pdfqa/internal/embedding/hashing"
	"pdfqa/internal/embedding/openai"
	"pdfqa/internal/llm/ollama"
	llmopenai "pdfqa/internal/llm/openai"
	"pdfqa/internal/loader"
	"pdfqa/internal/retriever"
	"pdfqa/internal/service"
	"pdfqa/internal/vectorstore/memory"
	"pdfqa/internal/vectorstore/qdrant"
	"pdfqa/internal/vectorstore/sqlite"
)

// buildPipeline assembles the components named in cfg. The language model
// is only constructed when withLLM is set.
func buildPipeline(cfg *config.AppConfig, logger *zap.Logger, withLLM bool) (*service.Pipeline, error) {
	emb, err := buildEmbedder(cfg, logger)
	if err != nil {
		return nil, err
	}
	ch, err := chunker.NewRecursiveSplitter(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap,
		cfg.Chunker.Separators, logger.Named("chunker"))
	if err != nil {
		return nil, err
	}
	st, err := buildStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	var completer domain.Completer
	if withLLM {
		if completer, err = buildCompleter(cfg, logger); err != nil {
			return nil, err
		}
	}
	return service.New(service.Components{
		Loader:    loader.New(logger.Named("loader")),
		Chunker:   ch,
		Embedder:  emb,
		Store:     st,
		Completer: completer,
	}, service.Options{
		DocumentsDir:  cfg.Documents.Dir,
		MinPageLength: cfg.Documents.MinPageLength,
		BatchSize:     cfg.VectorStore.BatchSize,
		Retriever: retriever.Options{
			K:          cfg.Retriever.K,
			FetchK:     cfg.Retriever.FetchK,
			LambdaMult: cfg.Retriever.LambdaMult,
		},
		Logger: logger,
	})
}

func buildEmbedder(cfg *config.AppConfig, logger *zap.Logger) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		c := cfg.Embedder.OpenAI
		client, err := openai.NewClient(openai.Config{
			BaseURL:    c.BaseURL,
			APIKeyEnv:  c.APIKeyEnv,
			Model:      c.Model,
			Timeout:    time.Duration(c.TimeoutSecs) * time.Second,
			MaxRetries: c.MaxRetries,
			Logger:     logger.Named("embedder"),
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nil
	case "hashing":
		dim := 0
		if cfg.Embedder.Hashing != nil {
			dim = cfg.Embedder.Hashing.Dimension
		}
		return hashing.NewEmbedder(dim), nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

func buildStore(cfg *config.AppConfig, logger *zap.Logger) (domain.VectorStore, error) {
	vs := cfg.VectorStore
	switch vs.Type {
	case "sqlite":
		return sqlite.NewStorage(vs.Dir, vs.Collection, logger.Named("index")), nil
	case "memory":
		return memory.NewStorage(), nil
	case "qdrant":
		q := config.QdrantConfig{URL: "http://localhost:6333"}
		if vs.Qdrant != nil {
			q = *vs.Qdrant
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        q.URL,
			APIKey:     q.APIKey,
			Collection: vs.Collection,
			Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
			Logger:     logger.Named("index"),
		}), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", vs.Type)
	}
}

func buildCompleter(cfg *config.AppConfig, logger *zap.Logger) (domain.Completer, error) {
	switch cfg.LLM.Type {
	case "ollama":
		c := cfg.LLM.Ollama
		if c == nil {
			c = &config.OllamaLLMConfig{}
		}
		return ollama.NewClient(ollama.Config{
			BaseURL: c.BaseURL,
			Model:   c.Model,
			Timeout: time.Duration(c.TimeoutSecs) * time.Second,
			Logger:  logger.Named("llm"),
		}), nil
	case "openai":
		if cfg.LLM.OpenAI == nil {
			return nil, fmt.Errorf("openai llm config missing")
		}
		c := cfg.LLM.OpenAI
		client, err := llmopenai.NewChatClient(llmopenai.Config{
			BaseURL:     c.BaseURL,
			APIKeyEnv:   c.APIKeyEnv,
			Model:       c.Model,
			Temperature: c.Temperature,
			MaxTokens:   c.MaxTokens,
			Logger:      logger.Named("llm"),
		})
		if err != nil {
			return nil, fmt.Errorf("openai llm init failed: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown llm: %s", cfg.LLM.Type)
	}
}
