package main

import (
	"context"
	"fmt"
	"time"

	"energyrag/internal/chunker"
	"energyrag/internal/config"
	"energyrag/internal/domain"
	"energyrag/internal/embedding"
	"energyrag/internal/embedding/hashing"
	embollama "energyrag/internal/embedding/ollama"
	embopenai "energyrag/internal/embedding/openai"
	"energyrag/internal/generation"
	"energyrag/internal/generation/anthropic"
	"energyrag/internal/generation/gemini"
	genollama "energyrag/internal/generation/ollama"
	genopenai "energyrag/internal/generation/openai"
	"energyrag/internal/logger"
	"energyrag/internal/retriever"
	"energyrag/internal/retry"
	"energyrag/internal/service"
	"energyrag/internal/summarizer"
	"energyrag/internal/vectorstore"
)

func embeddingRegistry() *embedding.Registry {
	r := embedding.NewRegistry()
	r.Register("openai", embopenai.New)
	r.Register("ollama", embollama.New)
	r.Register("hashing", hashing.New)
	return r
}

func generationRegistry() *generation.Registry {
	r := generation.NewRegistry()
	r.Register("openai", genopenai.New)
	r.Register("groq", genopenai.NewGroq)
	r.Register("anthropic", anthropic.New)
	r.Register("gemini", gemini.New)
	r.Register("ollama", genollama.New)
	return r
}

func loadConfig() (*config.AppConfig, string, error) {
	if cfgPath != "" {
		cfg, err := config.Load(cfgPath)
		return cfg, cfgPath, err
	}
	return config.LoadDefault()
}

// app holds the wired pipeline for one command invocation.
type app struct {
	cfg   *config.AppConfig
	svc   *service.RAGService
	store domain.VectorStore
}

func (a *app) Close() error { return a.store.Close() }

// buildOptions selects what buildApp constructs.
type buildOptions struct {
	// generator is only needed for answering; indexing works without LLM keys.
	generator bool
	// reset empties the index before it is opened for the current embedder.
	reset bool
}

// buildApp assembles the pipeline from config.
func buildApp(ctx context.Context, opts buildOptions) (*app, error) {
	cfg, path, err := loadConfig()
	if err != nil {
		return nil, err
	}
	embCfg := cfg.ActiveEmbedding()
	logger.Debug("config %s: embedding %s/%s, db %s, student %s",
		path, embCfg.Provider, embCfg.Model, cfg.ActiveDB().Type, cfg.Generation.ActiveStudent)

	ch, err := chunker.NewWindowChunker(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap, cfg.Chunking.BoundaryTolerance)
	if err != nil {
		return nil, err
	}
	emb, err := embeddingRegistry().New(embCfg)
	if err != nil {
		return nil, err
	}
	var gen domain.Generator
	if opts.generator {
		if gen, err = generationRegistry().New(cfg.ActiveLLM()); err != nil {
			return nil, err
		}
	}
	store, err := vectorstore.Open(cfg.ActiveDB())
	if err != nil {
		return nil, err
	}

	policy := retry.Policy{
		MaxAttempts: cfg.Generation.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Generation.BackoffMillis) * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
	svc := service.NewRAGService(ch, emb, store, gen, summarizer.NewFrequencySummarizer(), service.Options{
		Workers:          cfg.Indexing.Workers,
		SummarySentences: cfg.Indexing.SummarySentences,
		BatchSize:        embCfg.BatchSize,
		DocumentPrefix:   embCfg.DocumentPrefix,
		PromptBudget:     cfg.Generation.PromptBudgetChars,
		Policy:           policy,
		Retrieval: retriever.Options{
			NumDocs:        cfg.Retrieval.NumDocs,
			ChunksPerDoc:   cfg.Retrieval.ChunksPerDoc,
			MinScore:       cfg.Retrieval.MinScore,
			DedupTolerance: cfg.Retrieval.DedupTolerance,
			QueryPrefix:    embCfg.QueryPrefix,
			Policy:         policy,
		},
	})
	initIndex := svc.Init
	if opts.reset {
		initIndex = svc.Rebuild
	}
	if err := initIndex(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open index: %w", err)
	}
	return &app{cfg: cfg, svc: svc, store: store}, nil
}
