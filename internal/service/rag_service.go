// Package service wires the indexing and question-answering pipelines.
package service

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"energyrag/internal/domain"
	"energyrag/internal/embedding"
	"energyrag/internal/loader"
	"energyrag/internal/logger"
	"energyrag/internal/prompt"
	"energyrag/internal/retriever"
	"energyrag/internal/retry"
	"energyrag/internal/validator"
)

// Options tunes the pipelines. Zero values fall back to small defaults.
type Options struct {
	Workers          int
	SummarySentences int
	BatchSize        int
	DocumentPrefix   string
	Retrieval        retriever.Options
	PromptBudget     int
	Policy           retry.Policy
}

// Answer is a validated answer together with the evidence it was built from.
type Answer struct {
	domain.StructuredAnswer
	Context  domain.RetrievedContext
	Dropped  int
	Repaired bool
	Model    string
}

// RAGService runs indexing and answering over one embedder, store and generator.
type RAGService struct {
	chunker    domain.Chunker
	embedder   domain.Embedder
	store      domain.VectorStore
	generator  domain.Generator
	summarizer domain.Summarizer
	retriever  *retriever.Retriever
	assembler  *prompt.Assembler
	opts       Options

	// writeMu serializes index writes across indexing workers.
	writeMu sync.Mutex
}

func NewRAGService(
	chunker domain.Chunker,
	embedder domain.Embedder,
	store domain.VectorStore,
	generator domain.Generator,
	summarizer domain.Summarizer,
	opts Options,
) *RAGService {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.SummarySentences <= 0 {
		opts.SummarySentences = 2
	}
	if opts.Retrieval.Policy.MaxAttempts == 0 {
		opts.Retrieval.Policy = opts.Policy
	}
	return &RAGService{
		chunker:    chunker,
		embedder:   embedder,
		store:      store,
		generator:  generator,
		summarizer: summarizer,
		retriever:  retriever.New(embedder, store, opts.Retrieval),
		assembler:  prompt.NewAssembler(opts.PromptBudget),
		opts:       opts,
	}
}

// Init prepares the store for the embedder's dimensionality.
func (s *RAGService) Init(ctx context.Context) error {
	return retry.Do(ctx, s.opts.Policy, "index init", func(ctx context.Context) error {
		return s.store.Init(ctx, s.embedder.Dimensions())
	})
}

// EmbeddingModel returns the ID of the model used for both indexing and queries.
func (s *RAGService) EmbeddingModel() string { return s.embedder.ModelID() }

// GenerationModel returns the ID of the active generation model.
func (s *RAGService) GenerationModel() string {
	if s.generator == nil {
		return ""
	}
	return s.generator.ModelID()
}

// Count returns the number of indexed chunks.
func (s *RAGService) Count(ctx context.Context) (int, error) { return s.store.Count(ctx) }

// Reset removes every indexed chunk.
func (s *RAGService) Reset(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.store.Clear(ctx)
}

// Rebuild empties the index and re-initialises it for the current embedder.
// Unlike Init it succeeds on an index built with another dimensionality.
func (s *RAGService) Rebuild(ctx context.Context) error {
	if err := s.Reset(ctx); err != nil {
		return fmt.Errorf("reset index: %w", err)
	}
	return s.Init(ctx)
}

// IngestDirectory loads every supported file under dir and indexes it.
// Files that cannot be read are reported alongside indexing failures.
func (s *RAGService) IngestDirectory(ctx context.Context, dir string) (domain.IndexReport, error) {
	loaded := logger.Stage("Loading documents")
	docs, failures, err := loader.Load(ctx, dir)
	loaded()
	if err != nil {
		return domain.IndexReport{}, err
	}
	logger.Info("loaded %d documents from %s (%d unreadable)", len(docs), dir, len(failures))
	report, err := s.Index(ctx, docs)
	report.Failures = append(failures, report.Failures...)
	sort.SliceStable(report.Failures, func(i, j int) bool {
		return report.Failures[i].SourcePath < report.Failures[j].SourcePath
	})
	return report, err
}

type docResult struct {
	report  domain.DocumentReport
	failure *domain.DocumentFailure
}

// Index chunks, embeds and upserts documents concurrently. A failing document
// is recorded in the report and the rest of the batch continues; only
// cancellation aborts the run.
func (s *RAGService) Index(ctx context.Context, docs []domain.Document) (domain.IndexReport, error) {
	defer logger.Stage("Indexing")()
	results := make([]docResult, len(docs))
	var (
		seenMu     sync.Mutex
		seen       = make(map[[sha1.Size]byte]struct{})
		duplicates int
	)
	countDuplicates := func(chunks []domain.Chunk) {
		seenMu.Lock()
		defer seenMu.Unlock()
		for _, c := range chunks {
			key := sha1.Sum([]byte(strings.Join(strings.Fields(strings.ToLower(c.Text)), " ")))
			if _, ok := seen[key]; ok {
				duplicates++
				continue
			}
			seen[key] = struct{}{}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, doc := range docs {
		g.Go(func() error {
			chunks, err := s.indexDocument(gctx, doc)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn("indexing %s failed: %v", doc.SourcePath, err)
				results[i].failure = &domain.DocumentFailure{SourcePath: doc.SourcePath, Error: err.Error()}
				return nil
			}
			countDuplicates(chunks)
			results[i].report = domain.DocumentReport{
				DocumentID: doc.ID,
				Title:      doc.Title,
				SourcePath: doc.SourcePath,
				Chunks:     len(chunks),
				Summary:    s.summarize(doc),
			}
			logger.Debug("indexed %s: %d chunks", doc.SourcePath, len(chunks))
			return nil
		})
	}
	err := g.Wait()

	var report domain.IndexReport
	for _, r := range results {
		switch {
		case r.failure != nil:
			report.Failures = append(report.Failures, *r.failure)
		case r.report.DocumentID != "":
			report.Documents = append(report.Documents, r.report)
			report.Chunks += r.report.Chunks
		}
	}
	report.DuplicateChunks = duplicates
	logger.Info("indexed %d documents, %d chunks, %d failures", len(report.Documents), report.Chunks, len(report.Failures))
	return report, err
}

func (s *RAGService) indexDocument(ctx context.Context, doc domain.Document) ([]domain.Chunk, error) {
	chunks, err := s.chunker.Chunk(doc)
	if err != nil {
		return nil, fmt.Errorf("chunk: %w", err)
	}
	if len(chunks) == 0 {
		return nil, errors.New("no text to index")
	}
	batcher := embedding.Batcher{Embedder: s.embedder, BatchSize: s.opts.BatchSize, Policy: s.opts.Policy}
	vectors, err := batcher.EmbedChunks(ctx, chunks, s.opts.DocumentPrefix)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	values := make([][]float32, len(vectors))
	for i, v := range vectors {
		values[i] = v.Values
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	err = retry.Do(ctx, s.opts.Policy, "upsert", func(ctx context.Context) error {
		return s.store.Upsert(ctx, chunks, values)
	})
	if err != nil {
		return nil, fmt.Errorf("upsert: %w", err)
	}
	return chunks, nil
}

func (s *RAGService) summarize(doc domain.Document) string {
	if s.summarizer == nil {
		return ""
	}
	summary, err := s.summarizer.Summarize(doc.RawText, s.opts.SummarySentences)
	if err != nil {
		logger.Debug("summary of %s failed: %v", doc.SourcePath, err)
		return ""
	}
	return summary
}

// Ask answers q and returns only the structured answer.
func (s *RAGService) Ask(ctx context.Context, q domain.Query) (domain.StructuredAnswer, error) {
	a, err := s.AskWithEvidence(ctx, q)
	if err != nil {
		return domain.StructuredAnswer{}, err
	}
	return a.StructuredAnswer, nil
}

// AskWithEvidence runs retrieve, assemble, generate and validate for one
// query. A reply that fails validation gets exactly one repair attempt.
// When retrieval finds nothing the answer is always prompt.NoResourceAnswer,
// whatever the model replied; its caveats are kept.
func (s *RAGService) AskWithEvidence(ctx context.Context, q domain.Query) (Answer, error) {
	if s.generator == nil {
		return Answer{}, &domain.ConfigError{Field: "generation.active_student", Reason: "no generator configured"}
	}
	if q.ModelID != "" && q.ModelID != s.embedder.ModelID() {
		return Answer{}, &domain.ConfigError{
			Field:  "retrieval.active_embedding",
			Reason: fmt.Sprintf("query requests embedding model %q but the index uses %q", q.ModelID, s.embedder.ModelID()),
		}
	}

	defer logger.Stage("Answering")()
	rc, err := s.retriever.Retrieve(ctx, q.Text, q.NumDocs)
	if err != nil {
		return Answer{}, err
	}
	logger.Debug("retrieved %d snippets for %q from [%s]", len(rc.Items), rc.Query, strings.Join(rc.Titles(), "; "))

	p := s.assembler.Assemble(rc.Query, rc)
	evidence := domain.RetrievedContext{Query: rc.Query, Items: p.Sources}
	out := Answer{Context: evidence, Dropped: p.Dropped, Model: s.generator.ModelID()}

	raw, err := s.generate(ctx, p)
	if err != nil {
		return out, err
	}
	answer, err := validator.Validate(raw, evidence)
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		logger.Debug("reply rejected (%s), requesting repair", strings.Join(ve.Problems, "; "))
		raw, err = s.generate(ctx, s.assembler.Repair(p, raw, ve.Problems))
		if err != nil {
			return out, err
		}
		out.Repaired = true
		answer, err = validator.Validate(raw, evidence)
	}
	if err != nil {
		return out, err
	}
	if evidence.Empty() {
		if answer.AnswerText != prompt.NoResourceAnswer {
			logger.Debug("replacing ungrounded answer for %q", rc.Query)
		}
		answer.AnswerText = prompt.NoResourceAnswer
		answer.Citations = []domain.Citation{}
	}
	out.StructuredAnswer = answer
	return out, nil
}

func (s *RAGService) generate(ctx context.Context, p domain.Prompt) (string, error) {
	op := s.generator.Name() + " generate"
	return retry.DoValue(ctx, s.opts.Policy, op, func(ctx context.Context) (string, error) {
		return s.generator.Generate(ctx, p)
	})
}

// UserMessage maps a pipeline error to text suitable for the end user.
func UserMessage(err error) string {
	var (
		cpe *domain.ContentPolicyError
		de  *domain.DimensionError
		ce  *domain.ConfigError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrEmptyQuery):
		return "Please enter a question."
	case errors.Is(err, context.Canceled):
		return "Request cancelled."
	case errors.Is(err, context.DeadlineExceeded):
		return "The request timed out. Please try again."
	case errors.As(err, &cpe):
		return cpe.Message
	case errors.Is(err, domain.ErrValidation):
		return "Unable to produce a grounded answer."
	case errors.As(err, &de):
		return "The index was built with a different embedding model; re-run indexing. (" + de.Error() + ")"
	case errors.As(err, &ce):
		return ce.Error()
	case errors.Is(err, domain.ErrRetrieval):
		return "The document index is unreachable. Please try again later."
	case errors.Is(err, domain.ErrProvider):
		return "The model backend is unavailable. Please try again later. (" + err.Error() + ")"
	default:
		return "Unexpected error: " + err.Error()
	}
}
