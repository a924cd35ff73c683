package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energyrag/internal/chunker"
	"energyrag/internal/domain"
	"energyrag/internal/embedding/hashing"
	"energyrag/internal/prompt"
	"energyrag/internal/retriever"
	"energyrag/internal/retry"
	"energyrag/internal/summarizer"
	"energyrag/internal/vectorstore/memory"
	"energyrag/internal/vectorstore/sqlite"
	"energyrag/internal/vectorstore/vecutil"
)

type reply struct {
	text string
	err  error
}

// scriptedGenerator returns replies in order and repeats the last one.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies []reply
	prompts []domain.Prompt
}

func (g *scriptedGenerator) Name() string    { return "scripted" }
func (g *scriptedGenerator) ModelID() string { return "scripted-1" }
func (g *scriptedGenerator) Generate(_ context.Context, p domain.Prompt) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, p)
	r := g.replies[min(len(g.prompts), len(g.replies))-1]
	return r.text, r.err
}

func (g *scriptedGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func doc(path, title, text string) domain.Document {
	return domain.Document{ID: domain.DocumentID(path), SourcePath: path, Title: title, RawText: text}
}

var corpus = []domain.Document{
	doc("compressed-air.txt", "Compressed Air",
		"Compressed air leaks waste energy. Fix compressed air leaks with ultrasonic detection."),
	doc("lighting.txt", "Lighting Retrofits",
		"LED lighting uses less electricity than fluorescent tubes."),
}

func newTestService(t *testing.T, gen domain.Generator) (*RAGService, *memory.Storage) {
	t.Helper()
	ch, err := chunker.NewWindowChunker(200, 50, 0)
	require.NoError(t, err)
	emb, err := hashing.NewEmbedder(256)
	require.NoError(t, err)
	store := memory.NewStorage()
	svc := NewRAGService(ch, emb, store, gen, summarizer.NewFrequencySummarizer(), Options{
		Workers:   2,
		BatchSize: 4,
		Retrieval: retriever.Options{NumDocs: 3, MinScore: 0.3, DedupTolerance: 0.5},
		Policy:    retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	})
	require.NoError(t, svc.Init(context.Background()))
	return svc, store
}

func TestIndexReportsPerDocumentFailures(t *testing.T) {
	svc, store := newTestService(t, nil)
	docs := append([]domain.Document{doc("empty.txt", "Empty", "")}, corpus...)

	report, err := svc.Index(context.Background(), docs)
	require.NoError(t, err)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, "empty.txt", report.Failures[0].SourcePath)
	require.Len(t, report.Documents, 2)
	assert.Equal(t, "Compressed Air", report.Documents[0].Title)
	assert.NotEmpty(t, report.Documents[0].Summary)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.Chunks, n)
}

func TestIndexIsIdempotent(t *testing.T) {
	svc, store := newTestService(t, nil)
	_, err := svc.Index(context.Background(), corpus)
	require.NoError(t, err)
	first, _ := store.Count(context.Background())

	_, err = svc.Index(context.Background(), corpus)
	require.NoError(t, err)
	second, _ := store.Count(context.Background())
	assert.Equal(t, first, second)
}

func TestIndexCountsDuplicateChunks(t *testing.T) {
	svc, _ := newTestService(t, nil)
	copyDoc := doc("copy/compressed-air.txt", "Compressed Air (copy)", corpus[0].RawText)

	report, err := svc.Index(context.Background(), append(corpus, copyDoc))
	require.NoError(t, err)
	assert.Equal(t, 1, report.DuplicateChunks)
	assert.Len(t, report.Documents, 3)
}

func TestIndexStopsOnCancellation(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Index(ctx, corpus)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIngestDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "boilers.md"), []byte("# Boiler Tuning\n\nTune burners to cut flue losses.\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.bin"), []byte{0x00, 0x01}, 0o644))

	svc, _ := newTestService(t, nil)
	report, err := svc.IngestDirectory(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, report.Documents, 1)
	assert.Equal(t, "Boiler Tuning", report.Documents[0].Title)
	assert.Empty(t, report.Failures)
}

func indexed(t *testing.T, gen domain.Generator) *RAGService {
	t.Helper()
	svc, _ := newTestService(t, gen)
	_, err := svc.Index(context.Background(), corpus)
	require.NoError(t, err)
	return svc
}

func TestAskReturnsGroundedAnswer(t *testing.T) {
	gen := &scriptedGenerator{replies: []reply{{text: `{"answer":"Find leaks with ultrasonic detection.",` +
		`"citations":[{"document_title":"compressed  air"},{"document_title":"Made Up Report"}],"caveats":null}`}}}
	svc := indexed(t, gen)

	a, err := svc.AskWithEvidence(context.Background(), domain.Query{Text: "  compressed air leaks  "})
	require.NoError(t, err)

	assert.Equal(t, "Find leaks with ultrasonic detection.", a.AnswerText)
	require.Len(t, a.Citations, 1)
	assert.Equal(t, "Compressed Air", a.Citations[0].DocumentTitle)
	assert.Equal(t, a.Context.Items[0].Chunk.ID, a.Citations[0].ChunkID)
	assert.Equal(t, []string{"Compressed Air"}, a.Context.Titles())
	assert.False(t, a.Repaired)
	assert.Contains(t, gen.prompts[0].User, "Title: Compressed Air")
}

func TestAskUnrelatedQueryFindsNoResource(t *testing.T) {
	gen := &scriptedGenerator{replies: []reply{{text: `{"answer":"` + prompt.NoResourceAnswer + `",` +
		`"citations":[{"document_title":"Compressed Air"}]}`}}}
	svc := indexed(t, gen)

	a, err := svc.AskWithEvidence(context.Background(), domain.Query{Text: "quantum chromodynamics gluon"})
	require.NoError(t, err)

	assert.True(t, a.Context.Empty())
	assert.Equal(t, prompt.NoResourceAnswer, a.AnswerText)
	assert.Empty(t, a.Citations)
	assert.Contains(t, gen.prompts[0].User, "INSUFFICIENT CONTEXT")
}

func TestAskEmptyContextOverridesUngroundedAnswer(t *testing.T) {
	gen := &scriptedGenerator{replies: []reply{{text: `{"answer":"Quarks are bound by gluons via the strong force.",` +
		`"citations":[],"caveats":"General physics knowledge."}`}}}
	svc := indexed(t, gen)

	a, err := svc.AskWithEvidence(context.Background(), domain.Query{Text: "quantum chromodynamics gluon"})
	require.NoError(t, err)

	assert.True(t, a.Context.Empty())
	assert.Equal(t, prompt.NoResourceAnswer, a.AnswerText)
	assert.NotContains(t, a.AnswerText, "gluons")
	assert.Empty(t, a.Citations)
	assert.Equal(t, "General physics knowledge.", a.Caveats)
	assert.Equal(t, 1, gen.calls())
}

func TestAskRepairsInvalidReplyOnce(t *testing.T) {
	gen := &scriptedGenerator{replies: []reply{
		{text: "Sure! Fix the leaks."},
		{text: `{"answer":"Fix the leaks.","citations":[]}`},
	}}
	svc := indexed(t, gen)

	a, err := svc.AskWithEvidence(context.Background(), domain.Query{Text: "compressed air leaks"})
	require.NoError(t, err)
	assert.True(t, a.Repaired)
	assert.Equal(t, 2, gen.calls())
	assert.Contains(t, gen.prompts[1].User, "Sure! Fix the leaks.")
}

func TestAskGivesUpAfterFailedRepair(t *testing.T) {
	gen := &scriptedGenerator{replies: []reply{{text: `{"answer":""}`}}}
	svc := indexed(t, gen)

	_, err := svc.Ask(context.Background(), domain.Query{Text: "compressed air leaks"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 2, gen.calls())
	assert.Equal(t, "Unable to produce a grounded answer.", UserMessage(err))
}

func TestAskDoesNotRetryContentPolicy(t *testing.T) {
	refusal := &domain.ContentPolicyError{Provider: "scripted", Message: "I can't help with that."}
	gen := &scriptedGenerator{replies: []reply{{err: refusal}}}
	svc := indexed(t, gen)

	_, err := svc.Ask(context.Background(), domain.Query{Text: "compressed air leaks"})
	assert.ErrorIs(t, err, domain.ErrContentPolicy)
	assert.Equal(t, 1, gen.calls())
	assert.Equal(t, "I can't help with that.", UserMessage(err))
}

func TestAskRetriesTransientProviderErrors(t *testing.T) {
	gen := &scriptedGenerator{replies: []reply{
		{err: domain.NewStatusError("scripted", "generate", 503, "overloaded")},
		{text: `{"answer":"Fix the leaks."}`},
	}}
	svc := indexed(t, gen)

	a, err := svc.Ask(context.Background(), domain.Query{Text: "compressed air leaks"})
	require.NoError(t, err)
	assert.Equal(t, "Fix the leaks.", a.AnswerText)
	assert.NotNil(t, a.Citations)
	assert.Equal(t, 2, gen.calls())
}

func TestAskRejectsBadRequests(t *testing.T) {
	gen := &scriptedGenerator{replies: []reply{{text: `{"answer":"x"}`}}}
	svc := indexed(t, gen)

	_, err := svc.Ask(context.Background(), domain.Query{Text: "   "})
	assert.ErrorIs(t, err, domain.ErrEmptyQuery)

	_, err = svc.Ask(context.Background(), domain.Query{Text: "leaks", ModelID: "text-embedding-3-large"})
	assert.ErrorIs(t, err, domain.ErrConfig)
	assert.Zero(t, gen.calls())
}

func TestUserMessage(t *testing.T) {
	assert.Empty(t, UserMessage(nil))
	assert.Equal(t, "Request cancelled.", UserMessage(context.Canceled))
	assert.True(t, strings.HasPrefix(UserMessage(&domain.RetrievalError{Err: errors.New("dial tcp")}), "The document index"))
	assert.Contains(t, UserMessage(&domain.DimensionError{Expected: 384, Got: 768, Where: "query"}), "re-run indexing")
}

// revision returns the same documents with revision-specific wording, so every
// chunk ID is reused but its text and vector change.
func revision(rev int) []domain.Document {
	docs := make([]domain.Document, 8)
	for i := range docs {
		para := fmt.Sprintf("Boiler %02d revision %02d. Heat pump %02d insulation note %02d. Glazing %02d upgrade %02d. ", i, rev, i, rev, i, rev)
		docs[i] = doc(fmt.Sprintf("plant-%02d.txt", i), fmt.Sprintf("Plant %02d", i), strings.Repeat(para, 3))
	}
	return docs
}

func TestConcurrentReadersNeverSeeHalfWrittenPairs(t *testing.T) {
	ctx := context.Background()
	stores := map[string]func(t *testing.T) domain.VectorStore{
		"memory": func(*testing.T) domain.VectorStore { return memory.NewStorage() },
		"sqlite": func(t *testing.T) domain.VectorStore {
			s, err := sqlite.NewStorage(filepath.Join(t.TempDir(), "index.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			ch, err := chunker.NewWindowChunker(120, 20, 0)
			require.NoError(t, err)
			emb, err := hashing.NewEmbedder(128)
			require.NoError(t, err)
			store := open(t)
			svc := NewRAGService(ch, emb, store, nil, summarizer.NewFrequencySummarizer(), Options{
				Workers:   4,
				BatchSize: 3,
				Policy:    retry.Policy{MaxAttempts: 1},
			})
			require.NoError(t, svc.Init(ctx))
			_, err = svc.Index(ctx, revision(0))
			require.NoError(t, err)

			query, err := emb.Embed(ctx, []string{"boiler heat pump insulation glazing upgrade"})
			require.NoError(t, err)

			done := make(chan struct{})
			var readers sync.WaitGroup
			for r := 0; r < 4; r++ {
				readers.Add(1)
				go func() {
					defer readers.Done()
					last := 0
					for {
						select {
						case <-done:
							return
						default:
						}
						hits, err := store.Search(ctx, query[0], 10)
						if !assert.NoError(t, err) {
							return
						}
						for _, h := range hits {
							// the stored vector must be the embedding of the stored text
							vec, err := emb.Embed(ctx, []string{h.Chunk.Text})
							if !assert.NoError(t, err) {
								return
							}
							want, err := vecutil.Cosine(query[0], vec[0])
							if !assert.NoError(t, err) {
								return
							}
							assert.InDelta(t, want, h.Score, 1e-6, "chunk %s", h.Chunk.ID)
						}
						n, err := store.Count(ctx)
						if !assert.NoError(t, err) {
							return
						}
						assert.GreaterOrEqual(t, n, last)
						last = n
					}
				}()
			}

			for rev := 1; rev <= 4; rev++ {
				report, err := svc.Index(ctx, revision(rev))
				if !assert.NoError(t, err) || !assert.Empty(t, report.Failures) {
					break
				}
			}
			close(done)
			readers.Wait()

			n, err := svc.Count(ctx)
			require.NoError(t, err)
			hits, err := store.Search(ctx, query[0], n)
			require.NoError(t, err)
			assert.Len(t, hits, n)
			for _, h := range hits {
				assert.NotRegexp(t, `(revision|note|upgrade) 0[0-3]\.`, h.Chunk.Text, "chunk %s kept stale text", h.Chunk.ID)
			}
		})
	}
}
