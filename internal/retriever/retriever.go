// Package retriever turns a query into a ranked, deduplicated context.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"energyrag/internal/domain"
	"energyrag/internal/logger"
	"energyrag/internal/retry"
)

// Options tunes retrieval. NumDocs is the default when a call passes zero.
type Options struct {
	NumDocs        int
	ChunksPerDoc   int
	MinScore       float64
	DedupTolerance float64
	QueryPrefix    string
	Policy         retry.Policy
}

// Retriever embeds queries with the indexing model and searches the store.
type Retriever struct {
	embedder domain.Embedder
	store    domain.VectorStore
	opts     Options
}

func New(embedder domain.Embedder, store domain.VectorStore, opts Options) *Retriever {
	if opts.DedupTolerance <= 0 {
		opts.DedupTolerance = 0.5
	}
	return &Retriever{embedder: embedder, store: store, opts: opts}
}

// Retrieve returns at most numDocs chunks scoring at least MinScore, with
// near-duplicates removed. Removed hits are not replaced by lower-ranked
// ones. An empty context is a valid result.
func (r *Retriever) Retrieve(ctx context.Context, queryText string, numDocs int) (domain.RetrievedContext, error) {
	query := strings.TrimSpace(queryText)
	out := domain.RetrievedContext{Query: query}
	if query == "" {
		return out, domain.ErrEmptyQuery
	}
	if numDocs <= 0 {
		numDocs = r.opts.NumDocs
	}
	if numDocs <= 0 {
		return out, &domain.ConfigError{Field: "retrieval.num_docs", Reason: "must be a positive integer"}
	}

	vec, err := r.embedQuery(ctx, query)
	if err != nil {
		return out, err
	}

	hits, err := retry.DoValue(ctx, r.opts.Policy, "vector search", func(ctx context.Context) ([]domain.ScoredChunk, error) {
		hits, err := r.store.Search(ctx, vec, numDocs)
		if err != nil && !errors.Is(err, domain.ErrDimension) && ctx.Err() == nil {
			return nil, &domain.RetrievalError{Err: err}
		}
		return hits, err
	})
	if err != nil {
		return out, err
	}

	kept := make([]domain.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		if h.Score >= r.opts.MinScore {
			kept = append(kept, h)
		}
	}
	domain.SortScored(kept)
	out.Items = r.dedup(kept, numDocs)
	logger.Debug("retrieved %d of %d hits for %q (min score %.2f)", len(out.Items), len(hits), query, r.opts.MinScore)
	return out, nil
}

func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := retry.DoValue(ctx, r.opts.Policy, "embed query", func(ctx context.Context) ([][]float32, error) {
		return r.embedder.Embed(ctx, []string{r.opts.QueryPrefix + query})
	})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, &domain.ProviderError{Provider: r.embedder.Name(), Op: "embed query", Err: fmt.Errorf("got %d vectors for 1 input", len(vecs))}
	}
	if got, want := len(vecs[0]), r.embedder.Dimensions(); got != want {
		return nil, &domain.DimensionError{Expected: want, Got: got, Where: "query embedding"}
	}
	return vecs[0], nil
}

// dedup walks hits in rank order and drops any that repeat the text of an
// earlier hit, overlap an earlier hit of the same document by at least
// DedupTolerance of the shorter span, or exceed ChunksPerDoc.
func (r *Retriever) dedup(hits []domain.ScoredChunk, limit int) []domain.ScoredChunk {
	var (
		out    []domain.ScoredChunk
		texts  = make(map[string]struct{})
		perDoc = make(map[string]int)
	)
	for _, h := range hits {
		if len(out) == limit {
			break
		}
		norm := strings.Join(strings.Fields(h.Chunk.Text), " ")
		if _, dup := texts[norm]; dup {
			continue
		}
		if r.opts.ChunksPerDoc > 0 && perDoc[h.Chunk.DocumentID] >= r.opts.ChunksPerDoc {
			continue
		}
		duplicate := false
		for _, k := range out {
			if k.Chunk.DocumentID == h.Chunk.DocumentID && SpanOverlap(k.Chunk, h.Chunk) >= r.opts.DedupTolerance {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		texts[norm] = struct{}{}
		perDoc[h.Chunk.DocumentID]++
		out = append(out, h)
	}
	return out
}

// SpanOverlap returns the shared length of two spans as a fraction of the
// shorter one.
func SpanOverlap(a, b domain.Chunk) float64 {
	lo := max(a.StartOffset, b.StartOffset)
	hi := min(a.EndOffset, b.EndOffset)
	if hi <= lo {
		return 0
	}
	shorter := min(a.Len(), b.Len())
	if shorter <= 0 {
		return 1
	}
	return float64(hi-lo) / float64(shorter)
}
