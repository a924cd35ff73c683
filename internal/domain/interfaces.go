package domain

import "context"

// Document is a single source file loaded from the resource directory.
// It is not modified after loading.
type Document struct {
	ID         string
	SourcePath string
	Title      string
	RawText    string
	Metadata   map[string]string
}

// Chunk is a bounded window of a document's normalized text.
// Offsets are rune offsets into Document.RawText.
type Chunk struct {
	ID            string `json:"id"`
	DocumentID    string `json:"document_id"`
	DocumentTitle string `json:"document_title"`
	SourcePath    string `json:"source_path"`
	Text          string `json:"text"`
	StartOffset   int    `json:"start_offset"`
	EndOffset     int    `json:"end_offset"`
	SequenceIndex int    `json:"sequence_index"`
}

// Len returns the span length of the chunk.
func (c Chunk) Len() int { return c.EndOffset - c.StartOffset }

// EmbeddingVector is the embedding of one chunk under one model.
type EmbeddingVector struct {
	ChunkID        string
	ModelID        string
	Values         []float32
	Dimensionality int
}

// ScoredChunk represents a matching chunk with a similarity score.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// RetrievedContext is the ranked set of chunks selected for one query.
type RetrievedContext struct {
	Query string        `json:"query"`
	Items []ScoredChunk `json:"items"`
}

// Empty reports whether nothing relevant was retrieved.
func (rc RetrievedContext) Empty() bool { return len(rc.Items) == 0 }

// Titles returns the distinct document titles in ranking order.
func (rc RetrievedContext) Titles() []string {
	seen := make(map[string]struct{}, len(rc.Items))
	var out []string
	for _, it := range rc.Items {
		if _, ok := seen[it.Chunk.DocumentTitle]; ok {
			continue
		}
		seen[it.Chunk.DocumentTitle] = struct{}{}
		out = append(out, it.Chunk.DocumentTitle)
	}
	return out
}

// Query is one user request.
type Query struct {
	Text    string
	NumDocs int
	ModelID string
}

// Citation points at a retrieved chunk of a named document.
type Citation struct {
	DocumentTitle string `json:"document_title"`
	ChunkID       string `json:"chunk_id,omitempty"`
}

// StructuredAnswer is the validated result returned to the caller.
type StructuredAnswer struct {
	AnswerText string     `json:"answer"`
	Citations  []Citation `json:"citations"`
	Caveats    string     `json:"caveats,omitempty"`
}

// Prompt is an assembled generation request.
type Prompt struct {
	System string
	User   string
	// Sources are the snippets that made it into User, in ranking order.
	Sources []ScoredChunk
	// Dropped counts snippets removed to stay within the budget.
	Dropped int
}

// DocumentReport summarizes one successfully indexed document.
type DocumentReport struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	SourcePath string `json:"source_path"`
	Chunks     int    `json:"chunks"`
	Summary    string `json:"summary,omitempty"`
}

// DocumentFailure records a document that could not be indexed.
type DocumentFailure struct {
	SourcePath string `json:"source_path"`
	Error      string `json:"error"`
}

// IndexReport is the outcome of an indexing run.
type IndexReport struct {
	Documents       []DocumentReport  `json:"documents"`
	Failures        []DocumentFailure `json:"failures"`
	Chunks          int               `json:"chunks"`
	DuplicateChunks int               `json:"duplicate_chunks"`
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Embedder converts text into fixed-dimensionality vectors.
// Embed returns one vector per input text, in input order.
type Embedder interface {
	Name() string
	ModelID() string
	Dimensions() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore persists chunk vectors and supports similarity search.
type VectorStore interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []Chunk, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, topK int) ([]ScoredChunk, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Close() error
}

// Generator sends an assembled prompt to one LLM backend and returns its raw text reply.
type Generator interface {
	Name() string
	ModelID() string
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
