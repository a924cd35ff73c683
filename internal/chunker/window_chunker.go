package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"energyrag/internal/domain"
)

// WindowChunker splits text into fixed-size rune windows with an exact overlap.
// Window ends snap back to a sentence or word boundary when one lies within
// the tolerance, otherwise the window is cut hard at its full size.
type WindowChunker struct {
	size      int
	overlap   int
	tolerance int
}

// NewWindowChunker validates the window geometry. A tolerance of zero or less
// selects size/10.
func NewWindowChunker(size, overlap, tolerance int) (*WindowChunker, error) {
	if size <= 0 {
		return nil, &domain.ConfigError{Field: "chunk_size", Reason: fmt.Sprintf("must be positive, got %d", size)}
	}
	if overlap <= 0 {
		return nil, &domain.ConfigError{Field: "chunk_overlap", Reason: fmt.Sprintf("must be positive, got %d", overlap)}
	}
	if overlap >= size {
		return nil, &domain.ConfigError{Field: "chunk_overlap", Reason: fmt.Sprintf("must be smaller than chunk_size (%d >= %d)", overlap, size)}
	}
	if tolerance <= 0 {
		tolerance = size / 10
	}
	// every window must end past the overlap of the previous one
	if maxTol := size - overlap - 1; tolerance > maxTol {
		tolerance = maxTol
	}
	return &WindowChunker{size: size, overlap: overlap, tolerance: tolerance}, nil
}

// Chunk is a convenience wrapper using the default boundary tolerance.
func Chunk(document domain.Document, size, overlap int) ([]domain.Chunk, error) {
	c, err := NewWindowChunker(size, overlap, 0)
	if err != nil {
		return nil, err
	}
	return c.Chunk(document)
}

func (c *WindowChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	if strings.TrimSpace(document.RawText) == "" {
		return nil, nil
	}
	runes := []rune(document.RawText)
	n := len(runes)

	var chunks []domain.Chunk
	start := 0
	for seq := 0; ; seq++ {
		end := start + c.size
		if end >= n {
			end = n
		} else {
			end = c.snap(runes, end)
		}
		chunks = append(chunks, domain.Chunk{
			ID:            domain.ChunkID(document.ID, seq),
			DocumentID:    document.ID,
			DocumentTitle: document.Title,
			SourcePath:    document.SourcePath,
			Text:          string(runes[start:end]),
			StartOffset:   start,
			EndOffset:     end,
			SequenceIndex: seq,
		})
		if end == n {
			return chunks, nil
		}
		start = end - c.overlap
	}
}

// snap moves end back to the closest sentence boundary, then the closest
// word boundary, within the tolerance.
func (c *WindowChunker) snap(runes []rune, end int) int {
	floor := end - c.tolerance
	for p := end; p >= floor; p-- {
		if sentenceBoundary(runes, p) {
			return p
		}
	}
	for p := end; p >= floor; p-- {
		if wordBoundary(runes, p) {
			return p
		}
	}
	return end
}

func sentenceBoundary(runes []rune, p int) bool {
	if p <= 0 || p >= len(runes) {
		return false
	}
	prev := runes[p-1]
	if prev == '\n' {
		return true
	}
	return p >= 2 && unicode.IsSpace(prev) && strings.ContainsRune(".!?", runes[p-2])
}

func wordBoundary(runes []rune, p int) bool {
	if p <= 0 || p >= len(runes) {
		return false
	}
	return unicode.IsSpace(runes[p-1]) || unicode.IsSpace(runes[p])
}
