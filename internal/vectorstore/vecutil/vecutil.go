// Package vecutil holds the vector math and BLOB codec shared by the
// brute-force index backends.
package vecutil

import (
	"encoding/binary"
	"fmt"
	"math"

	"energyrag/internal/domain"
)

// Cosine returns the cosine similarity of a and b. Zero vectors score 0.
// Callers must check dimensions first; mismatched lengths return a DimensionError.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, &domain.DimensionError{Expected: len(a), Got: len(b), Where: "cosine"}
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// EncodeEmbedding encodes vec as little-endian IEEE 754 float32 values
// without a length prefix.
func EncodeEmbedding(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

// DecodeEmbedding decodes a BLOB produced by EncodeEmbedding.
func DecodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d (not multiple of 4)", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}

// TopK keeps the k best hits in deterministic order.
type TopK struct {
	k     int
	items []domain.ScoredChunk
}

func NewTopK(k int) *TopK { return &TopK{k: k} }

// Push offers a candidate.
func (t *TopK) Push(item domain.ScoredChunk) {
	t.items = append(t.items, item)
	// amortize sorting: trim once the buffer doubles
	if len(t.items) >= 2*t.k+64 {
		t.trim()
	}
}

// Result returns the hits sorted by descending score.
func (t *TopK) Result() []domain.ScoredChunk {
	t.trim()
	return t.items
}

func (t *TopK) trim() {
	domain.SortScored(t.items)
	if len(t.items) > t.k {
		t.items = t.items[:t.k]
	}
}
