package domain

import (
	"sort"
	"strconv"

	"github.com/google/uuid"
)

// namespace scopes every generated ID to this application.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("energyrag"))

// DocumentID derives a stable ID from the document's source path.
func DocumentID(sourcePath string) string {
	return uuid.NewSHA1(namespace, []byte(sourcePath)).String()
}

// ChunkID derives a stable ID from the owning document and chunk position.
// The result is a UUID so it can be used directly as a point ID by index backends.
func ChunkID(documentID string, sequence int) string {
	parent, err := uuid.Parse(documentID)
	if err != nil {
		parent = uuid.NewSHA1(namespace, []byte(documentID))
	}
	return uuid.NewSHA1(parent, []byte(strconv.Itoa(sequence))).String()
}

// SortScored orders hits by descending score. Ties fall back to document,
// then sequence index, then chunk ID so ordering is fully deterministic.
func SortScored(items []ScoredChunk) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Chunk.DocumentID != b.Chunk.DocumentID {
			return a.Chunk.DocumentID < b.Chunk.DocumentID
		}
		if a.Chunk.SequenceIndex != b.Chunk.SequenceIndex {
			return a.Chunk.SequenceIndex < b.Chunk.SequenceIndex
		}
		return a.Chunk.ID < b.Chunk.ID
	})
}
