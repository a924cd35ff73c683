// Package sqlite persists chunk vectors in a single SQLite file and answers
// searches with a brute-force cosine scan.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	_ "modernc.org/sqlite"

	"energyrag/internal/domain"
	"energyrag/internal/vectorstore/vecutil"
)

const schema = `
CREATE TABLE IF NOT EXISTS meta (
  key   TEXT PRIMARY KEY,
  value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS chunks (
  id             TEXT PRIMARY KEY,
  document_id    TEXT NOT NULL,
  document_title TEXT NOT NULL,
  source_path    TEXT NOT NULL,
  text           TEXT NOT NULL,
  start_offset   INTEGER NOT NULL,
  end_offset     INTEGER NOT NULL,
  sequence_index INTEGER NOT NULL,
  embedding      BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id);`

const upsertSQL = `
INSERT INTO chunks(id, document_id, document_title, source_path, text, start_offset, end_offset, sequence_index, embedding)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  document_id = excluded.document_id,
  document_title = excluded.document_title,
  source_path = excluded.source_path,
  text = excluded.text,
  start_offset = excluded.start_offset,
  end_offset = excluded.end_offset,
  sequence_index = excluded.sequence_index,
  embedding = excluded.embedding`

// Storage is a SQLite-backed vector store.
type Storage struct {
	db        *sql.DB
	dimension int
}

// NewStorage opens (or creates) the database at path.
func NewStorage(path string) (*Storage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// one writer at a time; transactions serialize per-chunk writes
	db.SetMaxOpenConns(1)
	return &Storage{db: db}, nil
}

// Init creates the schema and records the dimensionality on first use.
// Reopening an index built for another dimensionality fails.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return &domain.ConfigError{Field: "dimensions", Reason: fmt.Sprintf("invalid dimension %d", dimension)}
	}
	if _, err := s.db.ExecContext(ctx, `PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		return fmt.Errorf("sqlite pragma: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite schema: %w", err)
	}
	var stored string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'dimension'`).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES ('dimension', ?)`, strconv.Itoa(dimension)); err != nil {
			return fmt.Errorf("sqlite meta: %w", err)
		}
	case err != nil:
		return fmt.Errorf("sqlite meta: %w", err)
	default:
		existing, convErr := strconv.Atoi(stored)
		if convErr != nil {
			return fmt.Errorf("sqlite meta: bad dimension %q", stored)
		}
		if existing != dimension {
			return &domain.DimensionError{Expected: existing, Got: dimension, Where: "sqlite index"}
		}
	}
	s.dimension = dimension
	return nil
}

// Upsert writes all pairs in one transaction.
func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}
	for _, v := range vectors {
		if len(v) != s.dimension {
			return &domain.DimensionError{Expected: s.dimension, Got: len(v), Where: "sqlite upsert"}
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.DocumentID, c.DocumentTitle, c.SourcePath, c.Text,
			c.StartOffset, c.EndOffset, c.SequenceIndex,
			vecutil.EncodeEmbedding(vectors[i]),
		); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.ScoredChunk, error) {
	if len(vector) != s.dimension {
		return nil, &domain.DimensionError{Expected: s.dimension, Got: len(vector), Where: "sqlite search"}
	}
	if topK <= 0 {
		topK = 5
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, document_id, document_title, source_path, text, start_offset, end_offset, sequence_index, embedding
FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("sqlite search: %w", err)
	}
	defer rows.Close()

	top := vecutil.NewTopK(topK)
	for rows.Next() {
		var (
			c    domain.Chunk
			blob []byte
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.DocumentTitle, &c.SourcePath, &c.Text,
			&c.StartOffset, &c.EndOffset, &c.SequenceIndex, &blob); err != nil {
			return nil, fmt.Errorf("sqlite scan: %w", err)
		}
		vec, err := vecutil.DecodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", c.ID, err)
		}
		score, err := vecutil.Cosine(vector, vec)
		if err != nil {
			return nil, err
		}
		top.Push(domain.ScoredChunk{Chunk: c, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite rows: %w", err)
	}
	return top.Result(), nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite count: %w", err)
	}
	return n, nil
}

// Clear removes every chunk and forgets the recorded dimensionality.
// It works on a fresh file and on one built for another dimensionality.
func (s *Storage) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite schema: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks; DELETE FROM meta WHERE key = 'dimension';`); err != nil {
		return fmt.Errorf("sqlite clear: %w", err)
	}
	s.dimension = 0
	return nil
}

func (s *Storage) Close() error { return s.db.Close() }
