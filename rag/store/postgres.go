package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pgvector/pgvector-go"

	"github.com/tessera-ai/tessera/rag"
)

// PostgresStore persists chunks in Postgres with a pgvector embedding column
// and a generated tsvector for lexical search. Unlike MemoryStore it can also
// search natively in SQL, so large corpora never have to be materialized as a
// snapshot; Dense and Sparse expose those paths as searcher values.
type PostgresStore struct {
	db     *sql.DB
	dims   int
	logger *slog.Logger
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithPostgresLogger sets the store logger.
func WithPostgresLogger(logger *slog.Logger) PostgresOption {
	return func(s *PostgresStore) {
		s.logger = logger
	}
}

// NewPostgresStore initializes the chunks table for the given embedding
// dimensionality, creating the pgvector extension if needed.
func NewPostgresStore(ctx context.Context, db *sql.DB, dims int, opts ...PostgresOption) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("store: nil database connection")
	}
	if dims <= 0 {
		return nil, fmt.Errorf("store: invalid embedding dimensionality %d", dims)
	}
	s := &PostgresStore{db: db, dims: dims, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return nil, fmt.Errorf("create vector extension: %w", err)
	}
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS tessera_chunks (
		id text PRIMARY KEY,
		document_id text NOT NULL,
		ordinal integer NOT NULL,
		content text NOT NULL,
		strategy text NOT NULL DEFAULT 'naive',
		embedding vector(%d) NOT NULL,
		terms jsonb NOT NULL DEFAULT '{}',
		metadata jsonb NOT NULL DEFAULT '{}',
		content_tsv tsvector GENERATED ALWAYS AS (to_tsvector('simple', content)) STORED
	)`, dims)
	if _, err := db.ExecContext(ctx, create); err != nil {
		return nil, fmt.Errorf("create chunks table: %w", err)
	}
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS tessera_chunks_document_idx ON tessera_chunks (document_id)`,
		`CREATE INDEX IF NOT EXISTS tessera_chunks_tsv_idx ON tessera_chunks USING GIN (content_tsv)`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	}

	s.logger.Info("initialized postgres chunk store", "dims", dims)
	return s, nil
}

// Add inserts or replaces the provided chunks in one transaction.
func (s *PostgresStore) Add(ctx context.Context, chunks []rag.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for i := range chunks {
		if len(chunks[i].Embedding) != s.dims {
			return &rag.DimensionError{Want: s.dims, Got: len(chunks[i].Embedding)}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO tessera_chunks
		(id, document_id, ordinal, content, strategy, embedding, terms, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			ordinal = EXCLUDED.ordinal,
			content = EXCLUDED.content,
			strategy = EXCLUDED.strategy,
			embedding = EXCLUDED.embedding,
			terms = EXCLUDED.terms,
			metadata = EXCLUDED.metadata`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		terms, err := json.Marshal(chunk.Terms)
		if err != nil {
			return fmt.Errorf("marshal terms: %w", err)
		}
		metadata, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		_, err = stmt.ExecContext(ctx,
			chunk.ID,
			chunk.DocumentID,
			chunk.Ordinal,
			chunk.Content,
			string(chunk.Strategy),
			pgvector.NewVector(toFloat32(chunk.Embedding)),
			terms,
			metadata,
		)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", chunk.ID, err)
		}
	}
	return tx.Commit()
}

// Get returns the chunk with the given ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (rag.Chunk, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, document_id, ordinal, content, strategy, embedding, terms, metadata
		FROM tessera_chunks WHERE id = $1`, id)
	chunk, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rag.Chunk{}, fmt.Errorf("%q: %w", id, rag.ErrNotFound)
	}
	return chunk, err
}

// DeleteDocument removes every chunk of the document and reports the count.
func (s *PostgresStore) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tessera_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete document %s: %w", documentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Snapshot materializes the full table as an immutable view. Intended for
// moderate corpora; prefer Dense/Sparse for SQL-native search.
func (s *PostgresStore) Snapshot(ctx context.Context) (rag.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, document_id, ordinal, content, strategy, embedding, terms, metadata
		FROM tessera_chunks ORDER BY document_id, ordinal`)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	defer rows.Close()

	var chunks []rag.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	dims := 0
	if len(chunks) > 0 {
		dims = s.dims
	}
	return newSnapshot(chunks, dims), nil
}

// Dense returns a searcher running cosine similarity in SQL.
func (s *PostgresStore) Dense() rag.DenseSearcher { return pgDense{s} }

// Sparse returns a searcher running tsvector ranking in SQL.
func (s *PostgresStore) Sparse() rag.SparseSearcher { return pgSparse{s} }

type pgDense struct{ s *PostgresStore }

func (d pgDense) Search(ctx context.Context, vector []float64, k int) ([]rag.RankedResult, error) {
	if len(vector) != d.s.dims {
		return nil, &rag.DimensionError{Want: d.s.dims, Got: len(vector)}
	}
	if empty, err := d.s.empty(ctx); err != nil {
		return nil, err
	} else if empty {
		return nil, rag.ErrEmptyStore
	}
	rows, err := d.s.db.QueryContext(ctx, `SELECT id, 1 - (embedding <=> $1) AS similarity
		FROM tessera_chunks ORDER BY embedding <=> $1, id LIMIT $2`,
		pgvector.NewVector(toFloat32(vector)), k)
	if err != nil {
		return nil, fmt.Errorf("dense search: %w", err)
	}
	return collectResults(rows, rag.StageDense)
}

type pgSparse struct{ s *PostgresStore }

func (p pgSparse) Search(ctx context.Context, query string, k int) ([]rag.RankedResult, error) {
	if empty, err := p.s.empty(ctx); err != nil {
		return nil, err
	} else if empty {
		return nil, rag.ErrEmptyStore
	}
	rows, err := p.s.db.QueryContext(ctx, `SELECT id, ts_rank(content_tsv, plainto_tsquery('simple', $1)) AS score
		FROM tessera_chunks
		WHERE content_tsv @@ plainto_tsquery('simple', $1)
		ORDER BY score DESC, id LIMIT $2`, query, k)
	if err != nil {
		return nil, fmt.Errorf("sparse search: %w", err)
	}
	return collectResults(rows, rag.StageSparse)
}

func (s *PostgresStore) empty(ctx context.Context) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM tessera_chunks)`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check store: %w", err)
	}
	return !exists, nil
}

func collectResults(rows *sql.Rows, stage rag.Stage) ([]rag.RankedResult, error) {
	defer rows.Close()
	var results []rag.RankedResult
	for rows.Next() {
		var r rag.RankedResult
		if err := rows.Scan(&r.ChunkID, &r.Score); err != nil {
			return nil, err
		}
		r.Stage = stage
		results = append(results, r)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (rag.Chunk, error) {
	var (
		chunk     rag.Chunk
		strategy  string
		embedding pgvector.Vector
		terms     []byte
		metadata  []byte
	)
	err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Ordinal, &chunk.Content, &strategy, &embedding, &terms, &metadata)
	if err != nil {
		return rag.Chunk{}, err
	}
	chunk.Strategy = rag.ChunkStrategy(strategy)
	chunk.Embedding = toFloat64(embedding.Slice())
	if err := json.Unmarshal(terms, &chunk.Terms); err != nil {
		return rag.Chunk{}, fmt.Errorf("unmarshal terms: %w", err)
	}
	if err := json.Unmarshal(metadata, &chunk.Metadata); err != nil {
		return rag.Chunk{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return chunk, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
