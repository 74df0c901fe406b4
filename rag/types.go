package rag

import (
	"context"
	"iter"
)

// Stage identifies which pipeline component produced a score.
type Stage string

const (
	StageDense    Stage = "dense"
	StageSparse   Stage = "sparse"
	StageFused    Stage = "fused"
	StageReranked Stage = "reranked"
)

// ChunkStrategy tags how a chunk was cut out of its source document.
type ChunkStrategy string

const (
	StrategyNaive      ChunkStrategy = "naive"
	StrategyStructured ChunkStrategy = "structured"
)

// Chunk is the immutable unit of retrievable text. Chunks are created at
// ingestion time and never mutated afterwards; they are removed only when
// their source document is deleted.
type Chunk struct {
	ID         string
	DocumentID string
	// Ordinal is the chunk's position within its source document.
	Ordinal  int
	Content  string
	Strategy ChunkStrategy
	// Embedding is the dense vector representation. All chunks in a store
	// share one dimensionality.
	Embedding []float64
	// Terms maps token to weight for sparse retrieval. Populated at
	// ingestion with the same tokenizer used at query time.
	Terms    map[string]float64
	Metadata map[string]any
}

// RankedResult is a chunk reference scored by one retrieval stage.
// Ordering is by descending score.
type RankedResult struct {
	ChunkID string
	Score   float64
	Stage   Stage
}

// Snapshot is an immutable view of the store contents. Reads against a
// snapshot never observe concurrent ingestion.
type Snapshot interface {
	Len() int
	// Dims is the embedding dimensionality, 0 while the snapshot is empty.
	Dims() int
	Get(id string) (Chunk, bool)
	// All iterates over every chunk. The sequence is finite and restartable.
	All() iter.Seq[Chunk]
}

// Store owns chunk lifetime: ingestion adds chunks, document deletion removes
// them. Writes are exclusive and never visible to snapshots taken earlier.
type Store interface {
	Add(ctx context.Context, chunks []Chunk) error
	Get(ctx context.Context, id string) (Chunk, error)
	// DeleteDocument removes every chunk of the document and reports how
	// many were removed.
	DeleteDocument(ctx context.Context, documentID string) (int, error)
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Embedder turns text into a fixed-length vector. Chunk indexing and query
// vectorization must go through the same embedder to keep similarity
// meaningful.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Generator is the generative language collaborator used by query expansion
// and rerank scoring.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// DenseSearcher retrieves chunks by embedding similarity.
type DenseSearcher interface {
	Search(ctx context.Context, vector []float64, k int) ([]RankedResult, error)
}

// SparseSearcher retrieves chunks by lexical relevance to the query text.
type SparseSearcher interface {
	Search(ctx context.Context, query string, k int) ([]RankedResult, error)
}

// QueryOptimizer expands a user query into hypothetical answer documents used
// as additional retrieval queries. An empty result means the optimizer
// degraded and the caller should fall back to the raw query.
type QueryOptimizer interface {
	Expand(ctx context.Context, query string, n int) ([]string, error)
}

// Reranker reorders a candidate set by scored relevance to the original
// query, returning at most topK results drawn from the candidates.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []Chunk, topK int) ([]RankedResult, error)
}
