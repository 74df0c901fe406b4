// Package tessera re-exports the core retrieval types so integrations can
// depend on a single import path.
package tessera

import "github.com/tessera-ai/tessera/rag"

// Chunk is the immutable unit of retrievable text.
type Chunk = rag.Chunk

// RankedResult is a chunk reference scored by one retrieval stage.
type RankedResult = rag.RankedResult

// Stage identifies which pipeline component produced a score.
type Stage = rag.Stage

// ChunkStrategy tags how a chunk was cut out of its source document.
type ChunkStrategy = rag.ChunkStrategy

// DimensionError rejects an ingestion batch with mismatched embeddings.
type DimensionError = rag.DimensionError

// GenerateError wraps a failed or exhausted generative call.
type GenerateError = rag.GenerateError

// PipelineError carries the stage at which a retrieval request failed.
type PipelineError = rag.PipelineError

// Snapshot is an immutable view of the store contents.
type Snapshot = rag.Snapshot

// Store owns chunk lifetime.
type Store = rag.Store

// Embedder turns text into a fixed-length vector.
type Embedder = rag.Embedder

// Generator is the generative language collaborator.
type Generator = rag.Generator

// DenseSearcher retrieves chunks by embedding similarity.
type DenseSearcher = rag.DenseSearcher

// SparseSearcher retrieves chunks by lexical relevance.
type SparseSearcher = rag.SparseSearcher

// QueryOptimizer expands a user query into hypothetical answer documents.
type QueryOptimizer = rag.QueryOptimizer

// Reranker reorders a candidate set by scored relevance.
type Reranker = rag.Reranker

const (
	StageDense    = rag.StageDense
	StageSparse   = rag.StageSparse
	StageFused    = rag.StageFused
	StageReranked = rag.StageReranked

	StrategyNaive      = rag.StrategyNaive
	StrategyStructured = rag.StrategyStructured
)

var (
	// ErrNotFound is returned when a chunk ID is not present in the store.
	ErrNotFound = rag.ErrNotFound
	// ErrEmptyStore is returned by retrievers when no chunks are indexed.
	ErrEmptyStore = rag.ErrEmptyStore
)
