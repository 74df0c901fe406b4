// Package ingest turns raw documents into stored, retrievable chunks.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/tessera-ai/tessera/rag"
	"github.com/tessera-ai/tessera/rag/chunking"
	"github.com/tessera-ai/tessera/rag/retrieval"
)

// Ingestor chunks a document, embeds each chunk, derives its sparse term
// weights and writes the batch to the store. One document is one atomic
// ingestion: a mid-batch failure leaves nothing behind.
type Ingestor struct {
	store    rag.Store
	embedder rag.Embedder
	chunker  chunking.Chunker
	strategy rag.ChunkStrategy
	logger   *slog.Logger
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithChunker replaces the default chunker and records the strategy tag the
// resulting chunks carry.
func WithChunker(c chunking.Chunker, strategy rag.ChunkStrategy) Option {
	return func(in *Ingestor) {
		in.chunker = c
		in.strategy = strategy
	}
}

// WithLogger sets the ingestor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(in *Ingestor) {
		in.logger = logger
	}
}

// NewIngestor creates an ingestor writing to the store. The default chunker
// preserves paragraph structure with a 1000-rune budget.
func NewIngestor(store rag.Store, embedder rag.Embedder, opts ...Option) *Ingestor {
	in := &Ingestor{
		store:    store,
		embedder: embedder,
		chunker:  chunking.NewStructuredChunker(1000),
		strategy: rag.StrategyStructured,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Ingest chunks and stores the document, returning the IDs of the chunks it
// created in document order. An empty documentID gets a generated one; blank
// content is a no-op.
func (in *Ingestor) Ingest(ctx context.Context, documentID, content string, metadata map[string]any) ([]string, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	if documentID == "" {
		documentID = uuid.NewString()
	}

	pieces := in.chunker.Split(content)
	if len(pieces) == 0 {
		return nil, nil
	}

	chunks := make([]rag.Chunk, len(pieces))
	for i, piece := range pieces {
		embedding, err := in.embedder.Embed(ctx, piece)
		if err != nil {
			return nil, fmt.Errorf("embed chunk %d of document %s: %w", i, documentID, err)
		}
		chunks[i] = rag.Chunk{
			ID:         uuid.NewString(),
			DocumentID: documentID,
			Ordinal:    i,
			Content:    piece,
			Strategy:   in.strategy,
			Embedding:  embedding,
			Terms:      retrieval.TermWeights(piece),
			Metadata:   metadata,
		}
	}

	if err := in.store.Add(ctx, chunks); err != nil {
		return nil, fmt.Errorf("store document %s: %w", documentID, err)
	}

	in.logger.Info("document ingested",
		"document", documentID,
		"chunks", len(chunks),
		"strategy", in.strategy,
	)

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	return ids, nil
}

// Delete removes every chunk of the document, reporting how many were removed.
func (in *Ingestor) Delete(ctx context.Context, documentID string) (int, error) {
	return in.store.DeleteDocument(ctx, documentID)
}
