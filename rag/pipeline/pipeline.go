// Package pipeline sequences query optimization, hybrid retrieval, rank
// fusion and reranking into one cancellable retrieval request.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tessera-ai/tessera/rag"
	"github.com/tessera-ai/tessera/rag/retrieval"
)

// Status is the stage a retrieval request has reached.
type Status string

const (
	StatusReceived  Status = "received"
	StatusOptimized Status = "optimized"
	StatusRetrieved Status = "retrieved"
	StatusFused     Status = "fused"
	StatusReranked  Status = "reranked"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
)

// ScoredChunk pairs a stored chunk with its final score.
type ScoredChunk struct {
	Chunk rag.Chunk
	Score float64
	Stage rag.Stage
}

// Result is the outcome of one retrieval request. Degraded lists the
// components that fell back to reduced behavior; a degraded result is still
// a complete, best-effort ranking.
type Result struct {
	Query         string
	Status        Status
	Chunks        []ScoredChunk
	Hypotheticals []string
	Degraded      []string
	Elapsed       time.Duration
}

// Orchestrator runs the retrieval state machine:
//
//	received → optimized → retrieved → fused → reranked → complete
//
// with failed reachable from any stage. Every request reads one immutable
// store snapshot, so concurrent ingestion never bleeds into a running query.
type Orchestrator struct {
	store     rag.Store
	embedder  rag.Embedder
	optimizer rag.QueryOptimizer
	reranker  rag.Reranker
	dense     rag.DenseSearcher
	sparse    rag.SparseSearcher
	strategy  Strategy
	cfg       Config
	logger    *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithOptimizer sets the HyDE query optimizer. Without one the optimize
// stage is a pass-through.
func WithOptimizer(opt rag.QueryOptimizer) Option {
	return func(o *Orchestrator) {
		o.optimizer = opt
	}
}

// WithReranker sets the reranker. Without one the pipeline returns fused
// order directly.
func WithReranker(r rag.Reranker) Option {
	return func(o *Orchestrator) {
		o.reranker = r
	}
}

// WithSearchers replaces the default per-snapshot indexes with externally
// backed searchers, such as a vector database doing its own similarity and
// text search.
func WithSearchers(dense rag.DenseSearcher, sparse rag.SparseSearcher) Option {
	return func(o *Orchestrator) {
		o.dense = dense
		o.sparse = sparse
	}
}

// WithStrategy sets the per-query config policy.
func WithStrategy(s Strategy) Option {
	return func(o *Orchestrator) {
		o.strategy = s
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// NewOrchestrator creates a pipeline over the store and embedder.
func NewOrchestrator(store rag.Store, embedder rag.Embedder, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		embedder: embedder,
		cfg:      cfg.normalized(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.strategy == nil {
		o.strategy = IdentityStrategy(o.cfg)
	}
	return o
}

// Retrieve runs the full pipeline for one query. On failure it returns a
// PipelineError naming the stage that broke; no partial result accompanies
// an error. Degraded sub-components (HyDE, rerank) do not fail the request.
func (o *Orchestrator) Retrieve(ctx context.Context, query string) (*Result, error) {
	started := time.Now()
	cfg := o.strategy(query).normalized()
	res := &Result{Query: query, Status: StatusReceived}

	fail := func(stage Status, err error) (*Result, error) {
		o.logger.Error("retrieval failed", "stage", string(stage), "error", err)
		return nil, &rag.PipelineError{Stage: string(stage), Err: err}
	}

	// received → optimized
	if err := ctx.Err(); err != nil {
		return fail(StatusReceived, err)
	}
	if cfg.HyDEEnabled && o.optimizer != nil {
		hyps, err := o.optimizer.Expand(ctx, query, cfg.HyDENumHypotheticalDocs)
		if err != nil {
			if ctx.Err() != nil {
				return fail(StatusOptimized, err)
			}
			res.Degraded = append(res.Degraded, "hyde")
		} else if len(hyps) == 0 {
			res.Degraded = append(res.Degraded, "hyde")
		}
		res.Hypotheticals = hyps
	}
	res.Status = StatusOptimized

	// optimized → retrieved
	queryVec, err := o.embedder.Embed(ctx, query)
	if err != nil {
		return fail(StatusOptimized, fmt.Errorf("embed query: %w", err))
	}
	vectors := [][]float64{queryVec}
	for _, hyp := range res.Hypotheticals {
		vec, err := o.embedder.Embed(ctx, hyp)
		if err != nil {
			return fail(StatusOptimized, fmt.Errorf("embed hypothetical: %w", err))
		}
		vectors = append(vectors, vec)
	}

	snap, err := o.store.Snapshot(ctx)
	if err != nil {
		return fail(StatusRetrieved, err)
	}
	if snap.Len() == 0 {
		res.Status = StatusComplete
		res.Elapsed = time.Since(started)
		o.logger.Info("retrieval complete", "query", query, "chunks", 0, "empty_store", true)
		return res, nil
	}

	dense, sparse := o.dense, o.sparse
	if dense == nil {
		dense = retrieval.NewDenseIndex(snap)
	}
	if sparse == nil {
		sparse = retrieval.NewBM25Index(snap)
	}

	// One dense search per query vector plus the sparse search, concurrent,
	// results slotted by index so completion order never affects ranking.
	denseLists := make([][]rag.RankedResult, len(vectors))
	var sparseList []rag.RankedResult

	g, gctx := errgroup.WithContext(ctx)
	for i, vec := range vectors {
		g.Go(func() error {
			results, err := dense.Search(gctx, vec, cfg.TopKRetrieval)
			if err != nil && !errors.Is(err, rag.ErrEmptyStore) {
				return fmt.Errorf("dense search %d: %w", i, err)
			}
			denseLists[i] = results
			return nil
		})
	}
	g.Go(func() error {
		results, err := sparse.Search(gctx, query, cfg.TopKRetrieval)
		if err != nil && !errors.Is(err, rag.ErrEmptyStore) {
			return fmt.Errorf("sparse search: %w", err)
		}
		sparseList = results
		return nil
	})
	if err := g.Wait(); err != nil {
		return fail(StatusRetrieved, err)
	}
	res.Status = StatusRetrieved

	// retrieved → fused
	rankings := make([]retrieval.Ranking, 0, len(denseLists)+1)
	for _, list := range denseLists {
		if len(list) == 0 {
			continue
		}
		rankings = append(rankings, retrieval.Ranking{
			Source: rag.StageDense,
			IDs:    resultIDs(list),
			Weight: cfg.HybridSearchAlpha,
		})
	}
	if len(sparseList) > 0 {
		rankings = append(rankings, retrieval.Ranking{
			Source: rag.StageSparse,
			IDs:    resultIDs(sparseList),
			Weight: 1 - cfg.HybridSearchAlpha,
		})
	}

	fuser := &retrieval.Fuser{K: cfg.FusionK}
	fused := fuser.Fuse(rankings, cfg.TopKRetrieval)
	res.Status = StatusFused
	if len(fused) == 0 {
		res.Status = StatusComplete
		res.Elapsed = time.Since(started)
		o.logger.Info("retrieval complete", "query", query, "chunks", 0)
		return res, nil
	}

	candidates := make([]rag.Chunk, 0, len(fused))
	for _, r := range fused {
		chunk, ok := snap.Get(r.ChunkID)
		if !ok {
			return fail(StatusFused, fmt.Errorf("fused chunk %s: %w", r.ChunkID, rag.ErrNotFound))
		}
		candidates = append(candidates, chunk)
	}

	// fused → reranked
	final := fused
	if o.reranker != nil {
		reranked, err := o.reranker.Rerank(ctx, query, candidates, cfg.RerankTopK)
		switch {
		case err == nil:
			final = reranked
			res.Status = StatusReranked
		case ctx.Err() != nil:
			return fail(StatusReranked, err)
		default:
			var genErr *rag.GenerateError
			if !errors.As(err, &genErr) {
				return fail(StatusReranked, err)
			}
			// Scoring collapsed entirely; fall back to fused order.
			res.Degraded = append(res.Degraded, "rerank")
		}
	}
	if len(final) > cfg.RerankTopK {
		final = final[:cfg.RerankTopK]
	}

	res.Chunks = make([]ScoredChunk, len(final))
	for i, r := range final {
		chunk, ok := snap.Get(r.ChunkID)
		if !ok {
			return fail(res.Status, fmt.Errorf("ranked chunk %s: %w", r.ChunkID, rag.ErrNotFound))
		}
		res.Chunks[i] = ScoredChunk{Chunk: chunk, Score: r.Score, Stage: r.Stage}
	}

	if err := ctx.Err(); err != nil {
		return fail(res.Status, err)
	}
	res.Status = StatusComplete
	res.Elapsed = time.Since(started)
	o.logger.Info("retrieval complete",
		"query", query,
		"chunks", len(res.Chunks),
		"hypotheticals", len(res.Hypotheticals),
		"degraded", res.Degraded,
		"elapsed", res.Elapsed,
	)
	return res, nil
}

func resultIDs(results []rag.RankedResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ChunkID
	}
	return ids
}
