package retrieval

import (
	"context"
	"math"
	"sort"

	"github.com/tessera-ai/tessera/rag"
)

// DenseIndex performs cosine-similarity search over a store snapshot.
// Vectors are L2-normalized at build time, so similarity is a dot product.
// The index is immutable once built; build one per request snapshot.
type DenseIndex struct {
	ids  []string
	vecs [][]float64
	dims int
}

// NewDenseIndex builds a dense index over the snapshot. Chunks are ordered by
// ID so results are deterministic regardless of snapshot iteration order.
func NewDenseIndex(snap rag.Snapshot) *DenseIndex {
	idx := &DenseIndex{dims: snap.Dims()}
	for chunk := range snap.All() {
		idx.ids = append(idx.ids, chunk.ID)
		idx.vecs = append(idx.vecs, normalize(chunk.Embedding))
	}
	sort.Sort(byID{idx})
	return idx
}

// Len reports the number of indexed chunks.
func (x *DenseIndex) Len() int { return len(x.ids) }

// Search returns up to k chunks by descending cosine similarity, ties broken
// by chunk ID.
func (x *DenseIndex) Search(ctx context.Context, vector []float64, k int) ([]rag.RankedResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(x.ids) == 0 {
		return nil, rag.ErrEmptyStore
	}
	if len(vector) != x.dims {
		return nil, &rag.DimensionError{Want: x.dims, Got: len(vector)}
	}

	query := normalize(vector)
	results := make([]rag.RankedResult, len(x.ids))
	for i, vec := range x.vecs {
		results[i] = rag.RankedResult{
			ChunkID: x.ids[i],
			Score:   dot(query, vec),
			Stage:   rag.StageDense,
		}
	}

	// ids are sorted at build time, so a stable sort keeps ID order on ties.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if k > 0 && k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// SearchMany runs one search per query vector and unions the results,
// keeping the best score per chunk. Useful when callers do not need the
// per-vector rankings kept apart.
func (x *DenseIndex) SearchMany(ctx context.Context, vectors [][]float64, k int) ([]rag.RankedResult, error) {
	best := make(map[string]float64)
	for _, vector := range vectors {
		results, err := x.Search(ctx, vector, k)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			if score, ok := best[r.ChunkID]; !ok || r.Score > score {
				best[r.ChunkID] = r.Score
			}
		}
	}

	merged := make([]rag.RankedResult, 0, len(best))
	for id, score := range best {
		merged = append(merged, rag.RankedResult{ChunkID: id, Score: score, Stage: rag.StageDense})
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score == merged[j].Score {
			return merged[i].ChunkID < merged[j].ChunkID
		}
		return merged[i].Score > merged[j].Score
	})
	if k > 0 && k < len(merged) {
		merged = merged[:k]
	}
	return merged, nil
}

type byID struct{ x *DenseIndex }

func (s byID) Len() int           { return len(s.x.ids) }
func (s byID) Less(i, j int) bool { return s.x.ids[i] < s.x.ids[j] }
func (s byID) Swap(i, j int) {
	s.x.ids[i], s.x.ids[j] = s.x.ids[j], s.x.ids[i]
	s.x.vecs[i], s.x.vecs[j] = s.x.vecs[j], s.x.vecs[i]
}

func normalize(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
