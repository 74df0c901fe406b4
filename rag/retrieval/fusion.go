package retrieval

import (
	"sort"

	"github.com/tessera-ai/tessera/rag"
)

// DefaultFusionK is the RRF smoothing constant. 60 keeps contributions from
// deep ranks small without zeroing them out.
const DefaultFusionK = 60

// Ranking is one ordered candidate list entering fusion, best rank first.
// Weight scales the list's reciprocal-rank contributions; a ranking with a
// non-positive weight is excluded from fusion.
type Ranking struct {
	Source rag.Stage
	IDs    []string
	Weight float64
}

// NewRanking creates a full-weight ranking.
func NewRanking(source rag.Stage, ids []string) Ranking {
	return Ranking{Source: source, IDs: ids, Weight: 1}
}

// Fuser merges ranked lists with Reciprocal Rank Fusion. Rank-based fusion
// needs no score normalization across sources, which is the reason to prefer
// it over blending raw cosine and lexical scores.
type Fuser struct {
	// K is the smoothing constant in 1/(K+rank).
	K int
}

// NewFuser creates a fuser with the default smoothing constant.
func NewFuser() *Fuser {
	return &Fuser{K: DefaultFusionK}
}

// fusionEntry accumulates one chunk's reciprocal-rank contributions for the
// duration of a single Fuse call.
type fusionEntry struct {
	id       string
	score    float64
	bestRank int
}

// Fuse sums weighted 1/(K+rank) contributions per chunk across all rankings
// and returns up to k results by descending fused score. Rankings weighted
// zero or below contribute nothing and leave no entry. Ties are broken by
// the chunk's best individual rank, then by chunk ID, so the output is
// invariant to the order in which rankings are supplied.
func (f *Fuser) Fuse(rankings []Ranking, k int) []rag.RankedResult {
	if len(rankings) == 0 {
		return nil
	}
	smoothing := f.K
	if smoothing <= 0 {
		smoothing = DefaultFusionK
	}

	entries := make(map[string]*fusionEntry)
	for _, ranking := range rankings {
		weight := ranking.Weight
		if weight <= 0 {
			continue
		}
		for i, id := range ranking.IDs {
			rank := i + 1
			entry, ok := entries[id]
			if !ok {
				entry = &fusionEntry{id: id, bestRank: rank}
				entries[id] = entry
			}
			entry.score += weight / float64(smoothing+rank)
			if rank < entry.bestRank {
				entry.bestRank = rank
			}
		}
	}

	fused := make([]*fusionEntry, 0, len(entries))
	for _, entry := range entries {
		fused = append(fused, entry)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		if fused[i].bestRank != fused[j].bestRank {
			return fused[i].bestRank < fused[j].bestRank
		}
		return fused[i].id < fused[j].id
	})

	if k > 0 && k < len(fused) {
		fused = fused[:k]
	}
	results := make([]rag.RankedResult, len(fused))
	for i, entry := range fused {
		results[i] = rag.RankedResult{ChunkID: entry.id, Score: entry.score, Stage: rag.StageFused}
	}
	return results
}
